package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

// batchItem is one message fragment awaiting a triage decision.
type batchItem struct {
	At        time.Time
	Text      string
	Mentioned bool
}

// batch accumulates a participant's rapid-fire messages until the merge
// window elapses or an urgency threshold forces a flush. inFlight marks an
// outstanding triage/context pipeline for the key; while set, flushes are
// skipped and items stay queued.
type batch struct {
	items    []batchItem
	inFlight bool
}

// batcher owns the per-key batches. Not safe for concurrent use on its own;
// the orchestrator's lock guards it.
type batcher struct {
	cap     int
	batches map[Key]*batch
}

func newBatcher(cap int) *batcher {
	return &batcher{cap: cap, batches: make(map[Key]*batch)}
}

// offer appends an item and reports whether the batch hit the overflow cap.
func (b *batcher) offer(key Key, item batchItem) (overflow bool) {
	bt := b.batches[key]
	if bt == nil {
		bt = &batch{}
		b.batches[key] = bt
	}
	bt.items = append(bt.items, item)
	return len(bt.items) >= b.cap
}

// take drains up to max items from the front of the queue. Overflow items
// beyond max stay queued for the next flush.
func (b *batcher) take(key Key, max int) []batchItem {
	bt := b.batches[key]
	if bt == nil || len(bt.items) == 0 {
		return nil
	}
	n := len(bt.items)
	if n > max {
		n = max
	}
	items := bt.items[:n:n]
	bt.items = bt.items[n:]
	if len(bt.items) == 0 && !bt.inFlight {
		// keep the entry while a pipeline is outstanding so inFlight survives
		b.compact(key)
	}
	return items
}

// requeue returns items to the front of the queue, preserving time order.
// Used when a triage call fails or times out: evidence is never lost.
func (b *batcher) requeue(key Key, items []batchItem) {
	if len(items) == 0 {
		return
	}
	bt := b.batches[key]
	if bt == nil {
		bt = &batch{}
		b.batches[key] = bt
	}
	bt.items = append(items[:len(items):len(items)], bt.items...)
}

// drain removes and returns everything queued for the key, dropping the entry.
func (b *batcher) drain(key Key) []batchItem {
	bt := b.batches[key]
	if bt == nil {
		return nil
	}
	items := bt.items
	delete(b.batches, key)
	return items
}

func (b *batcher) inFlight(key Key) bool {
	bt := b.batches[key]
	return bt != nil && bt.inFlight
}

func (b *batcher) setInFlight(key Key, v bool) {
	bt := b.batches[key]
	if bt == nil {
		if !v {
			return
		}
		bt = &batch{}
		b.batches[key] = bt
	}
	bt.inFlight = v
	if !v {
		b.compact(key)
	}
}

// dueKeys returns keys whose batch is due: idle since the last item, or older
// than the merge window since the first item (absolute-age fallback). Keys
// with an outstanding pipeline are never due.
func (b *batcher) dueKeys(now time.Time, window time.Duration) []Key {
	var due []Key
	for key, bt := range b.batches {
		if bt.inFlight || len(bt.items) == 0 {
			continue
		}
		idle := now.Sub(bt.items[len(bt.items)-1].At) >= window
		aged := now.Sub(bt.items[0].At) >= window
		if idle || aged {
			due = append(due, key)
		}
	}
	return due
}

func (b *batcher) compact(key Key) {
	if bt := b.batches[key]; bt != nil && len(bt.items) == 0 && !bt.inFlight {
		delete(b.batches, key)
	}
}

// mergeItems joins items into one numbered, newline-separated evidence block
// and reports whether any item mentioned the assistant.
func mergeItems(items []batchItem) (payload string, mentioned bool) {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, it.Text)
		if it.Mentioned {
			mentioned = true
		}
	}
	return b.String(), mentioned
}
