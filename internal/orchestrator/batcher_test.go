package orchestrator

import (
	"testing"
	"time"
)

func batchKey() Key {
	return Key{Channel: "onebot", RoomID: "r", ParticipantID: "p"}
}

// take honors the cap and keeps overflow queued.
func TestBatcherTakeKeepsOverflow(t *testing.T) {
	b := newBatcher(10)
	key := batchKey()
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.offer(key, batchItem{At: base, Text: string(rune('a' + i))})
	}

	got := b.take(key, 3)
	if len(got) != 3 || got[0].Text != "a" || got[2].Text != "c" {
		t.Fatalf("take returned %+v", got)
	}
	rest := b.take(key, 10)
	if len(rest) != 2 || rest[0].Text != "d" {
		t.Fatalf("overflow lost: %+v", rest)
	}
}

// requeue puts items back at the front in their original order.
func TestBatcherRequeueOrder(t *testing.T) {
	b := newBatcher(10)
	key := batchKey()
	base := time.Now()

	b.offer(key, batchItem{At: base, Text: "one"})
	b.offer(key, batchItem{At: base, Text: "two"})
	taken := b.take(key, 10)

	b.offer(key, batchItem{At: base, Text: "three"})
	b.requeue(key, taken)

	got := b.take(key, 10)
	want := []string{"one", "two", "three"}
	for i, w := range want {
		if got[i].Text != w {
			t.Fatalf("order after requeue: got %+v", got)
		}
	}
}

// dueKeys fires on idle gap or absolute age, never for in-flight batches.
func TestBatcherDueKeys(t *testing.T) {
	b := newBatcher(10)
	key := batchKey()
	window := 5 * time.Second
	base := time.Now()

	b.offer(key, batchItem{At: base, Text: "x"})
	if due := b.dueKeys(base.Add(2*time.Second), window); len(due) != 0 {
		t.Fatal("due inside window")
	}
	if due := b.dueKeys(base.Add(6*time.Second), window); len(due) != 1 {
		t.Fatal("not due after idle gap")
	}

	// Continuous chatter: last item always fresh, but absolute age trips.
	for i := 1; i <= 4; i++ {
		b.offer(key, batchItem{At: base.Add(time.Duration(i) * time.Second), Text: "y"})
	}
	if due := b.dueKeys(base.Add(5*time.Second), window); len(due) != 1 {
		t.Fatal("absolute age fallback did not fire")
	}

	b.setInFlight(key, true)
	if due := b.dueKeys(base.Add(time.Hour), window); len(due) != 0 {
		t.Fatal("in-flight batch reported due")
	}
}

// mergeItems numbers the items and surfaces any mention.
func TestMergeItems(t *testing.T) {
	payload, mentioned := mergeItems([]batchItem{
		{Text: "first"},
		{Text: "second", Mentioned: true},
	})
	if payload != "1. first\n2. second" {
		t.Fatalf("payload = %q", payload)
	}
	if !mentioned {
		t.Fatal("mention flag lost in merge")
	}
}
