package orchestrator

import "time"

// cooldownLedger records when a dialogue last ended per key. Consulted before
// opening a new session; never consulted for turns inside an active one.
type cooldownLedger struct {
	entries map[Key]time.Time
}

func newCooldownLedger() *cooldownLedger {
	return &cooldownLedger{entries: make(map[Key]time.Time)}
}

// active reports whether the key is still inside its cooldown window.
func (l *cooldownLedger) active(key Key, now time.Time, d time.Duration) bool {
	endedAt, ok := l.entries[key]
	return ok && now.Sub(endedAt) < d
}

// touch records a session end. Cooldown is measured from end, not start.
func (l *cooldownLedger) touch(key Key, now time.Time) {
	l.entries[key] = now
}

// prune drops entries that ended before the cutoff.
func (l *cooldownLedger) prune(before time.Time) int {
	n := 0
	for key, endedAt := range l.entries {
		if endedAt.Before(before) {
			delete(l.entries, key)
			n++
		}
	}
	return n
}
