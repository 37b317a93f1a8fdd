package bus

import (
	"sync"
	"time"
)

// DedupeCache is a TTL cache for inbound message identity keys. Webhook
// retries and gateway reconnects can redeliver the same message; a duplicate
// must not open a second triage pipeline.
type DedupeCache struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	ttl        time.Duration
	maxEntries int
}

func NewDedupeCache(ttl time.Duration, maxEntries int) *DedupeCache {
	if maxEntries <= 0 {
		maxEntries = 5000
	}
	return &DedupeCache{
		seen:       make(map[string]time.Time),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// IsDuplicate records the key and reports whether it was already seen within
// the TTL. Stale entries are pruned lazily when the cache is at capacity.
func (d *DedupeCache) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}

	if len(d.seen) >= d.maxEntries {
		for k, at := range d.seen {
			if now.Sub(at) >= d.ttl {
				delete(d.seen, k)
			}
		}
		// Hard eviction if still at capacity.
		for len(d.seen) >= d.maxEntries {
			for k := range d.seen {
				delete(d.seen, k)
				break
			}
		}
	}

	d.seen[key] = now
	return false
}
