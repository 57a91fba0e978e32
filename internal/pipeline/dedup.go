package pipeline

import (
	"sync"
	"time"
)

// dedup is the in-process fallback for message deduplication, used when no
// shared seen-cache is configured or the cache is unavailable. It is safe for
// concurrent use.
type dedup struct {
	seen map[string]time.Time // messageID -> first seen time
	ttl  time.Duration
	mu   sync.Mutex
}

func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// markSeen records the message ID and reports whether it was already recorded
// within the TTL window.
func (d *dedup) markSeen(messageID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if first, ok := d.seen[messageID]; ok && now.Sub(first) < d.ttl {
		return true
	}
	d.seen[messageID] = now
	return false
}

// cleanup removes expired entries to bound memory growth. Called periodically
// from the pipeline's run loop.
func (d *dedup) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
