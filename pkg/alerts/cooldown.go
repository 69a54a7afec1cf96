package alerts

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// cooldownTracker suppresses repeat alerts for the same target within a
// configured window, keyed by target id. Entries evict themselves after
// twice the cooldown window, which is what the scheduler's cooldown.gc job
// (spec.md §4.6) is backstopping against unbounded growth from targets
// that stop alerting.
type cooldownTracker struct {
	cache  *lru.LRU[int, time.Time]
	window time.Duration
}

func newCooldownTracker(window time.Duration, maxTargets int) *cooldownTracker {
	if maxTargets <= 0 {
		maxTargets = 10000
	}
	return &cooldownTracker{
		cache:  lru.NewLRU[int, time.Time](maxTargets, nil, window*2),
		window: window,
	}
}

// allow reports whether an alert for targetID may fire at now. If allowed,
// it records now as the cooldown clock's start (spec.md §4.5 "If allowed,
// update the cooldown timestamp for the target").
func (c *cooldownTracker) allow(targetID int, now time.Time) bool {
	if last, ok := c.cache.Get(targetID); ok && now.Sub(last) < c.window {
		return false
	}
	c.cache.Add(targetID, now)
	return true
}

// gc touches every key the cache currently lists and reports how many fewer
// keys it lists afterwards, for the scheduler's cooldown.gc job (spec.md
// §4.6). Get does not remove entries, so this pass evicts nothing itself;
// entries past their TTL are dropped by the cache's own expiry handling.
func (c *cooldownTracker) gc() int {
	keys := c.cache.Keys()
	before := len(keys)
	for _, k := range keys {
		c.cache.Get(k)
	}
	return before - len(c.cache.Keys())
}
