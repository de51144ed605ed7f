package engine

import (
	"sort"
	"sync"
	"time"

	"oracleguard/internal/model"
)

// BreakerController tracks per-feed circuit breakers. Activation happens
// as a side effect of alert dispatch; deactivation only by explicit
// command. There is no automatic expiry.
type BreakerController struct {
	mu     sync.RWMutex
	active map[string]model.BreakerState
}

func NewBreakerController() *BreakerController {
	return &BreakerController{active: make(map[string]model.BreakerState)}
}

// Activate trips the breaker for a feed. It is idempotent: a feed already
// suspended keeps its original state and ok is false.
func (c *BreakerController) Activate(feed, alertID string, now time.Time) (model.BreakerState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, exists := c.active[feed]; exists {
		return st, false
	}
	st := model.BreakerState{
		FeedName:    feed,
		Active:      true,
		ActivatedAt: now,
		AlertID:     alertID,
	}
	c.active[feed] = st
	return st, true
}

// Deactivate releases the breaker. ok is false when the feed was not
// suspended.
func (c *BreakerController) Deactivate(feed string) (model.BreakerState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, exists := c.active[feed]
	if !exists {
		return model.BreakerState{}, false
	}
	delete(c.active, feed)
	return st, true
}

func (c *BreakerController) IsActive(feed string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.active[feed]
	return exists
}

// ActiveFeeds returns the suspended feed names, sorted.
func (c *BreakerController) ActiveFeeds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.active))
	for feed := range c.active {
		out = append(out, feed)
	}
	sort.Strings(out)
	return out
}

// States returns a snapshot of all active breakers, sorted by feed name.
func (c *BreakerController) States() []model.BreakerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.BreakerState, 0, len(c.active))
	for _, st := range c.active {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeedName < out[j].FeedName })
	return out
}
