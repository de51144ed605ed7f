package engine

import (
	"sync"
	"time"

	"oracleguard/internal/model"
)

// Deduplicator gates repeated alerts per (feed, fraud type). CRITICAL
// detections always pass and restart the cooldown clock for their key, so
// later non-critical hits of the same key stay suppressed.
type Deduplicator struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]time.Time
	counts   map[string]int64
}

func NewDeduplicator(cooldown time.Duration) *Deduplicator {
	return &Deduplicator{
		cooldown: cooldown,
		last:     make(map[string]time.Time),
		counts:   make(map[string]int64),
	}
}

func dedupKey(feed string, fraudType model.FraudType) string {
	return feed + "|" + string(fraudType)
}

// SetCooldown applies a new cooldown window, effective for subsequent
// ShouldAlert calls. Used on config reload.
func (d *Deduplicator) SetCooldown(cooldown time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cooldown = cooldown
}

// ShouldAlert reports whether an alert for the key may be emitted now.
func (d *Deduplicator) ShouldAlert(feed string, fraudType model.FraudType, severity model.Severity) bool {
	key := dedupKey(feed, fraudType)
	now := time.Now().UTC()

	d.mu.Lock()
	defer d.mu.Unlock()

	if severity == model.SeverityCritical {
		d.last[key] = now
		return true
	}

	if ts, ok := d.last[key]; ok && d.cooldown > 0 {
		if now.Sub(ts) < d.cooldown {
			return false
		}
	}

	d.last[key] = now
	d.counts[key]++
	return true
}

// Cleanup drops entries older than maxAge and returns how many were
// removed. Bounds memory for feeds that went quiet.
func (d *Deduplicator) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for key, ts := range d.last {
		if ts.Before(cutoff) {
			delete(d.last, key)
			removed++
		}
	}
	return removed
}

// Stats returns a copy of the per-key admitted-alert counters.
func (d *Deduplicator) Stats() map[string]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int64, len(d.counts))
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}
