package engine

import (
	"testing"
	"time"
)

func TestBreakerActivateIdempotent(t *testing.T) {
	c := NewBreakerController()
	now := time.Now().UTC()

	st, ok := c.Activate("ETH/USD", "alert-1", now)
	if !ok || st.AlertID != "alert-1" || !st.Active {
		t.Fatalf("unexpected first activation %+v ok=%v", st, ok)
	}
	st, ok = c.Activate("ETH/USD", "alert-2", now.Add(time.Minute))
	if ok {
		t.Fatalf("second activation must be a no-op")
	}
	if st.AlertID != "alert-1" {
		t.Fatalf("original state must be preserved, got %+v", st)
	}
	if !c.IsActive("ETH/USD") {
		t.Fatalf("feed must be suspended")
	}
}

func TestBreakerDeactivate(t *testing.T) {
	c := NewBreakerController()
	if _, ok := c.Deactivate("ETH/USD"); ok {
		t.Fatalf("deactivating an open breaker must fail")
	}

	c.Activate("ETH/USD", "alert-1", time.Now().UTC())
	st, ok := c.Deactivate("ETH/USD")
	if !ok || st.AlertID != "alert-1" {
		t.Fatalf("unexpected deactivation %+v ok=%v", st, ok)
	}
	if c.IsActive("ETH/USD") {
		t.Fatalf("feed must be released")
	}
}

func TestBreakerSnapshotsSorted(t *testing.T) {
	c := NewBreakerController()
	now := time.Now().UTC()
	c.Activate("ETH/USD", "a", now)
	c.Activate("BTC/USD", "b", now)

	feeds := c.ActiveFeeds()
	if len(feeds) != 2 || feeds[0] != "BTC/USD" || feeds[1] != "ETH/USD" {
		t.Fatalf("expected sorted feeds, got %v", feeds)
	}
	states := c.States()
	if len(states) != 2 || states[0].FeedName != "BTC/USD" {
		t.Fatalf("expected sorted states, got %+v", states)
	}
}
