package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"oracleguard/internal/config"
	"oracleguard/internal/model"
)

func newRedisStoreForTest(t *testing.T, cfg config.StoreConfig) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, cfg, zerolog.Nop()), mr
}

func storedAlert(i int, feed string) model.Alert {
	return model.Alert{
		ID:               fmt.Sprintf("alert-%d", i),
		Timestamp:        time.Date(2026, 5, 1, 12, 0, i, 0, time.UTC),
		FeedName:         feed,
		Type:             model.FraudPriceManipulation,
		Severity:         model.SeverityHigh,
		ResolutionStatus: "OPEN",
	}
}

func TestStoreAndGetRecentNewestFirst(t *testing.T) {
	s, _ := newRedisStoreForTest(t, config.StoreConfig{RetentionDays: 1, IndexLimit: 100})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Store(ctx, storedAlert(i, "ETH/USD")); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	got, err := s.GetRecent(ctx, 10, "")
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(got))
	}
	if got[0].ID != "alert-2" || got[2].ID != "alert-0" {
		t.Fatalf("expected newest first, got %+v", got)
	}
}

func TestGetRecentFeedFilterAndLimit(t *testing.T) {
	s, _ := newRedisStoreForTest(t, config.StoreConfig{RetentionDays: 1, IndexLimit: 100})
	ctx := context.Background()

	_ = s.Store(ctx, storedAlert(0, "ETH/USD"))
	_ = s.Store(ctx, storedAlert(1, "BTC/USD"))
	_ = s.Store(ctx, storedAlert(2, "ETH/USD"))

	got, err := s.GetRecent(ctx, 10, "ETH/USD")
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "alert-2" || got[1].ID != "alert-0" {
		t.Fatalf("unexpected filtered result %+v", got)
	}

	got, err = s.GetRecent(ctx, 1, "")
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if len(got) != 1 || got[0].ID != "alert-2" {
		t.Fatalf("unexpected limited result %+v", got)
	}
}

func TestGetRecentSkipsExpiredIDs(t *testing.T) {
	s, mr := newRedisStoreForTest(t, config.StoreConfig{RetentionDays: 1, IndexLimit: 100})
	ctx := context.Background()

	_ = s.Store(ctx, storedAlert(0, "ETH/USD"))
	// Let the alert key's TTL lapse; the id stays on the recency index.
	mr.FastForward(25 * time.Hour)
	_ = s.Store(ctx, storedAlert(1, "ETH/USD"))

	got, err := s.GetRecent(ctx, 10, "")
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if len(got) != 1 || got[0].ID != "alert-1" {
		t.Fatalf("expired alert must be skipped, got %+v", got)
	}
}

func TestRecencyIndexTrimmedToCap(t *testing.T) {
	s, _ := newRedisStoreForTest(t, config.StoreConfig{RetentionDays: 1, IndexLimit: 5})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_ = s.Store(ctx, storedAlert(i, "ETH/USD"))
	}
	got, err := s.GetRecent(ctx, 10, "")
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("index must be capped at 5, got %d", len(got))
	}
	if got[0].ID != "alert-7" || got[4].ID != "alert-3" {
		t.Fatalf("cap must keep the newest ids, got %+v", got)
	}
}

func TestGetByID(t *testing.T) {
	s, _ := newRedisStoreForTest(t, config.StoreConfig{RetentionDays: 1, IndexLimit: 100})
	ctx := context.Background()

	_ = s.Store(ctx, storedAlert(0, "ETH/USD"))

	alert, found, err := s.Get(ctx, "alert-0")
	if err != nil || !found {
		t.Fatalf("expected alert, got found=%v err=%v", found, err)
	}
	if alert.FeedName != "ETH/USD" || alert.Severity != model.SeverityHigh {
		t.Fatalf("unexpected alert %+v", alert)
	}

	if _, found, err := s.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("expected not found, got found=%v err=%v", found, err)
	}
}
