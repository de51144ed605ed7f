package alerts

import (
	"fmt"
	"testing"
	"time"

	"oracleguard/internal/model"
)

func alertN(i int) model.Alert {
	return model.Alert{
		ID:        fmt.Sprintf("alert-%d", i),
		FeedName:  "ETH/USD",
		Timestamp: time.Date(2026, 5, 1, 12, 0, i, 0, time.UTC),
	}
}

func TestRingCapAndOrdering(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Add(alertN(i))
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3, got %d", s.Len())
	}
	list := s.List(0, "")
	if len(list) != 3 || list[0].ID != "alert-4" || list[2].ID != "alert-2" {
		t.Fatalf("expected newest first, got %+v", list)
	}
}

func TestListFeedFilterAndLimit(t *testing.T) {
	s := NewStore(10)
	s.Add(model.Alert{ID: "a", FeedName: "ETH/USD"})
	s.Add(model.Alert{ID: "b", FeedName: "BTC/USD"})
	s.Add(model.Alert{ID: "c", FeedName: "ETH/USD"})

	list := s.List(0, "ETH/USD")
	if len(list) != 2 || list[0].ID != "c" {
		t.Fatalf("unexpected filtered list %+v", list)
	}
	list = s.List(1, "")
	if len(list) != 1 || list[0].ID != "c" {
		t.Fatalf("unexpected limited list %+v", list)
	}
}

func TestSince(t *testing.T) {
	s := NewStore(10)
	for i := 0; i < 4; i++ {
		s.Add(alertN(i))
	}
	got := s.Since(time.Date(2026, 5, 1, 12, 0, 2, 0, time.UTC))
	if len(got) != 2 || got[0].ID != "alert-3" {
		t.Fatalf("unexpected since result %+v", got)
	}
}

func TestAcknowledgeAndResolve(t *testing.T) {
	s := NewStore(10)
	s.Add(alertN(1))

	if s.Acknowledge("missing", "ops") {
		t.Fatalf("unknown id must not be acknowledged")
	}
	if !s.Acknowledge("alert-1", "ops") {
		t.Fatalf("acknowledge failed")
	}
	a, ok := s.Get("alert-1")
	if !ok || !a.Acknowledged || a.AcknowledgedBy != "ops" {
		t.Fatalf("unexpected state %+v", a)
	}

	if !s.Resolve("alert-1", "FALSE_POSITIVE") {
		t.Fatalf("resolve failed")
	}
	a, _ = s.Get("alert-1")
	if a.ResolutionStatus != "FALSE_POSITIVE" {
		t.Fatalf("unexpected status %q", a.ResolutionStatus)
	}
}
