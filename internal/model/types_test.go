package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAlertWireShapeKeepsEmptyFields(t *testing.T) {
	alert := Alert{
		ID:               "abc123",
		Timestamp:        time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		FeedName:         "ETH/USD",
		Type:             FraudPriceManipulation,
		Severity:         SeverityHigh,
		ResolutionStatus: "OPEN",
	}
	data, err := json.Marshal(alert)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Downstream consumers read these keys unconditionally; they must be
	// present even when unset.
	for _, key := range []string{`"acknowledged_by"`, `"is_acknowledged"`, `"resolution_status"`} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("wire JSON missing %s: %s", key, data)
		}
	}
}

func TestFeedEventValidate(t *testing.T) {
	cases := []struct {
		ev   FeedEvent
		want error
	}{
		{FeedEvent{Price: 100}, ErrMissingFeedName},
		{FeedEvent{FeedName: "ETH/USD"}, ErrBadPrice},
		{FeedEvent{FeedName: "ETH/USD", Price: 100, Volume: -1}, ErrBadVolume},
		{FeedEvent{FeedName: "ETH/USD", Price: 100, LatencyMS: -1}, ErrBadLatency},
		{FeedEvent{FeedName: "ETH/USD", Price: 100}, nil},
	}
	for _, tc := range cases {
		if err := tc.ev.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("event %+v: expected %v, got %v", tc.ev, tc.want, err)
		}
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Fatalf("CRITICAL must outrank HIGH")
	}
	if SeverityLow.AtLeast(SeverityMedium) {
		t.Fatalf("LOW must not outrank MEDIUM")
	}
}
