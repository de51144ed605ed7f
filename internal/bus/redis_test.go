package bus

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"oracleguard/internal/model"
)

type recordingHandler struct {
	mu        sync.Mutex
	events    []model.FeedEvent
	anomalies []model.ExternalAnomaly
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev model.FeedEvent) []model.Alert {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *recordingHandler) HandleExternalAnomaly(_ context.Context, anomaly model.ExternalAnomaly) model.Alert {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.anomalies = append(h.anomalies, anomaly)
	return model.Alert{}
}

func TestPeekFeedName(t *testing.T) {
	if got := peekFeedName([]byte(`{"feed_name": "ETH/USD", "price": 2000}`)); got != "ETH/USD" {
		t.Fatalf("expected ETH/USD, got %q", got)
	}
	if got := peekFeedName([]byte(`{"price": 2000}`)); got != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for missing feed, got %q", got)
	}
	if got := peekFeedName([]byte(`not json`)); got != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for garbage, got %q", got)
	}
}

func TestHandleDispatchesByTopic(t *testing.T) {
	h := &recordingHandler{}
	c := NewConsumer(nil, h, 10, zerolog.Nop())
	ctx := context.Background()

	c.handle(ctx, message{topic: TopicPriceUpdate, payload: []byte(`{"feed_name": "ETH/USD", "price": 2000, "volume": 10}`)})
	c.handle(ctx, message{topic: TopicAnomalyDetected, payload: []byte(`{"feed_name": "ETH/USD", "confidence": 0.9}`)})
	c.handle(ctx, message{topic: TopicPriceUpdate, payload: []byte(`broken`)})
	c.handle(ctx, message{topic: "unrelated", payload: []byte(`{}`)})

	if len(h.events) != 1 || h.events[0].FeedName != "ETH/USD" || h.events[0].Source != "bus" {
		t.Fatalf("unexpected events %+v", h.events)
	}
	if len(h.anomalies) != 1 || h.anomalies[0].Confidence != 0.9 {
		t.Fatalf("unexpected anomalies %+v", h.anomalies)
	}
}

func TestRouteSerializesPerFeed(t *testing.T) {
	h := &recordingHandler{}
	c := NewConsumer(nil, h, 10, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.route(ctx, message{topic: TopicPriceUpdate, payload: []byte(`{"feed_name": "ETH/USD", "price": 2000, "volume": 10}`)})
	}
	// drain closes the worker queues and waits for in-flight work.
	c.drain()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) != 5 {
		t.Fatalf("expected all 5 routed events handled, got %d", len(h.events))
	}
}
