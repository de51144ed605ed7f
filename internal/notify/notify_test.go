package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"oracleguard/internal/model"
)

func sampleAlert() model.Alert {
	return model.Alert{
		ID:                 "abc123",
		Timestamp:          time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		FeedName:           "ETH/USD",
		Type:               model.FraudPriceManipulation,
		Severity:           model.SeverityHigh,
		Confidence:         0.9,
		AnomalyScore:       0.7,
		Description:        "Sudden price change of 20.00% detected",
		RecommendedActions: []string{"Halt oracle updates temporarily"},
		PotentialLossUSD:   1234,
		ResolutionStatus:   "OPEN",
	}
}

func TestWebhookDeliversAlertJSON(t *testing.T) {
	var received model.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if received.ID != "abc123" || received.FeedName != "ETH/USD" {
		t.Fatalf("unexpected payload %+v", received)
	}
}

func TestWebhookNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), sampleAlert()); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestTelegramMessageAndOKFlag(t *testing.T) {
	var gotPath string
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotText = payload["text"]
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat42", srv.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotPath != "/bottoken/sendMessage" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotText, "FRAUD ALERT - HIGH") || !strings.Contains(gotText, "abc123") {
		t.Fatalf("unexpected message %q", gotText)
	}
}

func TestTelegramOKFalseFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": false})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat42", srv.URL, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), sampleAlert()); err == nil {
		t.Fatalf("expected error when telegram reports ok=false")
	}
}

func TestSlackAttachmentColor(t *testing.T) {
	var payload struct {
		Attachments []struct {
			Color string `json:"color"`
		} `json:"attachments"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, time.Second, zerolog.Nop())
	alert := sampleAlert()
	alert.Severity = model.SeverityCritical
	if err := n.Notify(context.Background(), alert); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(payload.Attachments) != 1 || payload.Attachments[0].Color != "#FF0000" {
		t.Fatalf("expected red attachment for CRITICAL, got %+v", payload.Attachments)
	}
}

func TestDispatcherIsolatesSlowChannel(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	d := NewDispatcher(100*time.Millisecond, zerolog.Nop(),
		NewWebhookNotifier(ok.URL, time.Second, zerolog.Nop()),
		NewSlackNotifier(slow.URL, time.Second, zerolog.Nop()),
	)
	results := d.NotifyAll(context.Background(), sampleAlert())
	if len(results) != 2 {
		t.Fatalf("expected results for both channels, got %v", results)
	}
	if !results["webhook"] {
		t.Fatalf("healthy channel must succeed")
	}
	if results["slack"] {
		t.Fatalf("timed-out channel must report failure")
	}
}

func TestDispatcherNoChannels(t *testing.T) {
	d := NewDispatcher(time.Second, zerolog.Nop())
	if results := d.NotifyAll(context.Background(), sampleAlert()); len(results) != 0 {
		t.Fatalf("expected empty results, got %v", results)
	}
}
