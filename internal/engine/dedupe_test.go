package engine

import (
	"testing"
	"time"

	"oracleguard/internal/model"
)

func TestDedupeCooldown(t *testing.T) {
	d := NewDeduplicator(time.Minute)

	if !d.ShouldAlert("ETH/USD", model.FraudPriceManipulation, model.SeverityHigh) {
		t.Fatalf("first alert must pass")
	}
	if d.ShouldAlert("ETH/USD", model.FraudPriceManipulation, model.SeverityHigh) {
		t.Fatalf("repeat within cooldown must be suppressed")
	}
	// Distinct fraud type on the same feed is a different key.
	if !d.ShouldAlert("ETH/USD", model.FraudVolumeAnomaly, model.SeverityMedium) {
		t.Fatalf("distinct fraud type must pass")
	}
	// Distinct feed as well.
	if !d.ShouldAlert("BTC/USD", model.FraudPriceManipulation, model.SeverityHigh) {
		t.Fatalf("distinct feed must pass")
	}
}

func TestDedupeCriticalBypass(t *testing.T) {
	d := NewDeduplicator(time.Minute)

	if !d.ShouldAlert("ETH/USD", model.FraudPriceManipulation, model.SeverityHigh) {
		t.Fatalf("first alert must pass")
	}
	// CRITICAL always passes and refreshes the cooldown.
	if !d.ShouldAlert("ETH/USD", model.FraudPriceManipulation, model.SeverityCritical) {
		t.Fatalf("critical must bypass cooldown")
	}
	if !d.ShouldAlert("ETH/USD", model.FraudPriceManipulation, model.SeverityCritical) {
		t.Fatalf("critical must always bypass")
	}
	if d.ShouldAlert("ETH/USD", model.FraudPriceManipulation, model.SeverityHigh) {
		t.Fatalf("non-critical must stay suppressed after critical refresh")
	}

	// Counters track admitted non-critical alerts only.
	stats := d.Stats()
	if stats["ETH/USD|PRICE_MANIPULATION"] != 1 {
		t.Fatalf("expected counter 1, got %d", stats["ETH/USD|PRICE_MANIPULATION"])
	}
}

func TestDedupeZeroCooldown(t *testing.T) {
	d := NewDeduplicator(0)
	for i := 0; i < 3; i++ {
		if !d.ShouldAlert("ETH/USD", model.FraudLatencySpike, model.SeverityMedium) {
			t.Fatalf("zero cooldown must never suppress")
		}
	}
	if d.Stats()["ETH/USD|LATENCY_SPIKE"] != 3 {
		t.Fatalf("expected 3 admitted alerts")
	}
}

func TestDedupeSetCooldown(t *testing.T) {
	d := NewDeduplicator(time.Hour)
	d.ShouldAlert("ETH/USD", model.FraudPriceManipulation, model.SeverityHigh)
	if d.ShouldAlert("ETH/USD", model.FraudPriceManipulation, model.SeverityHigh) {
		t.Fatalf("repeat within cooldown must be suppressed")
	}

	d.SetCooldown(0)
	if !d.ShouldAlert("ETH/USD", model.FraudPriceManipulation, model.SeverityHigh) {
		t.Fatalf("shortened cooldown must apply to existing keys")
	}
}

func TestDedupeCleanup(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	d.ShouldAlert("ETH/USD", model.FraudPriceManipulation, model.SeverityHigh)
	d.ShouldAlert("BTC/USD", model.FraudPriceManipulation, model.SeverityHigh)

	if removed := d.Cleanup(time.Hour); removed != 0 {
		t.Fatalf("fresh entries must survive, removed %d", removed)
	}
	if removed := d.Cleanup(-time.Second); removed != 2 {
		t.Fatalf("expected both entries removed, got %d", removed)
	}
}
