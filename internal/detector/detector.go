package detector

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"oracleguard/internal/config"
	"oracleguard/internal/history"
	"oracleguard/internal/model"
	"oracleguard/internal/scorer"
)

// Detector inspects one feed event against the feed's rolling history,
// already updated with the event. Detectors are independent: none reads
// another's output, and all run on every event.
type Detector interface {
	Name() string
	Detect(ctx context.Context, ev model.FeedEvent, hist *history.Rolling) []model.DetectionResult
}

// Bank is the fixed, ordered set of detectors evaluated per event.
type Bank struct {
	detectors []Detector
	logger    zerolog.Logger
}

func NewBank(cfg config.DetectionConfig, sc scorer.Scorer, logger zerolog.Logger) *Bank {
	detectors := []Detector{
		&priceManipulation{cfg: cfg},
		&volumeAnomaly{cfg: cfg},
		&latencySpike{cfg: cfg},
		&sourceDegradation{cfg: cfg},
		&sandwichAttack{},
	}
	if sc != nil {
		detectors = append(detectors, &mlSpoofing{cfg: cfg, scorer: sc, logger: logger})
	}
	return &Bank{
		detectors: detectors,
		logger:    logger.With().Str("component", "detector_bank").Logger(),
	}
}

// Run evaluates every detector, isolating each so one failure cannot
// suppress the others' results for the same event.
func (b *Bank) Run(ctx context.Context, ev model.FeedEvent, hist *history.Rolling) []model.DetectionResult {
	out := make([]model.DetectionResult, 0, 2)
	for _, d := range b.detectors {
		results := b.runOne(ctx, d, ev, hist)
		out = append(out, results...)
	}
	return out
}

func (b *Bank) runOne(ctx context.Context, d Detector, ev model.FeedEvent, hist *history.Rolling) (results []model.DetectionResult) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("detector", d.Name()).Any("panic", r).Msg("detector panicked, skipping")
			results = nil
		}
	}()
	return d.Detect(ctx, ev, hist)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// priceManipulation flags a sudden move against the previous price and,
// within the same trigger, checks the last four points for a flash-loan
// reversal pattern.
type priceManipulation struct {
	cfg config.DetectionConfig
}

func (d *priceManipulation) Name() string { return "price_manipulation" }

func (d *priceManipulation) Detect(_ context.Context, ev model.FeedEvent, hist *history.Rolling) []model.DetectionResult {
	prices := hist.Prices(2)
	if len(prices) < 2 {
		return nil
	}
	previous, current := prices[0], prices[1]
	if previous == 0 {
		return nil
	}

	change := math.Abs(current-previous) / previous
	if change <= d.cfg.PriceChangeThreshold {
		return nil
	}

	severity := model.SeverityHigh
	if change > d.cfg.CriticalPriceChange {
		severity = model.SeverityCritical
	}
	loss := change * ev.Volume * 0.1

	results := []model.DetectionResult{{
		Type:        model.FraudPriceManipulation,
		Severity:    severity,
		Confidence:  clamp01(change / d.cfg.PriceChangeThreshold),
		Score:       clamp01(change),
		Description: fmt.Sprintf("Sudden price change of %.2f%% detected", change*100),
		Evidence: map[string]any{
			"previous_price":    previous,
			"current_price":     current,
			"change_percentage": change * 100,
		},
		PotentialLossUSD: loss,
	}}

	if d.isFlashLoanPattern(hist) {
		results = append(results, model.DetectionResult{
			Type:        model.FraudFlashLoanAttack,
			Severity:    model.SeverityCritical,
			Confidence:  0.85,
			Score:       0.9,
			Description: "Potential flash loan attack detected",
			Evidence: map[string]any{
				"pattern":   "rapid_reversal",
				"timeframe": "< 1 block",
			},
			PotentialLossUSD: loss * 2,
		})
	}
	return results
}

// isFlashLoanPattern looks for two large opposite-direction moves within
// the last four price points.
func (d *priceManipulation) isFlashLoanPattern(hist *history.Rolling) bool {
	recent := hist.Prices(4)
	if len(recent) < 4 {
		return false
	}
	if recent[0] == 0 || recent[2] == 0 {
		return false
	}
	move1 := (recent[1] - recent[0]) / recent[0]
	move2 := (recent[3] - recent[2]) / recent[2]
	if math.Abs(move1) <= d.cfg.FlashLoanMove || math.Abs(move2) <= d.cfg.FlashLoanMove {
		return false
	}
	return move1*move2 < 0
}

// volumeAnomaly compares the current volume against the mean of the
// preceding window.
type volumeAnomaly struct {
	cfg config.DetectionConfig
}

func (d *volumeAnomaly) Name() string { return "volume_anomaly" }

func (d *volumeAnomaly) Detect(_ context.Context, _ model.FeedEvent, hist *history.Rolling) []model.DetectionResult {
	volumes := hist.Volumes(hist.Len())
	if len(volumes) < 10 {
		return nil
	}
	current := volumes[len(volumes)-1]
	var sum float64
	for _, v := range volumes[:len(volumes)-1] {
		sum += v
	}
	avg := sum / float64(len(volumes)-1)
	if avg == 0 {
		return nil
	}

	ratio := current / avg
	if ratio <= d.cfg.VolumeSpikeThreshold {
		return nil
	}

	severity := model.SeverityMedium
	if ratio > 10 {
		severity = model.SeverityHigh
	}
	return []model.DetectionResult{{
		Type:        model.FraudVolumeAnomaly,
		Severity:    severity,
		Confidence:  clamp01(ratio / (d.cfg.VolumeSpikeThreshold * 2)),
		Score:       clamp01(ratio / 10),
		Description: fmt.Sprintf("Volume spike of %.1fx average detected", ratio),
		Evidence: map[string]any{
			"average_volume": avg,
			"current_volume": current,
			"spike_ratio":    ratio,
		},
		PotentialLossUSD: current * 0.01,
	}}
}

// latencySpike flags stale oracle updates. No direct loss estimate; the
// risk is acting on stale data.
type latencySpike struct {
	cfg config.DetectionConfig
}

func (d *latencySpike) Name() string { return "latency_spike" }

func (d *latencySpike) Detect(_ context.Context, ev model.FeedEvent, _ *history.Rolling) []model.DetectionResult {
	if ev.LatencyMS <= d.cfg.LatencyThresholdMS {
		return nil
	}
	severity := model.SeverityMedium
	if ev.LatencyMS > 2000 {
		severity = model.SeverityHigh
	}
	return []model.DetectionResult{{
		Type:        model.FraudLatencySpike,
		Severity:    severity,
		Confidence:  0.9,
		Score:       clamp01(ev.LatencyMS / d.cfg.LatencyThresholdMS),
		Description: fmt.Sprintf("Oracle latency of %.0fms detected", ev.LatencyMS),
		Evidence: map[string]any{
			"latency_ms": ev.LatencyMS,
			"threshold":  d.cfg.LatencyThresholdMS,
		},
	}}
}

// sourceDegradation flags feeds running on too few independent oracles.
type sourceDegradation struct {
	cfg config.DetectionConfig
}

func (d *sourceDegradation) Name() string { return "source_degradation" }

func (d *sourceDegradation) Detect(_ context.Context, ev model.FeedEvent, _ *history.Rolling) []model.DetectionResult {
	minimum := d.cfg.MinimumSources
	if ev.SourceCount >= minimum {
		return nil
	}
	severity := model.SeverityHigh
	if ev.SourceCount <= 1 {
		severity = model.SeverityCritical
	}
	return []model.DetectionResult{{
		Type:        model.FraudSourceDegradation,
		Severity:    severity,
		Confidence:  0.95,
		Score:       clamp01(1 - float64(ev.SourceCount)/float64(minimum)),
		Description: fmt.Sprintf("Only %d oracle sources available", ev.SourceCount),
		Evidence: map[string]any{
			"source_count":     ev.SourceCount,
			"minimum_required": minimum,
		},
		PotentialLossUSD: 10000 * float64(minimum-ev.SourceCount),
	}}
}

// sandwichAttack matches a bump-then-revert pattern over the last five
// points: a >=2% rise two steps back that returns within 1% of the
// original by the current point.
type sandwichAttack struct{}

func (d *sandwichAttack) Name() string { return "sandwich_attack" }

func (d *sandwichAttack) Detect(_ context.Context, _ model.FeedEvent, hist *history.Rolling) []model.DetectionResult {
	recent := hist.Prices(5)
	if len(recent) < 5 || recent[0] == 0 {
		return nil
	}
	bumped := recent[2] > recent[0]*1.02
	reverted := math.Abs(recent[4]-recent[0])/recent[0] < 0.01
	if !bumped || !reverted {
		return nil
	}
	return []model.DetectionResult{{
		Type:        model.FraudSandwichAttack,
		Severity:    model.SeverityHigh,
		Confidence:  0.75,
		Score:       0.8,
		Description: "Potential sandwich attack pattern detected",
		Evidence: map[string]any{
			"price_pattern":  append([]float64{}, recent...),
			"peak_deviation": (recent[2] - recent[0]) / recent[0],
		},
		PotentialLossUSD: recent[0] * 0.02,
	}}
}
