package detector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"oracleguard/internal/config"
	"oracleguard/internal/history"
	"oracleguard/internal/model"
	"oracleguard/internal/scorer"
)

// mlSpoofing runs the external anomaly scorer over a fixed-width feature
// window. Scorer failures are absorbed: the detector simply emits nothing.
type mlSpoofing struct {
	cfg    config.DetectionConfig
	scorer scorer.Scorer
	logger zerolog.Logger
}

func (d *mlSpoofing) Name() string { return "ml_spoofing" }

func (d *mlSpoofing) Detect(ctx context.Context, ev model.FeedEvent, hist *history.Rolling) []model.DetectionResult {
	window := d.cfg.MLWindow
	if hist.Len() < window {
		return nil
	}

	raw, err := d.scorer.Score(ctx, featureWindow(hist, window))
	if err != nil {
		d.logger.Warn().Err(err).Str("feed", ev.FeedName).Msg("scorer call failed, skipping ml detection")
		return nil
	}

	score := clamp01(raw)
	if score <= d.cfg.MLThreshold {
		return nil
	}

	severity := model.SeverityMedium
	switch {
	case score > 0.95:
		severity = model.SeverityCritical
	case score > 0.9:
		severity = model.SeverityHigh
	}

	return []model.DetectionResult{{
		Type:        model.FraudOracleSpoofing,
		Severity:    severity,
		Confidence:  score,
		Score:       score,
		Description: fmt.Sprintf("ML model detected anomaly with score %.4f", score),
		Evidence: map[string]any{
			"ml_score":  score,
			"threshold": d.cfg.MLThreshold,
		},
		PotentialLossUSD: score * 50000,
	}}
}

// featureWindow builds the scorer's fixed-order input: one row per history
// point, columns price, volume, source_count, latency_ms.
func featureWindow(hist *history.Rolling, n int) [][]float64 {
	points := hist.Last(n)
	rows := make([][]float64, len(points))
	for i, p := range points {
		rows[i] = []float64{p.Price, p.Volume, float64(p.SourceCount), p.LatencyMS}
	}
	return rows
}
