package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"oracleguard/internal/model"
)

// recommendedActions is the static remediation playbook per fraud type,
// ordered by priority.
var recommendedActions = map[model.FraudType][]string{
	model.FraudPriceManipulation: {
		"Halt oracle updates temporarily",
		"Cross-reference with other sources",
		"Review recent oracle submissions",
		"Check for coordinated attack patterns",
	},
	model.FraudFlashLoanAttack: {
		"CRITICAL: Pause affected contracts immediately",
		"Enable TWAP-based pricing",
		"Increase oracle heartbeat frequency",
		"Review transaction sequencing",
	},
	model.FraudOracleSpoofing: {
		"Verify oracle source authenticity",
		"Check ZK proof validity",
		"Slash suspicious oracles",
		"Enable stricter deviation checks",
	},
	model.FraudSourceDegradation: {
		"Increase minimum source threshold",
		"Activate backup oracles",
		"Monitor for oracle censorship",
		"Enable emergency mode",
	},
	model.FraudSandwichAttack: {
		"Review MEV protection measures",
		"Implement private transaction pool",
		"Add slippage protection",
		"Monitor mempool activity",
	},
}

var defaultActions = []string{"Monitor closely", "Investigate further"}

// mevTypes get the MEV_RELATED tag.
var mevTypes = map[model.FraudType]bool{
	model.FraudFlashLoanAttack: true,
	model.FraudSandwichAttack:  true,
}

// Factory deterministically builds alerts from admitted detections.
type Factory struct {
	contracts map[string][]string
}

func NewFactory(contracts map[string][]string) *Factory {
	return &Factory{contracts: contracts}
}

// Build converts one detection into a fully formed alert stamped at ts.
func (f *Factory) Build(feed string, det model.DetectionResult, ts time.Time) model.Alert {
	return model.Alert{
		ID:                 AlertID(feed, det.Type, ts),
		Timestamp:          ts,
		FeedName:           feed,
		Type:               det.Type,
		Severity:           det.Severity,
		Confidence:         det.Confidence,
		AnomalyScore:       det.Score,
		Description:        det.Description,
		Evidence:           det.Evidence,
		RecommendedActions: actionsFor(det.Type, det.Severity),
		AffectedContracts:  f.affectedContracts(feed),
		PotentialLossUSD:   det.PotentialLossUSD,
		ResolutionStatus:   "OPEN",
		Tags:               tagsFor(det.Type, det.Severity),
	}
}

// AlertID is a deterministic digest of (feed, fraud type, timestamp).
func AlertID(feed string, fraudType model.FraudType, ts time.Time) string {
	sum := sha256.Sum256([]byte(feed + ":" + string(fraudType) + ":" + ts.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:16]
}

func actionsFor(fraudType model.FraudType, severity model.Severity) []string {
	base, ok := recommendedActions[fraudType]
	if !ok {
		base = defaultActions
	}
	if severity == model.SeverityCritical {
		out := make([]string, 0, len(base)+1)
		out = append(out, "EMERGENCY: Activate circuit breaker NOW")
		return append(out, base...)
	}
	return append([]string{}, base...)
}

// affectedContracts resolves the feed's consumers from the configured map,
// falling back to a derived placeholder address when the feed is unmapped.
func (f *Factory) affectedContracts(feed string) []string {
	if list, ok := f.contracts[feed]; ok && len(list) > 0 {
		return append([]string{}, list...)
	}
	sum := sha256.Sum256([]byte(feed))
	return []string{"0x" + hex.EncodeToString(sum[:])[:40]}
}

func tagsFor(fraudType model.FraudType, severity model.Severity) []string {
	tags := []string{string(fraudType), string(severity)}
	if severity.AtLeast(model.SeverityHigh) {
		tags = append(tags, "URGENT")
	}
	if mevTypes[fraudType] {
		tags = append(tags, "MEV_RELATED")
	}
	return tags
}
