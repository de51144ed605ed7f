package model

import (
	"errors"
	"time"
)

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// Rank returns the ordering position of the severity, CRITICAL highest.
func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

type FraudType string

const (
	FraudPriceManipulation FraudType = "PRICE_MANIPULATION"
	FraudFlashLoanAttack   FraudType = "FLASH_LOAN_ATTACK"
	FraudOracleSpoofing    FraudType = "ORACLE_SPOOFING"
	FraudCoordinatedAttack FraudType = "COORDINATED_ATTACK"
	FraudVolumeAnomaly     FraudType = "VOLUME_ANOMALY"
	FraudLatencySpike      FraudType = "LATENCY_SPIKE"
	FraudSourceDegradation FraudType = "SOURCE_DEGRADATION"
	FraudReplayAttack      FraudType = "REPLAY_ATTACK"
	FraudSandwichAttack    FraudType = "SANDWICH_ATTACK"
	FraudMEVExtraction     FraudType = "MEV_EXTRACTION"
)

// FeedEvent is one price-feed update from the oracle bus.
type FeedEvent struct {
	FeedName    string    `json:"feed_name"`
	Price       float64   `json:"price"`
	Volume      float64   `json:"volume"`
	SourceCount int       `json:"source_count"`
	LatencyMS   float64   `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source,omitempty"`
}

var (
	ErrMissingFeedName = errors.New("feed_name is empty")
	ErrBadPrice        = errors.New("price must be > 0")
	ErrBadVolume       = errors.New("volume must be >= 0")
	ErrBadLatency      = errors.New("latency_ms must be >= 0")
)

// Validate reports whether the event is well formed enough to process.
// A zero timestamp is not an error; the pipeline stamps it on arrival.
func (e *FeedEvent) Validate() error {
	if e.FeedName == "" {
		return ErrMissingFeedName
	}
	if e.Price <= 0 {
		return ErrBadPrice
	}
	if e.Volume < 0 {
		return ErrBadVolume
	}
	if e.LatencyMS < 0 {
		return ErrBadLatency
	}
	return nil
}

// DetectionResult is a single detector's finding for one event. It lives
// only for the duration of a pipeline pass and is never persisted.
type DetectionResult struct {
	Type             FraudType
	Severity         Severity
	Confidence       float64
	Score            float64
	Description      string
	Evidence         map[string]any
	PotentialLossUSD float64
}

// Alert is the durable, externally visible form of an admitted detection.
type Alert struct {
	ID                 string         `json:"id"`
	Timestamp          time.Time      `json:"timestamp"`
	FeedName           string         `json:"feed_name"`
	Type               FraudType      `json:"fraud_type"`
	Severity           Severity       `json:"severity"`
	Confidence         float64        `json:"confidence"`
	AnomalyScore       float64        `json:"anomaly_score"`
	Description        string         `json:"description"`
	Evidence           map[string]any `json:"evidence"`
	RecommendedActions []string       `json:"recommended_actions"`
	AffectedContracts  []string       `json:"affected_contracts"`
	PotentialLossUSD   float64        `json:"potential_loss_usd"`
	Acknowledged       bool           `json:"is_acknowledged"`
	AcknowledgedBy     string         `json:"acknowledged_by"`
	ResolutionStatus   string         `json:"resolution_status"`
	Tags               []string       `json:"tags"`
}

// ExternalAnomaly is a pre-classified anomaly from an upstream detector,
// delivered on the anomaly:detected topic.
type ExternalAnomaly struct {
	FeedName      string         `json:"feed_name"`
	Confidence    float64        `json:"confidence"`
	Score         float64        `json:"score"`
	Description   string         `json:"description"`
	Evidence      map[string]any `json:"evidence"`
	PotentialLoss float64        `json:"potential_loss"`
}

// BreakerEvent is published on circuit_breaker:activated/:deactivated.
type BreakerEvent struct {
	FeedName  string    `json:"feed_name"`
	AlertID   string    `json:"alert_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BreakerState is the per-feed circuit breaker snapshot.
type BreakerState struct {
	FeedName    string    `json:"feed_name"`
	Active      bool      `json:"active"`
	ActivatedAt time.Time `json:"activated_at"`
	AlertID     string    `json:"triggering_alert_id,omitempty"`
}
