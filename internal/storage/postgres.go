package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"oracleguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Archive, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/oracleguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			alert_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			feed_name TEXT NOT NULL,
			fraud_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			anomaly_score DOUBLE PRECISION NOT NULL,
			description TEXT NOT NULL,
			evidence_json JSONB,
			actions_json JSONB NOT NULL,
			contracts_json JSONB NOT NULL,
			potential_loss_usd DOUBLE PRECISION NOT NULL,
			resolution_status TEXT NOT NULL,
			tags_json JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_feed ON alerts(feed_name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (alert_id, ts, feed_name, fraud_type, severity, confidence, anomaly_score, description, evidence_json, actions_json, contracts_json, potential_loss_usd, resolution_status, tags_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		alert.ID,
		alert.Timestamp.UTC(),
		alert.FeedName,
		string(alert.Type),
		string(alert.Severity),
		alert.Confidence,
		alert.AnomalyScore,
		alert.Description,
		encodeJSON(alert.Evidence),
		encodeJSON(alert.RecommendedActions),
		encodeJSON(alert.AffectedContracts),
		alert.PotentialLossUSD,
		alert.ResolutionStatus,
		encodeJSON(alert.Tags),
		nowUTC(),
	)
	return err
}
