package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"oracleguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Archive, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:oracleguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			feed_name TEXT NOT NULL,
			fraud_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			confidence REAL NOT NULL,
			anomaly_score REAL NOT NULL,
			description TEXT NOT NULL,
			evidence_json TEXT,
			actions_json TEXT NOT NULL,
			contracts_json TEXT NOT NULL,
			potential_loss_usd REAL NOT NULL,
			resolution_status TEXT NOT NULL,
			tags_json TEXT NOT NULL,
			created_at TEXT NOT NULL
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

func (s *sqliteStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (alert_id, ts, feed_name, fraud_type, severity, confidence, anomaly_score, description, evidence_json, actions_json, contracts_json, potential_loss_usd, resolution_status, tags_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
