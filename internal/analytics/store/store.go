// Package store persists diagnostic events and periodic aggregate snapshots
// to PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

// Schema is applied by EnsureSchema.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS diagnostic_events (
	    id           TEXT PRIMARY KEY,
	    type         TEXT NOT NULL,
	    mode         TEXT NOT NULL DEFAULT '',
	    symptoms     TEXT[] NOT NULL,
	    disease      TEXT NOT NULL DEFAULT '',
	    confidence   DOUBLE PRECISION NOT NULL,
	    triage_level TEXT NOT NULL DEFAULT '',
	    specialist   TEXT NOT NULL DEFAULT '',
	    fallback     BOOLEAN NOT NULL DEFAULT FALSE,
	    request_id   TEXT NOT NULL DEFAULT '',
	    created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS diagnostic_events_created_at_idx ON diagnostic_events (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
	    id          BIGSERIAL PRIMARY KEY,
	    data        JSONB NOT NULL,
	    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.EnsureSchema(ctx, Schema...)
}

// InsertEvent stores one event. Redelivered events are ignored.
func (s *Store) InsertEvent(ctx context.Context, e analytics.DiagnosticEvent) error {
	return s.InsertEvents(ctx, []analytics.DiagnosticEvent{e})
}

// InsertEvents stores events in one transaction.
func (s *Store) InsertEvents(ctx context.Context, events []analytics.DiagnosticEvent) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO diagnostic_events
			    (id, type, mode, symptoms, disease, confidence, triage_level, specialist, fallback, request_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("preparing event insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range events {
			symptoms := e.Symptoms
			if symptoms == nil {
				symptoms = []string{}
			}
			_, err := stmt.ExecContext(ctx,
				e.ID, string(e.Type), e.Mode, pq.Array(symptoms), e.Disease, e.Confidence,
				string(e.TriageLevel), e.Specialist, e.Fallback, e.RequestID, e.Timestamp,
			)
			if err != nil {
				return fmt.Errorf("inserting event %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// RecentEvents returns up to limit report events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]analytics.DiagnosticEvent, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT id, type, mode, symptoms, disease, confidence, triage_level, specialist, fallback, request_id, created_at
		FROM diagnostic_events
		WHERE type = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(analytics.EventReport), limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []analytics.DiagnosticEvent
	for rows.Next() {
		var (
			e      analytics.DiagnosticEvent
			typ    string
			triage string
		)
		if err := rows.Scan(&e.ID, &typ, &e.Mode, pq.Array(&e.Symptoms), &e.Disease, &e.Confidence,
			&triage, &e.Specialist, &e.Fallback, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.Type = analytics.EventType(typ)
		e.TriageLevel = proto.TriageLevel(triage)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveSnapshot persists a stats snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.DiagnosisStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
		data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_events", stats.TotalEvents,
		"reports", stats.Reports,
	)
	return nil
}

// LatestSnapshot loads the most recent snapshot. Returns nil, nil if no
// snapshots exist yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.DiagnosisStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var stats analytics.DiagnosisStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// StartPeriodicSave snapshots the aggregator every interval and once more
// on shutdown.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}
