// Package store provides storage backends for TriageFlow.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/healthbridge/triageflow/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetOrCreateSession(userKey string) (models.Session, error) {
	fresh := NewSession(userKey, time.Now())
	triageJSON, providerJSON, err := marshalSessionData(fresh)
	if err != nil {
		return models.Session{}, err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (user_key) DO NOTHING`,
		fresh.ID, fresh.UserKey, fresh.Stage, fresh.Language, nullableAge(fresh.Demographics.Age),
		fresh.Demographics.Gender, triageJSON, providerJSON, fresh.BookingRef, fresh.CreatedAt, fresh.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore GetOrCreateSession insert failed", "error", err, "userKey", userKey)
		return models.Session{}, fmt.Errorf("failed to create session for %s: %w", userKey, err)
	}
	return s.GetSession(userKey)
}

func (s *PostgresStore) GetSession(userKey string) (models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE user_key = $1`, userKey)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, models.ErrSessionNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "userKey", userKey)
		return models.Session{}, fmt.Errorf("failed to load session for %s: %w", userKey, err)
	}
	return sess, nil
}

// UpdateSession merges the patch and commits it conditional on the stored
// updated_at still matching the read. Zero rows affected means a concurrent
// writer got there first.
func (s *PostgresStore) UpdateSession(session models.Session, patch models.SessionPatch) (models.Session, error) {
	updated := session.Apply(patch, time.Now())
	triageJSON, providerJSON, err := marshalSessionData(updated)
	if err != nil {
		return models.Session{}, err
	}
	res, err := s.db.Exec(
		`UPDATE sessions SET stage = $1, language = $2, age = $3, gender = $4, triage_data = $5,
		 provider_data = $6, booking_ref = $7, updated_at = $8
		 WHERE user_key = $9 AND updated_at = $10`,
		updated.Stage, updated.Language, nullableAge(updated.Demographics.Age), updated.Demographics.Gender,
		triageJSON, providerJSON, updated.BookingRef, updated.UpdatedAt,
		session.UserKey, session.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateSession failed", "error", err, "userKey", session.UserKey)
		return models.Session{}, fmt.Errorf("failed to update session for %s: %w", session.UserKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Session{}, fmt.Errorf("update rows affected check failed: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetSession(session.UserKey); errors.Is(getErr, models.ErrSessionNotFound) {
			return models.Session{}, models.ErrSessionNotFound
		}
		slog.Debug("PostgresStore UpdateSession lost the race", "userKey", session.UserKey)
		return models.Session{}, models.ErrSessionConflict
	}
	slog.Debug("PostgresStore UpdateSession succeeded", "userKey", session.UserKey, "stage", updated.Stage)
	return updated, nil
}

func (s *PostgresStore) AddInteraction(rec models.InteractionRecord) error {
	metaJSON, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO interactions (id, session_id, direction, kind, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.SessionID, rec.Direction, rec.Kind, rec.Content, metaJSON, rec.Timestamp,
	)
	if err != nil {
		slog.Error("PostgresStore AddInteraction failed", "error", err, "sessionID", rec.SessionID)
		return fmt.Errorf("failed to insert interaction for %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) GetInteractions(sessionID string, limit int) ([]models.InteractionRecord, error) {
	// LIMIT NULL is unbounded in Postgres.
	var bound sql.NullInt64
	if limit > 0 {
		bound = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := s.db.Query(
		`SELECT id, session_id, direction, kind, content, metadata, created_at
		 FROM interactions WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`, sessionID, bound)
	if err != nil {
		slog.Error("PostgresStore GetInteractions query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var records []models.InteractionRecord
	for rows.Next() {
		rec, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interaction rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) CountSessionsByStage() (map[models.TriageStage]int, error) {
	rows, err := s.db.Query(`SELECT stage, COUNT(*) FROM sessions GROUP BY stage`)
	if err != nil {
		slog.Error("PostgresStore CountSessionsByStage failed", "error", err)
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TriageStage]int)
	for rows.Next() {
		var stage models.TriageStage
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("failed to scan stage count: %w", err)
		}
		counts[stage] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stage counts: %w", err)
	}
	return counts, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
