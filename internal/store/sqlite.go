// Package store provides storage backends for TriageFlow.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/healthbridge/triageflow/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetOrCreateSession(userKey string) (models.Session, error) {
	fresh := NewSession(userKey, time.Now())
	triageJSON, providerJSON, err := marshalSessionData(fresh)
	if err != nil {
		return models.Session{}, err
	}
	// INSERT OR IGNORE keeps concurrent creates for the same key safe: the
	// loser's row vanishes and the follow-up read returns the winner's.
	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fresh.ID, fresh.UserKey, fresh.Stage, fresh.Language, nullableAge(fresh.Demographics.Age),
		fresh.Demographics.Gender, triageJSON, providerJSON, fresh.BookingRef, fresh.CreatedAt, fresh.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore GetOrCreateSession insert failed", "error", err, "userKey", userKey)
		return models.Session{}, fmt.Errorf("failed to create session for %s: %w", userKey, err)
	}
	return s.GetSession(userKey)
}

func (s *SQLiteStore) GetSession(userKey string) (models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE user_key = ?`, userKey)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, models.ErrSessionNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "userKey", userKey)
		return models.Session{}, fmt.Errorf("failed to load session for %s: %w", userKey, err)
	}
	return sess, nil
}

// UpdateSession merges the patch and commits it conditional on the stored
// updated_at still matching the read. Zero rows affected means a concurrent
// writer got there first.
func (s *SQLiteStore) UpdateSession(session models.Session, patch models.SessionPatch) (models.Session, error) {
	updated := session.Apply(patch, time.Now())
	triageJSON, providerJSON, err := marshalSessionData(updated)
	if err != nil {
		return models.Session{}, err
	}
	res, err := s.db.Exec(
		`UPDATE sessions SET stage = ?, language = ?, age = ?, gender = ?, triage_data = ?,
		 provider_data = ?, booking_ref = ?, updated_at = ?
		 WHERE user_key = ? AND updated_at = ?`,
		updated.Stage, updated.Language, nullableAge(updated.Demographics.Age), updated.Demographics.Gender,
		triageJSON, providerJSON, updated.BookingRef, updated.UpdatedAt,
		session.UserKey, session.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateSession failed", "error", err, "userKey", session.UserKey)
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
		slog.Debug("SQLiteStore UpdateSession lost the race", "userKey", session.UserKey)
		return models.Session{}, models.ErrSessionConflict
	}
	slog.Debug("SQLiteStore UpdateSession succeeded", "userKey", session.UserKey, "stage", updated.Stage)
	return updated, nil
}

func (s *SQLiteStore) AddInteraction(rec models.InteractionRecord) error {
	metaJSON, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO interactions (id, session_id, direction, kind, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Direction, rec.Kind, rec.Content, metaJSON, rec.Timestamp,
	)
	if err != nil {
		slog.Error("SQLiteStore AddInteraction failed", "error", err, "sessionID", rec.SessionID)
		return fmt.Errorf("failed to insert interaction for %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetInteractions(sessionID string, limit int) ([]models.InteractionRecord, error) {
	if limit <= 0 {
		// SQLite treats a negative LIMIT as unbounded.
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, session_id, direction, kind, content, metadata, created_at
		 FROM interactions WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		slog.Error("SQLiteStore GetInteractions query failed", "error", err, "sessionID", sessionID)
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

func (s *SQLiteStore) CountSessionsByStage() (map[models.TriageStage]int, error) {
	rows, err := s.db.Query(`SELECT stage, COUNT(*) FROM sessions GROUP BY stage`)
	if err != nil {
		slog.Error("SQLiteStore CountSessionsByStage failed", "error", err)
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

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
