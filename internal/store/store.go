// Package store provides storage backends for TriageFlow.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backed stores selected by DSN. All backends implement the same
// Store and DedupRepo contracts; session writes go through a merge-update with
// optimistic concurrency, never a blind overwrite.
package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/triageflow/internal/models"
)

// Store is the session persistence contract.
//
// UpdateSession applies a partial update on top of a previously read session
// record. The read record's UpdatedAt acts as the optimistic concurrency
// token: if another writer committed in between, the update fails with
// models.ErrSessionConflict and nothing is written.
type Store interface {
	// GetOrCreateSession returns the session for userKey, creating it in the
	// initial stage if none exists. Concurrent creates for the same key are
	// safe; exactly one record survives.
	GetOrCreateSession(userKey string) (models.Session, error)

	// GetSession returns the session for userKey or models.ErrSessionNotFound.
	GetSession(userKey string) (models.Session, error)

	// UpdateSession merges patch into the given (previously read) session and
	// persists the result, conditional on the stored UpdatedAt still matching
	// session.UpdatedAt.
	UpdateSession(session models.Session, patch models.SessionPatch) (models.Session, error)

	// AddInteraction appends one record to the interaction log.
	AddInteraction(rec models.InteractionRecord) error

	// GetInteractions returns the interaction log for a session, most recent
	// first. limit bounds the number of records returned; limit <= 0 returns
	// the full log.
	GetInteractions(sessionID string, limit int) ([]models.InteractionRecord, error)

	// CountSessionsByStage returns the number of sessions per stage.
	CountSessionsByStage() (map[models.TriageStage]int, error)

	Close() error
}

// NewSession builds a fresh session record for userKey.
func NewSession(userKey string, now time.Time) models.Session {
	return models.Session{
		ID:        uuid.New().String(),
		UserKey:   userKey,
		Stage:     models.StageInitial,
		Language:  "",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InMemoryStore is a map-backed store for tests and local development.
type InMemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]models.Session // keyed by userKey
	interactions map[string][]models.InteractionRecord
	dedup        map[dedupKey]DedupRecord
}

// Compile-time checks that InMemoryStore satisfies both contracts.
var (
	_ Store     = (*InMemoryStore)(nil)
	_ DedupRepo = (*InMemoryStore)(nil)
)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:     make(map[string]models.Session),
		interactions: make(map[string][]models.InteractionRecord),
		dedup:        make(map[dedupKey]DedupRecord),
	}
}

func (s *InMemoryStore) GetOrCreateSession(userKey string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userKey]; ok {
		return sess, nil
	}
	sess := NewSession(userKey, time.Now())
	s.sessions[userKey] = sess
	slog.Debug("InMemoryStore created session", "userKey", userKey, "sessionID", sess.ID)
	return sess, nil
}

func (s *InMemoryStore) GetSession(userKey string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userKey]
	if !ok {
		return models.Session{}, models.ErrSessionNotFound
	}
	return sess, nil
}

func (s *InMemoryStore) UpdateSession(session models.Session, patch models.SessionPatch) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.UserKey]
	if !ok {
		return models.Session{}, models.ErrSessionNotFound
	}
	if !stored.UpdatedAt.Equal(session.UpdatedAt) {
		slog.Debug("InMemoryStore UpdateSession lost the race", "userKey", session.UserKey)
		return models.Session{}, models.ErrSessionConflict
	}
	updated := stored.Apply(patch, time.Now())
	s.sessions[session.UserKey] = updated
	return updated, nil
}

func (s *InMemoryStore) AddInteraction(rec models.InteractionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[rec.SessionID] = append(s.interactions[rec.SessionID], rec)
	return nil
}

func (s *InMemoryStore) GetInteractions(sessionID string, limit int) ([]models.InteractionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.interactions[sessionID]
	// Records are appended oldest first; reverse into newest-first order.
	out := make([]models.InteractionRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountSessionsByStage() (map[models.TriageStage]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.TriageStage]int)
	for _, sess := range s.sessions {
		counts[sess.Stage]++
	}
	return counts, nil
}

func (s *InMemoryStore) Close() error { return nil }
