// Package store provides the DedupRepo interface for inbound message deduplication.
package store

import (
	"log/slog"
	"time"
)

// DedupRecord represents an inbound message deduplication record. Records mark
// "seen", not "succeeded": a message claimed here is never re-run through the
// state machine, even if downstream handling failed afterward.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	UserKey     string     `json:"user_key"`
	SessionID   string     `json:"session_id"`
	Payload     string     `json:"payload,omitempty"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo defines the interface for inbound message deduplication. Messages
// are identified by the pair (channel message id, user key); channel message
// ids are only unique per sender.
type DedupRepo interface {
	// IsDuplicate checks if a message was already recorded.
	IsDuplicate(messageID, userKey string) (bool, error)

	// RecordInbound claims a message before it reaches the state machine.
	// Returns false if another delivery already claimed it (duplicate).
	RecordInbound(messageID, userKey, sessionID, payload string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(messageID, userKey string) error
}

type dedupKey struct {
	messageID string
	userKey   string
}

func (s *InMemoryStore) IsDuplicate(messageID, userKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[dedupKey{messageID, userKey}]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, userKey, sessionID, payload string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dedupKey{messageID, userKey}
	if _, ok := s.dedup[key]; ok {
		slog.Debug("InMemoryStore duplicate inbound", "messageID", messageID, "userKey", userKey)
		return false, nil
	}
	s.dedup[key] = DedupRecord{
		MessageID:  messageID,
		UserKey:    userKey,
		SessionID:  sessionID,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID, userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dedupKey{messageID, userKey}
	rec, ok := s.dedup[key]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.dedup[key] = rec
	return nil
}
