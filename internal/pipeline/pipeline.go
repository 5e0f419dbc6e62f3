// Package pipeline implements webhook ingestion: validate, normalize, filter
// delivery receipts, dedup, load the session, run the state machine, and
// persist the outcome. The pipeline never talks to the messaging channel;
// delivery of the returned intent is the caller's job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/triageflow/internal/models"
	"github.com/healthbridge/triageflow/internal/store"
	"github.com/healthbridge/triageflow/internal/triage"
)

// Pipeline wires the ingestion steps together. Construct once at startup and
// share across requests; all state lives in the store.
type Pipeline struct {
	store  store.Store
	dedup  store.DedupRepo
	engine *triage.Engine
}

// New creates an ingestion pipeline over the given store, dedup repository,
// and state machine.
func New(st store.Store, dedup store.DedupRepo, engine *triage.Engine) *Pipeline {
	return &Pipeline{store: st, dedup: dedup, engine: engine}
}

// Ingest processes one raw webhook delivery end to end and returns the reply
// intent for the caller to deliver. Malformed payloads fail with
// models.ErrInvalidPayload; duplicates and delivery receipts return an
// "ignored" result with no error.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte) (models.IngestResult, error) {
	msg, err := ParseIncoming(raw)
	if err != nil {
		slog.Warn("rejecting inbound payload", "error", err)
		return models.IngestResult{Status: models.APIStatusError}, err
	}

	if msg.Kind == models.KindStatus {
		slog.Debug("delivery receipt short-circuited", "messageID", msg.ChannelMessageID, "status", msg.Text)
		return models.IngestResult{Status: models.APIStatusIgnored, MessageID: msg.ChannelMessageID}, nil
	}

	dup, err := p.dedup.IsDuplicate(msg.ChannelMessageID, msg.UserKey)
	if err != nil {
		return models.IngestResult{Status: models.APIStatusError}, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if dup {
		slog.Info("duplicate delivery ignored", "messageID", msg.ChannelMessageID, "userKey", msg.UserKey)
		return models.IngestResult{Status: models.APIStatusIgnored, MessageID: msg.ChannelMessageID, Duplicate: true}, nil
	}

	session, err := p.store.GetOrCreateSession(msg.UserKey)
	if err != nil {
		return models.IngestResult{Status: models.APIStatusError}, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	// Claiming the message before the transition bounds reprocessing: a
	// duplicate racing past the check above loses this insert and stops here.
	// The claim records "seen", not "succeeded".
	won, err := p.dedup.RecordInbound(msg.ChannelMessageID, msg.UserKey, session.ID, string(raw))
	if err != nil {
		return models.IngestResult{Status: models.APIStatusError}, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if !won {
		slog.Info("lost dedup race to concurrent delivery", "messageID", msg.ChannelMessageID, "userKey", msg.UserKey)
		return models.IngestResult{Status: models.APIStatusIgnored, MessageID: msg.ChannelMessageID, Duplicate: true}, nil
	}

	patch, intent := p.engine.Transition(ctx, session, msg)

	updated := session
	if !patch.IsZero() {
		updated, err = p.store.UpdateSession(session, patch)
		if err != nil {
			if errors.Is(err, models.ErrSessionConflict) {
				// A distinct concurrent message won; this one is already
				// claimed as seen, so the channel's retry will be a no-op.
				slog.Warn("session update lost to concurrent transition",
					"userKey", msg.UserKey, "messageID", msg.ChannelMessageID)
			}
			return models.IngestResult{Status: models.APIStatusError, MessageID: msg.ChannelMessageID}, err
		}
	}

	if err := p.dedup.MarkProcessed(msg.ChannelMessageID, msg.UserKey); err != nil {
		slog.Error("failed to mark message processed", "error", err, "messageID", msg.ChannelMessageID)
	}

	p.appendInteractions(updated, msg, intent)

	slog.Info("inbound message processed", "userKey", msg.UserKey, "messageID", msg.ChannelMessageID,
		"stage", updated.Stage, "intent", intent.Kind)
	return models.IngestResult{
		Status:    models.APIStatusOK,
		MessageID: msg.ChannelMessageID,
		Session:   &updated,
		Intent:    &intent,
	}, nil
}

// appendInteractions logs the inbound message and the reply to the session's
// interaction log. Log failures are reported but never fail the ingestion;
// the transition has already committed.
func (p *Pipeline) appendInteractions(session models.Session, msg models.CanonicalMessage, intent models.OutboundIntent) {
	now := time.Now()
	inboundContent := msg.Text
	if msg.ReplyID != "" {
		inboundContent = msg.ReplyID
	}
	inbound := models.InteractionRecord{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Direction: models.DirectionInbound,
		Kind:      msg.Kind,
		Content:   inboundContent,
		Metadata:  map[string]string{models.MetadataKeyChannelMessageID: msg.ChannelMessageID},
		Timestamp: now,
	}
	if err := p.store.AddInteraction(inbound); err != nil {
		slog.Error("failed to append inbound interaction", "error", err, "sessionID", session.ID)
	}

	outbound := models.InteractionRecord{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Direction: models.DirectionOutbound,
		Kind:      intent.RecordKind(),
		Content:   intent.Body,
		Timestamp: now.Add(time.Millisecond),
	}
	if err := p.store.AddInteraction(outbound); err != nil {
		slog.Error("failed to append outbound interaction", "error", err, "sessionID", session.ID)
	}
}
