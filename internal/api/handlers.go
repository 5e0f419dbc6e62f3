package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/healthbridge/triageflow/internal/messaging"
	"github.com/healthbridge/triageflow/internal/models"
)

// maxWebhookBodySize bounds inbound payload reads.
const maxWebhookBodySize = 1 << 20 // 1 MiB

// verifyWebhookHandler implements the webhook registration handshake: echo
// hub.challenge when the verify token matches.
func (s *Server) verifyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && s.cfg.VerifyToken != "" && token == s.cfg.VerifyToken {
		slog.Info("webhook verification succeeded")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge)); err != nil {
			slog.Error("failed to write webhook challenge", "error", err)
		}
		return
	}
	slog.Warn("webhook verification rejected", "mode", mode)
	writeJSONResponse(w, http.StatusForbidden, models.Error("verification failed"))
}

// webhookHandler is the single ingestion entry point: one raw payload per call.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("failed to read request body"))
		return
	}

	result, err := s.pipeline.Ingest(r.Context(), body)
	if err != nil {
		if errors.Is(err, models.ErrInvalidPayload) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("webhook ingestion failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("ingestion failed"))
		return
	}

	if result.Status == models.APIStatusIgnored {
		writeJSONResponse(w, http.StatusOK, models.Ignored("message ignored"))
		return
	}

	// Reply delivery is best-effort: a send failure must not turn the webhook
	// into an error, or the channel would redeliver an already processed message.
	if s.messenger != nil && result.Intent != nil && result.Session != nil {
		if err := messaging.Deliver(r.Context(), s.messenger, result.Session.UserKey, *result.Intent); err != nil {
			slog.Error("reply delivery failed", "error", err, "userKey", result.Session.UserKey)
		}
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"message_id": result.MessageID,
	}))
}

// sessionHandler returns the session record for a user key.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")
	session, err := s.store.GetSession(userKey)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("session not found"))
			return
		}
		slog.Error("session read failed", "error", err, "userKey", userKey)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(session))
}

// DefaultHistoryLimit bounds history reads when the caller does not pass one.
const DefaultHistoryLimit = 50

// historyHandler returns the interaction log for a user's session, most
// recent first, bounded by ?limit= (default DefaultHistoryLimit).
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")
	session, err := s.store.GetSession(userKey)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("session not found"))
			return
		}
		slog.Error("session read failed", "error", err, "userKey", userKey)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load session"))
		return
	}

	limit := DefaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid limit parameter"))
			return
		}
	}

	records, err := s.store.GetInteractions(session.ID, limit)
	if err != nil {
		slog.Error("history read failed", "error", err, "sessionID", session.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load history"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// statsHandler reports session counts per stage.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountSessionsByStage()
	if err != nil {
		slog.Error("stats read failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to compute stats"))
		return
	}

	total := 0
	byStage := make(map[string]int, len(counts))
	for stage, n := range counts {
		total += n
		byStage[string(stage)] = n
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"total_sessions": total,
		"by_stage":       byStage,
		"emergencies":    counts[models.StageEmergencyDetected],
		"completed":      counts[models.StageCompleted],
	}))
}

// healthHandler reports liveness and store reachability.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountSessionsByStage(); err != nil {
		slog.Error("health check store probe failed", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("store unreachable"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}
