// Package triage implements the conversation state machine driving a session
// from first contact through language selection, demographics, symptom
// collection, severity assessment, provider matching, and booking.
//
// The engine is deliberately free of I/O: Transition computes a session patch
// and an outbound intent from the session and the inbound message alone, so
// every stage is unit-testable without a store or a channel. Persistence and
// delivery are the pipeline's concern.
package triage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/healthbridge/triageflow/internal/assess"
	"github.com/healthbridge/triageflow/internal/classify"
	"github.com/healthbridge/triageflow/internal/i18n"
	"github.com/healthbridge/triageflow/internal/models"
	"github.com/healthbridge/triageflow/internal/providers"
	"github.com/healthbridge/triageflow/internal/util"
)

// Engine computes state transitions for triage sessions.
type Engine struct {
	assessor  assess.Assessor
	directory providers.Directory
	refgen    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithBookingRefGenerator overrides the booking reference generator (for tests).
func WithBookingRefGenerator(gen func() string) Option {
	return func(e *Engine) { e.refgen = gen }
}

// NewEngine creates a triage engine using the given assessment backend and
// provider directory.
func NewEngine(assessor assess.Assessor, directory providers.Directory, opts ...Option) *Engine {
	e := &Engine{
		assessor:  assessor,
		directory: directory,
		refgen:    util.GenerateBookingRef,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transition computes the next state for a session given one inbound message.
// It returns a partial session update and the reply to send. It never returns
// an error: collaborator failures degrade to a retry prompt with the stage
// unchanged, so a transient assessment outage cannot wedge a session.
func (e *Engine) Transition(ctx context.Context, session models.Session, msg models.CanonicalMessage) (models.SessionPatch, models.OutboundIntent) {
	lang := session.Language
	if lang == "" {
		lang = i18n.DefaultLanguage
	}

	// Emergency check runs before anything else, from any stage.
	if session.Stage != models.StageEmergencyDetected {
		if res := classify.CheckEmergency(msg.Text, lang); res.IsEmergency {
			slog.Info("emergency keyword detected", "userKey", session.UserKey,
				"stage", session.Stage, "keyword", res.MatchedKeyword, "confidence", res.Confidence)
			return patchStage(models.StageEmergencyDetected), models.OutboundIntent{
				Kind:           models.IntentEmergency,
				Body:           i18n.Lookup(lang, i18n.KeyEmergency),
				MatchedKeyword: res.MatchedKeyword,
			}
		}
	}

	// Structured replies route globally before stage dispatch, so a user can
	// act on a button sent out of turn. Unrecognized ids fall through to the
	// stage handler as free text.
	if msg.ReplyID != "" {
		if patch, intent, handled := e.handleReply(ctx, session, msg, lang); handled {
			return patch, intent
		}
	}

	switch session.Stage {
	case models.StageInitial:
		return e.handleInitial(session)
	case models.StageLanguageSelection:
		return e.handleLanguageSelection(session, msg)
	case models.StageCollectingDemographics:
		return e.handleDemographics(session, msg, lang)
	case models.StageCollectingSymptoms:
		return e.handleSymptoms(session, msg, lang)
	case models.StageAssessingSeverity:
		return e.handleAssessment(ctx, session, msg, lang)
	case models.StageProviderMatching:
		return e.handleProviderMatching(ctx, session, msg, lang)
	case models.StageAppointmentBooking:
		return e.handleBooking(session, lang)
	case models.StageCompleted:
		return models.SessionPatch{}, textIntent(lang, i18n.KeyCompleted)
	case models.StageEmergencyDetected:
		return models.SessionPatch{}, textIntent(lang, i18n.KeyEmergencyClosed)
	default:
		slog.Warn("session in unknown stage, restarting flow", "userKey", session.UserKey, "stage", session.Stage)
		return e.handleInitial(session)
	}
}

// handleReply dispatches a parsed structured reply id. The bool result
// reports whether the reply was consumed; false falls through to stage dispatch.
func (e *Engine) handleReply(ctx context.Context, session models.Session, msg models.CanonicalMessage, lang string) (models.SessionPatch, models.OutboundIntent, bool) {
	intent := ParseReplyID(msg.ReplyID)
	switch intent.Kind {
	case models.ReplySelectLanguage:
		return e.selectLanguage(session, intent.Language)
	case models.ReplySelectProvider:
		if session.Stage != models.StageProviderMatching {
			return models.SessionPatch{}, models.OutboundIntent{}, false
		}
		patch, out := e.selectProvider(ctx, session, intent.ProviderID, lang)
		return patch, out, true
	case models.ReplyInvokeAction:
		switch intent.Action {
		case ActionCallEmergency:
			slog.Info("emergency action invoked", "userKey", session.UserKey, "stage", session.Stage)
			return patchStage(models.StageEmergencyDetected), models.OutboundIntent{
				Kind: models.IntentEmergency,
				Body: i18n.Lookup(lang, i18n.KeyEmergency),
			}, true
		case ActionFindHospitals:
			out := e.providerListIntent(ctx, session, lang)
			return models.SessionPatch{}, out, true
		}
		return models.SessionPatch{}, models.OutboundIntent{}, false
	default:
		return models.SessionPatch{}, models.OutboundIntent{}, false
	}
}

// selectLanguage applies a language button press. Early in the flow it also
// advances past language selection; later it just switches the language and
// repeats the current prompt so the user is not thrown back.
func (e *Engine) selectLanguage(session models.Session, code string) (models.SessionPatch, models.OutboundIntent, bool) {
	patch := models.SessionPatch{Language: &code}
	if session.Stage.Rank() >= 0 && session.Stage.Rank() <= models.StageLanguageSelection.Rank() {
		stage := models.StageCollectingDemographics
		patch.Stage = &stage
		return patch, textIntent(code, i18n.KeyDemographics), true
	}
	return patch, e.promptForStage(session, code), true
}

// selectProvider resolves a provider selection during matching. Unknown ids
// re-emit the candidate list instead of failing.
func (e *Engine) selectProvider(ctx context.Context, session models.Session, providerID, lang string) (models.SessionPatch, models.OutboundIntent) {
	candidate, found := e.directory.Lookup(providerID)
	if !found {
		slog.Warn("provider selection did not resolve", "userKey", session.UserKey, "providerID", providerID)
		return models.SessionPatch{}, e.providerListIntent(ctx, session, lang)
	}
	stage := models.StageAppointmentBooking
	return models.SessionPatch{
		Stage: &stage,
		Provider: &models.ProviderRef{
			ID:        candidate.ID,
			Name:      candidate.Name,
			Specialty: candidate.Specialty,
		},
	}, textIntent(lang, i18n.KeyBookingPrompt)
}

func (e *Engine) handleInitial(session models.Session) (models.SessionPatch, models.OutboundIntent) {
	slog.Info("starting triage conversation", "userKey", session.UserKey)
	return patchStage(models.StageLanguageSelection), welcomeIntent()
}

// handleLanguageSelection resolves a language from free text, falling back to
// keyword detection and finally the default, and always moves on to
// demographics. Button presses never reach here; they are consumed upstream.
func (e *Engine) handleLanguageSelection(session models.Session, msg models.CanonicalMessage) (models.SessionPatch, models.OutboundIntent) {
	code := classify.ResolveLanguageName(msg.Text)
	if code == "" {
		code = classify.DetectLanguage(msg.Text)
	}
	stage := models.StageCollectingDemographics
	slog.Info("language resolved", "userKey", session.UserKey, "language", code)
	return models.SessionPatch{Stage: &stage, Language: &code}, textIntent(code, i18n.KeyDemographics)
}

// handleDemographics merges whatever age and gender it can extract and always
// moves on; the flow never loops waiting for perfect demographics.
func (e *Engine) handleDemographics(session models.Session, msg models.CanonicalMessage, lang string) (models.SessionPatch, models.OutboundIntent) {
	stage := models.StageCollectingSymptoms
	patch := models.SessionPatch{Stage: &stage}
	if age := ExtractAge(msg.Text); age != nil {
		patch.Age = age
	}
	if gender := ExtractGender(msg.Text); gender != "" {
		patch.Gender = &gender
	}
	slog.Debug("demographics collected", "userKey", session.UserKey,
		"ageFound", patch.Age != nil, "genderFound", patch.Gender != nil)
	return patch, textIntent(lang, i18n.KeySymptoms)
}

// handleSymptoms accumulates extracted symptoms and self-loops until the
// session has enough of them to assess.
func (e *Engine) handleSymptoms(session models.Session, msg models.CanonicalMessage, lang string) (models.SessionPatch, models.OutboundIntent) {
	found := ExtractSymptoms(msg.Text)
	total := len(session.Triage.Symptoms) + len(found)
	patch := models.SessionPatch{AddSymptoms: found}
	if total < SymptomThreshold {
		slog.Debug("need more symptoms", "userKey", session.UserKey, "total", total)
		return patch, textIntent(lang, i18n.KeySymptomFollowUp)
	}
	stage := models.StageAssessingSeverity
	patch.Stage = &stage
	slog.Info("symptom threshold reached", "userKey", session.UserKey, "total", total)
	return patch, textIntent(lang, i18n.KeyAssessing)
}

// handleAssessment runs the assessment backend over the accumulated session
// data. Emergency-tier results short-circuit to the emergency stage; anything
// else advances to provider matching with the result and candidate providers.
func (e *Engine) handleAssessment(ctx context.Context, session models.Session, msg models.CanonicalMessage, lang string) (models.SessionPatch, models.OutboundIntent) {
	assessment, err := e.assessor.Assess(ctx, session)
	if err != nil {
		slog.Error("assessment failed, asking user to retry", "userKey", session.UserKey, "error", err)
		return models.SessionPatch{}, textIntent(lang, i18n.KeyTryAgain)
	}

	assessedAt := msg.Timestamp
	patch := models.SessionPatch{
		RiskScore:      &assessment.RiskScore,
		Severity:       &assessment.Severity,
		Recommendation: &assessment.Recommendation,
		Conditions:     assessment.Conditions,
		AssessedAt:     &assessedAt,
	}

	if assessment.Severity == models.SeverityEmergency {
		stage := models.StageEmergencyDetected
		patch.Stage = &stage
		slog.Info("assessment reached emergency tier", "userKey", session.UserKey, "riskScore", assessment.RiskScore)
		return patch, models.OutboundIntent{
			Kind:       models.IntentEmergency,
			Body:       i18n.Lookup(lang, i18n.KeyEmergency),
			Assessment: &assessment,
		}
	}

	candidates := e.findProviders(ctx, session, assessment)
	if len(candidates) == 0 {
		// Nobody bookable: hand off to a coordinator and close the session.
		stage := models.StageCompleted
		patch.Stage = &stage
		return patch, models.OutboundIntent{
			Kind:       models.IntentTriageResult,
			Body:       i18n.Lookup(lang, i18n.KeyNoProviders),
			Assessment: &assessment,
		}
	}

	stage := models.StageProviderMatching
	patch.Stage = &stage
	slog.Info("assessment complete", "userKey", session.UserKey,
		"severity", assessment.Severity, "riskScore", assessment.RiskScore, "providers", len(candidates))
	return patch, models.OutboundIntent{
		Kind:       models.IntentTriageResult,
		Body:       i18n.Lookup(lang, i18n.KeyTriageResult),
		Assessment: &assessment,
		Providers:  candidates,
		Sections:   providerSections(candidates),
	}
}

// handleProviderMatching covers free text while waiting on a provider choice:
// the input is logged and the candidate list repeated. Selections arrive as
// structured replies and are consumed before stage dispatch.
func (e *Engine) handleProviderMatching(ctx context.Context, session models.Session, msg models.CanonicalMessage, lang string) (models.SessionPatch, models.OutboundIntent) {
	slog.Debug("free text during provider matching ignored", "userKey", session.UserKey, "text", msg.Text)
	return models.SessionPatch{}, e.providerListIntent(ctx, session, lang)
}

// handleBooking finalizes the booking on any input and closes the session.
func (e *Engine) handleBooking(session models.Session, lang string) (models.SessionPatch, models.OutboundIntent) {
	ref := e.refgen()
	stage := models.StageCompleted
	slog.Info("booking confirmed", "userKey", session.UserKey, "bookingRef", ref,
		"providerID", providerID(session.Provider))
	return models.SessionPatch{Stage: &stage, BookingRef: &ref}, models.OutboundIntent{
		Kind: models.IntentText,
		Body: fmt.Sprintf(i18n.Lookup(lang, i18n.KeyBookingConfirmed), ref),
	}
}

// providerListIntent builds the selectable provider list for the session,
// degrading to the no-providers message when the directory has nothing or fails.
func (e *Engine) providerListIntent(ctx context.Context, session models.Session, lang string) models.OutboundIntent {
	assessment := sessionAssessment(session)
	candidates := e.findProviders(ctx, session, assessment)
	if len(candidates) == 0 {
		return textIntent(lang, i18n.KeyNoProviders)
	}
	return models.OutboundIntent{
		Kind:      models.IntentList,
		Body:      i18n.Lookup(lang, i18n.KeyProviderPrompt),
		Providers: candidates,
		Sections:  providerSections(candidates),
	}
}

// findProviders queries the directory for the assessment's specialty.
// Directory failures degrade to an empty list and never fail the transition.
func (e *Engine) findProviders(ctx context.Context, session models.Session, assessment models.Assessment) []models.ProviderCandidate {
	criteria := providers.Criteria{
		Specialty: assess.PrimarySpecialty(assessment),
		Limit:     providers.DefaultLimit,
	}
	candidates, err := e.directory.FindProviders(ctx, session, criteria)
	if err != nil {
		slog.Error("provider lookup failed", "userKey", session.UserKey,
			"specialty", criteria.Specialty, "error", err)
		return nil
	}
	return candidates
}

// promptForStage repeats the prompt matching the session's current stage,
// used after a mid-flow language switch.
func (e *Engine) promptForStage(session models.Session, lang string) models.OutboundIntent {
	switch session.Stage {
	case models.StageCollectingDemographics:
		return textIntent(lang, i18n.KeyDemographics)
	case models.StageCollectingSymptoms:
		if len(session.Triage.Symptoms) > 0 {
			return textIntent(lang, i18n.KeySymptomFollowUp)
		}
		return textIntent(lang, i18n.KeySymptoms)
	case models.StageAssessingSeverity:
		return textIntent(lang, i18n.KeyAssessing)
	case models.StageProviderMatching:
		return textIntent(lang, i18n.KeyProviderPrompt)
	case models.StageAppointmentBooking:
		return textIntent(lang, i18n.KeyBookingPrompt)
	case models.StageEmergencyDetected:
		return textIntent(lang, i18n.KeyEmergencyClosed)
	default:
		return textIntent(lang, i18n.KeyCompleted)
	}
}

// welcomeIntent is the first outbound message: a greeting with one selection
// button per supported language, in the fixed priority order.
func welcomeIntent() models.OutboundIntent {
	buttons := make([]models.Button, 0, len(i18n.SupportedLanguages))
	for _, code := range i18n.SupportedLanguages {
		buttons = append(buttons, models.Button{
			ID:    LanguageReplyID(code),
			Title: i18n.LanguageNames[code],
		})
	}
	return models.OutboundIntent{
		Kind:    models.IntentWelcome,
		Body:    i18n.Lookup(i18n.DefaultLanguage, i18n.KeyWelcome),
		Buttons: buttons,
	}
}

// providerSections renders candidates as a single selectable list section.
func providerSections(candidates []models.ProviderCandidate) []models.ListSection {
	rows := make([]models.ListRow, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, models.ListRow{
			ID:          ProviderReplyID(c.ID),
			Title:       c.Name,
			Description: fmt.Sprintf("%s · %.1f km · ★%.1f", c.Specialty, c.Distance, c.Rating),
		})
	}
	return []models.ListSection{{Title: "Available providers", Rows: rows}}
}

// sessionAssessment reconstructs the persisted assessment for provider
// criteria; before an assessment exists it is zero-valued, which maps to the
// general-practice specialty.
func sessionAssessment(session models.Session) models.Assessment {
	a := models.Assessment{
		Severity:       session.Triage.Severity,
		Recommendation: session.Triage.Recommendation,
		Conditions:     session.Triage.Conditions,
	}
	if session.Triage.RiskScore != nil {
		a.RiskScore = *session.Triage.RiskScore
	}
	return a
}

func textIntent(lang, key string) models.OutboundIntent {
	return models.OutboundIntent{Kind: models.IntentText, Body: i18n.Lookup(lang, key)}
}

func patchStage(stage models.TriageStage) models.SessionPatch {
	return models.SessionPatch{Stage: &stage}
}

func providerID(ref *models.ProviderRef) string {
	if ref == nil {
		return ""
	}
	return ref.ID
}
