// Package models defines the core data structures for TriageFlow.
//
// It includes the conversation session, triage stages, severity tiers, and the
// shared API response envelope used across modules.
package models

import (
	"errors"
	"time"
)

// TriageStage identifies the discrete state of a conversation in the triage flow.
type TriageStage string

const (
	// StageInitial is the stage of a freshly created session before any reply was sent.
	StageInitial TriageStage = "INITIAL"
	// StageLanguageSelection waits for the user to pick or imply a language.
	StageLanguageSelection TriageStage = "LANGUAGE_SELECTION"
	// StageCollectingDemographics gathers age and gender.
	StageCollectingDemographics TriageStage = "COLLECTING_DEMOGRAPHICS"
	// StageCollectingSymptoms accumulates symptom keywords until enough are known.
	StageCollectingSymptoms TriageStage = "COLLECTING_SYMPTOMS"
	// StageAssessingSeverity runs the triage assessment over the accumulated data.
	StageAssessingSeverity TriageStage = "ASSESSING_SEVERITY"
	// StageProviderMatching waits for the user to select a care provider.
	StageProviderMatching TriageStage = "PROVIDER_MATCHING"
	// StageAppointmentBooking confirms the booking with the selected provider.
	StageAppointmentBooking TriageStage = "APPOINTMENT_BOOKING"
	// StageCompleted is terminal for the automated flow.
	StageCompleted TriageStage = "COMPLETED"
	// StageEmergencyDetected is terminal; reachable from every stage.
	StageEmergencyDetected TriageStage = "EMERGENCY_DETECTED"
)

// stageOrder fixes the forward ordering of the non-emergency flow.
var stageOrder = map[TriageStage]int{
	StageInitial:                0,
	StageLanguageSelection:      1,
	StageCollectingDemographics: 2,
	StageCollectingSymptoms:     3,
	StageAssessingSeverity:      4,
	StageProviderMatching:       5,
	StageAppointmentBooking:     6,
	StageCompleted:              7,
}

// IsValidStage checks if the given stage is one of the defined triage stages.
func IsValidStage(s TriageStage) bool {
	if s == StageEmergencyDetected {
		return true
	}
	_, ok := stageOrder[s]
	return ok
}

// Rank returns the position of a stage in the forward ordering. The emergency
// stage has no rank and returns -1.
func (s TriageStage) Rank() int {
	if r, ok := stageOrder[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether the automated flow stops mutating the session.
func (s TriageStage) IsTerminal() bool {
	return s == StageCompleted || s == StageEmergencyDetected
}

// CanTransition reports whether a stage change is permitted: forward moves along
// the fixed ordering, self-loops, and the emergency short-circuit from anywhere.
func CanTransition(from, to TriageStage) bool {
	if to == StageEmergencyDetected {
		return true
	}
	fr, fok := stageOrder[from]
	tr, tok := stageOrder[to]
	return fok && tok && tr >= fr
}

// Severity is the coarse triage classification driving branching.
type Severity string

const (
	SeverityMild      Severity = "MILD"
	SeverityModerate  Severity = "MODERATE"
	SeverityUrgent    Severity = "URGENT"
	SeverityEmergency Severity = "EMERGENCY"
)

// IsValidSeverity checks if the given severity tier is supported.
func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityMild, SeverityModerate, SeverityUrgent, SeverityEmergency:
		return true
	default:
		return false
	}
}

// Demographics is the incrementally populated patient attribute record.
type Demographics struct {
	Age    *int   `json:"age,omitempty"`    // years, extracted range [1,120]
	Gender string `json:"gender,omitempty"` // "male" or "female" when extracted
}

// CandidateCondition is one possible condition suggested by the assessment.
type CandidateCondition struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// TriageData accumulates symptoms and the computed assessment on a session.
type TriageData struct {
	Symptoms       []string             `json:"symptoms,omitempty"`
	RiskScore      *float64             `json:"risk_score,omitempty"`
	Severity       Severity             `json:"severity,omitempty"`
	Recommendation string               `json:"recommendation,omitempty"`
	Conditions     []CandidateCondition `json:"conditions,omitempty"`
	AssessedAt     *time.Time           `json:"assessed_at,omitempty"`
}

// ProviderRef is the provider a user selected during matching.
type ProviderRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
}

// Session is the per-user conversation state record. One session exists per
// user key; it is created lazily on first inbound message and never deleted
// by the core.
type Session struct {
	ID           string       `json:"id"`
	UserKey      string       `json:"user_key"`
	Stage        TriageStage  `json:"stage"`
	Language     string       `json:"language"`
	Demographics Demographics `json:"demographics"`
	Triage       TriageData   `json:"triage"`
	Provider     *ProviderRef `json:"selected_provider,omitempty"`
	BookingRef   string       `json:"booking_ref,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// SessionPatch is a partial session update produced by a state transition.
// Nil fields are left untouched by the store's merge-update contract.
type SessionPatch struct {
	Stage          *TriageStage         `json:"stage,omitempty"`
	Language       *string              `json:"language,omitempty"`
	Age            *int                 `json:"age,omitempty"`
	Gender         *string              `json:"gender,omitempty"`
	AddSymptoms    []string             `json:"add_symptoms,omitempty"`
	RiskScore      *float64             `json:"risk_score,omitempty"`
	Severity       *Severity            `json:"severity,omitempty"`
	Recommendation *string              `json:"recommendation,omitempty"`
	Conditions     []CandidateCondition `json:"conditions,omitempty"`
	AssessedAt     *time.Time           `json:"assessed_at,omitempty"`
	Provider       *ProviderRef         `json:"selected_provider,omitempty"`
	BookingRef     *string              `json:"booking_ref,omitempty"`
}

// IsZero reports whether the patch carries no changes at all.
func (p SessionPatch) IsZero() bool {
	return p.Stage == nil && p.Language == nil && p.Age == nil && p.Gender == nil &&
		len(p.AddSymptoms) == 0 && p.RiskScore == nil && p.Severity == nil &&
		p.Recommendation == nil && len(p.Conditions) == 0 && p.AssessedAt == nil &&
		p.Provider == nil && p.BookingRef == nil
}

// Apply merges the patch into a copy of the session and returns it. The input
// session is never mutated; UpdatedAt is refreshed to now.
func (s Session) Apply(p SessionPatch, now time.Time) Session {
	out := s
	// Copy slices so the result does not alias the input's backing arrays.
	out.Triage.Symptoms = append([]string(nil), s.Triage.Symptoms...)
	out.Triage.Conditions = append([]CandidateCondition(nil), s.Triage.Conditions...)
	if p.Stage != nil {
		out.Stage = *p.Stage
	}
	if p.Language != nil {
		out.Language = *p.Language
	}
	if p.Age != nil {
		age := *p.Age
		out.Demographics.Age = &age
	}
	if p.Gender != nil {
		out.Demographics.Gender = *p.Gender
	}
	if len(p.AddSymptoms) > 0 {
		out.Triage.Symptoms = append(out.Triage.Symptoms, p.AddSymptoms...)
	}
	if p.RiskScore != nil {
		score := *p.RiskScore
		out.Triage.RiskScore = &score
	}
	if p.Severity != nil {
		out.Triage.Severity = *p.Severity
	}
	if p.Recommendation != nil {
		out.Triage.Recommendation = *p.Recommendation
	}
	if len(p.Conditions) > 0 {
		out.Triage.Conditions = append([]CandidateCondition(nil), p.Conditions...)
	}
	if p.AssessedAt != nil {
		at := *p.AssessedAt
		out.Triage.AssessedAt = &at
	}
	if p.Provider != nil {
		ref := *p.Provider
		out.Provider = &ref
	}
	if p.BookingRef != nil {
		out.BookingRef = *p.BookingRef
	}
	out.UpdatedAt = now
	return out
}

// Error variables for better error handling and testability
var (
	// ErrInvalidPayload marks a malformed or unparseable inbound payload,
	// rejected before any session mutation.
	ErrInvalidPayload = errors.New("invalid inbound payload")
	// ErrStoreUnavailable marks a session or dedup store that cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSessionNotFound is returned when a session lookup finds nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionConflict is returned when a conditional session update lost the
	// race against a concurrent transition for the same user.
	ErrSessionConflict = errors.New("session update conflict")
	// ErrEmptyUserKey rejects messages without a resolvable sender.
	ErrEmptyUserKey = errors.New("user key cannot be empty")
	// ErrInvalidUserKey rejects user keys that fail the phone format check.
	ErrInvalidUserKey = errors.New("user key is not a valid phone number")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusIgnored indicates an inbound payload was accepted but intentionally
	// not processed (duplicates and delivery receipts).
	APIStatusIgnored APIStatus = "ignored"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Ignored creates an ignored API response with a message.
func Ignored(message string) APIResponse {
	return APIResponse{Status: string(APIStatusIgnored), Message: message}
}
