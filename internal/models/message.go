// Package models defines message shapes exchanged between the webhook pipeline,
// the state machine, and the channel adapters.
package models

import "time"

// MessageKind classifies an inbound or outbound message.
type MessageKind string

const (
	// KindText is a plain free-text message.
	KindText MessageKind = "text"
	// KindButtonReply is a structured reply from a tapped button.
	KindButtonReply MessageKind = "button_reply"
	// KindListReply is a structured reply from a list selection.
	KindListReply MessageKind = "list_reply"
	// KindMedia is an image, audio, or document message.
	KindMedia MessageKind = "media"
	// KindStatus is a delivery/read/sent/failed receipt, never processed by the flow.
	KindStatus MessageKind = "status"
	// KindEmergency marks outbound emergency escalation messages.
	KindEmergency MessageKind = "emergency"
	// KindInteractive marks outbound button or list messages.
	KindInteractive MessageKind = "interactive"
)

// Direction marks whether an interaction record was received or sent.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CanonicalMessage is the normalized, channel-agnostic view of one inbound
// message. It is transient and never persisted as-is.
type CanonicalMessage struct {
	UserKey          string      `json:"user_key"`
	ChannelMessageID string      `json:"channel_message_id"`
	Text             string      `json:"text,omitempty"`
	Kind             MessageKind `json:"kind"`
	ReplyID          string      `json:"reply_id,omitempty"` // set for button/list replies
	Timestamp        time.Time   `json:"timestamp"`
}

// InteractionRecord is one appended entry in a session's interaction log.
// Records are append-only and never mutated after creation.
type InteractionRecord struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Direction Direction         `json:"direction"`
	Kind      MessageKind       `json:"kind"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"` // carries channel message id for inbound records
	Timestamp time.Time         `json:"timestamp"`
}

// MetadataKeyChannelMessageID is the metadata key carrying the channel-assigned
// message id on inbound interaction records.
const MetadataKeyChannelMessageID = "channel_message_id"

// IntentKind tags the variants of OutboundIntent.
type IntentKind string

const (
	IntentText         IntentKind = "text"
	IntentWelcome      IntentKind = "welcome"
	IntentButtons      IntentKind = "buttons"
	IntentList         IntentKind = "list"
	IntentEmergency    IntentKind = "emergency"
	IntentTriageResult IntentKind = "triage_result"
)

// Button is a selectable option carried by a buttons intent.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListRow is one selectable row of a list intent.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups list rows under a header.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// ProviderCandidate is a provider match offered alongside a triage result.
type ProviderCandidate struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Specialty string  `json:"specialty"`
	Distance  float64 `json:"distance_km"`
	Rating    float64 `json:"rating"`
}

// Assessment is the triage assessment outcome bundled into a TriageResult intent.
type Assessment struct {
	RiskScore      float64              `json:"risk_score"`
	Severity       Severity             `json:"severity"`
	Recommendation string               `json:"recommendation"`
	Conditions     []CandidateCondition `json:"conditions,omitempty"`
}

// OutboundIntent is the channel-agnostic description of the reply the state
// machine wants sent. The state machine only ever returns this value; actual
// delivery is the caller's concern.
type OutboundIntent struct {
	Kind           IntentKind          `json:"kind"`
	Body           string              `json:"body,omitempty"`
	Buttons        []Button            `json:"buttons,omitempty"`
	Sections       []ListSection       `json:"sections,omitempty"`
	Assessment     *Assessment         `json:"assessment,omitempty"`
	Providers      []ProviderCandidate `json:"providers,omitempty"`
	MatchedKeyword string              `json:"matched_keyword,omitempty"` // emergency trigger
}

// RecordKind maps an outbound intent to the interaction record kind logged for it.
func (i OutboundIntent) RecordKind() MessageKind {
	switch i.Kind {
	case IntentEmergency:
		return KindEmergency
	case IntentButtons, IntentList:
		return KindInteractive
	default:
		return KindText
	}
}

// ReplyIntentKind tags the variants of a parsed structured reply id.
type ReplyIntentKind string

const (
	ReplySelectLanguage ReplyIntentKind = "select_language"
	ReplySelectProvider ReplyIntentKind = "select_provider"
	ReplyInvokeAction   ReplyIntentKind = "invoke_action"
	ReplyUnrecognized   ReplyIntentKind = "unrecognized"
)

// ReplyIntent is the strongly typed parse of a raw structured reply id
// (e.g. "lang_en", "provider_7", "call_emergency"). Raw prefix matching never
// reaches stage dispatch; only this value does.
type ReplyIntent struct {
	Kind       ReplyIntentKind `json:"kind"`
	Language   string          `json:"language,omitempty"`
	ProviderID string          `json:"provider_id,omitempty"`
	Action     string          `json:"action,omitempty"`
}

// IngestResult is the outcome of one webhook ingestion call.
type IngestResult struct {
	Status    APIStatus       `json:"status"`
	MessageID string          `json:"message_id,omitempty"`
	Session   *Session        `json:"session,omitempty"`
	Intent    *OutboundIntent `json:"intent,omitempty"`
	Duplicate bool            `json:"duplicate,omitempty"`
}
