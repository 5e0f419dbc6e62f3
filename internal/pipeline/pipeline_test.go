package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/healthbridge/triageflow/internal/assess"
	"github.com/healthbridge/triageflow/internal/models"
	"github.com/healthbridge/triageflow/internal/providers"
	"github.com/healthbridge/triageflow/internal/store"
	"github.com/healthbridge/triageflow/internal/triage"
)

const testUser = "2348012345678"

func newTestPipeline(t *testing.T) (*Pipeline, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	engine := triage.NewEngine(assess.NewRuleAssessor(), providers.NewStaticDirectory(),
		triage.WithBookingRefGenerator(func() string { return "BK-TEST0001" }))
	return New(st, st, engine), st
}

func textPayload(msgID, body string) []byte {
	return []byte(fmt.Sprintf(`{"entry":[{"changes":[{"value":{
		"messages":[{"from":%q,"id":%q,"timestamp":"1717243200","type":"text","text":{"body":%q}}]
	}}]}]}`, testUser, msgID, body))
}

func replyPayload(msgID, replyID, title string) []byte {
	return []byte(fmt.Sprintf(`{"entry":[{"changes":[{"value":{
		"messages":[{"from":%q,"id":%q,"type":"interactive",
			"interactive":{"type":"button_reply","button_reply":{"id":%q,"title":%q}}}]
	}}]}]}`, testUser, msgID, replyID, title))
}

func ingest(t *testing.T, p *Pipeline, raw []byte) models.IngestResult {
	t.Helper()
	res, err := p.Ingest(context.Background(), raw)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	return res
}

func TestIngestFirstContact(t *testing.T) {
	p, st := newTestPipeline(t)

	res := ingest(t, p, textPayload("wamid.1", "hello"))

	if res.Status != models.APIStatusOK {
		t.Fatalf("expected ok status, got %s", res.Status)
	}
	if res.Session == nil || res.Session.Stage != models.StageLanguageSelection {
		t.Fatalf("expected session in LANGUAGE_SELECTION, got %+v", res.Session)
	}
	if res.Intent == nil || res.Intent.Kind != models.IntentWelcome {
		t.Fatalf("expected welcome intent, got %+v", res.Intent)
	}

	records, err := st.GetInteractions(res.Session.ID, 0)
	if err != nil {
		t.Fatalf("GetInteractions failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected inbound+outbound records, got %d", len(records))
	}
	// Most recent first: the outbound reply precedes the inbound message.
	if records[0].Direction != models.DirectionOutbound || records[1].Direction != models.DirectionInbound {
		t.Errorf("record directions wrong: %+v", records)
	}
	if records[1].Metadata[models.MetadataKeyChannelMessageID] != "wamid.1" {
		t.Errorf("inbound record missing channel message id, got %v", records[1].Metadata)
	}
}

func TestIngestDuplicateDeliveryIsIdempotent(t *testing.T) {
	p, st := newTestPipeline(t)

	first := ingest(t, p, textPayload("wamid.1", "hello"))
	second := ingest(t, p, textPayload("wamid.1", "hello"))

	if second.Status != models.APIStatusIgnored || !second.Duplicate {
		t.Fatalf("expected ignored duplicate, got %+v", second)
	}
	if second.Intent != nil {
		t.Error("duplicate must not produce a reply intent")
	}

	sess, err := st.GetSession(testUser)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess.Stage != models.StageLanguageSelection {
		t.Errorf("stage must advance exactly once, got %s", sess.Stage)
	}
	records, err := st.GetInteractions(first.Session.ID, 0)
	if err != nil {
		t.Fatalf("GetInteractions failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected one record pair, got %d records", len(records))
	}
}

func TestIngestStatusReceiptShortCircuits(t *testing.T) {
	p, st := newTestPipeline(t)

	raw := []byte(fmt.Sprintf(`{"entry":[{"changes":[{"value":{
		"statuses":[{"id":"wamid.9","recipient_id":%q,"status":"read"}]
	}}]}]}`, testUser))
	res := ingest(t, p, raw)

	if res.Status != models.APIStatusIgnored {
		t.Fatalf("expected ignored, got %s", res.Status)
	}
	if _, err := st.GetSession(testUser); !errors.Is(err, models.ErrSessionNotFound) {
		t.Error("delivery receipt must not create a session")
	}
}

func TestIngestInvalidPayload(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.Ingest(context.Background(), []byte(`{"entry":[]}`))
	if !errors.Is(err, models.ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestIngestEmergency(t *testing.T) {
	p, _ := newTestPipeline(t)

	ingest(t, p, textPayload("wamid.1", "hello"))
	res := ingest(t, p, textPayload("wamid.2", "I can't breathe, emergency"))

	if res.Session.Stage != models.StageEmergencyDetected {
		t.Fatalf("expected EMERGENCY_DETECTED, got %s", res.Session.Stage)
	}
	if res.Intent.Kind != models.IntentEmergency {
		t.Errorf("expected emergency intent, got %s", res.Intent.Kind)
	}
}

// TestIngestFullConversation drives an entire happy-path triage conversation
// through the pipeline, message by message.
func TestIngestFullConversation(t *testing.T) {
	p, _ := newTestPipeline(t)

	steps := []struct {
		raw       []byte
		wantStage models.TriageStage
	}{
		{textPayload("wamid.1", "hello"), models.StageLanguageSelection},
		{textPayload("wamid.2", "english please"), models.StageCollectingDemographics},
		{textPayload("wamid.3", "I am 34, female"), models.StageCollectingSymptoms},
		{textPayload("wamid.4", "I have a headache"), models.StageCollectingSymptoms},
		{textPayload("wamid.5", "and a fever too"), models.StageAssessingSeverity},
		{textPayload("wamid.6", "ok"), models.StageProviderMatching},
		{replyPayload("wamid.7", "provider_gp-001", "Dr. Adaeze Okafor"), models.StageAppointmentBooking},
		{textPayload("wamid.8", "yes please"), models.StageCompleted},
	}

	var last models.IngestResult
	for i, step := range steps {
		last = ingest(t, p, step.raw)
		if last.Session.Stage != step.wantStage {
			t.Fatalf("step %d: expected stage %s, got %s", i, step.wantStage, last.Session.Stage)
		}
	}

	if last.Session.BookingRef != "BK-TEST0001" {
		t.Errorf("expected booking ref recorded, got %q", last.Session.BookingRef)
	}
	if !strings.Contains(last.Intent.Body, "BK-TEST0001") {
		t.Errorf("expected confirmation to carry the reference, got %q", last.Intent.Body)
	}
	if last.Session.Provider == nil || last.Session.Provider.ID != "gp-001" {
		t.Errorf("expected selected provider persisted, got %+v", last.Session.Provider)
	}
	if last.Session.Triage.Severity == "" || last.Session.Triage.RiskScore == nil {
		t.Errorf("expected assessment persisted, got %+v", last.Session.Triage)
	}
	if len(last.Session.Triage.Symptoms) != 2 {
		t.Errorf("expected two symptoms accumulated, got %v", last.Session.Triage.Symptoms)
	}
}
