package triage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/healthbridge/triageflow/internal/i18n"
	"github.com/healthbridge/triageflow/internal/models"
	"github.com/healthbridge/triageflow/internal/providers"
)

type mockAssessor struct {
	assessment models.Assessment
	err        error
	calls      int
}

func (m *mockAssessor) Assess(ctx context.Context, session models.Session) (models.Assessment, error) {
	m.calls++
	return m.assessment, m.err
}

type failingDirectory struct{}

func (failingDirectory) FindProviders(ctx context.Context, session models.Session, criteria providers.Criteria) ([]models.ProviderCandidate, error) {
	return nil, errors.New("registry timeout")
}

func (failingDirectory) Lookup(id string) (models.ProviderCandidate, bool) {
	return models.ProviderCandidate{}, false
}

func newTestEngine(t *testing.T, assessor *mockAssessor) *Engine {
	t.Helper()
	if assessor == nil {
		assessor = &mockAssessor{assessment: models.Assessment{
			RiskScore:      0.2,
			Severity:       models.SeverityMild,
			Recommendation: "rest",
		}}
	}
	return NewEngine(assessor, providers.NewStaticDirectory(),
		WithBookingRefGenerator(func() string { return "BK-TEST0001" }))
}

func sessionAt(stage models.TriageStage) models.Session {
	return models.Session{
		ID:       "sess-1",
		UserKey:  "2348012345678",
		Stage:    stage,
		Language: i18n.LangEnglish,
	}
}

func textMsg(text string) models.CanonicalMessage {
	return models.CanonicalMessage{
		UserKey:          "2348012345678",
		ChannelMessageID: "wamid.1",
		Text:             text,
		Kind:             models.KindText,
		Timestamp:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func replyMsg(replyID string) models.CanonicalMessage {
	msg := textMsg("")
	msg.Kind = models.KindButtonReply
	msg.ReplyID = replyID
	return msg
}

func TestInitialEmitsWelcome(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageInitial)

	patch, intent := engine.Transition(context.Background(), session, textMsg("hello"))

	if patch.Stage == nil || *patch.Stage != models.StageLanguageSelection {
		t.Fatalf("expected stage LANGUAGE_SELECTION, got %v", patch.Stage)
	}
	if intent.Kind != models.IntentWelcome {
		t.Errorf("expected welcome intent, got %s", intent.Kind)
	}
	if len(intent.Buttons) != len(i18n.SupportedLanguages) {
		t.Errorf("expected %d language buttons, got %d", len(i18n.SupportedLanguages), len(intent.Buttons))
	}
	if intent.Buttons[0].ID != LanguageReplyID(i18n.LangEnglish) {
		t.Errorf("expected first button lang_en, got %s", intent.Buttons[0].ID)
	}
}

func TestLanguageSelectionFromFreeText(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageLanguageSelection)

	patch, intent := engine.Transition(context.Background(), session, textMsg("yoruba please"))

	if patch.Language == nil || *patch.Language != i18n.LangYoruba {
		t.Fatalf("expected language yo, got %v", patch.Language)
	}
	if patch.Stage == nil || *patch.Stage != models.StageCollectingDemographics {
		t.Fatalf("expected stage COLLECTING_DEMOGRAPHICS, got %v", patch.Stage)
	}
	if want := i18n.Lookup(i18n.LangYoruba, i18n.KeyDemographics); intent.Body != want {
		t.Errorf("expected Yoruba demographics prompt, got %q", intent.Body)
	}
}

func TestLanguageSelectionDefaultsWhenNothingMatches(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageLanguageSelection)

	patch, _ := engine.Transition(context.Background(), session, textMsg("ok"))

	if patch.Language == nil || *patch.Language != i18n.DefaultLanguage {
		t.Fatalf("expected default language, got %v", patch.Language)
	}
	if patch.Stage == nil || *patch.Stage != models.StageCollectingDemographics {
		t.Fatalf("expected advance to demographics, got %v", patch.Stage)
	}
}

func TestLanguageButton(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageLanguageSelection)

	patch, intent := engine.Transition(context.Background(), session, replyMsg("lang_ha"))

	if patch.Language == nil || *patch.Language != i18n.LangHausa {
		t.Fatalf("expected language ha, got %v", patch.Language)
	}
	if patch.Stage == nil || *patch.Stage != models.StageCollectingDemographics {
		t.Fatalf("expected stage COLLECTING_DEMOGRAPHICS, got %v", patch.Stage)
	}
	if want := i18n.Lookup(i18n.LangHausa, i18n.KeyDemographics); intent.Body != want {
		t.Errorf("expected Hausa prompt, got %q", intent.Body)
	}
}

func TestLanguageButtonMidFlowSwitchesWithoutRegressing(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageCollectingSymptoms)

	patch, intent := engine.Transition(context.Background(), session, replyMsg("lang_pcm"))

	if patch.Language == nil || *patch.Language != i18n.LangPidgin {
		t.Fatalf("expected language pcm, got %v", patch.Language)
	}
	if patch.Stage != nil {
		t.Fatalf("expected no stage change, got %v", *patch.Stage)
	}
	if want := i18n.Lookup(i18n.LangPidgin, i18n.KeySymptoms); intent.Body != want {
		t.Errorf("expected Pidgin symptoms prompt, got %q", intent.Body)
	}
}

func TestDemographicsExtraction(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageCollectingDemographics)

	patch, intent := engine.Transition(context.Background(), session, textMsg("34, female"))

	if patch.Stage == nil || *patch.Stage != models.StageCollectingSymptoms {
		t.Fatalf("expected stage COLLECTING_SYMPTOMS, got %v", patch.Stage)
	}
	if patch.Age == nil || *patch.Age != 34 {
		t.Errorf("expected age 34, got %v", patch.Age)
	}
	if patch.Gender == nil || *patch.Gender != "female" {
		t.Errorf("expected gender female, got %v", patch.Gender)
	}
	if intent.Kind != models.IntentText {
		t.Errorf("expected text intent, got %s", intent.Kind)
	}
}

func TestDemographicsAdvancesEvenWhenNothingExtracted(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageCollectingDemographics)

	patch, _ := engine.Transition(context.Background(), session, textMsg("I would rather not say"))

	if patch.Stage == nil || *patch.Stage != models.StageCollectingSymptoms {
		t.Fatalf("expected advance to symptoms anyway, got %v", patch.Stage)
	}
	if patch.Age != nil || patch.Gender != nil {
		t.Errorf("expected no demographics in patch, got age=%v gender=%v", patch.Age, patch.Gender)
	}
}

func TestSymptomsSelfLoopBelowThreshold(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageCollectingSymptoms)

	patch, intent := engine.Transition(context.Background(), session, textMsg("I have a headache"))

	if patch.Stage != nil {
		t.Fatalf("expected self-loop with no stage change, got %v", *patch.Stage)
	}
	if len(patch.AddSymptoms) != 1 || patch.AddSymptoms[0] != "headache" {
		t.Fatalf("expected [headache], got %v", patch.AddSymptoms)
	}
	if want := i18n.Lookup(i18n.LangEnglish, i18n.KeySymptomFollowUp); intent.Body != want {
		t.Errorf("expected follow-up prompt, got %q", intent.Body)
	}
}

func TestSymptomsAdvanceAtThreshold(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageCollectingSymptoms)
	session.Triage.Symptoms = []string{"headache"}

	patch, intent := engine.Transition(context.Background(), session, textMsg("and a fever"))

	if patch.Stage == nil || *patch.Stage != models.StageAssessingSeverity {
		t.Fatalf("expected stage ASSESSING_SEVERITY, got %v", patch.Stage)
	}
	if len(patch.AddSymptoms) != 1 || patch.AddSymptoms[0] != "fever" {
		t.Fatalf("expected [fever], got %v", patch.AddSymptoms)
	}
	if want := i18n.Lookup(i18n.LangEnglish, i18n.KeyAssessing); intent.Body != want {
		t.Errorf("expected assessing prompt, got %q", intent.Body)
	}
}

func TestSymptomsNonMatchingMessageStaysInStage(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageCollectingSymptoms)
	session.Triage.Symptoms = []string{"headache"}

	patch, _ := engine.Transition(context.Background(), session, textMsg("it started yesterday"))

	if patch.Stage != nil {
		t.Fatalf("expected self-loop, got stage %v", *patch.Stage)
	}
	if len(patch.AddSymptoms) != 0 {
		t.Errorf("expected no symptoms extracted, got %v", patch.AddSymptoms)
	}
}

func TestEmergencyShortCircuitsFromAnyStage(t *testing.T) {
	stages := []models.TriageStage{
		models.StageInitial,
		models.StageLanguageSelection,
		models.StageCollectingDemographics,
		models.StageCollectingSymptoms,
		models.StageAssessingSeverity,
		models.StageProviderMatching,
		models.StageAppointmentBooking,
		models.StageCompleted,
	}
	for _, stage := range stages {
		engine := newTestEngine(t, nil)
		session := sessionAt(stage)

		patch, intent := engine.Transition(context.Background(), session, textMsg("I can't breathe, emergency"))

		if patch.Stage == nil || *patch.Stage != models.StageEmergencyDetected {
			t.Errorf("stage %s: expected EMERGENCY_DETECTED, got %v", stage, patch.Stage)
		}
		if intent.Kind != models.IntentEmergency {
			t.Errorf("stage %s: expected emergency intent, got %s", stage, intent.Kind)
		}
		if intent.MatchedKeyword == "" {
			t.Errorf("stage %s: expected matched keyword on intent", stage)
		}
	}
}

func TestAssessmentAdvancesToProviderMatching(t *testing.T) {
	assessor := &mockAssessor{assessment: models.Assessment{
		RiskScore:      0.35,
		Severity:       models.SeverityModerate,
		Recommendation: "see a GP",
		Conditions:     []models.CandidateCondition{{Name: "respiratory infection", Confidence: 0.6}},
	}}
	engine := newTestEngine(t, assessor)
	session := sessionAt(models.StageAssessingSeverity)
	session.Triage.Symptoms = []string{"fever", "cough"}

	patch, intent := engine.Transition(context.Background(), session, textMsg("ok"))

	if assessor.calls != 1 {
		t.Fatalf("expected one assessment call, got %d", assessor.calls)
	}
	if patch.Stage == nil || *patch.Stage != models.StageProviderMatching {
		t.Fatalf("expected stage PROVIDER_MATCHING, got %v", patch.Stage)
	}
	if patch.RiskScore == nil || *patch.RiskScore != 0.35 {
		t.Errorf("expected risk score persisted, got %v", patch.RiskScore)
	}
	if patch.Severity == nil || *patch.Severity != models.SeverityModerate {
		t.Errorf("expected severity persisted, got %v", patch.Severity)
	}
	if patch.AssessedAt == nil {
		t.Error("expected assessedAt set from message timestamp")
	}
	if intent.Kind != models.IntentTriageResult {
		t.Fatalf("expected triage result intent, got %s", intent.Kind)
	}
	if len(intent.Providers) == 0 {
		t.Error("expected provider candidates bundled with the result")
	}
	if intent.Providers[0].Specialty != "pulmonology" {
		t.Errorf("expected pulmonology candidates for respiratory infection, got %s", intent.Providers[0].Specialty)
	}
}

func TestAssessmentEmergencyTier(t *testing.T) {
	assessor := &mockAssessor{assessment: models.Assessment{
		RiskScore:      0.9,
		Severity:       models.SeverityEmergency,
		Recommendation: "seek emergency care",
	}}
	engine := newTestEngine(t, assessor)
	session := sessionAt(models.StageAssessingSeverity)

	patch, intent := engine.Transition(context.Background(), session, textMsg("ok"))

	if patch.Stage == nil || *patch.Stage != models.StageEmergencyDetected {
		t.Fatalf("expected EMERGENCY_DETECTED, got %v", patch.Stage)
	}
	if intent.Kind != models.IntentEmergency {
		t.Errorf("expected emergency intent, got %s", intent.Kind)
	}
	if patch.Severity == nil || *patch.Severity != models.SeverityEmergency {
		t.Errorf("expected severity persisted, got %v", patch.Severity)
	}
}

func TestAssessmentFailureDegradesToRetry(t *testing.T) {
	assessor := &mockAssessor{err: errors.New("model unavailable")}
	engine := newTestEngine(t, assessor)
	session := sessionAt(models.StageAssessingSeverity)

	patch, intent := engine.Transition(context.Background(), session, textMsg("ok"))

	if !patch.IsZero() {
		t.Fatalf("expected zero patch on assessment failure, got %+v", patch)
	}
	if want := i18n.Lookup(i18n.LangEnglish, i18n.KeyTryAgain); intent.Body != want {
		t.Errorf("expected retry prompt, got %q", intent.Body)
	}
}

func TestDirectoryFailureClosesWithNoProviders(t *testing.T) {
	assessor := &mockAssessor{assessment: models.Assessment{
		RiskScore: 0.35, Severity: models.SeverityModerate, Recommendation: "see a GP",
	}}
	engine := NewEngine(assessor, failingDirectory{})
	session := sessionAt(models.StageAssessingSeverity)

	patch, intent := engine.Transition(context.Background(), session, textMsg("ok"))

	if patch.Stage == nil || *patch.Stage != models.StageCompleted {
		t.Fatalf("expected COMPLETED handoff, got %v", patch.Stage)
	}
	if want := i18n.Lookup(i18n.LangEnglish, i18n.KeyNoProviders); intent.Body != want {
		t.Errorf("expected no-providers message, got %q", intent.Body)
	}
	if patch.Severity == nil {
		t.Error("expected assessment still persisted")
	}
}

func TestProviderSelection(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageProviderMatching)

	patch, intent := engine.Transition(context.Background(), session, replyMsg("provider_gp-001"))

	if patch.Stage == nil || *patch.Stage != models.StageAppointmentBooking {
		t.Fatalf("expected stage APPOINTMENT_BOOKING, got %v", patch.Stage)
	}
	if patch.Provider == nil || patch.Provider.ID != "gp-001" {
		t.Fatalf("expected provider gp-001 stored, got %+v", patch.Provider)
	}
	if patch.Provider.Name == "" || patch.Provider.Specialty == "" {
		t.Errorf("expected provider name and specialty resolved, got %+v", patch.Provider)
	}
	if want := i18n.Lookup(i18n.LangEnglish, i18n.KeyBookingPrompt); intent.Body != want {
		t.Errorf("expected booking prompt, got %q", intent.Body)
	}
}

func TestProviderSelectionUnknownIDReprompts(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageProviderMatching)

	patch, intent := engine.Transition(context.Background(), session, replyMsg("provider_nope"))

	if !patch.IsZero() {
		t.Fatalf("expected zero patch, got %+v", patch)
	}
	if intent.Kind != models.IntentList {
		t.Errorf("expected candidate list re-emitted, got %s", intent.Kind)
	}
}

func TestProviderSelectionIgnoredOutsideMatching(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageCollectingSymptoms)

	patch, intent := engine.Transition(context.Background(), session, replyMsg("provider_gp-001"))

	if patch.Provider != nil {
		t.Fatalf("provider selection must not apply outside matching, got %+v", patch.Provider)
	}
	// Falls through to the symptoms handler.
	if patch.Stage != nil {
		t.Errorf("expected symptom self-loop, got stage %v", *patch.Stage)
	}
	if want := i18n.Lookup(i18n.LangEnglish, i18n.KeySymptomFollowUp); intent.Body != want {
		t.Errorf("expected symptom follow-up, got %q", intent.Body)
	}
}

func TestProviderMatchingFreeTextReprompts(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageProviderMatching)

	patch, intent := engine.Transition(context.Background(), session, textMsg("the first one sounds good"))

	if !patch.IsZero() {
		t.Fatalf("expected no mutation on free text, got %+v", patch)
	}
	if intent.Kind != models.IntentList {
		t.Errorf("expected candidate list, got %s", intent.Kind)
	}
}

func TestBookingConfirmation(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageAppointmentBooking)
	session.Provider = &models.ProviderRef{ID: "gp-001", Name: "Dr. Adaeze Okafor"}

	patch, intent := engine.Transition(context.Background(), session, textMsg("yes"))

	if patch.Stage == nil || *patch.Stage != models.StageCompleted {
		t.Fatalf("expected stage COMPLETED, got %v", patch.Stage)
	}
	if patch.BookingRef == nil || *patch.BookingRef != "BK-TEST0001" {
		t.Fatalf("expected booking ref, got %v", patch.BookingRef)
	}
	if !strings.Contains(intent.Body, "BK-TEST0001") {
		t.Errorf("expected confirmation to carry the reference, got %q", intent.Body)
	}
}

func TestTerminalStagesDoNotMutate(t *testing.T) {
	cases := []struct {
		stage models.TriageStage
		key   string
	}{
		{models.StageCompleted, i18n.KeyCompleted},
		{models.StageEmergencyDetected, i18n.KeyEmergencyClosed},
	}
	for _, tc := range cases {
		engine := newTestEngine(t, nil)
		session := sessionAt(tc.stage)

		patch, intent := engine.Transition(context.Background(), session, textMsg("hello again"))

		if !patch.IsZero() {
			t.Errorf("stage %s: expected zero patch, got %+v", tc.stage, patch)
		}
		if want := i18n.Lookup(i18n.LangEnglish, tc.key); intent.Body != want {
			t.Errorf("stage %s: expected %q, got %q", tc.stage, want, intent.Body)
		}
	}
}

func TestCallEmergencyAction(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageCollectingSymptoms)

	patch, intent := engine.Transition(context.Background(), session, replyMsg("call_emergency"))

	if patch.Stage == nil || *patch.Stage != models.StageEmergencyDetected {
		t.Fatalf("expected EMERGENCY_DETECTED, got %v", patch.Stage)
	}
	if intent.Kind != models.IntentEmergency {
		t.Errorf("expected emergency intent, got %s", intent.Kind)
	}
}

func TestFindHospitalsActionDoesNotChangeStage(t *testing.T) {
	engine := newTestEngine(t, nil)
	session := sessionAt(models.StageCollectingSymptoms)

	patch, intent := engine.Transition(context.Background(), session, replyMsg("find_hospitals"))

	if !patch.IsZero() {
		t.Fatalf("expected zero patch, got %+v", patch)
	}
	if intent.Kind != models.IntentList {
		t.Errorf("expected provider list, got %s", intent.Kind)
	}
	if len(intent.Sections) == 0 || len(intent.Sections[0].Rows) == 0 {
		t.Error("expected selectable provider rows")
	}
}

func TestTransitionsNeverRegress(t *testing.T) {
	stages := []models.TriageStage{
		models.StageInitial,
		models.StageLanguageSelection,
		models.StageCollectingDemographics,
		models.StageCollectingSymptoms,
		models.StageAssessingSeverity,
		models.StageProviderMatching,
		models.StageAppointmentBooking,
		models.StageCompleted,
	}
	inputs := []models.CanonicalMessage{
		textMsg("hello"),
		textMsg("yoruba"),
		textMsg("34 female"),
		textMsg("fever and headache"),
		replyMsg("lang_ig"),
		replyMsg("provider_gp-001"),
		replyMsg("find_hospitals"),
	}
	for _, stage := range stages {
		for _, msg := range inputs {
			engine := newTestEngine(t, nil)
			session := sessionAt(stage)

			patch, _ := engine.Transition(context.Background(), session, msg)

			if patch.Stage != nil && !models.CanTransition(stage, *patch.Stage) {
				t.Errorf("illegal transition %s -> %s on %q/%q", stage, *patch.Stage, msg.Text, msg.ReplyID)
			}
		}
	}
}
