package messaging

import (
	"context"
	"strings"
	"testing"

	"github.com/healthbridge/triageflow/internal/models"
)

func TestRenderPlainText(t *testing.T) {
	out := Render(models.OutboundIntent{Kind: models.IntentText, Body: "How can I help?"})
	if out != "How can I help?" {
		t.Errorf("expected body passthrough, got %q", out)
	}
}

func TestRenderButtonsAsNumberedOptions(t *testing.T) {
	out := Render(models.OutboundIntent{
		Kind: models.IntentWelcome,
		Body: "Choose a language",
		Buttons: []models.Button{
			{ID: "lang_en", Title: "English"},
			{ID: "lang_yo", Title: "Yoruba"},
		},
	})
	if !strings.Contains(out, "1. English") || !strings.Contains(out, "2. Yoruba") {
		t.Errorf("expected numbered options, got %q", out)
	}
	if !strings.HasPrefix(out, "Choose a language") {
		t.Errorf("expected body first, got %q", out)
	}
}

func TestRenderListSections(t *testing.T) {
	out := Render(models.OutboundIntent{
		Kind: models.IntentList,
		Body: "Pick a provider",
		Sections: []models.ListSection{{
			Title: "Available providers",
			Rows: []models.ListRow{
				{ID: "provider_1", Title: "Dr. Okafor", Description: "general practice"},
				{ID: "provider_2", Title: "Dr. Bello"},
			},
		}},
	})
	if !strings.Contains(out, "Available providers:") {
		t.Errorf("expected section title, got %q", out)
	}
	if !strings.Contains(out, "1. Dr. Okafor (general practice)") {
		t.Errorf("expected described row, got %q", out)
	}
	if !strings.Contains(out, "2. Dr. Bello") {
		t.Errorf("expected plain row, got %q", out)
	}
}

func TestRenderTriageResult(t *testing.T) {
	out := Render(models.OutboundIntent{
		Kind: models.IntentTriageResult,
		Body: "Here is my assessment:",
		Assessment: &models.Assessment{
			RiskScore:      0.35,
			Severity:       models.SeverityModerate,
			Recommendation: "Book an appointment with a general practitioner.",
			Conditions: []models.CandidateCondition{
				{Name: "respiratory infection", Confidence: 0.6},
			},
		},
	})
	for _, want := range []string{"MODERATE", "risk 35%", "respiratory infection", "general practitioner"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in rendered result, got %q", want, out)
		}
	}
}

func TestCanonicalizeRecipient(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2348012345678", "2348012345678", false},
		{"+2348012345678", "2348012345678", false},
		{"whatsapp:+2348012345678", "2348012345678", false},
		{" 2348012345678 ", "2348012345678", false},
		{"bob", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := canonicalizeRecipient(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("canonicalizeRecipient(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("canonicalizeRecipient(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestMockServiceDeliver(t *testing.T) {
	svc := NewMockService()
	err := Deliver(context.Background(), svc, "+2348012345678", models.OutboundIntent{
		Kind: models.IntentText,
		Body: "hello",
	})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(svc.Sent) != 1 || svc.Sent[0].Body != "hello" {
		t.Errorf("expected one sent message, got %+v", svc.Sent)
	}
}
