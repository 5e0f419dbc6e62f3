// Package assess implements the triage assessment contract: turning a
// session's accumulated symptoms and demographics into a risk score, severity
// tier, recommendation, and candidate conditions.
//
// The conversation engine treats an Assessor as a black box and only branches
// on the severity tier it returns.
package assess

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/healthbridge/triageflow/internal/models"
)

// Assessor computes a triage assessment for a session.
type Assessor interface {
	Assess(ctx context.Context, session models.Session) (models.Assessment, error)
}

// Severity thresholds applied to the computed risk score.
const (
	emergencyThreshold = 0.75
	urgentThreshold    = 0.50
	moderateThreshold  = 0.30
)

// symptomWeights drives the deterministic risk score. Unlisted symptoms
// contribute the default weight.
var symptomWeights = map[string]float64{
	"chest pain":          0.40,
	"shortness of breath": 0.40,
	"dizziness":           0.20,
	"fever":               0.20,
	"vomiting":            0.20,
	"diarrhea":            0.20,
	"headache":            0.15,
	"cough":               0.15,
	"stomach pain":        0.15,
}

const defaultSymptomWeight = 0.10

// ageRiskBonus is added for patients outside the low-risk age band.
const ageRiskBonus = 0.15

// conditionRules suggests candidate conditions from symptom combinations.
// Ordered: earlier rules yield higher-confidence candidates.
var conditionRules = []struct {
	required   []string
	name       string
	confidence float64
}{
	{[]string{"chest pain", "shortness of breath"}, "acute cardiac event", 0.70},
	{[]string{"fever", "headache", "body ache"}, "malaria", 0.65},
	{[]string{"fever", "cough"}, "respiratory infection", 0.60},
	{[]string{"fever", "sore throat"}, "throat infection", 0.55},
	{[]string{"stomach pain", "diarrhea"}, "gastroenteritis", 0.55},
	{[]string{"nausea", "vomiting"}, "gastric upset", 0.50},
	{[]string{"headache"}, "tension headache", 0.40},
	{[]string{"cough", "runny nose"}, "common cold", 0.45},
	{[]string{"fatigue"}, "general malaise", 0.30},
}

// recommendations maps each severity tier to the advice line shown to the user.
var recommendations = map[models.Severity]string{
	models.SeverityMild:      "Rest, hydrate, and monitor your symptoms. See a pharmacist if they persist beyond 48 hours.",
	models.SeverityModerate:  "Book an appointment with a general practitioner within the next few days.",
	models.SeverityUrgent:    "See a doctor today. Do not wait for symptoms to worsen.",
	models.SeverityEmergency: "Seek emergency care immediately or call your local emergency line.",
}

// RuleAssessor is the deterministic, dependency-free assessor used by default.
// It is a pure function of the session and never fails.
type RuleAssessor struct{}

// NewRuleAssessor creates the default keyword-weight assessor.
func NewRuleAssessor() *RuleAssessor {
	return &RuleAssessor{}
}

// Assess computes the weighted risk score, maps it to a severity tier, and
// derives candidate conditions from the symptom combination rules.
func (a *RuleAssessor) Assess(ctx context.Context, session models.Session) (models.Assessment, error) {
	score := 0.0
	seen := make(map[string]bool)
	for _, symptom := range session.Triage.Symptoms {
		if seen[symptom] {
			continue // repeated mentions across turns do not inflate risk
		}
		seen[symptom] = true
		if w, ok := symptomWeights[symptom]; ok {
			score += w
		} else {
			score += defaultSymptomWeight
		}
	}
	if age := session.Demographics.Age; age != nil && (*age < 5 || *age > 65) {
		score += ageRiskBonus
	}
	if score > 1.0 {
		score = 1.0
	}

	severity := severityForScore(score)
	assessment := models.Assessment{
		RiskScore:      score,
		Severity:       severity,
		Recommendation: recommendations[severity],
		Conditions:     matchConditions(seen),
	}
	slog.Debug("RuleAssessor computed assessment", "userKey", session.UserKey,
		"riskScore", score, "severity", severity, "symptoms", len(seen))
	return assessment, nil
}

func severityForScore(score float64) models.Severity {
	switch {
	case score >= emergencyThreshold:
		return models.SeverityEmergency
	case score >= urgentThreshold:
		return models.SeverityUrgent
	case score >= moderateThreshold:
		return models.SeverityModerate
	default:
		return models.SeverityMild
	}
}

func matchConditions(symptoms map[string]bool) []models.CandidateCondition {
	var out []models.CandidateCondition
	for _, rule := range conditionRules {
		matched := true
		for _, req := range rule.required {
			if !symptoms[req] {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, models.CandidateCondition{Name: rule.name, Confidence: rule.confidence})
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}

// PrimarySpecialty suggests the provider specialty for the top candidate
// condition, defaulting to general practice.
func PrimarySpecialty(assessment models.Assessment) string {
	if len(assessment.Conditions) == 0 {
		return "general practice"
	}
	switch assessment.Conditions[0].Name {
	case "acute cardiac event":
		return "cardiology"
	case "respiratory infection", "common cold":
		return "pulmonology"
	case "gastroenteritis", "gastric upset":
		return "gastroenterology"
	case "malaria", "throat infection":
		return "internal medicine"
	default:
		return "general practice"
	}
}

// Validate checks that an assessment produced by any backend is usable.
func Validate(a models.Assessment) error {
	if !models.IsValidSeverity(a.Severity) {
		return fmt.Errorf("invalid severity %q", a.Severity)
	}
	if a.RiskScore < 0 || a.RiskScore > 1 {
		return fmt.Errorf("risk score %v out of range [0,1]", a.RiskScore)
	}
	return nil
}
