package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/healthbridge/triageflow/internal/models"
)

const assessmentSystemPrompt = `You are a medical triage assistant. Given a patient's symptoms and demographics,
respond with ONLY a JSON object of the shape:
{"risk_score": <0..1>, "severity": "MILD"|"MODERATE"|"URGENT"|"EMERGENCY",
 "recommendation": "<one sentence>", "conditions": [{"name": "<condition>", "confidence": <0..1>}]}
Do not diagnose definitively; suggest at most three candidate conditions.`

// chatCompleter is the minimal slice of the OpenAI client the assessor needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GenAIAssessor computes assessments with an OpenAI chat model. On any failure
// the caller is expected to degrade (the engine keeps the stage and asks the
// user to retry), so errors here are wrapped, not swallowed.
type GenAIAssessor struct {
	chat  chatCompleter
	model string
}

// NewGenAIAssessor initializes the assessor from the OPENAI_API_KEY environment variable.
func NewGenAIAssessor() (*GenAIAssessor, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	return &GenAIAssessor{chat: openai.NewClient(apiKey), model: openai.GPT4oMini}, nil
}

// Assess prompts the model with the session's accumulated triage data and
// parses the JSON assessment it returns.
func (a *GenAIAssessor) Assess(ctx context.Context, session models.Session) (models.Assessment, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Symptoms: %s.", strings.Join(session.Triage.Symptoms, ", "))
	if session.Demographics.Age != nil {
		fmt.Fprintf(&sb, " Age: %d.", *session.Demographics.Age)
	}
	if session.Demographics.Gender != "" {
		fmt.Fprintf(&sb, " Gender: %s.", session.Demographics.Gender)
	}

	resp, err := a.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: assessmentSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		slog.Error("GenAIAssessor chat completion failed", "error", err, "userKey", session.UserKey)
		return models.Assessment{}, fmt.Errorf("assessment completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.Assessment{}, fmt.Errorf("assessment completion returned no choices")
	}

	var assessment models.Assessment
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	// Models occasionally wrap JSON in a code fence despite instructions.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &assessment); err != nil {
		slog.Error("GenAIAssessor unparseable assessment", "error", err)
		return models.Assessment{}, fmt.Errorf("failed to parse assessment JSON: %w", err)
	}
	if err := Validate(assessment); err != nil {
		return models.Assessment{}, fmt.Errorf("model returned invalid assessment: %w", err)
	}
	slog.Debug("GenAIAssessor computed assessment", "userKey", session.UserKey,
		"riskScore", assessment.RiskScore, "severity", assessment.Severity)
	return assessment, nil
}
