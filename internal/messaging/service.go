// Package messaging defines the pluggable delivery abstraction used to send
// triage replies, and the renderer that turns channel-agnostic outbound
// intents into deliverable text.
package messaging

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/healthbridge/triageflow/internal/models"
)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Each service implements its own recipient rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., inbound event bridging).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}

// Ingestor is the slice of the ingestion pipeline a channel service needs to
// bridge inbound events. *pipeline.Pipeline satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, raw []byte) (models.IngestResult, error)
}

// Deliver renders the outbound intent and sends it through the service.
func Deliver(ctx context.Context, svc Service, to string, intent models.OutboundIntent) error {
	body := Render(intent)
	if body == "" {
		return nil
	}
	return svc.SendMessage(ctx, to, body)
}

var recipientPattern = regexp.MustCompile(`^[0-9]{7,15}$`)

// canonicalizeRecipient strips channel prefixes and the leading + and checks
// the remaining digits look like a phone number.
func canonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(recipient)
	r = strings.TrimPrefix(r, "whatsapp:")
	r = strings.TrimPrefix(r, "+")
	if !recipientPattern.MatchString(r) {
		return "", fmt.Errorf("invalid recipient %q: expected a phone number", recipient)
	}
	return r, nil
}
