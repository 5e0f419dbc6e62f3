package messaging

import (
	"context"
	"log/slog"

	"github.com/healthbridge/triageflow/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio WhatsApp client. Inbound
// traffic arrives through the HTTP webhook, so this service is outbound-only.
type TwilioService struct {
	client twiliowhatsapp.TwilioWhatsAppSender
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService wrapping the given sender.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender) *TwilioService {
	return &TwilioService{client: client}
}

func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizeRecipient(recipient)
	if err != nil {
		return "", err
	}
	// Twilio wants E.164 with the plus.
	return "+" + canonical, nil
}

func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

func (s *TwilioService) Start(ctx context.Context) error {
	slog.Debug("TwilioService started (webhook-driven, no background processing)")
	return nil
}

func (s *TwilioService) Stop() error {
	return nil
}

// MockService records sent messages for tests.
type MockService struct {
	Sent []SentMessage
}

type SentMessage struct {
	To   string
	Body string
}

var _ Service = (*MockService)(nil)

func NewMockService() *MockService {
	return &MockService{}
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

func (m *MockService) SendMessage(ctx context.Context, to string, body string) error {
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockService) Start(ctx context.Context) error { return nil }
func (m *MockService) Stop() error                     { return nil }
