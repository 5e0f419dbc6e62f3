package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/healthbridge/triageflow/internal/whatsapp"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
// When constructed with a full client and an ingestor, Start bridges inbound
// message events into the webhook pipeline and delivers the resulting replies.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // nil when client is a mock
	ingestor Ingestor
	done     chan struct{}
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.WhatsAppSender, ingestor Ingestor) *WhatsAppService {
	service := &WhatsAppService{
		client:   client,
		ingestor: ingestor,
		done:     make(chan struct{}),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event bridging")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

// SendMessage sends a text message through the underlying client.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

// Start registers the inbound event bridge when a full client is available.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil || s.ingestor == nil {
		slog.Debug("WhatsAppService event bridging skipped", "fullClient", s.waClient != nil, "ingestor", s.ingestor != nil)
		return nil
	}
	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(ctx, msg)
		}
	})
	slog.Debug("WhatsAppService event bridge registered")
	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	close(s.done)
	slog.Info("WhatsAppService stopped")
	return nil
}

// handleIncomingMessage bridges one inbound message event through the
// ingestion pipeline and delivers the reply.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil {
		return
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	raw, err := synthesizeWebhookPayload(evt.Info.Sender.User, evt.Info.ID, text, evt.Info.Timestamp.Unix())
	if err != nil {
		slog.Error("WhatsAppService failed to build inbound payload", "error", err)
		return
	}

	result, err := s.ingestor.Ingest(ctx, raw)
	if err != nil {
		slog.Error("WhatsAppService inbound ingestion failed", "error", err, "from", evt.Info.Sender.User)
		return
	}
	if result.Intent == nil {
		return
	}
	if err := Deliver(ctx, s, evt.Info.Sender.User, *result.Intent); err != nil {
		slog.Error("WhatsAppService reply delivery failed", "error", err, "to", evt.Info.Sender.User)
	}
}

// synthesizeWebhookPayload wraps a native client event in the webhook envelope
// the pipeline parses, so both ingress paths share one normalization.
func synthesizeWebhookPayload(from, messageID, text string, unixTS int64) ([]byte, error) {
	type textBody struct {
		Body string `json:"body"`
	}
	type message struct {
		From      string   `json:"from"`
		ID        string   `json:"id"`
		Timestamp string   `json:"timestamp"`
		Type      string   `json:"type"`
		Text      textBody `json:"text"`
	}
	payload := map[string]interface{}{
		"entry": []map[string]interface{}{{
			"changes": []map[string]interface{}{{
				"value": map[string]interface{}{
					"messages": []message{{
						From:      from,
						ID:        messageID,
						Timestamp: strconv.FormatInt(unixTS, 10),
						Type:      "text",
						Text:      textBody{Body: text},
					}},
				},
			}},
		}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal inbound payload: %w", err)
	}
	return raw, nil
}
