package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/healthbridge/triageflow/internal/models"
)

// userKeyPattern is the basic phone-format check applied to sender ids:
// an optional leading + followed by 7 to 15 digits.
var userKeyPattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// ValidateUserKey checks that key looks like a phone number.
func ValidateUserKey(key string) error {
	if key == "" {
		return models.ErrEmptyUserKey
	}
	if !userKeyPattern.MatchString(key) {
		return models.ErrInvalidUserKey
	}
	return nil
}

// webhookPayload mirrors the WhatsApp Business webhook envelope, trimmed to
// the fields the pipeline reads.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
				Statuses []inboundStatus  `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
}

type inboundStatus struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	Status      string `json:"status"`
}

// ParseIncoming normalizes a raw webhook payload into a CanonicalMessage.
// Delivery receipts come back as KindStatus; the caller short-circuits those.
// Payloads with no resolvable message or sender fail with ErrInvalidPayload.
func ParseIncoming(raw []byte) (models.CanonicalMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.CanonicalMessage{}, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 {
				return normalizeMessage(change.Value.Messages[0])
			}
			if len(change.Value.Statuses) > 0 {
				status := change.Value.Statuses[0]
				return models.CanonicalMessage{
					UserKey:          status.RecipientID,
					ChannelMessageID: status.ID,
					Text:             status.Status,
					Kind:             models.KindStatus,
					Timestamp:        time.Now(),
				}, nil
			}
		}
	}
	return models.CanonicalMessage{}, fmt.Errorf("%w: no message or status in payload", models.ErrInvalidPayload)
}

func normalizeMessage(msg inboundMessage) (models.CanonicalMessage, error) {
	if err := ValidateUserKey(msg.From); err != nil {
		return models.CanonicalMessage{}, fmt.Errorf("%w: sender %q: %v", models.ErrInvalidPayload, msg.From, err)
	}
	if msg.ID == "" {
		return models.CanonicalMessage{}, fmt.Errorf("%w: message without id", models.ErrInvalidPayload)
	}

	out := models.CanonicalMessage{
		UserKey:          msg.From,
		ChannelMessageID: msg.ID,
		Timestamp:        parseTimestamp(msg.Timestamp),
	}

	switch msg.Type {
	case "text":
		out.Kind = models.KindText
		if msg.Text != nil {
			out.Text = msg.Text.Body
		}
	case "interactive":
		if msg.Interactive == nil {
			return models.CanonicalMessage{}, fmt.Errorf("%w: interactive message without body", models.ErrInvalidPayload)
		}
		switch {
		case msg.Interactive.ButtonReply != nil:
			out.Kind = models.KindButtonReply
			out.ReplyID = msg.Interactive.ButtonReply.ID
			out.Text = msg.Interactive.ButtonReply.Title
		case msg.Interactive.ListReply != nil:
			out.Kind = models.KindListReply
			out.ReplyID = msg.Interactive.ListReply.ID
			out.Text = msg.Interactive.ListReply.Title
		default:
			return models.CanonicalMessage{}, fmt.Errorf("%w: unsupported interactive type %q", models.ErrInvalidPayload, msg.Interactive.Type)
		}
	case "button":
		// Template quick-reply; the payload carries the reply id.
		if msg.Button == nil {
			return models.CanonicalMessage{}, fmt.Errorf("%w: button message without body", models.ErrInvalidPayload)
		}
		out.Kind = models.KindButtonReply
		out.ReplyID = msg.Button.Payload
		out.Text = msg.Button.Text
	case "image", "audio", "video", "document", "sticker", "location":
		out.Kind = models.KindMedia
	case "":
		return models.CanonicalMessage{}, fmt.Errorf("%w: message without type", models.ErrInvalidPayload)
	default:
		// Unknown content types flow through as media so the session still reacts.
		out.Kind = models.KindMedia
	}
	return out, nil
}

// parseTimestamp converts the channel's unix-seconds string, falling back to
// now when absent or malformed.
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now()
	}
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(secs, 0).UTC()
}
