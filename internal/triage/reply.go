package triage

import (
	"strings"

	"github.com/healthbridge/triageflow/internal/i18n"
	"github.com/healthbridge/triageflow/internal/models"
)

// Reply id prefixes and action ids recognized globally, independent of the
// current stage.
const (
	replyPrefixLanguage = "lang_"
	replyPrefixProvider = "provider_"

	ActionFindHospitals = "find_hospitals"
	ActionCallEmergency = "call_emergency"
)

// ParseReplyID converts a raw structured reply id into a typed ReplyIntent.
// Unknown patterns and unsupported language codes come back as Unrecognized so
// stage dispatch can fall through to free-text handling.
func ParseReplyID(raw string) models.ReplyIntent {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, replyPrefixLanguage):
		code := strings.TrimPrefix(raw, replyPrefixLanguage)
		if !i18n.IsSupported(code) {
			return models.ReplyIntent{Kind: models.ReplyUnrecognized}
		}
		return models.ReplyIntent{Kind: models.ReplySelectLanguage, Language: code}
	case strings.HasPrefix(raw, replyPrefixProvider):
		id := strings.TrimPrefix(raw, replyPrefixProvider)
		if id == "" {
			return models.ReplyIntent{Kind: models.ReplyUnrecognized}
		}
		return models.ReplyIntent{Kind: models.ReplySelectProvider, ProviderID: id}
	case raw == ActionFindHospitals, raw == ActionCallEmergency:
		return models.ReplyIntent{Kind: models.ReplyInvokeAction, Action: raw}
	default:
		return models.ReplyIntent{Kind: models.ReplyUnrecognized}
	}
}

// LanguageReplyID builds the reply id carried by a language selection button.
func LanguageReplyID(code string) string {
	return replyPrefixLanguage + code
}

// ProviderReplyID builds the reply id carried by a provider selection row.
func ProviderReplyID(id string) string {
	return replyPrefixProvider + id
}
