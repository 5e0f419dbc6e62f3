package classify

import (
	"strings"

	"github.com/healthbridge/triageflow/internal/i18n"
)

// EmergencyMatchConfidence is the fixed confidence assigned to any keyword hit.
// Matching is substring-based, not probabilistic.
const EmergencyMatchConfidence = 0.95

// EmergencyResult is the outcome of an emergency keyword check.
type EmergencyResult struct {
	IsEmergency    bool    `json:"is_emergency"`
	MatchedKeyword string  `json:"matched_keyword,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// emergencyKeywords holds the per-language emergency vocabularies. English
// keywords are always checked in addition to the session language, since users
// frequently code-switch mid-conversation.
var emergencyKeywords = map[string][]string{
	i18n.LangEnglish: {
		"can't breathe", "cannot breathe", "not breathing", "difficulty breathing",
		"chest pain", "heart attack", "stroke", "unconscious", "unresponsive",
		"seizure", "convulsion", "severe bleeding", "bleeding heavily",
		"suicide", "kill myself", "overdose", "poisoned", "emergency",
	},
	i18n.LangPidgin: {
		"i no fit breathe", "breath no dey come", "chest dey pain me well well",
		"e don faint", "im no dey respond", "blood dey rush",
	},
	i18n.LangYoruba: {
		"ko le mi", "emi ko ja", "aya mi n dun gan", "daku", "warapa", "eje n jade pupo",
	},
	i18n.LangHausa: {
		"ba zan iya numfashi ba", "ciwon kirji mai tsanani", "suma", "farfadiya", "zubar jini mai yawa",
	},
	i18n.LangIgbo: {
		"enweghị m ike iku ume", "obi mgbu siri ike", "ọ daala", "ahụ ọkụkụ", "ọbara na-agba nke ukwuu",
	},
}

// CheckEmergency substring-matches text against the emergency keyword list for
// the given language plus the English list. First match wins; confidence is the
// fixed constant, never computed.
func CheckEmergency(text, language string) EmergencyResult {
	lowered := strings.ToLower(text)
	langs := []string{language}
	if language != i18n.LangEnglish {
		langs = append(langs, i18n.LangEnglish)
	}
	for _, lang := range langs {
		for _, kw := range emergencyKeywords[lang] {
			if strings.Contains(lowered, kw) {
				return EmergencyResult{IsEmergency: true, MatchedKeyword: kw, Confidence: EmergencyMatchConfidence}
			}
		}
	}
	return EmergencyResult{}
}
