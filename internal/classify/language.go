// Package classify provides pure text classifiers for the triage pipeline:
// language detection and emergency keyword matching. Classifiers never perform
// I/O and never fail; any panic here is a programming error.
package classify

import (
	"regexp"
	"strings"

	"github.com/healthbridge/triageflow/internal/i18n"
)

// languagePatterns maps each supported language to the keyword patterns scored
// during detection. Patterns are matched case-insensitively against the whole
// message text; each matching pattern contributes one point.
var languagePatterns = map[string][]*regexp.Regexp{
	i18n.LangEnglish: compilePatterns(
		`\benglish\b`, `\bhello\b`, `\bplease\b`, `\bthank you\b`, `\bgood (morning|afternoon|evening)\b`,
	),
	i18n.LangPidgin: compilePatterns(
		`\bpidgin\b`, `\babeg\b`, `\bwetin\b`, `\bdey\b`, `\bsabi\b`, `\bwahala\b`, `\bshey\b`,
	),
	i18n.LangYoruba: compilePatterns(
		`\byoruba\b`, `\bjọwọ\b`, `\bjowo\b`, `\bẹ ku\b`, `\beku\b`, `\bbawo\b`, `\bo ṣeun\b`, `\bose\b`, `\baisan\b`,
	),
	i18n.LangHausa: compilePatterns(
		`\bhausa\b`, `\bsannu\b`, `\bna gode\b`, `\bdon allah\b`, `\blafiya\b`, `\byaya\b`, `\bciwo\b`,
	),
	i18n.LangIgbo: compilePatterns(
		`\bigbo\b`, `\bbiko\b`, `\bndewo\b`, `\bdaalụ\b`, `\bdaalu\b`, `\bkedu\b`, `\bahụ\b`, `\bnnọọ\b`,
	),
}

func compilePatterns(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// DetectLanguage scores each supported language by counting keyword pattern
// hits in text and returns the highest-scoring language code. Ties break on
// the fixed priority order of i18n.SupportedLanguages; all-zero scores return
// the system default.
func DetectLanguage(text string) string {
	best := i18n.DefaultLanguage
	bestScore := 0
	for _, lang := range i18n.SupportedLanguages {
		score := 0
		for _, re := range languagePatterns[lang] {
			if re.MatchString(text) {
				score++
			}
		}
		if score > bestScore {
			best = lang
			bestScore = score
		}
	}
	return best
}

// ResolveLanguageName maps a typed language name (substring, case-insensitive)
// to its code. Returns the empty string when no supported language name occurs
// in the text.
func ResolveLanguageName(text string) string {
	lowered := strings.ToLower(text)
	for _, code := range i18n.SupportedLanguages {
		if strings.Contains(lowered, strings.ToLower(i18n.LanguageNames[code])) {
			return code
		}
	}
	return ""
}
