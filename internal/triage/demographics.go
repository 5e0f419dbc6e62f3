package triage

import (
	"regexp"
	"strconv"
	"strings"
)

// Age bounds accepted during demographics extraction.
const (
	MinAge = 1
	MaxAge = 120
)

var agePattern = regexp.MustCompile(`\b(\d{1,3})\b`)

// ExtractAge returns the first integer in [MinAge, MaxAge] found in text, or
// nil when none is present.
func ExtractAge(text string) *int {
	for _, match := range agePattern.FindAllString(text, -1) {
		n, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		if n >= MinAge && n <= MaxAge {
			return &n
		}
	}
	return nil
}

// ExtractGender returns "female" or "male" on a case-insensitive substring hit,
// or the empty string. "female" contains "male", so it is checked first and
// suppresses the male match.
func ExtractGender(text string) string {
	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "female") {
		return "female"
	}
	if strings.Contains(lowered, "male") {
		return "male"
	}
	return ""
}
