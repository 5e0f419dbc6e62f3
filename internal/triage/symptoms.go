package triage

import "strings"

// SymptomThreshold is the number of accumulated symptom entries required before
// the flow advances from symptom collection to severity assessment.
const SymptomThreshold = 2

// symptomVocabulary maps canonical symptom names to the substrings that imply
// them. Matching is case-insensitive; the first alias hit records the symptom.
var symptomVocabulary = []struct {
	name    string
	aliases []string
}{
	{"headache", []string{"headache", "head ache", "head hurts", "migraine"}},
	{"fever", []string{"fever", "temperature", "hot body", "chills"}},
	{"cough", []string{"cough", "coughing"}},
	{"chest pain", []string{"chest pain", "chest hurts", "chest tightness"}},
	{"sore throat", []string{"sore throat", "throat pain", "throat hurts"}},
	{"stomach pain", []string{"stomach pain", "stomach ache", "belly pain", "abdominal pain", "cramps"}},
	{"nausea", []string{"nausea", "nauseous", "feel like vomiting"}},
	{"vomiting", []string{"vomit", "throwing up"}},
	{"diarrhea", []string{"diarrhea", "diarrhoea", "loose stool", "running stomach"}},
	{"dizziness", []string{"dizzy", "dizziness", "lightheaded"}},
	{"fatigue", []string{"fatigue", "tired", "weakness", "weak body", "exhausted"}},
	{"rash", []string{"rash", "skin irritation", "itching"}},
	{"back pain", []string{"back pain", "back ache", "back hurts"}},
	{"shortness of breath", []string{"shortness of breath", "breathless", "hard to breathe"}},
	{"body ache", []string{"body ache", "body pain", "joint pain", "muscle pain"}},
	{"runny nose", []string{"runny nose", "catarrh", "blocked nose", "sneezing"}},
}

// ExtractSymptoms runs the fixed-vocabulary keyword match against text and
// returns the canonical names found, in vocabulary order. Each symptom is
// reported at most once per call; repeats across turns are the caller's
// business and are allowed.
func ExtractSymptoms(text string) []string {
	lowered := strings.ToLower(text)
	var found []string
	for _, entry := range symptomVocabulary {
		for _, alias := range entry.aliases {
			if strings.Contains(lowered, alias) {
				found = append(found, entry.name)
				break
			}
		}
	}
	return found
}
