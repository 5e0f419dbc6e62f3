// Package i18n holds the localized message catalog for the triage conversation.
//
// Every outbound prompt the state machine emits is looked up here by language
// code and message key, falling back to English when a translation is missing.
package i18n

// Supported language codes. DefaultLanguage is used until a session resolves
// its language and whenever detection finds nothing.
const (
	LangEnglish = "en"
	LangPidgin  = "pcm"
	LangYoruba  = "yo"
	LangHausa   = "ha"
	LangIgbo    = "ig"

	DefaultLanguage = LangEnglish
)

// SupportedLanguages is the fixed priority order used for deterministic
// tie-breaking in language detection: the first language in this slice wins a tie.
var SupportedLanguages = []string{LangEnglish, LangPidgin, LangYoruba, LangHausa, LangIgbo}

// LanguageNames maps codes to the names users type or see on selection buttons.
var LanguageNames = map[string]string{
	LangEnglish: "English",
	LangPidgin:  "Pidgin",
	LangYoruba:  "Yoruba",
	LangHausa:   "Hausa",
	LangIgbo:    "Igbo",
}

// IsSupported reports whether code is a supported language code.
func IsSupported(code string) bool {
	_, ok := LanguageNames[code]
	return ok
}

// Message keys used by the triage engine.
const (
	KeyWelcome          = "welcome"
	KeyDemographics     = "demographics_prompt"
	KeySymptoms         = "symptoms_prompt"
	KeySymptomFollowUp  = "symptom_follow_up"
	KeyAssessing        = "assessing"
	KeyTriageResult     = "triage_result"
	KeyProviderPrompt   = "provider_prompt"
	KeyNoProviders      = "no_providers"
	KeyBookingPrompt    = "booking_prompt"
	KeyBookingConfirmed = "booking_confirmed"
	KeyEmergency        = "emergency"
	KeyCompleted        = "completed"
	KeyEmergencyClosed  = "emergency_closed"
	KeyTryAgain         = "try_again"
)

// catalog maps language -> key -> message text. English is complete; other
// languages may omit keys and fall back.
var catalog = map[string]map[string]string{
	LangEnglish: {
		KeyWelcome:          "Welcome to HealthBridge Triage. I can help you figure out what care you need. Please choose a language to continue.",
		KeyDemographics:     "Thank you. To assess you properly, please tell me your age and gender (for example: \"34, female\").",
		KeySymptoms:         "Now describe the symptoms you are experiencing, in your own words.",
		KeySymptomFollowUp:  "Thank you. Can you tell me a bit more about how you feel? Any other symptoms?",
		KeyAssessing:        "Thank you, I have enough to work with. Send any message and I will share my assessment.",
		KeyTriageResult:     "Based on what you told me, here is my assessment:",
		KeyProviderPrompt:   "These providers near you can help. Reply with the provider you would like to see.",
		KeyNoProviders:      "I could not find available providers right now. A care coordinator will contact you shortly.",
		KeyBookingPrompt:    "Great choice. Reply with anything to confirm your appointment request.",
		KeyBookingConfirmed: "Your appointment request has been submitted. Reference: %s. The clinic will confirm your time slot shortly.",
		KeyEmergency:        "⚠️ This sounds like an emergency. Please call your local emergency line or go to the nearest hospital immediately. A human responder has been alerted.",
		KeyCompleted:        "Your triage session is complete. Send a new message anytime you need help.",
		KeyEmergencyClosed:  "Your case has been escalated to a human responder. If your condition worsens, call your local emergency line now.",
		KeyTryAgain:         "Sorry, something went wrong on our side. Please send your message again in a moment.",
	},
	LangPidgin: {
		KeyWelcome:          "Welcome to HealthBridge Triage. I fit help you sabi which care you need. Abeg choose language make we continue.",
		KeyDemographics:     "Thank you. Make I sabi you well, abeg tell me your age and gender (example: \"34, female\").",
		KeySymptoms:         "Now tell me wetin dey do you, as e dey do you.",
		KeySymptomFollowUp:  "Thank you. You fit tell me more about how your body dey? Any other thing wey dey worry you?",
		KeyProviderPrompt:   "These doctors near you fit help. Reply with the one wey you want see.",
		KeyBookingConfirmed: "We don submit your appointment request. Reference: %s. The clinic go confirm your time soon.",
		KeyEmergency:        "⚠️ This one be like emergency. Abeg call emergency line or go the nearest hospital sharp sharp. We don alert person wey go help you.",
		KeyTryAgain:         "Sorry, something spoil for our side. Abeg send your message again small time.",
	},
	LangYoruba: {
		KeyWelcome:          "Ẹ ku abọ si HealthBridge Triage. Mo le ran ọ lọwọ lati mọ iru itọju ti o nilo. Jọwọ yan ede lati tẹsiwaju.",
		KeyDemographics:     "O ṣeun. Lati ṣe ayẹwo rẹ daradara, jọwọ sọ ọjọ-ori ati akọ tabi abo rẹ (fun apẹẹrẹ: \"34, obinrin\").",
		KeySymptoms:         "Bayi ṣe apejuwe awọn aami aisan ti o n ni iriri rẹ.",
		KeySymptomFollowUp:  "O ṣeun. Ṣe o le sọ diẹ sii nipa bi ara rẹ ṣe ri? Aami aisan miiran?",
		KeyProviderPrompt:   "Awọn oniṣegun wọnyi nitosi rẹ le ṣe iranlọwọ. Fesi pẹlu eyi ti o fẹ ri.",
		KeyBookingConfirmed: "A ti fi ibeere ipinnu rẹ silẹ. Itọkasi: %s. Ile-iwosan yoo jẹrisi akoko rẹ laipẹ.",
		KeyEmergency:        "⚠️ Eyi dabi pajawiri. Jọwọ pe laini pajawiri tabi lọ si ile-iwosan to sunmọ ọ lẹsẹkẹsẹ. A ti kesi oluranlọwọ eniyan.",
		KeyTryAgain:         "Ma binu, nkan kan ṣẹlẹ si wa. Jọwọ tun fi ifiranṣẹ rẹ ranṣẹ laipẹ.",
	},
	LangHausa: {
		KeyWelcome:          "Barka da zuwa HealthBridge Triage. Zan iya taimaka maka ka san irin kulawar da kake bukata. Don Allah zaɓi harshe don ci gaba.",
		KeyDemographics:     "Na gode. Domin a duba ka da kyau, don Allah fada min shekarunka da jinsinka (misali: \"34, mace\").",
		KeySymptoms:         "Yanzu bayyana alamomin rashin lafiyar da kake ji.",
		KeySymptomFollowUp:  "Na gode. Ko za ka iya gaya min ƙarin yadda kake ji? Wata alama kuma?",
		KeyProviderPrompt:   "Waɗannan likitoci kusa da kai za su iya taimakawa. Amsa da wanda kake son gani.",
		KeyBookingConfirmed: "An aika bukatar ganawarka. Lamba: %s. Asibitin zai tabbatar da lokacinka nan ba da jimawa ba.",
		KeyEmergency:        "⚠️ Wannan kamar gaggawa ne. Don Allah kira layin gaggawa ko je asibiti mafi kusa nan take. An sanar da mai taimako.",
		KeyTryAgain:         "Yi hakuri, wani abu ya samu matsala a wurinmu. Don Allah sake aiko saƙonka nan gaba kaɗan.",
	},
	LangIgbo: {
		KeyWelcome:          "Nnọọ na HealthBridge Triage. Enwere m ike inyere gị aka ịmata ụdị nlekọta ị chọrọ. Biko họrọ asụsụ ka anyị gaa n'ihu.",
		KeyDemographics:     "Daalụ. Ka e nyochaa gị nke ọma, biko gwa m afọ gị na okike gị (ọmụmaatụ: \"34, nwanyị\").",
		KeySymptoms:         "Ugbu a kọwaa ihe mgbaàmà ndị na-eme gị.",
		KeySymptomFollowUp:  "Daalụ. Ị nwere ike ịgwakwu m otú ahụ dị gị? Mgbaàmà ọzọ ọ dị?",
		KeyProviderPrompt:   "Ndị dọkịta a dị gị nso nwere ike inye aka. Zaghachi na onye ị chọrọ ịhụ.",
		KeyBookingConfirmed: "E zipụla arịrịọ oge gị. Ntụaka: %s. Ụlọ ọgwụ ga-akwado oge gị n'oge na-adịghị anya.",
		KeyEmergency:        "⚠️ Nke a dị ka ihe mberede. Biko kpọọ ahịrị ihe mberede ma ọ bụ gaa n'ụlọ ọgwụ kacha nso ozugbo. A gwala onye enyemaka mmadụ.",
		KeyTryAgain:         "Ndo, ihe mebiri n'akụkụ anyị. Biko zipu ozi gị ọzọ n'oge na-adịghị anya.",
	},
}

// Lookup returns the message for the given language and key, falling back to
// English when the language has no translation. Unknown keys return the empty
// string; callers treat that as a programming error.
func Lookup(lang, key string) string {
	if msgs, ok := catalog[lang]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	return catalog[DefaultLanguage][key]
}
