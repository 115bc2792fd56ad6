// Package locale holds every user-facing string the companion speaks,
// displays or sends to the model.
//
// A Catalog is selected once at startup by language code and passed to the
// packages that produce text. Japanese is the default; the persona and the
// response-length tiers are written for it (tier limits count characters).
package locale

import (
	"fmt"
	"strings"
)

// Language codes.
const (
	Japanese = "ja"
	English  = "en"
)

// Catalog is a complete set of strings for one language.
type Catalog struct {
	// Code is the ISO-639-1 language code, also sent to transcription.
	Code string

	// Agent defaults.
	DefaultAgentName   string
	DefaultAgentGender string
	DefaultPersonality string
	DefaultSpeechStyle string

	// System prompt.
	PromptTitle          string
	PersonaLine          string // %s: agent name
	SectionAgent         string
	AgentGender          string // %s
	AgentAge             string // %s
	SectionPersonality   string
	PersonalityBase      string // %s
	PersonalityDetail    string // %s
	SpeechStyleBase      string // %s
	SpeechStyleDetail    string // %s
	SectionResponseStyle string
	ResponseLength       [5]string // tiers 1..5
	ConsistentStyle      string
	Empathy              string
	Soothing             string
	SectionUser          string
	UserName             string // %s
	UserAge              string // %s, already suffixed
	UserAgeValue         string // %s: raw age
	UserGender           string // %s
	UserHobbies          string // %s
	NotSpecified         string
	SectionRecent        string
	RecentIntro          string
	SpeakerUser          string
	SpeakerAgent         string
	Closing              string

	// Welcome sequence.
	GreetingRequest string
	WelcomeFallback string

	// Remote dialogue failures.
	ParseFailed    string // %s: parser message
	EmptyResponse  string
	RateLimited    string
	InvalidAPIKey  string
	Forbidden      string
	NotFound       string
	ServerError    string
	StatusError    string // %d: HTTP status
	TransportError string // %s: error message

	// Speech capture failures.
	CaptureNetworkTimeout string
	CaptureNetwork        string
	CaptureAudio          string
	CaptureServer         string
	CaptureSpeechTimeout  string
	CaptureNoMatch        string
	CaptureBusy           string
	CapturePermission     string
	CaptureUnknown        string
	CaptureUnavailable    string
	CaptureStartFailed    string
	CaptureInitFailed     string
}

// DefaultCatalog returns the Japanese catalog.
func DefaultCatalog() *Catalog {
	return ja()
}

// For returns the catalog for a language code, falling back to Japanese.
func For(code string) *Catalog {
	switch strings.ToLower(code) {
	case English, "en-us", "en-gb":
		return en()
	default:
		return ja()
	}
}

// Supported reports whether a language code has its own catalog.
func Supported(code string) bool {
	switch strings.ToLower(code) {
	case Japanese, English:
		return true
	}
	return false
}

// ResponseLengthInstruction returns the tier instruction. Tiers outside
// 1..5 use the standard tier 3.
func (c *Catalog) ResponseLengthInstruction(tier int) string {
	if tier < 1 || tier > len(c.ResponseLength) {
		tier = 3
	}
	return c.ResponseLength[tier-1]
}

// Status formats the generic status failure.
func (c *Catalog) Status(code int) string {
	return fmt.Sprintf(c.StatusError, code)
}

// Transport formats a transport failure.
func (c *Catalog) Transport(msg string) string {
	return fmt.Sprintf(c.TransportError, msg)
}

// Parse formats a response parsing failure.
func (c *Catalog) Parse(msg string) string {
	return fmt.Sprintf(c.ParseFailed, msg)
}
