// Package persona describes who the companion is and who it talks to, and
// renders both into the system prompt sent with every request.
package persona

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-companion/pkg/locale"
)

// Response length tiers.
const (
	MinResponseLength     = 1
	MaxResponseLength     = 5
	DefaultResponseLength = 3
)

// ErrInvalidProfile is returned when a profile fails validation.
var ErrInvalidProfile = errors.New("persona: invalid profile")

// AgentProfile configures the companion's persona.
type AgentProfile struct {
	Name              string `json:"name"`
	Age               string `json:"age"`
	Gender            string `json:"gender"`
	Personality       string `json:"personality"`
	PersonalityDetail string `json:"personality_detail"`
	SpeechStyle       string `json:"speech_style"`
	SpeechStyleDetail string `json:"speech_style_detail"`
	ResponseLength    int    `json:"response_length"`
	ConsistentStyle   bool   `json:"consistent_style"`
	Empathy           bool   `json:"empathy"`
	Soothing          bool   `json:"soothing"`
}

// DefaultAgent returns the stock persona for a catalog.
func DefaultAgent(cat *locale.Catalog) AgentProfile {
	return AgentProfile{
		Name:            cat.DefaultAgentName,
		Gender:          cat.DefaultAgentGender,
		Personality:     cat.DefaultPersonality,
		SpeechStyle:     cat.DefaultSpeechStyle,
		ResponseLength:  DefaultResponseLength,
		ConsistentStyle: true,
		Empathy:         true,
		Soothing:        true,
	}
}

// Validate checks the profile.
func (p AgentProfile) Validate() error {
	if p.ResponseLength < MinResponseLength || p.ResponseLength > MaxResponseLength {
		return fmt.Errorf("%w: response_length must be between %d and %d, got %d",
			ErrInvalidProfile, MinResponseLength, MaxResponseLength, p.ResponseLength)
	}
	return nil
}

// WithDefaults fills empty required fields from the catalog.
func (p AgentProfile) WithDefaults(cat *locale.Catalog) AgentProfile {
	if p.Name == "" {
		p.Name = cat.DefaultAgentName
	}
	if p.Gender == "" {
		p.Gender = cat.DefaultAgentGender
	}
	if p.Personality == "" {
		p.Personality = cat.DefaultPersonality
	}
	if p.SpeechStyle == "" {
		p.SpeechStyle = cat.DefaultSpeechStyle
	}
	if p.ResponseLength == 0 {
		p.ResponseLength = DefaultResponseLength
	}
	return p
}

// UserProfile describes the user. Every field is optional.
type UserProfile struct {
	Name    string `json:"name"`
	Age     string `json:"age"`
	Gender  string `json:"gender"`
	Hobbies string `json:"hobbies"`
}
