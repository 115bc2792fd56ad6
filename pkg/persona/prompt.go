package persona

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-companion/pkg/convlog"
	"github.com/teslashibe/go-companion/pkg/locale"
)

// Builder renders system prompts in one language.
type Builder struct {
	cat *locale.Catalog
}

// NewBuilder creates a prompt builder. A nil catalog uses the default.
func NewBuilder(cat *locale.Catalog) *Builder {
	if cat == nil {
		cat = locale.DefaultCatalog()
	}
	return &Builder{cat: cat}
}

// Catalog returns the builder's string catalog.
func (b *Builder) Catalog() *locale.Catalog {
	return b.cat
}

// Build renders the system prompt. recent is embedded as the conversation
// context in the order given and the prompt ends with the agent speaker
// label so the model continues as the companion.
func (b *Builder) Build(agent AgentProfile, user UserProfile, recent []convlog.Turn) string {
	c := b.cat
	agent = agent.WithDefaults(c)

	var sb strings.Builder
	line := func(s string) {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	linef := func(format string, args ...any) {
		line(fmt.Sprintf(format, args...))
	}

	line(c.PromptTitle)
	linef(c.PersonaLine, agent.Name)
	line("")

	line(c.SectionAgent)
	linef(c.AgentGender, agent.Gender)
	if agent.Age != "" {
		linef(c.AgentAge, agent.Age)
	}
	line("")

	line(c.SectionPersonality)
	linef(c.PersonalityBase, agent.Personality)
	if agent.PersonalityDetail != "" {
		linef(c.PersonalityDetail, agent.PersonalityDetail)
	}
	linef(c.SpeechStyleBase, agent.SpeechStyle)
	if agent.SpeechStyleDetail != "" {
		linef(c.SpeechStyleDetail, agent.SpeechStyleDetail)
	}
	line("")

	line(c.SectionResponseStyle)
	line(c.ResponseLengthInstruction(agent.ResponseLength))
	for _, ch := range b.characteristics(agent) {
		line(ch)
	}
	line("")

	line(c.SectionUser)
	linef(c.UserName, b.orNotSpecified(user.Name))
	age := c.NotSpecified
	if user.Age != "" {
		age = fmt.Sprintf(c.UserAgeValue, user.Age)
	}
	linef(c.UserAge, age)
	linef(c.UserGender, b.orNotSpecified(user.Gender))
	linef(c.UserHobbies, b.orNotSpecified(user.Hobbies))
	line("")

	line(c.SectionRecent)
	line(c.RecentIntro)
	for _, t := range recent {
		linef("%s: %s", b.speaker(t), t.Text)
	}
	sb.WriteString(c.SpeakerAgent + ": \n")
	line("")

	sb.WriteString(c.Closing)
	return sb.String()
}

func (b *Builder) characteristics(agent AgentProfile) []string {
	var out []string
	if agent.ConsistentStyle {
		out = append(out, b.cat.ConsistentStyle)
	}
	if agent.Empathy {
		out = append(out, b.cat.Empathy)
	}
	if agent.Soothing {
		out = append(out, b.cat.Soothing)
	}
	return out
}

func (b *Builder) orNotSpecified(s string) string {
	if s == "" {
		return b.cat.NotSpecified
	}
	return s
}

func (b *Builder) speaker(t convlog.Turn) string {
	if t.IsUser() {
		return b.cat.SpeakerUser
	}
	return b.cat.SpeakerAgent
}
