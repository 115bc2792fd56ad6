// Package convlog keeps the ordered conversation log.
//
// A Turn is one utterance by the user or the agent. Turns are immutable;
// the log only grows, except for explicit bulk deletes and clears from the
// dashboard. The whole log is persisted as one JSON document.
package convlog

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced a turn.
type Speaker int

const (
	// SpeakerUser is the human.
	SpeakerUser Speaker = iota
	// SpeakerAgent is the companion.
	SpeakerAgent
)

// String returns "user" or "agent".
func (s Speaker) String() string {
	if s == SpeakerUser {
		return "user"
	}
	return "agent"
}

// Turn is one utterance in the conversation log.
type Turn struct {
	ID        string
	Text      string
	Speaker   Speaker
	Timestamp time.Time
	Visible   bool
}

// NewTurn creates a visible turn stamped with the current time.
func NewTurn(text string, speaker Speaker) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Text:      text,
		Speaker:   speaker,
		Timestamp: time.Now(),
		Visible:   true,
	}
}

// UserTurn creates a user turn.
func UserTurn(text string) Turn { return NewTurn(text, SpeakerUser) }

// AgentTurn creates an agent turn.
func AgentTurn(text string) Turn { return NewTurn(text, SpeakerAgent) }

// IsUser reports whether the user spoke this turn.
func (t Turn) IsUser() bool {
	return t.Speaker == SpeakerUser
}

// turnJSON is the persisted form. Field names match the log format the
// companion has always written, with timestamps in Unix milliseconds.
type turnJSON struct {
	ID        string `json:"id,omitempty"`
	Message   string `json:"message"`
	IsUser    bool   `json:"isUser"`
	Timestamp int64  `json:"timestamp"`
	IsVisible *bool  `json:"isVisible,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t Turn) MarshalJSON() ([]byte, error) {
	visible := t.Visible
	return json.Marshal(turnJSON{
		ID:        t.ID,
		Message:   t.Text,
		IsUser:    t.IsUser(),
		Timestamp: t.Timestamp.UnixMilli(),
		IsVisible: &visible,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Records without an id get one,
// records without isVisible are visible.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var w turnJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	t.ID = w.ID
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Text = w.Message
	t.Speaker = SpeakerAgent
	if w.IsUser {
		t.Speaker = SpeakerUser
	}
	t.Timestamp = time.UnixMilli(w.Timestamp)
	t.Visible = w.IsVisible == nil || *w.IsVisible
	return nil
}

// Order is a sort direction by timestamp.
type Order int

const (
	// Ascending lists oldest first.
	Ascending Order = iota
	// Descending lists newest first.
	Descending
)

// ParseOrder maps "asc"/"desc" to an Order, defaulting to Ascending.
func ParseOrder(s string) Order {
	if s == "desc" {
		return Descending
	}
	return Ascending
}

// Sorted returns a copy of turns ordered by timestamp. Turns with equal
// timestamps keep their log order.
func Sorted(turns []Turn, order Order) []Turn {
	out := append([]Turn(nil), turns...)
	sort.SliceStable(out, func(i, j int) bool {
		if order == Descending {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
