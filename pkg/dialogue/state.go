package dialogue

import (
	"encoding/json"
	"fmt"
)

// State is the coarse dialogue state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UIState is the snapshot shown to the user. A new value is published on
// every change; published values are never modified.
type UIState struct {
	State      State  `json:"state"`
	Listening  bool   `json:"listening"`
	Processing bool   `json:"processing"`
	Error      string `json:"error,omitempty"`
}
