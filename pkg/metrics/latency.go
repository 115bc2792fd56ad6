package metrics

import (
	"sync"
	"time"
)

const historySize = 100

// Turn holds the latencies of one conversation turn. The reference point
// is the moment the final transcript arrived.
type Turn struct {
	TranscriptAt time.Time `json:"transcript_at"`

	ASR   time.Duration `json:"asr"`   // transcription
	LLM   time.Duration `json:"llm"`   // transcript to reply text
	TTS   time.Duration `json:"tts"`   // synthesis of the reply
	Total time.Duration `json:"total"` // end of user speech to first reply audio
}

// Complete reports whether the turn reached first audio.
func (t Turn) Complete() bool {
	return t.Total > 0
}

// FormatLatency returns the latencies on one line.
func (t Turn) FormatLatency() string {
	return formatDuration(t.ASR) + " ASR | " +
		formatDuration(t.LLM) + " LLM | " +
		formatDuration(t.TTS) + " TTS | " +
		formatDuration(t.Total) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}

// LatencyCollector tracks per-turn latency. It is safe for concurrent use.
type LatencyCollector struct {
	mu         sync.Mutex
	now        func() time.Time
	pendingASR time.Duration
	current    Turn
	open       bool
	history    []Turn

	onUpdate func(Turn)
}

// NewLatencyCollector creates an empty collector.
func NewLatencyCollector() *LatencyCollector {
	return &LatencyCollector{
		now:     time.Now,
		history: make([]Turn, 0, historySize),
	}
}

// OnUpdate sets a callback fired, on its own goroutine, whenever a turn
// completes.
func (c *LatencyCollector) OnUpdate(fn func(Turn)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// ObserveASR records the transcription latency of the upcoming turn.
func (c *LatencyCollector) ObserveASR(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingASR = d
}

// MarkTranscript starts a new turn.
func (c *LatencyCollector) MarkTranscript() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = Turn{TranscriptAt: c.now(), ASR: c.pendingASR}
	c.pendingASR = 0
	c.open = true
}

// MarkResponse records that the reply text arrived.
func (c *LatencyCollector) MarkResponse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.current.LLM != 0 {
		return
	}
	c.current.LLM = c.now().Sub(c.current.TranscriptAt)
}

// ObserveTTS records the reply's synthesis latency. Audio starts right
// after, so this closes the turn.
func (c *LatencyCollector) ObserveTTS(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.current.LLM == 0 {
		return
	}
	c.current.TTS = d
	c.current.Total = c.current.ASR + c.now().Sub(c.current.TranscriptAt)
	c.open = false

	c.history = append(c.history, c.current)
	if len(c.history) > historySize {
		c.history = c.history[1:]
	}
	if c.onUpdate != nil {
		turn := c.current
		go c.onUpdate(turn)
	}
}

// Last returns the most recent completed turn.
func (c *LatencyCollector) Last() (Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return Turn{}, false
	}
	return c.history[len(c.history)-1], true
}

// Average returns the mean latencies over recent turns.
func (c *LatencyCollector) Average() Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 {
		return Turn{}
	}

	var avg Turn
	for _, h := range c.history {
		avg.ASR += h.ASR
		avg.LLM += h.LLM
		avg.TTS += h.TTS
		avg.Total += h.Total
	}

	n := time.Duration(len(c.history))
	avg.ASR /= n
	avg.LLM /= n
	avg.TTS /= n
	avg.Total /= n
	return avg
}

// Count returns how many turns are in the history.
func (c *LatencyCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}
