package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordTurn("user")
	m.RecordRemote(nil, time.Second)
	m.RecordTranscription(time.Second)
	m.RecordSynthesis(time.Second, 10)
	m.RecordUtterance("completed")
	m.RecordCaptureError("network")
	m.RecordListenRetry("busy")
	m.RecordDroppedTranscript()
	m.SetState("idle")
	assert.Nil(t, m.Latency())
}

func TestRecordCounters(t *testing.T) {
	m := New("")

	m.RecordTurn("user")
	m.RecordTurn("user")
	m.RecordTurn("agent")
	m.RecordRemote(nil, 200*time.Millisecond)
	m.RecordRemote(errors.New("boom"), time.Second)
	m.RecordCaptureError("no_match")
	m.RecordDroppedTranscript()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteRequestsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteRequestsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CaptureErrorsTotal.WithLabelValues("no_match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedTranscripts))
}

func TestSetStateIsExclusive(t *testing.T) {
	m := New("")
	m.SetState("listening")
	m.SetState("speaking")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.State.WithLabelValues("listening")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("speaking")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("companion")
	m.RecordTurn("user")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `companion_turns_total{speaker="user"} 1`))
}

func TestLatencyCollectorTurn(t *testing.T) {
	c := NewLatencyCollector()
	base := time.Unix(1000, 0)
	now := base
	c.now = func() time.Time { return now }

	updates := make(chan Turn, 1)
	c.OnUpdate(func(turn Turn) { updates <- turn })

	c.ObserveASR(300 * time.Millisecond)
	c.MarkTranscript()
	now = base.Add(time.Second)
	c.MarkResponse()
	now = base.Add(1500 * time.Millisecond)
	c.ObserveTTS(400 * time.Millisecond)

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, 300*time.Millisecond, last.ASR)
	assert.Equal(t, time.Second, last.LLM)
	assert.Equal(t, 400*time.Millisecond, last.TTS)
	assert.Equal(t, 1800*time.Millisecond, last.Total)
	assert.True(t, last.Complete())

	select {
	case turn := <-updates:
		assert.Equal(t, last, turn)
	case <-time.After(time.Second):
		t.Fatal("no update")
	}
}

func TestLatencyCollectorIgnoresUnpairedSynthesis(t *testing.T) {
	c := NewLatencyCollector()

	// Greeting synthesis has no transcript.
	c.ObserveTTS(time.Second)
	assert.Equal(t, 0, c.Count())

	c.MarkTranscript()
	c.ObserveTTS(time.Second)
	assert.Equal(t, 0, c.Count())
}

func TestLatencyCollectorAverage(t *testing.T) {
	c := NewLatencyCollector()
	assert.Equal(t, Turn{}, c.Average())

	base := time.Unix(0, 0)
	for i := 1; i <= 2; i++ {
		now := base
		c.now = func() time.Time { return now }
		c.MarkTranscript()
		now = base.Add(time.Duration(i) * time.Second)
		c.MarkResponse()
		c.ObserveTTS(time.Duration(i) * 100 * time.Millisecond)
	}

	avg := c.Average()
	assert.Equal(t, 1500*time.Millisecond, avg.LLM)
	assert.Equal(t, 150*time.Millisecond, avg.TTS)
	assert.Equal(t, "---ms ASR | 1.5s LLM | 150ms TTS | 1.5s TOTAL", avg.FormatLatency())
}
