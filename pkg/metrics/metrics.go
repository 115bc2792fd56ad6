// Package metrics exposes Prometheus counters for the dialogue loop and
// keeps per-turn latency history for the dashboard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// States reported by the state gauge.
var States = []string{"idle", "listening", "processing", "speaking"}

// Metrics holds the companion's Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	latency  *LatencyCollector

	TurnsTotal            *prometheus.CounterVec
	RemoteRequestsTotal   *prometheus.CounterVec
	RemoteRequestDuration prometheus.Histogram
	TranscriptionDuration prometheus.Histogram
	SynthesisDuration     prometheus.Histogram
	SynthesisCharsTotal   prometheus.Counter
	UtterancesTotal       *prometheus.CounterVec
	CaptureErrorsTotal    *prometheus.CounterVec
	ListenRetriesTotal    *prometheus.CounterVec
	DroppedTranscripts    prometheus.Counter
	State                 *prometheus.GaugeVec
}

// New creates a Metrics instance with every metric registered on its own
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "companion"
	}

	registry := prometheus.NewRegistry()
	latencyBuckets := []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns logged",
		},
		[]string{"speaker"},
	)

	remoteRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Chat completion requests",
		},
		[]string{"status"},
	)

	remoteRequestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Chat completion request duration in seconds",
			Buckets:   latencyBuckets,
		},
	)

	transcriptionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Speech-to-text duration in seconds",
			Buckets:   latencyBuckets,
		},
	)

	synthesisDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Text-to-speech synthesis duration in seconds",
			Buckets:   latencyBuckets,
		},
	)

	synthesisCharsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_chars_total",
			Help:      "Characters sent to text-to-speech",
		},
	)

	utterancesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Spoken utterances by outcome",
		},
		[]string{"outcome"},
	)

	captureErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Speech capture errors by code",
		},
		[]string{"code"},
	)

	listenRetriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listen_retries_total",
			Help:      "Deferred listening starts by reason",
		},
		[]string{"reason"},
	)

	droppedTranscripts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_transcripts_total",
			Help:      "Final transcripts dropped while a request was in flight",
		},
	)

	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current dialogue state (1 for the active state)",
		},
		[]string{"state"},
	)

	registry.MustRegister(
		turnsTotal,
		remoteRequestsTotal,
		remoteRequestDuration,
		transcriptionDuration,
		synthesisDuration,
		synthesisCharsTotal,
		utterancesTotal,
		captureErrorsTotal,
		listenRetriesTotal,
		droppedTranscripts,
		state,
	)

	return &Metrics{
		registry:              registry,
		latency:               NewLatencyCollector(),
		TurnsTotal:            turnsTotal,
		RemoteRequestsTotal:   remoteRequestsTotal,
		RemoteRequestDuration: remoteRequestDuration,
		TranscriptionDuration: transcriptionDuration,
		SynthesisDuration:     synthesisDuration,
		SynthesisCharsTotal:   synthesisCharsTotal,
		UtterancesTotal:       utterancesTotal,
		CaptureErrorsTotal:    captureErrorsTotal,
		ListenRetriesTotal:    listenRetriesTotal,
		DroppedTranscripts:    droppedTranscripts,
		State:                 state,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Latency returns the per-turn latency collector.
func (m *Metrics) Latency() *LatencyCollector {
	if m == nil {
		return nil
	}
	return m.latency
}

// RecordTurn counts a logged turn.
func (m *Metrics) RecordTurn(speaker string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(speaker).Inc()
}

// RecordRemote records a completed chat completion request.
func (m *Metrics) RecordRemote(err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RemoteRequestsTotal.WithLabelValues(status).Inc()
	m.RemoteRequestDuration.Observe(duration.Seconds())
}

// RecordTranscription records a final transcription.
func (m *Metrics) RecordTranscription(duration time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(duration.Seconds())
	m.latency.ObserveASR(duration)
}

// RecordSynthesis records one text-to-speech request.
func (m *Metrics) RecordSynthesis(duration time.Duration, chars int) {
	if m == nil {
		return
	}
	m.SynthesisDuration.Observe(duration.Seconds())
	if chars > 0 {
		m.SynthesisCharsTotal.Add(float64(chars))
	}
	m.latency.ObserveTTS(duration)
}

// RecordUtterance counts a finished utterance.
func (m *Metrics) RecordUtterance(outcome string) {
	if m == nil {
		return
	}
	m.UtterancesTotal.WithLabelValues(outcome).Inc()
}

// RecordCaptureError counts a capture error.
func (m *Metrics) RecordCaptureError(code string) {
	if m == nil {
		return
	}
	m.CaptureErrorsTotal.WithLabelValues(code).Inc()
}

// RecordListenRetry counts a deferred listening start.
func (m *Metrics) RecordListenRetry(reason string) {
	if m == nil {
		return
	}
	m.ListenRetriesTotal.WithLabelValues(reason).Inc()
}

// RecordDroppedTranscript counts a transcript dropped by the in-flight guard.
func (m *Metrics) RecordDroppedTranscript() {
	if m == nil {
		return
	}
	m.DroppedTranscripts.Inc()
}

// SetState marks state as the active one.
func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}
