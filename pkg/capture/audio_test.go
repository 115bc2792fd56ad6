package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/stt"
)

// recorder is a Listener that logs events in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	done   chan struct{}
	once   sync.Once
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) add(e string, terminal bool) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if terminal {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) OnReady()              { r.add("ready", false) }
func (r *recorder) OnSpeechBegin()        { r.add("speech", false) }
func (r *recorder) OnPartial(text string) { r.add("partial:"+text, false) }
func (r *recorder) OnResult(text string)  { r.add("result:"+text, true) }
func (r *recorder) OnError(code ErrorCode, err error) {
	r.add("error:"+code.String(), true)
}

func (r *recorder) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func speechScript(cfg audioio.Config) audioio.MockSourceOption {
	return audioio.WithScript(
		audioio.Tone(cfg, 200*time.Millisecond, 0, 0),
		audioio.Tone(cfg, time.Second, 440, 0.5),
	)
}

func newAudioRecognizer(t *testing.T, src audioio.Source, tr stt.Transcriber, cfg AudioConfig) Recognizer {
	t.Helper()
	rec, err := NewAudioRecognizerFactory(src, tr, cfg)()
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	return rec
}

func TestAudioRecognizerTranscribesUtterance(t *testing.T) {
	cfg := audioio.DefaultConfig()
	src := audioio.NewMockSource(cfg, nil, audioio.WithoutPacing(), speechScript(cfg))

	var gotAudio []byte
	tr := &stt.Mock{TranscribeFunc: func(ctx context.Context, req *stt.Request) (*stt.Result, error) {
		gotAudio = req.Audio
		return &stt.Result{Text: "こんにちは"}, nil
	}}

	var latency time.Duration
	acfg := DefaultAudioConfig()
	acfg.OnTranscribed = func(d time.Duration) { latency = d }
	rec := newAudioRecognizer(t, src, tr, acfg)

	l := newRecorder()
	require.NoError(t, rec.Listen(context.Background(), SessionConfig{Language: "ja", SilenceTimeout: 5 * time.Second}, l))

	assert.Equal(t, []string{"ready", "speech", "result:こんにちは"}, l.wait(t))
	require.Equal(t, 1, tr.CallCount())
	assert.Equal(t, "ja", tr.Calls()[0].Language)
	assert.True(t, strings.HasPrefix(string(gotAudio), "RIFF"))
	// Preroll + 1s tone + release tail.
	assert.Greater(t, len(gotAudio), 44+2*cfg.SampleRate)
	assert.GreaterOrEqual(t, latency, time.Duration(0))
}

func TestAudioRecognizerSpeechTimeout(t *testing.T) {
	cfg := audioio.DefaultConfig()
	src := audioio.NewMockSource(cfg, nil, audioio.WithoutPacing())
	tr := stt.NewMock("unused")
	rec := newAudioRecognizer(t, src, tr, DefaultAudioConfig())

	l := newRecorder()
	require.NoError(t, rec.Listen(context.Background(), SessionConfig{SilenceTimeout: 200 * time.Millisecond}, l))

	assert.Equal(t, []string{"ready", "error:speech_timeout"}, l.wait(t))
	assert.Equal(t, 0, tr.CallCount())
}

func TestAudioRecognizerTranscriptionErrors(t *testing.T) {
	cfg := audioio.DefaultConfig()
	src := audioio.NewMockSource(cfg, nil, audioio.WithoutPacing(), speechScript(cfg))
	tr := &stt.Mock{TranscribeFunc: func(ctx context.Context, req *stt.Request) (*stt.Result, error) {
		return nil, &stt.APIError{StatusCode: 429, Provider: "openai"}
	}}
	rec := newAudioRecognizer(t, src, tr, DefaultAudioConfig())

	l := newRecorder()
	require.NoError(t, rec.Listen(context.Background(), SessionConfig{SilenceTimeout: 5 * time.Second}, l))
	assert.Equal(t, []string{"ready", "speech", "error:busy"}, l.wait(t))
}

func TestAudioRecognizerSourceFailure(t *testing.T) {
	cfg := audioio.DefaultConfig()
	src := audioio.NewMockSource(cfg, nil, audioio.WithoutPacing(), audioio.WithFailure(errors.New("unplugged")))
	rec := newAudioRecognizer(t, src, stt.NewMock(""), DefaultAudioConfig())

	l := newRecorder()
	require.NoError(t, rec.Listen(context.Background(), SessionConfig{SilenceTimeout: 5 * time.Second}, l))
	assert.Equal(t, []string{"ready", "error:audio"}, l.wait(t))
}

func TestAudioRecognizerCancelReportsClient(t *testing.T) {
	cfg := audioio.DefaultConfig()
	src := audioio.NewMockSource(cfg, nil)
	rec := newAudioRecognizer(t, src, stt.NewMock(""), DefaultAudioConfig())

	l := newRecorder()
	require.NoError(t, rec.Listen(context.Background(), SessionConfig{SilenceTimeout: time.Minute}, l))
	assert.ErrorIs(t, rec.Listen(context.Background(), SessionConfig{}, l), ErrRecognizerBusy)

	time.Sleep(50 * time.Millisecond)
	rec.Cancel()
	events := l.wait(t)
	assert.Equal(t, "error:client", events[len(events)-1])

	require.NoError(t, rec.Close())
	assert.ErrorIs(t, rec.Listen(context.Background(), SessionConfig{}, l), ErrRecognizerClosed)
}

func TestAudioRecognizerPartials(t *testing.T) {
	cfg := audioio.DefaultConfig()
	src := audioio.NewMockSource(cfg, nil, audioio.WithoutPacing(), audioio.WithScript(
		audioio.Tone(cfg, 100*time.Millisecond, 440, 0.5),
		audioio.Tone(cfg, 100*time.Millisecond, 440, 0.5),
		audioio.Tone(cfg, 100*time.Millisecond, 440, 0.5),
		audioio.Tone(cfg, 100*time.Millisecond, 440, 0.5),
	))

	var mu sync.Mutex
	calls := 0
	tr := &stt.Mock{TranscribeFunc: func(ctx context.Context, req *stt.Request) (*stt.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return &stt.Result{Text: fmt.Sprintf("t%d", calls)}, nil
	}}

	acfg := DefaultAudioConfig()
	acfg.PartialInterval = 100 * time.Millisecond
	rec := newAudioRecognizer(t, src, tr, acfg)

	l := newRecorder()
	require.NoError(t, rec.Listen(context.Background(), SessionConfig{SilenceTimeout: 5 * time.Second, Partials: true}, l))
	events := l.wait(t)

	assert.Equal(t, "ready", events[0])
	assert.Equal(t, "speech", events[1])
	assert.True(t, strings.HasPrefix(events[len(events)-1], "result:"))
	var partials int
	for _, e := range events {
		if strings.HasPrefix(e, "partial:") {
			partials++
		}
	}
	assert.GreaterOrEqual(t, partials, 1)
}

func TestAudioRecognizerFinalDoesNotWaitForPartial(t *testing.T) {
	cfg := audioio.DefaultConfig()
	src := audioio.NewMockSource(cfg, nil, audioio.WithoutPacing(), speechScript(cfg))

	var mu sync.Mutex
	calls := 0
	interimCancelled := make(chan struct{})
	tr := &stt.Mock{TranscribeFunc: func(ctx context.Context, req *stt.Request) (*stt.Result, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			// The interim request hangs until abandoned.
			select {
			case <-ctx.Done():
				close(interimCancelled)
				return nil, ctx.Err()
			case <-time.After(10 * time.Second):
				return &stt.Result{Text: "late"}, nil
			}
		}
		return &stt.Result{Text: "final"}, nil
	}}

	acfg := DefaultAudioConfig()
	acfg.PartialInterval = 100 * time.Millisecond
	rec := newAudioRecognizer(t, src, tr, acfg)

	l := newRecorder()
	start := time.Now()
	require.NoError(t, rec.Listen(context.Background(), SessionConfig{SilenceTimeout: 5 * time.Second, Partials: true}, l))

	assert.Equal(t, []string{"ready", "speech", "result:final"}, l.wait(t))
	assert.Less(t, time.Since(start), 2*time.Second)
	select {
	case <-interimCancelled:
	case <-time.After(time.Second):
		t.Fatal("interim transcription was not cancelled")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTranscriptionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), ErrorNetworkTimeout},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, ErrorNetworkTimeout},
		{"net", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrorNetwork},
		{"server", &stt.APIError{StatusCode: 503}, ErrorServer},
		{"rate limited", stt.WrapError("openai", &stt.APIError{StatusCode: 429}), ErrorBusy},
		{"unauthorized", &stt.APIError{StatusCode: 401}, ErrorInsufficientPermissions},
		{"forbidden", &stt.APIError{StatusCode: 403}, ErrorInsufficientPermissions},
		{"bad request", &stt.APIError{StatusCode: 400}, ErrorUnknown},
		{"other", errors.New("boom"), ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTranscriptionError(tt.err))
		})
	}
}

func TestVADHysteresis(t *testing.T) {
	cfg := audioio.DefaultConfig()
	loud := audioio.Tone(cfg, 20*time.Millisecond, 440, 0.5).Samples
	quiet := make([]int16, len(loud))
	d := 20 * time.Millisecond

	v := NewVAD(DefaultVADConfig())
	assert.Equal(t, VADNone, v.Process(loud, d))
	assert.Equal(t, VADNone, v.Process(loud, d))
	assert.Equal(t, VADSpeechStart, v.Process(loud, d))
	assert.True(t, v.Active())

	for i := 0; i < 39; i++ {
		require.Equal(t, VADNone, v.Process(quiet, d), "frame %d", i)
	}
	assert.Equal(t, VADSpeechEnd, v.Process(quiet, d))
	assert.False(t, v.Active())

	assert.InDelta(t, -9.0, LevelDBFS(loud), 1.0)
	assert.Equal(t, -100.0, LevelDBFS(quiet))
}
