package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-companion/pkg/locale"
)

// fakeRecognizer lets tests fire recognizer events by hand.
type fakeRecognizer struct {
	mu        sync.Mutex
	listener  Listener
	listens   int
	stops     int
	cancels   int
	closes    int
	listenErr error
}

func (f *fakeRecognizer) Listen(ctx context.Context, cfg SessionConfig, l Listener) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenErr != nil {
		return f.listenErr
	}
	f.listener = l
	f.listens++
	return nil
}

func (f *fakeRecognizer) Stop()   { f.mu.Lock(); f.stops++; f.mu.Unlock() }
func (f *fakeRecognizer) Cancel() {
	f.mu.Lock()
	f.cancels++
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l.OnError(ErrorClient, nil)
	}
}
func (f *fakeRecognizer) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeRecognizer) l() Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener
}

func (f *fakeRecognizer) counts() (listens, stops, cancels, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listens, f.stops, f.cancels, f.closes
}

type fakeFactory struct {
	mu    sync.Mutex
	made  []*fakeRecognizer
	err   error
	setup func(*fakeRecognizer)
}

func (ff *fakeFactory) create() (Recognizer, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.err != nil {
		return nil, ff.err
	}
	r := &fakeRecognizer{}
	if ff.setup != nil {
		ff.setup(r)
	}
	ff.made = append(ff.made, r)
	return r, nil
}

func (ff *fakeFactory) last() *fakeRecognizer {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.made[len(ff.made)-1]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.made)
}

// events records adapter callbacks.
type events struct {
	mu       sync.Mutex
	started  int
	partials []string
	finals   []string
	errors   []ErrorCode
	messages []string
}

func (e *events) callbacks() Callbacks {
	return Callbacks{
		OnStarted: func() { e.mu.Lock(); e.started++; e.mu.Unlock() },
		OnPartial: func(text string) { e.mu.Lock(); e.partials = append(e.partials, text); e.mu.Unlock() },
		OnFinal:   func(text string) { e.mu.Lock(); e.finals = append(e.finals, text); e.mu.Unlock() },
		OnError: func(code ErrorCode, msg string) {
			e.mu.Lock()
			e.errors = append(e.errors, code)
			e.messages = append(e.messages, msg)
			e.mu.Unlock()
		},
	}
}

func (e *events) snapshot() events {
	e.mu.Lock()
	defer e.mu.Unlock()
	return events{
		started:  e.started,
		partials: append([]string(nil), e.partials...),
		finals:   append([]string(nil), e.finals...),
		errors:   append([]ErrorCode(nil), e.errors...),
		messages: append([]string(nil), e.messages...),
	}
}

func newTestAdapter(t *testing.T, opts ...Option) (*Adapter, *fakeFactory, *events) {
	t.Helper()
	ff := &fakeFactory{}
	ev := &events{}
	base := []Option{WithTimings(30*time.Millisecond, 40*time.Millisecond), WithCleanupDelay(50 * time.Millisecond)}
	a := NewAdapter(ff.create, append(base, opts...)...)
	a.SetCallbacks(ev.callbacks())
	t.Cleanup(a.Destroy)
	return a, ff, ev
}

func TestAdapterFinalResult(t *testing.T) {
	a, ff, ev := newTestAdapter(t)

	require.NoError(t, a.StartListening())
	assert.True(t, a.IsListening())

	l := ff.last().l()
	l.OnReady()
	l.OnSpeechBegin()
	l.OnResult("こんにちは")
	l.OnResult("duplicate")

	snap := ev.snapshot()
	assert.Equal(t, 1, snap.started)
	assert.Equal(t, []string{"こんにちは"}, snap.finals)
	assert.False(t, a.IsListening())
	assert.Eventually(t, func() bool { _, _, _, closes := ff.last().counts(); return closes == 1 }, time.Second, 5*time.Millisecond)
}

func TestAdapterRefusesDuplicateStart(t *testing.T) {
	a, ff, _ := newTestAdapter(t)

	require.NoError(t, a.StartListening())
	assert.ErrorIs(t, a.StartListening(), ErrAlreadyListening)
	assert.ErrorIs(t, a.StartPreparedListening(), ErrAlreadyListening)
	assert.Equal(t, 1, ff.count())
}

func TestAdapterPartialGatingAndDebounce(t *testing.T) {
	a, ff, ev := newTestAdapter(t)
	require.NoError(t, a.StartListening())
	l := ff.last().l()

	// Before speech begins and before MinSpeechLength: dropped.
	l.OnPartial("early")
	l.OnSpeechBegin()
	l.OnPartial("too soon")

	time.Sleep(40 * time.Millisecond)
	l.OnPartial("こん")
	l.OnPartial("こんにち")

	assert.Eventually(t, func() bool { return len(ev.snapshot().partials) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"こんにち"}, ev.snapshot().partials)
}

func TestAdapterFinalCancelsPendingPartial(t *testing.T) {
	a, ff, ev := newTestAdapter(t)
	require.NoError(t, a.StartListening())
	l := ff.last().l()

	l.OnSpeechBegin()
	time.Sleep(40 * time.Millisecond)
	l.OnPartial("partial")
	l.OnResult("final")

	time.Sleep(80 * time.Millisecond)
	snap := ev.snapshot()
	assert.Empty(t, snap.partials)
	assert.Equal(t, []string{"final"}, snap.finals)
}

func TestAdapterErrors(t *testing.T) {
	cat := locale.DefaultCatalog()
	a, ff, ev := newTestAdapter(t, WithCatalog(cat))

	require.NoError(t, a.StartListening())
	ff.last().l().OnError(ErrorClient, nil)
	assert.Empty(t, ev.snapshot().errors)
	assert.True(t, a.IsListening())

	ff.last().l().OnError(ErrorNetwork, errors.New("dns"))
	snap := ev.snapshot()
	assert.Equal(t, []ErrorCode{ErrorNetwork}, snap.errors)
	assert.Equal(t, []string{cat.CaptureNetwork}, snap.messages)
	assert.False(t, a.IsListening())

	require.NoError(t, a.StartListening())
	ff.last().l().OnResult("")
	assert.Equal(t, ErrorNoMatch, ev.snapshot().errors[1])
}

func TestAdapterStopListening(t *testing.T) {
	a, ff, ev := newTestAdapter(t)

	require.NoError(t, a.StartListening())
	rec := ff.last()
	old := rec.l()

	a.StopListening()
	assert.False(t, a.IsListening())
	assert.True(t, a.StopInProgress())
	assert.ErrorIs(t, a.StartListening(), ErrStopInProgress)

	// Late events from the stopped session are stale.
	old.OnResult("late")
	old.OnError(ErrorAudio, nil)

	assert.Eventually(t, func() bool { return !a.StopInProgress() }, time.Second, 5*time.Millisecond)
	_, stops, cancels, closes := rec.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 1, closes)

	snap := ev.snapshot()
	assert.Empty(t, snap.finals)
	assert.Empty(t, snap.errors)

	require.NoError(t, a.StartListening())
}

func TestAdapterPreparedListening(t *testing.T) {
	a, ff, ev := newTestAdapter(t)

	require.NoError(t, a.PrepareForNextRecognition())
	require.NoError(t, a.PrepareForNextRecognition())
	assert.Equal(t, 1, ff.count())
	listens, _, _, _ := ff.last().counts()
	assert.Equal(t, 0, listens)

	require.NoError(t, a.StartPreparedListening())
	assert.Equal(t, 1, ff.count())
	ff.last().l().OnResult("hello")
	assert.Equal(t, []string{"hello"}, ev.snapshot().finals)

	// Without a prepared recognizer it falls back to a fresh one.
	require.NoError(t, a.StartPreparedListening())
	assert.Equal(t, 2, ff.count())
}

func TestAdapterStartReplacesPrepared(t *testing.T) {
	a, ff, _ := newTestAdapter(t)

	require.NoError(t, a.PrepareForNextRecognition())
	prepared := ff.last()
	require.NoError(t, a.StartListening())

	assert.Equal(t, 2, ff.count())
	_, _, _, closes := prepared.counts()
	assert.Equal(t, 1, closes)
}

func TestAdapterDestroy(t *testing.T) {
	a, ff, _ := newTestAdapter(t)
	require.NoError(t, a.StartListening())
	rec := ff.last()

	a.Destroy()
	assert.ErrorIs(t, a.StartListening(), ErrDestroyed)
	assert.ErrorIs(t, a.PrepareForNextRecognition(), ErrDestroyed)
	_, _, cancels, closes := rec.counts()
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 1, closes)
}

func TestAdapterFactoryAndStartFailures(t *testing.T) {
	a, ff, _ := newTestAdapter(t)

	ff.err = errors.New("no microphone")
	assert.ErrorIs(t, a.StartListening(), ErrRecognizerUnavailable)

	ff.err = nil
	ff.setup = func(r *fakeRecognizer) { r.listenErr = errors.New("busy device") }
	assert.ErrorIs(t, a.StartListening(), ErrStartFailed)
	assert.False(t, a.IsListening())
}
