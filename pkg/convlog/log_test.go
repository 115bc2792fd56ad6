package convlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-companion/pkg/store"
)

func TestTurnJSON(t *testing.T) {
	ts := time.UnixMilli(1718000000123)
	turn := Turn{ID: "t1", Text: "こんにちは", Speaker: SpeakerUser, Timestamp: ts, Visible: true}

	data, err := json.Marshal(turn)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"t1","message":"こんにちは","isUser":true,"timestamp":1718000000123,"isVisible":true}`, string(data))

	var back Turn
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, turn.ID, back.ID)
	assert.Equal(t, turn.Text, back.Text)
	assert.Equal(t, SpeakerUser, back.Speaker)
	assert.True(t, back.Timestamp.Equal(ts))
	assert.True(t, back.Visible)
}

func TestTurnJSONLegacyRecord(t *testing.T) {
	var turn Turn
	require.NoError(t, json.Unmarshal([]byte(`{"message":"やあ","isUser":false,"timestamp":1}`), &turn))

	assert.NotEmpty(t, turn.ID, "missing id should be generated")
	assert.Equal(t, SpeakerAgent, turn.Speaker)
	assert.True(t, turn.Visible, "missing isVisible should default to visible")
}

func TestLogAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	l, err := Open(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	for i := 0; i < 10; i++ {
		speaker := SpeakerUser
		if i%2 == 1 {
			speaker = SpeakerAgent
		}
		require.NoError(t, l.Append(ctx, NewTurn(string(rune('a'+i)), speaker)))
	}

	assert.Equal(t, 10, l.Len())

	recent := l.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "h", recent[0].Text)
	assert.Equal(t, "j", recent[2].Text)

	assert.Len(t, l.Recent(50), 10)
	assert.Empty(t, l.Recent(0))

	// Reopening reads the persisted document.
	again, err := Open(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, ids(l.All()), ids(again.All()))
	assert.Equal(t, "a", again.All()[0].Text)
	assert.True(t, again.All()[0].IsUser())
}

func TestLogDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l, err := Open(ctx, st)
	require.NoError(t, err)

	a, b, c := UserTurn("a"), AgentTurn("b"), UserTurn("c")
	for _, turn := range []Turn{a, b, c} {
		require.NoError(t, l.Append(ctx, turn))
	}

	n, err := l.Delete(ctx, a.ID, c.ID, "missing")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, l.All(), 1)
	assert.Equal(t, b.ID, l.All()[0].ID)

	n, err = l.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, l.Clear(ctx))
	assert.Equal(t, 0, l.Len())

	_, err = st.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type failingStore struct {
	store.Store
}

func (failingStore) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestLogKeepsTurnWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, failingStore{store.NewMemory()})
	require.NoError(t, err)

	err = l.Append(ctx, UserTurn("hello"))
	require.Error(t, err)
	assert.Equal(t, 1, l.Len())
}

// slowStore holds the next Put until release is closed.
type slowStore struct {
	*store.Memory

	once    sync.Once
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
}

func newSlowStore() *slowStore {
	return &slowStore{
		Memory:  store.NewMemory(),
		armed:   make(chan struct{}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *slowStore) Put(ctx context.Context, key string, data []byte) error {
	select {
	case <-s.armed:
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	default:
	}
	return s.Memory.Put(ctx, key, data)
}

func TestLogPersistsMutationsInOrder(t *testing.T) {
	ctx := context.Background()
	st := newSlowStore()
	l, err := Open(ctx, st)
	require.NoError(t, err)

	old := UserTurn("old")
	require.NoError(t, l.Append(ctx, old))
	close(st.armed)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := l.Delete(ctx, old.ID)
		assert.NoError(t, err)
	}()
	<-st.entered

	go func() {
		defer wg.Done()
		assert.NoError(t, l.Append(ctx, AgentTurn("new")))
	}()
	time.Sleep(20 * time.Millisecond)
	close(st.release)
	wg.Wait()

	data, err := st.Get(ctx, DefaultKey)
	require.NoError(t, err)
	var persisted []Turn
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, ids(l.All()), ids(persisted))
	assert.Equal(t, 1, l.Len())
}

func TestLogClearNotUndoneByPendingAppend(t *testing.T) {
	ctx := context.Background()
	st := newSlowStore()
	l, err := Open(ctx, st)
	require.NoError(t, err)
	close(st.armed)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, l.Append(ctx, UserTurn("hello")))
	}()
	<-st.entered

	go func() {
		defer wg.Done()
		assert.NoError(t, l.Clear(ctx))
	}()
	time.Sleep(20 * time.Millisecond)
	close(st.release)
	wg.Wait()

	assert.Equal(t, 0, l.Len())
	_, err = st.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSorted(t *testing.T) {
	base := time.Now()
	turns := []Turn{
		{ID: "2", Timestamp: base.Add(2 * time.Second)},
		{ID: "0", Timestamp: base},
		{ID: "1", Timestamp: base.Add(time.Second)},
	}

	asc := Sorted(turns, ParseOrder("asc"))
	assert.Equal(t, []string{"0", "1", "2"}, ids(asc))

	desc := Sorted(turns, ParseOrder("desc"))
	assert.Equal(t, []string{"2", "1", "0"}, ids(desc))

	// Input untouched.
	assert.Equal(t, "2", turns[0].ID)
}

func ids(turns []Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.ID
	}
	return out
}
