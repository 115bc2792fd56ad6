package convlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-companion/pkg/store"
)

// DefaultKey is the store key holding the log.
const DefaultKey = "conversation_log"

// Log is the conversation log. It is safe for concurrent use.
//
// The in-memory copy is authoritative while the process runs: a failed
// write is reported to the caller but the mutation is kept, so the dialogue
// never loses turns because of a storage hiccup.
type Log struct {
	store  store.Store
	key    string
	logger *slog.Logger

	// persistMu orders store writes with the mutations that produced them.
	persistMu sync.Mutex

	mu    sync.RWMutex
	turns []Turn
}

// Option configures a Log.
type Option func(*Log)

// WithKey overrides the store key.
func WithKey(key string) Option {
	return func(l *Log) { l.key = key }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// Open loads the log from st. A missing document is an empty log.
func Open(ctx context.Context, st store.Store, opts ...Option) (*Log, error) {
	l := &Log{
		store:  st,
		key:    DefaultKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "convlog")

	data, err := st.Get(ctx, l.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("load conversation log: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.turns); err != nil {
			return nil, fmt.Errorf("decode conversation log: %w", err)
		}
	}

	l.logger.Debug("conversation log loaded", "turns", len(l.turns))
	return l, nil
}

// Append adds a turn at the end of the log.
func (l *Log) Append(ctx context.Context, t Turn) error {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	l.turns = append(l.turns, t)
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	return l.persist(ctx, snapshot)
}

// All returns every turn in log order.
func (l *Log) All() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Recent returns the last n turns in log order. n <= 0 returns none.
func (l *Log) Recent(n int) []Turn {
	if n <= 0 {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.turns) - n
	if start < 0 {
		start = 0
	}
	return append([]Turn(nil), l.turns[start:]...)
}

// Len returns the number of turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Delete removes the turns with the given ids and reports how many were
// removed. Unknown ids are ignored.
func (l *Log) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	kept := l.turns[:0:0]
	for _, t := range l.turns {
		if _, ok := drop[t.ID]; !ok {
			kept = append(kept, t)
		}
	}
	removed := len(l.turns) - len(kept)
	l.turns = kept
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	if removed == 0 {
		return 0, nil
	}
	return removed, l.persist(ctx, snapshot)
}

// Clear removes every turn.
func (l *Log) Clear(ctx context.Context) error {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	l.turns = nil
	l.mu.Unlock()

	if err := l.store.Delete(ctx, l.key); err != nil {
		return fmt.Errorf("clear conversation log: %w", err)
	}
	return nil
}

func (l *Log) snapshotLocked() []Turn {
	return append([]Turn(nil), l.turns...)
}

func (l *Log) persist(ctx context.Context, turns []Turn) error {
	if turns == nil {
		turns = []Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode conversation log: %w", err)
	}
	if err := l.store.Put(ctx, l.key, data); err != nil {
		l.logger.Warn("failed to persist conversation log", "error", err, "turns", len(turns))
		return fmt.Errorf("save conversation log: %w", err)
	}
	return nil
}
