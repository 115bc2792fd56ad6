// Package store persists small JSON documents by key.
//
// The companion keeps four documents: the agent profile, the user profile,
// app settings and the conversation log. Backends are interchangeable:
// JSON files on disk for a single device, PostgreSQL when several
// companions share a database, and an in-memory map for tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by Get when a key has never been written.
	ErrNotFound = errors.New("store: key not found")

	// ErrInvalidKey is returned for keys outside [a-z0-9_-].
	ErrInvalidKey = errors.New("store: invalid key")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// Store defines the interface for persistence backends.
type Store interface {
	// Get returns the document stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the document stored under key.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON     = "json"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"` // directory for the JSON backend
	DSN     string `mapstructure:"dsn"`  // connection string for PostgreSQL
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendJSON, "":
		return NewJSONStore(cfg.Path), nil
	case BackendMemory:
		return NewMemory(), nil
	case BackendPostgres:
		return NewPostgres(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", cfg.Backend)
	}
}

var keyPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
