package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// exercise runs the same contract checks against any backend.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "agent_profile"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: got %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, "agent_profile", []byte(`{"name":"あすか"}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, "agent_profile", []byte(`{"name":"みどり"}`)); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	data, err := s.Get(ctx, "agent_profile")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != `{"name":"みどり"}` && string(data) != `{"name": "みどり"}` {
		t.Errorf("Get returned %s", data)
	}

	if err := s.Delete(ctx, "agent_profile"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "agent_profile"); err != nil {
		t.Fatalf("Delete of missing key failed: %v", err)
	}
	if _, err := s.Get(ctx, "agent_profile"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got %v, want ErrNotFound", err)
	}

	for _, key := range []string{"", "../etc/passwd", "Agent", "a/b"} {
		if err := s.Put(ctx, key, []byte("{}")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q): got %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestJSONStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s := NewJSONStore(dir)
	defer s.Close()

	exercise(t, s)

	// No temp files left behind after writes.
	if err := s.Put(context.Background(), "user_profile", []byte(`{}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "user_profile.json" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	exercise(t, s)

	// Returned slices are copies.
	ctx := context.Background()
	s.Put(ctx, "k", []byte("abc"))
	data, _ := s.Get(ctx, "k")
	data[0] = 'x'
	again, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored data was mutated through Get: %s", again)
	}

	s.Close()
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close: got %v, want ErrClosed", err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("COMPANION_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COMPANION_TEST_POSTGRES_DSN not set")
	}

	s, err := NewPostgres(context.Background(), dsn, nil)
	if err != nil {
		t.Fatalf("NewPostgres failed: %v", err)
	}
	defer s.Close()

	exercise(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Backend: BackendMemory}, nil)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("expected *Memory, got %T", s)
	}

	s, err = Open(ctx, Config{Backend: BackendJSON, Path: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("Open json: %v", err)
	}
	if _, ok := s.(*JSONStore); !ok {
		t.Errorf("expected *JSONStore, got %T", s)
	}

	if _, err := Open(ctx, Config{Backend: "redis"}, nil); err == nil {
		t.Error("expected error for unsupported backend")
	}
	if _, err := Open(ctx, Config{Backend: BackendPostgres}, nil); err == nil {
		t.Error("expected error for postgres without dsn")
	}
}
