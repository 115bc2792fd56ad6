// Package settings persists the agent profile, user profile and app
// settings in the state store and serves them to the dialogue.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-companion/pkg/locale"
	"github.com/teslashibe/go-companion/pkg/persona"
	"github.com/teslashibe/go-companion/pkg/store"
)

// Store keys.
const (
	KeyAgent = "agent_profile"
	KeyUser  = "user_profile"
	KeyApp   = "app_settings"
)

// DefaultConversationLogCount is how many recent turns go into the prompt.
const DefaultConversationLogCount = 3

// ErrInvalidSettings is returned when app settings fail validation.
var ErrInvalidSettings = errors.New("settings: invalid app settings")

// App holds application-wide settings.
type App struct {
	ConversationLogCount int `json:"conversation_log_count"`
}

// DefaultApp returns the stock app settings.
func DefaultApp() App {
	return App{ConversationLogCount: DefaultConversationLogCount}
}

// Validate checks the settings.
func (a App) Validate() error {
	if a.ConversationLogCount < 0 {
		return fmt.Errorf("%w: conversation_log_count must be >= 0, got %d", ErrInvalidSettings, a.ConversationLogCount)
	}
	return nil
}

// Snapshot is a consistent view of all settings.
type Snapshot struct {
	Agent persona.AgentProfile `json:"agent"`
	User  persona.UserProfile  `json:"user"`
	App   App                  `json:"app"`
}

// Settings caches the persisted settings. Reads never touch the store.
type Settings struct {
	store  store.Store
	logger *slog.Logger

	mu    sync.RWMutex
	agent persona.AgentProfile
	user  persona.UserProfile
	app   App
}

// Load reads every settings document from st, using catalog defaults for
// anything missing.
func Load(ctx context.Context, st store.Store, cat *locale.Catalog, logger *slog.Logger) (*Settings, error) {
	if cat == nil {
		cat = locale.DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Settings{
		store:  st,
		logger: logger.With("component", "settings"),
		agent:  persona.DefaultAgent(cat),
		app:    DefaultApp(),
	}

	if err := s.load(ctx, KeyAgent, &s.agent); err != nil {
		return nil, err
	}
	s.agent = s.agent.WithDefaults(cat)
	if err := s.load(ctx, KeyUser, &s.user); err != nil {
		return nil, err
	}
	if err := s.load(ctx, KeyApp, &s.app); err != nil {
		return nil, err
	}

	return s, nil
}

// load decodes key over dst, leaving dst untouched when the key is absent.
func (s *Settings) load(ctx context.Context, key string, dst any) error {
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug("settings not found, using defaults", "key", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Settings) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	s.logger.Info("settings saved", "key", key)
	return nil
}

// Agent returns the agent profile.
func (s *Settings) Agent() persona.AgentProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agent
}

// User returns the user profile.
func (s *Settings) User() persona.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// App returns the app settings.
func (s *Settings) App() App {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.app
}

// Snapshot returns all settings at once.
func (s *Settings) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Agent: s.agent, User: s.user, App: s.app}
}

// SetAgent validates and persists the agent profile.
func (s *Settings) SetAgent(ctx context.Context, p persona.AgentProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.save(ctx, KeyAgent, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.agent = p
	s.mu.Unlock()
	return nil
}

// SetUser persists the user profile.
func (s *Settings) SetUser(ctx context.Context, p persona.UserProfile) error {
	if err := s.save(ctx, KeyUser, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.user = p
	s.mu.Unlock()
	return nil
}

// SetApp validates and persists the app settings.
func (s *Settings) SetApp(ctx context.Context, a App) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := s.save(ctx, KeyApp, a); err != nil {
		return err
	}
	s.mu.Lock()
	s.app = a
	s.mu.Unlock()
	return nil
}
