// Package web serves the companion dashboard: status, conversation log,
// settings and metrics over REST, with live updates over websockets.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-companion/pkg/convlog"
	"github.com/teslashibe/go-companion/pkg/dialogue"
	"github.com/teslashibe/go-companion/pkg/hub"
	"github.com/teslashibe/go-companion/pkg/metrics"
	"github.com/teslashibe/go-companion/pkg/settings"
)

// Event types sent over the websockets.
const (
	EventState   = "state"
	EventLatency = "latency"
	EventTurn    = "turn"
	EventPartial = "partial"
)

const shutdownTimeout = 5 * time.Second

// Dialogue is the part of the orchestrator the dashboard drives.
type Dialogue interface {
	State() dialogue.UIState
	Restart()
	Prompt() string
}

// Config configures the server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// StaticDir, if set, is served at /.
	StaticDir string
	Logger    *slog.Logger
}

// Server is the web dashboard server. It also implements
// dialogue.Observer, forwarding updates to the websocket hubs.
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	log      *convlog.Log
	settings *settings.Settings
	metrics  *metrics.Metrics
	dialogue Dialogue

	// Hubs for websocket broadcast
	statusHub       *hub.Hub
	conversationHub *hub.Hub
}

// NewServer creates the dashboard. m may be nil. Call SetDialogue before
// serving.
func NewServer(cfg Config, log *convlog.Log, sets *settings.Settings, m *metrics.Metrics) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{
		config:          cfg,
		logger:          cfg.Logger.With("component", "web.server"),
		log:             log,
		settings:        sets,
		metrics:         m,
		statusHub:       hub.New("status", cfg.Logger),
		conversationHub: hub.New("conversation", cfg.Logger),
	}

	if lc := m.Latency(); lc != nil {
		lc.OnUpdate(func(t metrics.Turn) {
			s.broadcast(s.statusHub, EventLatency, t)
		})
	}

	app := fiber.New(fiber.Config{
		AppName:               "Companion Dashboard",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/conversation", s.handleGetConversation)
	api.Delete("/conversation", s.handleDeleteConversation)
	api.Get("/settings/agent", s.handleGetAgent)
	api.Put("/settings/agent", s.handlePutAgent)
	api.Get("/settings/user", s.handleGetUser)
	api.Put("/settings/user", s.handlePutUser)
	api.Get("/settings/app", s.handleGetApp)
	api.Put("/settings/app", s.handlePutApp)
	api.Get("/prompt", s.handlePrompt)
	api.Get("/latency", s.handleLatency)

	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/conversation", websocket.New(s.handleConversationWS))

	s.app = app
	return s
}

// SetDialogue attaches the orchestrator.
func (s *Server) SetDialogue(d Dialogue) {
	s.dialogue = d
}

// App returns the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.conversationHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()
	s.logger.Info("dashboard listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// StateChanged broadcasts a new UI state.
func (s *Server) StateChanged(st dialogue.UIState) {
	s.broadcast(s.statusHub, EventState, st)
}

// TurnAdded broadcasts a logged turn.
func (s *Server) TurnAdded(t convlog.Turn) {
	s.broadcast(s.conversationHub, EventTurn, t)
}

// PartialTranscript broadcasts interim recognition text.
func (s *Server) PartialTranscript(text string) {
	s.broadcast(s.conversationHub, EventPartial, text)
}

func (s *Server) broadcast(h *hub.Hub, eventType string, data any) {
	if err := h.BroadcastEvent(eventType, data); err != nil {
		s.logger.Warn("broadcast failed", "hub", h.Name(), "type", eventType, "error", err)
	}
}

var _ dialogue.Observer = (*Server)(nil)
