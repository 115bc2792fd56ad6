package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-companion/pkg/convlog"
	"github.com/teslashibe/go-companion/pkg/dialogue"
	"github.com/teslashibe/go-companion/pkg/hub"
	"github.com/teslashibe/go-companion/pkg/metrics"
	"github.com/teslashibe/go-companion/pkg/persona"
	"github.com/teslashibe/go-companion/pkg/settings"
)

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	State   *dialogue.UIState `json:"state,omitempty"`
	Clients map[string]int    `json:"clients"`
}

// DeleteRequest is the body of DELETE /api/conversation.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// LatencyResponse is returned by GET /api/latency.
type LatencyResponse struct {
	Last    *metrics.Turn `json:"last,omitempty"`
	Average metrics.Turn  `json:"average"`
	Turns   int           `json:"turns"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Clients: map[string]int{
			s.statusHub.Name():       s.statusHub.ClientCount(),
			s.conversationHub.Name(): s.conversationHub.ClientCount(),
		},
	}
	if s.dialogue != nil {
		st := s.dialogue.State()
		resp.State = &st
	}
	return c.JSON(resp)
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	order := convlog.ParseOrder(c.Query("order", "asc"))
	return c.JSON(convlog.Sorted(s.log.All(), order))
}

// handleDeleteConversation clears the log with ?all=true, otherwise
// deletes the turns listed in the body.
func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	if c.QueryBool("all") {
		if err := s.log.Clear(c.UserContext()); err != nil {
			return internalError(c, err)
		}
		s.logger.Info("conversation log cleared")
		return c.JSON(fiber.Map{"cleared": true})
	}

	var req DeleteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if len(req.IDs) == 0 {
		return badRequest(c, "ids required")
	}

	n, err := s.log.Delete(c.UserContext(), req.IDs...)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func (s *Server) handleGetAgent(c *fiber.Ctx) error {
	return c.JSON(s.settings.Agent())
}

func (s *Server) handlePutAgent(c *fiber.Ctx) error {
	p := s.settings.Agent()
	if err := c.BodyParser(&p); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := s.settings.SetAgent(c.UserContext(), p); err != nil {
		return s.settingsError(c, err)
	}
	s.restart()
	return c.JSON(s.settings.Agent())
}

func (s *Server) handleGetUser(c *fiber.Ctx) error {
	return c.JSON(s.settings.User())
}

func (s *Server) handlePutUser(c *fiber.Ctx) error {
	var p persona.UserProfile
	if err := c.BodyParser(&p); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := s.settings.SetUser(c.UserContext(), p); err != nil {
		return s.settingsError(c, err)
	}
	s.restart()
	return c.JSON(s.settings.User())
}

func (s *Server) handleGetApp(c *fiber.Ctx) error {
	return c.JSON(s.settings.App())
}

func (s *Server) handlePutApp(c *fiber.Ctx) error {
	a := s.settings.App()
	if err := c.BodyParser(&a); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := s.settings.SetApp(c.UserContext(), a); err != nil {
		return s.settingsError(c, err)
	}
	s.restart()
	return c.JSON(s.settings.App())
}

func (s *Server) handlePrompt(c *fiber.Ctx) error {
	if s.dialogue == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "dialogue not running"})
	}
	return c.JSON(fiber.Map{"prompt": s.dialogue.Prompt()})
}

func (s *Server) handleLatency(c *fiber.Ctx) error {
	lc := s.metrics.Latency()
	if lc == nil {
		return c.JSON(LatencyResponse{})
	}
	resp := LatencyResponse{Average: lc.Average(), Turns: lc.Count()}
	if last, ok := lc.Last(); ok {
		resp.Last = &last
	}
	return c.JSON(resp)
}

// handleStatusWS streams UI state, starting with the current one.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if s.dialogue != nil {
		if msg, err := hub.NewEvent(EventState, s.dialogue.State()); err == nil {
			initial = append(initial, msg)
		}
	}
	hub.NewClient(s.statusHub, c, initial...).Run()
}

// handleConversationWS streams new turns and partial transcripts.
func (s *Server) handleConversationWS(c *websocket.Conn) {
	hub.NewClient(s.conversationHub, c).Run()
}

func (s *Server) restart() {
	if s.dialogue != nil {
		s.dialogue.Restart()
	}
}

func (s *Server) settingsError(c *fiber.Ctx, err error) error {
	if errors.Is(err, persona.ErrInvalidProfile) || errors.Is(err, settings.ErrInvalidSettings) {
		return badRequest(c, err.Error())
	}
	return internalError(c, err)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
