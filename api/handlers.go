package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/automem/pkg/facts"
	"github.com/papercomputeco/automem/pkg/llm"
	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/pipeline"
	"github.com/papercomputeco/automem/pkg/status"
	"github.com/papercomputeco/automem/pkg/utils"
)

// FilterRequest is a filter hook call. Body is the host's chat request or
// response body and is echoed back byte for byte.
type FilterRequest struct {
	Body json.RawMessage `json:"body"`
	User *memory.User    `json:"user,omitempty"`
}

// FilterResponse carries the unchanged body and any status notes for the
// user.
type FilterResponse struct {
	Body   json.RawMessage `json:"body"`
	Status []status.Event  `json:"status,omitempty"`
}

// ExtractRequest asks for a dry-run extraction.
type ExtractRequest struct {
	Text string `json:"text"`
}

// ExtractResponse lists the facts that would be stored.
type ExtractResponse struct {
	Facts []string `json:"facts"`
	Count int      `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleInlet echoes the body; memories are only written on the outlet.
func (s *Server) handleInlet(c *fiber.Ctx) error {
	req, ev, err := s.parseFilterRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}
	if ev != nil {
		s.pipeline.Inlet(ev)
	}
	return c.JSON(FilterResponse{Body: req.Body})
}

// handleOutlet runs the memory pipeline for a finished turn.
func (s *Server) handleOutlet(c *fiber.Ctx) error {
	req, ev, err := s.parseFilterRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}
	if ev == nil {
		return c.JSON(FilterResponse{Body: req.Body})
	}

	collector := &status.Collector{}
	s.pipeline.Outlet(c.UserContext(), pipeline.Inlet{
		Event:   ev,
		User:    req.User,
		Session: sessionFromHeader(c.Get(fiber.HeaderAuthorization)),
		Emitter: collector,
	})

	return c.JSON(FilterResponse{
		Body:   req.Body,
		Status: collector.Events(),
	})
}

// handleExtract previews the facts a turn would produce without storing
// them.
func (s *Server) handleExtract(c *fiber.Ctx) error {
	var req ExtractRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "text is required"})
	}

	found, err := s.pipeline.Preview(c.UserContext(), req.Text)
	if err != nil && !errors.Is(err, facts.ErrEmptyList) {
		s.logger.Warn("extract preview rejected model output", "error", err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(llm.ErrorResponse{Error: err.Error()})
	}
	if found == nil {
		found = []string{}
	}

	return c.JSON(ExtractResponse{Facts: found, Count: len(found)})
}

// parseFilterRequest decodes the envelope and the event inside it. A body the
// pipeline cannot read yields a nil event and is echoed untouched.
func (s *Server) parseFilterRequest(c *fiber.Ctx) (*FilterRequest, *pipeline.Event, error) {
	req := &FilterRequest{}
	if err := json.Unmarshal(c.Body(), req); err != nil {
		return nil, nil, errors.New("invalid request body")
	}

	body := bytes.TrimSpace(req.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil, errors.New("body is required")
	}

	ev := &pipeline.Event{}
	if err := json.Unmarshal(body, ev); err != nil {
		s.logger.Warn("passing through unreadable filter body",
			"user_id", utils.ShortID(userID(req.User)),
			"error", err,
		)
		return req, nil, nil
	}
	return req, ev, nil
}

func sessionFromHeader(header string) *memory.Session {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil
	}
	return &memory.Session{Token: token}
}

func userID(u *memory.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
