package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-coach/pkg/coach"
	"github.com/teslashibe/go-coach/pkg/state"
)

// StartRequest is the body of POST /api/session.
type StartRequest struct {
	Role       string `json:"role"`
	Difficulty string `json:"difficulty"`
	Mode       string `json:"mode"`
}

// handleOptions returns the selectable interview settings
func (s *Server) handleOptions(c *fiber.Ctx) error {
	return c.JSON(s.coach.Catalogue())
}

// handleState returns the current dashboard state
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.coach.Store().Snapshot())
}

// handleConversation returns the conversation history
func (s *Server) handleConversation(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"history": s.coach.Store().History(),
	})
}

// handleStartSession starts a coaching session
func (s *Server) handleStartSession(c *fiber.Ctx) error {
	var req StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	id, err := s.coach.Start(c.UserContext(), state.Options{
		Role:       req.Role,
		Difficulty: req.Difficulty,
		Mode:       req.Mode,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": id,
	})
}

// handleStopSession stops the active session, if any
func (s *Server) handleStopSession(c *fiber.Ctx) error {
	if err := s.coach.Stop(); err != nil {
		return err
	}
	return c.JSON(s.coach.Store().Snapshot())
}

// handleError maps controller errors to HTTP statuses.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var code int
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, coach.ErrMissingAPIKey), errors.Is(err, coach.ErrInvalidOptions):
		code = fiber.StatusBadRequest
	case errors.Is(err, coach.ErrSessionActive), errors.Is(err, context.Canceled):
		code = fiber.StatusConflict
	default:
		code = fiber.StatusBadGateway
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
