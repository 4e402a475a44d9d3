package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/wingman/pkg/auth"
	"github.com/teslashibe/wingman/pkg/hub"
	"github.com/teslashibe/wingman/pkg/session"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
}

// handleError maps controller errors onto HTTP statuses.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, auth.ErrAuthRequired):
		code = fiber.StatusUnauthorized
	case errors.Is(err, session.ErrNoCredentialFlow):
		code = fiber.StatusNotImplemented
	case errors.Is(err, session.ErrStopped):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(errorResponse{Error: err.Error()})
}

func (s *Server) handleState(c *fiber.Ctx) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	return c.JSON(sess.Snapshot())
}

func (s *Server) handleLogs(c *fiber.Ctx) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	return c.JSON(sess.Logs())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	if err := sess.Start(c.UserContext()); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(sess.Snapshot())
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	if err := sess.Stop(c.UserContext()); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(sess.Snapshot())
}

func (s *Server) handleDismiss(c *fiber.Ctx) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	if err := sess.DismissStatus(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(sess.Snapshot())
}

// CredentialsRequest is the body of POST /api/credentials.
type CredentialsRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) handleCredentials(c *fiber.Ctx) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	key := strings.TrimSpace(req.APIKey)
	if key != "" {
		if s.store == nil {
			return fiber.NewError(fiber.StatusNotImplemented, "credential store not configured")
		}
		s.store.SetAPIKey(key)
	}
	if err := sess.OpenCredentialFlow(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(sess.Snapshot())
}

// handleEventsWS streams state, hud, log and status events.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	hub.NewClient(s.hub, conn, hub.WithGreeting(s.greeting)).Serve()
}
