package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/jobfeed/src/service"
	"github.com/orchestra-mcp/jobfeed/src/types"
)

// RegisterRoutes registers the info and producer routes via Fiber.
// The websocket upgrade itself is served by FastHTTPHandler, since Fiber v3
// does not expose *fasthttp.RequestCtx.
func (s *Server) RegisterRoutes(group fiber.Router) {
	group.Get("/ws/info", s.handleInfo)

	jobs := group.Group("/jobs/:id")
	jobs.Post("/status", s.handleStatus)
	jobs.Post("/progress", s.handleProgress)
	jobs.Post("/logs", s.handleLogs)
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   s.hub.ClientCount(),
		"channels":  s.hub.Channels(),
		"bridge":    s.bridge != nil && s.bridge.Available(),
	})
}

type statusRequest struct {
	Status   types.JobStatus `json:"status"`
	Progress float64         `json:"progress"`
	Message  string          `json:"message"`
	Error    string          `json:"error"`
}

type progressRequest struct {
	Percent *float64 `json:"percent"`
}

type logsRequest struct {
	Lines []string `json:"lines"`
}

func (s *Server) handleStatus(c fiber.Ctx) error {
	var req statusRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	switch req.Status {
	case types.StatusRunning, types.StatusCompleted, types.StatusFailed:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "status must be RUNNING, COMPLETED or FAILED")
	}
	if err := s.service.PublishStatus(c.Params("id"), req.Status, req.Progress, req.Message, req.Error); err != nil {
		return publishError(err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleProgress(c fiber.Ctx) error {
	var req progressRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if req.Percent == nil {
		return fiber.NewError(fiber.StatusBadRequest, "percent is required")
	}
	if err := s.service.PublishProgress(c.Params("id"), *req.Percent); err != nil {
		return publishError(err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// handleLogs accepts either {"lines": [...]} or a plain-text body with one
// line per row.
func (s *Server) handleLogs(c fiber.Ctx) error {
	var lines []string
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var req logsRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		lines = req.Lines
	} else {
		lines = strings.Split(strings.TrimRight(string(c.Body()), "\n"), "\n")
	}
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return fiber.NewError(fiber.StatusBadRequest, "no log lines")
	}
	if err := s.service.PublishLog(c.Params("id"), lines...); err != nil {
		return publishError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": len(lines)})
}

func decodeBody(c fiber.Ctx, v any) error {
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	return nil
}

func publishError(err error) error {
	if errors.Is(err, service.ErrInvalidEvent) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

// jsonError renders every handler error as {"error": ..., "message": ...}.
func jsonError(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   strings.ToLower(strings.ReplaceAll(http.StatusText(code), " ", "_")),
		"message": err.Error(),
	})
}
