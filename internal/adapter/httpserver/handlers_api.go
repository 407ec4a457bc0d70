package httpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/chatrelay/internal/platform/errors"
)

const defaultMessagesLimit = 50

type statsResponse struct {
	TotalConnections     int            `json:"total_connections"`
	ConnectionsByIP      map[string]int `json:"connections_by_ip"`
	MessagesSentLastHour int64          `json:"messages_sent_last_hour"`
}

func (s *Server) handleStats(c echo.Context) error {
	snapshot := s.connections.Snapshot()

	lastHour, err := s.counter.LastHour(c.Request().Context())
	if err != nil {
		return apperrors.UnavailableError("message counter unavailable", err)
	}

	response := statsResponse{
		TotalConnections:     snapshot.Total,
		ConnectionsByIP:      snapshot.ByOrigin,
		MessagesSentLastHour: lastHour,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write stats response: %w", err)
	}
	return nil
}

// handleRecentMessages returns cached events newest first. The limit is capped at the cache
// capacity.
func (s *Server) handleRecentMessages(c echo.Context) error {
	limit := defaultMessagesLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return apperrors.ValidationError("limit must be a positive integer").WithContext("limit", raw)
		}
		limit = parsed
	}
	limit = min(limit, s.config.MessageHistoryLimit)

	items, err := s.recent.ReadAll(c.Request().Context())
	if err != nil {
		return apperrors.UnavailableError("recent messages unavailable", err)
	}

	messages := make([]json.RawMessage, 0, min(limit, len(items)))
	for i := len(items) - 1; i >= 0 && len(messages) < limit; i-- {
		if !json.Valid(items[i]) {
			slog.WarnContext(c.Request().Context(), "Skipping malformed cached event", "bytes", len(items[i]))
			continue
		}
		messages = append(messages, items[i])
	}

	if err := c.JSON(http.StatusOK, messages); err != nil {
		return fmt.Errorf("failed to write messages response: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(c echo.Context) error {
	if err := s.websocket.Attach(c.Response(), c.Request(), c.RealIP()); err != nil {
		slog.WarnContext(c.Request().Context(), "WebSocket connection ended with error", "remote_ip", c.RealIP(), "error", err)
	}
	return nil
}
