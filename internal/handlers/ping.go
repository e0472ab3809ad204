package handlers

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/ayrohq/ayro/internal/channel"
)

type PingHandler struct {
	registry *channel.Registry
	logger   *slog.Logger
}

func NewPingHandler(log *slog.Logger, registry *channel.Registry) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{
		registry: registry,
		logger:   log.With(slog.String("handler", "ping")),
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	channels := make([]string, 0)
	if h.registry != nil {
		for _, ct := range h.registry.Types() {
			channels = append(channels, ct.String())
		}
	}
	slices.Sort(channels)
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"channels": channels,
	})
}

// PingHead reports unhealthy while any channel lacks an adapter.
func (h *PingHandler) PingHead(c echo.Context) error {
	if h.registry != nil && len(h.registry.Missing()) > 0 {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}
