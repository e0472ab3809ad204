package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ayrohq/ayro/internal/dispatch"
	"github.com/ayrohq/ayro/internal/healthcheck"
	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/plugins"
	"github.com/ayrohq/ayro/internal/store"
)

// AppStore resolves the app behind an app token and its users.
type AppStore interface {
	GetAppByToken(ctx context.Context, token string) (models.App, error)
	GetUser(ctx context.Context, id string) (models.User, error)
}

// AppsHandler serves the server-to-server API businesses call with their
// app token.
type AppsHandler struct {
	store     AppStore
	dispatch  *dispatch.Service
	plugins   *plugins.Engine
	checker   healthcheck.Checker
	publicURL string
	logger    *slog.Logger
}

type PushRequest struct {
	UserID  string        `json:"user_id"`
	Text    string        `json:"text"`
	Channel string        `json:"channel,omitempty"`
	Agent   *models.Agent `json:"agent,omitempty"`
}

type ConfigurePluginRequest struct {
	Channels      []string       `json:"channels"`
	Configuration map[string]any `json:"configuration"`
}

type ChecksResponse struct {
	Status string                    `json:"status"`
	Checks []healthcheck.CheckResult `json:"checks"`
}

func NewAppsHandler(log *slog.Logger, st AppStore, dispatchService *dispatch.Service, engine *plugins.Engine, checker healthcheck.Checker, publicURL string) *AppsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AppsHandler{
		store:     st,
		dispatch:  dispatchService,
		plugins:   engine,
		checker:   checker,
		publicURL: publicURL,
		logger:    log.With(slog.String("handler", "apps")),
	}
}

func (h *AppsHandler) Register(e *echo.Echo) {
	group := e.Group("/apps")
	group.POST("/push", h.Push)
	group.PUT("/plugins/:type", h.ConfigurePlugin)
	group.GET("/checks", h.ListChecks)
}

// Push godoc
// @Summary Push an agent message to an end user
// @Description Delivers to the given channel, or to the user's latest channel
// @Tags apps
// @Param X-App-Token header string true "App token"
// @Param payload body PushRequest true "Push request"
// @Success 200 {object} models.ChatMessage
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /apps/push [post]
func (h *AppsHandler) Push(c echo.Context) error {
	app, err := h.requireApp(c)
	if err != nil {
		return err
	}
	var req PushRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var ch models.Channel
	if raw := strings.TrimSpace(req.Channel); raw != "" {
		ch, err = models.ParseChannel(raw)
		if err != nil || !ch.UserFacing() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid channel")
		}
	}
	ctx := c.Request().Context()
	user, err := h.store.GetUser(ctx, strings.TrimSpace(req.UserID))
	if err != nil || user.AppID != app.ID {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	agent := app.Agent(h.publicURL)
	if req.Agent != nil && strings.TrimSpace(req.Agent.Name) != "" {
		agent = *req.Agent
	}
	msg, err := h.dispatch.PushMessage(ctx, agent, user, req.Text, ch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

// ConfigurePlugin godoc
// @Summary Create or replace an app plugin
// @Tags apps
// @Param X-App-Token header string true "App token"
// @Param type path string true "Plugin type"
// @Param payload body ConfigurePluginRequest true "Plugin configuration"
// @Success 200 {object} models.Plugin
// @Failure 400 {object} ErrorResponse
// @Router /apps/plugins/{type} [put]
func (h *AppsHandler) ConfigurePlugin(c echo.Context) error {
	app, err := h.requireApp(c)
	if err != nil {
		return err
	}
	var req ConfigurePluginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	channels := make([]models.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		ch, err := models.ParseChannel(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		channels = append(channels, ch)
	}
	pluginType := models.PluginType(strings.ToLower(strings.TrimSpace(c.Param("type"))))
	plugin, err := h.plugins.Configure(c.Request().Context(), app.ID, pluginType, channels, req.Configuration)
	if err != nil {
		return httpError(err)
	}
	h.logger.Info("plugin configured", slog.String("app_id", app.ID), slog.String("type", string(plugin.Type)))
	return c.JSON(http.StatusOK, plugin)
}

// ListChecks godoc
// @Summary Report which channels the app can route through
// @Tags apps
// @Param X-App-Token header string true "App token"
// @Success 200 {object} ChecksResponse
// @Router /apps/checks [get]
func (h *AppsHandler) ListChecks(c echo.Context) error {
	app, err := h.requireApp(c)
	if err != nil {
		return err
	}
	checks := []healthcheck.CheckResult{}
	if h.checker != nil {
		checks = h.checker.ListChecks(c.Request().Context(), app.ID)
	}
	return c.JSON(http.StatusOK, ChecksResponse{Status: healthcheck.Worst(checks), Checks: checks})
}

func (h *AppsHandler) requireApp(c echo.Context) (models.App, error) {
	token := appToken(c, "")
	if token == "" {
		return models.App{}, echo.NewHTTPError(http.StatusUnauthorized, "app token is required")
	}
	app, err := h.store.GetAppByToken(c.Request().Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.App{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid app token")
		}
		return models.App{}, httpError(err)
	}
	return app, nil
}
