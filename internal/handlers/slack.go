package handlers

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/slack-go/slack"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/commands"
	"github.com/ayrohq/ayro/internal/identity"
	"github.com/ayrohq/ayro/internal/integrations"
	"github.com/ayrohq/ayro/internal/models"
)

const workspaceNotConnected = "This Slack workspace is not connected to an Ayro app."

// SlackHandler serves slash commands and the OAuth install flow.
type SlackHandler struct {
	commands      *commands.Service
	installer     *integrations.SlackInstaller
	registry      *channel.Registry
	signingSecret string
	logger        *slog.Logger
}

func NewSlackHandler(log *slog.Logger, signingSecret string, commandService *commands.Service, installer *integrations.SlackInstaller, registry *channel.Registry) *SlackHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SlackHandler{
		commands:      commandService,
		installer:     installer,
		registry:      registry,
		signingSecret: signingSecret,
		logger:        log.With(slog.String("handler", "slack")),
	}
}

func (h *SlackHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/slack/commands", h.Command)
	e.GET("/integrations/slack/install", h.Install)
	e.GET("/integrations/slack/callback", h.Callback)
}

// Command answers a slash command. Replies are posted through the Web API,
// so the HTTP answer stays empty unless the workspace is unknown.
func (h *SlackHandler) Command(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if h.signingSecret != "" {
		verifier, err := slack.NewSecretsVerifier(req.Header, h.signingSecret)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		if _, err := verifier.Write(body); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		if err := verifier.Ensure(); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
		}
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	sc, err := slack.SlashCommandParse(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err = h.commands.Handle(req.Context(), commands.Command{
		TeamID:    sc.TeamID,
		ChannelID: sc.ChannelID,
		UserID:    sc.UserID,
		Command:   sc.Command,
		Text:      sc.Text,
	})
	if err != nil {
		if errors.Is(err, identity.ErrIntegrationNotFound) {
			return c.String(http.StatusOK, workspaceNotConnected)
		}
		h.logger.Error("slash command failed", slog.String("team_id", sc.TeamID), slog.String("command", sc.Command), slog.Any("error", err))
		return c.String(http.StatusOK, "Something went wrong, please try again.")
	}
	return c.NoContent(http.StatusOK)
}

// Install redirects the app owner to the Slack consent page.
func (h *SlackHandler) Install(c echo.Context) error {
	token := appToken(c, c.QueryParam("token"))
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "app token is required")
	}
	return c.Redirect(http.StatusFound, h.installer.AuthURL(token))
}

// Callback godoc
// @Summary Complete the Slack install
// @Tags integrations
// @Param code query string true "OAuth code"
// @Param state query string true "App token"
// @Success 200 {object} models.Integration
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /integrations/slack/callback [get]
func (h *SlackHandler) Callback(c echo.Context) error {
	if reason := strings.TrimSpace(c.QueryParam("error")); reason != "" {
		return echo.NewHTTPError(http.StatusBadRequest, "slack install denied: "+reason)
	}
	code := strings.TrimSpace(c.QueryParam("code"))
	state := strings.TrimSpace(c.QueryParam("state"))
	if code == "" || state == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code and state are required")
	}
	integration, err := h.installer.Complete(c.Request().Context(), state, code)
	if err != nil {
		return httpError(err)
	}
	integration.Configuration = h.registry.PresentConfig(models.ChannelSlack, integration.Configuration)
	return c.JSON(http.StatusOK, integration)
}
