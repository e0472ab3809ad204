package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/channel/adapters/messenger"
	"github.com/ayrohq/ayro/internal/config"
	"github.com/ayrohq/ayro/internal/dispatch"
	"github.com/ayrohq/ayro/internal/identity"
	"github.com/ayrohq/ayro/internal/models"
)

const maxWebhookBody = 1 << 20

// MessengerHandler receives Facebook Messenger webhook deliveries.
type MessengerHandler struct {
	registry    *channel.Registry
	identity    *identity.Service
	dispatch    *dispatch.Service
	verifyToken string
	appSecret   string
	logger      *slog.Logger
}

func NewMessengerHandler(log *slog.Logger, cfg config.MessengerConfig, registry *channel.Registry, identityService *identity.Service, dispatchService *dispatch.Service) *MessengerHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MessengerHandler{
		registry:    registry,
		identity:    identityService,
		dispatch:    dispatchService,
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		logger:      log.With(slog.String("handler", "messenger_webhook")),
	}
}

func (h *MessengerHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/messenger", h.Verify)
	e.POST("/webhooks/messenger", h.Receive)
}

// Verify answers the subscription handshake.
func (h *MessengerHandler) Verify(c echo.Context) error {
	if c.QueryParam("hub.mode") != "subscribe" || h.verifyToken == "" || c.QueryParam("hub.verify_token") != h.verifyToken {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, c.QueryParam("hub.challenge"))
}

// Receive routes every message of a delivery independently and always
// acknowledges, so Facebook does not retry events that will never route.
func (h *MessengerHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if h.appSecret != "" && !messenger.VerifySignature(h.appSecret, body, c.Request().Header.Get("X-Hub-Signature-256")) {
		return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
	}
	ctx := c.Request().Context()
	inbound, err := h.registry.Receive(ctx, models.ChannelMessenger, body)
	if err != nil {
		h.logger.Warn("messenger webhook dropped", slog.Any("error", err))
		return c.NoContent(http.StatusOK)
	}
	for _, in := range inbound {
		user, device, err := h.identity.ResolveMessengerUser(ctx, in.Recipient, in.Sender.SubjectID)
		if err != nil {
			if errors.Is(err, identity.ErrIntegrationNotFound) {
				h.logger.Debug("no integration for page", slog.String("page_id", in.Recipient))
			} else {
				h.logger.Error("resolve messenger user failed", slog.String("page_id", in.Recipient), slog.Any("error", err))
			}
			continue
		}
		if _, err := h.dispatch.PostMessage(ctx, user, device, models.ChannelMessenger, in.Message.Text); err != nil {
			h.logger.Warn("messenger message not forwarded", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}
	return c.NoContent(http.StatusOK)
}
