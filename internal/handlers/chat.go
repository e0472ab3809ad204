package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ayrohq/ayro/internal/auth"
	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/dispatch"
	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/store"
)

// SessionStore loads the records a session token points at.
type SessionStore interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	GetDevice(ctx context.Context, id string) (models.Device, error)
}

type ChatHandler struct {
	dispatch *dispatch.Service
	store    SessionStore
	logger   *slog.Logger
}

type PostMessageRequest struct {
	Text string `json:"text"`
}

// PostMessageResponse reports whether the message reached the business
// channel. Undelivered messages stay stored and can be redelivered.
type PostMessageResponse struct {
	Message   models.ChatMessage `json:"message"`
	Delivered bool               `json:"delivered"`
}

func NewChatHandler(log *slog.Logger, dispatchService *dispatch.Service, st SessionStore) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{
		dispatch: dispatchService,
		store:    st,
		logger:   log.With(slog.String("handler", "chat")),
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	group := e.Group("/chat")
	group.GET("", h.ListMessages)
	group.POST("/view", h.ViewChat)
	group.POST("/messages/:id/redeliver", h.Redeliver)
	group.POST("/:channel", h.PostMessage)
}

// ListMessages godoc
// @Summary List the session user's messages
// @Tags chat
// @Success 200 {array} models.ChatMessage
// @Failure 401 {object} ErrorResponse
// @Router /chat [get]
func (h *ChatHandler) ListMessages(c echo.Context) error {
	user, _, err := h.sessionUser(c)
	if err != nil {
		return err
	}
	messages, err := h.dispatch.ListMessages(c.Request().Context(), user)
	if err != nil {
		return httpError(err)
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return c.JSON(http.StatusOK, messages)
}

// PostMessage godoc
// @Summary Post a message from the end user
// @Description Stores the message and forwards it to the business channel
// @Tags chat
// @Param channel path string true "User-facing channel"
// @Param payload body PostMessageRequest true "Message"
// @Success 200 {object} PostMessageResponse
// @Success 202 {object} PostMessageResponse
// @Failure 400 {object} ErrorResponse
// @Router /chat/{channel} [post]
func (h *ChatHandler) PostMessage(c echo.Context) error {
	ch, err := models.ParseChannel(c.Param("channel"))
	if err != nil || !ch.UserFacing() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid channel")
	}
	var req PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	user, device, err := h.sessionUser(c)
	if err != nil {
		return err
	}
	if device.Channel != ch {
		return echo.NewHTTPError(http.StatusBadRequest, "channel does not match the session device")
	}
	msg, err := h.dispatch.PostMessage(c.Request().Context(), user, device, ch, req.Text)
	return h.deliveryResponse(c, msg, err)
}

// Redeliver godoc
// @Summary Forward a stored message to the business channel again
// @Tags chat
// @Param id path string true "Message ID"
// @Success 200 {object} PostMessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /chat/messages/{id}/redeliver [post]
func (h *ChatHandler) Redeliver(c echo.Context) error {
	user, _, err := h.sessionUser(c)
	if err != nil {
		return err
	}
	msg, err := h.dispatch.Redeliver(c.Request().Context(), user, strings.TrimSpace(c.Param("id")))
	return h.deliveryResponse(c, msg, err)
}

// ViewChat godoc
// @Summary Record that the user opened the chat
// @Tags chat
// @Success 204
// @Router /chat/view [post]
func (h *ChatHandler) ViewChat(c echo.Context) error {
	user, device, err := h.sessionUser(c)
	if err != nil {
		return err
	}
	if _, err := h.dispatch.ChatViewed(c.Request().Context(), user, device.Channel); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChatHandler) deliveryResponse(c echo.Context, msg models.ChatMessage, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, PostMessageResponse{Message: msg, Delivered: true})
	}
	if msg.ID == "" {
		return httpError(err)
	}
	if !errors.Is(err, dispatch.ErrNoBusinessIntegration) && !errors.Is(err, channel.ErrDeliveryFailed) {
		h.logger.Warn("message stored but not forwarded", slog.String("message_id", msg.ID), slog.Any("error", err))
	}
	return c.JSON(http.StatusAccepted, PostMessageResponse{Message: msg, Delivered: false})
}

func (h *ChatHandler) sessionUser(c echo.Context) (models.User, models.Device, error) {
	session, err := auth.SessionFromContext(c)
	if err != nil {
		return models.User{}, models.Device{}, err
	}
	ctx := c.Request().Context()
	user, err := h.store.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, models.Device{}, echo.NewHTTPError(http.StatusUnauthorized, "session user no longer exists")
		}
		return models.User{}, models.Device{}, httpError(err)
	}
	device, err := h.store.GetDevice(ctx, session.DeviceID)
	if err != nil || device.UserID != user.ID {
		return models.User{}, models.Device{}, echo.NewHTTPError(http.StatusUnauthorized, "session device no longer exists")
	}
	return user, device, nil
}
