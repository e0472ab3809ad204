package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ayrohq/ayro/internal/auth"
	"github.com/ayrohq/ayro/internal/identity"
	"github.com/ayrohq/ayro/internal/models"
)

type AuthHandler struct {
	identity  *identity.Service
	jwtSecret string
	expiresIn time.Duration
	logger    *slog.Logger
}

type LoginRequest struct {
	AppToken string               `json:"app_token"`
	User     identity.UserInput   `json:"user"`
	Device   identity.DeviceInput `json:"device"`
}

type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   string        `json:"expires_at"`
	User        models.User   `json:"user"`
	Device      models.Device `json:"device"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

func NewAuthHandler(log *slog.Logger, identityService *identity.Service, jwtSecret string, expiresIn time.Duration) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		identity:  identityService,
		jwtSecret: jwtSecret,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/users", h.Login)
	e.POST("/auth/refresh", h.Refresh)
}

// Login godoc
// @Summary Log an end user in
// @Description Upsert the user and device for the app and issue a session token
// @Tags auth
// @Param X-App-Token header string false "App token"
// @Param payload body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/users [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token := appToken(c, req.AppToken)
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "app token is required")
	}
	user, device, err := h.identity.LoginUser(c.Request().Context(), token, req.User, req.Device)
	if err != nil {
		return httpError(err)
	}
	signed, expiresAt, err := auth.GenerateSessionToken(auth.Session{
		UserID:   user.ID,
		DeviceID: device.ID,
		AppID:    user.AppID,
	}, h.jwtSecret, h.expiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Debug("user logged in", slog.String("user_id", user.ID), slog.String("channel", device.Channel.String()))
	return c.JSON(http.StatusOK, LoginResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		User:        user,
		Device:      device,
	})
}

// Refresh godoc
// @Summary Refresh a session token
// @Tags auth
// @Success 200 {object} RefreshResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	signed, expiresAt, err := auth.RefreshTokenFromContext(c, h.jwtSecret, h.expiresIn)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RefreshResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	})
}
