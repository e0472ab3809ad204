package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ayrohq/ayro/internal/dispatch"
	"github.com/ayrohq/ayro/internal/identity"
	"github.com/ayrohq/ayro/internal/integrations"
	"github.com/ayrohq/ayro/internal/plugins"
	"github.com/ayrohq/ayro/internal/store"
)

const appTokenHeader = "X-App-Token"

// ErrorResponse is the body echo renders for an HTTPError.
type ErrorResponse struct {
	Message string `json:"message"`
}

// httpError maps service sentinels to status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, identity.ErrValidation),
		errors.Is(err, dispatch.ErrEmptyText),
		errors.Is(err, plugins.ErrInvalidConfig):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrAppNotFound),
		errors.Is(err, integrations.ErrAppNotFound):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid app token")
	case errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, identity.ErrIntegrationNotFound),
		errors.Is(err, dispatch.ErrMessageNotFound),
		errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrNoActiveDevice),
		errors.Is(err, integrations.ErrWorkspaceTaken),
		errors.Is(err, store.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, integrations.ErrExchangeFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// appToken reads the app token from the header, falling back to fallback.
func appToken(c echo.Context, fallback string) string {
	if v := strings.TrimSpace(c.Request().Header.Get(appTokenHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}
