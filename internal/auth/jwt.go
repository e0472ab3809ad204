package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject     = "sub"
	claimUserID      = "user_id"
	claimDeviceID    = "device_id"
	claimAppID       = "app_id"
	claimType        = "typ"
	sessionTokenType = "user_session"
)

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// Session identifies an end user on one of their devices.
type Session struct {
	UserID   string
	DeviceID string
	AppID    string
}

// GenerateSessionToken creates a signed JWT for an end user's device.
func GenerateSessionToken(info Session, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(info.UserID) == "" {
		return "", time.Time{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(info.DeviceID) == "" {
		return "", time.Time{}, fmt.Errorf("device id is required")
	}
	if strings.TrimSpace(info.AppID) == "" {
		return "", time.Time{}, fmt.Errorf("app id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimType:     sessionTokenType,
		claimSubject:  info.UserID,
		claimUserID:   info.UserID,
		claimDeviceID: info.DeviceID,
		claimAppID:    info.AppID,
		"iat":         now.Unix(),
		"exp":         expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// SessionFromContext extracts the session claims placed by JWTMiddleware.
func SessionFromContext(c echo.Context) (Session, error) {
	claims, err := claimsFromContext(c)
	if err != nil {
		return Session{}, err
	}
	if claimString(claims, claimType) != sessionTokenType {
		return Session{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
	}
	info := Session{
		UserID:   claimString(claims, claimUserID),
		DeviceID: claimString(claims, claimDeviceID),
		AppID:    claimString(claims, claimAppID),
	}
	if info.UserID == "" {
		info.UserID = claimString(claims, claimSubject)
	}
	if info.UserID == "" || info.DeviceID == "" || info.AppID == "" {
		return Session{}, echo.NewHTTPError(http.StatusUnauthorized, "incomplete session token")
	}
	return info, nil
}

// RefreshTokenFromContext issues a new session token with the same claims
// and a fresh expiry. The original lifetime is kept when it can be read;
// otherwise defaultExpiresIn applies.
func RefreshTokenFromContext(c echo.Context, secret string, defaultExpiresIn time.Duration) (string, time.Time, error) {
	claims, err := claimsFromContext(c)
	if err != nil {
		return "", time.Time{}, err
	}
	info, err := SessionFromContext(c)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresIn := defaultExpiresIn
	iat, errIat := claims.GetIssuedAt()
	exp, errExp := claims.GetExpirationTime()
	if errIat == nil && errExp == nil && iat != nil && exp != nil {
		if lifetime := exp.Sub(iat.Time); lifetime > 0 {
			expiresIn = lifetime
		}
	}
	return GenerateSessionToken(info, secret, expiresIn)
}

func claimsFromContext(c echo.Context) (jwt.MapClaims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
