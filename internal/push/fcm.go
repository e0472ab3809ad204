// Package push holds the thin senders used by push-capable channels.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/appleboy/go-fcm"
)

// Origin tags every payload so client SDKs can ignore foreign pushes.
const Origin = "ayro"

var (
	fcmTimeToLive uint = 600

	errUnknownFCMFailure = errors.New("unknown error")
)

// FCM sends data messages through the Firebase legacy HTTP endpoint. Each
// integration carries its own server key, so a client is built per send.
type FCM struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewFCM(log *slog.Logger, url string, timeout time.Duration) *FCM {
	if log == nil {
		log = slog.Default()
	}
	return &FCM{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: log.With(slog.String("component", "push_fcm")),
	}
}

// Send delivers one event to one registration token. Missing credentials
// or token make it a no-op.
func (f *FCM) Send(ctx context.Context, serverKey, token, event string, message any) error {
	serverKey = strings.TrimSpace(serverKey)
	token = strings.TrimSpace(token)
	if serverKey == "" || token == "" {
		f.logger.Debug("fcm push skipped", slog.Bool("has_key", serverKey != ""), slog.Bool("has_token", token != ""))
		return nil
	}
	opts := []fcm.Option{fcm.WithHTTPClient(f.client)}
	if f.url != "" {
		opts = append(opts, fcm.WithEndpoint(f.url))
	}
	client, err := fcm.NewClient(serverKey, opts...)
	if err != nil {
		return fmt.Errorf("fcm client: %w", err)
	}
	ttl := fcmTimeToLive
	resp, err := client.SendWithContext(ctx, &fcm.Message{
		RegistrationIDs: []string{token},
		TimeToLive:      &ttl,
		Data: map[string]interface{}{
			"origin":  Origin,
			"event":   event,
			"message": message,
		},
	})
	if err != nil {
		return fmt.Errorf("fcm request: %w", err)
	}
	if resp.Failure > 0 {
		reason := errUnknownFCMFailure
		if len(resp.Results) > 0 && resp.Results[0].Error != nil {
			reason = resp.Results[0].Error
		}
		return fmt.Errorf("fcm rejected message: %w", reason)
	}
	return nil
}
