package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

type webRequest struct {
	Event   string `json:"event"`
	Message any    `json:"message"`
}

// WebGateway forwards events to the internal gateway that fans them out to
// open browser widgets.
type WebGateway struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewWebGateway(log *slog.Logger, baseURL string, timeout time.Duration) *WebGateway {
	if log == nil {
		log = slog.Default()
	}
	return &WebGateway{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  log.With(slog.String("component", "push_web")),
	}
}

// Send posts the event for userID. An unconfigured gateway is a no-op.
func (w *WebGateway) Send(ctx context.Context, userID, event string, message any) error {
	if w.baseURL == "" {
		w.logger.Debug("web push skipped: gateway not configured")
		return nil
	}
	body, err := json.Marshal(webRequest{Event: event, Message: message})
	if err != nil {
		return fmt.Errorf("encode web push: %w", err)
	}
	endpoint := w.baseURL + "/push/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build web push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("web push request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("web push status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
