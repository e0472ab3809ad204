package messenger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	fb "github.com/huandu/facebook/v2"

	"github.com/ayrohq/ayro/internal/models"
)

const profileFields = "first_name,last_name,profile_pic,gender,locale,timezone"

// graphTransport rewrites Graph requests onto the configured base URL,
// which carries the API version and may point at a test server.
type graphTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t graphTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.base.Scheme
	out.URL.Host = t.base.Host
	out.URL.Path = strings.TrimRight(t.base.Path, "/") + req.URL.Path
	out.URL.RawPath = ""
	out.Host = t.base.Host
	return t.next.RoundTrip(out)
}

func newGraphClient(graphURL string, client *http.Client) *http.Client {
	base, err := url.Parse(graphURL)
	if err != nil || base.Host == "" {
		return client
	}
	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &http.Client{Timeout: client.Timeout, Transport: graphTransport{base: base, next: next}}
}

func (a *Adapter) session(ctx context.Context, token string) *fb.Session {
	session := &fb.Session{HttpClient: a.client}
	session.SetAccessToken(token)
	return session.WithContext(ctx)
}

// FetchProfile reads the sender's public profile with the page token.
func (a *Adapter) FetchProfile(ctx context.Context, integration models.Integration, senderID string) (Profile, error) {
	cfg, err := parseConfig(integration.Configuration)
	if err != nil {
		return Profile{}, err
	}
	if cfg.Page.AccessToken == "" {
		return Profile{}, ErrNotConfigured
	}
	res, err := a.session(ctx, cfg.Page.AccessToken).Get("/"+url.PathEscape(senderID), fb.Params{"fields": profileFields})
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return Profile{}, graphError("graph profile request", err)
	}
	var profile Profile
	if err := res.Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("decode graph profile: %w", err)
	}
	return profile, nil
}

func (a *Adapter) sendText(ctx context.Context, token, recipientID, text string) error {
	res, err := a.session(ctx, token).Post("/me/messages", fb.Params{
		"messaging_type": "RESPONSE",
		"recipient":      map[string]any{"id": recipientID},
		"message":        map[string]any{"text": text},
	})
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return graphError("graph send request", err)
	}
	return nil
}

func graphError(op string, err error) error {
	var fbErr *fb.Error
	if errors.As(err, &fbErr) {
		return fmt.Errorf("%s: %s (code %d)", op, fbErr.Message, fbErr.Code)
	}
	return fmt.Errorf("%s: %w", op, err)
}
