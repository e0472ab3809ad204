// Package messenger implements the Facebook Messenger channel: webhook
// parsing, Graph profile lookups and the Send API.
package messenger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/models"
)

// Type is the registered channel type for Messenger.
const Type channel.ChannelType = models.ChannelMessenger

const messengerTextLimit = 2000

// ErrNotConfigured is returned when the page has no access token.
var ErrNotConfigured = errors.New("messenger integration not configured")

// Config is the typed view of a Messenger integration configuration.
type Config struct {
	Page Page `json:"page"`
}

type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// Profile is the public Graph profile of a Messenger sender.
type Profile struct {
	FirstName  string `json:"first_name" facebook:"first_name"`
	LastName   string `json:"last_name" facebook:"last_name"`
	ProfilePic string `json:"profile_pic" facebook:"profile_pic"`
	Gender     string `json:"gender" facebook:"gender"`
	Locale     string `json:"locale" facebook:"locale"`
	Timezone   *int   `json:"timezone" facebook:"timezone"`
}

// Adapter implements channel.Adapter, channel.Receiver, channel.Sender,
// channel.ConfigNormalizer and channel.ConfigPresenter for Messenger.
type Adapter struct {
	client *http.Client
	logger *slog.Logger
}

func NewAdapter(log *slog.Logger, graphURL string, timeout time.Duration) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		client: newGraphClient(strings.TrimSpace(graphURL), &http.Client{Timeout: timeout}),
		logger: log.With(slog.String("adapter", "messenger")),
	}
}

func (a *Adapter) Type() channel.ChannelType {
	return Type
}

func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:            Type,
		DisplayName:     "Facebook Messenger",
		IntegrationType: models.IntegrationTypeUser,
		Capabilities: channel.ChannelCapabilities{
			Text: true,
		},
		OutboundPolicy: channel.OutboundPolicy{
			TextChunkLimit: messengerTextLimit,
			ChunkerMode:    channel.ChunkerModeText,
		},
	}
}

// NormalizeConfig requires the page id, the global key for Messenger.
func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, err
	}
	if cfg.Page.ID == "" {
		return nil, errors.New("messenger page.id is required")
	}
	return cfg.toMap()
}

// ExternalID returns configuration.page.id.
func (a *Adapter) ExternalID(cfg map[string]any) string {
	parsed, err := parseConfig(cfg)
	if err != nil {
		return ""
	}
	return parsed.Page.ID
}

// PresentConfig hides the page access token.
func (a *Adapter) PresentConfig(cfg map[string]any) map[string]any {
	parsed, err := parseConfig(cfg)
	if err != nil {
		return cfg
	}
	parsed.Page.AccessToken = ""
	out, err := parsed.toMap()
	if err != nil {
		return cfg
	}
	return out
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string           `json:"id"`
		Messaging []messagingEvent `json:"messaging"`
	} `json:"entry"`
}

type messagingEvent struct {
	Sender    struct{ ID string } `json:"sender"`
	Recipient struct{ ID string } `json:"recipient"`
	Timestamp int64               `json:"timestamp"`
	Message   *struct {
		Text   string `json:"text"`
		IsEcho bool   `json:"is_echo"`
	} `json:"message"`
}

// Receive flattens a webhook delivery into one inbound message per
// routable event. Events without text and page echoes are dropped.
func (a *Adapter) Receive(_ context.Context, raw []byte) ([]channel.InboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode messenger webhook: %w", err)
	}
	var out []channel.InboundMessage
	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			if ev.Message == nil || ev.Message.IsEcho || strings.TrimSpace(ev.Message.Text) == "" {
				continue
			}
			if ev.Sender.ID == "" || ev.Recipient.ID == "" {
				continue
			}
			received := time.Now().UTC()
			if ev.Timestamp > 0 {
				received = time.UnixMilli(ev.Timestamp).UTC()
			}
			out = append(out, channel.InboundMessage{
				Channel:    Type,
				Message:    channel.Message{Text: ev.Message.Text},
				Sender:     channel.Identity{SubjectID: ev.Sender.ID},
				Recipient:  ev.Recipient.ID,
				ReceivedAt: received,
			})
		}
	}
	return out, nil
}

// Send delivers text to the device's Messenger profile, chunked to the
// Send API limit. Messages without text are skipped.
func (a *Adapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	if msg.Device == nil || msg.Device.Info.ProfileID == "" {
		return channel.DeliveryFailed(errors.New("messenger device has no profile id"))
	}
	if strings.TrimSpace(msg.Message.Text) == "" {
		a.logger.Debug("messenger send skipped: no text", slog.String("event", msg.Message.EventName()))
		return nil
	}
	cfg, err := parseConfig(msg.Integration.Configuration)
	if err != nil {
		return channel.DeliveryFailed(err)
	}
	if cfg.Page.AccessToken == "" {
		return channel.DeliveryFailed(ErrNotConfigured)
	}
	policy := channel.NormalizeOutboundPolicy(a.Descriptor().OutboundPolicy)
	for _, chunk := range policy.SplitText(msg.Message.Text) {
		if err := a.sendText(ctx, cfg.Page.AccessToken, msg.Device.Info.ProfileID, chunk); err != nil {
			return channel.DeliveryFailed(err)
		}
	}
	return nil
}

// VerifySignature checks the X-Hub-Signature-256 header against the body.
func VerifySignature(appSecret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return false
	}
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

func parseConfig(raw map[string]any) (Config, error) {
	var cfg Config
	if raw == nil {
		return cfg, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return cfg, fmt.Errorf("encode messenger config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode messenger config: %w", err)
	}
	cfg.Page.ID = strings.TrimSpace(cfg.Page.ID)
	cfg.Page.AccessToken = strings.TrimSpace(cfg.Page.AccessToken)
	return cfg, nil
}

func (c Config) toMap() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
