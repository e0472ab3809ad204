// Package slack implements the business-side channel: every end-user
// conversation is mirrored into a private Slack channel of the app's
// workspace, and agents answer through slash commands.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	slackgo "github.com/slack-go/slack"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/keylock"
	"github.com/ayrohq/ayro/internal/models"
)

// Type is the registered channel type for Slack.
const Type channel.ChannelType = models.ChannelSlack

const (
	botUsername  = "Ayro"
	primaryColor = "#7c00bd"

	errChannelNotFound = "channel_not_found"
	errNotArchived     = "not_archived"
	errNameTaken       = "name_taken"

	// Runes per posted message.
	textChunkLimit = 3000
)

// ErrNotConfigured is returned when the integration carries no usable token.
var ErrNotConfigured = errors.New("slack integration not configured")

// API is the subset of the Slack Web API the adapter talks to.
// *slackgo.Client satisfies it.
type API interface {
	AuthTestContext(ctx context.Context) (*slackgo.AuthTestResponse, error)
	CreateConversationContext(ctx context.Context, params slackgo.CreateConversationParams) (*slackgo.Channel, error)
	GetConversationInfoContext(ctx context.Context, input *slackgo.GetConversationInfoInput) (*slackgo.Channel, error)
	UnArchiveConversationContext(ctx context.Context, channelID string) error
	GetConversationsContext(ctx context.Context, params *slackgo.GetConversationsParameters) ([]slackgo.Channel, string, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackgo.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slackgo.MsgOption) (string, error)
	GetUserInfoContext(ctx context.Context, user string) (*slackgo.User, error)
}

// Store is what the adapter needs from persistence.
type Store interface {
	GetApp(ctx context.Context, id string) (models.App, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	PatchUser(ctx context.Context, id string, patch models.UserPatch) (models.User, error)
	ListDevices(ctx context.Context, userID string) ([]models.Device, error)
}

// Config is the typed view of a Slack integration configuration.
type Config struct {
	Team    TeamInfo   `json:"team"`
	User    BotUser    `json:"user"`
	Channel ChannelRef `json:"channel"`
}

type TeamInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// BotUser is the installing identity whose token the adapter acts with.
type BotUser struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// ChannelRef points at a Slack channel; Channel in Config is the support
// channel where new conversations are announced.
type ChannelRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Options tune how the adapter reaches Slack.
type Options struct {
	APIURL  string
	Timeout time.Duration
}

// Adapter implements channel.Adapter, channel.Sender, channel.ConfigNormalizer,
// channel.ConfigPresenter and channel.SelfDiscoverer for Slack.
type Adapter struct {
	store     Store
	logger    *slog.Logger
	locks     *keylock.Locker
	newClient func(token string) API
}

// NewAdapter creates a Slack adapter. opts.Timeout bounds every API call.
func NewAdapter(log *slog.Logger, st Store, opts Options) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	httpClient := &http.Client{Timeout: opts.Timeout}
	apiURL := strings.TrimSpace(opts.APIURL)
	return &Adapter{
		store:  st,
		logger: log.With(slog.String("adapter", "slack")),
		locks:  keylock.New(),
		newClient: func(token string) API {
			clientOpts := []slackgo.Option{slackgo.OptionHTTPClient(httpClient)}
			if apiURL != "" {
				clientOpts = append(clientOpts, slackgo.OptionAPIURL(apiURL))
			}
			return slackgo.New(token, clientOpts...)
		},
	}
}

// Type returns the Slack channel type.
func (a *Adapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Slack channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:            Type,
		DisplayName:     "Slack",
		IntegrationType: models.IntegrationTypeBusiness,
		Capabilities: channel.ChannelCapabilities{
			Text:        true,
			Attachments: true,
			Commands:    true,
		},
		OutboundPolicy: channel.OutboundPolicy{
			TextChunkLimit: textChunkLimit,
			ChunkerMode:    channel.ChunkerModeMarkdown,
		},
	}
}

// NormalizeConfig validates a Slack configuration. The team id is the
// global key binding a workspace to one app.
func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, err
	}
	if cfg.Team.ID == "" {
		return nil, errors.New("slack team.id is required")
	}
	if cfg.User.AccessToken == "" {
		return nil, errors.New("slack user.access_token is required")
	}
	return cfg.toMap()
}

// ExternalID returns configuration.team.id.
func (a *Adapter) ExternalID(cfg map[string]any) string {
	parsed, err := parseConfig(cfg)
	if err != nil {
		return ""
	}
	return parsed.Team.ID
}

// PresentConfig hides the access token.
func (a *Adapter) PresentConfig(cfg map[string]any) map[string]any {
	parsed, err := parseConfig(cfg)
	if err != nil {
		return cfg
	}
	parsed.User.AccessToken = ""
	out, err := parsed.toMap()
	if err != nil {
		return cfg
	}
	return out
}

// DiscoverSelf resolves the workspace behind an access token and picks the
// general channel as the support channel.
func (a *Adapter) DiscoverSelf(ctx context.Context, credentials map[string]any) (map[string]any, string, error) {
	token, _ := credentials["access_token"].(string)
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, "", ErrNotConfigured
	}
	api := a.newClient(token)
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("slack auth.test: %w", err)
	}
	cfg := Config{
		Team: TeamInfo{ID: auth.TeamID, Name: auth.Team, URL: auth.URL},
		User: BotUser{ID: auth.UserID, Name: auth.User, AccessToken: token},
	}
	params := &slackgo.GetConversationsParameters{ExcludeArchived: true, Limit: 200, Types: []string{"public_channel"}}
	for {
		channels, cursor, err := api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, "", fmt.Errorf("slack conversations.list: %w", err)
		}
		for _, ch := range channels {
			if ch.IsGeneral {
				cfg.Channel = ChannelRef{ID: ch.ID, Name: ch.Name}
			}
		}
		if cfg.Channel.ID != "" || cursor == "" {
			break
		}
		params.Cursor = cursor
	}
	out, err := cfg.toMap()
	if err != nil {
		return nil, "", err
	}
	return out, cfg.Team.ID, nil
}

// Send forwards an end-user message into the user's Slack channel,
// creating or recovering the channel first when needed.
func (a *Adapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	cfg, api, err := a.client(msg.Integration)
	if err != nil {
		return channel.DeliveryFailed(err)
	}
	user, binding, err := a.ensureChannel(ctx, api, cfg, msg.User.ID, msg.Message.Text)
	if err != nil {
		return channel.DeliveryFailed(err)
	}
	policy := channel.NormalizeOutboundPolicy(a.Descriptor().OutboundPolicy)
	for _, chunk := range policy.SplitText(msg.Message.Text) {
		opts := []slackgo.MsgOption{
			slackgo.MsgOptionText(chunk, false),
			slackgo.MsgOptionUsername(user.FullName()),
			slackgo.MsgOptionAsUser(false),
		}
		if user.PhotoURL != "" {
			opts = append(opts, slackgo.MsgOptionIconURL(user.PhotoURL))
		}
		if _, _, err := api.PostMessageContext(ctx, binding.ID, opts...); err != nil {
			return channel.DeliveryFailed(fmt.Errorf("post to %s: %w", binding.ID, err))
		}
	}
	return nil
}

func (a *Adapter) client(integration models.Integration) (Config, API, error) {
	cfg, err := parseConfig(integration.Configuration)
	if err != nil {
		return Config{}, nil, err
	}
	if cfg.User.AccessToken == "" {
		return Config{}, nil, ErrNotConfigured
	}
	return cfg, a.newClient(cfg.User.AccessToken), nil
}

func parseConfig(raw map[string]any) (Config, error) {
	var cfg Config
	if raw == nil {
		return cfg, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return cfg, fmt.Errorf("encode slack config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode slack config: %w", err)
	}
	cfg.Team.ID = strings.TrimSpace(cfg.Team.ID)
	cfg.User.AccessToken = strings.TrimSpace(cfg.User.AccessToken)
	cfg.Channel.ID = strings.TrimSpace(cfg.Channel.ID)
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

func slackErrorIs(err error, code string) bool {
	var resp slackgo.SlackErrorResponse
	if errors.As(err, &resp) {
		return resp.Err == code
	}
	return false
}
