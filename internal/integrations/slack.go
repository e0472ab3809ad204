// Package integrations installs business channels into apps.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/config"
	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/store"
)

var (
	ErrAppNotFound    = errors.New("app not found")
	ErrExchangeFailed = errors.New("oauth code exchange failed")
	ErrWorkspaceTaken = errors.New("slack workspace already bound to another app")
)

const slackAuthorizeURL = "https://slack.com/oauth/v2/authorize"

var slackScopes = []string{
	"channels:read",
	"groups:read",
	"groups:write",
	"chat:write",
	"chat:write.customize",
	"users:read",
	"commands",
}

type Store interface {
	store.AppStore
	store.IntegrationStore
}

// Registry is the part of channel.Registry the install flow uses.
type Registry interface {
	DiscoverSelf(ctx context.Context, channelType channel.ChannelType, credentials map[string]any) (map[string]any, string, error)
	NormalizeConfig(channelType channel.ChannelType, raw map[string]any) (map[string]any, error)
	ExternalID(channelType channel.ChannelType, cfg map[string]any) string
}

// BotIntroducer announces the bot in the workspace after install.
type BotIntroducer interface {
	PostBotIntro(ctx context.Context, integration models.Integration) error
}

type SlackInstaller struct {
	oauth    *oauth2.Config
	store    Store
	registry Registry
	intro    BotIntroducer
	logger   *slog.Logger
}

func NewSlackInstaller(log *slog.Logger, cfg config.SlackConfig, st Store, registry Registry, intro BotIntroducer) *SlackInstaller {
	if log == nil {
		log = slog.Default()
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = strings.TrimRight(config.DefaultSlackAPIURL, "/")
	}
	return &SlackInstaller{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       slackScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   slackAuthorizeURL,
				TokenURL:  apiURL + "/oauth.v2.access",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:    st,
		registry: registry,
		intro:    intro,
		logger:   log.With(slog.String("service", "slack_install")),
	}
}

// AuthURL returns the Slack consent page for the app owning appToken.
func (i *SlackInstaller) AuthURL(appToken string) string {
	return i.oauth.AuthCodeURL(appToken)
}

// Complete exchanges the OAuth code, discovers the workspace and binds it
// to the app. Reinstalling into the same app replaces the configuration.
func (i *SlackInstaller) Complete(ctx context.Context, appToken, code string) (models.Integration, error) {
	app, err := i.store.GetAppByToken(ctx, strings.TrimSpace(appToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Integration{}, ErrAppNotFound
		}
		return models.Integration{}, fmt.Errorf("load app: %w", err)
	}
	token, err := i.oauth.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return models.Integration{}, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	discovered, _, err := i.registry.DiscoverSelf(ctx, models.ChannelSlack, map[string]any{"access_token": token.AccessToken})
	if err != nil {
		return models.Integration{}, fmt.Errorf("discover slack workspace: %w", err)
	}
	cfg, err := i.registry.NormalizeConfig(models.ChannelSlack, discovered)
	if err != nil {
		return models.Integration{}, fmt.Errorf("normalize slack configuration: %w", err)
	}

	integration, err := i.store.UpsertIntegration(ctx, models.Integration{
		AppID:         app.ID,
		Type:          models.IntegrationTypeBusiness,
		Channel:       models.ChannelSlack,
		ExternalID:    i.registry.ExternalID(models.ChannelSlack, cfg),
		Configuration: cfg,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.Integration{}, ErrWorkspaceTaken
		}
		return models.Integration{}, fmt.Errorf("save slack integration: %w", err)
	}
	i.logger.Info("slack installed", slog.String("app_id", app.ID), slog.String("team_id", integration.ExternalID))

	if i.intro != nil {
		if err := i.intro.PostBotIntro(ctx, integration); err != nil {
			i.logger.Warn("bot intro failed", slog.String("app_id", app.ID), slog.Any("error", err))
		}
	}
	return integration, nil
}
