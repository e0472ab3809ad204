package integrationchecker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ayrohq/ayro/internal/healthcheck"
	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/store"
)

const checkTypeIntegration = "channel.integration"

// IntegrationLoader reads an app's integrations.
type IntegrationLoader interface {
	GetIntegration(ctx context.Context, appID string, channel models.Channel) (models.Integration, error)
}

// Checker reports, per channel, whether the app has a usable integration.
type Checker struct {
	logger *slog.Logger
	store  IntegrationLoader
}

func NewChecker(log *slog.Logger, st IntegrationLoader) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger: log.With(slog.String("checker", "healthcheck_integration")),
		store:  st,
	}
}

// ListChecks evaluates one item per known channel.
func (c *Checker) ListChecks(ctx context.Context, appID string) []healthcheck.CheckResult {
	appID = strings.TrimSpace(appID)
	if appID == "" || ctx.Err() != nil {
		return []healthcheck.CheckResult{}
	}
	checks := make([]healthcheck.CheckResult, 0, len(models.AllChannels))
	for _, ch := range models.AllChannels {
		checks = append(checks, c.check(ctx, appID, ch))
	}
	return checks
}

func (c *Checker) check(ctx context.Context, appID string, ch models.Channel) healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:       checkTypeIntegration + "." + ch.String(),
		Type:     checkTypeIntegration,
		Subtitle: ch.String(),
		Metadata: map[string]any{"channel": ch.String()},
	}
	integration, err := c.store.GetIntegration(ctx, appID, ch)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("integration lookup failed", slog.String("app_id", appID), slog.String("channel", ch.String()), slog.Any("error", err))
			item.Status = healthcheck.StatusError
			item.Summary = fmt.Sprintf("Could not load the %s integration.", ch)
			item.Detail = err.Error()
			return item
		}
		if ch == models.ChannelSlack {
			item.Status = healthcheck.StatusError
			item.Summary = "Slack is not connected; user messages cannot be forwarded."
			return item
		}
		item.Status = healthcheck.StatusUnknown
		item.Summary = fmt.Sprintf("Channel %s is not configured.", ch)
		return item
	}

	item.Metadata["integration_id"] = integration.ID
	item.Status = healthcheck.StatusOK
	item.Summary = fmt.Sprintf("Channel %s is configured.", ch)
	switch ch {
	case models.ChannelSlack:
		if integration.ConfigString("channel", "id") == "" {
			item.Status = healthcheck.StatusWarn
			item.Summary = "Slack is connected but no support channel is selected."
		}
	case models.ChannelMessenger:
		if integration.ConfigString("page", "access_token") == "" {
			item.Status = healthcheck.StatusWarn
			item.Summary = "Messenger page has no access token; replies cannot be sent."
		}
	case models.ChannelAndroid, models.ChannelIOS:
		if integration.ConfigString("fcm", "server_key") == "" {
			item.Status = healthcheck.StatusWarn
			item.Summary = fmt.Sprintf("Channel %s has no FCM server key; pushes cannot be sent.", ch)
		}
	}
	return item
}
