// Package plugins evaluates the automated behaviors an app can enable:
// the greeting message, the office hours auto reply and the connect
// channel nudge.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/keylock"
	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/store"
	"github.com/ayrohq/ayro/internal/worker"
)

const (
	shortDelay       = 2 * time.Second
	officeHoursDelay = 4 * time.Second
)

// connectChannels are suggested to a user after their first message.
var connectChannels = []string{"email"}

type Store interface {
	store.AppStore
	store.PluginStore
	store.UserStore
}

// Engine implements dispatch.Triggers. Every trigger swallows and logs its
// own failure.
type Engine struct {
	store     Store
	deferrer  worker.Deferrer
	locks     *keylock.Locker
	validate  *validator.Validate
	publicURL string
	now       func() time.Time
	logger    *slog.Logger
}

func NewEngine(log *slog.Logger, st Store, deferrer worker.Deferrer, publicURL string) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:     st,
		deferrer:  deferrer,
		locks:     keylock.New(),
		validate:  newValidator(),
		publicURL: publicURL,
		now:       time.Now,
		logger:    log.With(slog.String("service", "plugins")),
	}
}

// ChatViewed sends the greeting on the user's first chat view.
func (e *Engine) ChatViewed(ctx context.Context, user models.User, ch models.Channel) {
	if user.Extra.Metrics.ChatViews != 1 {
		return
	}
	if err := e.greet(ctx, user, ch); err != nil {
		e.logger.Warn("chat viewed trigger failed", slog.String("user_id", user.ID), slog.Any("error", err))
	}
}

// MessagePosted runs the office hours check and, on the first message,
// the connect channel nudge.
func (e *Engine) MessagePosted(ctx context.Context, user models.User, ch models.Channel) {
	if err := e.officeHours(ctx, user, ch); err != nil {
		e.logger.Warn("office hours trigger failed", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	if user.Extra.Metrics.MessagesPosted != 1 {
		return
	}
	err := e.deferrer.Defer(ctx, shortDelay, worker.Job{
		Kind:    worker.JobEvent,
		UserID:  user.ID,
		Channel: ch,
		Event:   channel.EventConnectChannel,
		Payload: connectChannels,
	})
	if err != nil {
		e.logger.Warn("connect channel trigger failed", slog.String("user_id", user.ID), slog.Any("error", err))
	}
}

func (e *Engine) greet(ctx context.Context, user models.User, ch models.Channel) error {
	plugin, ok, err := e.plugin(ctx, user.AppID, models.PluginTypeGreetingsMessage, ch)
	if err != nil || !ok {
		return err
	}
	var cfg GreetingsConfig
	if err := decodeConfig(e.validate, plugin.Configuration, &cfg); err != nil {
		return err
	}
	agent, err := e.appAgent(ctx, user.AppID)
	if err != nil {
		return err
	}
	return e.deferrer.Defer(ctx, shortDelay, worker.Job{
		Kind:    worker.JobMessage,
		UserID:  user.ID,
		Channel: ch,
		Agent:   &agent,
		Text:    cfg.Message,
	})
}

// officeHours replies at most once per calendar day in the plugin's
// timezone when the user writes outside the configured window.
func (e *Engine) officeHours(ctx context.Context, user models.User, ch models.Channel) error {
	plugin, ok, err := e.plugin(ctx, user.AppID, models.PluginTypeOfficeHours, ch)
	if err != nil || !ok {
		return err
	}
	var cfg OfficeHoursConfig
	if err := decodeConfig(e.validate, plugin.Configuration, &cfg); err != nil {
		return err
	}
	loc, err := parseLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	unlock, err := e.locks.Lock(ctx, user.ID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := e.store.GetUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	now := e.now().In(loc)
	if last := current.Extra.Plugins.OfficeHours.LastCheck; last != 0 && sameDay(time.UnixMilli(last).In(loc), now) {
		return nil
	}
	window := cfg.TimeRange.For(now.Weekday())
	if window == nil {
		return nil
	}
	open, err := isOpen(*window, now)
	if err != nil {
		return err
	}
	if !open {
		agent, err := e.appAgent(ctx, user.AppID)
		if err != nil {
			return err
		}
		err = e.deferrer.Defer(ctx, officeHoursDelay, worker.Job{
			Kind:   worker.JobMessage,
			UserID: user.ID,
			Agent:  &agent,
			Text:   cfg.Reply,
		})
		if err != nil {
			return fmt.Errorf("schedule office hours reply: %w", err)
		}
	}
	checked := now.UnixMilli()
	if _, err := e.store.PatchUser(ctx, user.ID, models.UserPatch{OfficeHoursLastCheck: &checked}); err != nil {
		return fmt.Errorf("record office hours check: %w", err)
	}
	return nil
}

func (e *Engine) plugin(ctx context.Context, appID string, pluginType models.PluginType, ch models.Channel) (models.Plugin, bool, error) {
	plugin, err := e.store.GetPlugin(ctx, appID, pluginType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Plugin{}, false, nil
		}
		return models.Plugin{}, false, fmt.Errorf("load %s plugin: %w", pluginType, err)
	}
	if !plugin.AppliesTo(ch) {
		return models.Plugin{}, false, nil
	}
	return plugin, true, nil
}

func (e *Engine) appAgent(ctx context.Context, appID string) (models.Agent, error) {
	app, err := e.store.GetApp(ctx, appID)
	if err != nil {
		return models.Agent{}, fmt.Errorf("load app: %w", err)
	}
	return app.Agent(e.publicURL), nil
}

// Configure validates and stores a plugin for an app.
func (e *Engine) Configure(ctx context.Context, appID string, pluginType models.PluginType, channels []models.Channel, raw map[string]any) (models.Plugin, error) {
	cfg, err := NormalizeConfig(pluginType, raw)
	if err != nil {
		return models.Plugin{}, err
	}
	for _, ch := range channels {
		if !ch.UserFacing() {
			return models.Plugin{}, fmt.Errorf("%w: channel %q", ErrInvalidConfig, ch)
		}
	}
	plugin, err := e.store.UpsertPlugin(ctx, models.Plugin{
		AppID:         appID,
		Type:          pluginType,
		Channels:      channels,
		Configuration: cfg,
	})
	if err != nil {
		return models.Plugin{}, fmt.Errorf("save plugin: %w", err)
	}
	return plugin, nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// isOpen reports whether now falls inside the window; the end minute is
// inclusive.
func isOpen(window TimeRange, now time.Time) (bool, error) {
	start, err := time.Parse("15:04", window.Start)
	if err != nil {
		return false, fmt.Errorf("%w: start %q", ErrInvalidConfig, window.Start)
	}
	end, err := time.Parse("15:04", window.End)
	if err != nil {
		return false, fmt.Errorf("%w: end %q", ErrInvalidConfig, window.End)
	}
	y, m, d := now.Date()
	from := time.Date(y, m, d, start.Hour(), start.Minute(), 0, 0, now.Location())
	to := time.Date(y, m, d, end.Hour(), end.Minute(), 59, int(time.Second-1), now.Location())
	return !now.Before(from) && !now.After(to), nil
}
