// Package commands handles the Slack slash commands agents use inside a
// user's channel.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ayrohq/ayro/internal/identity"
	"github.com/ayrohq/ayro/internal/models"
)

const (
	CommandSend    = "/send"
	CommandProfile = "/profile"
	CommandHelp    = "/help"
)

// Command is a parsed slash command invocation.
type Command struct {
	TeamID    string
	ChannelID string
	UserID    string
	Command   string
	Text      string
}

type Resolver interface {
	ResolveSlackIntegration(ctx context.Context, teamID string) (models.Integration, error)
	ResolveSlackUser(ctx context.Context, channelID string) (models.User, error)
}

// Business is the Slack surface the commands answer through.
type Business interface {
	PostProfile(ctx context.Context, integration models.Integration, user models.User) error
	PostHelp(ctx context.Context, integration models.Integration, channelID, slackUserID string) error
	PostUserNotFound(ctx context.Context, integration models.Integration, channelID, slackUserID string) error
	PostMessageError(ctx context.Context, integration models.Integration, channelID, slackUserID string) error
	PostProfileError(ctx context.Context, integration models.Integration, channelID, slackUserID string) error
	GetAgent(ctx context.Context, integration models.Integration, slackUserID string) (models.Agent, error)
	ConfirmMessage(ctx context.Context, integration models.Integration, channelID string, user models.User, msg models.ChatMessage) error
}

type Pusher interface {
	PushMessage(ctx context.Context, agent models.Agent, user models.User, text string, ch models.Channel) (models.ChatMessage, error)
}

type handlerFunc func(ctx context.Context, integration models.Integration, cmd Command) error

type Service struct {
	resolver Resolver
	business Business
	pusher   Pusher
	handlers map[string]handlerFunc
	logger   *slog.Logger
}

func NewService(log *slog.Logger, resolver Resolver, business Business, pusher Pusher) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		resolver: resolver,
		business: business,
		pusher:   pusher,
		logger:   log.With(slog.String("service", "commands")),
	}
	s.handlers = map[string]handlerFunc{
		CommandSend:    s.send,
		CommandProfile: s.profile,
		CommandHelp:    s.help,
	}
	return s
}

// Handle runs cmd. Problems the agent can act on are answered with an
// ephemeral message; the returned error covers the rest.
func (s *Service) Handle(ctx context.Context, cmd Command) error {
	integration, err := s.resolver.ResolveSlackIntegration(ctx, cmd.TeamID)
	if err != nil {
		return fmt.Errorf("resolve workspace %s: %w", cmd.TeamID, err)
	}
	handler, ok := s.handlers[strings.ToLower(strings.TrimSpace(cmd.Command))]
	if !ok {
		handler = s.help
	}
	return handler(ctx, integration, cmd)
}

func (s *Service) send(ctx context.Context, integration models.Integration, cmd Command) error {
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return s.help(ctx, integration, cmd)
	}
	user, ok, err := s.channelUser(ctx, integration, cmd)
	if err != nil || !ok {
		return err
	}
	agent, err := s.business.GetAgent(ctx, integration, cmd.UserID)
	if err != nil {
		s.logger.Warn("agent lookup failed", slog.String("slack_user_id", cmd.UserID), slog.Any("error", err))
		return s.business.PostMessageError(ctx, integration, cmd.ChannelID, cmd.UserID)
	}
	msg, err := s.pusher.PushMessage(ctx, agent, user, text, "")
	if err != nil {
		s.logger.Warn("agent message failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return s.business.PostMessageError(ctx, integration, cmd.ChannelID, cmd.UserID)
	}
	return s.business.ConfirmMessage(ctx, integration, cmd.ChannelID, user, msg)
}

func (s *Service) profile(ctx context.Context, integration models.Integration, cmd Command) error {
	user, ok, err := s.channelUser(ctx, integration, cmd)
	if err != nil || !ok {
		return err
	}
	if err := s.business.PostProfile(ctx, integration, user); err != nil {
		s.logger.Warn("profile post failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return s.business.PostProfileError(ctx, integration, cmd.ChannelID, cmd.UserID)
	}
	return nil
}

func (s *Service) help(ctx context.Context, integration models.Integration, cmd Command) error {
	return s.business.PostHelp(ctx, integration, cmd.ChannelID, cmd.UserID)
}

// channelUser resolves the user bound to the command's channel, answering
// the agent when the channel belongs to nobody.
func (s *Service) channelUser(ctx context.Context, integration models.Integration, cmd Command) (models.User, bool, error) {
	user, err := s.resolver.ResolveSlackUser(ctx, cmd.ChannelID)
	if errors.Is(err, identity.ErrUserNotFound) || (err == nil && user.AppID != integration.AppID) {
		return models.User{}, false, s.business.PostUserNotFound(ctx, integration, cmd.ChannelID, cmd.UserID)
	}
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}
