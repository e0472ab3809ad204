// Package dispatch is the chat pipeline: it records user and agent
// messages, forwards user messages to the app's business channel and
// pushes agent messages to the user's active device.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/keylock"
	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/store"
)

var (
	ErrNoBusinessIntegration = errors.New("app has no business integration")
	ErrNoActiveDevice        = errors.New("user has no active device")
	ErrEmptyText             = errors.New("message text is empty")
	ErrMessageNotFound       = errors.New("chat message not found")
)

// Store is the persistence the pipeline needs.
type Store interface {
	store.IntegrationStore
	store.UserStore
	store.DeviceStore
	store.ChatStore
}

// Sender delivers through the adapter registered for a channel.
type Sender interface {
	Send(ctx context.Context, channelType channel.ChannelType, msg channel.OutboundMessage) error
}

// Triggers receives the qualifying events of the plugin engine. Calls are
// advisory: implementations log their own failures.
type Triggers interface {
	ChatViewed(ctx context.Context, user models.User, ch models.Channel)
	MessagePosted(ctx context.Context, user models.User, ch models.Channel)
}

type Service struct {
	store    Store
	sender   Sender
	locks    *keylock.Locker
	triggers Triggers
	logger   *slog.Logger
}

func NewService(log *slog.Logger, st Store, sender Sender) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  st,
		sender: sender,
		locks:  keylock.New(),
		logger: log.With(slog.String("service", "dispatch")),
	}
}

// SetTriggers attaches the plugin engine. The engine schedules pushes back
// through this service, so it is wired after construction.
func (s *Service) SetTriggers(t Triggers) {
	s.triggers = t
}

// PostMessage records text written by the user on ch and forwards it to
// the app's business integration. The returned message is valid whenever
// it has an ID, even if the error reports a failed delivery; callers can
// retry with Redeliver.
func (s *Service) PostMessage(ctx context.Context, user models.User, device models.Device, ch models.Channel, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, ErrEmptyText
	}
	if !ch.UserFacing() {
		return models.ChatMessage{}, fmt.Errorf("%w: %s", channel.ErrUnsupportedChannel, ch)
	}

	msg, snapshot, err := s.recordIncoming(ctx, user, ch, text)
	if err != nil {
		return models.ChatMessage{}, err
	}
	s.logger.Debug("message posted", slog.String("user_id", user.ID), slog.String("device_id", device.ID), slog.String("channel", ch.String()))

	deliveryErr := s.forward(ctx, snapshot, msg)
	if deliveryErr != nil {
		s.logger.Warn("business delivery failed", slog.String("user_id", user.ID), slog.String("message_id", msg.ID), slog.Any("error", deliveryErr))
	}
	if s.triggers != nil {
		s.triggers.MessagePosted(ctx, snapshot, ch)
	}
	return msg, deliveryErr
}

func (s *Service) recordIncoming(ctx context.Context, user models.User, ch models.Channel, text string) (models.ChatMessage, models.User, error) {
	unlock, err := s.locks.Lock(ctx, user.ID)
	if err != nil {
		return models.ChatMessage{}, models.User{}, err
	}
	defer unlock()

	msg, err := s.store.CreateChatMessage(ctx, models.ChatMessage{
		AppID:     user.AppID,
		UserID:    user.ID,
		Text:      text,
		Direction: models.DirectionIncoming,
		Channel:   ch,
	})
	if err != nil {
		return models.ChatMessage{}, models.User{}, fmt.Errorf("persist incoming message: %w", err)
	}
	snapshot, err := s.store.PatchUser(ctx, user.ID, models.UserPatch{
		LatestChannel:     &ch,
		IncMessagesPosted: true,
	})
	if err != nil {
		return models.ChatMessage{}, models.User{}, fmt.Errorf("update user after message: %w", err)
	}
	return msg, snapshot, nil
}

func (s *Service) forward(ctx context.Context, user models.User, msg models.ChatMessage) error {
	integration, err := s.store.GetIntegration(ctx, user.AppID, models.ChannelSlack)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoBusinessIntegration
		}
		return fmt.Errorf("load business integration: %w", err)
	}
	return s.sender.Send(ctx, models.ChannelSlack, channel.OutboundMessage{
		Integration: integration,
		User:        user,
		Message:     channel.Message{Text: msg.Text},
	})
}

// Redeliver forwards a stored incoming message again without recording a
// new one.
func (s *Service) Redeliver(ctx context.Context, user models.User, messageID string) (models.ChatMessage, error) {
	msg, err := s.store.GetChatMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.ChatMessage{}, ErrMessageNotFound
		}
		return models.ChatMessage{}, fmt.Errorf("load chat message: %w", err)
	}
	if msg.UserID != user.ID || msg.Direction != models.DirectionIncoming {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	current, err := s.store.GetUser(ctx, user.ID)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("load user: %w", err)
	}
	return msg, s.forward(ctx, current, msg)
}

// PushMessage records an agent message and pushes it to the user's device
// on ch, or on the latest channel the user wrote from when ch is empty.
// Push failures are logged and swallowed.
func (s *Service) PushMessage(ctx context.Context, agent models.Agent, user models.User, text string, ch models.Channel) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, ErrEmptyText
	}
	device, err := s.activeDevice(ctx, user, ch)
	if err != nil {
		return models.ChatMessage{}, err
	}

	msg, err := s.recordOutgoing(ctx, agent, user, device.Channel, text)
	if err != nil {
		return models.ChatMessage{}, err
	}
	s.push(ctx, user, device, channel.Message{
		Event:   channel.EventChatMessage,
		Text:    msg.Text,
		Agent:   msg.Agent,
		Payload: msg,
	})
	return msg, nil
}

func (s *Service) recordOutgoing(ctx context.Context, agent models.Agent, user models.User, ch models.Channel, text string) (models.ChatMessage, error) {
	unlock, err := s.locks.Lock(ctx, user.ID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	defer unlock()

	msg, err := s.store.CreateChatMessage(ctx, models.ChatMessage{
		AppID:     user.AppID,
		UserID:    user.ID,
		Agent:     &agent,
		Text:      text,
		Direction: models.DirectionOutgoing,
		Channel:   ch,
	})
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("persist outgoing message: %w", err)
	}
	return msg, nil
}

// PushEvent pushes a non-chat event, such as the connect channel nudge, to
// the user's active device. Nothing is recorded.
func (s *Service) PushEvent(ctx context.Context, user models.User, event string, payload any, ch models.Channel) error {
	device, err := s.activeDevice(ctx, user, ch)
	if err != nil {
		return err
	}
	s.push(ctx, user, device, channel.Message{Event: event, Payload: payload})
	return nil
}

// ChatViewed counts a chat view and evaluates the view triggers.
func (s *Service) ChatViewed(ctx context.Context, user models.User, ch models.Channel) (models.User, error) {
	snapshot, err := s.store.PatchUser(ctx, user.ID, models.UserPatch{IncChatViews: true})
	if err != nil {
		return models.User{}, fmt.Errorf("count chat view: %w", err)
	}
	if s.triggers != nil {
		s.triggers.ChatViewed(ctx, snapshot, ch)
	}
	return snapshot, nil
}

// ListMessages returns the user's conversation, oldest first.
func (s *Service) ListMessages(ctx context.Context, user models.User) ([]models.ChatMessage, error) {
	items, err := s.store.ListChatMessages(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return items, nil
}

func (s *Service) activeDevice(ctx context.Context, user models.User, ch models.Channel) (models.Device, error) {
	if ch == "" {
		current, err := s.store.GetUser(ctx, user.ID)
		if err != nil {
			return models.Device{}, fmt.Errorf("load user: %w", err)
		}
		ch = current.LatestChannel
	}
	if ch == "" {
		return models.Device{}, ErrNoActiveDevice
	}
	device, err := s.store.GetDeviceByChannel(ctx, user.ID, ch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Device{}, ErrNoActiveDevice
		}
		return models.Device{}, fmt.Errorf("load device: %w", err)
	}
	return device, nil
}

func (s *Service) push(ctx context.Context, user models.User, device models.Device, msg channel.Message) {
	log := s.logger.With(slog.String("user_id", user.ID), slog.String("channel", device.Channel.String()), slog.String("event", msg.EventName()))
	integration, err := s.store.GetIntegration(ctx, user.AppID, device.Channel)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("push skipped: load integration", slog.Any("error", err))
		return
	}
	err = s.sender.Send(ctx, device.Channel, channel.OutboundMessage{
		Integration: integration,
		User:        user,
		Device:      &device,
		Message:     msg,
	})
	if err != nil {
		log.Warn("push failed", slog.Any("error", err))
	}
}
