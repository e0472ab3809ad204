// Package identity maps external identifiers (Messenger senders, Slack
// channels, app token plus device uid) to canonical users and devices,
// creating them on first contact.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ayrohq/ayro/internal/channel/adapters/messenger"
	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/store"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrAppNotFound         = errors.New("app not found")
	ErrValidation          = errors.New("validation failed")
)

// ProfileFetcher loads a Messenger sender's public profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, integration models.Integration, senderID string) (messenger.Profile, error)
}

// Store is the persistence the resolver needs.
type Store interface {
	store.AppStore
	store.IntegrationStore
	store.UserStore
	store.DeviceStore
}

// Service resolves identities. Concurrent first-contact resolutions for
// the same key share one in-flight creation; the store's uniqueness rules
// cover the rest.
type Service struct {
	store    Store
	profiles ProfileFetcher
	group    singleflight.Group
	validate *validator.Validate
	names    func() (string, string)
	logger   *slog.Logger
}

func NewService(log *slog.Logger, st Store, profiles ProfileFetcher) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    st,
		profiles: profiles,
		validate: validator.New(),
		names:    randomName,
		logger:   log.With(slog.String("service", "identity")),
	}
}

// ResolveMessengerUser returns the user and device behind a Messenger
// sender on a page, creating both on first contact. Pages without an
// integration yield ErrIntegrationNotFound and the event is dropped.
func (s *Service) ResolveMessengerUser(ctx context.Context, pageID, senderID string) (models.User, models.Device, error) {
	pageID = strings.TrimSpace(pageID)
	senderID = strings.TrimSpace(senderID)
	if pageID == "" || senderID == "" {
		return models.User{}, models.Device{}, fmt.Errorf("%w: page and sender ids are required", ErrValidation)
	}
	integration, err := s.store.FindIntegrationByExternalID(ctx, models.ChannelMessenger, pageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, models.Device{}, ErrIntegrationNotFound
		}
		return models.User{}, models.Device{}, fmt.Errorf("find messenger integration: %w", err)
	}

	key := integration.AppID + "/" + senderID
	v, err, _ := s.group.Do(key, func() (any, error) {
		user, device, err := s.findOrCreateMessengerUser(ctx, integration, senderID)
		if err != nil {
			return nil, err
		}
		return resolved{user: user, device: device}, nil
	})
	if err != nil {
		return models.User{}, models.Device{}, err
	}
	r := v.(resolved)
	return r.user, r.device, nil
}

type resolved struct {
	user   models.User
	device models.Device
}

func (s *Service) findOrCreateMessengerUser(ctx context.Context, integration models.Integration, senderID string) (models.User, models.Device, error) {
	user, device, err := s.findMessengerDevice(ctx, integration.AppID, senderID)
	if err == nil {
		return user, device, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.User{}, models.Device{}, err
	}

	var profile messenger.Profile
	if s.profiles != nil {
		profile, err = s.profiles.FetchProfile(ctx, integration, senderID)
		if err != nil {
			s.logger.Warn("messenger profile fetch failed", slog.String("sender_id", senderID), slog.Any("error", err))
			profile = messenger.Profile{}
		}
	}

	newUser := models.User{
		AppID:     integration.AppID,
		UID:       uuid.NewString(),
		FirstName: strings.TrimSpace(profile.FirstName),
		LastName:  strings.TrimSpace(profile.LastName),
		PhotoURL:  profile.ProfilePic,
	}
	s.ensureName(&newUser)
	newDevice := models.Device{
		AppID:    integration.AppID,
		UID:      uuid.NewString(),
		Platform: models.PlatformMessenger,
		Channel:  models.ChannelMessenger,
		Info: models.DeviceInfo{
			ProfileID:       senderID,
			ProfileName:     newUser.FullName(),
			ProfilePicture:  profile.ProfilePic,
			ProfileGender:   strings.ToLower(profile.Gender),
			ProfileLocale:   profile.Locale,
			ProfileTimezone: profile.Timezone,
		},
	}

	user, device, err = s.store.CreateUserWithDevice(ctx, newUser, newDevice)
	if errors.Is(err, store.ErrConflict) {
		// Another process created the device first.
		return s.findMessengerDevice(ctx, integration.AppID, senderID)
	}
	if err != nil {
		return models.User{}, models.Device{}, fmt.Errorf("create messenger user: %w", err)
	}
	s.logger.Info("messenger user created", slog.String("user_id", user.ID), slog.String("app_id", user.AppID))
	return user, device, nil
}

func (s *Service) findMessengerDevice(ctx context.Context, appID, senderID string) (models.User, models.Device, error) {
	device, err := s.store.FindDeviceByExternalID(ctx, appID, models.ChannelMessenger, senderID)
	if err != nil {
		return models.User{}, models.Device{}, err
	}
	user, err := s.store.GetUser(ctx, device.UserID)
	if err != nil {
		return models.User{}, models.Device{}, fmt.Errorf("load messenger user: %w", err)
	}
	return user, device, nil
}

// ResolveSlackUser returns the user bound to a Slack channel.
func (s *Service) ResolveSlackUser(ctx context.Context, channelID string) (models.User, error) {
	user, err := s.store.FindUserBySlackChannel(ctx, strings.TrimSpace(channelID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("find user by slack channel: %w", err)
	}
	return user, nil
}

// ResolveSlackIntegration returns the integration installed in a workspace.
func (s *Service) ResolveSlackIntegration(ctx context.Context, teamID string) (models.Integration, error) {
	integration, err := s.store.FindIntegrationByExternalID(ctx, models.ChannelSlack, strings.TrimSpace(teamID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Integration{}, ErrIntegrationNotFound
		}
		return models.Integration{}, fmt.Errorf("find slack integration: %w", err)
	}
	return integration, nil
}

func (s *Service) ensureName(u *models.User) {
	if u.FirstName == "" && u.LastName == "" {
		u.FirstName, u.LastName = s.names()
		u.RandomName = true
	}
}
