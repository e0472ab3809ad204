package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/store"
)

// UserInput is what a client SDK knows about its user. Identified users
// must carry their own uid; anonymous ones get a generated uid.
type UserInput struct {
	UID        string         `json:"uid" validate:"required_if=Identified true,max=255"`
	Identified bool           `json:"identified"`
	FirstName  string         `json:"first_name" validate:"max=255"`
	LastName   string         `json:"last_name" validate:"max=255"`
	Email      string         `json:"email" validate:"omitempty,email"`
	PhotoURL   string         `json:"photo_url" validate:"omitempty,url"`
	Properties map[string]any `json:"properties"`
	SignUpDate *time.Time     `json:"sign_up_date"`
}

// DeviceInput describes the device the SDK runs on.
type DeviceInput struct {
	UID       string            `json:"uid" validate:"required,max=255"`
	Channel   models.Channel    `json:"channel" validate:"required"`
	PushToken string            `json:"push_token"`
	Info      models.DeviceInfo `json:"info"`
}

// LoginUser upserts the user on (app, uid) and its device on (user,
// channel) for the app owning appToken.
func (s *Service) LoginUser(ctx context.Context, appToken string, in UserInput, dev DeviceInput) (models.User, models.Device, error) {
	app, err := s.store.GetAppByToken(ctx, strings.TrimSpace(appToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, models.Device{}, ErrAppNotFound
		}
		return models.User{}, models.Device{}, fmt.Errorf("load app: %w", err)
	}
	in.UID = strings.TrimSpace(in.UID)
	dev.UID = strings.TrimSpace(dev.UID)
	if err := s.validate.Struct(in); err != nil {
		return models.User{}, models.Device{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.validate.Struct(dev); err != nil {
		return models.User{}, models.Device{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	ch, err := models.ParseChannel(string(dev.Channel))
	if err != nil || !ch.UserFacing() {
		return models.User{}, models.Device{}, fmt.Errorf("%w: channel %q cannot log users in", ErrValidation, dev.Channel)
	}
	if !in.Identified && in.UID == "" {
		in.UID = uuid.NewString()
	}

	user, err := s.upsertUser(ctx, app.ID, in)
	if err != nil {
		return models.User{}, models.Device{}, err
	}

	device := models.Device{
		AppID:     app.ID,
		UserID:    user.ID,
		UID:       dev.UID,
		Platform:  ch.Platform(),
		Channel:   ch,
		PushToken: strings.TrimSpace(dev.PushToken),
		Info:      dev.Info,
	}
	if device.Platform == models.PlatformBrowser && device.Info.UserAgent != "" {
		fillBrowserInfo(&device.Info)
	}
	device, err = s.store.UpsertDevice(ctx, device)
	if err != nil {
		return models.User{}, models.Device{}, fmt.Errorf("upsert device: %w", err)
	}
	if user.LatestChannel != ch {
		user, err = s.store.PatchUser(ctx, user.ID, models.UserPatch{LatestChannel: &ch})
		if err != nil {
			return models.User{}, models.Device{}, fmt.Errorf("update latest channel: %w", err)
		}
	}
	return user, device, nil
}

func (s *Service) upsertUser(ctx context.Context, appID string, in UserInput) (models.User, error) {
	existing, err := s.store.GetUserByUID(ctx, appID, in.UID)
	if err == nil {
		return s.patchUser(ctx, existing.ID, in)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}

	user := models.User{
		AppID:      appID,
		UID:        in.UID,
		Identified: in.Identified,
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Email:      strings.TrimSpace(in.Email),
		PhotoURL:   strings.TrimSpace(in.PhotoURL),
		Properties: in.Properties,
		SignUpDate: in.SignUpDate,
	}
	s.ensureName(&user)
	created, err := s.store.CreateUser(ctx, user)
	if errors.Is(err, store.ErrConflict) {
		existing, err := s.store.GetUserByUID(ctx, appID, in.UID)
		if err != nil {
			return models.User{}, fmt.Errorf("reload user after conflict: %w", err)
		}
		return s.patchUser(ctx, existing.ID, in)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", slog.String("user_id", created.ID), slog.String("app_id", appID), slog.Bool("random_name", created.RandomName))
	return created, nil
}

// patchUser applies only the fields the client supplied.
func (s *Service) patchUser(ctx context.Context, userID string, in UserInput) (models.User, error) {
	var patch models.UserPatch
	if v := strings.TrimSpace(in.FirstName); v != "" {
		patch.FirstName = &v
	}
	if v := strings.TrimSpace(in.LastName); v != "" {
		patch.LastName = &v
	}
	if v := strings.TrimSpace(in.Email); v != "" {
		patch.Email = &v
	}
	if v := strings.TrimSpace(in.PhotoURL); v != "" {
		patch.PhotoURL = &v
	}
	patch.Properties = in.Properties
	patch.SignUpDate = in.SignUpDate
	user, err := s.store.PatchUser(ctx, userID, patch)
	if err != nil {
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func fillBrowserInfo(info *models.DeviceInfo) {
	ua := useragent.New(info.UserAgent)
	name, version := ua.Browser()
	if info.BrowserName == "" {
		info.BrowserName = strings.ToLower(name)
	}
	if info.BrowserVersion == "" {
		info.BrowserVersion = version
	}
	if info.OperatingSystem == "" {
		info.OperatingSystem = ua.OS()
	}
}
