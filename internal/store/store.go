// Package store defines the persistence contract of the routing core.
// Implementations must enforce the uniqueness invariants themselves
// (App+uid, User+uid, User+channel, App+channel, Channel+external id)
// and report violations as ErrConflict.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ayrohq/ayro/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would break a uniqueness invariant.
	ErrConflict = errors.New("conflict")
)

type AppStore interface {
	GetApp(ctx context.Context, id string) (models.App, error)
	GetAppByToken(ctx context.Context, token string) (models.App, error)
	CreateApp(ctx context.Context, app models.App) (models.App, error)
}

type IntegrationStore interface {
	GetIntegration(ctx context.Context, appID string, channel models.Channel) (models.Integration, error)
	// FindIntegrationByExternalID looks up the integration bound to a remote
	// workspace or page.
	FindIntegrationByExternalID(ctx context.Context, channel models.Channel, externalID string) (models.Integration, error)
	// UpsertIntegration inserts or replaces the integration for (AppID, Channel).
	UpsertIntegration(ctx context.Context, integration models.Integration) (models.Integration, error)
}

type PluginStore interface {
	GetPlugin(ctx context.Context, appID string, pluginType models.PluginType) (models.Plugin, error)
	UpsertPlugin(ctx context.Context, plugin models.Plugin) (models.Plugin, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByUID(ctx context.Context, appID, uid string) (models.User, error)
	FindUserBySlackChannel(ctx context.Context, slackChannelID string) (models.User, error)
	// CreateUser fails with ErrConflict when (AppID, UID) is taken.
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	// PatchUser applies patch atomically and returns the new snapshot.
	PatchUser(ctx context.Context, id string, patch models.UserPatch) (models.User, error)
}

type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (models.Device, error)
	GetDeviceByChannel(ctx context.Context, userID string, channel models.Channel) (models.Device, error)
	FindDeviceByExternalID(ctx context.Context, appID string, channel models.Channel, externalID string) (models.Device, error)
	ListDevices(ctx context.Context, userID string) ([]models.Device, error)
	// UpsertDevice inserts or updates the device for (UserID, Channel).
	UpsertDevice(ctx context.Context, device models.Device) (models.Device, error)
	// CreateUserWithDevice creates both records in one unit. It fails with
	// ErrConflict, writing nothing, when the device's external id is
	// already bound within the app.
	CreateUserWithDevice(ctx context.Context, user models.User, device models.Device) (models.User, models.Device, error)
}

type ChatStore interface {
	CreateChatMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	GetChatMessage(ctx context.Context, id string) (models.ChatMessage, error)
	// ListChatMessages returns the user's messages oldest first.
	ListChatMessages(ctx context.Context, userID string) ([]models.ChatMessage, error)
	DeleteChatMessagesBefore(ctx context.Context, before time.Time) (int64, error)
}

// Store is the full persistence collaborator.
type Store interface {
	AppStore
	IntegrationStore
	PluginStore
	UserStore
	DeviceStore
	ChatStore
}
