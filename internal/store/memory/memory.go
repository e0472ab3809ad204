// Package memory is an in-process Store used by the development storage
// driver and by tests. It enforces the same uniqueness rules as postgres.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/store"
)

type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	apps         map[string]models.App
	integrations map[string]models.Integration
	plugins      map[string]models.Plugin
	users        map[string]models.User
	devices      map[string]models.Device
	messages     []models.ChatMessage
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		apps:         map[string]models.App{},
		integrations: map[string]models.Integration{},
		plugins:      map[string]models.Plugin{},
		users:        map[string]models.User{},
		devices:      map[string]models.Device{},
	}
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// --- apps ---

func (s *Store) GetApp(_ context.Context, id string) (models.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return models.App{}, store.ErrNotFound
	}
	return app, nil
}

func (s *Store) GetAppByToken(_ context.Context, token string) (models.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, app := range s.apps {
		if token != "" && app.Token == token {
			return app, nil
		}
	}
	return models.App{}, store.ErrNotFound
}

func (s *Store) CreateApp(_ context.Context, app models.App) (models.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.apps {
		if app.Token != "" && existing.Token == app.Token {
			return models.App{}, store.ErrConflict
		}
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	app.CreatedAt = s.now()
	s.apps[app.ID] = app
	return app, nil
}

// --- integrations ---

func (s *Store) GetIntegration(_ context.Context, appID string, channel models.Channel) (models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.integrations {
		if i.AppID == appID && i.Channel == channel {
			return cloneIntegration(i), nil
		}
	}
	return models.Integration{}, store.ErrNotFound
}

func (s *Store) FindIntegrationByExternalID(_ context.Context, channel models.Channel, externalID string) (models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(externalID) == "" {
		return models.Integration{}, store.ErrNotFound
	}
	for _, i := range s.integrations {
		if i.Channel == channel && i.ExternalID == externalID {
			return cloneIntegration(i), nil
		}
	}
	return models.Integration{}, store.ErrNotFound
}

func (s *Store) UpsertIntegration(_ context.Context, integration models.Integration) (models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing *models.Integration
	for id, i := range s.integrations {
		if i.AppID == integration.AppID && i.Channel == integration.Channel {
			cur := s.integrations[id]
			existing = &cur
			continue
		}
		if integration.ExternalID != "" && i.Channel == integration.Channel && i.ExternalID == integration.ExternalID {
			return models.Integration{}, store.ErrConflict
		}
	}
	now := s.now()
	if existing != nil {
		integration.ID = existing.ID
		integration.CreatedAt = existing.CreatedAt
	} else {
		integration.ID = uuid.NewString()
		integration.CreatedAt = now
	}
	integration.UpdatedAt = now
	integration = cloneIntegration(integration)
	s.integrations[integration.ID] = integration
	return cloneIntegration(integration), nil
}

// --- plugins ---

func (s *Store) GetPlugin(_ context.Context, appID string, pluginType models.PluginType) (models.Plugin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plugins {
		if p.AppID == appID && p.Type == pluginType {
			return clonePlugin(p), nil
		}
	}
	return models.Plugin{}, store.ErrNotFound
}

func (s *Store) UpsertPlugin(_ context.Context, plugin models.Plugin) (models.Plugin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	plugin.ID = ""
	for _, p := range s.plugins {
		if p.AppID == plugin.AppID && p.Type == plugin.Type {
			plugin.ID = p.ID
			plugin.CreatedAt = p.CreatedAt
		}
	}
	if plugin.ID == "" {
		plugin.ID = uuid.NewString()
		plugin.CreatedAt = now
	}
	plugin.UpdatedAt = now
	s.plugins[plugin.ID] = clonePlugin(plugin)
	return clonePlugin(plugin), nil
}

// --- users ---

func (s *Store) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByUID(_ context.Context, appID, uid string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.AppID == appID && u.UID == uid {
			return cloneUser(u), nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (s *Store) FindUserBySlackChannel(_ context.Context, slackChannelID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Extra.SlackChannel != nil && u.Extra.SlackChannel.ID == slackChannelID {
			return cloneUser(u), nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUserLocked(user)
}

func (s *Store) insertUserLocked(user models.User) (models.User, error) {
	for _, u := range s.users {
		if u.AppID == user.AppID && u.UID == user.UID {
			return models.User{}, store.ErrConflict
		}
	}
	now := s.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (s *Store) PatchUser(_ context.Context, id string, patch models.UserPatch) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	u = cloneUser(u)
	patch.Apply(&u)
	u.UpdatedAt = s.now()
	s.users[id] = u
	return cloneUser(u), nil
}

// --- devices ---

func (s *Store) GetDevice(_ context.Context, id string) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return models.Device{}, store.ErrNotFound
	}
	return d, nil
}

func (s *Store) GetDeviceByChannel(_ context.Context, userID string, channel models.Channel) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.UserID == userID && d.Channel == channel {
			return d, nil
		}
	}
	return models.Device{}, store.ErrNotFound
}

func (s *Store) FindDeviceByExternalID(_ context.Context, appID string, channel models.Channel, externalID string) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.AppID == appID && d.Channel == channel && externalID != "" && d.ExternalID() == externalID {
			return d, nil
		}
	}
	return models.Device{}, store.ErrNotFound
}

func (s *Store) ListDevices(_ context.Context, userID string) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.Device, 0)
	for _, d := range s.devices {
		if d.UserID == userID {
			items = append(items, d)
		}
	}
	slices.SortFunc(items, func(a, b models.Device) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return items, nil
}

func (s *Store) UpsertDevice(_ context.Context, device models.Device) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[device.UserID]; !ok {
		return models.Device{}, store.ErrNotFound
	}
	var existing *models.Device
	for _, d := range s.devices {
		if d.UserID == device.UserID && d.Channel == device.Channel {
			cur := d
			existing = &cur
			continue
		}
		if d.UserID == device.UserID && d.UID == device.UID {
			return models.Device{}, store.ErrConflict
		}
		if s.externalTakenLocked(d, device) {
			return models.Device{}, store.ErrConflict
		}
	}
	now := s.now()
	if existing != nil {
		device.ID = existing.ID
		device.CreatedAt = existing.CreatedAt
	} else {
		device.ID = uuid.NewString()
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	s.devices[device.ID] = device
	return device, nil
}

func (s *Store) CreateUserWithDevice(_ context.Context, user models.User, device models.Device) (models.User, models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if s.externalTakenLocked(d, device) {
			return models.User{}, models.Device{}, store.ErrConflict
		}
	}
	created, err := s.insertUserLocked(user)
	if err != nil {
		return models.User{}, models.Device{}, err
	}
	now := s.now()
	device.ID = uuid.NewString()
	device.UserID = created.ID
	device.AppID = created.AppID
	device.CreatedAt = now
	device.UpdatedAt = now
	s.devices[device.ID] = device
	return created, device, nil
}

func (s *Store) externalTakenLocked(existing, candidate models.Device) bool {
	ext := candidate.ExternalID()
	return ext != "" && existing.AppID == candidate.AppID && existing.Channel == candidate.Channel && existing.ExternalID() == ext
}

// --- chat messages ---

func (s *Store) CreateChatMessage(_ context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = uuid.NewString()
	if msg.Date.IsZero() {
		msg.Date = s.now()
	}
	if msg.Agent != nil {
		agent := *msg.Agent
		msg.Agent = &agent
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *Store) GetChatMessage(_ context.Context, id string) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return models.ChatMessage{}, store.ErrNotFound
}

// ListChatMessages returns messages in insertion order, which is the
// persistence order for a user.
func (s *Store) ListChatMessages(_ context.Context, userID string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.ChatMessage, 0)
	for _, m := range s.messages {
		if m.UserID == userID {
			items = append(items, m)
		}
	}
	return items, nil
}

func (s *Store) DeleteChatMessagesBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	var deleted int64
	for _, m := range s.messages {
		if m.Date.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return deleted, nil
}

func cloneUser(u models.User) models.User {
	u.Properties = maps.Clone(u.Properties)
	if u.Extra.SlackChannel != nil {
		ch := *u.Extra.SlackChannel
		u.Extra.SlackChannel = &ch
	}
	if u.SignUpDate != nil {
		t := *u.SignUpDate
		u.SignUpDate = &t
	}
	return u
}

func cloneIntegration(i models.Integration) models.Integration {
	i.Configuration = maps.Clone(i.Configuration)
	return i
}

func clonePlugin(p models.Plugin) models.Plugin {
	p.Configuration = maps.Clone(p.Configuration)
	p.Channels = slices.Clone(p.Channels)
	return p
}
