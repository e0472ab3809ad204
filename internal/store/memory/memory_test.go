package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/store"
)

func TestCreateUser_UniquePerAppAndUID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	_, err := s.CreateUser(ctx, models.User{AppID: "app-1", UID: "u-1"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, models.User{AppID: "app-1", UID: "u-1"})
	require.ErrorIs(t, err, store.ErrConflict)
	_, err = s.CreateUser(ctx, models.User{AppID: "app-2", UID: "u-1"})
	require.NoError(t, err)
}

func TestUpsertDevice_OnePerChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	u, err := s.CreateUser(ctx, models.User{AppID: "app-1", UID: "u-1"})
	require.NoError(t, err)

	first, err := s.UpsertDevice(ctx, models.Device{AppID: "app-1", UserID: u.ID, UID: "d-1", Channel: models.ChannelWebsite, Platform: models.PlatformBrowser})
	require.NoError(t, err)
	second, err := s.UpsertDevice(ctx, models.Device{AppID: "app-1", UserID: u.ID, UID: "d-1", Channel: models.ChannelWebsite, PushToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "tok", second.PushToken)

	_, err = s.UpsertDevice(ctx, models.Device{AppID: "app-1", UserID: u.ID, UID: "d-1", Channel: models.ChannelAndroid})
	require.ErrorIs(t, err, store.ErrConflict)

	devices, err := s.ListDevices(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestCreateUserWithDevice_ConcurrentFirstContact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	created, conflicts := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.CreateUserWithDevice(ctx,
				models.User{AppID: "app-1", UID: "uid-" + string(rune('a'+i))},
				models.Device{AppID: "app-1", UID: "psid-1", Channel: models.ChannelMessenger, Info: models.DeviceInfo{ProfileID: "psid-1"}},
			)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.users, 1, "conflicting attempts must not leave users behind")
	assert.Len(t, s.devices, 1)
}

func TestPatchUser_ReturnsSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	u, err := s.CreateUser(ctx, models.User{AppID: "app-1", UID: "u-1"})
	require.NoError(t, err)
	patched, err := s.PatchUser(ctx, u.ID, models.UserPatch{SlackChannel: &models.SlackChannel{ID: "C1", Name: "ch-x"}})
	require.NoError(t, err)
	require.NotNil(t, patched.Extra.SlackChannel)

	// Mutating the returned snapshot must not leak into the store.
	patched.Extra.SlackChannel.ID = "C2"
	found, err := s.FindUserBySlackChannel(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = s.PatchUser(ctx, "missing", models.UserPatch{})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertIntegration_ExternalIDUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	_, err := s.UpsertIntegration(ctx, models.Integration{AppID: "app-1", Channel: models.ChannelSlack, ExternalID: "T1"})
	require.NoError(t, err)
	_, err = s.UpsertIntegration(ctx, models.Integration{AppID: "app-2", Channel: models.ChannelSlack, ExternalID: "T1"})
	require.ErrorIs(t, err, store.ErrConflict)

	updated, err := s.UpsertIntegration(ctx, models.Integration{AppID: "app-1", Channel: models.ChannelSlack, ExternalID: "T1", Configuration: map[string]any{"k": "v"}})
	require.NoError(t, err)
	got, err := s.FindIntegrationByExternalID(ctx, models.ChannelSlack, "T1")
	require.NoError(t, err)
	assert.Equal(t, updated.ID, got.ID)
	assert.Equal(t, "v", got.Configuration["k"])
}

func TestDeleteChatMessagesBefore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := s.CreateChatMessage(ctx, models.ChatMessage{UserID: "u", Text: "old", Date: now.AddDate(0, 0, -91)})
	require.NoError(t, err)
	_, err = s.CreateChatMessage(ctx, models.ChatMessage{UserID: "u", Text: "new", Date: now})
	require.NoError(t, err)

	deleted, err := s.DeleteChatMessagesBefore(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	items, err := s.ListChatMessages(ctx, "u")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].Text)
}
