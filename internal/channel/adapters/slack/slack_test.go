package slack

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	slackgo "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/store/memory"
)

type postedMessage struct {
	channel string
	user    string
	values  url.Values
}

// fakeAPI keeps a tiny in-memory Slack workspace.
type fakeAPI struct {
	mu            sync.Mutex
	nextID        int
	taken         map[string]bool
	archived      map[string]bool
	deleted       map[string]bool
	createCalls   []string
	unarchived    []string
	posts         []postedMessage
	ephemerals    []postedMessage
	unarchiveErr  error
	postErr       func(channelID string) error
	auth          *slackgo.AuthTestResponse
	conversations []slackgo.Channel
	members       map[string]*slackgo.User
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		taken:    map[string]bool{},
		archived: map[string]bool{},
		deleted:  map[string]bool{},
		members:  map[string]*slackgo.User{},
	}
}

func (f *fakeAPI) AuthTestContext(context.Context) (*slackgo.AuthTestResponse, error) {
	if f.auth == nil {
		return nil, slackgo.SlackErrorResponse{Err: "invalid_auth"}
	}
	return f.auth, nil
}

func (f *fakeAPI) CreateConversationContext(_ context.Context, params slackgo.CreateConversationParams) (*slackgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, params.ChannelName)
	if f.taken[params.ChannelName] {
		return nil, slackgo.SlackErrorResponse{Err: errNameTaken}
	}
	f.taken[params.ChannelName] = true
	f.nextID++
	ch := &slackgo.Channel{}
	ch.ID = fmt.Sprintf("C%d", f.nextID)
	ch.Name = params.ChannelName
	return ch, nil
}

func (f *fakeAPI) GetConversationInfoContext(_ context.Context, input *slackgo.GetConversationInfoInput) (*slackgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted[input.ChannelID] {
		return nil, slackgo.SlackErrorResponse{Err: errChannelNotFound}
	}
	ch := &slackgo.Channel{}
	ch.ID = input.ChannelID
	ch.IsArchived = f.archived[input.ChannelID]
	return ch, nil
}

func (f *fakeAPI) UnArchiveConversationContext(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unarchived = append(f.unarchived, channelID)
	if f.unarchiveErr != nil {
		return f.unarchiveErr
	}
	f.archived[channelID] = false
	return nil
}

func (f *fakeAPI) GetConversationsContext(context.Context, *slackgo.GetConversationsParameters) ([]slackgo.Channel, string, error) {
	return f.conversations, "", nil
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, options ...slackgo.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		if err := f.postErr(channelID); err != nil {
			return "", "", err
		}
	}
	_, values, err := slackgo.UnsafeApplyMsgOptions("", channelID, "", options...)
	if err != nil {
		return "", "", err
	}
	f.posts = append(f.posts, postedMessage{channel: channelID, values: values})
	return channelID, "1.0", nil
}

func (f *fakeAPI) PostEphemeralContext(_ context.Context, channelID, userID string, options ...slackgo.MsgOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, values, err := slackgo.UnsafeApplyMsgOptions("", channelID, "", options...)
	if err != nil {
		return "", err
	}
	f.ephemerals = append(f.ephemerals, postedMessage{channel: channelID, user: userID, values: values})
	return "1.0", nil
}

func (f *fakeAPI) GetUserInfoContext(_ context.Context, user string) (*slackgo.User, error) {
	if m, ok := f.members[user]; ok {
		return m, nil
	}
	return nil, slackgo.SlackErrorResponse{Err: "user_not_found"}
}

func (f *fakeAPI) postsTo(channelID string) []postedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []postedMessage
	for _, p := range f.posts {
		if p.channel == channelID {
			out = append(out, p)
		}
	}
	return out
}

type fixture struct {
	adapter     *Adapter
	store       *memory.Store
	api         *fakeAPI
	integration models.Integration
	user        models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	app, err := st.CreateApp(ctx, models.App{Name: "Acme", Token: "app-token"})
	require.NoError(t, err)
	user, err := st.CreateUser(ctx, models.User{AppID: app.ID, UID: "u1", FirstName: "Ana", LastName: "Souza", PhotoURL: "https://cdn/ana.png"})
	require.NoError(t, err)
	_, err = st.UpsertDevice(ctx, models.Device{
		AppID: app.ID, UserID: user.ID, UID: "d1",
		Platform: models.PlatformBrowser, Channel: models.ChannelWebsite,
		Info: models.DeviceInfo{BrowserName: "chrome", BrowserVersion: "120", OperatingSystem: "Linux"},
	})
	require.NoError(t, err)

	api := newFakeAPI()
	a := NewAdapter(nil, st, Options{})
	a.newClient = func(string) API { return api }
	return &fixture{
		adapter: a,
		store:   st,
		api:     api,
		user:    user,
		integration: models.Integration{
			AppID:   app.ID,
			Type:    models.IntegrationTypeBusiness,
			Channel: models.ChannelSlack,
			Configuration: map[string]any{
				"team":    map[string]any{"id": "T1", "name": "Acme"},
				"user":    map[string]any{"id": "U0", "access_token": "xoxb-1"},
				"channel": map[string]any{"id": "CSUP", "name": "general"},
			},
		},
	}
}

func (f *fixture) send(t *testing.T, text string) error {
	t.Helper()
	return f.adapter.Send(context.Background(), channel.OutboundMessage{
		Integration: f.integration,
		User:        f.user,
		Message:     channel.Message{Text: text},
	})
}

func (f *fixture) bind(t *testing.T, id string) {
	t.Helper()
	_, err := f.store.PatchUser(context.Background(), f.user.ID, models.UserPatch{SlackChannel: &models.SlackChannel{ID: id, Name: "ch-ana-souza"}})
	require.NoError(t, err)
}

func (f *fixture) binding(t *testing.T) *models.SlackChannel {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	return u.Extra.SlackChannel
}

func TestSend_UnboundCreatesChannelAndIntroduces(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.NoError(t, f.send(t, "hello"))

	b := f.binding(t)
	require.NotNil(t, b)
	assert.Equal(t, "C1", b.ID)
	assert.Equal(t, "ch-ana-souza", b.Name)

	support := f.api.postsTo("CSUP")
	require.Len(t, support, 1)
	assert.Contains(t, support[0].values.Get("text"), "*Ana Souza* wants to talk")
	assert.Contains(t, support[0].values.Get("attachments"), "hello")

	inChannel := f.api.postsTo("C1")
	require.Len(t, inChannel, 3, "intro, profile, message")
	assert.Contains(t, inChannel[0].values.Get("text"), "exclusive channel")
	assert.Contains(t, inChannel[1].values.Get("attachments"), "App: Acme")
	assert.Contains(t, inChannel[1].values.Get("attachments"), "Browser: Chrome 120")
	last := inChannel[2].values
	assert.Equal(t, "hello", last.Get("text"))
	assert.Equal(t, "Ana Souza", last.Get("username"))
	assert.NotEqual(t, "true", last.Get("as_user"))
	assert.Equal(t, "https://cdn/ana.png", last.Get("icon_url"))
}

func TestSend_NameCollisionPicksLowestFreeSuffix(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.api.taken["ch-ana-souza"] = true
	f.api.taken["ch-ana-souza-1"] = true
	f.api.taken["ch-ana-souza-2"] = true

	require.NoError(t, f.send(t, "hi"))

	assert.Equal(t, []string{"ch-ana-souza", "ch-ana-souza-1", "ch-ana-souza-2", "ch-ana-souza-3"}, f.api.createCalls)
	assert.Equal(t, "ch-ana-souza-3", f.binding(t).Name)
}

func TestSend_ActiveChannelPostsOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bind(t, "C7")

	require.NoError(t, f.send(t, "again"))

	assert.Empty(t, f.api.createCalls)
	assert.Empty(t, f.api.unarchived)
	assert.Empty(t, f.api.postsTo("CSUP"))
	require.Len(t, f.api.postsTo("C7"), 1)
}

func TestSend_LongTextIsSplitByParagraph(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bind(t, "C7")
	first := strings.Repeat("a", textChunkLimit-10)
	second := strings.Repeat("b", 20)

	require.NoError(t, f.send(t, first+"\n\n"+second))

	posts := f.api.postsTo("C7")
	require.Len(t, posts, 2)
	assert.Equal(t, first, posts[0].values.Get("text"))
	assert.Equal(t, second, posts[1].values.Get("text"))
}

func TestSend_ArchivedUnarchivesAndReintroducesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bind(t, "C7")
	f.api.archived["C7"] = true

	require.NoError(t, f.send(t, "back"))

	assert.Equal(t, []string{"C7"}, f.api.unarchived)
	assert.Empty(t, f.api.createCalls)
	assert.Len(t, f.api.postsTo("CSUP"), 1)
	assert.Len(t, f.api.postsTo("C7"), 3)
	assert.Equal(t, "C7", f.binding(t).ID)

	require.NoError(t, f.send(t, "still here"))
	assert.Len(t, f.api.unarchived, 1)
}

func TestSend_NotArchivedRaceIsTreatedAsActive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bind(t, "C7")
	f.api.archived["C7"] = true
	f.api.unarchiveErr = slackgo.SlackErrorResponse{Err: errNotArchived}

	require.NoError(t, f.send(t, "hi"))

	assert.Empty(t, f.api.postsTo("CSUP"))
	assert.Len(t, f.api.postsTo("C7"), 1)
}

func TestSend_DeletedChannelIsRecreated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bind(t, "C9")
	f.api.deleted["C9"] = true

	require.NoError(t, f.send(t, "hi"))

	assert.Len(t, f.api.createCalls, 1)
	b := f.binding(t)
	require.NotNil(t, b)
	assert.Equal(t, "C1", b.ID)
}

func TestSend_IntroductionFailureKeepsBinding(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.api.postErr = func(channelID string) error {
		if channelID == "CSUP" {
			return slackgo.SlackErrorResponse{Err: "not_in_channel"}
		}
		return nil
	}

	err := f.send(t, "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, channel.ErrDeliveryFailed))
	require.NotNil(t, f.binding(t), "binding must survive a failed introduction")

	f.api.postErr = nil
	require.NoError(t, f.send(t, "second"))
	assert.Len(t, f.api.createCalls, 1)
	assert.Empty(t, f.api.postsTo("CSUP"), "introduction is not retried")
}

func TestSend_ConcurrentSendsCreateOneChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- f.send(t, fmt.Sprintf("msg %d", i))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, f.api.createCalls, 1)
}

func TestSend_MissingTokenIsDeliveryFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.integration.Configuration = map[string]any{"team": map[string]any{"id": "T1"}}

	err := f.send(t, "hi")
	assert.True(t, errors.Is(err, channel.ErrDeliveryFailed))
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestBusinessSurface(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.api.members["UAGENT"] = &slackgo.User{ID: "UAGENT", Profile: slackgo.UserProfile{RealName: "Bea Agent", Image192: "https://cdn/bea.png"}}

	agent, err := f.adapter.GetAgent(ctx, f.integration, "UAGENT")
	require.NoError(t, err)
	assert.Equal(t, models.Agent{ID: "UAGENT", Name: "Bea Agent", PhotoURL: "https://cdn/bea.png"}, agent)

	_, err = f.adapter.GetAgent(ctx, f.integration, "UNOPE")
	require.Error(t, err)

	msg := models.ChatMessage{Text: "how can I help?", Agent: &agent}
	require.NoError(t, f.adapter.ConfirmMessage(ctx, f.integration, "C7", f.user, msg))
	posted := f.api.postsTo("C7")
	require.Len(t, posted, 1)
	assert.Equal(t, "Bea Agent to Ana Souza", posted[0].values.Get("username"))
	assert.Equal(t, "https://cdn/bea.png", posted[0].values.Get("icon_url"))

	require.NoError(t, f.adapter.PostHelp(ctx, f.integration, "C7", "UAGENT"))
	require.NoError(t, f.adapter.PostUserNotFound(ctx, f.integration, "C8", "UAGENT"))
	require.Len(t, f.api.ephemerals, 2)
	assert.Equal(t, "UAGENT", f.api.ephemerals[0].user)
	assert.Contains(t, f.api.ephemerals[0].values.Get("attachments"), "/send")
	assert.Contains(t, f.api.ephemerals[1].values.Get("text"), "not bound to any user")

	require.NoError(t, f.adapter.PostProfile(ctx, f.integration, f.user), "unbound user is skipped")
	assert.Len(t, f.api.postsTo("C7"), 1)
}

func TestDiscoverSelf(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.api.auth = &slackgo.AuthTestResponse{TeamID: "T42", Team: "Acme", URL: "https://acme.slack.com/", UserID: "UBOT", User: "ayro"}
	general := slackgo.Channel{IsGeneral: true}
	general.ID = "CGEN"
	general.Name = "general"
	random := slackgo.Channel{}
	random.ID = "CRND"
	random.Name = "random"
	f.api.conversations = []slackgo.Channel{random, general}

	cfg, externalID, err := f.adapter.DiscoverSelf(context.Background(), map[string]any{"access_token": "xoxb-2"})
	require.NoError(t, err)
	assert.Equal(t, "T42", externalID)

	parsed, err := parseConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, ChannelRef{ID: "CGEN", Name: "general"}, parsed.Channel)
	assert.Equal(t, "xoxb-2", parsed.User.AccessToken)

	_, _, err = f.adapter.DiscoverSelf(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestConfigNormalization(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil, nil, Options{})

	_, err := a.NormalizeConfig(map[string]any{"user": map[string]any{"access_token": "x"}})
	assert.Error(t, err)

	raw := map[string]any{"team": map[string]any{"id": " T1 "}, "user": map[string]any{"access_token": "secret"}}
	cfg, err := a.NormalizeConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, "T1", a.ExternalID(cfg))

	presented := a.PresentConfig(cfg)
	user, _ := presented["user"].(map[string]any)
	_, hasToken := user["access_token"]
	assert.False(t, hasToken)
}
