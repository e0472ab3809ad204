package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayrohq/ayro/internal/auth"
	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/channel/adapters/messenger"
	"github.com/ayrohq/ayro/internal/config"
	"github.com/ayrohq/ayro/internal/dispatch"
	"github.com/ayrohq/ayro/internal/healthcheck"
	integrationchecker "github.com/ayrohq/ayro/internal/healthcheck/checkers/integration"
	"github.com/ayrohq/ayro/internal/identity"
	"github.com/ayrohq/ayro/internal/models"
	"github.com/ayrohq/ayro/internal/plugins"
	"github.com/ayrohq/ayro/internal/store/memory"
	"github.com/ayrohq/ayro/internal/worker"
)

const (
	testSecret   = "handler-secret"
	testAppToken = "app-token"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []channel.ChannelType
}

func (r *recordingSender) Send(_ context.Context, ct channel.ChannelType, _ channel.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, ct)
	return nil
}

func (r *recordingSender) channels() []channel.ChannelType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]channel.ChannelType(nil), r.sent...)
}

type nopDeferrer struct{}

func (nopDeferrer) Defer(context.Context, time.Duration, worker.Job) error { return nil }

type staticProfiles struct{}

func (staticProfiles) FetchProfile(context.Context, models.Integration, string) (messenger.Profile, error) {
	return messenger.Profile{FirstName: "Maria", LastName: "Silva"}, nil
}

type env struct {
	echo     *echo.Echo
	store    *memory.Store
	sender   *recordingSender
	app      models.App
	dispatch *dispatch.Service
	identity *identity.Service
}

func newEnv(t *testing.T) env {
	t.Helper()
	st := memory.New()
	app, err := st.CreateApp(context.Background(), models.App{Name: "Acme", Token: testAppToken})
	require.NoError(t, err)

	sender := &recordingSender{}
	dispatchService := dispatch.NewService(nil, st, sender)
	identityService := identity.NewService(nil, st, staticProfiles{})
	engine := plugins.NewEngine(nil, st, nopDeferrer{}, "https://ayro.example")

	e := echo.New()
	e.Use(auth.JWTMiddleware(testSecret, func(c echo.Context) bool {
		path := c.Request().URL.Path
		return path == "/auth/users" || strings.HasPrefix(path, "/apps/") || strings.HasPrefix(path, "/webhooks/")
	}))
	NewAuthHandler(nil, identityService, testSecret, time.Hour).Register(e)
	NewChatHandler(nil, dispatchService, st).Register(e)
	NewAppsHandler(nil, st, dispatchService, engine, integrationchecker.NewChecker(nil, st), "https://ayro.example").Register(e)
	return env{echo: e, store: st, sender: sender, app: app, dispatch: dispatchService, identity: identityService}
}

func (v env) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, val := range headers {
		req.Header.Set(k, val)
	}
	rec := httptest.NewRecorder()
	v.echo.ServeHTTP(rec, req)
	return rec
}

func (v env) login(t *testing.T, deviceUID string, ch models.Channel) LoginResponse {
	t.Helper()
	body := `{"user":{"uid":"customer-1","identified":true,"first_name":"Ana"},"device":{"uid":"` + deviceUID + `","channel":"` + ch.String() + `"}}`
	rec := v.do(t, http.MethodPost, "/auth/users", body, map[string]string{appTokenHeader: testAppToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func bearer(token string) map[string]string {
	return map[string]string{echo.HeaderAuthorization: "Bearer " + token}
}

func TestLogin(t *testing.T) {
	t.Parallel()
	v := newEnv(t)
	resp := v.login(t, "browser-1", models.ChannelWebsite)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, v.app.ID, resp.User.AppID)
	assert.Equal(t, models.ChannelWebsite, resp.Device.Channel)

	rec := v.do(t, http.MethodPost, "/auth/users", `{"user":{},"device":{"uid":"d","channel":"website"}}`, map[string]string{appTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = v.do(t, http.MethodPost, "/auth/users", `{"app_token":"app-token","user":{},"device":{"uid":"d","channel":"slack"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = v.do(t, http.MethodPost, "/auth/refresh", "", bearer(resp.AccessToken))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatFlow(t *testing.T) {
	t.Parallel()
	v := newEnv(t)
	session := v.login(t, "browser-1", models.ChannelWebsite)

	rec := v.do(t, http.MethodPost, "/chat/website", `{"text":"hello"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = v.do(t, http.MethodPost, "/chat/website", `{"text":"hello"}`, bearer(session.AccessToken))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var undelivered PostMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &undelivered))
	assert.False(t, undelivered.Delivered)
	assert.NotEmpty(t, undelivered.Message.ID)

	_, err := v.store.UpsertIntegration(context.Background(), models.Integration{
		AppID:      v.app.ID,
		Type:       models.IntegrationTypeBusiness,
		Channel:    models.ChannelSlack,
		ExternalID: "T1",
	})
	require.NoError(t, err)

	rec = v.do(t, http.MethodPost, "/chat/messages/"+undelivered.Message.ID+"/redeliver", "", bearer(session.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = v.do(t, http.MethodPost, "/chat/website", `{"text":"still there?"}`, bearer(session.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []channel.ChannelType{models.ChannelSlack, models.ChannelSlack}, v.sender.channels())

	rec = v.do(t, http.MethodPost, "/chat/android", `{"text":"hi"}`, bearer(session.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = v.do(t, http.MethodPost, "/chat/website", `{"text":"  "}`, bearer(session.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = v.do(t, http.MethodGet, "/chat", "", bearer(session.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []models.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	assert.Len(t, messages, 2)

	rec = v.do(t, http.MethodPost, "/chat/view", "", bearer(session.AccessToken))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	user, err := v.store.GetUser(context.Background(), session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.Extra.Metrics.ChatViews)
}

func TestAppsPush(t *testing.T) {
	t.Parallel()
	v := newEnv(t)
	session := v.login(t, "browser-1", models.ChannelWebsite)
	body := `{"user_id":"` + session.User.ID + `","text":"how can we help?"}`

	rec := v.do(t, http.MethodPost, "/apps/push", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = v.do(t, http.MethodPost, "/apps/push", body, map[string]string{appTokenHeader: testAppToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var msg models.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, models.DirectionOutgoing, msg.Direction)
	require.NotNil(t, msg.Agent)
	assert.Equal(t, "Acme", msg.Agent.Name)
	assert.Equal(t, []channel.ChannelType{models.ChannelWebsite}, v.sender.channels())

	rec = v.do(t, http.MethodPost, "/apps/push", `{"user_id":"nobody","text":"hi"}`, map[string]string{appTokenHeader: testAppToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = v.do(t, http.MethodPost, "/apps/push", `{"user_id":"`+session.User.ID+`","text":"hi","channel":"android"}`, map[string]string{appTokenHeader: testAppToken})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAppsConfigurePlugin(t *testing.T) {
	t.Parallel()
	v := newEnv(t)
	headers := map[string]string{appTokenHeader: testAppToken}

	rec := v.do(t, http.MethodPut, "/apps/plugins/greetings_message", `{"channels":["website"],"configuration":{"message":"Welcome!"}}`, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plugin, err := v.store.GetPlugin(context.Background(), v.app.ID, models.PluginTypeGreetingsMessage)
	require.NoError(t, err)
	assert.Equal(t, []models.Channel{models.ChannelWebsite}, plugin.Channels)

	rec = v.do(t, http.MethodPut, "/apps/plugins/greetings_message", `{"configuration":{}}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = v.do(t, http.MethodPut, "/apps/plugins/greetings_message", `{"channels":["slack"],"configuration":{"message":"hi"}}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = v.do(t, http.MethodPut, "/apps/plugins/unknown", `{"configuration":{}}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAppsChecks(t *testing.T) {
	t.Parallel()
	v := newEnv(t)
	rec := v.do(t, http.MethodGet, "/apps/checks", "", map[string]string{appTokenHeader: testAppToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChecksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthcheck.StatusError, resp.Status)
	assert.Len(t, resp.Checks, len(models.AllChannels))
}

func TestMessengerWebhook(t *testing.T) {
	t.Parallel()
	v := newEnv(t)
	registry := channel.NewRegistry()
	registry.MustRegister(messenger.NewAdapter(nil, "http://127.0.0.1:0", time.Second))
	cfg := config.MessengerConfig{VerifyToken: "verify-me", AppSecret: "app-secret"}
	NewMessengerHandler(nil, cfg, registry, v.identity, v.dispatch).Register(v.echo)

	rec := v.do(t, http.MethodGet, "/webhooks/messenger?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())
	rec = v.do(t, http.MethodGet, "/webhooks/messenger?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err := v.store.UpsertIntegration(context.Background(), models.Integration{
		AppID:      v.app.ID,
		Type:       models.IntegrationTypeUser,
		Channel:    models.ChannelMessenger,
		ExternalID: "PAGE1",
	})
	require.NoError(t, err)

	payload := `{"object":"page","entry":[{"id":"PAGE1","messaging":[` +
		`{"sender":{"id":"PSID1"},"recipient":{"id":"PAGE1"},"timestamp":1717400000000,"message":{"mid":"m1","text":"oi"}},` +
		`{"sender":{"id":"PSID2"},"recipient":{"id":"PAGE404"},"message":{"mid":"m2","text":"lost"}}]}]}`
	rec = v.do(t, http.MethodPost, "/webhooks/messenger", payload, map[string]string{"X-Hub-Signature-256": "sha256=00"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = v.do(t, http.MethodPost, "/webhooks/messenger", payload, map[string]string{"X-Hub-Signature-256": "sha256=" + hexMAC("app-secret", payload)})
	require.Equal(t, http.StatusOK, rec.Code)

	device, err := v.store.FindDeviceByExternalID(context.Background(), v.app.ID, models.ChannelMessenger, "PSID1")
	require.NoError(t, err)
	messages, err := v.store.ListChatMessages(context.Background(), device.UserID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "oi", messages[0].Text)

	rec = v.do(t, http.MethodPost, "/webhooks/messenger", `not json`, map[string]string{"X-Hub-Signature-256": "sha256=" + hexMAC("app-secret", "not json")})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPing(t *testing.T) {
	t.Parallel()
	registry := channel.NewRegistry()
	registry.MustRegister(messenger.NewAdapter(nil, "http://127.0.0.1:0", time.Second))
	e := echo.New()
	NewPingHandler(nil, registry).Register(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status   string   `json:"status"`
		Channels []string `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, []string{"messenger"}, body.Channels)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func hexMAC(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
