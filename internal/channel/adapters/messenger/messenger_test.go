package messenger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/models"
)

func pageIntegration(token string) models.Integration {
	return models.Integration{
		Channel:       models.ChannelMessenger,
		Configuration: map[string]any{"page": map[string]any{"id": "P1", "access_token": token}},
	}
}

func TestReceive(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil, "http://graph.invalid", time.Second)

	raw := []byte(`{"object":"page","entry":[{"id":"P1","messaging":[
		{"sender":{"id":"S1"},"recipient":{"id":"P1"},"timestamp":1700000000000,"message":{"mid":"m1","text":"hello"}},
		{"sender":{"id":"S1"},"recipient":{"id":"P1"},"message":{"mid":"m2","attachments":[{"type":"image"}]}},
		{"sender":{"id":"P1"},"recipient":{"id":"S1"},"message":{"mid":"m3","text":"echo","is_echo":true}},
		{"sender":{"id":"S2"},"recipient":{"id":"P1"},"delivery":{"mids":["m1"]}}
	]}]}`)

	msgs, err := a.Receive(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.ChannelMessenger, msgs[0].Channel)
	assert.Equal(t, "hello", msgs[0].Message.Text)
	assert.Equal(t, "S1", msgs[0].Sender.SubjectID)
	assert.Equal(t, "P1", msgs[0].Recipient)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), msgs[0].ReceivedAt)

	_, err = a.Receive(context.Background(), []byte("{"))
	assert.Error(t, err)
}

func TestFetchProfile(t *testing.T) {
	t.Parallel()

	var gotPath, gotFields, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFields = r.URL.Query().Get("fields")
		gotToken = r.URL.Query().Get("access_token")
		_, _ = w.Write([]byte(`{"first_name":"Ana","last_name":"Souza","profile_pic":"https://pic","gender":"female","locale":"pt_BR","timezone":-3}`))
	}))
	defer srv.Close()

	a := NewAdapter(nil, srv.URL+"/v19.0", time.Second)
	profile, err := a.FetchProfile(context.Background(), pageIntegration("page-token"), "S1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPath, "/v19.0/"), gotPath)
	assert.True(t, strings.HasSuffix(gotPath, "/S1"), gotPath)
	assert.Equal(t, profileFields, gotFields)
	assert.Equal(t, "page-token", gotToken)
	assert.Equal(t, "Ana", profile.FirstName)
	require.NotNil(t, profile.Timezone)
	assert.Equal(t, -3, *profile.Timezone)

	_, err = a.FetchProfile(context.Background(), pageIntegration(""), "S1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSend_ChunksLongText(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		var recipient, message map[string]string
		assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("recipient")), &recipient))
		assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("message")), &message))
		mu.Lock()
		texts = append(texts, message["text"])
		mu.Unlock()
		assert.Equal(t, "S1", recipient["id"])
		assert.Equal(t, "RESPONSE", r.PostForm.Get("messaging_type"))
		assert.Equal(t, "tok", r.Form.Get("access_token"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/me/messages"), r.URL.Path)
		_, _ = w.Write([]byte(`{"recipient_id":"S1","message_id":"mid"}`))
	}))
	defer srv.Close()

	a := NewAdapter(nil, srv.URL, time.Second)
	device := &models.Device{Channel: models.ChannelMessenger, Info: models.DeviceInfo{ProfileID: "S1"}}
	text := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1500)

	err := a.Send(context.Background(), channel.OutboundMessage{Integration: pageIntegration("tok"), Device: device, Message: channel.Message{Text: text}})
	require.NoError(t, err)
	require.Len(t, texts, 2)
	for _, chunk := range texts {
		assert.LessOrEqual(t, len([]rune(chunk)), messengerTextLimit)
	}
}

func TestSend_Failures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","code":190}}`))
	}))
	defer srv.Close()
	a := NewAdapter(nil, srv.URL, time.Second)
	device := &models.Device{Channel: models.ChannelMessenger, Info: models.DeviceInfo{ProfileID: "S1"}}

	err := a.Send(context.Background(), channel.OutboundMessage{Integration: pageIntegration("tok"), Device: device, Message: channel.Message{Text: "hi"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, channel.ErrDeliveryFailed))
	assert.Contains(t, err.Error(), "Invalid OAuth access token.")

	err = a.Send(context.Background(), channel.OutboundMessage{Integration: pageIntegration(""), Device: device, Message: channel.Message{Text: "hi"}})
	assert.True(t, errors.Is(err, ErrNotConfigured))

	err = a.Send(context.Background(), channel.OutboundMessage{Integration: pageIntegration("tok"), Device: device, Message: channel.Message{Event: channel.EventConnectChannel, Payload: []string{"email"}}})
	assert.NoError(t, err, "payload-only events are skipped")
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"object":"page"}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifySignature("secret", body, header))
	assert.False(t, VerifySignature("other", body, header))
	assert.False(t, VerifySignature("secret", body, "sha1=abc"))
	assert.False(t, VerifySignature("secret", body, "sha256=zz"))
}

func TestConfig(t *testing.T) {
	t.Parallel()
	a := NewAdapter(nil, "", time.Second)

	_, err := a.NormalizeConfig(map[string]any{"page": map[string]any{"name": "x"}})
	assert.Error(t, err)

	cfg, err := a.NormalizeConfig(map[string]any{"page": map[string]any{"id": " P9 ", "access_token": "tok"}})
	require.NoError(t, err)
	assert.Equal(t, "P9", a.ExternalID(cfg))
	page := a.PresentConfig(cfg)["page"].(map[string]any)
	assert.NotContains(t, page, "access_token")
}
