// Package mobile implements the Android and iOS channels. Both deliver
// data messages through FCM with the app's server key.
package mobile

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/models"
)

const maskedPrefix = "*************"

// Pusher sends one FCM data message.
type Pusher interface {
	Send(ctx context.Context, serverKey, token, event string, message any) error
}

// Adapter implements channel.Adapter, channel.Sender, channel.ConfigNormalizer
// and channel.ConfigPresenter for one mobile platform.
type Adapter struct {
	channelType channel.ChannelType
	displayName string
	pusher      Pusher
	logger      *slog.Logger
}

func NewAndroidAdapter(log *slog.Logger, pusher Pusher) *Adapter {
	return newAdapter(log, models.ChannelAndroid, "Android", pusher)
}

func NewIOSAdapter(log *slog.Logger, pusher Pusher) *Adapter {
	return newAdapter(log, models.ChannelIOS, "iOS", pusher)
}

func newAdapter(log *slog.Logger, ct channel.ChannelType, displayName string, pusher Pusher) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		channelType: ct,
		displayName: displayName,
		pusher:      pusher,
		logger:      log.With(slog.String("adapter", string(ct))),
	}
}

func (a *Adapter) Type() channel.ChannelType {
	return a.channelType
}

func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:            a.channelType,
		DisplayName:     a.displayName,
		IntegrationType: models.IntegrationTypeUser,
		Capabilities: channel.ChannelCapabilities{
			Text: true,
			Push: true,
		},
	}
}

// NormalizeConfig keeps only the FCM section. The server key is optional:
// without it pushes are skipped.
func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	out := map[string]any{}
	fcm, ok := raw["fcm"]
	if !ok || fcm == nil {
		return out, nil
	}
	section, ok := fcm.(map[string]any)
	if !ok {
		return nil, errors.New("fcm must be an object")
	}
	key, _ := section["server_key"].(string)
	out["fcm"] = map[string]any{"server_key": strings.TrimSpace(key)}
	return out, nil
}

func (a *Adapter) ExternalID(map[string]any) string {
	return ""
}

// PresentConfig masks all but the last five characters of long server keys.
func (a *Adapter) PresentConfig(cfg map[string]any) map[string]any {
	key := serverKey(cfg)
	if key == "" {
		return cfg
	}
	return map[string]any{"fcm": map[string]any{"server_key": maskKey(key)}}
}

// Send pushes the message to the device token. Missing token or server key
// make it a no-op.
func (a *Adapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	if msg.Device == nil || a.pusher == nil {
		return nil
	}
	key := serverKey(msg.Integration.Configuration)
	if key == "" || msg.Device.PushToken == "" {
		a.logger.Debug("push skipped", slog.String("user_id", msg.User.ID), slog.Bool("has_key", key != ""), slog.Bool("has_token", msg.Device.PushToken != ""))
		return nil
	}
	if err := a.pusher.Send(ctx, key, msg.Device.PushToken, msg.Message.EventName(), msg.Message.PushPayload()); err != nil {
		return channel.DeliveryFailed(err)
	}
	return nil
}

func serverKey(cfg map[string]any) string {
	section, _ := cfg["fcm"].(map[string]any)
	key, _ := section["server_key"].(string)
	return strings.TrimSpace(key)
}

func maskKey(key string) string {
	if len(key) <= 10 {
		return key
	}
	return maskedPrefix + key[len(key)-5:]
}
