// Package web implements the browser channels (website widget and the
// Wordpress plugin). Both deliver through the internal push gateway.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ayrohq/ayro/internal/channel"
	"github.com/ayrohq/ayro/internal/models"
)

const (
	keyPrimaryColor      = "primary_color"
	keyConversationColor = "conversation_color"
)

// Gateway pushes an event to every open widget of a user.
type Gateway interface {
	Send(ctx context.Context, userID, event string, message any) error
}

type theme struct {
	primary      string
	conversation string
}

var defaultThemes = map[channel.ChannelType]theme{
	models.ChannelWebsite:   {primary: "#007bff", conversation: "#007bff"},
	models.ChannelWordpress: {primary: "#5c7382", conversation: "#007bff"},
}

// Adapter implements channel.Adapter, channel.Sender and
// channel.ConfigNormalizer for one browser channel.
type Adapter struct {
	channelType channel.ChannelType
	displayName string
	gateway     Gateway
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewWebsiteAdapter returns the adapter for the website widget.
func NewWebsiteAdapter(log *slog.Logger, gateway Gateway) *Adapter {
	return newAdapter(log, models.ChannelWebsite, "Website", gateway)
}

// NewWordpressAdapter returns the adapter for the Wordpress plugin.
func NewWordpressAdapter(log *slog.Logger, gateway Gateway) *Adapter {
	return newAdapter(log, models.ChannelWordpress, "Wordpress", gateway)
}

func newAdapter(log *slog.Logger, ct channel.ChannelType, displayName string, gateway Gateway) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		channelType: ct,
		displayName: displayName,
		gateway:     gateway,
		validate:    validator.New(),
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

// NormalizeConfig fills missing theme colours with the channel defaults
// and rejects values that are not hex colours.
func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	def := defaultThemes[a.channelType]
	out := map[string]any{
		keyPrimaryColor:      def.primary,
		keyConversationColor: def.conversation,
	}
	for _, key := range []string{keyPrimaryColor, keyConversationColor} {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a string", key)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if err := a.validate.Var(s, "hexcolor"); err != nil {
			return nil, fmt.Errorf("%s: %q is not a hex colour", key, s)
		}
		out[key] = s
	}
	return out, nil
}

// ExternalID is empty: browser channels have no remote account.
func (a *Adapter) ExternalID(map[string]any) string {
	return ""
}

// Send pushes the message to the user's open widgets. A missing gateway
// is a no-op.
func (a *Adapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	if a.gateway == nil {
		return nil
	}
	if err := a.gateway.Send(ctx, msg.User.ID, msg.Message.EventName(), msg.Message.PushPayload()); err != nil {
		return channel.DeliveryFailed(err)
	}
	return nil
}
