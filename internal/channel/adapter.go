package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayrohq/ayro/internal/models"
)

var (
	// ErrDeliveryFailed wraps transport failures of Sender implementations.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrUnsupportedChannel is returned for channels without a registered adapter.
	ErrUnsupportedChannel = errors.New("unsupported channel")
)

// DeliveryFailed marks err as a transport failure.
func DeliveryFailed(err error) error {
	if err == nil || errors.Is(err, ErrDeliveryFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
}

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
}

// Descriptor holds read-only metadata for a registered channel type.
// It contains no behavior; all behavior is expressed through optional interfaces.
type Descriptor struct {
	Type            ChannelType
	DisplayName     string
	IntegrationType models.IntegrationType
	Capabilities    ChannelCapabilities
	OutboundPolicy  OutboundPolicy
}

// ChannelCapabilities describes what a channel can carry.
type ChannelCapabilities struct {
	Text        bool `json:"text"`
	Attachments bool `json:"attachments"`
	Push        bool `json:"push"`
	Commands    bool `json:"commands"`
}

// Receiver translates a raw inbound payload into canonical messages. An
// empty result means the payload carried no routable text.
type Receiver interface {
	Receive(ctx context.Context, raw []byte) ([]InboundMessage, error)
}

// Sender delivers a message through the channel. Transport failures are
// wrapped with ErrDeliveryFailed. Push-only channels return nil when the
// device has no token or the integration is not configured.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// ConfigNormalizer validates an integration configuration and extracts the
// globally unique remote key, if the channel has one.
type ConfigNormalizer interface {
	NormalizeConfig(raw map[string]any) (map[string]any, error)
	ExternalID(cfg map[string]any) string
}

// ConfigPresenter redacts an integration configuration for API output.
type ConfigPresenter interface {
	PresentConfig(cfg map[string]any) map[string]any
}

// SelfDiscoverer retrieves the installed bot's own identity from the platform.
// The returned map is merged into the integration configuration.
type SelfDiscoverer interface {
	DiscoverSelf(ctx context.Context, credentials map[string]any) (identity map[string]any, externalID string, err error)
}
