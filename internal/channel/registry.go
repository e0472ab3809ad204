package channel

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/ayrohq/ayro/internal/models"
)

// Registry holds all registered channel adapters and dispatches the
// optional capabilities. It must be created via NewRegistry and passed
// explicitly to components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ChannelType]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[ChannelType]Adapter{},
	}
}

// Register adds an adapter to the registry. Only channels in
// models.AllChannels are accepted.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	ct, err := models.ParseChannel(adapter.Type().String())
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[ct]; exists {
		return fmt.Errorf("channel type already registered: %s", ct)
	}
	r.adapters[ct] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given channel type.
func (r *Registry) Get(channelType ChannelType) (Adapter, bool) {
	ct := normalizeChannelType(channelType.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[ct]
	return adapter, ok
}

// Types returns all registered channel types.
func (r *Registry) Types() []ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]ChannelType, 0, len(r.adapters))
	for ct := range r.adapters {
		items = append(items, ct)
	}
	return items
}

// Missing returns the known channels that have no adapter. A complete
// registry returns an empty slice.
func (r *Registry) Missing() []ChannelType {
	missing := make([]ChannelType, 0)
	for _, ct := range models.AllChannels {
		if _, ok := r.Get(ct); !ok {
			missing = append(missing, ct)
		}
	}
	return missing
}

// GetDescriptor returns the descriptor for the given channel type.
func (r *Registry) GetDescriptor(channelType ChannelType) (Descriptor, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return Descriptor{}, false
	}
	return adapter.Descriptor(), true
}

// ParseChannelType validates and normalizes a raw string into a registered ChannelType.
func (r *Registry) ParseChannelType(raw string) (ChannelType, error) {
	ct := normalizeChannelType(raw)
	if _, ok := r.Get(ct); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChannel, raw)
	}
	return ct, nil
}

// GetOutboundPolicy returns the normalized outbound policy for the given channel type.
func (r *Registry) GetOutboundPolicy(channelType ChannelType) OutboundPolicy {
	desc, ok := r.GetDescriptor(channelType)
	if !ok {
		return NormalizeOutboundPolicy(OutboundPolicy{})
	}
	return NormalizeOutboundPolicy(desc.OutboundPolicy)
}

// GetSender returns the Sender for the given channel type, or nil if unsupported.
func (r *Registry) GetSender(channelType ChannelType) (Sender, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, false
	}
	sender, ok := adapter.(Sender)
	return sender, ok
}

// GetReceiver returns the Receiver for the given channel type, or nil if unsupported.
func (r *Registry) GetReceiver(channelType ChannelType) (Receiver, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, false
	}
	receiver, ok := adapter.(Receiver)
	return receiver, ok
}

// Send delivers msg through the adapter registered for channelType.
func (r *Registry) Send(ctx context.Context, channelType ChannelType, msg OutboundMessage) error {
	sender, ok := r.GetSender(channelType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, channelType)
	}
	return sender.Send(ctx, msg)
}

// Receive parses raw through the adapter registered for channelType.
func (r *Registry) Receive(ctx context.Context, channelType ChannelType, raw []byte) ([]InboundMessage, error) {
	receiver, ok := r.GetReceiver(channelType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, channelType)
	}
	return receiver.Receive(ctx, raw)
}

// DiscoverSelf calls the SelfDiscoverer for the given channel type if supported.
func (r *Registry) DiscoverSelf(ctx context.Context, channelType ChannelType, credentials map[string]any) (map[string]any, string, error) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedChannel, channelType)
	}
	discoverer, ok := adapter.(SelfDiscoverer)
	if !ok {
		return nil, "", nil
	}
	return discoverer.DiscoverSelf(ctx, credentials)
}

// NormalizeConfig validates and normalizes an integration configuration map.
func (r *Registry) NormalizeConfig(channelType ChannelType, raw map[string]any) (map[string]any, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, channelType)
	}
	if normalizer, ok := adapter.(ConfigNormalizer); ok {
		return normalizer.NormalizeConfig(raw)
	}
	return raw, nil
}

// ExternalID extracts the globally unique remote key from a configuration.
func (r *Registry) ExternalID(channelType ChannelType, cfg map[string]any) string {
	adapter, ok := r.Get(channelType)
	if !ok {
		return ""
	}
	if normalizer, ok := adapter.(ConfigNormalizer); ok {
		return strings.TrimSpace(normalizer.ExternalID(cfg))
	}
	return ""
}

// PresentConfig returns a copy of cfg safe to expose over the API.
func (r *Registry) PresentConfig(channelType ChannelType, cfg map[string]any) map[string]any {
	adapter, ok := r.Get(channelType)
	if ok {
		if presenter, ok := adapter.(ConfigPresenter); ok {
			return presenter.PresentConfig(cfg)
		}
	}
	return maps.Clone(cfg)
}

func normalizeChannelType(raw string) ChannelType {
	normalized := strings.TrimSpace(strings.ToLower(raw))
	if normalized == "" {
		return ""
	}
	return ChannelType(normalized)
}
