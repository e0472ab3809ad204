// Package channel provides the adapter abstraction shared by every medium
// the router speaks: the end-user channels (website, wordpress, android,
// ios, messenger) and the business channel (slack).
package channel

import (
	"strings"
	"time"

	"github.com/ayrohq/ayro/internal/models"
)

// ChannelType identifies a channel. The set is closed; see models.AllChannels.
type ChannelType = models.Channel

// Event names carried by push payloads.
const (
	EventChatMessage    = "chat_message"
	EventConnectChannel = "connect_channel"
)

// Identity represents a sender's identity on a channel.
type Identity struct {
	SubjectID   string
	DisplayName string
	Attributes  map[string]string
}

// Attribute returns the trimmed value for the given key, or empty string if absent.
func (i Identity) Attribute(key string) string {
	if i.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(i.Attributes[key])
}

// Message is the canonical, channel-agnostic chat payload.
type Message struct {
	Event   string
	Text    string
	Agent   *models.Agent
	Payload any
}

// IsEmpty reports whether the message carries nothing to deliver.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && m.Payload == nil
}

// EventName returns Event, defaulting to a chat message.
func (m Message) EventName() string {
	if strings.TrimSpace(m.Event) == "" {
		return EventChatMessage
	}
	return m.Event
}

// InboundMessage is a message received from an external channel.
// Recipient is the remote account the message was addressed to (the
// Messenger page, the Slack team); Conversation is the remote thread
// (the Slack channel).
type InboundMessage struct {
	Channel      ChannelType
	Message      Message
	Sender       Identity
	Recipient    string
	Conversation string
	Command      string
	ReceivedAt   time.Time
}

// OutboundMessage is everything an adapter needs to deliver one message.
// Device is nil for the business channel.
type OutboundMessage struct {
	Integration models.Integration
	User        models.User
	Device      *models.Device
	Message     Message
}

// PushPayload is the body carried by push channels: the explicit payload
// when set, otherwise the text with its author.
func (m Message) PushPayload() any {
	if m.Payload != nil {
		return m.Payload
	}
	return map[string]any{"text": m.Text, "agent": m.Agent}
}
