// Package models holds the canonical records shared by the routing core:
// apps, users, devices, integrations, plugins and chat messages.
package models

import (
	"fmt"
	"strings"
)

// Channel identifies the medium a user or agent talks through.
type Channel string

const (
	ChannelWebsite   Channel = "website"
	ChannelWordpress Channel = "wordpress"
	ChannelAndroid   Channel = "android"
	ChannelIOS       Channel = "ios"
	ChannelMessenger Channel = "messenger"
	ChannelSlack     Channel = "slack"
)

// UserChannels are the end-user facing channels, in the order they are offered.
var UserChannels = []Channel{ChannelWebsite, ChannelWordpress, ChannelAndroid, ChannelIOS, ChannelMessenger}

// AllChannels lists every channel the router knows about.
var AllChannels = append(append([]Channel{}, UserChannels...), ChannelSlack)

func (c Channel) String() string {
	return string(c)
}

// UserFacing reports whether end users reach the business through c.
func (c Channel) UserFacing() bool {
	switch c {
	case ChannelWebsite, ChannelWordpress, ChannelAndroid, ChannelIOS, ChannelMessenger:
		return true
	default:
		return false
	}
}

// IntegrationType returns the side of the conversation c belongs to.
func (c Channel) IntegrationType() IntegrationType {
	if c == ChannelSlack {
		return IntegrationTypeBusiness
	}
	return IntegrationTypeUser
}

// Platform returns the device platform used on c.
func (c Channel) Platform() Platform {
	switch c {
	case ChannelWebsite, ChannelWordpress:
		return PlatformBrowser
	case ChannelAndroid:
		return PlatformAndroid
	case ChannelIOS:
		return PlatformIOS
	case ChannelMessenger:
		return PlatformMessenger
	default:
		return ""
	}
}

// ParseChannel normalizes raw and checks it against the known channels.
func ParseChannel(raw string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllChannels {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unsupported channel: %q", raw)
}

// Platform identifies the kind of device a user is on.
type Platform string

const (
	PlatformBrowser   Platform = "browser"
	PlatformAndroid   Platform = "android"
	PlatformIOS       Platform = "ios"
	PlatformMessenger Platform = "messenger"
)

// DisplayName returns the human label shown in business-facing summaries.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformBrowser:
		return "Browser"
	case PlatformAndroid:
		return "Android"
	case PlatformIOS:
		return "iOS"
	case PlatformMessenger:
		return "Facebook Messenger"
	default:
		return string(p)
	}
}
