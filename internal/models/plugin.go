package models

import "time"

type PluginType string

const (
	PluginTypeGreetingsMessage PluginType = "greetings_message"
	PluginTypeOfficeHours      PluginType = "office_hours"
)

// Plugin is an automated behavior attached to an App; one per (AppID, Type).
// An empty Channels list means the plugin applies on every channel.
type Plugin struct {
	ID            string         `json:"id"`
	AppID         string         `json:"app_id"`
	Type          PluginType     `json:"type"`
	Channels      []Channel      `json:"channels,omitempty"`
	Configuration map[string]any `json:"configuration"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AppliesTo reports whether the plugin is enabled on ch.
func (p Plugin) AppliesTo(ch Channel) bool {
	if len(p.Channels) == 0 || ch == "" {
		return true
	}
	for _, c := range p.Channels {
		if c == ch {
			return true
		}
	}
	return false
}
