package models

import (
	"strings"
	"time"
)

// User is one end user of an App. (AppID, UID) is unique.
type User struct {
	ID            string         `json:"id"`
	AppID         string         `json:"app_id"`
	UID           string         `json:"uid"`
	Identified    bool           `json:"identified"`
	FirstName     string         `json:"first_name,omitempty"`
	LastName      string         `json:"last_name,omitempty"`
	RandomName    bool           `json:"random_name"`
	Email         string         `json:"email,omitempty"`
	PhotoURL      string         `json:"photo_url,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
	SignUpDate    *time.Time     `json:"sign_up_date,omitempty"`
	Extra         UserExtra      `json:"extra"`
	LatestChannel Channel        `json:"latest_channel,omitempty"`
	CreatedAt     time.Time      `json:"registration_date"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// FullName joins the name parts, skipping empty ones.
func (u User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// UserExtra is channel and plugin side state kept on the user record.
type UserExtra struct {
	SlackChannel *SlackChannel `json:"slack_channel,omitempty"`
	Metrics      UserMetrics   `json:"metrics"`
	Plugins      PluginState   `json:"plugins"`
}

// SlackChannel is a weak reference to the Slack channel bound to a user.
type SlackChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserMetrics struct {
	ChatViews      int `json:"chat_views"`
	MessagesPosted int `json:"messages_posted"`
}

type PluginState struct {
	OfficeHours OfficeHoursState `json:"office_hours"`
}

type OfficeHoursState struct {
	// LastCheck is epoch millis; zero means never checked.
	LastCheck int64 `json:"last_check,omitempty"`
}

// UserPatch is a partial update applied atomically by the store, which
// returns the resulting snapshot. Nil fields are left untouched.
type UserPatch struct {
	FirstName            *string
	LastName             *string
	Email                *string
	PhotoURL             *string
	Properties           map[string]any
	SignUpDate           *time.Time
	LatestChannel        *Channel
	SlackChannel         *SlackChannel
	ClearSlackChannel    bool
	OfficeHoursLastCheck *int64
	IncChatViews         bool
	IncMessagesPosted    bool
}

// Apply mutates u in place. Supplying any name part clears RandomName.
func (p UserPatch) Apply(u *User) {
	if p.FirstName != nil || p.LastName != nil {
		if p.FirstName != nil {
			u.FirstName = *p.FirstName
		}
		if p.LastName != nil {
			u.LastName = *p.LastName
		}
		u.RandomName = false
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PhotoURL != nil {
		u.PhotoURL = *p.PhotoURL
	}
	if p.Properties != nil {
		if u.Properties == nil {
			u.Properties = map[string]any{}
		}
		for k, v := range p.Properties {
			u.Properties[k] = v
		}
	}
	if p.SignUpDate != nil {
		t := *p.SignUpDate
		u.SignUpDate = &t
	}
	if p.LatestChannel != nil {
		u.LatestChannel = *p.LatestChannel
	}
	if p.ClearSlackChannel {
		u.Extra.SlackChannel = nil
	}
	if p.SlackChannel != nil {
		ch := *p.SlackChannel
		u.Extra.SlackChannel = &ch
	}
	if p.OfficeHoursLastCheck != nil {
		u.Extra.Plugins.OfficeHours.LastCheck = *p.OfficeHoursLastCheck
	}
	if p.IncChatViews {
		u.Extra.Metrics.ChatViews++
	}
	if p.IncMessagesPosted {
		u.Extra.Metrics.MessagesPosted++
	}
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T {
	return &v
}
