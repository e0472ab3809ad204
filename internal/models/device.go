package models

import "time"

// Device is one user's presence on one channel. (UserID, UID) and
// (UserID, Channel) are unique.
type Device struct {
	ID        string     `json:"id"`
	AppID     string     `json:"app_id"`
	UserID    string     `json:"user_id"`
	UID       string     `json:"uid"`
	Platform  Platform   `json:"platform"`
	Channel   Channel    `json:"channel"`
	PushToken string     `json:"push_token,omitempty"`
	Info      DeviceInfo `json:"info"`
	CreatedAt time.Time  `json:"registration_date"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ExternalID is the remote sender key used to find the device again on
// inbound events. Only Messenger devices have one.
func (d Device) ExternalID() string {
	if d.Channel == ChannelMessenger {
		return d.Info.ProfileID
	}
	return ""
}

// DeviceInfo holds platform specific metadata. Only the fields relevant to
// the device's platform are populated.
type DeviceInfo struct {
	AppID           string `json:"app_id,omitempty"`
	AppVersion      string `json:"app_version,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	Model           string `json:"model,omitempty"`
	Carrier         string `json:"carrier,omitempty"`
	OperatingSystem string `json:"operating_system,omitempty"`
	UserAgent       string `json:"user_agent,omitempty"`
	BrowserName     string `json:"browser_name,omitempty"`
	BrowserVersion  string `json:"browser_version,omitempty"`
	Location        string `json:"location,omitempty"`
	ProfileID       string `json:"profile_id,omitempty"`
	ProfileName     string `json:"profile_name,omitempty"`
	ProfileGender   string `json:"profile_gender,omitempty"`
	ProfilePicture  string `json:"profile_picture,omitempty"`
	ProfileLocale   string `json:"profile_locale,omitempty"`
	ProfileTimezone *int   `json:"profile_timezone,omitempty"`
}
