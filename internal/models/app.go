package models

import (
	"strings"
	"time"
)

// App is a business's registered workspace.
type App struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Agent returns the synthetic agent used for automated messages sent on
// behalf of the app.
func (a App) Agent(publicURL string) Agent {
	return Agent{
		ID:       AppAgentID,
		Name:     a.Name,
		PhotoURL: strings.TrimRight(publicURL, "/") + "/apps/" + a.ID + "/icon",
	}
}

// IntegrationType splits integrations by conversation side.
type IntegrationType string

const (
	IntegrationTypeUser     IntegrationType = "user"
	IntegrationTypeBusiness IntegrationType = "business"
)

// Integration binds an App to one external channel. Configuration is an
// opaque per-channel document; adapters parse it into typed settings.
// ExternalID carries the globally unique remote key (Slack team id,
// Messenger page id) when the channel has one.
type Integration struct {
	ID            string          `json:"id"`
	AppID         string          `json:"app_id"`
	Type          IntegrationType `json:"type"`
	Channel       Channel         `json:"channel"`
	ExternalID    string          `json:"external_id,omitempty"`
	Configuration map[string]any  `json:"configuration"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ConfigString reads a nested string from Configuration, e.g. ("team", "id").
func (i Integration) ConfigString(path ...string) string {
	var cur any = i.Configuration
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}
	s, _ := cur.(string)
	return strings.TrimSpace(s)
}
