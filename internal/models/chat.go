package models

import "time"

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// AppAgentID marks messages authored by the app itself rather than a person.
const AppAgentID = "0"

// Agent is the support-side identity shown to the user.
type Agent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// ChatMessage is one entry of a user's append-only conversation log.
// Agent is nil for messages the user wrote.
type ChatMessage struct {
	ID        string    `json:"id"`
	AppID     string    `json:"app_id"`
	UserID    string    `json:"user_id"`
	Agent     *Agent    `json:"agent,omitempty"`
	Text      string    `json:"text"`
	Direction Direction `json:"direction"`
	Channel   Channel   `json:"channel"`
	Date      time.Time `json:"date"`
}
