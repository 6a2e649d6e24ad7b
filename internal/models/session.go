package models

import "time"

// Session groups a client-identified conversation. The id is opaque and
// minted by the client; the server only tracks state keyed by it.
type Session struct {
	ID             string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// SessionStats is the inspection view of a session used by the debug endpoint
// and chat response metadata.
type SessionStats struct {
	SessionID      string    `json:"session_id"`
	MessageCount   int       `json:"message_count"`
	CreatedAt      time.Time `json:"created"`
	LastActivityAt time.Time `json:"last_activity"`
}
