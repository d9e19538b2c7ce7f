package domain

import "time"

// PresenceEntry is the snapshot view of one live connection.
// Presence is process-local state and is never persisted.
type PresenceEntry struct {
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
	LastSeen    time.Time `json:"last_seen"`
}
