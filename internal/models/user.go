package models

import "time"

// Presence values stored on the user row.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// User is a chat participant identified by a durable opaque id.
type User struct {
	ID          string     `db:"id" json:"id"`
	DisplayName string     `db:"display_name" json:"displayName"`
	Hostname    string     `db:"hostname" json:"hostname,omitempty"`
	Avatar      string     `db:"avatar" json:"avatar,omitempty"`
	Bio         string     `db:"bio" json:"bio,omitempty"`
	Status      string     `db:"status" json:"status"`
	LastAddress string     `db:"last_address" json:"-"`
	LastSeen    *time.Time `db:"last_seen" json:"lastSeen,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// ProfileUpdate carries optional profile edits; nil fields are left alone.
type ProfileUpdate struct {
	DisplayName *string
	Avatar      *string
	Bio         *string
}
