package models

import "time"

// User is a row in the users table. Anonymous users have no password and can
// only resume their session through tokens.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Password    string    `json:"-"`
	IsAnonymous bool      `json:"is_anonymous"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoomRecord is the persisted part of a room: enough to restore it after a restart.
type RoomRecord struct {
	Slug          string             `json:"slug"`
	OwnerHostID   string             `json:"owner_host_id"`
	GameID        GameID             `json:"game_id,omitempty"`
	Configuration *GameConfiguration `json:"configuration,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// EntityEventRecord is one processed command, published for the historian.
type EntityEventRecord struct {
	EntityID  string      `json:"entity_id"`
	Schema    SchemaType  `json:"schema"`
	EventType string      `json:"event_type"`
	Command   CommandType `json:"command"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}
