// internal/models/props.go
package models

import "time"

// MessageTypePlain is the only chat message type.
const MessageTypePlain = "PLAIN_MESSAGE"

// Message is a chat line kept on rooms, games and players.
type Message struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	SenderEntityID string    `json:"senderEntityId"`
	Message        string    `json:"message"`
	SentAt         time.Time `json:"sentAt"`
}

// ChatServiceState mirrors the chat service spawned while a connection is in a room.
type ChatServiceState struct {
	Context struct {
		RoomSlug string     `json:"roomSlug"`
		TypingAt *time.Time `json:"typingAt,omitempty"`
	} `json:"context"`
	Value string `json:"value"`
}

// NewRoomContext is the data collected by the new-room flow.
type NewRoomContext struct {
	RoomSlug          string             `json:"roomSlug,omitempty"`
	GameID            GameID             `json:"gameId,omitempty"`
	GameConfiguration *GameConfiguration `json:"gameConfiguration,omitempty"`
}

// NewRoomServiceState mirrors the new-room service while a connection is on the NewRoom route.
type NewRoomServiceState struct {
	Context NewRoomContext `json:"context"`
	Value   string         `json:"value"`
}

// ConnectionProps is the synchronized state of a single client connection.
type ConnectionProps struct {
	SessionID          string               `json:"sessionId,omitempty"`
	AuthTokens         *AuthTokens          `json:"authTokens,omitempty"`
	DeviceID           string               `json:"deviceId,omitempty"`
	CurrentRoomSlug    string               `json:"currentRoomSlug,omitempty"`
	ConnectedRoomSlugs []string             `json:"connectedRoomSlugs"`
	ActiveRoomSlugs    []string             `json:"activeRoomSlugs"`
	ChatService        *ChatServiceState    `json:"chatService,omitempty"`
	NewRoomService     *NewRoomServiceState `json:"newRoomService,omitempty"`
	InstanceID         string               `json:"instanceId,omitempty"`
	LastHeartbeatAt    *time.Time           `json:"lastHeartbeatAt,omitempty"`
}

// SessionProps ties a session to the user that owns it.
type SessionProps struct {
	UserID string `json:"userId"`
}

// RoomProps is the synchronized state of a room.
type RoomProps struct {
	Slug                string             `json:"slug"`
	OwnerHostID         string             `json:"ownerHostId"`
	ConnectionEntityIDs []string           `json:"connectionEntityIds"`
	PlayerUserIDs       []string           `json:"playerUserIds"`
	GameID              GameID             `json:"gameId,omitempty"`
	Configuration       *GameConfiguration `json:"configuration,omitempty"`
	GameEntityID        string             `json:"gameEntityId,omitempty"`
	RecentMessages      []Message          `json:"recentMessages"`
}

// GameProps is shared by the game entities of every mini-game.
type GameProps struct {
	GameID          GameID    `json:"gameId"`
	PlayerEntityIDs []string  `json:"playerEntityIds"`
	RoomEntityID    string    `json:"roomEntityId"`
	RecentMessages  []Message `json:"recentMessages"`
}

// PlayerProps is shared by the player entities of every mini-game.
type PlayerProps struct {
	GameEntityID   string    `json:"gameEntityId"`
	UserID         string    `json:"userId"`
	RecentMessages []Message `json:"recentMessages"`
}
