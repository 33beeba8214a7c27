// internal/models/command.go
package models

// CommandType is the discriminator of a command sent to an entity.
type CommandType string

const (
	// connection
	CmdInitialize    CommandType = "INITIALIZE"
	CmdHeartbeat     CommandType = "HEARTBEAT"
	CmdNavigate      CommandType = "NAVIGATE"
	CmdSelectGame    CommandType = "SELECT_GAME"
	CmdSubmitName    CommandType = "SUBMIT_NAME"
	CmdConfigureGame CommandType = "CONFIGURE_GAME"
	CmdTyping        CommandType = "TYPE"
	CmdSend          CommandType = "SEND"

	// room, game and player
	CmdConnect CommandType = "CONNECT"
	CmdJoin    CommandType = "JOIN"
	CmdStart   CommandType = "START"
	CmdLeave   CommandType = "LEAVE"

	// session
	CmdReconnect  CommandType = "RECONNECT"
	CmdDisconnect CommandType = "DISCONNECT"
)

// Command is a message dispatched to an entity. Only the fields relevant to
// Type are set; Validate checks that they are present and well formed.
type Command struct {
	Type CommandType `json:"type"`

	DeviceID        string      `json:"deviceId,omitempty"`
	InitialLocation string      `json:"initialLocation,omitempty"`
	AuthTokens      *AuthTokens `json:"authTokens,omitempty"`

	Route *RouteProps `json:"route,omitempty"`

	GameID        GameID             `json:"gameId,omitempty"`
	Name          string             `json:"name,omitempty"`
	Configuration *GameConfiguration `json:"configuration,omitempty"`

	ConnectionEntityID string `json:"connectionEntityId,omitempty"`

	Message string `json:"message,omitempty"`

	// UserID is attached server side when a connection addresses a room.
	UserID string `json:"-"`
}

// AuthTokens is an access/refresh token pair handed to the client.
type AuthTokens struct {
	AccessToken  string `json:"accessToken" validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// GameConfiguration holds the settings picked for a room's game.
type GameConfiguration struct {
	GameID GameID                `json:"gameId" validate:"required,gameid"`
	Data   GameConfigurationData `json:"data"`
}

type GameConfigurationData struct {
	NumPlayers int `json:"numPlayers" validate:"gte=1"`
}

// LoginInput is the body of the login and sign-up endpoints.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=5"`
}
