package entities

import "errors"

var (
	ErrUnauthorized   = errors.New("UNAUTHORIZED")
	ErrNotInitialized = errors.New("connection not initialized")
	ErrNotInRoom      = errors.New("connection is not in a room")
	ErrNoNewRoomFlow  = errors.New("connection is not creating a room")
	ErrNotConnected   = errors.New("connection is not in this room")
	ErrMissingUser    = errors.New("connection has no user")
	ErrNotOwner       = errors.New("only the room owner can do that")
	ErrNoGameSelected = errors.New("room has no game selected")
	ErrGameInProgress = errors.New("game already in progress")
	ErrRoomFull       = errors.New("room is full")
)

// ErrAlreadyInitialized is returned for a second INITIALIZE once a connection is up.
var ErrAlreadyInitialized = errors.New("connection already initialized")
