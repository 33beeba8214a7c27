// internal/models/schema.go
package models

// SchemaType names the kind of record an entity holds.
type SchemaType string

const (
	SchemaConnection SchemaType = "connection"
	SchemaSession    SchemaType = "session"
	SchemaRoom       SchemaType = "room"
)

// GameID identifies one of the bundled mini-games.
type GameID string

const (
	GameLittleVigilante GameID = "little_vigilante"
	GameCodebreakers    GameID = "codebreakers"
	GameBananaTraders   GameID = "banana_traders"
)

// GameIDs lists every known game in a stable order.
var GameIDs = []GameID{GameLittleVigilante, GameCodebreakers, GameBananaTraders}

// Valid reports whether id names a bundled game.
func (id GameID) Valid() bool {
	for _, g := range GameIDs {
		if g == id {
			return true
		}
	}
	return false
}

// GameSchema is the schema of the game entity for this game, e.g. "codebreakers_game".
func (id GameID) GameSchema() SchemaType {
	return SchemaType(string(id) + "_game")
}

// PlayerSchema is the schema of the player entity for this game.
func (id GameID) PlayerSchema() SchemaType {
	return SchemaType(string(id) + "_player")
}
