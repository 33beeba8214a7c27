// Package catalog describes the bundled mini-games and their player limits.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/jason-s-yu/explorers/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed games.yaml
var defaultGames []byte

var (
	ErrUnknownGame      = errors.New("unknown game")
	ErrPlayerCount      = errors.New("player count out of range")
	ErrGameMismatch     = errors.New("configuration is for a different game")
	ErrInvalidGameEntry = errors.New("invalid catalog entry")
)

// Game is a catalog entry.
type Game struct {
	ID          models.GameID `yaml:"id" json:"id"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	MinPlayers  int           `yaml:"minPlayers" json:"minPlayers"`
	MaxPlayers  int           `yaml:"maxPlayers" json:"maxPlayers"`
}

type file struct {
	Games []Game `yaml:"games"`
}

// Catalog is a read-only set of games.
type Catalog struct {
	games []Game
	byID  map[models.GameID]Game
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultGames)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded games.yaml: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file on disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Every entry must name a bundled game.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	c := &Catalog{byID: make(map[models.GameID]Game, len(f.Games))}
	for _, g := range f.Games {
		if !g.ID.Valid() {
			return nil, fmt.Errorf("%w: unknown id %q", ErrInvalidGameEntry, g.ID)
		}
		if g.MinPlayers < 1 || g.MaxPlayers < g.MinPlayers {
			return nil, fmt.Errorf("%w: %s players %d..%d", ErrInvalidGameEntry, g.ID, g.MinPlayers, g.MaxPlayers)
		}
		if _, dup := c.byID[g.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidGameEntry, g.ID)
		}
		c.games = append(c.games, g)
		c.byID[g.ID] = g
	}
	return c, nil
}

// Games lists the catalog in file order.
func (c *Catalog) Games() []Game {
	return append([]Game(nil), c.games...)
}

// Get looks up a game by id.
func (c *Catalog) Get(id models.GameID) (Game, bool) {
	g, ok := c.byID[id]
	return g, ok
}

// MaxPlayers is the largest seat count of any game in the catalog.
func (c *Catalog) MaxPlayers() int {
	n := 0
	for _, g := range c.games {
		n = max(n, g.MaxPlayers)
	}
	return n
}

// CheckPlayers reports whether n players can play id.
func (c *Catalog) CheckPlayers(id models.GameID, n int) error {
	g, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGame, id)
	}
	if n < g.MinPlayers || n > g.MaxPlayers {
		return fmt.Errorf("%w: %s needs %d..%d players, got %d", ErrPlayerCount, id, g.MinPlayers, g.MaxPlayers, n)
	}
	return nil
}

// CheckConfiguration validates cfg for the selected game.
func (c *Catalog) CheckConfiguration(selected models.GameID, cfg models.GameConfiguration) error {
	if cfg.GameID != selected {
		return fmt.Errorf("%w: selected %s, got %s", ErrGameMismatch, selected, cfg.GameID)
	}
	return c.CheckPlayers(cfg.GameID, cfg.Data.NumPlayers)
}
