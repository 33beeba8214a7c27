package entities

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/explorers/internal/entity"
	"github.com/jason-s-yu/explorers/internal/models"
)

// maxRecentMessages bounds every recentMessages list.
const maxRecentMessages = 25

func appendRecent(list []models.Message, msg models.Message) []models.Message {
	list = append(list, msg)
	if len(list) > maxRecentMessages {
		list = list[len(list)-maxRecentMessages:]
	}
	return list
}

// Game is the running instance of one mini-game in a room. The three bundled
// games share this lifecycle and differ only in schema.
type Game struct {
	*entity.Base
	props  models.GameProps
	active *entity.Region
}

func newGame(id string, gameID models.GameID, roomEntityID string, playerEntityIDs []string) *Game {
	g := &Game{
		props: models.GameProps{
			GameID:          gameID,
			PlayerEntityIDs: playerEntityIDs,
			RoomEntityID:    roomEntityID,
			RecentMessages:  []models.Message{},
		},
		active: newActiveRegion(ActiveTrue, ActiveFalse),
	}
	g.Base = entity.NewBase(id, gameID.GameSchema(), func() any { return &g.props }, g.active)
	g.Handle(g.handle)
	return g
}

func (g *Game) handle(ctx context.Context, cmd models.Command) error {
	return handleLifecycle(ctx, g.active, cmd)
}

// Active reports whether the game is running.
func (g *Game) Active() bool {
	var on bool
	g.View(func() { on = g.active.Is(ActiveTrue) })
	return on
}

// RecentMessages returns the chat kept on the game.
func (g *Game) RecentMessages() []models.Message {
	var out []models.Message
	g.View(func() { out = append(out, g.props.RecentMessages...) })
	return out
}

func (g *Game) AppendMessage(msg models.Message) error {
	return g.Mutate(func() error {
		g.props.RecentMessages = appendRecent(g.props.RecentMessages, msg)
		return nil
	})
}

// Player is one user's seat in a game.
type Player struct {
	*entity.Base
	props  models.PlayerProps
	active *entity.Region
}

func newPlayer(id string, gameID models.GameID, gameEntityID, userID string) *Player {
	p := &Player{
		props: models.PlayerProps{
			GameEntityID:   gameEntityID,
			UserID:         userID,
			RecentMessages: []models.Message{},
		},
		active: newActiveRegion(ActiveTrue, ActiveFalse),
	}
	p.Base = entity.NewBase(id, gameID.PlayerSchema(), func() any { return &p.props }, p.active)
	p.Handle(p.handle)
	return p
}

func (p *Player) UserID() string { return p.props.UserID }

func (p *Player) handle(ctx context.Context, cmd models.Command) error {
	return handleLifecycle(ctx, p.active, cmd)
}

// Active reports whether the player is still in the game.
func (p *Player) Active() bool {
	var on bool
	p.View(func() { on = p.active.Is(ActiveTrue) })
	return on
}

func (p *Player) AppendMessage(msg models.Message) error {
	return p.Mutate(func() error {
		p.props.RecentMessages = appendRecent(p.props.RecentMessages, msg)
		return nil
	})
}

// handleLifecycle is the START/LEAVE machine shared by games and players.
func handleLifecycle(ctx context.Context, active *entity.Region, cmd models.Command) error {
	switch cmd.Type {
	case models.CmdStart:
		return setActive(ctx, active, true, ActiveTrue, ActiveFalse)
	case models.CmdLeave:
		return setActive(ctx, active, false, ActiveTrue, ActiveFalse)
	}
	return fmt.Errorf("%w: %s", entity.ErrUnhandledCommand, cmd.Type)
}
