package entities

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jason-s-yu/explorers/internal/catalog"
	"github.com/jason-s-yu/explorers/internal/entity"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/sirupsen/logrus"
)

// Room regions and their states.
const (
	RegionScene = "Scene"
	SceneLobby  = "Lobby"
	SceneLoad   = "Loading"
	SceneGame   = "Game"

	RoomActiveNo  = "No"
	RoomActiveYes = "Yes"

	triggerLoaded = "LOADED"
	triggerAbort  = "ABORT"
	triggerEnd    = "END"
)

// gameHost creates and removes the game entities a room runs.
type gameHost interface {
	spawnGame(ctx context.Context, room *Room, gameID models.GameID, userIDs []string) (*Game, []*Player, error)
	despawn(ids ...string)
}

// Room is a joinable space identified by its slug. Connections come and go;
// users that JOIN become players of the room's game.
type Room struct {
	*entity.Base
	props  models.RoomProps
	scene  *entity.Region
	active *entity.Region

	host    gameHost
	catalog *catalog.Catalog
	logger  *logrus.Logger

	members map[string]string // connection entity id -> user id
	game    *Game
	players map[string]*Player // user id -> player
}

func newRoom(id string, rec models.RoomRecord, host gameHost, cat *catalog.Catalog, logger *logrus.Logger) *Room {
	r := &Room{
		props: models.RoomProps{
			Slug:                rec.Slug,
			OwnerHostID:         rec.OwnerHostID,
			ConnectionEntityIDs: []string{},
			PlayerUserIDs:       []string{},
			GameID:              rec.GameID,
			Configuration:       rec.Configuration,
			RecentMessages:      []models.Message{},
		},
		scene:   entity.NewRegion(RegionScene, SceneLobby),
		active:  newActiveRegion(RoomActiveYes, RoomActiveNo),
		host:    host,
		catalog: cat,
		logger:  logger,
		members: make(map[string]string),
		players: make(map[string]*Player),
	}
	r.scene.Configure(SceneLobby).Permit(string(models.CmdStart), SceneLoad)
	r.scene.Configure(SceneLoad).
		Permit(triggerLoaded, SceneGame).
		Permit(triggerAbort, SceneLobby)
	r.scene.Configure(SceneGame).Permit(triggerEnd, SceneLobby)

	r.Base = entity.NewBase(id, models.SchemaRoom, func() any { return &r.props }, r.scene, r.active)
	r.Handle(r.handle)
	return r
}

// Slug never changes after creation.
func (r *Room) Slug() string { return r.props.Slug }

// OwnerHostID never changes after creation.
func (r *Room) OwnerHostID() string { return r.props.OwnerHostID }

// Scene is the current state of the Scene region.
func (r *Room) Scene() string {
	var s string
	r.View(func() { s = r.scene.Current() })
	return s
}

// Props returns a copy of the room record.
func (r *Room) Props() models.RoomProps {
	var p models.RoomProps
	r.View(func() {
		p = r.props
		p.ConnectionEntityIDs = slices.Clone(r.props.ConnectionEntityIDs)
		p.PlayerUserIDs = slices.Clone(r.props.PlayerUserIDs)
		p.RecentMessages = slices.Clone(r.props.RecentMessages)
	})
	return p
}

// HasConnection reports whether connectionID is present in the room.
func (r *Room) HasConnection(connectionID string) bool {
	var ok bool
	r.View(func() { _, ok = r.members[connectionID] })
	return ok
}

// AppendMessage keeps msg in the room and, while a game runs, on the game
// and the sender's player.
func (r *Room) AppendMessage(msg models.Message, senderUserID string) error {
	var game *Game
	var player *Player
	err := r.Mutate(func() error {
		r.props.RecentMessages = appendRecent(r.props.RecentMessages, msg)
		game = r.game
		player = r.players[senderUserID]
		return nil
	})
	if err != nil {
		return err
	}
	if game != nil {
		if err := game.AppendMessage(msg); err != nil {
			return err
		}
	}
	if player != nil {
		return player.AppendMessage(msg)
	}
	return nil
}

// SeedMessages fills an empty recentMessages from stored chat history, so a
// room recreated after a restart shows the conversation it had.
func (r *Room) SeedMessages(history []models.Message) error {
	if len(history) == 0 {
		return nil
	}
	return r.Mutate(func() error {
		if len(r.props.RecentMessages) > 0 {
			return nil
		}
		for _, msg := range history {
			r.props.RecentMessages = appendRecent(r.props.RecentMessages, msg)
		}
		return nil
	})
}

func (r *Room) handle(ctx context.Context, cmd models.Command) error {
	if cmd.ConnectionEntityID == "" {
		return fmt.Errorf("%w: connectionEntityId", models.ErrMissingField)
	}
	switch cmd.Type {
	case models.CmdConnect:
		return r.connect(ctx, cmd)
	case models.CmdJoin:
		return r.join(cmd)
	case models.CmdConfigureGame:
		return r.configure(cmd)
	case models.CmdStart:
		return r.start(ctx, cmd)
	case models.CmdLeave:
		return r.leave(ctx, cmd)
	}
	return fmt.Errorf("%w: room %s", entity.ErrUnhandledCommand, cmd.Type)
}

func (r *Room) connect(ctx context.Context, cmd models.Command) error {
	if cmd.UserID == "" {
		return ErrMissingUser
	}
	r.members[cmd.ConnectionEntityID] = cmd.UserID
	r.props.ConnectionEntityIDs = addUnique(r.props.ConnectionEntityIDs, cmd.ConnectionEntityID)

	if p, ok := r.players[cmd.UserID]; ok {
		if err := p.Send(ctx, models.Command{Type: models.CmdStart}); err != nil {
			return fmt.Errorf("resume player %s: %w", p.ID(), err)
		}
	}
	return r.syncActive(ctx)
}

func (r *Room) member(cmd models.Command) (string, error) {
	userID, ok := r.members[cmd.ConnectionEntityID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotConnected, cmd.ConnectionEntityID)
	}
	return userID, nil
}

func (r *Room) join(cmd models.Command) error {
	userID, err := r.member(cmd)
	if err != nil {
		return err
	}
	if !r.scene.Is(SceneLobby) {
		return ErrGameInProgress
	}
	if slices.Contains(r.props.PlayerUserIDs, userID) {
		return nil
	}
	seats := r.catalog.MaxPlayers()
	if g, ok := r.catalog.Get(r.props.GameID); ok {
		seats = g.MaxPlayers
	}
	if len(r.props.PlayerUserIDs) >= seats {
		return fmt.Errorf("%w: %d players", ErrRoomFull, seats)
	}
	r.props.PlayerUserIDs = append(r.props.PlayerUserIDs, userID)
	return nil
}

// configure lets the owner pick or change the game while in the lobby.
func (r *Room) configure(cmd models.Command) error {
	userID, err := r.member(cmd)
	if err != nil {
		return err
	}
	if userID != r.props.OwnerHostID {
		return ErrNotOwner
	}
	if !r.scene.Is(SceneLobby) {
		return ErrGameInProgress
	}
	cfg := *cmd.Configuration
	if err := r.catalog.CheckConfiguration(cfg.GameID, cfg); err != nil {
		return err
	}
	if g, _ := r.catalog.Get(cfg.GameID); len(r.props.PlayerUserIDs) > g.MaxPlayers {
		return fmt.Errorf("%w: %d players joined, %s seats %d", ErrRoomFull, len(r.props.PlayerUserIDs), cfg.GameID, g.MaxPlayers)
	}
	r.props.GameID = cfg.GameID
	r.props.Configuration = &cfg
	return nil
}

func (r *Room) start(ctx context.Context, cmd models.Command) error {
	userID, err := r.member(cmd)
	if err != nil {
		return err
	}
	if userID != r.props.OwnerHostID {
		return ErrNotOwner
	}
	if !r.scene.Is(SceneLobby) {
		return ErrGameInProgress
	}
	if r.props.GameID == "" {
		return ErrNoGameSelected
	}
	if err := r.catalog.CheckPlayers(r.props.GameID, len(r.props.PlayerUserIDs)); err != nil {
		return err
	}

	if err := r.scene.Fire(ctx, string(models.CmdStart)); err != nil {
		return err
	}
	if err := r.load(ctx); err != nil {
		if aerr := r.scene.Fire(ctx, triggerAbort); aerr != nil {
			r.logger.WithError(aerr).WithField("roomSlug", r.props.Slug).Error("failed to abort game load")
		}
		return fmt.Errorf("start %s: %w", r.props.GameID, err)
	}
	return r.scene.Fire(ctx, triggerLoaded)
}

// load spawns the game and its players and starts them.
func (r *Room) load(ctx context.Context) error {
	game, players, err := r.host.spawnGame(ctx, r, r.props.GameID, slices.Clone(r.props.PlayerUserIDs))
	if err != nil {
		return err
	}
	ids := []string{game.ID()}
	for _, p := range players {
		ids = append(ids, p.ID())
	}

	for _, p := range players {
		if err := p.Send(ctx, models.Command{Type: models.CmdStart}); err != nil {
			r.host.despawn(ids...)
			return err
		}
	}
	if err := game.Send(ctx, models.Command{Type: models.CmdStart}); err != nil {
		r.host.despawn(ids...)
		return err
	}

	r.game = game
	for _, p := range players {
		r.players[p.UserID()] = p
	}
	r.props.GameEntityID = game.ID()
	return nil
}

func (r *Room) leave(ctx context.Context, cmd models.Command) error {
	userID, ok := r.members[cmd.ConnectionEntityID]
	if !ok {
		return nil
	}
	delete(r.members, cmd.ConnectionEntityID)
	r.props.ConnectionEntityIDs = without(r.props.ConnectionEntityIDs, cmd.ConnectionEntityID)

	var err error
	if !r.userPresent(userID) {
		switch {
		case r.scene.Is(SceneLobby):
			r.props.PlayerUserIDs = without(r.props.PlayerUserIDs, userID)
		case r.scene.Is(SceneGame):
			err = r.leaveGame(ctx, userID)
		}
	}
	return errors.Join(err, r.syncActive(ctx))
}

func (r *Room) leaveGame(ctx context.Context, userID string) error {
	if p, ok := r.players[userID]; ok {
		if err := p.Send(ctx, models.Command{Type: models.CmdLeave}); err != nil {
			return fmt.Errorf("player %s leave: %w", p.ID(), err)
		}
	}
	for _, p := range r.players {
		if p.Active() {
			return nil
		}
	}
	return r.endGame(ctx)
}

// endGame tears down the running game once every player has left and sends
// the room back to the lobby with whoever is still connected.
func (r *Room) endGame(ctx context.Context) error {
	if r.game != nil {
		if err := r.game.Send(ctx, models.Command{Type: models.CmdLeave}); err != nil {
			r.logger.WithError(err).WithField("gameEntityId", r.game.ID()).Warn("game did not accept LEAVE")
		}
		ids := []string{r.game.ID()}
		for _, p := range r.players {
			ids = append(ids, p.ID())
		}
		r.host.despawn(ids...)
	}
	r.game = nil
	clear(r.players)
	r.props.GameEntityID = ""
	r.props.PlayerUserIDs = slices.DeleteFunc(r.props.PlayerUserIDs, func(u string) bool {
		return !r.userPresent(u)
	})
	return r.scene.Fire(ctx, triggerEnd)
}

func (r *Room) userPresent(userID string) bool {
	for _, u := range r.members {
		if u == userID {
			return true
		}
	}
	return false
}

func (r *Room) syncActive(ctx context.Context) error {
	return setActive(ctx, r.active, len(r.members) > 0, RoomActiveYes, RoomActiveNo)
}
