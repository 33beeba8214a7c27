package entities

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/explorers/internal/auth"
	"github.com/jason-s-yu/explorers/internal/cache"
	"github.com/jason-s-yu/explorers/internal/catalog"
	"github.com/jason-s-yu/explorers/internal/database"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/jason-s-yu/explorers/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	recs []models.EntityEventRecord
}

func (s *recordingSink) Record(rec models.EntityEventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
}

func (s *recordingSink) all() []models.EntityEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EntityEventRecord(nil), s.recs...)
}

type harness struct {
	mgr      *Manager
	store    *database.Memory
	chat     *cache.MemoryChat
	provider *auth.Provider
	issuer   *auth.Issuer
	sink     *recordingSink
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	issuer, err := auth.NewIssuer(nil, time.Minute, time.Hour)
	require.NoError(t, err)
	store := database.NewMemoryStore()
	params := auth.Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}
	provider := auth.NewProvider(store, issuer, params, logger)

	h := &harness{
		store:    store,
		chat:     cache.NewMemoryChat(),
		provider: provider,
		issuer:   issuer,
		sink:     &recordingSink{},
	}
	cfg := Config{
		Auth:   provider,
		Rooms:  store,
		Chat:   h.chat,
		Events: h.sink,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.mgr = NewManager(cfg)
	t.Cleanup(h.mgr.Close)
	return h
}

func (h *harness) connect(t *testing.T, location string) *Connection {
	t.Helper()
	c, err := h.mgr.NewConnection(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Send(context.Background(), models.Command{
		Type:            models.CmdInitialize,
		InitialLocation: location,
	}))
	return c
}

func TestInitializeAnonymousRoutesHome(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "https://explorers.club/")

	assert.Equal(t, InitTrue, c.States()[RegionInitialized])
	assert.Equal(t, string(models.RouteHome), c.Route())
	require.NotEmpty(t, c.UserID())

	s, ok := h.mgr.SessionByUserID(c.UserID())
	require.True(t, ok)
	assert.Equal(t, ActiveTrue, s.States()[RegionActive])
	assert.Equal(t, 1, s.ConnectionCount())

	assert.Equal(t, s.ID(), c.props.SessionID)
	assert.NotEmpty(t, c.props.DeviceID)
	require.NotNil(t, c.props.AuthTokens)
	assert.Equal(t, h.mgr.instanceID, c.props.InstanceID)
}

func TestInitializeWithTokensResumesSession(t *testing.T) {
	h := newHarness(t)
	first := h.connect(t, "/")
	tokens := *first.props.AuthTokens

	second, err := h.mgr.NewConnection(context.Background())
	require.NoError(t, err)
	require.NoError(t, second.Send(context.Background(), models.Command{
		Type:            models.CmdInitialize,
		InitialLocation: "/login",
		DeviceID:        "device-1",
		AuthTokens:      &tokens,
	}))

	assert.Equal(t, first.UserID(), second.UserID())
	assert.Equal(t, first.props.SessionID, second.props.SessionID)
	assert.Equal(t, "device-1", second.props.DeviceID)
	assert.Equal(t, string(models.RouteLogin), second.Route())

	s, _ := h.mgr.SessionByUserID(first.UserID())
	assert.Equal(t, 2, s.ConnectionCount())
}

func TestInitializeBadTokensIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	c, err := h.mgr.NewConnection(context.Background())
	require.NoError(t, err)

	err = c.Send(context.Background(), models.Command{
		Type:            models.CmdInitialize,
		InitialLocation: "/",
		AuthTokens:      &models.AuthTokens{AccessToken: "nope", RefreshToken: "nope"},
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, InitError, c.States()[RegionInitialized])
	assert.Equal(t, RouteUninitialized, c.Route())

	// Error permits a retry.
	require.NoError(t, c.Send(context.Background(), models.Command{
		Type:            models.CmdInitialize,
		InitialLocation: "/",
	}))
	assert.Equal(t, InitTrue, c.States()[RegionInitialized])
	assert.ErrorIs(t, c.Send(context.Background(), models.Command{
		Type:            models.CmdInitialize,
		InitialLocation: "/",
	}), ErrAlreadyInitialized)
}

func TestUnknownLocationIsNotFound(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "/a/b/c")
	assert.Equal(t, string(models.RouteNotFound), c.Route())

	require.NoError(t, c.Send(context.Background(), models.Command{
		Type:  models.CmdNavigate,
		Route: &models.RouteProps{Name: models.RouteHome},
	}))
	assert.Equal(t, string(models.RouteHome), c.Route())
}

func TestNavigateRequiresInitialize(t *testing.T) {
	h := newHarness(t)
	c, err := h.mgr.NewConnection(context.Background())
	require.NoError(t, err)
	err = c.Send(context.Background(), models.Command{
		Type:  models.CmdNavigate,
		Route: &models.RouteProps{Name: models.RouteHome},
	})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestNavigateIntoAndBetweenRooms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.connect(t, "/game-night")

	assert.Equal(t, string(models.RouteRoom), c.Route())
	assert.Equal(t, "game-night", c.props.CurrentRoomSlug)
	room, ok := h.mgr.RoomBySlug("game-night")
	require.True(t, ok)
	assert.Equal(t, c.UserID(), room.OwnerHostID())
	assert.True(t, room.HasConnection(c.ID()))
	assert.Equal(t, RoomActiveYes, room.States()[RegionActive])
	require.NotNil(t, c.props.ChatService)
	assert.Equal(t, services.ChatLoaded, c.props.ChatService.Value)

	rec, err := h.store.GetRoomBySlug(ctx, "game-night")
	require.NoError(t, err)
	assert.Equal(t, c.UserID(), rec.OwnerHostID)

	// Room to Room re-enters: leave the old one, connect the new one.
	require.NoError(t, c.Send(ctx, models.Command{
		Type:  models.CmdNavigate,
		Route: &models.RouteProps{Name: models.RouteRoom, RoomSlug: "after-party"},
	}))
	assert.Equal(t, "after-party", c.props.CurrentRoomSlug)
	assert.False(t, room.HasConnection(c.ID()))
	assert.Equal(t, RoomActiveNo, room.States()[RegionActive])
	assert.Equal(t, []string{"game-night", "after-party"}, c.props.ConnectedRoomSlugs)
	assert.Equal(t, []string{"after-party"}, c.props.ActiveRoomSlugs)

	require.NoError(t, c.Send(ctx, models.Command{
		Type:  models.CmdNavigate,
		Route: &models.RouteProps{Name: models.RouteHome},
	}))
	assert.Empty(t, c.props.CurrentRoomSlug)
	assert.Nil(t, c.props.ChatService)
	assert.Empty(t, c.props.ActiveRoomSlugs)
	assert.Nil(t, c.Room())
}

func TestNewRoomFlowCreatesRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.connect(t, "/new")
	require.Equal(t, string(models.RouteNewRoom), c.Route())
	require.NotNil(t, c.props.NewRoomService)
	assert.Equal(t, services.NewRoomSelectGame, c.props.NewRoomService.Value)

	require.NoError(t, c.Send(ctx, models.Command{Type: models.CmdSelectGame, GameID: models.GameCodebreakers}))
	require.NoError(t, c.Send(ctx, models.Command{Type: models.CmdSubmitName, Name: "fun-room"}))
	assert.Equal(t, services.NewRoomConfigure, c.props.NewRoomService.Value)
	require.NoError(t, c.Send(ctx, models.Command{
		Type: models.CmdConfigureGame,
		Configuration: &models.GameConfiguration{
			GameID: models.GameCodebreakers,
			Data:   models.GameConfigurationData{NumPlayers: 4},
		},
	}))

	assert.Equal(t, string(models.RouteRoom), c.Route())
	assert.Equal(t, "fun-room", c.props.CurrentRoomSlug)
	assert.Nil(t, c.props.NewRoomService)

	room, ok := h.mgr.RoomBySlug("fun-room")
	require.True(t, ok)
	props := room.Props()
	assert.Equal(t, models.GameCodebreakers, props.GameID)
	assert.Equal(t, c.UserID(), props.OwnerHostID)
	assert.Equal(t, []string{c.ID()}, props.ConnectionEntityIDs)
}

func TestNewRoomFlowRejectsTakenSlug(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "/taken")

	c := h.connect(t, "/new")
	require.NoError(t, c.Send(ctx, models.Command{Type: models.CmdSelectGame, GameID: models.GameBananaTraders}))
	err := c.Send(ctx, models.Command{Type: models.CmdSubmitName, Name: "taken"})
	require.ErrorIs(t, err, services.ErrSlugTaken)
	assert.Equal(t, services.NewRoomEnterName, c.props.NewRoomService.Value)
}

func TestNewRoomCommandsOutsideFlow(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "/")
	err := c.Send(context.Background(), models.Command{Type: models.CmdSelectGame, GameID: models.GameCodebreakers})
	assert.ErrorIs(t, err, ErrNoNewRoomFlow)
}

func TestChatMessagesReachRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.connect(t, "/chatty")

	require.NoError(t, c.Send(ctx, models.Command{Type: models.CmdTyping}))
	require.NoError(t, c.Send(ctx, models.Command{Type: models.CmdSend, Message: "hello"}))

	room, _ := h.mgr.RoomBySlug("chatty")
	msgs := room.Props().RecentMessages
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Message)
	assert.Equal(t, c.ID(), msgs[0].SenderEntityID)
	assert.Equal(t, models.MessageTypePlain, msgs[0].Type)

	stored, err := h.chat.RecentMessages(ctx, "chatty", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	for i := 0; i < maxRecentMessages+5; i++ {
		require.NoError(t, c.Send(ctx, models.Command{Type: models.CmdSend, Message: "spam"}))
	}
	assert.Len(t, room.Props().RecentMessages, maxRecentMessages)

	home := h.connect(t, "/")
	assert.ErrorIs(t, home.Send(ctx, models.Command{Type: models.CmdSend, Message: "hi"}), ErrNotInRoom)
}

func TestHeartbeat(t *testing.T) {
	h := newHarness(t)
	c, err := h.mgr.NewConnection(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Send(context.Background(), models.Command{Type: models.CmdHeartbeat}))
	assert.NotNil(t, c.props.LastHeartbeatAt)
}

func TestGameLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conns := make([]*Connection, 4)
	for i := range conns {
		conns[i] = h.connect(t, "/arena")
	}
	room, ok := h.mgr.RoomBySlug("arena")
	require.True(t, ok)
	owner := conns[0]

	require.ErrorIs(t, room.Send(ctx, models.Command{
		Type:               models.CmdStart,
		ConnectionEntityID: owner.ID(),
	}), ErrNoGameSelected)

	require.ErrorIs(t, room.Send(ctx, models.Command{
		Type:               models.CmdConfigureGame,
		ConnectionEntityID: conns[1].ID(),
		Configuration: &models.GameConfiguration{
			GameID: models.GameLittleVigilante,
			Data:   models.GameConfigurationData{NumPlayers: 4},
		},
	}), ErrNotOwner)
	require.NoError(t, room.Send(ctx, models.Command{
		Type:               models.CmdConfigureGame,
		ConnectionEntityID: owner.ID(),
		Configuration: &models.GameConfiguration{
			GameID: models.GameLittleVigilante,
			Data:   models.GameConfigurationData{NumPlayers: 4},
		},
	}))

	for i, c := range conns[:3] {
		require.NoError(t, room.Send(ctx, models.Command{Type: models.CmdJoin, ConnectionEntityID: c.ID()}), "join %d", i)
	}
	assert.Error(t, room.Send(ctx, models.Command{Type: models.CmdStart, ConnectionEntityID: owner.ID()}))
	assert.Equal(t, SceneLobby, room.Scene())

	require.NoError(t, room.Send(ctx, models.Command{Type: models.CmdJoin, ConnectionEntityID: conns[3].ID()}))
	assert.ErrorIs(t, room.Send(ctx, models.Command{Type: models.CmdStart, ConnectionEntityID: conns[1].ID()}), ErrNotOwner)
	require.NoError(t, room.Send(ctx, models.Command{Type: models.CmdStart, ConnectionEntityID: owner.ID()}))

	assert.Equal(t, SceneGame, room.Scene())
	games := h.mgr.World().WithSchema(models.GameLittleVigilante.GameSchema())
	require.Len(t, games, 1)
	game := games[0].(*Game)
	assert.True(t, game.Active())
	assert.Equal(t, game.ID(), room.Props().GameEntityID)
	players := h.mgr.World().WithSchema(models.GameLittleVigilante.PlayerSchema())
	require.Len(t, players, 4)
	for _, p := range players {
		assert.True(t, p.(*Player).Active())
	}

	require.NoError(t, owner.Send(ctx, models.Command{Type: models.CmdSend, Message: "gl hf"}))
	assert.Len(t, game.RecentMessages(), 1)

	outsider := h.connect(t, "/arena")
	assert.ErrorIs(t, room.Send(ctx, models.Command{Type: models.CmdJoin, ConnectionEntityID: outsider.ID()}), ErrGameInProgress)
	require.NoError(t, h.mgr.Disconnect(ctx, outsider))

	for _, c := range conns[:3] {
		require.NoError(t, h.mgr.Disconnect(ctx, c))
	}
	assert.Equal(t, SceneGame, room.Scene())
	assert.True(t, game.Active())
	assert.Equal(t, RoomActiveYes, room.States()[RegionActive])
	active := 0
	for _, p := range h.mgr.World().WithSchema(models.GameLittleVigilante.PlayerSchema()) {
		if p.(*Player).Active() {
			active++
		}
	}
	assert.Equal(t, 1, active)

	require.NoError(t, h.mgr.Disconnect(ctx, conns[3]))
	assert.Equal(t, SceneLobby, room.Scene())
	assert.False(t, game.Active())
	assert.Empty(t, h.mgr.World().WithSchema(models.GameLittleVigilante.GameSchema()))
	assert.Empty(t, h.mgr.World().WithSchema(models.GameLittleVigilante.PlayerSchema()))
	props := room.Props()
	assert.Empty(t, props.GameEntityID)
	assert.Empty(t, props.PlayerUserIDs)
	assert.Equal(t, RoomActiveNo, room.States()[RegionActive])
}

func TestReconnectResumesPlayer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conns := make([]*Connection, 4)
	for i := range conns {
		conns[i] = h.connect(t, "/rejoin")
	}
	room, _ := h.mgr.RoomBySlug("rejoin")
	require.NoError(t, room.Send(ctx, models.Command{
		Type:               models.CmdConfigureGame,
		ConnectionEntityID: conns[0].ID(),
		Configuration: &models.GameConfiguration{
			GameID: models.GameBananaTraders,
			Data:   models.GameConfigurationData{NumPlayers: 4},
		},
	}))
	for _, c := range conns {
		require.NoError(t, room.Send(ctx, models.Command{Type: models.CmdJoin, ConnectionEntityID: c.ID()}))
	}
	require.NoError(t, room.Send(ctx, models.Command{Type: models.CmdStart, ConnectionEntityID: conns[0].ID()}))

	leaver := conns[2]
	tokens := *leaver.props.AuthTokens
	require.NoError(t, h.mgr.Disconnect(ctx, leaver))

	var player *Player
	for _, e := range h.mgr.World().WithSchema(models.GameBananaTraders.PlayerSchema()) {
		if p := e.(*Player); p.UserID() == leaver.UserID() {
			player = p
		}
	}
	require.NotNil(t, player)
	assert.False(t, player.Active())

	back, err := h.mgr.NewConnection(ctx)
	require.NoError(t, err)
	require.NoError(t, back.Send(ctx, models.Command{
		Type:            models.CmdInitialize,
		InitialLocation: "/rejoin",
		AuthTokens:      &tokens,
	}))
	assert.True(t, player.Active())
}

func TestLobbyLeaveDropsPlayer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.connect(t, "/lobby")
	room, _ := h.mgr.RoomBySlug("lobby")

	require.NoError(t, room.Send(ctx, models.Command{Type: models.CmdJoin, ConnectionEntityID: c.ID()}))
	require.NoError(t, room.Send(ctx, models.Command{Type: models.CmdJoin, ConnectionEntityID: c.ID()}))
	assert.Equal(t, []string{c.UserID()}, room.Props().PlayerUserIDs)

	require.NoError(t, c.Send(ctx, models.Command{
		Type:  models.CmdNavigate,
		Route: &models.RouteProps{Name: models.RouteHome},
	}))
	assert.Empty(t, room.Props().PlayerUserIDs)
	assert.ErrorIs(t, room.Send(ctx, models.Command{Type: models.CmdJoin, ConnectionEntityID: c.ID()}), ErrNotConnected)
}

func TestDisconnectRemovesConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.connect(t, "/bye")
	userID := c.UserID()

	require.NoError(t, h.mgr.Disconnect(ctx, c))
	_, ok := h.mgr.Connection(c.ID())
	assert.False(t, ok)

	s, ok := h.mgr.SessionByUserID(userID)
	require.True(t, ok)
	assert.Equal(t, ActiveFalse, s.States()[RegionActive])
	room, _ := h.mgr.RoomBySlug("bye")
	assert.False(t, room.HasConnection(c.ID()))
}

func TestCommandOutcomesReachSink(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "/")
	_ = c.Send(context.Background(), models.Command{Type: models.CmdSelectGame, GameID: models.GameCodebreakers})

	var complete, failed int
	for _, rec := range h.sink.all() {
		if rec.EntityID != c.ID() {
			continue
		}
		switch rec.EventType {
		case "SEND_COMPLETE":
			complete++
			assert.Equal(t, models.CmdInitialize, rec.Command)
		case "SEND_ERROR":
			failed++
			assert.Equal(t, models.CmdSelectGame, rec.Command)
			assert.NotEmpty(t, rec.Error)
		}
	}
	assert.Equal(t, 1, complete)
	assert.Equal(t, 1, failed)
}

type failingRooms struct{ err error }

func (f failingRooms) CreateRoom(context.Context, *models.RoomRecord) error { return f.err }

func (f failingRooms) GetRoomBySlug(context.Context, string) (*models.RoomRecord, error) {
	return nil, f.err
}

func TestInitialRoomLookupFailureRoutesNotFound(t *testing.T) {
	down := errors.New("database down")
	h := newHarness(t, func(cfg *Config) { cfg.Rooms = failingRooms{err: down} })
	ctx := context.Background()

	c, err := h.mgr.NewConnection(ctx)
	require.NoError(t, err)
	err = c.Send(ctx, models.Command{Type: models.CmdInitialize, InitialLocation: "/unreachable"})
	require.ErrorIs(t, err, down)

	assert.Equal(t, InitTrue, c.States()[RegionInitialized])
	assert.Equal(t, string(models.RouteNotFound), c.Route())
	assert.Nil(t, c.Room())

	require.NoError(t, c.Send(ctx, models.Command{
		Type:  models.CmdNavigate,
		Route: &models.RouteProps{Name: models.RouteHome},
	}))
	assert.Equal(t, string(models.RouteHome), c.Route())
}

type idleHost struct{}

func (idleHost) spawnGame(context.Context, *Room, models.GameID, []string) (*Game, []*Player, error) {
	return nil, nil, errors.New("not used")
}

func (idleHost) despawn(...string) {}

func TestLeaveKeepsActiveInSyncWhenPlayerLeaveFails(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	room := newRoom("room-1", models.RoomRecord{Slug: "stuck", OwnerHostID: "user-1"}, idleHost{}, catalog.Default(), logger)

	require.NoError(t, room.Send(ctx, models.Command{Type: models.CmdConnect, ConnectionEntityID: "conn-1", UserID: "user-1"}))
	require.Equal(t, RoomActiveYes, room.States()[RegionActive])

	stuck := errors.New("player stuck")
	player := newPlayer("player-1", models.GameCodebreakers, "game-1", "user-1")
	player.Handle(func(context.Context, models.Command) error { return stuck })
	require.NoError(t, room.Mutate(func() error {
		room.players["user-1"] = player
		if err := room.scene.Fire(ctx, string(models.CmdStart)); err != nil {
			return err
		}
		return room.scene.Fire(ctx, triggerLoaded)
	}))

	err := room.Send(ctx, models.Command{Type: models.CmdLeave, ConnectionEntityID: "conn-1"})
	require.ErrorIs(t, err, stuck)
	assert.False(t, room.HasConnection("conn-1"))
	assert.Equal(t, RoomActiveNo, room.States()[RegionActive])
}

func TestRoomCommandsRequireConnection(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "/strict")
	room, _ := h.mgr.RoomBySlug("strict")
	assert.ErrorIs(t, room.Send(context.Background(), models.Command{Type: models.CmdJoin}), models.ErrMissingField)
}

func TestPlayerBoundsAcrossConfiguration(t *testing.T) {
	cat, err := catalog.Parse([]byte(`games:
  - id: codebreakers
    name: Codebreakers
    minPlayers: 2
    maxPlayers: 3
  - id: banana_traders
    name: Banana Traders
    minPlayers: 1
    maxPlayers: 2
`))
	require.NoError(t, err)
	h := newHarness(t, func(cfg *Config) { cfg.Catalog = cat })
	ctx := context.Background()

	conns := make([]*Connection, 4)
	for i := range conns {
		conns[i] = h.connect(t, "/seats")
	}
	room, _ := h.mgr.RoomBySlug("seats")
	owner := conns[0]

	for _, c := range conns[:3] {
		require.NoError(t, room.Send(ctx, models.Command{Type: models.CmdJoin, ConnectionEntityID: c.ID()}))
	}
	assert.ErrorIs(t, room.Send(ctx, models.Command{Type: models.CmdJoin, ConnectionEntityID: conns[3].ID()}), ErrRoomFull)

	configure := func(id models.GameID, n int) error {
		return room.Send(ctx, models.Command{
			Type:               models.CmdConfigureGame,
			ConnectionEntityID: owner.ID(),
			Configuration: &models.GameConfiguration{
				GameID: id,
				Data:   models.GameConfigurationData{NumPlayers: n},
			},
		})
	}
	assert.ErrorIs(t, configure(models.GameBananaTraders, 2), ErrRoomFull)
	assert.Empty(t, room.Props().GameID)

	require.NoError(t, configure(models.GameCodebreakers, 3))
	require.NoError(t, room.Send(ctx, models.Command{Type: models.CmdStart, ConnectionEntityID: owner.ID()}))
	assert.Equal(t, SceneGame, room.Scene())
}

func TestChatHistorySeedsRoomAndTypingIsMirrored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, text := range []string{"before", "the", "restart"} {
		require.NoError(t, h.chat.AppendMessage(ctx, "reborn", models.Message{
			ID:      models.NewSnowflakeID(),
			Type:    models.MessageTypePlain,
			Message: text,
		}))
	}

	c := h.connect(t, "/reborn")
	room, ok := h.mgr.RoomBySlug("reborn")
	require.True(t, ok)
	msgs := room.Props().RecentMessages
	require.Len(t, msgs, 3)
	assert.Equal(t, "restart", msgs[2].Message)

	// A second connection must not duplicate the seeded history.
	h.connect(t, "/reborn")
	assert.Len(t, room.Props().RecentMessages, 3)

	require.Nil(t, c.props.ChatService.Context.TypingAt)
	require.NoError(t, c.Send(ctx, models.Command{Type: models.CmdTyping}))
	require.NotNil(t, c.props.ChatService.Context.TypingAt)
	require.NoError(t, c.Send(ctx, models.Command{Type: models.CmdSend, Message: "back"}))
	assert.Nil(t, c.props.ChatService.Context.TypingAt)
	assert.Len(t, room.Props().RecentMessages, 4)
}
