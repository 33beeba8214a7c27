package entities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/explorers/internal/entity"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/jason-s-yu/explorers/internal/services"
	"github.com/qmuntal/stateless"
)

// Connection regions and their states.
const (
	RegionInitialized  = "Initialized"
	InitFalse          = "False"
	InitInitializing   = "Initializing"
	InitTrue           = "True"
	InitError          = "Error"
	RegionRoute        = "Route"
	RouteUninitialized = "Uninitialized"

	triggerInitialized = "INITIALIZED"
	triggerInitFailed  = "INITIALIZE_FAILED"
	triggerRoomCreated = "ROOM_CREATED"
	triggerInitialize  = string(models.CmdInitialize)
	triggerNavigate    = string(models.CmdNavigate)
)

var navigable = []models.RouteName{
	models.RouteHome, models.RouteLogin, models.RouteNewRoom, models.RouteRoom,
}

// routeTarget is the argument carried by every Route transition.
type routeTarget struct {
	name models.RouteName
	slug string
	room *Room
}

func targetArg(args []any) (routeTarget, bool) {
	for _, a := range args {
		if t, ok := a.(routeTarget); ok {
			return t, true
		}
	}
	return routeTarget{}, false
}

func routeIs(name models.RouteName) stateless.GuardFunc {
	return func(_ context.Context, args ...any) bool {
		t, ok := targetArg(args)
		return ok && t.name == name
	}
}

// Connection is one client transport. It authenticates, follows the client
// around its routes and joins the room the client is looking at.
type Connection struct {
	*entity.Base
	props       models.ConnectionProps
	initialized *entity.Region
	route       *entity.Region

	mgr     *Manager
	userID  string
	session *Session
	room    *Room
	newRoom *services.NewRoom
	chat    *services.Chat
	now     func() time.Time
}

func newConnection(id string, mgr *Manager) *Connection {
	c := &Connection{
		props: models.ConnectionProps{
			ConnectedRoomSlugs: []string{},
			ActiveRoomSlugs:    []string{},
			InstanceID:         mgr.instanceID,
		},
		initialized: entity.NewRegion(RegionInitialized, InitFalse),
		route:       entity.NewRegion(RegionRoute, RouteUninitialized),
		mgr:         mgr,
		now:         time.Now,
	}

	c.initialized.Configure(InitFalse).Permit(triggerInitialize, InitInitializing)
	c.initialized.Configure(InitError).Permit(triggerInitialize, InitInitializing)
	c.initialized.Configure(InitInitializing).
		Permit(triggerInitialized, InitTrue).
		Permit(triggerInitFailed, InitError)

	c.configureRoutes()

	c.Base = entity.NewBase(id, models.SchemaConnection, func() any { return &c.props }, c.initialized, c.route)
	c.Handle(c.handle)
	return c
}

func (c *Connection) configureRoutes() {
	uninit := c.route.Configure(RouteUninitialized)
	for _, name := range navigable {
		uninit.Permit(triggerInitialize, string(name), routeIs(name))
	}
	uninit.Permit(triggerInitialize, string(models.RouteNotFound), routeIs(models.RouteNotFound))

	for _, from := range append(navigable, models.RouteNotFound) {
		cfg := c.route.Configure(string(from))
		for _, to := range navigable {
			if to == from {
				cfg.PermitReentry(triggerNavigate, routeIs(to))
				continue
			}
			cfg.Permit(triggerNavigate, string(to), routeIs(to))
		}
	}

	c.route.Configure(string(models.RouteNewRoom)).
		Permit(triggerRoomCreated, string(models.RouteRoom)).
		OnEntry(func(context.Context, ...any) error {
			c.newRoom = services.StartNewRoom(c.mgr.catalog, c.mgr.slugTaken)
			c.props.NewRoomService = c.newRoom.State()
			return nil
		}).
		OnExit(func(context.Context, ...any) error {
			c.newRoom = nil
			c.props.NewRoomService = nil
			return nil
		})

	c.route.Configure(string(models.RouteRoom)).
		OnEntry(func(ctx context.Context, args ...any) error {
			t, _ := targetArg(args)
			return c.enterRoom(ctx, t)
		}).
		OnExit(func(ctx context.Context, _ ...any) error {
			return c.exitRoom(ctx)
		})
}

// UserID is the user the connection authenticated as, empty before INITIALIZE.
func (c *Connection) UserID() string {
	var id string
	c.View(func() { id = c.userID })
	return id
}

// Room is the room the connection is currently in, if any.
func (c *Connection) Room() *Room {
	var r *Room
	c.View(func() { r = c.room })
	return r
}

// Route is the current state of the Route region.
func (c *Connection) Route() string {
	var s string
	c.View(func() { s = c.route.Current() })
	return s
}

func (c *Connection) handle(ctx context.Context, cmd models.Command) error {
	switch cmd.Type {
	case models.CmdInitialize:
		return c.initialize(ctx, cmd)
	case models.CmdHeartbeat:
		now := c.now().UTC()
		c.props.LastHeartbeatAt = &now
		return nil
	}

	if !c.initialized.Is(InitTrue) {
		return ErrNotInitialized
	}
	switch {
	case cmd.Type == models.CmdNavigate:
		return c.navigate(ctx, *cmd.Route)
	case services.Handles(cmd):
		return c.forwardNewRoom(ctx, cmd)
	case cmd.Type == models.CmdTyping, cmd.Type == models.CmdSend:
		return c.forwardChat(ctx, cmd)
	}
	return fmt.Errorf("%w: connection %s", entity.ErrUnhandledCommand, cmd.Type)
}

func (c *Connection) initialize(ctx context.Context, cmd models.Command) error {
	if c.initialized.Is(InitTrue) {
		return ErrAlreadyInitialized
	}
	if err := c.initialized.Fire(ctx, triggerInitialize); err != nil {
		return err
	}
	if err := c.authenticate(ctx, cmd); err != nil {
		if ferr := c.initialized.Fire(ctx, triggerInitFailed); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err
	}
	if err := c.initialized.Fire(ctx, triggerInitialized); err != nil {
		return err
	}

	if !c.route.Is(RouteUninitialized) {
		return nil
	}
	target := routeTarget{name: models.RouteNotFound}
	if loc, ok := models.ParseLocation(cmd.InitialLocation); ok {
		target = routeTarget{name: loc.Name, slug: loc.RoomSlug}
	}
	if err := c.resolveRoom(ctx, &target); err != nil {
		c.mgr.logger.WithError(err).WithField("location", cmd.InitialLocation).Warn("initial room unavailable, routing to NotFound")
		ferr := c.route.Fire(ctx, triggerInitialize, routeTarget{name: models.RouteNotFound})
		return errors.Join(fmt.Errorf("resolve room %q: %w", target.slug, err), ferr)
	}
	return c.route.Fire(ctx, triggerInitialize, target)
}

func (c *Connection) authenticate(ctx context.Context, cmd models.Command) error {
	var (
		userID string
		tokens models.AuthTokens
		err    error
	)
	if cmd.AuthTokens != nil {
		userID, tokens, err = c.mgr.auth.SetSession(ctx, *cmd.AuthTokens)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	} else {
		userID, tokens, err = c.mgr.auth.SignUpAnonymous(ctx)
		if err != nil {
			return fmt.Errorf("anonymous sign up: %w", err)
		}
	}

	session, err := c.mgr.sessionFor(ctx, userID)
	if err != nil {
		return err
	}
	if err := session.Send(ctx, models.Command{Type: models.CmdReconnect, ConnectionEntityID: c.ID()}); err != nil {
		return fmt.Errorf("attach session: %w", err)
	}

	c.userID = userID
	c.session = session
	c.props.SessionID = session.ID()
	c.props.AuthTokens = &tokens
	c.props.DeviceID = cmd.DeviceID
	if c.props.DeviceID == "" {
		c.props.DeviceID = models.NewSnowflakeID()
	}
	return nil
}

func (c *Connection) navigate(ctx context.Context, route models.RouteProps) error {
	target := routeTarget{name: route.Name, slug: route.RoomSlug}
	if err := c.resolveRoom(ctx, &target); err != nil {
		return err
	}
	return c.route.Fire(ctx, triggerNavigate, target)
}

// resolveRoom finds or creates the room a Room target points at, so that
// entering the Room state cannot fail on lookup.
func (c *Connection) resolveRoom(ctx context.Context, t *routeTarget) error {
	if t.name != models.RouteRoom {
		return nil
	}
	room, err := c.mgr.roomFor(ctx, t.slug, c.userID)
	if err != nil {
		return err
	}
	t.room = room
	return nil
}

func (c *Connection) forwardNewRoom(ctx context.Context, cmd models.Command) error {
	if c.newRoom == nil {
		return ErrNoNewRoomFlow
	}
	err := c.newRoom.Handle(ctx, cmd)
	c.props.NewRoomService = c.newRoom.State()
	if err != nil || !c.newRoom.Done() {
		return err
	}

	result := c.newRoom.Result()
	room, err := c.mgr.createRoom(ctx, result, c.userID)
	if errors.Is(err, services.ErrSlugTaken) {
		if rerr := c.newRoom.Reject(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
		c.props.NewRoomService = c.newRoom.State()
		return err
	}
	if err != nil {
		return err
	}
	return c.route.Fire(ctx, triggerRoomCreated, routeTarget{
		name: models.RouteRoom,
		slug: room.Slug(),
		room: room,
	})
}

func (c *Connection) forwardChat(ctx context.Context, cmd models.Command) error {
	if c.chat == nil || c.room == nil {
		return ErrNotInRoom
	}
	msg, err := c.chat.Handle(ctx, c.ID(), cmd)
	c.props.ChatService = c.chat.State()
	if err != nil || msg == nil {
		return err
	}
	return c.room.AppendMessage(*msg, c.userID)
}

func (c *Connection) enterRoom(ctx context.Context, t routeTarget) error {
	if t.room == nil {
		return fmt.Errorf("%w: no room for %q", ErrNotInRoom, t.slug)
	}
	err := t.room.Send(ctx, models.Command{
		Type:               models.CmdConnect,
		ConnectionEntityID: c.ID(),
		UserID:             c.userID,
	})
	if err != nil {
		return fmt.Errorf("connect to room %s: %w", t.slug, err)
	}

	c.room = t.room
	c.props.CurrentRoomSlug = t.slug
	c.props.ConnectedRoomSlugs = addUnique(c.props.ConnectedRoomSlugs, t.slug)
	c.props.ActiveRoomSlugs = addUnique(c.props.ActiveRoomSlugs, t.slug)

	c.chat = services.StartChat(t.slug, c.mgr.chat, c.mgr.chatHistory)
	if err := c.chat.Load(ctx); err != nil {
		c.mgr.logger.WithError(err).WithField("roomSlug", t.slug).Warn("chat history unavailable")
	} else if err := t.room.SeedMessages(c.chat.History()); err != nil {
		c.mgr.logger.WithError(err).WithField("roomSlug", t.slug).Warn("failed to seed room messages")
	}
	c.props.ChatService = c.chat.State()
	return nil
}

func (c *Connection) exitRoom(ctx context.Context) error {
	room := c.room
	c.room = nil
	c.chat = nil
	c.props.ChatService = nil
	c.props.CurrentRoomSlug = ""
	if room == nil {
		return nil
	}
	c.props.ActiveRoomSlugs = without(c.props.ActiveRoomSlugs, room.Slug())
	return room.Send(ctx, models.Command{
		Type:               models.CmdLeave,
		ConnectionEntityID: c.ID(),
		UserID:             c.userID,
	})
}

// close detaches the connection from its room and session once the
// transport is gone.
func (c *Connection) close(ctx context.Context) error {
	return c.Mutate(func() error {
		errs := []error{c.exitRoom(ctx)}
		if c.session != nil {
			errs = append(errs, c.session.Send(ctx, models.Command{
				Type:               models.CmdDisconnect,
				ConnectionEntityID: c.ID(),
			}))
			c.session = nil
		}
		return errors.Join(errs...)
	})
}
