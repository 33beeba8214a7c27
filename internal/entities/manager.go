// Package entities declares the connection, session, room and game entities
// and the manager that creates them inside a world.
package entities

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/explorers/internal/catalog"
	"github.com/jason-s-yu/explorers/internal/database"
	"github.com/jason-s-yu/explorers/internal/entity"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/jason-s-yu/explorers/internal/services"
	"github.com/jason-s-yu/explorers/internal/world"
	"github.com/sirupsen/logrus"
)

// DefaultChatHistory is how many messages a chat loads when a connection enters a room.
const DefaultChatHistory = 50

// Authenticator resolves the user behind a connection.
type Authenticator interface {
	SetSession(ctx context.Context, tokens models.AuthTokens) (string, models.AuthTokens, error)
	SignUpAnonymous(ctx context.Context) (string, models.AuthTokens, error)
}

// RoomStore persists rooms so their slug and owner survive a restart.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *models.RoomRecord) error
	GetRoomBySlug(ctx context.Context, slug string) (*models.RoomRecord, error)
}

// EventSink receives every command outcome for the historian.
type EventSink interface {
	Record(rec models.EntityEventRecord)
}

// Config wires a Manager to its collaborators.
type Config struct {
	World       *world.World
	Auth        Authenticator
	Rooms       RoomStore
	Chat        services.ChatStore
	Catalog     *catalog.Catalog
	Events      EventSink // optional
	Logger      *logrus.Logger
	InstanceID  string
	ChatHistory int
}

// Manager creates entities, keeps the lookup indexes and tears connections down.
type Manager struct {
	world       *world.World
	auth        Authenticator
	rooms       RoomStore
	chat        services.ChatStore
	catalog     *catalog.Catalog
	events      EventSink
	logger      *logrus.Logger
	instanceID  string
	chatHistory int

	sessionsByUserID *world.Index[string]
	roomsBySlug      *world.Index[string]

	sessionMu sync.Mutex
	roomMu    sync.Mutex
}

// NewManager builds a manager and its indexes over cfg.World.
func NewManager(cfg Config) *Manager {
	if cfg.World == nil {
		cfg.World = world.New()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.ChatHistory <= 0 {
		cfg.ChatHistory = DefaultChatHistory
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = models.NewSnowflakeID()
	}

	m := &Manager{
		world:       cfg.World,
		auth:        cfg.Auth,
		rooms:       cfg.Rooms,
		chat:        cfg.Chat,
		catalog:     cfg.Catalog,
		events:      cfg.Events,
		logger:      cfg.Logger,
		instanceID:  cfg.InstanceID,
		chatHistory: cfg.ChatHistory,
	}
	m.sessionsByUserID = world.NewSchemaIndex(m.world, models.SchemaSession, func(e entity.Entity) (string, bool) {
		s, ok := e.(*Session)
		if !ok {
			return "", false
		}
		return s.UserID(), true
	})
	m.roomsBySlug = world.NewSchemaIndex(m.world, models.SchemaRoom, func(e entity.Entity) (string, bool) {
		r, ok := e.(*Room)
		if !ok {
			return "", false
		}
		return r.Slug(), true
	})
	return m
}

func (m *Manager) World() *world.World       { return m.world }
func (m *Manager) Catalog() *catalog.Catalog { return m.catalog }
func (m *Manager) Logger() *logrus.Logger    { return m.logger }

// NewConnection creates a connection entity for a freshly accepted transport.
func (m *Manager) NewConnection(ctx context.Context) (*Connection, error) {
	c := newConnection(models.NewSnowflakeID(), m)
	if err := m.add(c); err != nil {
		return nil, err
	}
	m.logger.WithFields(logrus.Fields{
		"connectionEntityId": c.ID(),
		"instanceId":         m.instanceID,
	}).Debug("connection entity created")
	return c, nil
}

// Disconnect leaves the connection's room, detaches it from its session and
// removes it from the world.
func (m *Manager) Disconnect(ctx context.Context, c *Connection) error {
	err := c.close(ctx)
	if rerr := m.world.Remove(c.ID()); rerr != nil {
		err = errors.Join(err, rerr)
	}
	return err
}

// Connection returns the live connection entity with id.
func (m *Manager) Connection(id string) (*Connection, bool) {
	e, ok := m.world.Get(id)
	if !ok {
		return nil, false
	}
	c, ok := e.(*Connection)
	return c, ok
}

// RoomBySlug returns the live room entity for slug.
func (m *Manager) RoomBySlug(slug string) (*Room, bool) {
	e, ok := m.roomsBySlug.First(slug)
	if !ok {
		return nil, false
	}
	r, ok := e.(*Room)
	return r, ok
}

// SessionByUserID returns the live session entity of a user.
func (m *Manager) SessionByUserID(userID string) (*Session, bool) {
	e, ok := m.sessionsByUserID.First(userID)
	if !ok {
		return nil, false
	}
	s, ok := e.(*Session)
	return s, ok
}

// Close releases the indexes.
func (m *Manager) Close() {
	m.sessionsByUserID.Close()
	m.roomsBySlug.Close()
}

func (m *Manager) sessionFor(ctx context.Context, userID string) (*Session, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if s, ok := m.SessionByUserID(userID); ok {
		return s, nil
	}
	s := newSession(models.NewSnowflakeID(), userID)
	if err := m.add(s); err != nil {
		return nil, fmt.Errorf("add session for %s: %w", userID, err)
	}
	return s, nil
}

// roomFor returns the room for slug, restoring it from the store or creating
// it with ownerID as host.
func (m *Manager) roomFor(ctx context.Context, slug, ownerID string) (*Room, error) {
	if !models.IsSlug(slug) || models.IsReservedSlug(slug) {
		return nil, fmt.Errorf("%w: %q", services.ErrInvalidSlug, slug)
	}

	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	if r, ok := m.RoomBySlug(slug); ok {
		return r, nil
	}

	rec, err := m.rooms.GetRoomBySlug(ctx, slug)
	if errors.Is(err, database.ErrNotFound) {
		rec = &models.RoomRecord{Slug: slug, OwnerHostID: ownerID, CreatedAt: time.Now().UTC()}
		err = m.rooms.CreateRoom(ctx, rec)
		if errors.Is(err, database.ErrDuplicate) {
			rec, err = m.rooms.GetRoomBySlug(ctx, slug)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", slug, err)
	}
	return m.addRoom(rec)
}

// createRoom persists a room built by the new-room flow.
func (m *Manager) createRoom(ctx context.Context, data models.NewRoomContext, ownerID string) (*Room, error) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	if m.roomsBySlug.Has(data.RoomSlug) {
		return nil, fmt.Errorf("%w: %q", services.ErrSlugTaken, data.RoomSlug)
	}
	rec := &models.RoomRecord{
		Slug:          data.RoomSlug,
		OwnerHostID:   ownerID,
		GameID:        data.GameID,
		Configuration: data.GameConfiguration,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.rooms.CreateRoom(ctx, rec); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %q", services.ErrSlugTaken, data.RoomSlug)
		}
		return nil, fmt.Errorf("create room %s: %w", data.RoomSlug, err)
	}
	return m.addRoom(rec)
}

func (m *Manager) addRoom(rec *models.RoomRecord) (*Room, error) {
	r := newRoom(models.NewSnowflakeID(), *rec, m, m.catalog, m.logger)
	if err := m.add(r); err != nil {
		return nil, err
	}
	m.logger.WithFields(logrus.Fields{
		"roomSlug":    r.Slug(),
		"ownerHostId": r.OwnerHostID(),
	}).Info("room opened")
	return r, nil
}

func (m *Manager) slugTaken(ctx context.Context, slug string) (bool, error) {
	if m.roomsBySlug.Has(slug) {
		return true, nil
	}
	_, err := m.rooms.GetRoomBySlug(ctx, slug)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, database.ErrNotFound):
		return false, nil
	}
	return false, err
}

func (m *Manager) spawnGame(ctx context.Context, room *Room, gameID models.GameID, userIDs []string) (*Game, []*Player, error) {
	gameEntityID := models.NewSnowflakeID()
	players := make([]*Player, 0, len(userIDs))
	playerIDs := make([]string, 0, len(userIDs))
	for _, u := range userIDs {
		p := newPlayer(models.NewSnowflakeID(), gameID, gameEntityID, u)
		players = append(players, p)
		playerIDs = append(playerIDs, p.ID())
	}
	game := newGame(gameEntityID, gameID, room.ID(), playerIDs)

	if err := m.add(game); err != nil {
		return nil, nil, err
	}
	for i, p := range players {
		if err := m.add(p); err != nil {
			m.despawn(append([]string{game.ID()}, playerIDs[:i]...)...)
			return nil, nil, err
		}
	}
	m.logger.WithFields(logrus.Fields{
		"roomSlug":     room.Slug(),
		"gameId":       gameID,
		"gameEntityId": game.ID(),
		"players":      len(players),
	}).Info("game started")
	return game, players, nil
}

func (m *Manager) despawn(ids ...string) {
	for _, id := range ids {
		if err := m.world.Remove(id); err != nil {
			m.logger.WithError(err).WithField("entityId", id).Warn("despawn")
		}
	}
}

// add puts e into the world and forwards its command outcomes to the event sink.
func (m *Manager) add(e entity.Entity) error {
	if m.events != nil {
		e.Subscribe(func(ev entity.Event) {
			if ev.Type != entity.EventSendComplete && ev.Type != entity.EventSendError {
				return
			}
			rec := models.EntityEventRecord{
				EntityID:  ev.EntityID,
				Schema:    e.Schema(),
				EventType: string(ev.Type),
				Error:     ev.Error,
				Timestamp: time.Now().UnixMilli(),
			}
			if ev.Command != nil {
				rec.Command = ev.Command.Type
			}
			m.events.Record(rec)
		})
	}
	return m.world.Add(e)
}
