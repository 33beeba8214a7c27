package entities

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/explorers/internal/entity"
	"github.com/jason-s-yu/explorers/internal/models"
)

// States of the boolean Active region shared by sessions, games and players.
const (
	RegionActive = "Active"
	ActiveFalse  = "False"
	ActiveTrue   = "True"

	triggerActivate   = "ACTIVATE"
	triggerDeactivate = "DEACTIVATE"
)

func newActiveRegion(on, off string) *entity.Region {
	r := entity.NewRegion(RegionActive, off)
	r.Configure(off).Permit(triggerActivate, on)
	r.Configure(on).Permit(triggerDeactivate, off)
	return r
}

func setActive(ctx context.Context, r *entity.Region, on bool, onState, offState string) error {
	if on {
		return r.Set(ctx, onState, triggerActivate)
	}
	return r.Set(ctx, offState, triggerDeactivate)
}

// Session is a user's presence across all of its connections.
type Session struct {
	*entity.Base
	props       models.SessionProps
	active      *entity.Region
	connections map[string]struct{}
}

func newSession(id, userID string) *Session {
	s := &Session{
		props:       models.SessionProps{UserID: userID},
		active:      newActiveRegion(ActiveTrue, ActiveFalse),
		connections: make(map[string]struct{}),
	}
	s.Base = entity.NewBase(id, models.SchemaSession, func() any { return &s.props }, s.active)
	s.Handle(s.handle)
	return s
}

// UserID never changes after creation.
func (s *Session) UserID() string { return s.props.UserID }

// ConnectionCount is the number of live connections on this session.
func (s *Session) ConnectionCount() int {
	var n int
	s.View(func() { n = len(s.connections) })
	return n
}

func (s *Session) handle(ctx context.Context, cmd models.Command) error {
	switch cmd.Type {
	case models.CmdReconnect:
		s.connections[cmd.ConnectionEntityID] = struct{}{}
	case models.CmdDisconnect:
		delete(s.connections, cmd.ConnectionEntityID)
	default:
		return fmt.Errorf("%w: session %s", entity.ErrUnhandledCommand, cmd.Type)
	}
	return setActive(ctx, s.active, len(s.connections) > 0, ActiveTrue, ActiveFalse)
}
