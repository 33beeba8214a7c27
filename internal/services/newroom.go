// internal/services/newroom.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason-s-yu/explorers/internal/catalog"
	"github.com/jason-s-yu/explorers/internal/entity"
	"github.com/jason-s-yu/explorers/internal/models"
)

// Steps of the new-room flow.
const (
	NewRoomSelectGame = "SelectGame"
	NewRoomEnterName  = "EnterName"
	NewRoomConfigure  = "Configure"
	NewRoomComplete   = "Complete"
)

const triggerRename = "RENAME"

var (
	ErrInvalidSlug = errors.New("invalid room name")
	ErrSlugTaken   = errors.New("room name already taken")
	ErrWrongStep   = errors.New("command not expected at this step")
)

// SlugTaken reports whether a room already uses slug.
type SlugTaken func(ctx context.Context, slug string) (bool, error)

// NewRoom walks a connection through picking a game, naming the room and
// configuring it.
type NewRoom struct {
	region  *entity.Region
	data    models.NewRoomContext
	catalog *catalog.Catalog
	taken   SlugTaken
}

// StartNewRoom begins a new-room flow at the SelectGame step.
func StartNewRoom(cat *catalog.Catalog, taken SlugTaken) *NewRoom {
	s := &NewRoom{
		region:  entity.NewRegion("NewRoom", NewRoomSelectGame),
		catalog: cat,
		taken:   taken,
	}
	s.region.Configure(NewRoomSelectGame).
		Permit(string(models.CmdSelectGame), NewRoomEnterName)
	s.region.Configure(NewRoomEnterName).
		Permit(string(models.CmdSubmitName), NewRoomConfigure)
	s.region.Configure(NewRoomConfigure).
		Permit(string(models.CmdConfigureGame), NewRoomComplete)
	s.region.Configure(NewRoomComplete).
		Permit(triggerRename, NewRoomEnterName)
	return s
}

// Handles reports whether cmd belongs to this flow.
func Handles(cmd models.Command) bool {
	switch cmd.Type {
	case models.CmdSelectGame, models.CmdSubmitName, models.CmdConfigureGame:
		return true
	}
	return false
}

// Handle applies one forwarded command.
func (s *NewRoom) Handle(ctx context.Context, cmd models.Command) error {
	switch cmd.Type {
	case models.CmdSelectGame:
		if err := s.expect(NewRoomSelectGame); err != nil {
			return err
		}
		if _, ok := s.catalog.Get(cmd.GameID); !ok {
			return fmt.Errorf("%w: %s", catalog.ErrUnknownGame, cmd.GameID)
		}
		s.data.GameID = cmd.GameID

	case models.CmdSubmitName:
		if err := s.expect(NewRoomEnterName); err != nil {
			return err
		}
		if !models.IsSlug(cmd.Name) || models.IsReservedSlug(cmd.Name) {
			return fmt.Errorf("%w: %q", ErrInvalidSlug, cmd.Name)
		}
		taken, err := s.taken(ctx, cmd.Name)
		if err != nil {
			return fmt.Errorf("check room name: %w", err)
		}
		if taken {
			return fmt.Errorf("%w: %q", ErrSlugTaken, cmd.Name)
		}
		s.data.RoomSlug = cmd.Name

	case models.CmdConfigureGame:
		if err := s.expect(NewRoomConfigure); err != nil {
			return err
		}
		if err := s.catalog.CheckConfiguration(s.data.GameID, *cmd.Configuration); err != nil {
			return err
		}
		cfg := *cmd.Configuration
		s.data.GameConfiguration = &cfg

	default:
		return fmt.Errorf("%w: %s", ErrWrongStep, cmd.Type)
	}
	return s.region.Fire(ctx, string(cmd.Type))
}

// Reject sends a completed flow back to naming, e.g. when the slug was
// claimed between SUBMIT_NAME and room creation.
func (s *NewRoom) Reject(ctx context.Context) error {
	s.data.RoomSlug = ""
	return s.region.Fire(ctx, triggerRename)
}

func (s *NewRoom) expect(step string) error {
	if cur := s.region.Current(); cur != step {
		return fmt.Errorf("%w: at %s, expected %s", ErrWrongStep, cur, step)
	}
	return nil
}

// Done reports whether the flow reached Complete.
func (s *NewRoom) Done() bool { return s.region.Is(NewRoomComplete) }

// Result is the collected room data. It is complete once Done is true.
func (s *NewRoom) Result() models.NewRoomContext { return s.data }

// State is the mirror kept on the connection entity.
func (s *NewRoom) State() *models.NewRoomServiceState {
	return &models.NewRoomServiceState{Context: s.data, Value: s.region.Current()}
}
