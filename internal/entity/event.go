// internal/entity/event.go
package entity

import (
	"context"
	"encoding/json"

	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/wI2L/jsondiff"
)

// EventType names what happened to an entity.
type EventType string

const (
	EventSendTrigger  EventType = "SEND_TRIGGER"
	EventSendComplete EventType = "SEND_COMPLETE"
	EventSendError    EventType = "SEND_ERROR"
	EventChange       EventType = "CHANGE"
	EventTransition   EventType = "TRANSITION"
)

// Event is delivered to entity subscribers after the entity lock is released.
type Event struct {
	Type     EventType       `json:"type"`
	EntityID string          `json:"entityId"`
	Command  *models.Command `json:"command,omitempty"`
	Error    string          `json:"error,omitempty"`
	Patches  jsondiff.Patch  `json:"patches,omitempty"`
	States   StateValue      `json:"states,omitempty"`
}

// StateValue maps each parallel region of an entity to its current state.
type StateValue map[string]string

// Entity is a record in the world that reacts to commands.
type Entity interface {
	ID() string
	Schema() models.SchemaType
	Send(ctx context.Context, cmd models.Command) error
	Subscribe(fn func(Event)) (unsubscribe func())
	Snapshot() json.RawMessage
	States() StateValue
}
