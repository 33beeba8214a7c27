// internal/world/world.go
package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jason-s-yu/explorers/internal/entity"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/wI2L/jsondiff"
)

var (
	ErrDuplicateEntity = errors.New("entity already in world")
	ErrEntityNotFound  = errors.New("entity not found")
)

// ListEventType names a change to the set of entities.
type ListEventType string

const (
	ListAdded   ListEventType = "ADDED"
	ListRemoved ListEventType = "REMOVED"
	ListChanged ListEventType = "CHANGED"
)

// Record is an entity document as carried by list events.
type Record struct {
	ID     string
	Schema models.SchemaType
	Doc    json.RawMessage
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Doc == nil {
		return []byte("null"), nil
	}
	return r.Doc, nil
}

// ChangedEntity is one entry of a CHANGED list event.
type ChangedEntity struct {
	ID      string            `json:"id"`
	Schema  models.SchemaType `json:"-"`
	Patches jsondiff.Patch    `json:"patches"`
}

// ListEvent is emitted whenever an entity is added, removed or changed.
type ListEvent struct {
	Type            ListEventType   `json:"type"`
	Entities        []Record        `json:"entities,omitempty"`
	ChangedEntities []ChangedEntity `json:"changedEntities,omitempty"`
}

// World is the in-memory collection of every live entity.
type World struct {
	mu       sync.Mutex
	entities map[string]entity.Entity
	unsubs   map[string]func()

	subMu  sync.Mutex
	subs   map[int]func(ListEvent)
	nextID int
}

// New returns an empty world.
func New() *World {
	return &World{
		entities: make(map[string]entity.Entity),
		unsubs:   make(map[string]func()),
		subs:     make(map[int]func(ListEvent)),
	}
}

// RecordOf captures the current document of e.
func RecordOf(e entity.Entity) Record {
	return Record{ID: e.ID(), Schema: e.Schema(), Doc: e.Snapshot()}
}

// Add inserts e and announces it with an ADDED event.
func (w *World) Add(e entity.Entity) error {
	w.mu.Lock()
	if _, exists := w.entities[e.ID()]; exists {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.ID())
	}
	w.entities[e.ID()] = e
	w.unsubs[e.ID()] = e.Subscribe(func(ev entity.Event) {
		if ev.Type != entity.EventChange {
			return
		}
		w.emit(ListEvent{
			Type: ListChanged,
			ChangedEntities: []ChangedEntity{{
				ID:      ev.EntityID,
				Schema:  e.Schema(),
				Patches: ev.Patches,
			}},
		})
	})
	w.mu.Unlock()

	w.emit(ListEvent{Type: ListAdded, Entities: []Record{RecordOf(e)}})
	return nil
}

// Remove drops the entity with the given id and announces it with a REMOVED event.
func (w *World) Remove(id string) error {
	w.mu.Lock()
	e, ok := w.entities[id]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	delete(w.entities, id)
	unsub := w.unsubs[id]
	delete(w.unsubs, id)
	w.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	w.emit(ListEvent{Type: ListRemoved, Entities: []Record{RecordOf(e)}})
	return nil
}

// Get returns the entity with the given id.
func (w *World) Get(id string) (entity.Entity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[id]
	return e, ok
}

// Entities returns every live entity in no particular order.
func (w *World) Entities() []entity.Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]entity.Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	return out
}

// WithSchema returns every live entity of the given schema.
func (w *World) WithSchema(schema models.SchemaType) []entity.Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []entity.Entity
	for _, e := range w.entities {
		if e.Schema() == schema {
			out = append(out, e)
		}
	}
	return out
}

// Len is the number of live entities.
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entities)
}

// Subscribe registers fn for every future list event.
func (w *World) Subscribe(fn func(ListEvent)) func() {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	return func() {
		w.subMu.Lock()
		defer w.subMu.Unlock()
		delete(w.subs, id)
	}
}

// Watch subscribes fn and returns the entities present at subscription time,
// so a new observer can be brought up to date without missing an event.
func (w *World) Watch(fn func(ListEvent)) ([]entity.Entity, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	current := make([]entity.Entity, 0, len(w.entities))
	for _, e := range w.entities {
		current = append(current, e)
	}
	return current, w.Subscribe(fn)
}

func (w *World) emit(ev ListEvent) {
	w.subMu.Lock()
	fns := make([]func(ListEvent), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
