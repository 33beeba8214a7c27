// internal/entity/base.go
package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/wI2L/jsondiff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/jason-s-yu/explorers/internal/entity")

// ErrUnhandledCommand is returned when an entity has no reaction to a command.
var ErrUnhandledCommand = errors.New("command not handled")

// Handler reacts to a validated command. It runs with the entity lock held,
// so it may touch the entity's props and regions directly but must never
// call back into the same entity's exported methods.
type Handler func(ctx context.Context, cmd models.Command) error

// Base carries what every entity shares: identity, parallel regions, the
// JSON document that clients mirror and the subscriber list.
//
// Each Send or Mutate diffs the document before and after and emits a CHANGE
// event with the JSON patch. Events are delivered once the lock is released.
type Base struct {
	id      string
	schema  models.SchemaType
	props   func() any
	regions []*Region
	handler Handler

	mu   sync.Mutex
	last []byte

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// NewBase builds the shared part of an entity. props returns the schema
// specific record; it is read with the entity lock held.
func NewBase(id string, schema models.SchemaType, props func() any, regions ...*Region) *Base {
	return &Base{
		id:      id,
		schema:  schema,
		props:   props,
		regions: regions,
		subs:    make(map[int]func(Event)),
	}
}

// Handle installs the command handler.
func (b *Base) Handle(h Handler) { b.handler = h }

func (b *Base) ID() string                { return b.id }
func (b *Base) Schema() models.SchemaType { return b.schema }

// Send validates cmd and runs it through the handler.
func (b *Base) Send(ctx context.Context, cmd models.Command) error {
	ctx, span := tracer.Start(ctx, "entity.Send", trace.WithAttributes(
		attribute.String("entity.id", b.id),
		attribute.String("entity.schema", string(b.schema)),
		attribute.String("command.type", string(cmd.Type)),
	))
	defer span.End()

	sent := cmd
	b.emit([]Event{{Type: EventSendTrigger, EntityID: b.id, Command: &sent}})

	outcome := func(err error) []Event {
		if err != nil {
			return []Event{{Type: EventSendError, EntityID: b.id, Command: &sent, Error: err.Error()}}
		}
		return []Event{{Type: EventSendComplete, EntityID: b.id, Command: &sent}}
	}

	if err := cmd.Validate(); err != nil {
		b.emit(outcome(err))
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err := b.run(func() error {
		if b.handler == nil {
			return fmt.Errorf("%w: %s", ErrUnhandledCommand, cmd.Type)
		}
		return b.handler(ctx, cmd)
	}, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Mutate changes the entity outside of a command, e.g. when another entity
// appends to its message list. fn runs with the lock held.
func (b *Base) Mutate(fn func() error) error {
	return b.run(fn, nil)
}

func (b *Base) run(fn func() error, outcome func(error) []Event) error {
	b.mu.Lock()
	if b.last == nil {
		b.last, _ = b.documentLocked()
	}
	before := b.statesLocked()

	err := fn()

	events := b.commitLocked(before)
	if outcome != nil {
		events = append(events, outcome(err)...)
	}
	b.mu.Unlock()

	b.emit(events)
	return err
}

func (b *Base) commitLocked(before StateValue) []Event {
	var events []Event
	after, err := b.documentLocked()
	if err == nil {
		if b.last != nil {
			patch, derr := jsondiff.CompareJSON(b.last, after)
			if derr == nil && len(patch) > 0 {
				events = append(events, Event{Type: EventChange, EntityID: b.id, Patches: patch})
			}
		}
		b.last = after
	}

	states := b.statesLocked()
	if !maps.Equal(before, states) {
		events = append(events, Event{Type: EventTransition, EntityID: b.id, States: states})
	}
	return events
}

// Subscribe registers fn for every future event of this entity.
func (b *Base) Subscribe(fn func(Event)) func() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		delete(b.subs, id)
	}
}

func (b *Base) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	b.subMu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// View runs fn with the entity lock held and without recording a change.
// It is for reading fields that handlers mutate.
func (b *Base) View(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

// Snapshot returns the current JSON document of the entity.
func (b *Base) Snapshot() json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.documentLocked()
	if err != nil {
		return nil
	}
	return doc
}

// States returns the current state of every region.
func (b *Base) States() StateValue {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statesLocked()
}

func (b *Base) statesLocked() StateValue {
	states := make(StateValue, len(b.regions))
	for _, r := range b.regions {
		states[r.Name()] = r.Current()
	}
	return states
}

// documentLocked flattens the props together with id, schema and states.
func (b *Base) documentLocked() ([]byte, error) {
	raw, err := json.Marshal(b.props())
	if err != nil {
		return nil, fmt.Errorf("marshal %s props: %w", b.schema, err)
	}
	doc := make(map[string]any)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("flatten %s props: %w", b.schema, err)
	}
	doc["id"] = b.id
	doc["schema"] = b.schema
	doc["states"] = b.statesLocked()
	return json.Marshal(doc)
}
