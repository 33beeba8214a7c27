package world

import (
	"sync"

	"github.com/jason-s-yu/explorers/internal/entity"
	"github.com/jason-s-yu/explorers/internal/models"
)

// KeyFunc extracts the lookup key of an entity. ok is false when the entity
// should not be indexed.
type KeyFunc[K comparable] func(e entity.Entity) (key K, ok bool)

// Index is an equality lookup table over the entities of one schema, kept
// current through the world's list events.
type Index[K comparable] struct {
	world  *World
	schema models.SchemaType
	key    KeyFunc[K]

	mu    sync.RWMutex
	byKey map[K]map[string]entity.Entity
	keyOf map[string]K

	unsubscribe func()
}

// NewSchemaIndex indexes every current and future entity of schema by key.
func NewSchemaIndex[K comparable](w *World, schema models.SchemaType, key KeyFunc[K]) *Index[K] {
	idx := &Index[K]{
		world:  w,
		schema: schema,
		key:    key,
		byKey:  make(map[K]map[string]entity.Entity),
		keyOf:  make(map[string]K),
	}
	current, unsubscribe := w.Watch(idx.onEvent)
	idx.unsubscribe = unsubscribe
	for _, e := range current {
		if e.Schema() == schema {
			idx.put(e)
		}
	}
	return idx
}

// Close stops tracking the world.
func (idx *Index[K]) Close() {
	idx.unsubscribe()
}

// Lookup returns every entity with the given key.
func (idx *Index[K]) Lookup(key K) []entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := idx.byKey[key]
	out := make([]entity.Entity, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	return out
}

// First returns any entity with the given key.
func (idx *Index[K]) First(key K) (entity.Entity, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, e := range idx.byKey[key] {
		return e, true
	}
	return nil, false
}

// Has reports whether some entity carries key.
func (idx *Index[K]) Has(key K) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byKey[key]) > 0
}

func (idx *Index[K]) onEvent(ev ListEvent) {
	switch ev.Type {
	case ListAdded:
		for _, rec := range ev.Entities {
			if rec.Schema != idx.schema {
				continue
			}
			if e, ok := idx.world.Get(rec.ID); ok {
				idx.put(e)
			}
		}
	case ListRemoved:
		for _, rec := range ev.Entities {
			if rec.Schema == idx.schema {
				idx.drop(rec.ID)
			}
		}
	case ListChanged:
		for _, ch := range ev.ChangedEntities {
			if ch.Schema != idx.schema {
				continue
			}
			if e, ok := idx.world.Get(ch.ID); ok {
				idx.put(e)
			}
		}
	}
}

func (idx *Index[K]) put(e entity.Entity) {
	k, ok := idx.key(e)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dropLocked(e.ID())
	if !ok {
		return
	}
	set, exists := idx.byKey[k]
	if !exists {
		set = make(map[string]entity.Entity)
		idx.byKey[k] = set
	}
	set[e.ID()] = e
	idx.keyOf[e.ID()] = k
}

func (idx *Index[K]) drop(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dropLocked(id)
}

func (idx *Index[K]) dropLocked(id string) {
	old, ok := idx.keyOf[id]
	if !ok {
		return
	}
	delete(idx.keyOf, id)
	if set := idx.byKey[old]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(idx.byKey, old)
		}
	}
}
