// Package entity defines the thin contract BatchRegistry needs from an
// entity-component system: create/destroy entities, resolve guid<->entity,
// and walk a live entity's components. The component registry's internals
// are out of scope (spec.md Non-goals); this package only owns the
// boundary BatchRegistry and MetaRegistry call across.
package entity

import (
	"errors"
	"sync"

	"github.com/cuemby/forgeassets/pkg/guid"
)

// ID identifies a live entity. Unlike Guid, an ID has no meaning once the
// entity is destroyed and is never persisted; Guid is the durable identity
// entities are keyed by across save/load.
type ID uint64

// Invalid is the zero ID, never issued to a real entity.
const Invalid ID = 0

func (id ID) Valid() bool { return id != Invalid }

// EntityRef pairs a durable Guid with the live ID it currently resolves to.
// Mirrors guid.AssetRef's bind/unbind lifecycle: a reference can be
// constructed before the entity it names exists (NewEntityRef), and is
// rebound by the entity-ref pass once EntityManager.GuidToEntity succeeds.
type EntityRef struct {
	Guid   guid.Guid
	Entity ID
}

// NewEntityRef constructs an unbound reference to g.
func NewEntityRef(g guid.Guid) EntityRef { return EntityRef{Guid: g} }

// IsBound reports whether the reference structurally carries a non-zero
// entity ID. This does not confirm the entity is still live; use State for
// that (IDs are never reused, but the entity they named may have been
// destroyed without this ref being rebound).
func (r EntityRef) IsBound() bool { return r.Entity.Valid() }

// State reports r's lifecycle state per spec.md §3. resolve should be
// Manager.EntityToGuid; Bound requires not just a non-zero Entity but that
// it still resolves back to r.Guid, since IDs are never reused but a
// destroyed entity no longer resolves at all.
func (r EntityRef) State(resolve func(ID) (guid.Guid, bool)) guid.RefState {
	if !r.Guid.Valid() {
		return guid.StateEmpty
	}
	if !r.Entity.Valid() {
		return guid.StateUnbound
	}
	if g, ok := resolve(r.Entity); ok && g == r.Guid {
		return guid.StateBound
	}
	return guid.StateStale
}

func (r *EntityRef) Bind(id ID) { r.Entity = id }
func (r *EntityRef) Unbind()    { r.Entity = Invalid }

// ErrNotFound is returned when a guid or ID has no live entity.
var ErrNotFound = errors.New("entity: not found")

// Manager is the contract BatchRegistry depends on. All mutating methods
// must only be called from the owning main thread (spec.md §5, "EntityManager
// mutations occur on the main thread"); GuidToEntity/EntityToGuid/VisitComponents
// are safe to call from anywhere since they only read.
type Manager interface {
	// Create instantiates a new entity identified by g, with the given
	// display name and optional parent. Fails if g is already live.
	Create(g guid.Guid, name string, parent ID) (ID, error)

	// Destroy removes a live entity and everything attached to it.
	Destroy(id ID) error

	GuidToEntity(g guid.Guid) (ID, bool)
	EntityToGuid(id ID) (guid.Guid, bool)

	// AttachComponent/DetachComponent let BatchRegistry apply
	// MetaRegistry-deserialized components to an entity by type name.
	AttachComponent(id ID, typeName string, value any) error
	DetachComponent(id ID, typeName string) error

	// VisitComponents calls visit once per (typeName, value) attached to
	// id, in attachment order, so the entity-ref and asset-ref passes can
	// dispatch each value through MetaRegistry.
	VisitComponents(id ID, visit func(typeName string, value any))
}

// InMemoryManager is a reference Manager for tests and single-process use:
// a guid<->ID map plus an ordered component list per entity.
type InMemoryManager struct {
	mu         sync.Mutex
	nextID     uint64
	guidToID   map[guid.Guid]ID
	idToGuid   map[ID]guid.Guid
	parents    map[ID]ID
	components map[ID][]attachedComponent
}

type attachedComponent struct {
	typeName string
	value    any
}

// NewInMemoryManager constructs an empty manager.
func NewInMemoryManager() *InMemoryManager {
	return &InMemoryManager{
		guidToID:   make(map[guid.Guid]ID),
		idToGuid:   make(map[ID]guid.Guid),
		parents:    make(map[ID]ID),
		components: make(map[ID][]attachedComponent),
	}
}

func (m *InMemoryManager) Create(g guid.Guid, name string, parent ID) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.guidToID[g]; exists {
		return Invalid, errors.New("entity: guid already live")
	}
	m.nextID++
	id := ID(m.nextID)
	m.guidToID[g] = id
	m.idToGuid[id] = g
	m.parents[id] = parent
	_ = name
	return id, nil
}

func (m *InMemoryManager) Destroy(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.idToGuid[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.idToGuid, id)
	delete(m.guidToID, g)
	delete(m.parents, id)
	delete(m.components, id)
	return nil
}

func (m *InMemoryManager) GuidToEntity(g guid.Guid) (ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.guidToID[g]
	return id, ok
}

func (m *InMemoryManager) EntityToGuid(id ID) (guid.Guid, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.idToGuid[id]
	return g, ok
}

func (m *InMemoryManager) AttachComponent(id ID, typeName string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idToGuid[id]; !ok {
		return ErrNotFound
	}
	m.components[id] = append(m.components[id], attachedComponent{typeName: typeName, value: value})
	return nil
}

func (m *InMemoryManager) DetachComponent(id ID, typeName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	comps, ok := m.components[id]
	if !ok {
		return ErrNotFound
	}
	for i, c := range comps {
		if c.typeName == typeName {
			m.components[id] = append(comps[:i], comps[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *InMemoryManager) VisitComponents(id ID, visit func(typeName string, value any)) {
	m.mu.Lock()
	comps := append([]attachedComponent(nil), m.components[id]...)
	m.mu.Unlock()
	for _, c := range comps {
		visit(c.typeName, c.value)
	}
}
