package batchregistry

import (
	"fmt"

	"github.com/cuemby/forgeassets/pkg/entity"
	"github.com/cuemby/forgeassets/pkg/executor"
	"github.com/cuemby/forgeassets/pkg/guid"
)

// EntitySpawnDesc describes a new entity to instantiate via QueueSpawnEntity
// (the original's meta::EntitySpawnDesc): a name, optional parent, and the
// components to attach once created.
type EntitySpawnDesc struct {
	Name       string
	Parent     guid.Guid
	Components []ComponentSpawnDesc
}

// ComponentSpawnDesc names a component type plus the already-deserialized
// value to attach (queue_spawn_entity takes live values, unlike the
// batch-file load path which deserializes from raw JSON).
type ComponentSpawnDesc struct {
	TypeName string
	Value    any
}

// rejectIfLoading enforces the Open Question resolution: entity mutations
// are forbidden while a batch is between Queued and Loaded, since the load
// sequence is actively instantiating/resolving entities on the strand.
func (r *Registry) rejectIfLoading(id BatchID) error {
	state, ok := r.stateOf(id)
	if !ok {
		return ErrUnknownBatch
	}
	if state == StateQueued || state == StateLoading {
		return fmt.Errorf("batchregistry: batch %s is %s: %w", id, state, ErrStateTransitionForbidden)
	}
	return nil
}

// QueueCreateEntity creates a bare entity (no components) in batch id and
// adds it to the batch's live set.
func (r *Registry) QueueCreateEntity(id BatchID, name string, parent entity.ID) *executor.Future[entity.EntityRef] {
	fut := executor.NewFuture[entity.EntityRef]()
	if err := r.rejectIfLoading(id); err != nil {
		fut.Resolve(entity.EntityRef{})
		return fut
	}
	r.strand.Post(func() {
		eid, err := r.entities.Create(guid.New(), name, parent)
		if err != nil {
			fut.Resolve(entity.EntityRef{})
			return
		}
		ref := entity.NewEntityRef(mustGuidFor(r, eid))
		ref.Bind(eid)
		r.appendLive(id, ref)
		fut.Resolve(ref)
	})
	return fut
}

// QueueDestroyEntity destroys ref's entity and removes it from id's live
// set.
func (r *Registry) QueueDestroyEntity(id BatchID, ref entity.EntityRef) *executor.Future[bool] {
	fut := executor.NewFuture[bool]()
	if err := r.rejectIfLoading(id); err != nil {
		fut.Resolve(false)
		return fut
	}
	r.strand.Post(func() {
		err := r.entities.Destroy(ref.Entity)
		if err == nil {
			r.removeLive(id, ref)
		}
		fut.Resolve(err == nil)
	})
	return fut
}

// QueueSpawnEntity creates an entity from desc, attaches its components,
// and adds it to the batch's live set (the original's queue_spawn_entity).
func (r *Registry) QueueSpawnEntity(id BatchID, desc EntitySpawnDesc) *executor.Future[entity.EntityRef] {
	fut := executor.NewFuture[entity.EntityRef]()
	if err := r.rejectIfLoading(id); err != nil {
		fut.Resolve(entity.EntityRef{})
		return fut
	}
	r.strand.Post(func() {
		g := guid.New()
		parentID := entity.Invalid
		if desc.Parent.Valid() {
			if pid, ok := r.entities.GuidToEntity(desc.Parent); ok {
				parentID = pid
			}
		}
		eid, err := r.entities.Create(g, desc.Name, parentID)
		if err != nil {
			fut.Resolve(entity.EntityRef{})
			return
		}
		for _, c := range desc.Components {
			_ = r.entities.AttachComponent(eid, c.TypeName, c.Value)
		}
		ref := entity.NewEntityRef(g)
		ref.Bind(eid)
		r.appendLive(id, ref)
		fut.Resolve(ref)
	})
	return fut
}

// QueueAttachEntity adds an already-existing entity reference to id's live
// set without spawning it (the original's "Does NOT spawn the entity").
func (r *Registry) QueueAttachEntity(id BatchID, ref entity.EntityRef) *executor.Future[bool] {
	fut := executor.NewFuture[bool]()
	if err := r.rejectIfLoading(id); err != nil {
		fut.Resolve(false)
		return fut
	}
	r.strand.Post(func() {
		r.appendLive(id, ref)
		fut.Resolve(true)
	})
	return fut
}

// QueueDetachEntity removes ref from id's live set without destroying the
// entity (the original's "Does NOT destroy the entity").
func (r *Registry) QueueDetachEntity(id BatchID, ref entity.EntityRef) *executor.Future[bool] {
	fut := executor.NewFuture[bool]()
	if err := r.rejectIfLoading(id); err != nil {
		fut.Resolve(false)
		return fut
	}
	r.strand.Post(func() {
		r.removeLive(id, ref)
		fut.Resolve(true)
	})
	return fut
}

func (r *Registry) appendLive(id BatchID, ref entity.EntityRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[id]; ok {
		b.Live = append(b.Live, ref)
	}
}

func (r *Registry) removeLive(id BatchID, ref entity.EntityRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return
	}
	for i, live := range b.Live {
		if live.Entity == ref.Entity {
			b.Live = append(b.Live[:i], b.Live[i+1:]...)
			return
		}
	}
}

// mustGuidFor resolves eid's durable guid, falling back to a fresh one in
// the extremely unlikely case the entity manager's own bookkeeping lost it
// between Create and this lookup (never expected for InMemoryManager).
func mustGuidFor(r *Registry, eid entity.ID) guid.Guid {
	if g, ok := r.entities.EntityToGuid(eid); ok {
		return g
	}
	return guid.New()
}
