// Package metaregistry maps an asset or entity-component type name to the
// set of type-erased operations ResourceManager and BatchRegistry need to
// load, unload, bind, and walk values of that type without knowing its
// concrete Go type at the call site (spec.md §4.3). Registration happens
// once at bootstrap, via the generic Register function, which is the only
// place the concrete type T is ever named; everything downstream of that
// dispatches on typeName alone.
//
// The erasure mirrors the ADL visit_assets<Visitor> pattern from the
// original engine's eeng::mock::Model: a caller supplies a visitor closure,
// and a type-specific free function walks the concrete struct's reference
// fields and invokes it per reference.
package metaregistry

import (
	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/storage"
)

// AssetRefVisitFunc is invoked once per child asset reference found inside a
// value. bind rewires that reference's handle once the child's current
// MetaHandle has been resolved (or clears it, for unbind).
type AssetRefVisitFunc func(childGuid guid.Guid, bind func(guid.MetaHandle))

// EntityRefVisitFunc is invoked once per entity reference found inside a
// value (e.g. a component's "owner" or "target" field). rawGuid is the
// referenced entity's guid and bind receives the live entity ID it resolves
// to, both as plain uint64 here; pkg/guid and pkg/entity define the concrete
// Guid and ID types component authors convert to/from when registering.
type EntityRefVisitFunc func(rawGuid uint64, bind func(uint64))

// TypeOps is the full set of operations registered for one type name.
// LoadAsset/UnloadAsset/WithValue/WithMutableValue are populated only for
// types that live in Storage (assets); component-only registrations (entity
// components that merely hold references) leave them nil.
type TypeOps struct {
	TypeName    string
	DisplayName string

	LoadAsset   func(st *storage.Storage, raw []byte, g guid.Guid) (guid.MetaHandle, error)
	UnloadAsset func(st *storage.Storage, h guid.MetaHandle) error

	// WithValue/WithMutableValue bridge between Storage's generic Read/Modify
	// and the type-erased visitor/serialize functions below. The value
	// handed to fn is always *T (a defensive copy's address for WithValue,
	// the live slot's address for WithMutableValue); callers must not
	// mutate through a WithValue pointer.
	WithValue        func(st *storage.Storage, h guid.MetaHandle, fn func(value any)) error
	WithMutableValue func(st *storage.Storage, h guid.MetaHandle, fn func(value any)) error

	VisitAssetRefs  func(value any, visit AssetRefVisitFunc)
	VisitEntityRefs func(value any, visit EntityRefVisitFunc)

	Serialize   func(value any) ([]byte, error)
	Deserialize func(raw []byte) (any, error)
}

// IsAsset reports whether ops was registered with storage-backed load/unload
// hooks, as opposed to a component-only registration.
func (ops TypeOps) IsAsset() bool {
	return ops.LoadAsset != nil
}
