package metaregistry

import (
	"fmt"
	"sync"

	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/storage"
)

// Registry holds TypeOps keyed by type name. It is append-only until Freeze
// is called; ResourceManager and BatchRegistry take a *Registry after
// bootstrap and only ever call Lookup, which needs no lock once frozen.
type Registry struct {
	mu     sync.RWMutex
	ops    map[string]TypeOps
	frozen bool
}

// NewRegistry constructs an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]TypeOps)}
}

// Freeze forbids further registration. Bootstrap should call this once all
// asset and component types are registered; it is a no-op if already frozen.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the TypeOps for typeName.
func (r *Registry) Lookup(typeName string) (TypeOps, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops, ok := r.ops[typeName]
	return ops, ok
}

// TypeNames returns every registered type name, in no particular order.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	return names
}

func (r *Registry) insert(typeName string, ops TypeOps) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrAlreadyFrozen
	}
	if _, exists := r.ops[typeName]; exists {
		return fmt.Errorf("metaregistry: type %q already registered", typeName)
	}
	r.ops[typeName] = ops
	return nil
}

// AssetOptions configures an asset-type registration with Register. Either
// visitor may be left nil for a type with no outgoing references.
type AssetOptions[T any] struct {
	DisplayName     string
	Deserialize     func(raw []byte) (T, error)
	Serialize       func(value T) ([]byte, error)
	VisitAssetRefs  func(value *T, visit AssetRefVisitFunc)
	VisitEntityRefs func(value *T, visit EntityRefVisitFunc)
}

// Register binds a concrete Go type T to typeName, producing the closures
// that let ResourceManager load, unload, bind, and serialize values of T
// through Storage without ever naming T again. This is the only function in
// the package that knows T at the call site; everything it returns is
// type-erased.
//
// opts.Deserialize/opts.Serialize are required (every asset type must round
// trip to its on-disk payload); the visitor fields may be left nil for leaf
// types with no outgoing references.
func Register[T any](r *Registry, typeName string, opts AssetOptions[T]) error {
	if opts.Deserialize == nil || opts.Serialize == nil {
		return fmt.Errorf("metaregistry: %q: Serialize/Deserialize are required", typeName)
	}

	ops := TypeOps{
		TypeName:    typeName,
		DisplayName: opts.DisplayName,

		LoadAsset: func(st *storage.Storage, raw []byte, g guid.Guid) (guid.MetaHandle, error) {
			storage.Assure[T](st, typeName)
			value, err := opts.Deserialize(raw)
			if err != nil {
				return guid.MetaHandle{}, fmt.Errorf("metaregistry: %q: deserialize: %w", typeName, err)
			}
			h, err := storage.Add(st, typeName, value, g)
			if err != nil {
				return guid.MetaHandle{}, err
			}
			return h.Meta(), nil
		},

		UnloadAsset: func(st *storage.Storage, h guid.MetaHandle) error {
			th, ok := guid.HandleFromMeta[T](h, typeName)
			if !ok {
				return storage.ErrTypeMismatch
			}
			return storage.RemoveNow(st, typeName, th)
		},

		WithValue: func(st *storage.Storage, h guid.MetaHandle, fn func(any)) error {
			th, ok := guid.HandleFromMeta[T](h, typeName)
			if !ok {
				return storage.ErrTypeMismatch
			}
			return storage.Read(st, typeName, th, func(v T) {
				vv := v
				fn(&vv)
			})
		},

		WithMutableValue: func(st *storage.Storage, h guid.MetaHandle, fn func(any)) error {
			th, ok := guid.HandleFromMeta[T](h, typeName)
			if !ok {
				return storage.ErrTypeMismatch
			}
			return storage.Modify(st, typeName, th, func(v *T) { fn(v) })
		},

		Serialize: func(value any) ([]byte, error) {
			v, ok := value.(*T)
			if !ok {
				return nil, storage.ErrTypeMismatch
			}
			return opts.Serialize(*v)
		},

		Deserialize: func(raw []byte) (any, error) {
			v, err := opts.Deserialize(raw)
			if err != nil {
				return nil, err
			}
			return &v, nil
		},
	}

	if opts.VisitAssetRefs != nil {
		visit := opts.VisitAssetRefs
		ops.VisitAssetRefs = func(value any, fn AssetRefVisitFunc) {
			v, ok := value.(*T)
			if !ok {
				return
			}
			visit(v, fn)
		}
	}
	if opts.VisitEntityRefs != nil {
		visit := opts.VisitEntityRefs
		ops.VisitEntityRefs = func(value any, fn EntityRefVisitFunc) {
			v, ok := value.(*T)
			if !ok {
				return
			}
			visit(v, fn)
		}
	}

	return r.insert(typeName, ops)
}

// ComponentOptions configures a component-only registration: a type that
// never lives in Storage (it's attached to entities directly) but still
// needs visitor/serialize hooks so the batch closure walk and save/load
// passes can see the references it holds.
type ComponentOptions[T any] struct {
	DisplayName     string
	Deserialize     func(raw []byte) (T, error)
	Serialize       func(value T) ([]byte, error)
	VisitAssetRefs  func(value *T, visit AssetRefVisitFunc)
	VisitEntityRefs func(value *T, visit EntityRefVisitFunc)
}

// RegisterComponent is Register's sibling for types that are never added to
// Storage. LoadAsset/UnloadAsset/WithMutableValue are left nil on the
// resulting TypeOps; IsAsset reports false.
func RegisterComponent[T any](r *Registry, typeName string, opts ComponentOptions[T]) error {
	if opts.Deserialize == nil || opts.Serialize == nil {
		return fmt.Errorf("metaregistry: %q: Serialize/Deserialize are required", typeName)
	}

	ops := TypeOps{
		TypeName:    typeName,
		DisplayName: opts.DisplayName,
		Serialize: func(value any) ([]byte, error) {
			v, ok := value.(*T)
			if !ok {
				return nil, storage.ErrTypeMismatch
			}
			return opts.Serialize(*v)
		},
		Deserialize: func(raw []byte) (any, error) {
			v, err := opts.Deserialize(raw)
			if err != nil {
				return nil, err
			}
			return &v, nil
		},
	}
	if opts.VisitAssetRefs != nil {
		visit := opts.VisitAssetRefs
		ops.VisitAssetRefs = func(value any, fn AssetRefVisitFunc) {
			if v, ok := value.(*T); ok {
				visit(v, fn)
			}
		}
	}
	if opts.VisitEntityRefs != nil {
		visit := opts.VisitEntityRefs
		ops.VisitEntityRefs = func(value any, fn EntityRefVisitFunc) {
			if v, ok := value.(*T); ok {
				visit(v, fn)
			}
		}
	}

	return r.insert(typeName, ops)
}
