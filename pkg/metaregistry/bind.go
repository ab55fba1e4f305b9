package metaregistry

import (
	"fmt"

	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/storage"
)

// MissingRefError names a referenced guid that could not be resolved to a
// live handle during a bind pass. ResourceManager surfaces this as the
// batch's failure reason (spec.md §4.4, "Bind failed").
type MissingRefError struct {
	TypeName string
	Ref      guid.Guid
}

func (e *MissingRefError) Error() string {
	return fmt.Sprintf("metaregistry: bind %s: referenced guid %s is not loaded", e.TypeName, e.Ref)
}

// Resolver looks up the current MetaHandle for a guid, typically
// storage.HandleForGUIDMeta bound to a particular Storage instance.
type Resolver func(g guid.Guid) (guid.MetaHandle, bool)

// BindAsset rewrites every child AssetRef inside the value at h to point at
// the child's current handle, as resolved by resolve. Returns a
// *MissingRefError on the first unresolved reference and binds nothing
// after it; references visited before it keep their new handles.
func BindAsset(st *storage.Storage, ops TypeOps, h guid.MetaHandle, resolve Resolver) error {
	if ops.VisitAssetRefs == nil {
		return nil
	}
	if ops.WithMutableValue == nil {
		return ErrNotAsset
	}

	var visitErr error
	err := ops.WithMutableValue(st, h, func(value any) {
		ops.VisitAssetRefs(value, func(childGuid guid.Guid, bind func(guid.MetaHandle)) {
			if visitErr != nil {
				return
			}
			childHandle, ok := resolve(childGuid)
			if !ok {
				visitErr = &MissingRefError{TypeName: ops.TypeName, Ref: childGuid}
				return
			}
			bind(childHandle)
		})
	})
	if err != nil {
		return err
	}
	return visitErr
}

// UnbindAsset clears every child AssetRef inside the value at h, dropping
// the handles without touching the referenced assets' ref counts (the
// caller is responsible for releasing leases separately).
func UnbindAsset(st *storage.Storage, ops TypeOps, h guid.MetaHandle) error {
	if ops.VisitAssetRefs == nil {
		return nil
	}
	if ops.WithMutableValue == nil {
		return ErrNotAsset
	}
	return ops.WithMutableValue(st, h, func(value any) {
		ops.VisitAssetRefs(value, func(_ guid.Guid, bind func(guid.MetaHandle)) {
			bind(guid.MetaHandle{})
		})
	})
}

// BindValue resolves every child asset reference directly inside value (a
// *T produced by Deserialize), without going through Storage. Used by
// BatchRegistry's asset-ref pass over entity components, which live on
// entities rather than in Storage slots.
func BindValue(ops TypeOps, value any, resolve Resolver) error {
	if ops.VisitAssetRefs == nil {
		return nil
	}
	var visitErr error
	ops.VisitAssetRefs(value, func(childGuid guid.Guid, bind func(guid.MetaHandle)) {
		if visitErr != nil {
			return
		}
		childHandle, ok := resolve(childGuid)
		if !ok {
			visitErr = &MissingRefError{TypeName: ops.TypeName, Ref: childGuid}
			return
		}
		bind(childHandle)
	})
	return visitErr
}

// EntityResolver looks up the live entity ID for an entity reference's raw
// guid, typically entity.Manager.GuidToEntity with both sides narrowed to
// uint64 so this package need not import pkg/entity.
type EntityResolver func(rawGuid uint64) (rawID uint64, ok bool)

// BindValueEntityRefs resolves every child entity reference inside value,
// the EntityRefVisitFunc counterpart of BindValue.
func BindValueEntityRefs(ops TypeOps, value any, resolve EntityResolver) error {
	if ops.VisitEntityRefs == nil {
		return nil
	}
	var missing bool
	var missingRaw uint64
	ops.VisitEntityRefs(value, func(rawGuid uint64, bind func(uint64)) {
		if missing {
			return
		}
		resolved, ok := resolve(rawGuid)
		if !ok {
			missing = true
			missingRaw = rawGuid
			return
		}
		bind(resolved)
	})
	if missing {
		return fmt.Errorf("metaregistry: bind %s: referenced entity guid %d is not live", ops.TypeName, missingRaw)
	}
	return nil
}

// CollectAssetRefs returns every child guid referenced directly by value,
// in visitation order. Used by the batch closure computation (spec.md
// §4.5) to expand a seed set of guids into their transitive dependency set.
func CollectAssetRefs(ops TypeOps, value any) []guid.Guid {
	if ops.VisitAssetRefs == nil {
		return nil
	}
	var refs []guid.Guid
	ops.VisitAssetRefs(value, func(childGuid guid.Guid, _ func(guid.MetaHandle)) {
		if childGuid.Valid() {
			refs = append(refs, childGuid)
		}
	})
	return refs
}
