package metaregistry

import "errors"

// Error taxonomy for MetaRegistry operations (spec.md §7).
var (
	ErrUnknownType   = errors.New("metaregistry: unknown type name")
	ErrAlreadyFrozen = errors.New("metaregistry: registry is frozen")
	ErrNotAsset      = errors.New("metaregistry: type has no load/unload hooks (component-only registration)")
)
