package guid

// MetaHandle is a type-erased handle: an (offset, version, dynamic type
// name) triple used across generic interfaces where the static type T is
// not known to the caller (e.g. MetaRegistry visit hooks).
type MetaHandle struct {
	Offset   uint32
	Version  uint32
	TypeName string
}

// Valid reports whether the handle carries a non-zero version, i.e. it was
// produced by a successful Storage.Add and has not been structurally reset.
// It does NOT check liveness against the pool — use Storage.Validate for
// that.
func (h MetaHandle) Valid() bool {
	return h.Version != 0
}

// Handle[T] is a versioned cursor into a Storage pool for the statically
// typed value T. It dereferences through Storage.Read/Storage.Modify.
// Handle[T] becomes invalid (Stale) when the slot at Offset is removed and
// its version is bumped, or when it is the zero value (Empty).
type Handle[T any] struct {
	Offset   uint32
	Version  uint32
	TypeName string
}

// Valid reports whether the handle is non-zero. It does not by itself prove
// liveness; combine with Storage.Validate for that guarantee.
func (h Handle[T]) Valid() bool {
	return h.Version != 0
}

// Meta erases the static type, producing a MetaHandle for use across
// generic (type-erased) interfaces such as MetaRegistry hooks.
func (h Handle[T]) Meta() MetaHandle {
	return MetaHandle{Offset: h.Offset, Version: h.Version, TypeName: h.TypeName}
}

// HandleFromMeta reconstructs a typed Handle[T] from a MetaHandle, provided
// the caller asserts the expected type name. Callers obtain expectedType
// from the same string MetaRegistry entries are keyed by.
func HandleFromMeta[T any](m MetaHandle, expectedType string) (Handle[T], bool) {
	if m.TypeName != expectedType {
		return Handle[T]{}, false
	}
	return Handle[T]{Offset: m.Offset, Version: m.Version, TypeName: m.TypeName}, true
}
