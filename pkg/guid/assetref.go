package guid

// AssetRef pairs a stable Guid with the Handle[T] currently bound to it.
// The guid is durable across save/load and process restarts; the handle is
// only valid for the lifetime of the Storage slot it was issued from, and
// is cleared (Unbind) or rewritten (Bind) by the bind pass each time the
// asset it points to is loaded into a fresh slot.
type AssetRef[T any] struct {
	Guid   Guid
	Handle Handle[T]
}

// NewAssetRef constructs an unbound reference to g; Bind must be called
// before the reference can be dereferenced.
func NewAssetRef[T any](g Guid) AssetRef[T] {
	return AssetRef[T]{Guid: g}
}

// IsBound reports whether the reference structurally carries a non-zero
// handle. This is a cheap check and does NOT prove the handle is still
// live against Storage; a ref whose slot was released and its version
// bumped still reports IsBound() true. Use State to distinguish Bound from
// Stale.
func (r AssetRef[T]) IsBound() bool { return r.Handle.Valid() }

// State reports r's lifecycle state per spec.md §3. validate should be
// storage.Validate[T] closed over the Storage instance being checked
// against (this package cannot import pkg/storage, which already imports
// pkg/guid).
func (r AssetRef[T]) State(validate func(Handle[T]) bool) RefState {
	if !r.Guid.Valid() {
		return StateEmpty
	}
	if !r.Handle.Valid() {
		return StateUnbound
	}
	if validate(r.Handle) {
		return StateBound
	}
	return StateStale
}

// Bind rewrites the reference's handle, typically after the bind pass has
// resolved r.Guid to its current Storage slot.
func (r *AssetRef[T]) Bind(h Handle[T]) { r.Handle = h }

// Unbind drops the handle without touching r.Guid, leaving the reference
// ready to be re-bound the next time the asset it names is loaded.
func (r *AssetRef[T]) Unbind() { r.Handle = Handle[T]{} }
