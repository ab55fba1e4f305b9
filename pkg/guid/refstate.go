package guid

// RefState is the four-state lifecycle spec.md §3 assigns to every
// guid-keyed reference (AssetRef[T], entity.EntityRef): Empty, Unbound,
// Bound, Stale.
type RefState int

const (
	// StateEmpty: guid invalid, handle/entity invalid. Never constructed
	// with a real identity.
	StateEmpty RefState = iota
	// StateUnbound: guid valid, handle/entity invalid. A known identity
	// that has not yet been loaded/spawned.
	StateUnbound
	// StateBound: guid valid, handle/entity valid and currently live.
	StateBound
	// StateStale: guid valid, handle/entity structurally non-zero but no
	// longer live (the slot or entity it named was removed/destroyed).
	// Behaves as Unbound until rebound.
	StateStale
)

func (s RefState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateStale:
		return "stale"
	default:
		return "invalid"
	}
}
