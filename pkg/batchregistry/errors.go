package batchregistry

import "errors"

var (
	// ErrUnknownBatch is returned by any operation naming a BatchID that
	// was never created or loaded from an index.
	ErrUnknownBatch = errors.New("batchregistry: unknown batch")

	// ErrStateTransitionForbidden is returned when a mutation is attempted
	// against a batch in a state that forbids it — e.g. queue_create_entity
	// while the batch is Loading (spec.md §9 Open Question, resolved).
	ErrStateTransitionForbidden = errors.New("batchregistry: state transition forbidden")
)
