// Package storage implements the asset runtime's type-erased, versioned,
// reference-counted value pool (spec.md §4.1): one pool per registered
// type name, a GUID↔handle index shared across all pools, and a per-pool
// write lock that is re-entrant per goroutine for Modify.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/forgeassets/pkg/guid"
	"golang.org/x/sync/errgroup"
)

// Storage owns every loaded asset value, keyed by Guid, across all
// registered type names. Lock order is always GUID index -> pool, never
// the reverse (spec.md §4.1, §5), and Read/Modify only ever take the pool
// lock so callers can safely nest a read of a different type inside a
// modify of another.
type Storage struct {
	poolsMu sync.RWMutex
	pools   map[string]erasedPool

	guidMu       sync.RWMutex
	guidToHandle map[guid.Guid]guid.MetaHandle
}

// New constructs an empty Storage.
func New() *Storage {
	return &Storage{
		pools:        make(map[string]erasedPool),
		guidToHandle: make(map[guid.Guid]guid.MetaHandle),
	}
}

// Assure idempotently creates the pool for typeName if it does not already
// exist. Calling Assure[T] twice with the same typeName is a no-op; calling
// it twice with the same typeName but different T is a programming error
// and panics, since it would violate the type tag invariant (spec.md I1).
func Assure[T any](s *Storage, typeName string) {
	s.poolsMu.Lock()
	defer s.poolsMu.Unlock()
	if existing, ok := s.pools[typeName]; ok {
		if _, same := existing.(*pool[T]); !same {
			panic(fmt.Sprintf("storage: type %q re-assured with a different Go type", typeName))
		}
		return
	}
	s.pools[typeName] = newPool[T](typeName)
}

func poolFor[T any](s *Storage, typeName string) (*pool[T], error) {
	s.poolsMu.RLock()
	p, ok := s.pools[typeName]
	s.poolsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: pool %q not assured: %w", typeName, ErrNotFound)
	}
	tp, ok := p.(*pool[T])
	if !ok {
		return nil, fmt.Errorf("storage: pool %q: %w", typeName, ErrTypeMismatch)
	}
	return tp, nil
}

// Add inserts value under g into the typeName pool (creating it is the
// caller's responsibility via Assure). Fails with ErrAlreadyPresent if g is
// already mapped anywhere in Storage.
func Add[T any](s *Storage, typeName string, value T, g guid.Guid) (guid.Handle[T], error) {
	if !g.Valid() {
		return guid.Handle[T]{}, ErrInvalid
	}
	p, err := poolFor[T](s, typeName)
	if err != nil {
		return guid.Handle[T]{}, err
	}

	// Lock order is guid index -> pool: hold guidMu across the pool insert
	// so a concurrent Add for the same guid observes AlreadyPresent rather
	// than racing the index update below.
	s.guidMu.Lock()
	defer s.guidMu.Unlock()
	if _, exists := s.guidToHandle[g]; exists {
		return guid.Handle[T]{}, ErrAlreadyPresent
	}
	h := p.add(value, g)
	s.guidToHandle[g] = h.Meta()

	return h, nil
}

// HandleForGUID looks up the handle currently mapped to g, if any. O(1).
func HandleForGUID[T any](s *Storage, typeName string, g guid.Guid) (guid.Handle[T], bool) {
	s.guidMu.RLock()
	m, ok := s.guidToHandle[g]
	s.guidMu.RUnlock()
	if !ok || m.TypeName != typeName {
		return guid.Handle[T]{}, false
	}
	return guid.Handle[T]{Offset: m.Offset, Version: m.Version, TypeName: m.TypeName}, true
}

// HandleForGUIDMeta is the type-erased counterpart of HandleForGUID, used
// by the bind pass (which does not know the static T of a referenced
// asset until it dispatches through MetaRegistry).
func HandleForGUIDMeta(s *Storage, g guid.Guid) (guid.MetaHandle, bool) {
	s.guidMu.RLock()
	defer s.guidMu.RUnlock()
	m, ok := s.guidToHandle[g]
	return m, ok
}

// GUIDForHandle returns the guid currently mapped to h, if the slot is
// still present and the version matches. O(1).
func GUIDForHandle[T any](s *Storage, typeName string, h guid.Handle[T]) (guid.Guid, bool) {
	p, err := poolFor[T](s, typeName)
	if err != nil {
		return guid.Invalid(), false
	}
	if !p.validate(h) {
		return guid.Invalid(), false
	}
	return p.guidAt(h.Offset)
}

// Validate reports whether h refers to a live slot of the expected type.
func Validate[T any](s *Storage, typeName string, h guid.Handle[T]) bool {
	p, err := poolFor[T](s, typeName)
	if err != nil {
		return false
	}
	return p.validate(h)
}

// ValidateMeta is the type-erased counterpart of Validate, used when only a
// MetaHandle (dynamic type name) is available.
func ValidateMeta(s *Storage, h guid.MetaHandle) bool {
	s.poolsMu.RLock()
	p, ok := s.pools[h.TypeName]
	s.poolsMu.RUnlock()
	if !ok {
		return false
	}
	return p.validateOffset(h.Offset, h.Version)
}

// Read acquires a shared lock on h's pool and invokes fn with the current
// value. Returns ErrStale/ErrInvalid/ErrTypeMismatch without invoking fn on
// failure. fn must not itself call Read or Modify on the SAME pool (the
// read lock is not write-reentrant); reads and modifies of OTHER pools are
// fine, as is a Modify whose callback recurses into Modify on the SAME pool
// (see Modify).
func Read[T any](s *Storage, typeName string, h guid.Handle[T], fn func(T)) error {
	p, err := poolFor[T](s, typeName)
	if err != nil {
		return err
	}
	return p.read(h, fn)
}

// Modify acquires an exclusive lock on h's pool and invokes fn with a
// pointer to the current value so callers can mutate it in place (e.g. to
// wire a child AssetRef's handle during the bind pass). The write lock is
// re-entrant per goroutine: fn may itself call Modify (or Add/Retain/
// Release/RemoveNow) again on the SAME pool, to support a recursive visit
// of contained refs of the same type, without deadlocking.
func Modify[T any](s *Storage, typeName string, h guid.Handle[T], fn func(*T)) error {
	p, err := poolFor[T](s, typeName)
	if err != nil {
		return err
	}
	return p.modify(h, fn)
}

// Retain increments h's ref count, returning the new count.
func Retain[T any](s *Storage, typeName string, h guid.Handle[T]) (uint32, error) {
	p, err := poolFor[T](s, typeName)
	if err != nil {
		return 0, err
	}
	return p.retain(h)
}

// Release decrements h's ref count. When the count reaches zero, the slot
// is freed, its version bumped (invalidating outstanding handles), and the
// GUID index entry removed.
func Release[T any](s *Storage, typeName string, h guid.Handle[T]) (uint32, error) {
	p, err := poolFor[T](s, typeName)
	if err != nil {
		return 0, err
	}
	count, g, removed, err := p.release(h)
	if err != nil {
		return 0, err
	}
	if removed {
		s.guidMu.Lock()
		delete(s.guidToHandle, g)
		s.guidMu.Unlock()
	}
	return count, nil
}

// RemoveNow force-releases h regardless of ref count. Used by
// ResourceManager's unload path, which holds the single-writer guarantee
// of its strand.
func RemoveNow[T any](s *Storage, typeName string, h guid.Handle[T]) error {
	p, err := poolFor[T](s, typeName)
	if err != nil {
		return err
	}
	g, err := p.removeNow(h)
	if err != nil {
		return err
	}
	s.guidMu.Lock()
	delete(s.guidToHandle, g)
	s.guidMu.Unlock()
	return nil
}

// ValidateAll performs a bulk liveness check over handles, fanned out
// across at most 8 goroutines via errgroup. The bind pass does not call
// it; it validates handles one at a time.
func (s *Storage) ValidateAll(handles []guid.MetaHandle) []bool {
	results := make([]bool, len(handles))
	if len(handles) == 0 {
		return results
	}

	const maxWorkers = 8
	workers := maxWorkers
	if workers > len(handles) {
		workers = len(handles)
	}
	chunk := (len(handles) + workers - 1) / workers

	g, _ := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= len(handles) {
			break
		}
		end := start + chunk
		if end > len(handles) {
			end = len(handles)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				results[i] = ValidateMeta(s, handles[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// PoolSizes reports the live slot count for every assured type, for
// metrics collection.
func (s *Storage) PoolSizes() map[string]int {
	s.poolsMu.RLock()
	defer s.poolsMu.RUnlock()
	sizes := make(map[string]int, len(s.pools))
	for name, p := range s.pools {
		sizes[name] = p.liveCount()
	}
	return sizes
}
