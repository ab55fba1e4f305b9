package storage

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/cuemby/forgeassets/pkg/guid"
)

// goroutineID extracts the calling goroutine's numeric id from its own
// stack trace header ("goroutine 123 [running]:"). Used only to detect
// write-lock re-entrancy within a single goroutine's call chain; never
// compared across goroutines for any other purpose.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// poolLock is a sync.RWMutex whose write side is re-entrant per goroutine,
// so a Modify callback may itself call back into Modify/Add/Retain/
// Release on the SAME pool without deadlocking (spec.md §4.1: "modify
// permits re-entrant calls into Storage on the same type"). Read-side
// locking is plain RWMutex.RLock/RUnlock and is not re-entrant, so a Read
// on the same pool from inside a Modify callback blocks.
type poolLock struct {
	mu       sync.RWMutex
	ownerMu  sync.Mutex
	ownerGID int64
	ownDepth int
}

func (l *poolLock) rlock()   { l.mu.RLock() }
func (l *poolLock) runlock() { l.mu.RUnlock() }

func (l *poolLock) lockWrite() {
	gid := goroutineID()

	l.ownerMu.Lock()
	if l.ownDepth > 0 && l.ownerGID == gid {
		l.ownDepth++
		l.ownerMu.Unlock()
		return
	}
	l.ownerMu.Unlock()

	l.mu.Lock()

	l.ownerMu.Lock()
	l.ownerGID = gid
	l.ownDepth = 1
	l.ownerMu.Unlock()
}

func (l *poolLock) unlockWrite() {
	l.ownerMu.Lock()
	l.ownDepth--
	done := l.ownDepth == 0
	if done {
		l.ownerGID = 0
	}
	l.ownerMu.Unlock()

	if done {
		l.mu.Unlock()
	}
}

// slot holds one stored value plus its bookkeeping. version is bumped on
// every removal so outstanding Handle[T] values referring to a reused
// offset fail validation (Stale) rather than dereferencing a new value.
type slot[T any] struct {
	value    T
	version  uint32
	guid     guid.Guid
	refCount uint32
	present  bool
}

// pool is the per-type-name free-list-backed slot vector described in
// spec.md §4.1. A pool's lock is taken for every access; Read acquires a
// read lock, Modify (and Add/Retain/Release/RemoveNow) acquire a write
// lock. Locks are per-pool, never nested with another pool's lock. The
// write side is re-entrant per goroutine (see poolLock), so a Modify
// callback may recurse back into this same pool to visit contained refs
// without deadlocking.
type pool[T any] struct {
	mu       poolLock
	typeName string
	slots    []slot[T]
	free     []uint32
}

func newPool[T any](typeName string) *pool[T] {
	return &pool[T]{typeName: typeName}
}

// erasedPool is the type-erased view of a pool used by Storage for
// operations that don't know T at compile time (bulk validation, GUID
// lookups during the bind pass over heterogeneous assets).
type erasedPool interface {
	typeNameOf() string
	validateOffset(offset, version uint32) bool
	guidAt(offset uint32) (guid.Guid, bool)
	liveCount() int
}

func (p *pool[T]) typeNameOf() string { return p.typeName }

func (p *pool[T]) liveCount() int {
	p.mu.rlock()
	defer p.mu.runlock()
	return len(p.slots) - len(p.free)
}

func (p *pool[T]) validateOffset(offset, version uint32) bool {
	p.mu.rlock()
	defer p.mu.runlock()
	if int(offset) >= len(p.slots) {
		return false
	}
	s := &p.slots[offset]
	return s.present && s.version == version
}

func (p *pool[T]) guidAt(offset uint32) (guid.Guid, bool) {
	p.mu.rlock()
	defer p.mu.runlock()
	if int(offset) >= len(p.slots) {
		return guid.Invalid(), false
	}
	s := &p.slots[offset]
	if !s.present {
		return guid.Invalid(), false
	}
	return s.guid, true
}

// add inserts value under g, returning the new handle. It does no duplicate
// check of its own; Storage.Add rejects a guid that is already in its guid
// index (ErrAlreadyPresent) before calling it.
func (p *pool[T]) add(value T, g guid.Guid) guid.Handle[T] {
	p.mu.lockWrite()
	defer p.mu.unlockWrite()

	var offset uint32
	if n := len(p.free); n > 0 {
		offset = p.free[n-1]
		p.free = p.free[:n-1]
		s := &p.slots[offset]
		s.value = value
		s.version++
		s.guid = g
		s.refCount = 1
		s.present = true
	} else {
		offset = uint32(len(p.slots))
		p.slots = append(p.slots, slot[T]{value: value, version: 1, guid: g, refCount: 1, present: true})
	}

	return guid.Handle[T]{Offset: offset, Version: p.slots[offset].version, TypeName: p.typeName}
}

func (p *pool[T]) validate(h guid.Handle[T]) bool {
	return p.validateOffset(h.Offset, h.Version)
}

func (p *pool[T]) read(h guid.Handle[T], fn func(T)) (err error) {
	p.mu.rlock()
	defer p.mu.runlock()
	if int(h.Offset) >= len(p.slots) {
		return ErrInvalid
	}
	s := &p.slots[h.Offset]
	if !s.present {
		return ErrStale
	}
	if s.version != h.Version {
		return ErrStale
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("storage: read %s: callback panicked: %v", p.typeName, r)
		}
	}()
	fn(s.value)
	return nil
}

func (p *pool[T]) modify(h guid.Handle[T], fn func(*T)) (err error) {
	p.mu.lockWrite()
	defer p.mu.unlockWrite()
	if int(h.Offset) >= len(p.slots) {
		return ErrInvalid
	}
	s := &p.slots[h.Offset]
	if !s.present {
		return ErrStale
	}
	if s.version != h.Version {
		return ErrStale
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("storage: modify %s: callback panicked: %v", p.typeName, r)
		}
	}()
	fn(&s.value)
	return nil
}

func (p *pool[T]) retain(h guid.Handle[T]) (uint32, error) {
	p.mu.lockWrite()
	defer p.mu.unlockWrite()
	if int(h.Offset) >= len(p.slots) {
		return 0, ErrInvalid
	}
	s := &p.slots[h.Offset]
	if !s.present || s.version != h.Version {
		return 0, ErrStale
	}
	s.refCount++
	return s.refCount, nil
}

// release decrements the ref count. When it reaches zero the slot is freed
// and its version bumped, invalidating every outstanding handle to it.
// Returns the resulting count (0 meaning the slot was just freed) and the
// guid that was removed, if any.
func (p *pool[T]) release(h guid.Handle[T]) (newCount uint32, removedGuid guid.Guid, removed bool, err error) {
	p.mu.lockWrite()
	defer p.mu.unlockWrite()
	if int(h.Offset) >= len(p.slots) {
		return 0, guid.Invalid(), false, ErrInvalid
	}
	s := &p.slots[h.Offset]
	if !s.present || s.version != h.Version {
		return 0, guid.Invalid(), false, ErrStale
	}
	if s.refCount == 0 {
		return 0, guid.Invalid(), false, ErrInvalid
	}
	s.refCount--
	if s.refCount == 0 {
		g := s.guid
		var zero T
		s.value = zero
		s.present = false
		s.version++
		s.guid = guid.Invalid()
		p.free = append(p.free, h.Offset)
		return 0, g, true, nil
	}
	return s.refCount, guid.Invalid(), false, nil
}

// removeNow force-releases the slot regardless of ref count, used by RM
// unload paths under the single-writer guarantee of the RM strand.
func (p *pool[T]) removeNow(h guid.Handle[T]) (guid.Guid, error) {
	p.mu.lockWrite()
	defer p.mu.unlockWrite()
	if int(h.Offset) >= len(p.slots) {
		return guid.Invalid(), ErrInvalid
	}
	s := &p.slots[h.Offset]
	if !s.present || s.version != h.Version {
		return guid.Invalid(), ErrStale
	}
	g := s.guid
	var zero T
	s.value = zero
	s.present = false
	s.refCount = 0
	s.version++
	s.guid = guid.Invalid()
	p.free = append(p.free, h.Offset)
	return g, nil
}
