package resourcemanager

import (
	"sync"

	"github.com/cuemby/forgeassets/pkg/guid"
)

// lease tracks how many batches currently hold a reference to one guid.
// batch_acquire/batch_release are idempotent per (batch, guid): a batch
// holds at most one lease on a guid, so a repeated acquire from the same
// batch changes nothing and a single release drops it, matching the
// original engine's AssetLease (original_source/src/assets/ResourceManager.hpp).
type lease struct {
	total   uint32
	byBatch map[string]uint32
}

// leaseTable is the per-ResourceManager map of guid -> lease, all access
// guarded by a single mutex since lease bookkeeping is cheap and always
// happens alongside a Storage mutation anyway.
type leaseTable struct {
	mu    sync.Mutex
	table map[guid.Guid]*lease
}

func newLeaseTable() *leaseTable {
	return &leaseTable{table: make(map[guid.Guid]*lease)}
}

// acquire records batchID's lease on g, creating the lease record if
// needed; it is a no-op if batchID already holds one. Returns the new total
// and whether this was the first acquire by batchID specifically (useful
// for callers that only want to react once).
func (lt *leaseTable) acquire(batchID string, g guid.Guid) (total uint32, firstForBatch bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	l, ok := lt.table[g]
	if !ok {
		l = &lease{byBatch: make(map[string]uint32)}
		lt.table[g] = l
	}
	if l.byBatch[batchID] == 0 {
		firstForBatch = true
		l.total++
		l.byBatch[batchID] = 1
	}
	return l.total, firstForBatch
}

// release decrements g's lease for batchID. Returns the new total (0 means
// g has no remaining holders and is eligible for unload) and whether the
// lease record was fully removed.
func (lt *leaseTable) release(batchID string, g guid.Guid) (total uint32, removed bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	l, ok := lt.table[g]
	if !ok {
		return 0, false
	}
	if l.byBatch[batchID] == 0 {
		return l.total, false
	}
	l.byBatch[batchID]--
	if l.byBatch[batchID] == 0 {
		delete(l.byBatch, batchID)
		if l.total > 0 {
			l.total--
		}
	}
	if l.total == 0 {
		delete(lt.table, g)
		return 0, true
	}
	return l.total, false
}

// totalLeases returns g's current total lease count (0 if untracked).
func (lt *leaseTable) totalLeases(g guid.Guid) uint32 {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if l, ok := lt.table[g]; ok {
		return l.total
	}
	return 0
}

// heldByBatch reports whether batchID currently holds a lease on g.
func (lt *leaseTable) heldByBatch(batchID string, g guid.Guid) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.table[g]
	if !ok {
		return false
	}
	return l.byBatch[batchID] > 0
}

// heldByAny reports whether any batch currently holds a lease on g.
func (lt *leaseTable) heldByAny(g guid.Guid) bool {
	return lt.totalLeases(g) > 0
}
