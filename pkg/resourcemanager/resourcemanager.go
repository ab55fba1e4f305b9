// Package resourcemanager orchestrates loading, binding, unbinding, and
// unloading assets on a strand (spec.md §4.4): it enforces at-most-one
// in-flight load per guid, tracks per-batch leases, and delegates the
// type-specific load/unload/bind work to pkg/metaregistry.
package resourcemanager

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cuemby/forgeassets/pkg/assetindex"
	"github.com/cuemby/forgeassets/pkg/events"
	"github.com/cuemby/forgeassets/pkg/executor"
	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/log"
	"github.com/cuemby/forgeassets/pkg/metaregistry"
	"github.com/cuemby/forgeassets/pkg/metrics"
	"github.com/cuemby/forgeassets/pkg/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// maxParallelLoads bounds the fan-out within one batch's load pass.
const maxParallelLoads = 8

// ResourceManager is the single point of contact between BatchRegistry and
// Storage/AssetIndex/MetaRegistry. All public *Async methods post their
// work to a strand, so distinct calls never interleave their Storage
// mutations; the per-guid load step within one call additionally dedupes
// via singleflight so the same guid is never read from disk twice at once.
type ResourceManager struct {
	storage  *storage.Storage
	index    *assetindex.Index
	registry *metaregistry.Registry
	strand   *executor.Strand
	leases   *leaseTable
	inflight singleflight.Group
	broker   *events.Broker
}

// New constructs a ResourceManager. pool is the shared worker pool its
// strand posts drain jobs to; broker may be nil if no events are needed.
func New(st *storage.Storage, idx *assetindex.Index, reg *metaregistry.Registry, pool *executor.Pool, broker *events.Broker) *ResourceManager {
	return &ResourceManager{
		storage:  st,
		index:    idx,
		registry: reg,
		strand:   executor.NewStrand(pool),
		leases:   newLeaseTable(),
		broker:   broker,
	}
}

// WaitIdle blocks until every posted task has finished running.
func (rm *ResourceManager) WaitIdle() {
	rm.strand.WaitIdle()
}

// TotalLeases returns g's current total lease count across all batches.
func (rm *ResourceManager) TotalLeases(g guid.Guid) uint32 { return rm.leases.totalLeases(g) }

// HeldByBatch reports whether batchID currently holds a lease on g.
func (rm *ResourceManager) HeldByBatch(batchID string, g guid.Guid) bool {
	return rm.leases.heldByBatch(batchID, g)
}

// HeldByAny reports whether any batch currently holds a lease on g.
func (rm *ResourceManager) HeldByAny(g guid.Guid) bool { return rm.leases.heldByAny(g) }

// PoolSizes satisfies metrics.PoolSizer.
func (rm *ResourceManager) PoolSizes() map[string]int { return rm.storage.PoolSizes() }

// StorageHandle looks up g's current MetaHandle, for callers outside this
// package (BatchRegistry's asset-ref pass over entity components) that need
// to resolve a child reference without reaching into Storage directly.
func (rm *ResourceManager) StorageHandle(g guid.Guid) (guid.MetaHandle, bool) {
	return storage.HandleForGUIDMeta(rm.storage, g)
}

// ScanAssetsAsync re-scans the asset tree on the strand, returning a
// future for the resulting error (nil on success).
func (rm *ResourceManager) ScanAssetsAsync() *executor.Future[error] {
	fut := executor.NewFuture[error]()
	rm.strand.Post(func() {
		fut.Resolve(rm.index.Scan())
	})
	return fut
}

// LoadAndBindAsync loads every guid in closure not already resident,
// acquires a lease on each for batchID, then binds every asset's child
// references. Returns a future for the combined TaskResult.
func (rm *ResourceManager) LoadAndBindAsync(batchID string, closure []guid.Guid) *executor.Future[TaskResult] {
	fut := executor.NewFuture[TaskResult]()
	rm.strand.Post(func() {
		fut.Resolve(rm.loadAndBind(batchID, closure))
	})
	return fut
}

// UnbindAndUnloadAsync releases batchID's lease on each guid in closure,
// then clears the child references of, and unloads, every asset whose
// total lease count drops to zero. Assets still leased by another batch
// keep their bindings.
func (rm *ResourceManager) UnbindAndUnloadAsync(batchID string, closure []guid.Guid) *executor.Future[TaskResult] {
	fut := executor.NewFuture[TaskResult]()
	rm.strand.Post(func() {
		fut.Resolve(rm.unbindAndUnload(batchID, closure))
	})
	return fut
}

// ReloadAndRebindAsync force-reloads a single already-loaded guid from its
// current on-disk payload, replacing its Storage slot. Callers that hold a
// handle to g must re-resolve it afterward (spec.md §9, hot-reload is
// "out of scope for invariant testing" but the primitive is provided).
func (rm *ResourceManager) ReloadAndRebindAsync(g guid.Guid) *executor.Future[TaskResult] {
	fut := executor.NewFuture[TaskResult]()
	rm.strand.Post(func() {
		fut.Resolve(rm.reloadAndRebind(g))
	})
	return fut
}

func (rm *ResourceManager) loadAndBind(batchID string, closure []guid.Guid) TaskResult {
	logger := log.WithBatch(batchID)
	result := TaskResult{Op: OpLoadAndBind, Success: true}
	data := rm.index.Current()

	var mu sync.Mutex
	eg, _ := errgroup.WithContext(context.Background())
	eg.SetLimit(maxParallelLoads)
	for _, assetGuid := range closure {
		assetGuid := assetGuid
		eg.Go(func() error {
			err := rm.loadOne(assetGuid, data)
			mu.Lock()
			result.record(assetGuid, err)
			if err == nil {
				rm.leases.acquire(batchID, assetGuid)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	if !result.Success {
		logger.Warn().Msg("load pass failed, skipping bind pass")
		rm.publish(events.EventResourceLoadError, batchID, guid.Invalid(), "", "load pass failed")
		return result
	}

	for _, assetGuid := range closure {
		if err := rm.bindOne(assetGuid, data); err != nil {
			result.record(assetGuid, err)
		}
	}

	if result.Success {
		rm.publish(events.EventResourceBound, batchID, guid.Invalid(), "", "")
	}
	return result
}

func (rm *ResourceManager) unbindAndUnload(batchID string, closure []guid.Guid) TaskResult {
	result := TaskResult{Op: OpUnbindAndUnload, Success: true}
	data := rm.index.Current()

	for _, assetGuid := range closure {
		meta, ok := storage.HandleForGUIDMeta(rm.storage, assetGuid)
		if !ok {
			// Already gone; releasing a lease on it is a no-op.
			rm.leases.release(batchID, assetGuid)
			result.record(assetGuid, nil)
			continue
		}

		total, _ := rm.leases.release(batchID, assetGuid)
		if total > 0 {
			result.record(assetGuid, nil)
			continue
		}
		entry, hasEntry := data.ByGuid[assetGuid]
		if !hasEntry {
			result.record(assetGuid, fmt.Errorf("resourcemanager: unload %s: not found in asset index", assetGuid))
			continue
		}
		ops, ok := rm.registry.Lookup(entry.Meta.TypeName)
		if !ok {
			result.record(assetGuid, fmt.Errorf("resourcemanager: unload %s: unknown type %q", assetGuid, entry.Meta.TypeName))
			continue
		}
		_ = metaregistry.UnbindAsset(rm.storage, ops, meta)
		err := ops.UnloadAsset(rm.storage, meta)
		result.record(assetGuid, err)
	}

	rm.publish(events.EventResourceUnloaded, batchID, guid.Invalid(), "", "")
	return result
}

func (rm *ResourceManager) reloadAndRebind(g guid.Guid) TaskResult {
	result := TaskResult{Op: OpReloadAndRebind, Success: true}
	data := rm.index.Current()

	entry, ok := data.ByGuid[g]
	if !ok {
		result.record(g, fmt.Errorf("resourcemanager: reload %s: not found in asset index", g))
		return result
	}
	ops, ok := rm.registry.Lookup(entry.Meta.TypeName)
	if !ok || !ops.IsAsset() {
		result.record(g, fmt.Errorf("resourcemanager: reload %s: type %q has no load hook", g, entry.Meta.TypeName))
		return result
	}

	if meta, stillLoaded := storage.HandleForGUIDMeta(rm.storage, g); stillLoaded {
		_ = ops.UnloadAsset(rm.storage, meta)
	}

	err := rm.loadOne(g, data)
	result.record(g, err)
	if err == nil {
		_ = rm.bindOne(g, data)
	}
	return result
}

// loadOne loads g into Storage if it isn't resident yet, deduping
// concurrent callers for the same guid via singleflight.
func (rm *ResourceManager) loadOne(g guid.Guid, data *assetindex.Data) error {
	if _, ok := storage.HandleForGUIDMeta(rm.storage, g); ok {
		return nil
	}

	_, err, _ := rm.inflight.Do(g.String(), func() (any, error) {
		if _, ok := storage.HandleForGUIDMeta(rm.storage, g); ok {
			return nil, nil
		}
		entry, ok := data.ByGuid[g]
		if !ok {
			return nil, fmt.Errorf("resourcemanager: guid %s not found in asset index", g)
		}
		ops, ok := rm.registry.Lookup(entry.Meta.TypeName)
		if !ok || !ops.IsAsset() {
			return nil, fmt.Errorf("resourcemanager: type %q has no load hook", entry.Meta.TypeName)
		}
		raw, err := os.ReadFile(entry.PayloadPath())
		if err != nil {
			return nil, fmt.Errorf("resourcemanager: read %s: %w", entry.PayloadPath(), err)
		}

		timer := metrics.NewTimer()
		_, loadErr := ops.LoadAsset(rm.storage, raw, g)
		timer.ObserveDurationVec(metrics.LoadDuration, entry.Meta.TypeName)
		if loadErr != nil {
			metrics.LoadErrorsTotal.WithLabelValues(entry.Meta.TypeName).Inc()
		}
		return nil, loadErr
	})
	return err
}

func (rm *ResourceManager) bindOne(g guid.Guid, data *assetindex.Data) error {
	meta, ok := storage.HandleForGUIDMeta(rm.storage, g)
	if !ok {
		return fmt.Errorf("resourcemanager: bind %s: not loaded", g)
	}
	entry, ok := data.ByGuid[g]
	if !ok {
		return fmt.Errorf("resourcemanager: bind %s: not found in asset index", g)
	}
	ops, ok := rm.registry.Lookup(entry.Meta.TypeName)
	if !ok {
		return fmt.Errorf("resourcemanager: bind %s: unknown type %q", g, entry.Meta.TypeName)
	}

	resolve := func(childGuid guid.Guid) (guid.MetaHandle, bool) {
		return storage.HandleForGUIDMeta(rm.storage, childGuid)
	}

	timer := metrics.NewTimer()
	err := metaregistry.BindAsset(rm.storage, ops, meta, resolve)
	timer.ObserveDurationVec(metrics.BindDuration, entry.Meta.TypeName)
	return err
}

func (rm *ResourceManager) publish(t events.EventType, batchID string, g guid.Guid, typeName, message string) {
	if rm.broker == nil {
		return
	}
	rm.broker.Publish(&events.Event{
		Type:     t,
		BatchID:  batchID,
		Guid:     g,
		TypeName: typeName,
		Message:  message,
	})
}
