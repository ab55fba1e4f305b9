package batchregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/forgeassets/pkg/entity"
	"github.com/cuemby/forgeassets/pkg/events"
	"github.com/cuemby/forgeassets/pkg/executor"
	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/log"
	"github.com/cuemby/forgeassets/pkg/metaregistry"
	"github.com/cuemby/forgeassets/pkg/metrics"
	"github.com/cuemby/forgeassets/pkg/resourcemanager"
)

// QueueLoad runs id's full load sequence on the strand (spec.md §4.5 steps
// 1-6) and returns a future for the resulting TaskResult.
func (r *Registry) QueueLoad(id BatchID) *executor.Future[resourcemanager.TaskResult] {
	fut := executor.NewFuture[resourcemanager.TaskResult]()
	r.transition(id, StateQueued)
	r.strand.Post(func() {
		fut.Resolve(r.doLoad(id))
	})
	return fut
}

// QueueLoadAllAsync loads every known batch, waiting inside a worker
// goroutine for each individual load to complete rather than blocking the
// strand itself (the original's queue_load_all_async: "waits ... inside a
// worker thread, not the strand").
func (r *Registry) QueueLoadAllAsync() *executor.Future[resourcemanager.TaskResult] {
	fut := executor.NewFuture[resourcemanager.TaskResult]()
	ids := r.idsSnapshot()
	go func() {
		combined := resourcemanager.TaskResult{Op: resourcemanager.OpLoadAndBind, Success: true}
		for _, id := range ids {
			res := r.QueueLoad(id).Get()
			combined.Results = append(combined.Results, res.Results...)
			if !res.Success {
				combined.Success = false
			}
		}
		fut.Resolve(combined)
	}()
	return fut
}

// doLoad runs entirely on the strand: recompute the closure, load+bind via
// ResourceManager, instantiate entities, resolve entity- and asset-refs,
// then transition to Loaded (or Error on any failed step, per spec.md §4.5
// "Failure semantics").
func (r *Registry) doLoad(id BatchID) resourcemanager.TaskResult {
	logger := log.WithComponent("batchregistry")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BatchLoadDuration)

	r.transition(id, StateLoading)
	result := resourcemanager.TaskResult{Op: resourcemanager.OpLoadAndBind, Success: true}

	file, err := r.readBatchFile(id)
	if err != nil {
		return r.fail(id, result, err)
	}

	closure, augmented, err := computeClosure(r.index, r.registry, file.Assets, file.Entities)
	if err != nil {
		return r.fail(id, result, err)
	}
	if augmented {
		logger.Info().Str("batch", id.String()).Msg("asset closure augmented by entity references")
	}

	loadResult := r.rm.LoadAndBindAsync(id.String(), closure).Get()
	result.Results = append(result.Results, loadResult.Results...)
	if !loadResult.Success {
		return r.fail(id, result, fmt.Errorf("batchregistry: load %s: asset load/bind failed", id))
	}

	live, err := r.spawnEntities(file.Entities)
	if err != nil {
		return r.fail(id, result, err)
	}
	if err := r.resolveEntityRefs(live); err != nil {
		return r.fail(id, result, err)
	}
	if err := r.resolveAssetRefs(live); err != nil {
		return r.fail(id, result, err)
	}

	r.mu.Lock()
	if b, ok := r.batches[id]; ok {
		b.State = StateLoaded
		b.AssetClosure = closure
		b.Live = live
		b.LastResult = result
	}
	r.mu.Unlock()

	if augmented {
		// Persist the widened closure so the next load starts from it
		// without needing to re-augment (spec.md §4.5, "persisted on
		// save_batch").
		file.Assets = closure
		if err := r.writeBatchFile(id, file); err != nil {
			logger.Error().Err(err).Str("batch", id.String()).Msg("failed to persist augmented closure")
		}
	}

	metrics.BatchesTotal.WithLabelValues(string(StateLoaded)).Inc()
	r.publish(events.EventBatchLoaded, id, true)
	return result
}

func (r *Registry) fail(id BatchID, result resourcemanager.TaskResult, err error) resourcemanager.TaskResult {
	result.Success = false
	result.Results = append(result.Results, resourcemanager.OpResult{Success: false, Message: err.Error()})
	r.mu.Lock()
	if b, ok := r.batches[id]; ok {
		b.State = StateError
		b.LastResult = result
	}
	r.mu.Unlock()
	metrics.BatchesTotal.WithLabelValues(string(StateError)).Inc()
	r.publish(events.EventBatchError, id, false)
	return result
}

func (r *Registry) readBatchFile(id BatchID) (*batchFile, error) {
	r.mu.Lock()
	b, ok := r.batches[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUnknownBatch
	}

	path := filepath.Join(r.batchesRoot, b.Filename)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batchregistry: read %s: %w", path, err)
	}
	var file batchFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("batchregistry: parse %s: %w", path, err)
	}
	return &file, nil
}

func (r *Registry) writeBatchFile(id BatchID, file *batchFile) error {
	r.mu.Lock()
	b, ok := r.batches[id]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownBatch
	}

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("batchregistry: marshal %s: %w", b.Filename, err)
	}
	path := filepath.Join(r.batchesRoot, b.Filename)
	if err := os.MkdirAll(r.batchesRoot, 0o755); err != nil {
		return fmt.Errorf("batchregistry: mkdir %s: %w", r.batchesRoot, err)
	}
	return os.WriteFile(path, raw, 0o644)
}

func (r *Registry) spawnEntities(descs []entityDesc) ([]entity.EntityRef, error) {
	live := make([]entity.EntityRef, 0, len(descs))
	for _, desc := range descs {
		parentID := entity.Invalid
		if desc.Parent.Valid() {
			if pid, ok := r.entities.GuidToEntity(desc.Parent); ok {
				parentID = pid
			}
		}
		id, err := r.entities.Create(desc.Guid, desc.Name, parentID)
		if err != nil {
			return nil, fmt.Errorf("batchregistry: create entity %s: %w", desc.Guid, err)
		}
		for _, comp := range desc.Components {
			ops, ok := r.registry.Lookup(comp.TypeName)
			if !ok {
				return nil, fmt.Errorf("batchregistry: unknown component type %q", comp.TypeName)
			}
			value, err := ops.Deserialize(comp.Data)
			if err != nil {
				return nil, fmt.Errorf("batchregistry: deserialize %q: %w", comp.TypeName, err)
			}
			if err := r.entities.AttachComponent(id, comp.TypeName, value); err != nil {
				return nil, fmt.Errorf("batchregistry: attach %q: %w", comp.TypeName, err)
			}
		}
		ref := entity.NewEntityRef(desc.Guid)
		ref.Bind(id)
		live = append(live, ref)
	}
	return live, nil
}

// resolveEntityRefs is the entity-ref pass (spec.md §4.5 step 4): resolve
// every component's entity references against the just-created entities.
func (r *Registry) resolveEntityRefs(live []entity.EntityRef) error {
	var firstErr error
	for _, ref := range live {
		r.entities.VisitComponents(ref.Entity, func(typeName string, value any) {
			if firstErr != nil {
				return
			}
			ops, ok := r.registry.Lookup(typeName)
			if !ok {
				return
			}
			err := metaregistry.BindValueEntityRefs(ops, value, func(rawGuid uint64) (uint64, bool) {
				id, ok := r.entities.GuidToEntity(guid.Guid(rawGuid))
				return uint64(id), ok
			})
			if err != nil {
				firstErr = err
			}
		})
	}
	return firstErr
}

// resolveAssetRefs is the asset-ref pass (spec.md §4.5 step 5): resolve
// every component's asset references against Storage.
func (r *Registry) resolveAssetRefs(live []entity.EntityRef) error {
	var firstErr error
	for _, ref := range live {
		r.entities.VisitComponents(ref.Entity, func(typeName string, value any) {
			if firstErr != nil {
				return
			}
			ops, ok := r.registry.Lookup(typeName)
			if !ok {
				return
			}
			err := metaregistry.BindValue(ops, value, r.rm.StorageHandle)
			if err != nil {
				firstErr = err
			}
		})
	}
	return firstErr
}
