package batchregistry

import (
	"github.com/cuemby/forgeassets/pkg/entity"
	"github.com/cuemby/forgeassets/pkg/events"
	"github.com/cuemby/forgeassets/pkg/executor"
	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/metrics"
	"github.com/cuemby/forgeassets/pkg/resourcemanager"
)

// QueueUnload runs id's unload sequence on the strand: detach and destroy
// its live entities, then release its asset leases and unload any asset
// whose total lease count drops to zero (spec.md §4.5, "inverse" of load).
func (r *Registry) QueueUnload(id BatchID) *executor.Future[resourcemanager.TaskResult] {
	fut := executor.NewFuture[resourcemanager.TaskResult]()
	r.transition(id, StateUnloading)
	r.strand.Post(func() {
		fut.Resolve(r.doUnload(id))
	})
	return fut
}

// QueueUnloadAllAsync unloads every known batch, waiting inside a worker
// goroutine for each individual unload, same shape as QueueLoadAllAsync.
func (r *Registry) QueueUnloadAllAsync() *executor.Future[resourcemanager.TaskResult] {
	fut := executor.NewFuture[resourcemanager.TaskResult]()
	ids := r.idsSnapshot()
	go func() {
		combined := resourcemanager.TaskResult{Op: resourcemanager.OpUnbindAndUnload, Success: true}
		for _, id := range ids {
			res := r.QueueUnload(id).Get()
			combined.Results = append(combined.Results, res.Results...)
			if !res.Success {
				combined.Success = false
			}
		}
		fut.Resolve(combined)
	}()
	return fut
}

func (r *Registry) doUnload(id BatchID) resourcemanager.TaskResult {
	result := resourcemanager.TaskResult{Op: resourcemanager.OpUnbindAndUnload, Success: true}

	r.mu.Lock()
	b, ok := r.batches[id]
	var closure []guid.Guid
	var live []entity.EntityRef
	if ok {
		closure = append([]guid.Guid(nil), b.AssetClosure...)
		live = append([]entity.EntityRef(nil), b.Live...)
	}
	r.mu.Unlock()
	if !ok {
		return r.fail(id, result, ErrUnknownBatch)
	}

	for _, ref := range live {
		if err := r.entities.Destroy(ref.Entity); err != nil {
			result.Success = false
			result.Results = append(result.Results, resourcemanager.OpResult{Success: false, Message: err.Error()})
		}
	}

	unloadResult := r.rm.UnbindAndUnloadAsync(id.String(), closure).Get()
	result.Results = append(result.Results, unloadResult.Results...)
	if !unloadResult.Success {
		result.Success = false
	}

	r.mu.Lock()
	if b, ok := r.batches[id]; ok {
		if result.Success {
			b.State = StateUnloaded
		} else {
			b.State = StateError
		}
		b.Live = nil
		b.LastResult = result
	}
	r.mu.Unlock()

	if result.Success {
		metrics.BatchesTotal.WithLabelValues(string(StateUnloaded)).Inc()
		r.publish(events.EventBatchUnloaded, id, true)
	} else {
		metrics.BatchesTotal.WithLabelValues(string(StateError)).Inc()
		r.publish(events.EventBatchError, id, false)
	}
	return result
}
