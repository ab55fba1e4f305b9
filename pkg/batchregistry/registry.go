package batchregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/forgeassets/pkg/assetindex"
	"github.com/cuemby/forgeassets/pkg/entity"
	"github.com/cuemby/forgeassets/pkg/events"
	"github.com/cuemby/forgeassets/pkg/executor"
	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/metaregistry"
	"github.com/cuemby/forgeassets/pkg/resourcemanager"
)

// Registry owns every known batch, its current state, and the strand that
// serializes load/unload/entity-mutation sequences against it. Map-shape
// mutations (a *BatchInfo entry appearing or disappearing) take mu
// directly; per-batch lifecycle transitions run on the strand, matching
// the original's "registry storage" mutex separate from its strand.
type Registry struct {
	mu          sync.Mutex
	batches     map[BatchID]*BatchInfo
	batchesRoot string

	strand   *executor.Strand
	rm       *resourcemanager.ResourceManager
	registry *metaregistry.Registry
	index    *assetindex.Index
	entities entity.Manager
	broker   *events.Broker
}

// New constructs an empty Registry rooted at batchesRoot, where per-batch
// files and the index live.
func New(batchesRoot string, pool *executor.Pool, rm *resourcemanager.ResourceManager, reg *metaregistry.Registry, idx *assetindex.Index, entities entity.Manager, broker *events.Broker) *Registry {
	return &Registry{
		batches:     make(map[BatchID]*BatchInfo),
		batchesRoot: batchesRoot,
		strand:      executor.NewStrand(pool),
		rm:          rm,
		registry:    reg,
		index:       idx,
		entities:    entities,
		broker:      broker,
	}
}

// WaitIdle blocks until every posted task has finished running.
func (r *Registry) WaitIdle() { r.strand.WaitIdle() }

// BatchStateCounts satisfies metrics.BatchCounter.
func (r *Registry) BatchStateCounts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int, 6)
	for _, b := range r.batches {
		counts[string(b.State)]++
	}
	return counts
}

// CreateBatch registers a new, empty, Unloaded batch. Synchronous — it
// only touches the in-memory map — matching the original's "create_batch
// ... synchronous, then persisted on next save_index."
func (r *Registry) CreateBatch(name string) BatchID {
	id := guid.New()
	r.mu.Lock()
	r.batches[id] = &BatchInfo{
		ID:       id,
		Name:     name,
		Filename: id.String() + ".json",
		State:    StateUnloaded,
	}
	r.mu.Unlock()
	return id
}

// ListBatches returns a snapshot of every known batch (the original's
// list()), supplementing the distilled spec per SPEC_FULL.md §4.5.
func (r *Registry) ListBatches() []*BatchInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*BatchInfo, 0, len(r.batches))
	for _, b := range r.batches {
		cp := *b
		out = append(out, &cp)
	}
	return out
}

// Get returns a copy of one batch's current info.
func (r *Registry) Get(id BatchID) (BatchInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return BatchInfo{}, false
	}
	return *b, true
}

// SaveIndex writes every known batch's id/name/filename to
// "<batches_root>/index.json" (the original's save_index).
func (r *Registry) SaveIndex() error {
	r.mu.Lock()
	entries := make([]indexEntry, 0, len(r.batches))
	for _, b := range r.batches {
		entries = append(entries, indexEntry{ID: b.ID, Name: b.Name, Filename: b.Filename})
	}
	r.mu.Unlock()

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("batchregistry: marshal index: %w", err)
	}
	if err := os.MkdirAll(r.batchesRoot, 0o755); err != nil {
		return fmt.Errorf("batchregistry: mkdir %s: %w", r.batchesRoot, err)
	}
	return os.WriteFile(filepath.Join(r.batchesRoot, "index.json"), raw, 0o644)
}

// LoadOrCreateIndex reads "<batches_root>/index.json" and registers each
// listed batch as Unloaded, or does nothing if no index exists yet (a
// fresh batches root — the original's load_or_create_index).
func (r *Registry) LoadOrCreateIndex() error {
	raw, err := os.ReadFile(filepath.Join(r.batchesRoot, "index.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("batchregistry: read index: %w", err)
	}

	var entries []indexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("batchregistry: parse index: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.batches[e.ID] = &BatchInfo{ID: e.ID, Name: e.Name, Filename: e.Filename, State: StateUnloaded}
	}
	return nil
}

func (r *Registry) transition(id BatchID, state BatchState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[id]; ok {
		b.State = state
	}
}

func (r *Registry) stateOf(id BatchID) (BatchState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return "", false
	}
	return b.State, true
}

func (r *Registry) idsSnapshot() []BatchID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]BatchID, 0, len(r.batches))
	for id := range r.batches {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) publish(t events.EventType, id BatchID, success bool) {
	if r.broker == nil {
		return
	}
	msg := "ok"
	if !success {
		msg = "failed"
	}
	r.broker.Publish(&events.Event{Type: t, BatchID: id.String(), Message: msg})
}
