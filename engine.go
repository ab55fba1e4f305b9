// Package forgeassets wires Storage, AssetIndex, MetaRegistry,
// ResourceManager, BatchRegistry, and an EntityManager into one explicit
// context object, replacing the singletons the original engine relied on
// (spec.md §9, "explicit context struct instead of singletons").
package forgeassets

import (
	"fmt"

	"github.com/cuemby/forgeassets/pkg/assetindex"
	"github.com/cuemby/forgeassets/pkg/batchregistry"
	"github.com/cuemby/forgeassets/pkg/config"
	"github.com/cuemby/forgeassets/pkg/entity"
	"github.com/cuemby/forgeassets/pkg/events"
	"github.com/cuemby/forgeassets/pkg/executor"
	"github.com/cuemby/forgeassets/pkg/log"
	"github.com/cuemby/forgeassets/pkg/metaregistry"
	"github.com/cuemby/forgeassets/pkg/metrics"
	"github.com/cuemby/forgeassets/pkg/resourcemanager"
	"github.com/cuemby/forgeassets/pkg/storage"
)

// Engine owns every live subsystem for one running process. Callers build
// a MetaRegistry with Register/RegisterComponent, pass it to New, and reach
// everything else off the returned Engine rather than through package-level
// state.
type Engine struct {
	Storage     *storage.Storage
	Index       *assetindex.Index
	Registry    *metaregistry.Registry
	Resources   *resourcemanager.ResourceManager
	Batches     *batchregistry.Registry
	Entities    entity.Manager
	Events      *events.Broker
	Pool        *executor.Pool
	metricsColl *metrics.Collector
}

// New constructs an Engine from cfg and a frozen MetaRegistry. entities may
// be nil, in which case an in-memory reference EntityManager is used.
func New(cfg config.EngineConfig, reg *metaregistry.Registry, entities entity.Manager) (*Engine, error) {
	if !reg.Frozen() {
		return nil, fmt.Errorf("forgeassets: New requires a frozen MetaRegistry")
	}
	if entities == nil {
		entities = entity.NewInMemoryManager()
	}

	idx := assetindex.New(cfg.AssetRoot)
	if cfg.IndexCachePath != "" {
		cache, err := assetindex.OpenCache(cfg.IndexCachePath)
		if err != nil {
			return nil, fmt.Errorf("forgeassets: open index cache: %w", err)
		}
		idx = idx.WithCache(cache)
	}
	if err := idx.Scan(); err != nil {
		return nil, fmt.Errorf("forgeassets: initial scan: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	pool := executor.NewPool(cfg.WorkerPoolSize)
	st := storage.New()

	rm := resourcemanager.New(st, idx, reg, pool, broker)
	batches := batchregistry.New(cfg.BatchesRoot, pool, rm, reg, idx, entities, broker)
	if err := batches.LoadOrCreateIndex(); err != nil {
		return nil, fmt.Errorf("forgeassets: load batch index: %w", err)
	}

	e := &Engine{
		Storage:   st,
		Index:     idx,
		Registry:  reg,
		Resources: rm,
		Batches:   batches,
		Entities:  entities,
		Events:    broker,
		Pool:      pool,
	}
	e.metricsColl = metrics.NewCollector(rm, batches)
	e.metricsColl.Start()
	return e, nil
}

// WaitIdle blocks until both the resource manager's and the batch
// registry's strands have drained every posted task.
func (e *Engine) WaitIdle() {
	e.Resources.WaitIdle()
	e.Batches.WaitIdle()
}

// Close stops the metrics collector, the event broker, and the shared
// worker pool, in that order so nothing is still publishing once its
// listeners are gone.
func (e *Engine) Close() {
	e.metricsColl.Stop()
	e.Events.Stop()
	e.Pool.Stop()
	log.WithComponent("engine").Info().Msg("engine stopped")
}
