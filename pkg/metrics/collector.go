package metrics

import "time"

// PoolSizer reports the live slot count for a registered type name, as
// implemented by *storage.Storage and by *resourcemanager.ResourceManager,
// which is what the engine hands to NewCollector.
type PoolSizer interface {
	PoolSizes() map[string]int
}

// BatchCounter reports how many batches currently sit in each state, as
// implemented by *batchregistry.Registry.
type BatchCounter interface {
	BatchStateCounts() map[string]int
}

// Collector periodically samples the running engine's pools and batch
// states into the package-level gauges. Unlike the per-second strand work
// it observes, collection itself runs on a plain ticker since it only ever
// reads snapshots.
type Collector struct {
	pools   PoolSizer
	batches BatchCounter
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector. Either argument may be nil
// if that subsystem isn't wired yet; the collector skips its metrics.
func NewCollector(pools PoolSizer, batches BatchCounter) *Collector {
	return &Collector{
		pools:   pools,
		batches: batches,
		stopCh:  make(chan struct{}),
	}
}

// Start begins periodic collection.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.pools != nil {
		for typeName, n := range c.pools.PoolSizes() {
			PoolSize.WithLabelValues(typeName).Set(float64(n))
		}
	}
	if c.batches != nil {
		for state, n := range c.batches.BatchStateCounts() {
			BatchesTotal.WithLabelValues(state).Set(float64(n))
		}
	}
}
