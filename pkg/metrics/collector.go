package metrics

import (
	"time"

	"github.com/unum-cloud/ukvdb/pkg/kv"
)

// Collector periodically samples cardinality-estimate metrics from an
// Engine into the exported Prometheus gauges.
type Collector struct {
	engine *kv.Engine
	stopCh chan struct{}
}

// NewCollector creates a metrics collector bound to an engine.
func NewCollector(engine *kv.Engine) *Collector {
	return &Collector{
		engine: engine,
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic collection loop.
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

// Stop stops the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for name, handle := range c.engine.ListCollections() {
		measurement, err := c.engine.Measure(handle, c.engine.Generation())
		if err != nil {
			continue
		}
		CollectionCardinality.WithLabelValues(name).Set(float64(measurement.MaxCardinality))
	}
}
