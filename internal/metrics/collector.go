package metrics

import (
	"time"

	"pattern-sync/internal/logging"
)

// StatsProvider reports the current size of one store.
type StatsProvider interface {
	Name() string
	Stats() (Stats, error)
}

// Stats holds the current statistics of a store
type Stats struct {
	Records  int
	Buckets  int
	Poisoned bool
}

// Collector periodically copies store statistics into gauges
type Collector struct {
	providers []StatsProvider
	interval  time.Duration
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, providers ...StatsProvider) *Collector {
	return &Collector{
		providers: providers,
		interval:  interval,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	for _, p := range c.providers {
		stats, err := p.Stats()
		if err != nil {
			logging.Debug("metrics: stats for %s unavailable: %v", p.Name(), err)
		}
		StoreRecords.WithLabelValues(p.Name()).Set(float64(stats.Records))
		StoreBuckets.WithLabelValues(p.Name()).Set(float64(stats.Buckets))
		poisoned := 0.0
		if stats.Poisoned {
			poisoned = 1
		}
		StorePoisoned.WithLabelValues(p.Name()).Set(poisoned)
	}
}
