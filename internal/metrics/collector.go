package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"
)

// RunStatsProvider reports the number of send runs in progress
type RunStatsProvider interface {
	ActiveRuns() int
}

// Collector periodically refreshes gauges that describe process state
type Collector struct {
	metrics   *Metrics
	runStats  RunStatsProvider
	files     []string
	interval  time.Duration
	startTime time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector. files are the local data files whose
// combined size is reported as storage usage.
func NewCollector(m *Metrics, runStats RunStatsProvider, files []string, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 5 * time.Second
	}
	return &Collector{
		metrics:   m,
		runStats:  runStats,
		files:     files,
		interval:  interval,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the collector background task
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	var size int64
	for _, path := range c.files {
		if info, err := os.Stat(path); err == nil {
			size += info.Size()
		}
	}
	c.metrics.StorageUsedBytes.Set(float64(size))

	if c.runStats != nil {
		c.metrics.RunsActive.Set(float64(c.runStats.ActiveRuns()))
	}
}
