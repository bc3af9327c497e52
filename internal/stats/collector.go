package stats

import (
	"context"
	"time"

	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
	"github.com/orchardops/orchard/internal/registry"
)

// StatsSource fetches statistics from a node endpoint
type StatsSource interface {
	Stats(ctx context.Context, endpoint string) ([]models.IndexStats, models.MemoryStats, error)
}

// StatusFunc reports the runtime status of a node
type StatusFunc func(name string) models.NodeStatus

// Collector periodically refreshes the cache for every running node
type Collector struct {
	cache    *Cache
	source   StatsSource
	nodes    *registry.NodeRegistry
	status   StatusFunc
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCollector creates a collector polling running nodes every interval
func NewCollector(cache *Cache, source StatsSource, nodes *registry.NodeRegistry,
	status StatusFunc, interval, timeout time.Duration, logger *logging.Logger,
) *Collector {
	return &Collector{
		cache:    cache,
		source:   source,
		nodes:    nodes,
		status:   status,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the collection loop
func (c *Collector) Start() {
	go c.run()
	c.logger.Info("Stats collector started", "interval", c.interval)
}

// Stop terminates the collection loop and waits for it to exit
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Collector) run() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.CollectOnce(context.Background())
		}
	}
}

// CollectOnce refreshes snapshots for every node currently running. A node
// that fails to answer keeps its previous snapshot.
func (c *Collector) CollectOnce(ctx context.Context) {
	configs, err := c.nodes.List(ctx)
	if err != nil {
		c.logger.Warn("Stats collection skipped, node listing failed", "error", err)
		return
	}

	for _, cfg := range configs {
		if c.status(cfg.Name) != models.StatusRunning {
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
		indices, memory, err := c.source.Stats(fetchCtx, cfg.Endpoint())
		cancel()
		if err != nil {
			c.logger.Warn("Failed to collect stats", "node", cfg.Name, "error", err)
			continue
		}

		c.cache.Put(models.StatsSnapshot{
			Node:       cfg.Name,
			Indices:    indices,
			Memory:     memory,
			CapturedAt: time.Now().UTC(),
		})
	}
}
