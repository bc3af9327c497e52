// Package stats caches per-node statistics snapshots. Snapshots survive node
// stops: a stopped node keeps reporting its last known statistics together
// with their age, and the cache is persisted to disk so snapshots also
// survive orchestrator restarts.
package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/snappy"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
)

const snapshotSuffix = ".stats.sz"

// Cache holds the latest statistics snapshot per node
type Cache struct {
	mu        sync.RWMutex
	snapshots map[string]models.StatsSnapshot

	dir    string
	logger *logging.Logger
}

// NewCache creates a snapshot cache backed by dir. Snapshots persisted by a
// previous run are loaded eagerly; corrupt files are skipped.
func NewCache(dir string, logger *logging.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errdefs.IO("failed to create stats directory %s", dir).WithCause(err)
	}

	c := &Cache{
		snapshots: make(map[string]models.StatsSnapshot),
		dir:       dir,
		logger:    logger,
	}
	c.loadAll()
	return c, nil
}

// Put stores a snapshot and persists it to disk. A persistence failure is
// logged but does not fail the update.
func (c *Cache) Put(snapshot models.StatsSnapshot) {
	c.mu.Lock()
	c.snapshots[snapshot.Node] = snapshot
	c.mu.Unlock()

	if err := c.persist(snapshot); err != nil {
		c.logger.Warn("Failed to persist stats snapshot",
			"node", snapshot.Node, "error", err)
	}
}

// Get returns the latest snapshot for a node
func (c *Cache) Get(node string) (models.StatsSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot, ok := c.snapshots[node]
	return snapshot, ok
}

// Remove drops a node's snapshot, in memory and on disk. Called when the
// node itself is deleted, never when it merely stops.
func (c *Cache) Remove(node string) {
	c.mu.Lock()
	delete(c.snapshots, node)
	c.mu.Unlock()

	if err := os.Remove(c.path(node)); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("Failed to remove persisted snapshot", "node", node, "error", err)
	}
}

// Nodes returns the node names with a cached snapshot
func (c *Cache) Nodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.snapshots))
	for name := range c.snapshots {
		names = append(names, name)
	}
	return names
}

func (c *Cache) path(node string) string {
	return filepath.Join(c.dir, node+snapshotSuffix)
}

func (c *Cache) persist(snapshot models.StatsSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	compressed := snappy.Encode(nil, data)

	// Write-then-rename keeps a crash from leaving a torn snapshot behind
	tmp := c.path(snapshot.Node) + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(snapshot.Node))
}

func (c *Cache) loadAll() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn("Failed to read stats directory", "dir", c.dir, "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotSuffix) {
			continue
		}

		compressed, err := os.ReadFile(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			c.logger.Warn("Failed to read persisted snapshot", "file", entry.Name(), "error", err)
			continue
		}

		data, err := snappy.Decode(nil, compressed)
		if err != nil {
			c.logger.Warn("Skipping corrupt snapshot file", "file", entry.Name(), "error", err)
			continue
		}

		var snapshot models.StatsSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			c.logger.Warn("Skipping unreadable snapshot file", "file", entry.Name(), "error", err)
			continue
		}

		c.snapshots[snapshot.Node] = snapshot
	}

	if len(c.snapshots) > 0 {
		c.logger.Info("Loaded persisted stats snapshots", "count", len(c.snapshots))
	}
}
