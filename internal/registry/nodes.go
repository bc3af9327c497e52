package registry

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
)

// NodeRegistry is the durable store of node configuration records.
// Endpoint and path uniqueness across all records is enforced here: a create
// or update that would collide fails with a validation error and leaves the
// registry unchanged.
type NodeRegistry struct {
	kv     KV
	logger *logging.Logger

	// Serializes check-then-write sequences. The orchestrator is the only
	// writer of its own key space.
	mu sync.Mutex
}

// NewNodeRegistry creates a node registry on top of the given store
func NewNodeRegistry(kv KV, logger *logging.Logger) *NodeRegistry {
	return &NodeRegistry{kv: kv, logger: logger}
}

// Create validates and persists a new node configuration
func (r *NodeRegistry) Create(ctx context.Context, cfg *models.NodeConfig) error {
	if err := cfg.Validate(); err != nil {
		return errdefs.Validation("invalid node config: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists, err := r.kv.Get(ctx, nodePrefix+cfg.Name)
	if err != nil {
		return errdefs.IO("failed to read node registry").WithCause(err)
	}
	if exists {
		return errdefs.Validation("node %s already exists", cfg.Name)
	}

	others, err := r.listLocked(ctx)
	if err != nil {
		return err
	}
	if err := checkCollisions(cfg, others); err != nil {
		return err
	}

	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := r.putLocked(ctx, cfg); err != nil {
		return err
	}

	r.logger.Info("Node registered",
		"node", cfg.Name,
		"cluster", cfg.Cluster,
		"endpoint", cfg.Endpoint())
	return nil
}

// Get returns the configuration for name
func (r *NodeRegistry) Get(ctx context.Context, name string) (*models.NodeConfig, error) {
	value, exists, err := r.kv.Get(ctx, nodePrefix+name)
	if err != nil {
		return nil, errdefs.IO("failed to read node registry").WithCause(err)
	}
	if !exists {
		return nil, errdefs.NotFound("node %s not found", name)
	}

	var cfg models.NodeConfig
	if err := json.Unmarshal([]byte(value), &cfg); err != nil {
		return nil, errdefs.Internal("corrupt node record for %s", name).WithCause(err)
	}
	return &cfg, nil
}

// List returns all node configurations sorted by name
func (r *NodeRegistry) List(ctx context.Context) ([]*models.NodeConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(ctx)
}

// ListByCluster returns all nodes assigned to the given cluster
func (r *NodeRegistry) ListByCluster(ctx context.Context, cluster string) ([]*models.NodeConfig, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	var members []*models.NodeConfig
	for _, cfg := range all {
		if cfg.Cluster == cluster {
			members = append(members, cfg)
		}
	}
	return members, nil
}

// Update validates and persists changes to an existing node configuration.
// The name is immutable; callers gate updates on the node being stopped.
func (r *NodeRegistry) Update(ctx context.Context, cfg *models.NodeConfig) error {
	if err := cfg.Validate(); err != nil {
		return errdefs.Validation("invalid node config: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists, err := r.kv.Get(ctx, nodePrefix+cfg.Name)
	if err != nil {
		return errdefs.IO("failed to read node registry").WithCause(err)
	}
	if !exists {
		return errdefs.NotFound("node %s not found", cfg.Name)
	}

	all, err := r.listLocked(ctx)
	if err != nil {
		return err
	}
	others := all[:0]
	for _, other := range all {
		if other.Name != cfg.Name {
			others = append(others, other)
		}
	}
	if err := checkCollisions(cfg, others); err != nil {
		return err
	}

	var prev models.NodeConfig
	if err := json.Unmarshal([]byte(current), &prev); err == nil {
		cfg.CreatedAt = prev.CreatedAt
	}
	cfg.UpdatedAt = time.Now().UTC()

	return r.putLocked(ctx, cfg)
}

// Delete removes the configuration for name. Its on-disk data is the
// supervisor's responsibility.
func (r *NodeRegistry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists, err := r.kv.Get(ctx, nodePrefix+name)
	if err != nil {
		return errdefs.IO("failed to read node registry").WithCause(err)
	}
	if !exists {
		return errdefs.NotFound("node %s not found", name)
	}

	if err := r.kv.Delete(ctx, nodePrefix+name); err != nil {
		return errdefs.IO("failed to delete node %s", name).WithCause(err)
	}

	r.logger.Info("Node removed from registry", "node", name)
	return nil
}

func (r *NodeRegistry) listLocked(ctx context.Context) ([]*models.NodeConfig, error) {
	pairs, err := r.kv.GetPrefix(ctx, nodePrefix)
	if err != nil {
		return nil, errdefs.IO("failed to list node registry").WithCause(err)
	}

	nodes := make([]*models.NodeConfig, 0, len(pairs))
	for key, value := range pairs {
		var cfg models.NodeConfig
		if err := json.Unmarshal([]byte(value), &cfg); err != nil {
			r.logger.Warn("Skipping corrupt node record", "key", key, "error", err)
			continue
		}
		nodes = append(nodes, &cfg)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes, nil
}

func (r *NodeRegistry) putLocked(ctx context.Context, cfg *models.NodeConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return errdefs.Internal("failed to marshal node %s", cfg.Name).WithCause(err)
	}
	if err := r.kv.Put(ctx, nodePrefix+cfg.Name, string(data)); err != nil {
		return errdefs.IO("failed to store node %s", cfg.Name).WithCause(err)
	}
	return nil
}

// checkCollisions enforces endpoint uniqueness and non-overlapping
// directories against other records
func checkCollisions(cfg *models.NodeConfig, others []*models.NodeConfig) error {
	for _, other := range others {
		if other.Host == cfg.Host && other.HTTPPort == cfg.HTTPPort {
			return errdefs.Validation("http port %d on %s already used by node %s",
				cfg.HTTPPort, cfg.Host, other.Name)
		}
		if other.Host == cfg.Host && other.TransportPort == cfg.TransportPort {
			return errdefs.Validation("transport port %d on %s already used by node %s",
				cfg.TransportPort, cfg.Host, other.Name)
		}
		if pathsOverlap(cfg.DataPath, other.DataPath) || pathsOverlap(cfg.DataPath, other.LogsPath) {
			return errdefs.Validation("data path %s overlaps directories of node %s",
				cfg.DataPath, other.Name)
		}
		if pathsOverlap(cfg.LogsPath, other.DataPath) || pathsOverlap(cfg.LogsPath, other.LogsPath) {
			return errdefs.Validation("logs path %s overlaps directories of node %s",
				cfg.LogsPath, other.Name)
		}
	}
	return nil
}

// pathsOverlap reports whether one path equals or is nested inside the other.
// Directories are removed recursively on node deletion, so a nested directory
// belonging to another node would be destroyed with it.
func pathsOverlap(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if a == b {
		return true
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	return strings.HasPrefix(b, a+string(filepath.Separator))
}
