package registry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
)

// ClusterRegistry is the durable store of named node groupings. Node counts
// are derived from the node registry, never stored.
type ClusterRegistry struct {
	kv     KV
	nodes  *NodeRegistry
	logger *logging.Logger

	mu sync.Mutex
}

// NewClusterRegistry creates a cluster registry on top of the given store
func NewClusterRegistry(kv KV, nodes *NodeRegistry, logger *logging.Logger) *ClusterRegistry {
	return &ClusterRegistry{kv: kv, nodes: nodes, logger: logger}
}

// EnsureDefault creates the built-in default cluster if it is missing.
// Called once at startup.
func (r *ClusterRegistry) EnsureDefault(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists, err := r.kv.Get(ctx, clusterPrefix+models.DefaultClusterName)
	if err != nil {
		return errdefs.IO("failed to read cluster registry").WithCause(err)
	}
	if exists {
		return nil
	}

	return r.putLocked(ctx, &models.ClusterRecord{
		Name:      models.DefaultClusterName,
		CreatedAt: time.Now().UTC(),
	})
}

// Create registers a new cluster name
func (r *ClusterRegistry) Create(ctx context.Context, name string) (*models.ClusterRecord, error) {
	if name == "" {
		return nil, errdefs.Validation("cluster name is required")
	}
	if name == models.DefaultClusterName {
		return nil, errdefs.Validation("cluster name %s is reserved", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists, err := r.kv.Get(ctx, clusterPrefix+name)
	if err != nil {
		return nil, errdefs.IO("failed to read cluster registry").WithCause(err)
	}
	if exists {
		return nil, errdefs.Validation("cluster %s already exists", name)
	}

	record := &models.ClusterRecord{Name: name, CreatedAt: time.Now().UTC()}
	if err := r.putLocked(ctx, record); err != nil {
		return nil, err
	}

	r.logger.Info("Cluster created", "cluster", name)
	return record, nil
}

// Get returns the record for name
func (r *ClusterRegistry) Get(ctx context.Context, name string) (*models.ClusterRecord, error) {
	value, exists, err := r.kv.Get(ctx, clusterPrefix+name)
	if err != nil {
		return nil, errdefs.IO("failed to read cluster registry").WithCause(err)
	}
	if !exists {
		return nil, errdefs.NotFound("cluster %s not found", name)
	}

	var record models.ClusterRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, errdefs.Internal("corrupt cluster record for %s", name).WithCause(err)
	}
	return &record, nil
}

// List returns all cluster records sorted by name
func (r *ClusterRegistry) List(ctx context.Context) ([]*models.ClusterRecord, error) {
	pairs, err := r.kv.GetPrefix(ctx, clusterPrefix)
	if err != nil {
		return nil, errdefs.IO("failed to list cluster registry").WithCause(err)
	}

	clusters := make([]*models.ClusterRecord, 0, len(pairs))
	for key, value := range pairs {
		var record models.ClusterRecord
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			r.logger.Warn("Skipping corrupt cluster record", "key", key, "error", err)
			continue
		}
		clusters = append(clusters, &record)
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })
	return clusters, nil
}

// Rename renames a cluster and moves its members to the new name.
// The default cluster cannot be renamed.
func (r *ClusterRegistry) Rename(ctx context.Context, old, new string) error {
	if old == models.DefaultClusterName {
		return errdefs.Validation("the default cluster cannot be renamed")
	}
	if new == "" || new == models.DefaultClusterName {
		return errdefs.Validation("invalid cluster name: %s", new)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.Get(ctx, old)
	if err != nil {
		return err
	}

	_, exists, err := r.kv.Get(ctx, clusterPrefix+new)
	if err != nil {
		return errdefs.IO("failed to read cluster registry").WithCause(err)
	}
	if exists {
		return errdefs.Validation("cluster %s already exists", new)
	}

	members, err := r.nodes.ListByCluster(ctx, old)
	if err != nil {
		return err
	}

	// Write the new record first so members never point at a missing cluster
	renamed := &models.ClusterRecord{Name: new, CreatedAt: record.CreatedAt}
	if err := r.putLocked(ctx, renamed); err != nil {
		return err
	}

	if err := r.reassign(ctx, members, new, old); err != nil {
		_ = r.kv.Delete(ctx, clusterPrefix+new)
		return err
	}

	if err := r.kv.Delete(ctx, clusterPrefix+old); err != nil {
		return errdefs.IO("failed to remove renamed cluster %s", old).WithCause(err)
	}

	r.logger.Info("Cluster renamed", "from", old, "to", new, "members", len(members))
	return nil
}

// Delete removes a cluster. A non-empty cluster requires a valid, distinct
// target cluster; all members are reassigned before the record is removed and
// any member failure aborts the whole operation.
func (r *ClusterRegistry) Delete(ctx context.Context, name, target string) error {
	if name == models.DefaultClusterName {
		return errdefs.Validation("the default cluster cannot be deleted")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.Get(ctx, name); err != nil {
		return err
	}

	members, err := r.nodes.ListByCluster(ctx, name)
	if err != nil {
		return err
	}

	if len(members) > 0 {
		if target == "" {
			return errdefs.Validation("cluster %s has %d members, a target cluster is required",
				name, len(members))
		}
		if target == name {
			return errdefs.Validation("target cluster must differ from the deleted cluster")
		}
		if _, err := r.Get(ctx, target); err != nil {
			if errdefs.IsNotFound(err) {
				return errdefs.Validation("target cluster %s does not exist", target)
			}
			return err
		}

		if err := r.reassign(ctx, members, target, name); err != nil {
			return err
		}
	}

	if err := r.kv.Delete(ctx, clusterPrefix+name); err != nil {
		return errdefs.IO("failed to delete cluster %s", name).WithCause(err)
	}

	r.logger.Info("Cluster deleted", "cluster", name, "target", target, "reassigned", len(members))
	return nil
}

// reassign moves members to the target cluster, reverting to revertTo on any
// failure so the operation never leaves partial state
func (r *ClusterRegistry) reassign(ctx context.Context, members []*models.NodeConfig, target, revertTo string) error {
	moved := make([]*models.NodeConfig, 0, len(members))
	for _, member := range members {
		member.Cluster = target
		if err := r.nodes.Update(ctx, member); err != nil {
			for _, m := range moved {
				m.Cluster = revertTo
				if revertErr := r.nodes.Update(ctx, m); revertErr != nil {
					r.logger.Error("Failed to revert cluster reassignment",
						"node", m.Name, "error", revertErr)
				}
			}
			return errdefs.IO("failed to reassign node %s to cluster %s",
				member.Name, target).WithCause(err)
		}
		moved = append(moved, member)
	}
	return nil
}

func (r *ClusterRegistry) putLocked(ctx context.Context, record *models.ClusterRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errdefs.Internal("failed to marshal cluster %s", record.Name).WithCause(err)
	}
	if err := r.kv.Put(ctx, clusterPrefix+record.Name, string(data)); err != nil {
		return errdefs.IO("failed to store cluster %s", record.Name).WithCause(err)
	}
	return nil
}
