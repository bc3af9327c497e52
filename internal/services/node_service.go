// Package services holds the business logic behind the admin API. Handlers
// decode and encode; services decide.
package services

import (
	"context"
	"time"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/events"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
	"github.com/orchardops/orchard/internal/registry"
	"github.com/orchardops/orchard/internal/stats"
	"github.com/orchardops/orchard/internal/supervisor"
	"github.com/orchardops/orchard/internal/tasks"
)

// NodeService implements node lifecycle operations
type NodeService struct {
	nodes     *registry.NodeRegistry
	clusters  *registry.ClusterRegistry
	sup       *supervisor.Supervisor
	cache     *stats.Cache
	taskMgr   *tasks.Manager
	publisher events.Publisher
	logger    *logging.Logger
}

// NewNodeService creates a node service
func NewNodeService(nodes *registry.NodeRegistry, clusters *registry.ClusterRegistry,
	sup *supervisor.Supervisor, cache *stats.Cache, taskMgr *tasks.Manager,
	publisher events.Publisher, logger *logging.Logger,
) *NodeService {
	return &NodeService{
		nodes:     nodes,
		clusters:  clusters,
		sup:       sup,
		cache:     cache,
		taskMgr:   taskMgr,
		publisher: publisher,
		logger:    logger,
	}
}

// Create registers a node and provisions its directories
func (s *NodeService) Create(ctx context.Context, req *models.CreateNodeRequest) (*models.NodeResponse, error) {
	cfg := req.ToConfig()

	if _, err := s.clusters.Get(ctx, cfg.Cluster); err != nil {
		if errdefs.IsNotFound(err) {
			return nil, errdefs.Validation("cluster %s does not exist", cfg.Cluster)
		}
		return nil, err
	}

	if err := s.sup.Create(ctx, cfg); err != nil {
		return nil, err
	}

	s.emit(events.Event{
		Type:    events.TypeNodeCreated,
		Node:    cfg.Name,
		Cluster: cfg.Cluster,
	})
	return s.toResponse(cfg), nil
}

// Get returns a node with its runtime status
func (s *NodeService) Get(ctx context.Context, name string) (*models.NodeResponse, error) {
	cfg, err := s.nodes.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.toResponse(cfg), nil
}

// List returns all nodes, optionally filtered by cluster
func (s *NodeService) List(ctx context.Context, cluster string) (*models.NodeListResponse, error) {
	var (
		configs []*models.NodeConfig
		err     error
	)
	if cluster == "" {
		configs, err = s.nodes.List(ctx)
	} else {
		if _, cErr := s.clusters.Get(ctx, cluster); cErr != nil {
			return nil, cErr
		}
		configs, err = s.nodes.ListByCluster(ctx, cluster)
	}
	if err != nil {
		return nil, err
	}

	resp := &models.NodeListResponse{Nodes: make([]models.NodeResponse, 0, len(configs))}
	for _, cfg := range configs {
		resp.Nodes = append(resp.Nodes, *s.toResponse(cfg))
	}
	return resp, nil
}

// Update applies a configuration change to a stopped node
func (s *NodeService) Update(ctx context.Context, name string, req *models.UpdateNodeRequest) (*models.NodeResponse, error) {
	cfg, err := s.nodes.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	updated := *cfg
	if req.Cluster != nil {
		if _, err := s.clusters.Get(ctx, *req.Cluster); err != nil {
			if errdefs.IsNotFound(err) {
				return nil, errdefs.Validation("cluster %s does not exist", *req.Cluster)
			}
			return nil, err
		}
		updated.Cluster = *req.Cluster
	}
	if req.Host != nil {
		updated.Host = *req.Host
	}
	if req.HTTPPort != nil {
		updated.HTTPPort = *req.HTTPPort
	}
	if req.TransportPort != nil {
		updated.TransportPort = *req.TransportPort
	}
	if req.DataPath != nil {
		updated.DataPath = *req.DataPath
	}
	if req.LogsPath != nil {
		updated.LogsPath = *req.LogsPath
	}
	if req.Roles != nil {
		updated.Roles = *req.Roles
	}
	if req.HeapSize != nil {
		updated.HeapSize = *req.HeapSize
	}

	if err := s.sup.UpdateConfig(ctx, &updated); err != nil {
		return nil, err
	}
	return s.toResponse(&updated), nil
}

// Delete stops the node if needed and removes it entirely
func (s *NodeService) Delete(ctx context.Context, name string) error {
	cfg, err := s.nodes.Get(ctx, name)
	if err != nil {
		return err
	}

	s.taskMgr.CancelScope(name, "node deleted")
	if err := s.sup.Delete(ctx, name); err != nil {
		return err
	}
	s.cache.Remove(name)

	s.emit(events.Event{
		Type:    events.TypeNodeDeleted,
		Node:    name,
		Cluster: cfg.Cluster,
	})
	return nil
}

// Start launches the node process
func (s *NodeService) Start(ctx context.Context, name string) error {
	return s.sup.Start(ctx, name)
}

// Stop terminates the node process and cancels its in-flight tasks
func (s *NodeService) Stop(ctx context.Context, name string) error {
	if err := s.sup.Stop(ctx, name); err != nil {
		return err
	}
	s.taskMgr.CancelScope(name, "node stopped")
	return nil
}

// Stats serves the cached statistics snapshot for a node. The cache is the
// only source: a stopped node keeps serving its last snapshot with its age.
func (s *NodeService) Stats(ctx context.Context, name string) (*models.StatsResponse, error) {
	if _, err := s.nodes.Get(ctx, name); err != nil {
		return nil, err
	}

	snapshot, ok := s.cache.Get(name)
	if !ok {
		return nil, errdefs.NotFound("no statistics collected yet for node %s", name)
	}

	return &models.StatsResponse{
		Node:         name,
		Indices:      snapshot.Indices,
		Memory:       snapshot.Memory,
		DocCount:     snapshot.DocCount(),
		StorageBytes: snapshot.StorageBytes(),
		CachedAt:     snapshot.CapturedAt.Format(time.RFC3339),
		AgeSeconds:   int64(time.Since(snapshot.CapturedAt).Seconds()),
	}, nil
}

func (s *NodeService) toResponse(cfg *models.NodeConfig) *models.NodeResponse {
	return &models.NodeResponse{
		Name:          cfg.Name,
		Cluster:       cfg.Cluster,
		Host:          cfg.Host,
		HTTPPort:      cfg.HTTPPort,
		TransportPort: cfg.TransportPort,
		DataPath:      cfg.DataPath,
		LogsPath:      cfg.LogsPath,
		Roles:         cfg.Roles,
		HeapSize:      cfg.HeapSize,
		Status:        s.sup.Status(cfg.Name),
		CreatedAt:     cfg.CreatedAt.Format(time.RFC3339),
	}
}

// publishTimeout bounds event publishing on the request path so a hung
// broker cannot stall API responses
const publishTimeout = 5 * time.Second

func (s *NodeService) emit(event events.Event) {
	event.Timestamp = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", "type", event.Type, "error", err)
	}
}
