package services

import (
	"context"
	"time"

	"github.com/orchardops/orchard/internal/events"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
	"github.com/orchardops/orchard/internal/registry"
)

// ClusterService implements cluster grouping operations
type ClusterService struct {
	clusters  *registry.ClusterRegistry
	nodes     *registry.NodeRegistry
	publisher events.Publisher
	logger    *logging.Logger
}

// NewClusterService creates a cluster service
func NewClusterService(clusters *registry.ClusterRegistry, nodes *registry.NodeRegistry,
	publisher events.Publisher, logger *logging.Logger,
) *ClusterService {
	return &ClusterService{
		clusters:  clusters,
		nodes:     nodes,
		publisher: publisher,
		logger:    logger,
	}
}

// Create registers an empty cluster
func (s *ClusterService) Create(ctx context.Context, req *models.CreateClusterRequest) (*models.ClusterResponse, error) {
	record, err := s.clusters.Create(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	s.emit(events.Event{Type: events.TypeClusterChange, Cluster: record.Name, Detail: "created"})
	return &models.ClusterResponse{
		Name:      record.Name,
		NodeCount: 0,
		CreatedAt: record.CreatedAt.Format(time.RFC3339),
	}, nil
}

// Get returns a cluster with its derived node count
func (s *ClusterService) Get(ctx context.Context, name string) (*models.ClusterResponse, error) {
	record, err := s.clusters.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	members, err := s.nodes.ListByCluster(ctx, name)
	if err != nil {
		return nil, err
	}

	return &models.ClusterResponse{
		Name:      record.Name,
		NodeCount: len(members),
		CreatedAt: record.CreatedAt.Format(time.RFC3339),
	}, nil
}

// List returns all clusters with their node counts
func (s *ClusterService) List(ctx context.Context) (*models.ClusterListResponse, error) {
	records, err := s.clusters.List(ctx)
	if err != nil {
		return nil, err
	}

	resp := &models.ClusterListResponse{Clusters: make([]models.ClusterResponse, 0, len(records))}
	for _, record := range records {
		members, err := s.nodes.ListByCluster(ctx, record.Name)
		if err != nil {
			return nil, err
		}
		resp.Clusters = append(resp.Clusters, models.ClusterResponse{
			Name:      record.Name,
			NodeCount: len(members),
			CreatedAt: record.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp, nil
}

// Rename renames a cluster and reassigns its members
func (s *ClusterService) Rename(ctx context.Context, name string, req *models.RenameClusterRequest) (*models.ClusterResponse, error) {
	if err := s.clusters.Rename(ctx, name, req.NewName); err != nil {
		return nil, err
	}

	s.emit(events.Event{Type: events.TypeClusterChange, Cluster: req.NewName, Detail: "renamed from " + name})
	return s.Get(ctx, req.NewName)
}

// Delete removes a cluster, reassigning members to target when given
func (s *ClusterService) Delete(ctx context.Context, name, target string) error {
	if err := s.clusters.Delete(ctx, name, target); err != nil {
		return err
	}

	s.emit(events.Event{Type: events.TypeClusterChange, Cluster: name, Detail: "deleted"})
	return nil
}

func (s *ClusterService) emit(event events.Event) {
	event.Timestamp = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", "type", event.Type, "error", err)
	}
}
