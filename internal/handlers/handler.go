// Package handlers implements the admin API HTTP handlers
package handlers

import (
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/reconciler"
	"github.com/orchardops/orchard/internal/services"
)

// Handler bundles the services behind the admin API
type Handler struct {
	nodes      *services.NodeService
	clusters   *services.ClusterService
	tasks      *services.TaskService
	reconciler *reconciler.Reconciler
	version    string
	logger     *logging.Logger
}

// New creates the API handler
func New(nodes *services.NodeService, clusters *services.ClusterService,
	tasks *services.TaskService, rec *reconciler.Reconciler,
	version string, logger *logging.Logger,
) *Handler {
	return &Handler{
		nodes:      nodes,
		clusters:   clusters,
		tasks:      tasks,
		reconciler: rec,
		version:    version,
		logger:     logger,
	}
}
