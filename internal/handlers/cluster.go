package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/models"
)

// CreateCluster handles POST /v1/clusters
func (h *Handler) CreateCluster(c *fiber.Ctx) error {
	var req models.CreateClusterRequest
	if err := c.BodyParser(&req); err != nil {
		return errdefs.Validation("invalid request body: %v", err)
	}

	resp, err := h.clusters.Create(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// GetCluster handles GET /v1/clusters/:name
func (h *Handler) GetCluster(c *fiber.Ctx) error {
	resp, err := h.clusters.Get(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// ListClusters handles GET /v1/clusters
func (h *Handler) ListClusters(c *fiber.Ctx) error {
	resp, err := h.clusters.List(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// RenameCluster handles PUT /v1/clusters/:name
func (h *Handler) RenameCluster(c *fiber.Ctx) error {
	var req models.RenameClusterRequest
	if err := c.BodyParser(&req); err != nil {
		return errdefs.Validation("invalid request body: %v", err)
	}

	resp, err := h.clusters.Rename(c.Context(), c.Params("name"), &req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// DeleteCluster handles DELETE /v1/clusters/:name. A non-empty cluster needs
// a ?target= query naming the cluster that inherits its nodes.
func (h *Handler) DeleteCluster(c *fiber.Ctx) error {
	if err := h.clusters.Delete(c.Context(), c.Params("name"), c.Query("target")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
