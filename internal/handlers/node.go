package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/models"
)

// CreateNode handles POST /v1/nodes
func (h *Handler) CreateNode(c *fiber.Ctx) error {
	var req models.CreateNodeRequest
	if err := c.BodyParser(&req); err != nil {
		return errdefs.Validation("invalid request body: %v", err)
	}

	resp, err := h.nodes.Create(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// GetNode handles GET /v1/nodes/:name
func (h *Handler) GetNode(c *fiber.Ctx) error {
	resp, err := h.nodes.Get(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// ListNodes handles GET /v1/nodes with an optional cluster filter
func (h *Handler) ListNodes(c *fiber.Ctx) error {
	resp, err := h.nodes.List(c.Context(), c.Query("cluster"))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// UpdateNode handles PUT /v1/nodes/:name
func (h *Handler) UpdateNode(c *fiber.Ctx) error {
	var req models.UpdateNodeRequest
	if err := c.BodyParser(&req); err != nil {
		return errdefs.Validation("invalid request body: %v", err)
	}

	resp, err := h.nodes.Update(c.Context(), c.Params("name"), &req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// DeleteNode handles DELETE /v1/nodes/:name
func (h *Handler) DeleteNode(c *fiber.Ctx) error {
	if err := h.nodes.Delete(c.Context(), c.Params("name")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// StartNode handles POST /v1/nodes/:name/start. The response is accepted, not
// running: the health probe decides in the background.
func (h *Handler) StartNode(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.nodes.Start(c.Context(), name); err != nil {
		return err
	}
	resp, err := h.nodes.Get(c.Context(), name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// StopNode handles POST /v1/nodes/:name/stop
func (h *Handler) StopNode(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.nodes.Stop(c.Context(), name); err != nil {
		return err
	}
	resp, err := h.nodes.Get(c.Context(), name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// NodeStats handles GET /v1/nodes/:name/stats
func (h *Handler) NodeStats(c *fiber.Ctx) error {
	resp, err := h.nodes.Stats(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
