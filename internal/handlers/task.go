package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/models"
)

// SubmitTask handles POST /v1/tasks
func (h *Handler) SubmitTask(c *fiber.Ctx) error {
	var req models.SubmitTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return errdefs.Validation("invalid request body: %v", err)
	}

	resp, err := h.tasks.Submit(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// GetTask handles GET /v1/tasks/:id
func (h *Handler) GetTask(c *fiber.Ctx) error {
	resp, err := h.tasks.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// ListTasks handles GET /v1/tasks
func (h *Handler) ListTasks(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tasks": h.tasks.List()})
}

// RemoveTask handles DELETE /v1/tasks/:id
func (h *Handler) RemoveTask(c *fiber.Ctx) error {
	if err := h.tasks.Remove(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
