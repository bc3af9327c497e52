package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// VerifyMetadata handles POST /admin/verify-metadata. Read-only: it reports
// inconsistencies without touching anything.
func (h *Handler) VerifyMetadata(c *fiber.Ctx) error {
	resp, err := h.reconciler.Verify(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// RepairAndVerify handles POST /admin/repair-and-verify
func (h *Handler) RepairAndVerify(c *fiber.Ctx) error {
	resp, err := h.reconciler.RepairAndVerify(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
