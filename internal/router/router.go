// Package router wires the admin API routes
package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/orchardops/orchard/internal/handlers"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/middleware"
)

// New builds the fiber app with all routes and middleware attached
func New(h *handlers.Handler, logger *logging.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "orchard-orchestrator",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logging.FiberMiddleware(logger))

	app.Get("/health", h.Health)

	v1 := app.Group("/v1")

	nodes := v1.Group("/nodes")
	nodes.Post("/", h.CreateNode)
	nodes.Get("/", h.ListNodes)
	nodes.Get("/:name", h.GetNode)
	nodes.Put("/:name", h.UpdateNode)
	nodes.Delete("/:name", h.DeleteNode)
	nodes.Post("/:name/start", h.StartNode)
	nodes.Post("/:name/stop", h.StopNode)
	nodes.Get("/:name/stats", h.NodeStats)

	clusters := v1.Group("/clusters")
	clusters.Post("/", h.CreateCluster)
	clusters.Get("/", h.ListClusters)
	clusters.Get("/:name", h.GetCluster)
	clusters.Put("/:name", h.RenameCluster)
	clusters.Delete("/:name", h.DeleteCluster)

	taskRoutes := v1.Group("/tasks")
	taskRoutes.Post("/", h.SubmitTask)
	taskRoutes.Get("/", h.ListTasks)
	taskRoutes.Get("/:id", h.GetTask)
	taskRoutes.Delete("/:id", h.RemoveTask)

	admin := app.Group("/admin")
	admin.Post("/verify-metadata", h.VerifyMetadata)
	admin.Post("/repair-and-verify", h.RepairAndVerify)

	return app
}
