package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orchardops/orchard/internal/config"
	"github.com/orchardops/orchard/internal/events"
	"github.com/orchardops/orchard/internal/handlers"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
	"github.com/orchardops/orchard/internal/nodeapi"
	"github.com/orchardops/orchard/internal/reconciler"
	"github.com/orchardops/orchard/internal/registry"
	"github.com/orchardops/orchard/internal/router"
	"github.com/orchardops/orchard/internal/services"
	"github.com/orchardops/orchard/internal/stats"
	"github.com/orchardops/orchard/internal/supervisor"
	"github.com/orchardops/orchard/internal/tasks"
)

// Build information, injected at link time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("orchard-orchestrator %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting orchestrator",
		"version", Version,
		"commit", GitCommit,
		"store", cfg.Store.Type,
		"events", cfg.Events.Type)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Orchestrator terminated", "error", err)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx := context.Background()

	kv, err := registry.NewKV(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open registry store: %w", err)
	}
	defer kv.Close()

	nodeReg := registry.NewNodeRegistry(kv, logger)
	clusterReg := registry.NewClusterRegistry(kv, nodeReg, logger)
	if err := clusterReg.EnsureDefault(ctx); err != nil {
		return fmt.Errorf("failed to ensure default cluster: %w", err)
	}

	publisher, err := events.New(cfg.Events)
	if err != nil {
		return fmt.Errorf("failed to connect event bus: %w", err)
	}
	defer publisher.Close()

	client := nodeapi.NewClient(cfg.Supervisor.ProbeTimeout)
	launcher := supervisor.NewOSLauncher()

	sup := supervisor.New(cfg.Supervisor, launcher, client, nodeReg, logger)
	// Hooks fire on supervisor and task goroutines; the bounded context keeps
	// a hung broker from stalling lifecycle transitions
	sup.SetTransitionHook(func(node string, status models.NodeStatus, detail string) {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := publisher.Publish(pubCtx, events.Event{
			Type:      events.TypeNodeStatus,
			Node:      node,
			Status:    string(status),
			Detail:    detail,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			logger.Warn("Failed to publish status event", "node", node, "error", err)
		}
	})

	if err := sup.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover node state: %w", err)
	}

	cache, err := stats.NewCache(cfg.Supervisor.StatsDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open stats cache: %w", err)
	}
	collector := stats.NewCollector(cache, client, nodeReg, sup.Status,
		cfg.Supervisor.ProbeInterval, cfg.Supervisor.ProbeTimeout, logger)
	collector.Start()
	defer collector.Stop()

	taskMgr := tasks.NewManager(cfg.Tasks.MaxWorkers, cfg.Tasks.Retention, cfg.Tasks.GCInterval, logger)
	taskMgr.SetFinishHook(func(task tasks.Task) {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := publisher.Publish(pubCtx, events.Event{
			Type:      events.TypeTaskFinished,
			Node:      task.Scope,
			TaskID:    task.ID,
			Status:    string(task.Status),
			Detail:    task.Error,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			logger.Warn("Failed to publish task event", "task_id", task.ID, "error", err)
		}
	})
	taskMgr.Start()
	defer taskMgr.Stop()

	runner := tasks.NewRunner(client, nodeReg, sup.Status)
	rec := reconciler.New(nodeReg, sup, launcher, logger)

	handler := handlers.New(
		services.NewNodeService(nodeReg, clusterReg, sup, cache, taskMgr, publisher, logger),
		services.NewClusterService(clusterReg, nodeReg, publisher, logger),
		services.NewTaskService(taskMgr, runner),
		rec,
		Version,
		logger,
	)
	app := router.New(handler, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Admin API listening", "addr", addr)
		errCh <- app.Listen(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Admin API shutdown failed", "error", err)
	}
	return nil
}
