// Package reconciler verifies that the node registry and the state on disk
// agree, and optionally repairs what it safely can. Repairs are strictly
// non-destructive: missing directories are recreated empty, markers are
// rewritten, orphan processes are terminated, but existing data is never
// deleted, moved or truncated.
package reconciler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
	"github.com/orchardops/orchard/internal/registry"
	"github.com/orchardops/orchard/internal/supervisor"
)

// NodeSupervisor is the supervisor surface the reconciler needs
type NodeSupervisor interface {
	Status(name string) models.NodeStatus
	Handles() map[string]int
	MarkFailed(name, detail string)
}

// Reconciler runs verification and repair passes over the node registry.
// At most one pass runs at a time.
type Reconciler struct {
	nodes    *registry.NodeRegistry
	sup      NodeSupervisor
	launcher supervisor.Launcher
	logger   *logging.Logger

	busy atomic.Bool
}

// New creates a reconciler
func New(nodes *registry.NodeRegistry, sup NodeSupervisor,
	launcher supervisor.Launcher, logger *logging.Logger,
) *Reconciler {
	return &Reconciler{nodes: nodes, sup: sup, launcher: launcher, logger: logger}
}

// Verify inspects every registered node without changing anything
func (r *Reconciler) Verify(ctx context.Context) (*models.VerifyResponse, error) {
	return r.run(ctx, false)
}

// RepairAndVerify repairs what it safely can, then reports the resulting
// state. Nodes whose data cannot be recovered are marked failed.
func (r *Reconciler) RepairAndVerify(ctx context.Context) (*models.VerifyResponse, error) {
	return r.run(ctx, true)
}

func (r *Reconciler) run(ctx context.Context, repair bool) (*models.VerifyResponse, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, errdefs.Conflict("a metadata verification is already in progress")
	}
	defer r.busy.Store(false)

	configs, err := r.nodes.List(ctx)
	if err != nil {
		return nil, err
	}

	resp := &models.VerifyResponse{
		Consistent: true,
		Nodes:      make(map[string]models.NodeReport),
	}

	collisions := crossConfigCollisions(configs)

	for _, cfg := range configs {
		report := r.checkNode(cfg, repair)
		for _, issue := range collisions[cfg.Name] {
			report.Consistent = false
			report.Issues = append(report.Issues, issue)
		}
		if !report.Consistent {
			resp.Consistent = false
		}
		resp.Nodes[cfg.Name] = report
	}

	resp.Orphans = r.checkOrphans(configs, repair)
	if len(resp.Orphans) > 0 {
		resp.Consistent = false
	}

	r.logger.Info("Metadata verification finished",
		"repair", repair,
		"consistent", resp.Consistent,
		"nodes", len(resp.Nodes),
		"orphans", len(resp.Orphans))
	return resp, nil
}

// checkNode verifies one node's on-disk state against its registry record
func (r *Reconciler) checkNode(cfg *models.NodeConfig, repair bool) models.NodeReport {
	report := models.NodeReport{Consistent: true, Issues: []string{}}

	issue := func(format string, args ...interface{}) {
		report.Consistent = false
		report.Issues = append(report.Issues, fmt.Sprintf(format, args...))
	}
	repaired := func(format string, args ...interface{}) {
		report.Repairs = append(report.Repairs, fmt.Sprintf(format, args...))
	}

	for _, dir := range []string{cfg.DataPath, cfg.LogsPath} {
		isData := dir == cfg.DataPath

		info, err := os.Stat(dir)
		switch {
		case os.IsNotExist(err):
			issue("directory %s is missing", dir)
			if !repair {
				continue
			}
			if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
				report.Issues[len(report.Issues)-1] = fmt.Sprintf(
					"directory %s is missing and could not be recreated: %v", dir, mkErr)
				r.sup.MarkFailed(cfg.Name, "data directory unrecoverable")
				continue
			}
			repaired("recreated empty directory %s", dir)
			if isData {
				// An empty directory is not the node's data; the node must
				// not silently come back as healthy
				r.sup.MarkFailed(cfg.Name, "data directory was missing, recreated empty")
			}

		case err != nil:
			issue("directory %s is unreadable: %v", dir, err)

		case !info.IsDir():
			// A file in the directory's place cannot be fixed without
			// destroying it
			issue("%s exists but is not a directory", dir)
			if repair {
				r.sup.MarkFailed(cfg.Name, "data path is not a directory")
			}
		}
	}

	marker := filepath.Join(cfg.DataPath, supervisor.MarkerFileName)
	owner, err := os.ReadFile(marker)
	switch {
	case os.IsNotExist(err):
		if dirExists(cfg.DataPath) {
			if repair {
				if wErr := os.WriteFile(marker, []byte(cfg.Name), 0644); wErr != nil {
					issue("ownership marker missing and could not be rewritten: %v", wErr)
				} else {
					repaired("rewrote ownership marker")
				}
			} else {
				issue("ownership marker is missing")
			}
		}

	case err == nil && string(owner) != cfg.Name:
		issue("data directory is owned by %q", string(owner))
		if repair {
			r.sup.MarkFailed(cfg.Name, "data directory owned by another node")
		}
	}

	// A node the registry believes is running must actually have a listener
	if r.sup.Status(cfg.Name) == models.StatusRunning {
		if _, ok := r.launcher.FindListener(cfg.HTTPPort); !ok {
			issue("node is marked running but nothing listens on port %d", cfg.HTTPPort)
		}
	}

	return report
}

// checkOrphans looks for processes bound to managed ports that the
// supervisor does not own
func (r *Reconciler) checkOrphans(configs []*models.NodeConfig, repair bool) []models.OrphanProcess {
	managed := make(map[int]bool)
	for _, pid := range r.sup.Handles() {
		managed[pid] = true
	}

	var orphans []models.OrphanProcess
	for _, cfg := range configs {
		pid, ok := r.launcher.FindListener(cfg.HTTPPort)
		if !ok || managed[pid] {
			continue
		}

		orphan := models.OrphanProcess{
			PID:    pid,
			Port:   cfg.HTTPPort,
			Detail: fmt.Sprintf("unmanaged process on port reserved for node %s", cfg.Name),
		}

		if repair {
			if err := r.terminate(pid); err != nil {
				orphan.Detail = fmt.Sprintf("termination failed: %v", err)
			} else {
				orphan.Terminated = true
				r.logger.Warn("Terminated orphan process",
					"pid", pid, "port", cfg.HTTPPort, "node", cfg.Name)
			}
		}

		orphans = append(orphans, orphan)
	}
	return orphans
}

func (r *Reconciler) terminate(pid int) error {
	handle, err := r.launcher.Adopt(pid)
	if err != nil {
		return err
	}
	return handle.Terminate()
}

// crossConfigCollisions re-checks the registry's uniqueness invariants over
// the stored records. The registry enforces them on every write; a collision
// here means the store itself was edited out of band.
func crossConfigCollisions(configs []*models.NodeConfig) map[string][]string {
	issues := make(map[string][]string)
	flag := func(a, b *models.NodeConfig, format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		issues[a.Name] = append(issues[a.Name], msg)
		issues[b.Name] = append(issues[b.Name], msg)
	}

	for i, a := range configs {
		for _, b := range configs[i+1:] {
			if a.Host == b.Host && a.HTTPPort == b.HTTPPort {
				flag(a, b, "nodes %s and %s share http endpoint %s:%d", a.Name, b.Name, a.Host, a.HTTPPort)
			}
			if a.Host == b.Host && a.TransportPort == b.TransportPort {
				flag(a, b, "nodes %s and %s share transport endpoint %s:%d", a.Name, b.Name, a.Host, a.TransportPort)
			}
			if a.DataPath == b.DataPath {
				flag(a, b, "nodes %s and %s share data path %s", a.Name, b.Name, a.DataPath)
			}
			if a.LogsPath == b.LogsPath {
				flag(a, b, "nodes %s and %s share logs path %s", a.Name, b.Name, a.LogsPath)
			}
		}
	}
	return issues
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
