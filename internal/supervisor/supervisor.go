package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/orchardops/orchard/internal/config"
	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
	"github.com/orchardops/orchard/internal/registry"
)

// MarkerFileName is written into a node's data directory at provisioning time
// so the reconciler can verify directory ownership
const MarkerFileName = ".orchard-node"

// HealthChecker confirms a node endpoint answers
type HealthChecker interface {
	Ping(ctx context.Context, endpoint string) error
}

// TransitionFunc observes node status transitions
type TransitionFunc func(node string, status models.NodeStatus, detail string)

type nodeState struct {
	status      models.NodeStatus
	handle      Handle
	watchCancel context.CancelFunc
	stopDone    chan struct{}
}

// Supervisor drives the node process state machine:
// stopped -> starting -> running -> stopping -> stopped, with
// starting -> failed on probe timeout and running -> failed on unexpected
// exit. It is the only writer of runtime status.
type Supervisor struct {
	cfg      config.SupervisorConfig
	launcher Launcher
	health   HealthChecker
	nodes    *registry.NodeRegistry
	logger   *logging.Logger

	onTransition TransitionFunc

	mu     sync.Mutex
	states map[string]*nodeState
}

// New creates a supervisor
func New(cfg config.SupervisorConfig, launcher Launcher, health HealthChecker,
	nodes *registry.NodeRegistry, logger *logging.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		launcher: launcher,
		health:   health,
		nodes:    nodes,
		logger:   logger,
		states:   make(map[string]*nodeState),
	}
}

// SetTransitionHook registers a callback fired on every status transition.
// Must be called before the supervisor is used.
func (s *Supervisor) SetTransitionHook(hook TransitionFunc) {
	s.onTransition = hook
}

// Status returns the runtime status of a node, stopped when unknown
func (s *Supervisor) Status(name string) models.NodeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[name]; ok {
		return st.status
	}
	return models.StatusStopped
}

// Handles returns a snapshot of live process handles by node name
func (s *Supervisor) Handles() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pids := make(map[string]int)
	for name, st := range s.states {
		if st.handle != nil {
			pids[name] = st.handle.PID()
		}
	}
	return pids
}

// MarkFailed forces a node into failed state. Used by the reconciler when a
// node's data is found unrecoverably missing.
func (s *Supervisor) MarkFailed(name, detail string) {
	s.mu.Lock()
	st := s.ensureLocked(name)
	st.status = models.StatusFailed
	s.mu.Unlock()

	s.transition(name, models.StatusFailed, detail)
}

// Create validates and persists a node configuration and provisions its data
// and log directories. A provisioning failure rolls the registry write back.
func (s *Supervisor) Create(ctx context.Context, cfg *models.NodeConfig) error {
	if err := s.nodes.Create(ctx, cfg); err != nil {
		return err
	}

	if err := s.provision(cfg); err != nil {
		if rbErr := s.nodes.Delete(ctx, cfg.Name); rbErr != nil {
			s.logger.Error("Failed to roll back node registration",
				"node", cfg.Name, "error", rbErr)
		}
		return err
	}

	s.logger.Info("Node provisioned",
		"node", cfg.Name,
		"data_path", cfg.DataPath,
		"logs_path", cfg.LogsPath)
	return nil
}

// provision creates the node's directories and ownership marker, undoing any
// directory it created itself on failure
func (s *Supervisor) provision(cfg *models.NodeConfig) error {
	var created []string
	undo := func() {
		for _, dir := range created {
			_ = os.RemoveAll(dir)
		}
	}

	for _, dir := range []string{cfg.DataPath, cfg.LogsPath} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				undo()
				return errdefs.IO("failed to create directory %s", dir).WithCause(err)
			}
			created = append(created, dir)
		}
	}

	marker := filepath.Join(cfg.DataPath, MarkerFileName)
	if err := os.WriteFile(marker, []byte(cfg.Name), 0644); err != nil {
		undo()
		return errdefs.IO("failed to write ownership marker for %s", cfg.Name).WithCause(err)
	}

	return nil
}

// Start spawns the node process. The caller returns once the spawn is
// accepted; a background watcher gates the running status on a successful
// health probe within the configured start timeout.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	cfg, err := s.nodes.Get(ctx, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	st := s.ensureLocked(name)
	if st.status != models.StatusStopped && st.status != models.StatusFailed {
		status := st.status
		s.mu.Unlock()
		return errdefs.Conflict("node %s is %s, start requires stopped or failed", name, status)
	}
	if st.handle != nil {
		// A failed node may still hold its dead handle; drop it so the new
		// process is the only one tracked
		_ = st.handle.Kill()
		st.handle = nil
	}
	st.status = models.StatusStarting
	s.mu.Unlock()
	s.transition(name, models.StatusStarting, "")

	handle, err := s.launcher.Launch(LaunchSpec{
		Node:     cfg,
		Command:  s.cfg.Command,
		Args:     s.cfg.ExtraArgs,
		HeapSize: cfg.HeapSize,
	})
	if err != nil {
		s.compareAndSet(name, models.StatusStarting, models.StatusFailed, "spawn failed")
		return errdefs.Internal("failed to spawn process for node %s", name).WithCause(err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if st.status != models.StatusStarting || st.handle != nil {
		// A stop arrived while the spawn was in flight and already settled the
		// node; the fresh process must not outlive it
		s.mu.Unlock()
		cancel()
		_ = handle.Kill()
		s.logger.Warn("Node was stopped while its process was spawning",
			"node", name, "pid", handle.PID())
		return nil
	}
	st.handle = handle
	st.watchCancel = cancel
	s.mu.Unlock()

	go s.watchStartup(watchCtx, name, cfg.Endpoint(), handle)

	s.logger.Info("Node process spawned", "node", name, "pid", handle.PID())
	return nil
}

// watchStartup waits for the spawned process to answer its health probe, then
// keeps watching for an unexpected exit
func (s *Supervisor) watchStartup(ctx context.Context, name, endpoint string, handle Handle) {
	deadline := time.NewTimer(s.cfg.StartTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-handle.Done():
			if s.compareAndSet(name, models.StatusStarting, models.StatusFailed,
				"process exited during startup") {
				s.logger.Error("Node exited before becoming healthy", "node", name)
			}
			return

		case <-deadline.C:
			// Kill the spawned process so a half-started node is never left
			// behind after a probe timeout
			_ = handle.Kill()
			if s.compareAndSet(name, models.StatusStarting, models.StatusFailed,
				"health probe timeout") {
				s.logger.Warn("Node failed to become healthy within start timeout",
					"node", name, "timeout", s.cfg.StartTimeout)
			}
			return

		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
			err := s.health.Ping(probeCtx, endpoint)
			cancel()
			if err != nil {
				continue
			}

			if !s.compareAndSet(name, models.StatusStarting, models.StatusRunning, "") {
				// A stop raced the probe and this handle is no longer
				// tracked anywhere
				_ = handle.Kill()
				return
			}
			s.logger.Info("Node is healthy", "node", name, "endpoint", endpoint)
			s.monitor(ctx, name, handle)
			return
		}
	}
}

// monitor watches a running node for unexpected exit
func (s *Supervisor) monitor(ctx context.Context, name string, handle Handle) {
	select {
	case <-ctx.Done():
	case <-handle.Done():
		if s.compareAndSet(name, models.StatusRunning, models.StatusFailed,
			"process exited unexpectedly") {
			s.logger.Error("Node process exited unexpectedly", "node", name)
		}
	}
}

// Stop terminates a node process. It is idempotent: stopping a node that is
// already stopped (or already on its way down) is a no-op. Termination runs
// in the background; use WaitStopped to block until it finishes.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	if _, err := s.nodes.Get(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	st := s.ensureLocked(name)

	switch st.status {
	case models.StatusStopped, models.StatusStopping:
		s.mu.Unlock()
		return nil

	case models.StatusFailed:
		// The process is already gone; just settle the state machine
		if st.handle != nil {
			_ = st.handle.Kill()
			st.handle = nil
		}
		st.status = models.StatusStopped
		s.mu.Unlock()
		s.transition(name, models.StatusStopped, "")
		return nil
	}

	if st.watchCancel != nil {
		st.watchCancel()
		st.watchCancel = nil
	}
	handle := st.handle
	st.handle = nil
	st.status = models.StatusStopping
	st.stopDone = make(chan struct{})
	done := st.stopDone
	s.mu.Unlock()
	s.transition(name, models.StatusStopping, "")

	go s.terminate(name, handle, done)
	return nil
}

// terminate runs the graceful-then-forced termination sequence and always
// ends in stopped
func (s *Supervisor) terminate(name string, handle Handle, done chan struct{}) {
	detail := ""

	if handle != nil {
		_ = handle.Terminate()

		grace := time.NewTimer(s.cfg.StopGracePeriod)
		select {
		case <-handle.Done():
			grace.Stop()
		case <-grace.C:
			// Grace period exceeded, escalate
			_ = handle.Kill()
			detail = "forced termination after grace period"
			s.logger.Warn("Node did not exit gracefully, killed",
				"node", name, "grace_period", s.cfg.StopGracePeriod)

			killWait := time.NewTimer(5 * time.Second)
			select {
			case <-handle.Done():
				killWait.Stop()
			case <-killWait.C:
				s.logger.Error("Node process did not exit after kill", "node", name)
			}
		}
	}

	s.mu.Lock()
	st := s.ensureLocked(name)
	st.status = models.StatusStopped
	st.stopDone = nil
	s.mu.Unlock()

	s.transition(name, models.StatusStopped, detail)
	close(done)
}

// WaitStopped blocks until the node reaches stopped or ctx expires
func (s *Supervisor) WaitStopped(ctx context.Context, name string) error {
	for {
		s.mu.Lock()
		st := s.ensureLocked(name)
		status := st.status
		done := st.stopDone
		s.mu.Unlock()

		if status == models.StatusStopped {
			return nil
		}

		if done != nil {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return errdefs.Timeout("timed out waiting for node %s to stop", name)
			}
		}

		select {
		case <-ctx.Done():
			return errdefs.Timeout("timed out waiting for node %s to stop", name)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Delete removes a node: it stops the process if needed, removes data and
// logs from disk, then drops the registry record. A disk failure leaves the
// node in failed state with its record intact so the reconciler can surface
// the inconsistency.
func (s *Supervisor) Delete(ctx context.Context, name string) error {
	cfg, err := s.nodes.Get(ctx, name)
	if err != nil {
		return err
	}

	if status := s.Status(name); status != models.StatusStopped {
		if err := s.Stop(ctx, name); err != nil {
			return err
		}
		waitCtx, cancel := context.WithTimeout(ctx, s.cfg.StopGracePeriod+10*time.Second)
		defer cancel()
		if err := s.WaitStopped(waitCtx, name); err != nil {
			return err
		}
	}

	var removeErr error
	for _, dir := range []string{cfg.DataPath, cfg.LogsPath} {
		if err := os.RemoveAll(dir); err != nil {
			removeErr = err
			break
		}
	}
	if removeErr != nil {
		s.MarkFailed(name, "data removal failed")
		return errdefs.IO("failed to remove node %s data: %v", name, removeErr).WithCause(removeErr)
	}

	if err := s.nodes.Delete(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.states, name)
	s.mu.Unlock()

	s.logger.Info("Node deleted", "node", name)
	return nil
}

// UpdateConfig persists configuration changes. Mutation is mutually exclusive
// with start/stop: it is rejected unless the node is stopped or failed, so a
// live process never runs on stale configuration.
func (s *Supervisor) UpdateConfig(ctx context.Context, cfg *models.NodeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensureLocked(cfg.Name)
	if st.status != models.StatusStopped && st.status != models.StatusFailed {
		return errdefs.Conflict("node %s is %s, configuration updates require a stopped node",
			cfg.Name, st.status)
	}

	return s.nodes.Update(ctx, cfg)
}

// Recover reconstructs runtime state at startup: a configured node whose
// HTTP port has a live, healthy listener is adopted as running; everything
// else starts as stopped.
func (s *Supervisor) Recover(ctx context.Context) error {
	configs, err := s.nodes.List(ctx)
	if err != nil {
		return err
	}

	for _, cfg := range configs {
		pid, ok := s.launcher.FindListener(cfg.HTTPPort)
		if !ok {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		pingErr := s.health.Ping(probeCtx, cfg.Endpoint())
		cancel()
		if pingErr != nil {
			s.logger.Warn("Listener on managed port does not answer health probe",
				"node", cfg.Name, "port", cfg.HTTPPort, "pid", pid)
			continue
		}

		handle, err := s.launcher.Adopt(pid)
		if err != nil {
			s.logger.Warn("Failed to adopt running node process",
				"node", cfg.Name, "pid", pid, "error", err)
			continue
		}

		watchCtx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		st := s.ensureLocked(cfg.Name)
		st.status = models.StatusRunning
		st.handle = handle
		st.watchCancel = cancel
		s.mu.Unlock()

		go s.monitor(watchCtx, cfg.Name, handle)

		s.logger.Info("Adopted running node process",
			"node", cfg.Name, "pid", pid, "endpoint", cfg.Endpoint())
	}

	return nil
}

// ensureLocked returns the state entry for name, creating it as stopped.
// Caller must hold s.mu.
func (s *Supervisor) ensureLocked(name string) *nodeState {
	st, ok := s.states[name]
	if !ok {
		st = &nodeState{status: models.StatusStopped}
		s.states[name] = st
	}
	return st
}

// compareAndSet transitions name from one status to another, firing the hook
// on success
func (s *Supervisor) compareAndSet(name string, from, to models.NodeStatus, detail string) bool {
	s.mu.Lock()
	st := s.ensureLocked(name)
	if st.status != from {
		s.mu.Unlock()
		return false
	}
	st.status = to
	s.mu.Unlock()

	s.transition(name, to, detail)
	return true
}

func (s *Supervisor) transition(name string, status models.NodeStatus, detail string) {
	if s.onTransition != nil {
		s.onTransition(name, status, detail)
	}
}
