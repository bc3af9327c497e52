// Package supervisor owns the lifecycle of locally spawned search node
// processes: spawning, health-gated startup, graceful and forced termination,
// and crash detection. Runtime status lives only here.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/orchardops/orchard/internal/models"
)

// LaunchSpec describes one node process to spawn
type LaunchSpec struct {
	Node     *models.NodeConfig
	Command  string
	Args     []string
	HeapSize string
}

// Handle controls one spawned or adopted node process
type Handle interface {
	// PID returns the operating system process id
	PID() int

	// Terminate sends a graceful termination signal
	Terminate() error

	// Kill forcibly terminates the process
	Kill() error

	// Done is closed when the process has exited
	Done() <-chan struct{}
}

// Launcher abstracts process spawning and discovery so the supervisor state
// machine is testable without real processes
type Launcher interface {
	// Launch spawns the node process described by spec
	Launch(spec LaunchSpec) (Handle, error)

	// FindListener returns the pid of a process listening on the given local
	// TCP port, if any
	FindListener(port int) (int, bool)

	// Adopt wraps an already running process, found during startup
	// reconstruction, in a Handle
	Adopt(pid int) (Handle, error)
}

// =============================================================================
// OS implementation
// =============================================================================

// OSLauncher launches real node processes via exec
type OSLauncher struct{}

// NewOSLauncher creates the production launcher
func NewOSLauncher() *OSLauncher {
	return &OSLauncher{}
}

type osHandle struct {
	pid  int
	proc *os.Process
	done chan struct{}
}

func (h *osHandle) PID() int { return h.pid }

func (h *osHandle) Terminate() error {
	return h.proc.Signal(syscall.SIGTERM)
}

func (h *osHandle) Kill() error {
	return h.proc.Kill()
}

func (h *osHandle) Done() <-chan struct{} { return h.done }

// Launch spawns the node process and begins reaping it
func (l *OSLauncher) Launch(spec LaunchSpec) (Handle, error) {
	args := append([]string{}, spec.Args...)
	args = append(args,
		fmt.Sprintf("--node-name=%s", spec.Node.Name),
		fmt.Sprintf("--cluster-name=%s", spec.Node.Cluster),
		fmt.Sprintf("--http-port=%d", spec.Node.HTTPPort),
		fmt.Sprintf("--transport-port=%d", spec.Node.TransportPort),
		fmt.Sprintf("--path-data=%s", spec.Node.DataPath),
		fmt.Sprintf("--path-logs=%s", spec.Node.LogsPath),
	)
	for _, role := range spec.Node.Roles {
		args = append(args, fmt.Sprintf("--role=%s", role))
	}

	cmd := exec.Command(spec.Command, args...)
	cmd.Env = os.Environ()
	if spec.HeapSize != "" {
		cmd.Env = append(cmd.Env, fmt.Sprintf("SEARCHD_HEAP=%s", spec.HeapSize))
	}
	// Own process group so a supervisor crash does not take the node down
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", spec.Command, err)
	}

	h := &osHandle{pid: cmd.Process.Pid, proc: cmd.Process, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

// Adopt wraps an already running pid. Exit is detected by signal-0 polling
// since only a parent can wait on the process.
func (l *OSLauncher) Adopt(pid int) (Handle, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("process %d is not running: %w", pid, err)
	}

	h := &osHandle{pid: pid, proc: proc, done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				close(h.done)
				return
			}
		}
	}()
	return h, nil
}
