package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
	"github.com/orchardops/orchard/internal/registry"
	"github.com/orchardops/orchard/internal/supervisor"
)

type fakeSup struct {
	mu       sync.Mutex
	statuses map[string]models.NodeStatus
	handles  map[string]int
	failed   map[string]string
}

func newFakeSup() *fakeSup {
	return &fakeSup{
		statuses: make(map[string]models.NodeStatus),
		handles:  make(map[string]int),
		failed:   make(map[string]string),
	}
}

func (f *fakeSup) Status(name string) models.NodeStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[name]; ok {
		return s
	}
	return models.StatusStopped
}

func (f *fakeSup) Handles() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.handles))
	for k, v := range f.handles {
		out[k] = v
	}
	return out
}

func (f *fakeSup) MarkFailed(name, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[name] = detail
}

type fakeOrphanHandle struct {
	terminated bool
	done       chan struct{}
}

func (h *fakeOrphanHandle) PID() int               { return 0 }
func (h *fakeOrphanHandle) Kill() error            { return nil }
func (h *fakeOrphanHandle) Done() <-chan struct{}  { return h.done }
func (h *fakeOrphanHandle) Terminate() error {
	h.terminated = true
	return nil
}

type fakeLauncher struct {
	listeners map[int]int
	handles   map[int]*fakeOrphanHandle
}

func (l *fakeLauncher) Launch(spec supervisor.LaunchSpec) (supervisor.Handle, error) {
	return nil, os.ErrInvalid
}

func (l *fakeLauncher) FindListener(port int) (int, bool) {
	pid, ok := l.listeners[port]
	return pid, ok
}

func (l *fakeLauncher) Adopt(pid int) (supervisor.Handle, error) {
	h, ok := l.handles[pid]
	if !ok {
		return nil, os.ErrProcessDone
	}
	return h, nil
}

func provisionedNode(t *testing.T, nodes *registry.NodeRegistry, name string, port int) *models.NodeConfig {
	t.Helper()
	base := t.TempDir()
	cfg := &models.NodeConfig{
		Name:          name,
		Cluster:       models.DefaultClusterName,
		Host:          "127.0.0.1",
		HTTPPort:      port,
		TransportPort: port + 100,
		DataPath:      filepath.Join(base, "data"),
		LogsPath:      filepath.Join(base, "logs"),
		Roles:         []models.NodeRole{models.RoleData},
	}
	if err := nodes.Create(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{cfg.DataPath, cfg.LogsPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	marker := filepath.Join(cfg.DataPath, supervisor.MarkerFileName)
	if err := os.WriteFile(marker, []byte(name), 0644); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func newTestReconciler(t *testing.T) (*Reconciler, *registry.NodeRegistry, *fakeSup, *fakeLauncher) {
	t.Helper()
	logger := logging.NewDevelopment()
	nodes := registry.NewNodeRegistry(registry.NewMemoryKV(), logger)
	sup := newFakeSup()
	launcher := &fakeLauncher{listeners: map[int]int{}, handles: map[int]*fakeOrphanHandle{}}
	return New(nodes, sup, launcher, logger), nodes, sup, launcher
}

func TestVerifyHealthyNode(t *testing.T) {
	rec, nodes, _, _ := newTestReconciler(t)
	provisionedNode(t, nodes, "node-1", 9200)

	resp, err := rec.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if !resp.Consistent {
		t.Fatalf("expected consistent report, got %+v", resp)
	}
	report := resp.Nodes["node-1"]
	if !report.Consistent || len(report.Issues) != 0 {
		t.Errorf("unexpected node report: %+v", report)
	}
}

func TestVerifyReportsMissingDirectories(t *testing.T) {
	rec, nodes, _, _ := newTestReconciler(t)
	cfg := provisionedNode(t, nodes, "node-1", 9200)

	if err := os.RemoveAll(cfg.LogsPath); err != nil {
		t.Fatal(err)
	}

	resp, err := rec.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if resp.Consistent {
		t.Fatal("expected inconsistent report")
	}
	report := resp.Nodes["node-1"]
	if len(report.Issues) != 1 {
		t.Fatalf("issues = %v, want one", report.Issues)
	}
	if len(report.Repairs) != 0 {
		t.Errorf("verify must not repair, got %v", report.Repairs)
	}

	// Verify never touches the filesystem
	if _, err := os.Stat(cfg.LogsPath); !os.IsNotExist(err) {
		t.Error("verify recreated a directory")
	}
}

func TestRepairRecreatesMissingDirectories(t *testing.T) {
	rec, nodes, _, _ := newTestReconciler(t)
	cfg := provisionedNode(t, nodes, "node-1", 9200)

	if err := os.RemoveAll(cfg.LogsPath); err != nil {
		t.Fatal(err)
	}

	resp, err := rec.RepairAndVerify(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	report := resp.Nodes["node-1"]
	if len(report.Repairs) != 1 {
		t.Fatalf("repairs = %v, want one", report.Repairs)
	}
	if _, err := os.Stat(cfg.LogsPath); err != nil {
		t.Errorf("logs directory not recreated: %v", err)
	}
}

func TestRepairMissingDataDirMarksFailed(t *testing.T) {
	rec, nodes, sup, _ := newTestReconciler(t)
	cfg := provisionedNode(t, nodes, "node-1", 9200)

	if err := os.RemoveAll(cfg.DataPath); err != nil {
		t.Fatal(err)
	}

	resp, err := rec.RepairAndVerify(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// The directory comes back empty, but the node is not healthy and its
	// registry entry survives
	if resp.Consistent {
		t.Fatal("externally deleted data directory must report inconsistent")
	}
	if _, err := os.Stat(cfg.DataPath); err != nil {
		t.Errorf("data directory not recreated: %v", err)
	}
	if _, marked := sup.failed["node-1"]; !marked {
		t.Error("node with lost data not marked failed")
	}
	if _, err := nodes.Get(context.Background(), "node-1"); err != nil {
		t.Errorf("registry entry dropped: %v", err)
	}
}

func TestCrossConfigCollisionsDetected(t *testing.T) {
	rec, nodes, _, _ := newTestReconciler(t)
	a := provisionedNode(t, nodes, "node-a", 9200)
	b := provisionedNode(t, nodes, "node-b", 9210)

	// Simulate an out-of-band store edit that the registry would have
	// rejected
	edited := *b
	edited.HTTPPort = a.HTTPPort
	collisions := crossConfigCollisions([]*models.NodeConfig{a, &edited})

	if len(collisions["node-a"]) != 1 || len(collisions["node-b"]) != 1 {
		t.Fatalf("collisions = %v", collisions)
	}

	resp, err := rec.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Consistent {
		t.Error("registry-created nodes should have no collisions")
	}
}

func TestRepairRewritesMissingMarker(t *testing.T) {
	rec, nodes, _, _ := newTestReconciler(t)
	cfg := provisionedNode(t, nodes, "node-1", 9200)

	marker := filepath.Join(cfg.DataPath, supervisor.MarkerFileName)
	if err := os.Remove(marker); err != nil {
		t.Fatal(err)
	}

	resp, err := rec.RepairAndVerify(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(resp.Nodes["node-1"].Repairs) != 1 {
		t.Fatalf("repairs = %v", resp.Nodes["node-1"].Repairs)
	}
	data, err := os.ReadFile(marker)
	if err != nil || string(data) != "node-1" {
		t.Errorf("marker = %q, %v", data, err)
	}
}

func TestForeignMarkerMarksNodeFailed(t *testing.T) {
	rec, nodes, sup, _ := newTestReconciler(t)
	cfg := provisionedNode(t, nodes, "node-1", 9200)

	marker := filepath.Join(cfg.DataPath, supervisor.MarkerFileName)
	if err := os.WriteFile(marker, []byte("other-node"), 0644); err != nil {
		t.Fatal(err)
	}

	resp, err := rec.RepairAndVerify(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if resp.Consistent {
		t.Fatal("expected inconsistent report")
	}
	if _, marked := sup.failed["node-1"]; !marked {
		t.Error("node with foreign data directory not marked failed")
	}

	// Repair must never rewrite a foreign marker
	data, _ := os.ReadFile(marker)
	if string(data) != "other-node" {
		t.Errorf("foreign marker was overwritten: %q", data)
	}
}

func TestRunningNodeWithoutListenerIsInconsistent(t *testing.T) {
	rec, nodes, sup, _ := newTestReconciler(t)
	provisionedNode(t, nodes, "node-1", 9200)
	sup.statuses["node-1"] = models.StatusRunning

	resp, err := rec.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Consistent {
		t.Fatal("expected inconsistent report for running node with no listener")
	}
}

func TestOrphanDetectionAndTermination(t *testing.T) {
	rec, nodes, sup, launcher := newTestReconciler(t)
	cfg := provisionedNode(t, nodes, "node-1", 9200)

	// An unmanaged process squats on the node's port
	orphan := &fakeOrphanHandle{done: make(chan struct{})}
	launcher.listeners[cfg.HTTPPort] = 7777
	launcher.handles[7777] = orphan

	resp, err := rec.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Orphans) != 1 || resp.Orphans[0].Terminated {
		t.Fatalf("verify orphans = %+v", resp.Orphans)
	}
	if orphan.terminated {
		t.Fatal("verify must not terminate processes")
	}

	resp, err = rec.RepairAndVerify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Orphans) != 1 || !resp.Orphans[0].Terminated {
		t.Fatalf("repair orphans = %+v", resp.Orphans)
	}
	if !orphan.terminated {
		t.Error("orphan process not terminated")
	}

	// A listener owned by the supervisor is not an orphan
	sup.handles["node-1"] = 7777
	resp, err = rec.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Orphans) != 0 {
		t.Errorf("managed process reported as orphan: %+v", resp.Orphans)
	}
}

func TestSingleFlight(t *testing.T) {
	rec, nodes, _, _ := newTestReconciler(t)
	provisionedNode(t, nodes, "node-1", 9200)

	rec.busy.Store(true)
	_, err := rec.Verify(context.Background())
	if !errdefs.IsConflict(err) {
		t.Fatalf("expected conflict while a run is in progress, got %v", err)
	}
	rec.busy.Store(false)

	if _, err := rec.Verify(context.Background()); err != nil {
		t.Fatalf("verify after release: %v", err)
	}
}
