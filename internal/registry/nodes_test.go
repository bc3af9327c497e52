package registry

import (
	"context"
	"testing"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
)

func testNodeConfig(name string, httpPort, transportPort int) *models.NodeConfig {
	return &models.NodeConfig{
		Name:          name,
		Cluster:       models.DefaultClusterName,
		Host:          "127.0.0.1",
		HTTPPort:      httpPort,
		TransportPort: transportPort,
		DataPath:      "/data/" + name,
		LogsPath:      "/logs/" + name,
		Roles:         []models.NodeRole{models.RoleMaster, models.RoleData},
	}
}

func newTestNodeRegistry() *NodeRegistry {
	return NewNodeRegistry(NewMemoryKV(), logging.NewDevelopment())
}

func TestNodeRegistry_CreateAndGet(t *testing.T) {
	reg := newTestNodeRegistry()
	ctx := context.Background()

	cfg := testNodeConfig("n1", 9200, 9300)
	if err := reg.Create(ctx, cfg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := reg.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.HTTPPort != 9200 || got.Cluster != models.DefaultClusterName {
		t.Errorf("Unexpected config: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on create")
	}
}

func TestNodeRegistry_GetMissing(t *testing.T) {
	reg := newTestNodeRegistry()

	_, err := reg.Get(context.Background(), "ghost")
	if !errdefs.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestNodeRegistry_CreateDuplicateName(t *testing.T) {
	reg := newTestNodeRegistry()
	ctx := context.Background()

	if err := reg.Create(ctx, testNodeConfig("n1", 9200, 9300)); err != nil {
		t.Fatalf("First create failed: %v", err)
	}

	err := reg.Create(ctx, testNodeConfig("n1", 9210, 9310))
	if !errdefs.IsValidation(err) {
		t.Errorf("Expected Validation error for duplicate name, got %v", err)
	}
}

func TestNodeRegistry_CollisionsRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.NodeConfig)
	}{
		{
			name:   "duplicate http port",
			mutate: func(c *models.NodeConfig) { c.HTTPPort = 9200 },
		},
		{
			name:   "duplicate transport port",
			mutate: func(c *models.NodeConfig) { c.TransportPort = 9300 },
		},
		{
			name:   "duplicate data path",
			mutate: func(c *models.NodeConfig) { c.DataPath = "/data/n1" },
		},
		{
			name:   "duplicate logs path",
			mutate: func(c *models.NodeConfig) { c.LogsPath = "/logs/n1" },
		},
		{
			name:   "data path nested inside existing data path",
			mutate: func(c *models.NodeConfig) { c.DataPath = "/data/n1/inner" },
		},
		{
			name:   "data path containing existing data path",
			mutate: func(c *models.NodeConfig) { c.DataPath = "/data" },
		},
		{
			name:   "logs path nested inside existing logs path",
			mutate: func(c *models.NodeConfig) { c.LogsPath = "/logs/n1/archive" },
		},
		{
			name:   "data path nested inside existing logs path",
			mutate: func(c *models.NodeConfig) { c.DataPath = "/logs/n1/data" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestNodeRegistry()
			ctx := context.Background()

			if err := reg.Create(ctx, testNodeConfig("n1", 9200, 9300)); err != nil {
				t.Fatalf("Seed create failed: %v", err)
			}

			second := testNodeConfig("n2", 9210, 9310)
			tt.mutate(second)

			err := reg.Create(ctx, second)
			if !errdefs.IsValidation(err) {
				t.Fatalf("Expected Validation error, got %v", err)
			}

			// Registry must be unchanged
			nodes, _ := reg.List(ctx)
			if len(nodes) != 1 {
				t.Errorf("Expected registry unchanged with 1 node, got %d", len(nodes))
			}
			if _, err := reg.Get(ctx, "n2"); !errdefs.IsNotFound(err) {
				t.Error("Rejected node must not be stored")
			}
		})
	}
}

func TestNodeRegistry_SiblingPathsWithSharedPrefixAllowed(t *testing.T) {
	reg := newTestNodeRegistry()
	ctx := context.Background()

	if err := reg.Create(ctx, testNodeConfig("n1", 9200, 9300)); err != nil {
		t.Fatalf("Create n1 failed: %v", err)
	}

	// "/data/n10" shares the string prefix "/data/n1" but is a sibling
	// directory, not a nested one
	other := testNodeConfig("n10", 9210, 9310)
	if err := reg.Create(ctx, other); err != nil {
		t.Errorf("Sibling path with shared prefix should be allowed: %v", err)
	}
}

func TestNodeRegistry_DifferentHostsMayShareSamePort(t *testing.T) {
	reg := newTestNodeRegistry()
	ctx := context.Background()

	if err := reg.Create(ctx, testNodeConfig("n1", 9200, 9300)); err != nil {
		t.Fatalf("Create n1 failed: %v", err)
	}

	other := testNodeConfig("n2", 9200, 9300)
	other.Host = "10.0.0.2"
	if err := reg.Create(ctx, other); err != nil {
		t.Errorf("Same port on different host should be allowed: %v", err)
	}
}

func TestNodeRegistry_InvalidConfigRejected(t *testing.T) {
	reg := newTestNodeRegistry()

	cfg := testNodeConfig("n1", 9200, 9300)
	cfg.Roles = nil

	err := reg.Create(context.Background(), cfg)
	if !errdefs.IsValidation(err) {
		t.Errorf("Expected Validation error for missing roles, got %v", err)
	}
}

func TestNodeRegistry_ListSorted(t *testing.T) {
	reg := newTestNodeRegistry()
	ctx := context.Background()

	for i, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Create(ctx, testNodeConfig(name, 9200+i*10, 9300+i*10)); err != nil {
			t.Fatalf("Create %s failed: %v", name, err)
		}
	}

	nodes, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"alpha", "mid", "zeta"}
	for i, cfg := range nodes {
		if cfg.Name != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], cfg.Name)
		}
	}
}

func TestNodeRegistry_UpdateKeepsCreatedAt(t *testing.T) {
	reg := newTestNodeRegistry()
	ctx := context.Background()

	cfg := testNodeConfig("n1", 9200, 9300)
	if err := reg.Create(ctx, cfg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	created := cfg.CreatedAt

	cfg.HeapSize = "4g"
	if err := reg.Update(ctx, cfg); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := reg.Get(ctx, "n1")
	if got.HeapSize != "4g" {
		t.Errorf("Update not persisted: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on update: %v vs %v", got.CreatedAt, created)
	}
}

func TestNodeRegistry_UpdateCollisionRejected(t *testing.T) {
	reg := newTestNodeRegistry()
	ctx := context.Background()

	_ = reg.Create(ctx, testNodeConfig("n1", 9200, 9300))
	_ = reg.Create(ctx, testNodeConfig("n2", 9210, 9310))

	n2, _ := reg.Get(ctx, "n2")
	n2.HTTPPort = 9200

	err := reg.Update(ctx, n2)
	if !errdefs.IsValidation(err) {
		t.Errorf("Expected Validation error, got %v", err)
	}

	// n2 unchanged in the store
	got, _ := reg.Get(ctx, "n2")
	if got.HTTPPort != 9210 {
		t.Errorf("Rejected update leaked into the store: %+v", got)
	}
}

func TestNodeRegistry_Delete(t *testing.T) {
	reg := newTestNodeRegistry()
	ctx := context.Background()

	_ = reg.Create(ctx, testNodeConfig("n1", 9200, 9300))

	if err := reg.Delete(ctx, "n1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := reg.Get(ctx, "n1"); !errdefs.IsNotFound(err) {
		t.Error("Node still present after delete")
	}
	if err := reg.Delete(ctx, "n1"); !errdefs.IsNotFound(err) {
		t.Errorf("Expected NotFound on second delete, got %v", err)
	}
}
