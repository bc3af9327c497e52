package registry

import (
	"context"
	"testing"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
)

func newTestRegistries() (*NodeRegistry, *ClusterRegistry) {
	kv := NewMemoryKV()
	logger := logging.NewDevelopment()
	nodes := NewNodeRegistry(kv, logger)
	clusters := NewClusterRegistry(kv, nodes, logger)
	return nodes, clusters
}

func TestClusterRegistry_EnsureDefault(t *testing.T) {
	_, clusters := newTestRegistries()
	ctx := context.Background()

	if err := clusters.EnsureDefault(ctx); err != nil {
		t.Fatalf("EnsureDefault failed: %v", err)
	}

	record, err := clusters.Get(ctx, models.DefaultClusterName)
	if err != nil {
		t.Fatalf("Default cluster missing: %v", err)
	}

	// Idempotent: a second call must not reset the record
	created := record.CreatedAt
	if err := clusters.EnsureDefault(ctx); err != nil {
		t.Fatalf("Second EnsureDefault failed: %v", err)
	}
	record, _ = clusters.Get(ctx, models.DefaultClusterName)
	if !record.CreatedAt.Equal(created) {
		t.Error("EnsureDefault overwrote the existing record")
	}
}

func TestClusterRegistry_CreateValidation(t *testing.T) {
	_, clusters := newTestRegistries()
	ctx := context.Background()
	_ = clusters.EnsureDefault(ctx)

	tests := []struct {
		name        string
		clusterName string
	}{
		{"empty name", ""},
		{"reserved name", models.DefaultClusterName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := clusters.Create(ctx, tt.clusterName); !errdefs.IsValidation(err) {
				t.Errorf("Expected Validation error, got %v", err)
			}
		})
	}

	if _, err := clusters.Create(ctx, "prod"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := clusters.Create(ctx, "prod"); !errdefs.IsValidation(err) {
		t.Error("Duplicate cluster name must be rejected")
	}
}

func TestClusterRegistry_RenameDefaultRejected(t *testing.T) {
	_, clusters := newTestRegistries()
	ctx := context.Background()
	_ = clusters.EnsureDefault(ctx)

	err := clusters.Rename(ctx, models.DefaultClusterName, "primary")
	if !errdefs.IsValidation(err) {
		t.Errorf("Expected Validation error, got %v", err)
	}
}

func TestClusterRegistry_RenameMovesMembers(t *testing.T) {
	nodes, clusters := newTestRegistries()
	ctx := context.Background()
	_ = clusters.EnsureDefault(ctx)

	if _, err := clusters.Create(ctx, "staging"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	cfg := testNodeConfig("n1", 9200, 9300)
	cfg.Cluster = "staging"
	if err := nodes.Create(ctx, cfg); err != nil {
		t.Fatalf("Node create failed: %v", err)
	}

	if err := clusters.Rename(ctx, "staging", "preprod"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	if _, err := clusters.Get(ctx, "staging"); !errdefs.IsNotFound(err) {
		t.Error("Old cluster name still present")
	}
	if _, err := clusters.Get(ctx, "preprod"); err != nil {
		t.Errorf("New cluster name missing: %v", err)
	}

	got, _ := nodes.Get(ctx, "n1")
	if got.Cluster != "preprod" {
		t.Errorf("Member not moved, cluster = %s", got.Cluster)
	}
}

func TestClusterRegistry_RenameCollisionRejected(t *testing.T) {
	_, clusters := newTestRegistries()
	ctx := context.Background()
	_ = clusters.EnsureDefault(ctx)
	_, _ = clusters.Create(ctx, "a")
	_, _ = clusters.Create(ctx, "b")

	if err := clusters.Rename(ctx, "a", "b"); !errdefs.IsValidation(err) {
		t.Errorf("Expected Validation error, got %v", err)
	}
}

func TestClusterRegistry_DeleteDefaultRejected(t *testing.T) {
	_, clusters := newTestRegistries()
	ctx := context.Background()
	_ = clusters.EnsureDefault(ctx)

	err := clusters.Delete(ctx, models.DefaultClusterName, "")
	if !errdefs.IsValidation(err) {
		t.Errorf("Expected Validation error, got %v", err)
	}
}

func TestClusterRegistry_DeleteEmptyCluster(t *testing.T) {
	_, clusters := newTestRegistries()
	ctx := context.Background()
	_ = clusters.EnsureDefault(ctx)
	_, _ = clusters.Create(ctx, "empty")

	if err := clusters.Delete(ctx, "empty", ""); err != nil {
		t.Fatalf("Deleting an empty cluster without target failed: %v", err)
	}
	if _, err := clusters.Get(ctx, "empty"); !errdefs.IsNotFound(err) {
		t.Error("Cluster still present after delete")
	}
}

func TestClusterRegistry_DeleteReassignsAllMembers(t *testing.T) {
	nodes, clusters := newTestRegistries()
	ctx := context.Background()
	_ = clusters.EnsureDefault(ctx)
	_, _ = clusters.Create(ctx, "old")
	_, _ = clusters.Create(ctx, "new")

	names := []string{"n1", "n2", "n3"}
	for i, name := range names {
		cfg := testNodeConfig(name, 9200+i*10, 9300+i*10)
		cfg.Cluster = "old"
		if err := nodes.Create(ctx, cfg); err != nil {
			t.Fatalf("Node create failed: %v", err)
		}
	}

	if err := clusters.Delete(ctx, "old", "new"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	members, _ := nodes.ListByCluster(ctx, "new")
	if len(members) != len(names) {
		t.Errorf("Expected %d members in target, got %d", len(names), len(members))
	}
	if _, err := clusters.Get(ctx, "old"); !errdefs.IsNotFound(err) {
		t.Error("Source cluster still present")
	}
}

func TestClusterRegistry_DeleteNonEmptyWithoutTarget(t *testing.T) {
	nodes, clusters := newTestRegistries()
	ctx := context.Background()
	_ = clusters.EnsureDefault(ctx)
	_, _ = clusters.Create(ctx, "old")

	cfg := testNodeConfig("n1", 9200, 9300)
	cfg.Cluster = "old"
	_ = nodes.Create(ctx, cfg)

	tests := []struct {
		name   string
		target string
	}{
		{"no target", ""},
		{"target is self", "old"},
		{"target missing", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := clusters.Delete(ctx, "old", tt.target)
			if !errdefs.IsValidation(err) {
				t.Fatalf("Expected Validation error, got %v", err)
			}

			// Nothing moved, nothing deleted
			if _, err := clusters.Get(ctx, "old"); err != nil {
				t.Error("Source cluster vanished after failed delete")
			}
			got, _ := nodes.Get(ctx, "n1")
			if got.Cluster != "old" {
				t.Errorf("Member moved despite failed delete: %s", got.Cluster)
			}
		})
	}
}
