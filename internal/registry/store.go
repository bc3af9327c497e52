// Package registry stores node and cluster configuration records behind a
// small key-value interface so the orchestrator can run against etcd in
// production and an in-memory store in tests and single-box deployments.
package registry

import "context"

// Key layout in the backing store
const (
	nodePrefix    = "/orchard/nodes/"
	clusterPrefix = "/orchard/clusters/"
)

// KV is the minimal key-value contract the registries need
type KV interface {
	// Get returns the value for key and whether it exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores value under key, overwriting any previous value
	Put(ctx context.Context, key, value string) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// GetPrefix returns all key-value pairs whose key starts with prefix
	GetPrefix(ctx context.Context, prefix string) (map[string]string, error)

	// Close releases the backing connection
	Close() error
}
