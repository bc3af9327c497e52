package registry

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/orchardops/orchard/internal/config"
)

// EtcdKV implements KV on top of etcd
type EtcdKV struct {
	client *clientv3.Client
}

// NewEtcdKV connects to etcd using the store configuration
func NewEtcdKV(cfg config.StoreConfig) (*EtcdKV, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &EtcdKV{client: client}, nil
}

// Get returns the value for key and whether it exists
func (e *EtcdKV) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := e.client.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s from etcd: %w", key, err)
	}

	if len(resp.Kvs) == 0 {
		return "", false, nil
	}

	return string(resp.Kvs[0].Value), true, nil
}

// Put stores value under key
func (e *EtcdKV) Put(ctx context.Context, key, value string) error {
	if _, err := e.client.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put %s in etcd: %w", key, err)
	}
	return nil
}

// Delete removes key
func (e *EtcdKV) Delete(ctx context.Context, key string) error {
	if _, err := e.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s from etcd: %w", key, err)
	}
	return nil
}

// GetPrefix returns all pairs whose key starts with prefix
func (e *EtcdKV) GetPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	resp, err := e.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix %s from etcd: %w", prefix, err)
	}

	result := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		result[string(kv.Key)] = string(kv.Value)
	}
	return result, nil
}

// Close closes the etcd client
func (e *EtcdKV) Close() error {
	return e.client.Close()
}

// NewKV builds the configured store backend
func NewKV(cfg config.StoreConfig) (KV, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryKV(), nil
	case "etcd", "":
		return NewEtcdKV(cfg)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
