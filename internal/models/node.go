package models

import (
	"fmt"
	"time"
)

// NodeRole is a role a managed search node can carry
type NodeRole string

const (
	RoleMaster NodeRole = "master"
	RoleData   NodeRole = "data"
	RoleIngest NodeRole = "ingest"
)

// NodeStatus is the runtime state of a managed node process.
// It is derived state owned by the supervisor, never persisted as truth.
type NodeStatus string

const (
	StatusStopped  NodeStatus = "stopped"
	StatusStarting NodeStatus = "starting"
	StatusRunning  NodeStatus = "running"
	StatusStopping NodeStatus = "stopping"
	StatusFailed   NodeStatus = "failed"
)

// NodeConfig is the identity and desired configuration of a managed node
type NodeConfig struct {
	Name          string     `json:"name"`
	Cluster       string     `json:"cluster"`
	Host          string     `json:"host"`
	HTTPPort      int        `json:"http_port"`
	TransportPort int        `json:"transport_port"`
	DataPath      string     `json:"data_path"`
	LogsPath      string     `json:"logs_path"`
	Roles         []NodeRole `json:"roles"`
	HeapSize      string     `json:"heap_size,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Endpoint returns the base URL of the node's admin API
func (c *NodeConfig) Endpoint() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.HTTPPort)
}

// HasRole reports whether the node carries the given role
func (c *NodeConfig) HasRole(role NodeRole) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Validate checks field-level constraints. Cross-node uniqueness is enforced
// by the registry, not here.
func (c *NodeConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("node name is required")
	}
	if c.Host == "" {
		return fmt.Errorf("node host is required")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	if c.TransportPort < 1 || c.TransportPort > 65535 {
		return fmt.Errorf("invalid transport_port: %d", c.TransportPort)
	}
	if c.HTTPPort == c.TransportPort {
		return fmt.Errorf("http_port and transport_port cannot be the same")
	}
	if c.DataPath == "" {
		return fmt.Errorf("data_path is required")
	}
	if c.LogsPath == "" {
		return fmt.Errorf("logs_path is required")
	}
	if c.DataPath == c.LogsPath {
		return fmt.Errorf("data_path and logs_path cannot be the same")
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("at least one role is required")
	}
	for _, r := range c.Roles {
		switch r {
		case RoleMaster, RoleData, RoleIngest:
		default:
			return fmt.Errorf("unknown role: %s", r)
		}
	}
	return nil
}
