package models

import "encoding/json"

// CreateNodeRequest is the payload for node creation
type CreateNodeRequest struct {
	Name          string     `json:"name"`
	Cluster       string     `json:"cluster,omitempty"`
	Host          string     `json:"host"`
	HTTPPort      int        `json:"http_port"`
	TransportPort int        `json:"transport_port"`
	DataPath      string     `json:"data_path"`
	LogsPath      string     `json:"logs_path"`
	Roles         []NodeRole `json:"roles"`
	HeapSize      string     `json:"heap_size,omitempty"`
}

// ToConfig converts the request into a NodeConfig
func (r *CreateNodeRequest) ToConfig() *NodeConfig {
	cluster := r.Cluster
	if cluster == "" {
		cluster = DefaultClusterName
	}
	return &NodeConfig{
		Name:          r.Name,
		Cluster:       cluster,
		Host:          r.Host,
		HTTPPort:      r.HTTPPort,
		TransportPort: r.TransportPort,
		DataPath:      r.DataPath,
		LogsPath:      r.LogsPath,
		Roles:         r.Roles,
		HeapSize:      r.HeapSize,
	}
}

// UpdateNodeRequest is the payload for node configuration updates.
// The name itself is immutable; omitted fields keep their current value.
type UpdateNodeRequest struct {
	Cluster       *string     `json:"cluster,omitempty"`
	Host          *string     `json:"host,omitempty"`
	HTTPPort      *int        `json:"http_port,omitempty"`
	TransportPort *int        `json:"transport_port,omitempty"`
	DataPath      *string     `json:"data_path,omitempty"`
	LogsPath      *string     `json:"logs_path,omitempty"`
	Roles         *[]NodeRole `json:"roles,omitempty"`
	HeapSize      *string     `json:"heap_size,omitempty"`
}

// CreateClusterRequest is the payload for cluster creation
type CreateClusterRequest struct {
	Name string `json:"name"`
}

// RenameClusterRequest is the payload for cluster rename
type RenameClusterRequest struct {
	NewName string `json:"new_name"`
}

// SubmitTaskRequest is the payload for long-running task submission
type SubmitTaskRequest struct {
	Kind   string          `json:"kind"`
	Node   string          `json:"node"`
	Params json.RawMessage `json:"params,omitempty"`
}
