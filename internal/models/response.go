package models

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// NodeResponse represents a node with its runtime status
type NodeResponse struct {
	Name          string     `json:"name"`
	Cluster       string     `json:"cluster"`
	Host          string     `json:"host"`
	HTTPPort      int        `json:"http_port"`
	TransportPort int        `json:"transport_port"`
	DataPath      string     `json:"data_path"`
	LogsPath      string     `json:"logs_path"`
	Roles         []NodeRole `json:"roles"`
	HeapSize      string     `json:"heap_size,omitempty"`
	Status        NodeStatus `json:"status"`
	CreatedAt     string     `json:"created_at"`
}

// NodeListResponse represents list nodes response
type NodeListResponse struct {
	Nodes []NodeResponse `json:"nodes"`
}

// ClusterResponse represents a cluster with its derived node count
type ClusterResponse struct {
	Name      string `json:"name"`
	NodeCount int    `json:"node_count"`
	CreatedAt string `json:"created_at"`
}

// ClusterListResponse represents list clusters response
type ClusterListResponse struct {
	Clusters []ClusterResponse `json:"clusters"`
}

// StatsResponse represents per-node statistics, served from the cache
// regardless of whether the node is currently running
type StatsResponse struct {
	Node         string       `json:"node"`
	Indices      []IndexStats `json:"indices"`
	Memory       MemoryStats  `json:"memory"`
	DocCount     int64        `json:"doc_count"`
	StorageBytes int64        `json:"storage_bytes"`
	CachedAt     string       `json:"cached_at"`
	AgeSeconds   int64        `json:"age_seconds"`
}

// TaskSubmitResponse is returned when a long-running task is accepted
type TaskSubmitResponse struct {
	TaskID string `json:"task_id"`
}

// TaskStatusResponse is the polling contract for long-running tasks
type TaskStatusResponse struct {
	TaskID      string      `json:"task_id"`
	Kind        string      `json:"kind"`
	Completed   bool        `json:"completed"`
	Status      string      `json:"status"`
	Progress    int         `json:"progress"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   string      `json:"created_at"`
	CompletedAt string      `json:"completed_at,omitempty"`
}

// NodeReport is the per-node result of a metadata verification run
type NodeReport struct {
	Consistent bool     `json:"consistent"`
	Issues     []string `json:"issues"`
	Repairs    []string `json:"repairs,omitempty"`
}

// VerifyResponse is the full report of a verification or repair run
type VerifyResponse struct {
	Consistent bool                  `json:"consistent"`
	Nodes      map[string]NodeReport `json:"nodes"`
	Orphans    []OrphanProcess       `json:"orphans,omitempty"`
}

// OrphanProcess describes a process bound to a managed port with no
// corresponding registry entry
type OrphanProcess struct {
	PID        int    `json:"pid"`
	Port       int    `json:"port"`
	Terminated bool   `json:"terminated"`
	Detail     string `json:"detail,omitempty"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
