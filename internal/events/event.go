// Package events publishes orchestrator lifecycle events to a configurable
// broker. Consumers (dashboards, alerting) subscribe out of band; the
// orchestrator only produces.
package events

import (
	"context"
	"time"
)

// Event types
const (
	TypeNodeCreated   = "node.created"
	TypeNodeDeleted   = "node.deleted"
	TypeNodeStatus    = "node.status"
	TypeClusterChange = "cluster.changed"
	TypeTaskFinished  = "task.finished"
)

// Event is a single lifecycle notification
type Event struct {
	Type      string    `json:"type"`
	Node      string    `json:"node,omitempty"`
	Cluster   string    `json:"cluster,omitempty"`
	Status    string    `json:"status,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events to a broker. Publish must not block the caller
// beyond the context deadline; delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
