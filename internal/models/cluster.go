package models

import "time"

// DefaultClusterName is the built-in cluster every node belongs to unless
// assigned elsewhere. It always exists and can never be deleted or renamed.
const DefaultClusterName = "default"

// ClusterRecord is a named logical grouping of nodes
type ClusterRecord struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
