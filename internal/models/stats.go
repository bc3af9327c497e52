package models

import "time"

// IndexStats describes one index on a managed node
type IndexStats struct {
	Name           string `json:"name"`
	Health         string `json:"health"`
	DocCount       int64  `json:"doc_count"`
	StoreSizeBytes int64  `json:"store_size_bytes"`
}

// MemoryStats describes heap usage of a managed node process
type MemoryStats struct {
	HeapUsedBytes int64 `json:"heap_used_bytes"`
	HeapMaxBytes  int64 `json:"heap_max_bytes"`
}

// StatsSnapshot is the last known statistics for one node. Snapshots are only
// written while a node is running and are served with their age afterwards so
// stopped nodes still report meaningful state.
type StatsSnapshot struct {
	Node       string       `json:"node"`
	Indices    []IndexStats `json:"indices"`
	Memory     MemoryStats  `json:"memory"`
	CapturedAt time.Time    `json:"captured_at"`
}

// DocCount returns the total document count across all indices
func (s *StatsSnapshot) DocCount() int64 {
	var total int64
	for _, idx := range s.Indices {
		total += idx.DocCount
	}
	return total
}

// StorageBytes returns the total store size across all indices
func (s *StatsSnapshot) StorageBytes() int64 {
	var total int64
	for _, idx := range s.Indices {
		total += idx.StoreSizeBytes
	}
	return total
}
