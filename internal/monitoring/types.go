package monitoring

import "time"

// InstanceType represents the type of worker instance
type InstanceType string

const (
	InstanceTypeRelay InstanceType = "relay"
)

// InstanceStatus represents the current state of an instance
type InstanceStatus string

const (
	StatusOnline  InstanceStatus = "online"
	StatusOffline InstanceStatus = "offline"
)

// InstanceInfo contains metadata about a relay worker
type InstanceInfo struct {
	InstanceID   string       `json:"instance_id"` // hostname-type, stable across restarts
	InstanceType InstanceType `json:"instance_type"`
	Hostname     string       `json:"hostname"`
	PID          int          `json:"pid"`
	Queue        string       `json:"queue"`

	StartTime     time.Time      `json:"start_time"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
	Status        InstanceStatus `json:"status"`

	BatchesProcessed int64 `json:"batches_processed"`
	RecordsSucceeded int64 `json:"records_succeeded"`
	RecordsFailed    int64 `json:"records_failed"`

	MemoryUsage uint64 `json:"memory_usage"`
	DiskUsage   uint64 `json:"disk_usage"`
	DiskTotal   uint64 `json:"disk_total"`

	Version string `json:"version"`
}

// InstanceSummary provides aggregate statistics
type InstanceSummary struct {
	Total            int   `json:"total"`
	Online           int   `json:"online"`
	Offline          int   `json:"offline"`
	RecordsSucceeded int64 `json:"records_succeeded"`
	RecordsFailed    int64 `json:"records_failed"`
}

// InstanceListResponse is the response for listing instances
type InstanceListResponse struct {
	Instances []*InstanceInfo `json:"instances"`
	Summary   InstanceSummary `json:"summary"`
}
