package models

import "time"

// WorkerStatus is the lifecycle state of a Worker registration.
type WorkerStatus string

const (
	WorkerActive   WorkerStatus = "active"
	WorkerDraining WorkerStatus = "draining"
	WorkerStopped  WorkerStatus = "stopped"
	WorkerStale    WorkerStatus = "stale"
)

// BackpressureReason is the closed set of reasons a worker may refuse new
// tasks while still holding existing leases.
type BackpressureReason string

const (
	BackpressureNone             BackpressureReason = ""
	BackpressureAtCapacity       BackpressureReason = "at_capacity"
	BackpressureMemoryPressure   BackpressureReason = "memory_pressure"
	BackpressureDownstreamOutage BackpressureReason = "downstream_unavailable"
)

// Worker is a registration record for one worker process.
type Worker struct {
	ID                 string
	Hostname           string
	WorkerGroup        string
	ActivityTypes      []TaskType
	MaxConcurrency     int
	CurrentLoad        int
	AcceptingTasks     bool
	BackpressureReason BackpressureReason
	Status             WorkerStatus
	LastHeartbeatAt    time.Time
}

// IsStale reports whether w's heartbeat is older than threshold, as of now.
func (w Worker) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(w.LastHeartbeatAt) > threshold
}

// RegisterWorkerRequest is the input to register.
type RegisterWorkerRequest struct {
	ActivityTypes  []TaskType
	MaxConcurrency int
	Hostname       string
	WorkerGroup    string
}

// HeartbeatRequest is the input to heartbeat.
type HeartbeatRequest struct {
	WorkerID           string
	CurrentLoad        int
	AcceptingTasks     bool
	BackpressureReason BackpressureReason
}

// FleetHealth is the dispatcher's aggregated view, surfaced by the
// operator health endpoint.
type FleetHealth struct {
	TotalCapacity       int
	TotalLoad           int
	WorkersAccepting    int
	WorkersTotal        int
	OpenCircuitBreakers []string
	QueueDepthByType    map[TaskType]int
	PendingTasks        int
	ClaimedTasks        int
	DeadLetterSize      int
}
