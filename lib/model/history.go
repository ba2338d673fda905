package model

import "time"

// Batch statuses as stored in the history repository.
const (
	BatchRunning   = "running"
	BatchSucceeded = "succeeded"
	BatchFailed    = "failed"
)

// Unit statuses as stored in the history repository.
const (
	UnitSucceeded = "succeeded"
	UnitFailed    = "failed"
)

// BatchRecord is one recorded conversion batch.
type BatchRecord struct {
	ID         int64
	Mode       string
	InputDir   string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Failure    string
}

// UnitRecord is one recorded conversion unit within a batch: a single
// trace and, on success, the flow file it produced.
type UnitRecord struct {
	ID          int64
	BatchID     int64
	TracePath   string
	SortKey     int
	FlowFile    string
	Status      string
	Error       string
	CompletedAt time.Time
}
