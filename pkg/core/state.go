package core

import "time"

// Store defines the run-history operations the engine needs.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(env string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetLatestRun(env string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	// Node run operations
	RecordNodeRun(nodeRun *NodeRun) error
	UpdateNodeRun(id string, status NodeRunStatus, rowsAffected int64, errMsg string, executionMS int64) error
	GetNodeRunsForRun(runID string) ([]*NodeRun, error)
	GetLatestNodeRun(uniqueID string) (*NodeRun, error)
}

// RunStatus represents the status of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents a pipeline execution session.
type Run struct {
	ID          string
	Environment string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// NodeRunStatus represents the status of an individual node execution.
type NodeRunStatus string

// Node run status constants.
const (
	NodeRunStatusPending NodeRunStatus = "pending"
	NodeRunStatusRunning NodeRunStatus = "running"
	NodeRunStatusSuccess NodeRunStatus = "success"
	NodeRunStatusWarn    NodeRunStatus = "warn"
	NodeRunStatusFailed  NodeRunStatus = "failed"
	NodeRunStatusSkipped NodeRunStatus = "skipped"
)

// NodeRun represents a single execution of a node within a run.
type NodeRun struct {
	ID           string
	RunID        string
	UniqueID     string
	Status       NodeRunStatus
	RowsAffected int64
	StartedAt    time.Time
	CompletedAt  *time.Time
	Error        string
	ExecutionMS  int64
}

// ExecutionResult is what executing one compiled node produced.
type ExecutionResult struct {
	UniqueID     string
	Status       NodeRunStatus
	RowsAffected int64
	// Failures is the row count returned by a data test.
	Failures int64
	Message  string
	Err      error
	Duration time.Duration
}

// Succeeded reports whether downstream nodes may run.
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == NodeRunStatusSuccess || r.Status == NodeRunStatusWarn
}
