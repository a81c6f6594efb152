package store

import "time"

// Status is the closed set of wire-form job statuses. The normative form
// is uppercase; callers at the Gateway boundary reject lowercase input.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusProcessing        Status = "PROCESSING"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusTimeout           Status = "TIMEOUT"
	StatusCompilationError  Status = "COMPILATION_ERROR"
	StatusRuntimeError      Status = "RUNTIME_ERROR"
)

// Terminal reports whether s is a terminal status (no further transitions
// occur from it).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCompilationError, StatusRuntimeError:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the seven wire statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusTimeout, StatusCompilationError, StatusRuntimeError:
		return true
	default:
		return false
	}
}

// Job is the sole durable entity: one submission through its lifecycle.
// Mutated exclusively by the worker that claims it; never deleted by the
// core (retention is an operator concern, so no soft-delete column).
type Job struct {
	ID string `gorm:"primarykey;type:varchar(36)"`

	SourceCode string `gorm:"type:text;not null"`
	Language   string `gorm:"type:varchar(32);not null;index"`
	Stdin      string `gorm:"type:text"`

	Status   Status `gorm:"type:varchar(32);not null;index"`
	WorkerID *int   `gorm:"column:worker_id"`

	Stdout        string `gorm:"type:text"`
	Stderr        string `gorm:"type:text"`
	CompileOutput string `gorm:"type:text"`
	ExitCode      *int

	ExecutionTimeMs *int64
	MemoryUsageKB   *int64
	ErrorMessage    string `gorm:"type:text"`

	CreatedAt   time.Time `gorm:"not null;index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName pins the GORM table name independent of struct-name pluralization
// rules, so migrations (which hand-author the table name) stay in lockstep.
func (Job) TableName() string { return "jobs" }

// Result is the subtree returned alongside a terminal job record.
type Result struct {
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        *int   `json:"exit_code"`
	ExecutionTimeMs *int64 `json:"execution_time_ms"`
	MemoryUsageKB   *int64 `json:"memory_usage_kb"`
	CompileOutput   string `json:"compile_output"`
}
