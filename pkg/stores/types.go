package stores

import "time"

// RunStatus represents the lifecycle status of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one pipeline execution.
type Run struct {
	// ID is the run UUID.
	ID string `json:"id"`

	// Pipeline is the pipeline name from the definition file.
	Pipeline string `json:"pipeline"`

	// Stack is the stack the run executed against.
	Stack string `json:"stack"`

	// Status is the current run status.
	Status RunStatus `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished, nil while running.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error holds the propagated error message for failed runs.
	Error *string `json:"error,omitempty"`

	// Outputs is the aggregated run output as JSON.
	Outputs *string `json:"outputs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExtensionState is one recorded extension state transition within a run.
// Transitions are append-only; the latest row per extension is its current
// state.
type ExtensionState struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Extension string    `json:"extension"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLevel is the severity of a run event.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Event is one run log event.
type Event struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Extension *string    `json:"extension,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}
