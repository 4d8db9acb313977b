package stores

import (
	"context"
	"time"

	"github.com/pipewright/pipewright/pkg/engine"
)

// RunRecorder adapts the SQLite store to the orchestrator's Recorder
// interface. Every state change becomes an extension_states row; events land
// in the events table.
type RunRecorder struct {
	store *SQLiteStore
}

// NewRunRecorder creates a recorder backed by the given store.
func NewRunRecorder(store *SQLiteStore) *RunRecorder {
	return &RunRecorder{store: store}
}

// RecordStateChange persists one extension state transition.
func (r *RunRecorder) RecordStateChange(runID, extension string, state engine.ExecutionState) error {
	return r.store.RecordExtensionState(context.Background(), &ExtensionState{
		RunID:     runID,
		Extension: extension,
		State:     string(state),
		Timestamp: time.Now(),
	})
}

// RecordEvent persists one run event.
func (r *RunRecorder) RecordEvent(runID, extension, level, message string) error {
	var ext *string
	if extension != "" {
		ext = &extension
	}
	return r.store.AppendEvent(context.Background(), &Event{
		RunID:     runID,
		Extension: ext,
		Level:     EventLevel(level),
		Message:   message,
		Timestamp: time.Now(),
	})
}
