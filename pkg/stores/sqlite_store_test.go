package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pipewright/pipewright/pkg/engine"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(id string, started time.Time) *Run {
	return &Run{
		ID:        id,
		Pipeline:  "deploy",
		Stack:     "dev",
		Status:    RunStatusRunning,
		StartedAt: started,
		CreatedAt: started,
		UpdatedAt: started,
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatalf("expected an error for an empty path")
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	run := testRun("run-1", time.Now())
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Pipeline != "deploy" || got.Status != RunStatusRunning {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Errorf("a running run has no completion time")
	}

	errMsg := "extension failed"
	outputs := `{"shell_build_output":"ok"}`
	if err := store.CompleteRun(ctx, "run-1", RunStatusFailed, &errMsg, &outputs); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunStatusFailed {
		t.Errorf("status = %s, want %s", got.Status, RunStatusFailed)
	}
	if got.CompletedAt == nil {
		t.Errorf("completed run must carry a completion time")
	}
	if got.Error == nil || *got.Error != errMsg {
		t.Errorf("error = %v, want %q", got.Error, errMsg)
	}
	if got.Outputs == nil || *got.Outputs != outputs {
		t.Errorf("outputs = %v, want %q", got.Outputs, outputs)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetRun(context.Background(), "absent"); err == nil {
		t.Fatalf("expected an error for an unknown run")
	}
	if err := store.CompleteRun(context.Background(), "absent", RunStatusCompleted, nil, nil); err == nil {
		t.Fatalf("expected an error completing an unknown run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		if err := store.CreateRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("unexpected listing: %v, %v", runs[0].ID, runs[1].ID)
	}
}

func TestExtensionStateTransitions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateRun(ctx, testRun("run-1", time.Now())); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	for _, s := range []string{"registered", "starting", "success"} {
		err := store.RecordExtensionState(ctx, &ExtensionState{
			RunID:     "run-1",
			Extension: "shell",
			State:     s,
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("RecordExtensionState failed: %v", err)
		}
	}

	states, err := store.ListExtensionStates(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListExtensionStates failed: %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(states))
	}
	if states[0].State != "registered" || states[2].State != "success" {
		t.Errorf("transitions out of order: %v", states)
	}
}

func TestEventsWithLevelFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateRun(ctx, testRun("run-1", time.Now())); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	ext := "shell"
	for i, level := range []EventLevel{EventLevelInfo, EventLevelError, EventLevelInfo} {
		err := store.AppendEvent(ctx, &Event{
			RunID:     "run-1",
			Extension: &ext,
			Level:     level,
			Message:   "event",
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	all, err := store.ListEvents(ctx, "run-1", nil, 10, 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 events, got %d", len(all))
	}

	level := EventLevelError
	errorsOnly, err := store.ListEvents(ctx, "run-1", &level, 10, 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(errorsOnly) != 1 || errorsOnly[0].Level != EventLevelError {
		t.Errorf("unexpected filtered events: %v", errorsOnly)
	}
}

func TestDeleteRunCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateRun(ctx, testRun("run-1", time.Now())); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	err := store.RecordExtensionState(ctx, &ExtensionState{
		RunID: "run-1", Extension: "shell", State: "registered", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("RecordExtensionState failed: %v", err)
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	states, err := store.ListExtensionStates(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListExtensionStates failed: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("expected the transitions to cascade away, got %v", states)
	}

	if err := store.DeleteRun(ctx, "run-1"); err == nil {
		t.Errorf("expected an error deleting an unknown run")
	}
}

func TestRunRecorder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateRun(ctx, testRun("run-1", time.Now())); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	recorder := NewRunRecorder(store)
	if err := recorder.RecordStateChange("run-1", "shell", engine.StateStarting); err != nil {
		t.Fatalf("RecordStateChange failed: %v", err)
	}
	if err := recorder.RecordEvent("run-1", "shell", "warning", "slow command"); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}

	states, err := store.ListExtensionStates(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListExtensionStates failed: %v", err)
	}
	if len(states) != 1 || states[0].State != string(engine.StateStarting) {
		t.Errorf("unexpected transitions: %v", states)
	}

	events, err := store.ListEvents(ctx, "run-1", nil, 10, 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Level != EventLevelWarning || *events[0].Extension != "shell" {
		t.Errorf("unexpected events: %v", events)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}
