package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewJob(t *testing.T) {
	job := New(TypeProcess, "/tmp/proj")
	if job.ID == "" {
		t.Error("job ID should not be empty")
	}
	if job.Type != TypeProcess {
		t.Errorf("Type = %v, want %v", job.Type, TypeProcess)
	}
	if job.Status != StatusQueued {
		t.Errorf("Status = %v, want %v", job.Status, StatusQueued)
	}
	if job.Progress != 0 {
		t.Errorf("Progress = %d, want 0", job.Progress)
	}
	if job.ProjectPath != "/tmp/proj" {
		t.Errorf("ProjectPath = %q", job.ProjectPath)
	}
}

func TestJobIsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := &Job{Status: tt.status}
			if got := job.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	job := New(TypeExport, "/tmp/proj")

	job.MarkStarted()
	if job.Status != StatusRunning || job.StartedAt == nil {
		t.Fatalf("MarkStarted: status = %v, startedAt = %v", job.Status, job.StartedAt)
	}

	job.SetProgress(150)
	if job.Progress != 100 {
		t.Errorf("SetProgress should clamp to 100, got %d", job.Progress)
	}
	job.SetProgress(-5)
	if job.Progress != 0 {
		t.Errorf("SetProgress should clamp to 0, got %d", job.Progress)
	}

	if err := job.MarkCompleted(map[string]int{"chunks": 7}); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if job.Status != StatusCompleted || job.Progress != 100 || job.CompletedAt == nil {
		t.Errorf("MarkCompleted: status = %v, progress = %d", job.Status, job.Progress)
	}
	if job.Result == "" {
		t.Error("result should be serialized")
	}
}

func TestStoreListFilters(t *testing.T) {
	store := NewStore()

	completed := New(TypeProcess, "/a")
	_ = completed.MarkCompleted(nil)
	store.Put(completed)

	queued := New(TypeExport, "/b")
	store.Put(queued)

	all := store.List(ListOptions{})
	if len(all) != 2 {
		t.Fatalf("List() returned %d jobs, want 2", len(all))
	}

	done := store.List(ListOptions{Status: []Status{StatusCompleted}})
	if len(done) != 1 || done[0].ID != completed.ID {
		t.Errorf("status filter returned %d jobs", len(done))
	}

	exports := store.List(ListOptions{Type: []Type{TypeExport}})
	if len(exports) != 1 || exports[0].ID != queued.ID {
		t.Errorf("type filter returned %d jobs", len(exports))
	}
}

func TestStoreCleanup(t *testing.T) {
	store := NewStore()

	old := New(TypeProcess, "/a")
	_ = old.MarkCompleted(nil)
	past := time.Now().UTC().Add(-48 * time.Hour)
	old.CompletedAt = &past
	store.Put(old)

	fresh := New(TypeProcess, "/b")
	_ = fresh.MarkCompleted(nil)
	store.Put(fresh)

	removed := store.Cleanup(24 * time.Hour)
	if removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if store.Get(old.ID) != nil {
		t.Error("old job should be gone")
	}
	if store.Get(fresh.ID) == nil {
		t.Error("fresh job should remain")
	}
}

func TestRunnerExecutesJob(t *testing.T) {
	store := NewStore()
	runner := NewRunner(store, testLogger(), DefaultRunnerConfig())

	doneCh := make(chan struct{})
	runner.RegisterHandler(TypeProcess, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		progress(50)
		defer close(doneCh)
		return map[string]string{"ok": "yes"}, nil
	})

	runner.Start()
	defer func() { _ = runner.Stop(time.Second) }()

	job := New(TypeProcess, "/tmp/proj")
	if err := runner.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := runner.GetJob(job.ID)
		if got != nil && got.Status == StatusCompleted {
			if got.Result == "" {
				t.Error("result should be recorded")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, status = %v", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	store := NewStore()
	runner := NewRunner(store, testLogger(), DefaultRunnerConfig())

	runner.RegisterHandler(TypeExport, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		return nil, errors.New("disk full")
	})

	runner.Start()
	defer func() { _ = runner.Stop(time.Second) }()

	job := New(TypeExport, "/tmp/proj")
	if err := runner.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := runner.GetJob(job.ID)
		if got != nil && got.IsTerminal() {
			if got.Status != StatusFailed {
				t.Errorf("Status = %v, want %v", got.Status, StatusFailed)
			}
			if got.Error != "disk full" {
				t.Errorf("Error = %q", got.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never reached a terminal state")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunnerNoHandler(t *testing.T) {
	store := NewStore()
	runner := NewRunner(store, testLogger(), DefaultRunnerConfig())
	runner.Start()
	defer func() { _ = runner.Stop(time.Second) }()

	job := New(TypeReindex, "/tmp/proj")
	if err := runner.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := runner.GetJob(job.ID)
		if got != nil && got.IsTerminal() {
			if got.Status != StatusFailed {
				t.Errorf("Status = %v, want %v", got.Status, StatusFailed)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never reached a terminal state")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
