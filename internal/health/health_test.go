package health

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

func TestTrackerFailureTracking(t *testing.T) {
	tr := NewTracker(3)
	tr.Register("storage")

	deps, status := tr.Snapshot()
	if status != StatusHealthy || len(deps) != 1 || deps[0].Status != StatusHealthy {
		t.Fatalf("fresh tracker = %v %+v", status, deps)
	}

	tr.RecordFailure("storage", fmt.Errorf("connection refused"))
	if _, status := tr.Snapshot(); status != StatusDegraded {
		t.Errorf("status after one failure = %v, want degraded", status)
	}

	tr.RecordFailure("storage", fmt.Errorf("timeout"))
	tr.RecordFailure("storage", fmt.Errorf("still broken"))
	deps, status = tr.Snapshot()
	if status != StatusFailed {
		t.Errorf("status at threshold = %v, want failed", status)
	}
	if deps[0].Failures != 3 || deps[0].LastError != "still broken" {
		t.Errorf("dependency = %+v", deps[0])
	}
}

func TestTrackerRecovery(t *testing.T) {
	tr := NewTracker(2)
	for i := 0; i < 5; i++ {
		tr.RecordFailure("inference", fmt.Errorf("fail %d", i))
	}
	tr.RecordSuccess("inference")

	deps, status := tr.Snapshot()
	if status != StatusHealthy {
		t.Errorf("status after success = %v, want healthy", status)
	}
	if deps[0].Failures != 0 || deps[0].LastError != "" {
		t.Errorf("dependency not reset: %+v", deps[0])
	}
}

func TestTrackerWorstStatusWins(t *testing.T) {
	tr := NewTracker(1)
	tr.RecordSuccess("database")
	tr.RecordFailure("storage", nil)
	tr.RecordSuccess("inference")

	deps, status := tr.Snapshot()
	if status != StatusFailed {
		t.Errorf("overall = %v, want failed", status)
	}
	names := []string{deps[0].Name, deps[1].Name, deps[2].Name}
	if names[0] != "database" || names[1] != "inference" || names[2] != "storage" {
		t.Errorf("dependencies not sorted: %v", names)
	}
}

func TestTrackerNilSafe(t *testing.T) {
	var tr *Tracker
	tr.RecordFailure("x", fmt.Errorf("ignored"))
	tr.RecordSuccess("x")
}

func TestReporter(t *testing.T) {
	tr := NewTracker(3)
	tr.Register("storage")
	r := NewReporter(tr, func() int { return 7 }, zap.NewNop())

	rep := r.Report(context.Background())
	if rep.Status != StatusHealthy {
		t.Errorf("Status = %v", rep.Status)
	}
	if rep.Sessions != 7 {
		t.Errorf("Sessions = %d, want 7", rep.Sessions)
	}
	if rep.Goroutines < 1 {
		t.Errorf("Goroutines = %d", rep.Goroutines)
	}
	if rep.Process.RSSBytes == 0 {
		t.Error("RSSBytes should be reported for the test process")
	}
	if len(rep.Dependencies) != 1 {
		t.Errorf("Dependencies = %+v", rep.Dependencies)
	}
}
