package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/reprocess/internal/models"
)

// fakeQueue hands out a fixed set of pending tasks.
type fakeQueue struct {
	mu        sync.Mutex
	pending   []Job
	completed map[int64]Result
	sweeps    int
}

func newFakeQueue(n int) *fakeQueue {
	q := &fakeQueue{completed: make(map[int64]Result)}
	for i := 1; i <= n; i++ {
		q.pending = append(q.pending, Job{
			Plan: models.Plan{ID: 1, MaxConcurrency: n},
			Task: models.Task{ID: int64(i), PlanID: 1, Status: models.TaskStatusPending},
		})
	}
	return q
}

func (q *fakeQueue) Claim(limit int) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit > len(q.pending) {
		limit = len(q.pending)
	}
	jobs := q.pending[:limit]
	q.pending = q.pending[limit:]
	return jobs
}

func (q *fakeQueue) Complete(job Job, res Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed[job.Task.ID] = res
}

func (q *fakeQueue) Sweep() {
	q.mu.Lock()
	q.sweeps++
	q.mu.Unlock()
}

func (q *fakeQueue) completedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.completed)
}

// gatedRunner blocks every run until release is closed.
type gatedRunner struct {
	release chan struct{}
}

func (r *gatedRunner) Run(ctx context.Context, job Job) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-r.release:
		return Result{Command: "oozie job -rerun " + job.Task.JobID, Stdout: "ok"}, nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for %s", what)
}

func TestScheduler_RespectsGlobalMax(t *testing.T) {
	q := newFakeQueue(6)
	r := &gatedRunner{release: make(chan struct{})}
	sch := New(q, r, &Config{GlobalMax: 4, Interval: 10 * time.Millisecond}, nil)

	sch.Start()
	defer sch.Stop()

	waitFor(t, "4 active workers", func() bool { return sch.GetStats().ActiveWorkers == 4 })

	// Give the loop a few more ticks to prove it does not overshoot.
	time.Sleep(50 * time.Millisecond)
	if got := sch.GetStats().ActiveWorkers; got != 4 {
		t.Fatalf("Expected 4 active workers, got %d", got)
	}

	close(r.release)
	waitFor(t, "all tasks completed", func() bool { return q.completedCount() == 6 })

	stats := sch.GetStats()
	if stats.Completed != 6 {
		t.Errorf("Expected 6 completed, got %d", stats.Completed)
	}
	if stats.GlobalMax != 4 {
		t.Errorf("Expected global max 4, got %d", stats.GlobalMax)
	}
}

func TestScheduler_StopInterruptsWorkers(t *testing.T) {
	q := newFakeQueue(2)
	r := &gatedRunner{release: make(chan struct{})}
	sch := New(q, r, &Config{GlobalMax: 2, Interval: 10 * time.Millisecond}, nil)

	sch.Start()
	waitFor(t, "2 active workers", func() bool { return sch.GetStats().ActiveWorkers == 2 })
	sch.Stop()

	if got := q.completedCount(); got != 0 {
		t.Errorf("Expected interrupted workers to record nothing, got %d results", got)
	}
	if got := sch.GetStats().ActiveWorkers; got != 0 {
		t.Errorf("Expected 0 active workers after stop, got %d", got)
	}
}

func TestScheduler_SweepsEveryTick(t *testing.T) {
	q := newFakeQueue(0)
	sch := New(q, &gatedRunner{release: make(chan struct{})}, &Config{GlobalMax: 1, Interval: 5 * time.Millisecond}, nil)

	sch.Start()
	defer sch.Stop()

	waitFor(t, "sweeps", func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.sweeps >= 3
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.GlobalMax <= 0 {
		t.Errorf("Expected positive global max, got %d", cfg.GlobalMax)
	}
	if (&Config{}).interval() != time.Second {
		t.Error("Expected zero interval to fall back to one second")
	}
}
