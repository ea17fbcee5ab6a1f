// Package scheduler provides task dispatching with worker pool management.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/google/uuid"
)

// Job is one claimed task together with the plan it belongs to.
type Job struct {
	Plan models.Plan
	Task models.Task
}

// Result is the outcome of running a job.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Queue hands out claimable work and records its outcome. Claim must honour
// per-plan concurrency itself; the scheduler only enforces GlobalMax.
type Queue interface {
	Claim(limit int) []Job
	Complete(job Job, res Result)
	Sweep()
}

// Runner executes a single job. A non-nil error means the run was
// interrupted and no result should be recorded.
type Runner interface {
	Run(ctx context.Context, job Job) (Result, error)
}

// Stats is a point-in-time view of the worker pool.
type Stats struct {
	ActiveWorkers int `json:"active_workers"`
	GlobalMax     int `json:"global_max"`
	Completed     int `json:"completed"`
}

// Scheduler manages task dispatching and worker pools.
type Scheduler struct {
	queue  Queue
	runner Runner
	config *Config
	logger *slog.Logger

	// Worker pool state
	mu            sync.Mutex
	activeWorkers int
	completed     int

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler.
func New(q Queue, r Runner, cfg *Config, logger *slog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		queue:  q,
		runner: r,
		config: cfg,
		logger: logging.OrDiscard(logger),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the scheduler loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.schedulerLoop()
	sch.logger.Info("scheduler started", "global_max", sch.config.GlobalMax)
}

// Stop gracefully stops the scheduler and waits for running workers.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	sch.logger.Info("scheduler stopped")
}

func (sch *Scheduler) schedulerLoop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.interval())
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.pollAndDispatch()
		}
	}
}

// pollAndDispatch claims as many tasks as the pool has room for and hands
// each to its own worker.
func (sch *Scheduler) pollAndDispatch() {
	sch.mu.Lock()
	capacity := sch.config.GlobalMax - sch.activeWorkers
	sch.mu.Unlock()

	if capacity > 0 {
		for _, job := range sch.queue.Claim(capacity) {
			workerID := uuid.NewString()
			sch.logger.Debug("dispatched task",
				"plan_id", job.Plan.ID, "task_id", job.Task.ID, "worker_id", workerID)

			sch.mu.Lock()
			sch.activeWorkers++
			sch.mu.Unlock()

			sch.wg.Add(1)
			go sch.runWorker(job, workerID)
		}
	}

	sch.queue.Sweep()
}

func (sch *Scheduler) runWorker(job Job, workerID string) {
	defer sch.wg.Done()
	defer func() {
		sch.mu.Lock()
		sch.activeWorkers--
		sch.mu.Unlock()
	}()

	res, err := sch.runner.Run(sch.ctx, job)
	if err != nil {
		sch.logger.Info("worker interrupted", "task_id", job.Task.ID, "worker_id", workerID, "error", err)
		return
	}

	sch.queue.Complete(job, res)

	sch.mu.Lock()
	sch.completed++
	sch.mu.Unlock()

	sch.logger.Debug("worker completed task",
		"task_id", job.Task.ID, "worker_id", workerID, "exit_code", res.ExitCode)
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() Stats {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	return Stats{
		ActiveWorkers: sch.activeWorkers,
		GlobalMax:     sch.config.GlobalMax,
		Completed:     sch.completed,
	}
}
