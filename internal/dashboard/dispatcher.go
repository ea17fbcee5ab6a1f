package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/metrics"
	"github.com/fentz26/reprocess/internal/models"
)

// Mutator is the backend surface the dispatcher drives.
type Mutator interface {
	PlanAction(ctx context.Context, id int64, action models.PlanAction) (*api.PlanActionResponse, error)
	TaskAction(ctx context.Context, id int64, action models.TaskAction) (*api.TaskActionResponse, error)
	JobInfo(ctx context.Context, planID int64, jobID string) (json.RawMessage, error)
}

// RoleSource reports the current session's role.
type RoleSource interface {
	CurrentRole() models.Role
}

// ActionResult is the outcome of one mutation.
type ActionResult struct {
	ScopeID string
	Action  string
	TaskID  int64
	Err     error
}

// Dispatcher runs mutations for one detail scope. A confirmed mutation is
// always followed by a re-fetch of that scope; a failed one leaves the scope
// untouched and its error is kept for inline display.
type Dispatcher struct {
	api     Mutator
	detail  *DetailScope
	roles   RoleSource
	metrics *metrics.Metrics
	logger  *slog.Logger

	lastErr error
}

// NewDispatcher creates a dispatcher acting on detail.
func NewDispatcher(m Mutator, detail *DetailScope, roles RoleSource, opts Options) *Dispatcher {
	return &Dispatcher{
		api:     m,
		detail:  detail,
		roles:   roles,
		metrics: opts.Metrics,
		logger:  logging.OrDiscard(opts.Logger).With("component", "dispatcher"),
	}
}

// CanMutate reports whether the current role may run actions.
func (d *Dispatcher) CanMutate() bool {
	if d.roles == nil {
		return false
	}
	return CanMutate(d.roles.CurrentRole())
}

// LastError returns the error of the last finished action, or nil.
func (d *Dispatcher) LastError() error { return d.lastErr }

// StartPlanAction checks the role locally and returns the closure performing
// the mutation. The closure may run on any goroutine; pass its result to
// Finish on the owning goroutine.
func (d *Dispatcher) StartPlanAction(ctx context.Context, action models.PlanAction) (func() ActionResult, error) {
	if err := d.precheck(); err != nil {
		return nil, err
	}
	planID, scopeID, mut := d.detail.PlanID(), d.detail.ID(), d.api
	return func() ActionResult {
		_, err := mut.PlanAction(ctx, planID, action)
		return ActionResult{ScopeID: scopeID, Action: string(action), Err: err}
	}, nil
}

// StartTaskAction is StartPlanAction for a task of the scope's plan.
func (d *Dispatcher) StartTaskAction(ctx context.Context, taskID int64, action models.TaskAction) (func() ActionResult, error) {
	if err := d.precheck(); err != nil {
		return nil, err
	}
	scopeID, mut := d.detail.ID(), d.api
	return func() ActionResult {
		_, err := mut.TaskAction(ctx, taskID, action)
		return ActionResult{ScopeID: scopeID, Action: string(action), TaskID: taskID, Err: err}
	}, nil
}

// Finish records r and, when the mutation was confirmed, returns the
// re-fetch to run. It returns nil for failures and for results that belong
// to a closed or different scope.
func (d *Dispatcher) Finish(ctx context.Context, r ActionResult) func() DetailResult {
	d.metrics.RecordAction(r.Action, r.Err)
	if r.ScopeID != d.detail.ID() || d.detail.Closed() {
		return nil
	}
	if r.Err != nil {
		d.lastErr = r.Err
		d.logger.Warn("action failed", "action", r.Action, "plan_id", d.detail.PlanID(), "task_id", r.TaskID, "error", r.Err)
		return nil
	}
	d.lastErr = nil
	d.logger.Info("action confirmed", "action", r.Action, "plan_id", d.detail.PlanID(), "task_id", r.TaskID)
	return d.detail.Fetch(ctx)
}

// DoPlanAction runs a plan action and the re-fetch that follows it
// synchronously.
func (d *Dispatcher) DoPlanAction(ctx context.Context, action models.PlanAction) error {
	run, err := d.StartPlanAction(ctx, action)
	if err != nil {
		return err
	}
	return d.complete(ctx, run())
}

// DoTaskAction runs a task action and the re-fetch that follows it
// synchronously.
func (d *Dispatcher) DoTaskAction(ctx context.Context, taskID int64, action models.TaskAction) error {
	run, err := d.StartTaskAction(ctx, taskID, action)
	if err != nil {
		return err
	}
	return d.complete(ctx, run())
}

// JobInfo looks up an orchestration job for the scope's plan. It never
// touches scope state.
func (d *Dispatcher) JobInfo(ctx context.Context, jobID string) (json.RawMessage, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, ErrEmptyJobID
	}
	raw, err := d.api.JobInfo(ctx, d.detail.PlanID(), jobID)
	if err != nil {
		return nil, fmt.Errorf("job info %s: %w", jobID, err)
	}
	return raw, nil
}

func (d *Dispatcher) complete(ctx context.Context, r ActionResult) error {
	refetch := d.Finish(ctx, r)
	if r.Err != nil {
		return r.Err
	}
	if refetch != nil {
		d.detail.Apply(refetch())
	}
	return nil
}

func (d *Dispatcher) precheck() error {
	if d.detail == nil {
		return ErrNoPlan
	}
	if !d.CanMutate() {
		return ErrForbidden
	}
	return nil
}
