// Package composer builds plan creation requests from editable task drafts.
package composer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/models"
)

// Defaults for a fresh composer.
const (
	DefaultPlanName       = "Sample Plan"
	DefaultTargetAddress  = "http://10.X.X.X:11000/oozie"
	DefaultMaxConcurrency = 2

	MinConcurrency = 1
	MaxConcurrency = 64
)

// PlanCreator submits a plan.
type PlanCreator interface {
	CreatePlan(ctx context.Context, req api.CreatePlanRequest) (*models.Plan, error)
}

// Composer holds the plan being composed. It is not safe for concurrent use.
type Composer struct {
	Name                 string
	Description          string
	TargetAddress        string
	MaxConcurrency       int
	UseAlternateProtocol bool

	drafts  []Draft
	lastErr string
}

// New returns a composer seeded with one example workflow task.
func New() *Composer {
	c := &Composer{}
	c.Reset()
	return c
}

// Reset discards all input and restores the seed state.
func (c *Composer) Reset() {
	c.Name = DefaultPlanName
	c.Description = ""
	c.TargetAddress = DefaultTargetAddress
	c.MaxConcurrency = DefaultMaxConcurrency
	c.UseAlternateProtocol = false
	c.drafts = []Draft{seedDraft()}
	c.lastErr = ""
}

// Len returns the number of task drafts.
func (c *Composer) Len() int {
	return len(c.drafts)
}

// Draft returns a copy of the draft at index.
func (c *Composer) Draft(index int) Draft {
	return c.drafts[index]
}

// Drafts returns a copy of all drafts in order.
func (c *Composer) Drafts() []Draft {
	out := make([]Draft, len(c.drafts))
	copy(out, c.drafts)
	return out
}

// AddTask appends a default workflow draft and returns its index.
func (c *Composer) AddTask() int {
	c.drafts = append(c.drafts, newDraft())
	return len(c.drafts) - 1
}

// UpdateTask replaces one field on one draft. It panics when index is out of
// range. A value that does not parse leaves the draft unchanged.
func (c *Composer) UpdateTask(index int, field Field, value string) error {
	if index < 0 || index >= len(c.drafts) {
		panic(fmt.Sprintf("composer: task index %d out of range [0,%d)", index, len(c.drafts)))
	}
	return c.drafts[index].set(field, value)
}

// ReplaceTask overwrites the draft at index wholesale. It panics when index
// is out of range.
func (c *Composer) ReplaceTask(index int, d Draft) {
	if index < 0 || index >= len(c.drafts) {
		panic(fmt.Sprintf("composer: task index %d out of range [0,%d)", index, len(c.drafts)))
	}
	c.drafts[index] = d
}

// RemoveTask deletes the draft at index. It panics when index is out of range.
func (c *Composer) RemoveTask(index int) {
	if index < 0 || index >= len(c.drafts) {
		panic(fmt.Sprintf("composer: task index %d out of range [0,%d)", index, len(c.drafts)))
	}
	c.drafts = append(c.drafts[:index], c.drafts[index+1:]...)
}

// SetPlanField sets one plan-level field from text.
func (c *Composer) SetPlanField(field Field, value string) error {
	switch field {
	case FieldPlanName:
		c.Name = value
	case FieldDescription:
		c.Description = value
	case FieldTargetAddress:
		c.TargetAddress = value
	case FieldMaxConcurrency:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w: %q is not an integer", field, ErrInvalidValue, value)
		}
		c.MaxConcurrency = n
	case FieldUseAlternateProtocol:
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		c.UseAlternateProtocol = b
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// Request assembles the creation request from the current input.
func (c *Composer) Request() api.CreatePlanRequest {
	tasks := make([]api.TaskRequest, len(c.drafts))
	for i, d := range c.drafts {
		tasks[i] = d.Build()
	}
	return api.CreatePlanRequest{
		Name:                 c.Name,
		Description:          c.Description,
		TargetAddress:        c.TargetAddress,
		MaxConcurrency:       c.MaxConcurrency,
		UseAlternateProtocol: c.UseAlternateProtocol,
		Tasks:                tasks,
	}
}

// SubmitResult is the outcome of a submission started with StartSubmit.
type SubmitResult struct {
	Plan *models.Plan
	Err  error
}

// Submit posts the plan. On success the composer is reset and the created
// plan returned. On failure the error text is kept in LastError and the
// drafts are left as they were.
func (c *Composer) Submit(ctx context.Context, creator PlanCreator) (*models.Plan, error) {
	return c.FinishSubmit(c.StartSubmit(ctx, creator)())
}

// StartSubmit snapshots the request and returns the call that posts it. The
// call touches no composer state and may run on another goroutine; its
// result goes to FinishSubmit.
func (c *Composer) StartSubmit(ctx context.Context, creator PlanCreator) func() SubmitResult {
	req := c.Request()
	return func() SubmitResult {
		plan, err := creator.CreatePlan(ctx, req)
		return SubmitResult{Plan: plan, Err: err}
	}
}

// FinishSubmit applies the outcome of a started submission.
func (c *Composer) FinishSubmit(r SubmitResult) (*models.Plan, error) {
	if r.Err != nil {
		c.lastErr = r.Err.Error()
		return nil, r.Err
	}
	c.lastErr = ""
	c.Reset()
	return r.Plan, nil
}

// LastError returns the error text of the last failed Submit, or "".
func (c *Composer) LastError() string {
	return c.lastErr
}

// Validate reports problems the backend is known to reject. It is advisory:
// Submit does not call it.
func (c *Composer) Validate() []string {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "plan name cannot be empty")
	}
	if c.MaxConcurrency < MinConcurrency || c.MaxConcurrency > MaxConcurrency {
		problems = append(problems, fmt.Sprintf("max concurrency must be between %d and %d", MinConcurrency, MaxConcurrency))
	}
	for i, d := range c.drafts {
		label := fmt.Sprintf("task %d", i+1)
		if name := strings.TrimSpace(d.Name); name != "" {
			label = fmt.Sprintf("task %d (%s)", i+1, name)
		} else {
			problems = append(problems, label+": name cannot be empty")
		}
		if strings.TrimSpace(d.JobID) == "" {
			problems = append(problems, label+": job id cannot be empty")
		}
		switch spec := d.Spec().(type) {
		case CoordinatorTask:
			if strings.TrimSpace(spec.Action) == "" && strings.TrimSpace(spec.Date) == "" {
				problems = append(problems, label+": coordinator task requires action or date")
			}
		case BundleTask:
			if strings.TrimSpace(spec.CoordinatorName) == "" && strings.TrimSpace(spec.Date) == "" {
				problems = append(problems, label+": bundle task requires coordinator or date")
			}
		}
	}
	return problems
}
