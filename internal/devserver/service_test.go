package devserver

import (
	"errors"
	"sync"
	"testing"

	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/fentz26/reprocess/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(ev models.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

func newTestService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewService(nil, pub, nil), pub
}

func boolPtr(b bool) *bool { return &b }

func twoTaskRequest() api.CreatePlanRequest {
	return api.CreatePlanRequest{
		Name:           "nightly",
		TargetAddress:  "http://oozie:11000/oozie",
		MaxConcurrency: 1,
		Tasks: []api.TaskRequest{
			{Name: "wf", Type: models.TaskTypeWorkflow, JobID: "0001-W", FailNodesOnly: boolPtr(true)},
			{Name: "co", Type: models.TaskTypeCoordinator, JobID: "0002-C", Action: "1-3"},
		},
	}
}

func TestService_Login(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Login("admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "admin", resp.Role)
	assert.Equal(t, "bearer", resp.TokenType)

	u, err := svc.Authenticate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	_, err = svc.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate("")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	svc.Revoke(resp.AccessToken)
	_, err = svc.Authenticate(resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_CreateAndGetPlan(t *testing.T) {
	svc, pub := newTestService(t)

	plan, err := svc.CreatePlan(twoTaskRequest(), "admin")
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusDraft, plan.Status)
	assert.Equal(t, "admin", plan.CreatedBy)
	assert.False(t, plan.CreatedAt.IsZero())

	detail, err := svc.GetPlan(plan.ID)
	require.NoError(t, err)
	require.Len(t, detail.Tasks, 2)
	for _, task := range detail.Tasks {
		assert.Equal(t, models.TaskStatusPending, task.Status)
		assert.Zero(t, task.Attempt)
	}
	assert.Less(t, detail.Tasks[0].ID, detail.Tasks[1].ID)
	assert.True(t, detail.Tasks[0].FailNodesOnly)
	assert.Equal(t, "1-3", detail.Tasks[1].Action)

	assert.Equal(t, []string{EventPlanCreated}, pub.kinds())

	_, err = svc.GetPlan(99)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestService_ListPlansNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	first, err := svc.CreatePlan(twoTaskRequest(), "admin")
	require.NoError(t, err)
	second, err := svc.CreatePlan(twoTaskRequest(), "admin")
	require.NoError(t, err)

	plans := svc.ListPlans()
	require.Len(t, plans, 2)
	assert.Equal(t, second.ID, plans[0].ID)
	assert.Equal(t, first.ID, plans[1].ID)
}

func TestValidatePlan(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*api.CreatePlanRequest)
		problem string
	}{
		{"empty name", func(r *api.CreatePlanRequest) { r.Name = " " }, "name must not be empty"},
		{"zero concurrency", func(r *api.CreatePlanRequest) { r.MaxConcurrency = 0 }, "max_concurrency"},
		{"too much concurrency", func(r *api.CreatePlanRequest) { r.MaxConcurrency = 65 }, "max_concurrency"},
		{"empty job id", func(r *api.CreatePlanRequest) { r.Tasks[0].JobID = "" }, "tasks[0]: job_id"},
		{"coordinator without window", func(r *api.CreatePlanRequest) { r.Tasks[1].Action = "" }, "requires action or date"},
		{"bundle without window", func(r *api.CreatePlanRequest) {
			r.Tasks[1] = api.TaskRequest{Name: "b", Type: models.TaskTypeBundle, JobID: "3-B"}
		}, "requires coordinator_name or date"},
		{"unknown type", func(r *api.CreatePlanRequest) { r.Tasks[0].Type = "spark" }, "unknown type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := twoTaskRequest()
			tt.mutate(&req)
			err := ValidatePlan(req)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Contains(t, verr.Error(), tt.problem)
		})
	}

	assert.NoError(t, ValidatePlan(twoTaskRequest()))
	req := twoTaskRequest()
	req.Tasks[1].Action, req.Tasks[1].Date = "", "2024-01-01T00:00Z"
	assert.NoError(t, ValidatePlan(req))
}

func TestService_PlanActions(t *testing.T) {
	svc, pub := newTestService(t)
	plan, err := svc.CreatePlan(twoTaskRequest(), "admin")
	require.NoError(t, err)

	steps := []struct {
		action models.PlanAction
		want   models.PlanStatus
	}{
		{models.PlanActionStart, models.PlanStatusRunning},
		{models.PlanActionPause, models.PlanStatusPaused},
		{models.PlanActionResume, models.PlanStatusRunning},
	}
	for _, step := range steps {
		resp, err := svc.PlanAction(plan.ID, step.action)
		require.NoError(t, err)
		assert.Equal(t, step.want, resp.Status)
		assert.Equal(t, plan.ID, resp.PlanID)
	}

	resp, err := svc.PlanAction(plan.ID, models.PlanActionStop)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusStopped, resp.Status)

	detail, err := svc.GetPlan(plan.ID)
	require.NoError(t, err)
	for _, task := range detail.Tasks {
		assert.Equal(t, models.TaskStatusCanceled, task.Status, "stop cancels pending tasks")
	}

	assert.Equal(t, []string{
		EventPlanCreated, EventPlanStatus, EventPlanStatus, EventPlanStatus, EventPlanStopped,
	}, pub.kinds())

	_, err = svc.PlanAction(99, models.PlanActionStart)
	assert.ErrorIs(t, err, ErrPlanNotFound)
	_, err = svc.PlanAction(plan.ID, "explode")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestService_TaskActions(t *testing.T) {
	svc, pub := newTestService(t)
	plan, err := svc.CreatePlan(twoTaskRequest(), "admin")
	require.NoError(t, err)
	detail, err := svc.GetPlan(plan.ID)
	require.NoError(t, err)
	taskID := detail.Tasks[0].ID

	resp, err := svc.TaskAction(taskID, models.TaskActionCancel)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCanceled, resp.Status)

	// A second cancel leaves the terminal task alone and publishes nothing.
	before := len(pub.kinds())
	resp, err = svc.TaskAction(taskID, models.TaskActionCancel)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCanceled, resp.Status)
	assert.Len(t, pub.kinds(), before)

	resp, err = svc.TaskAction(taskID, models.TaskActionRetry)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, resp.Status)

	detail, err = svc.GetPlan(plan.ID)
	require.NoError(t, err)
	task := detail.Tasks[0]
	assert.Equal(t, 1, task.Attempt)
	assert.Nil(t, task.EndedAt)
	assert.Nil(t, task.ExitCode)

	assert.Equal(t, []string{EventPlanCreated, EventTaskCanceled, EventTaskRetried}, pub.kinds())

	_, err = svc.TaskAction(999, models.TaskActionRetry)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestService_ClaimHonoursPlanConcurrency(t *testing.T) {
	svc, _ := newTestService(t)
	plan, err := svc.CreatePlan(twoTaskRequest(), "admin")
	require.NoError(t, err)

	assert.Empty(t, svc.Claim(10), "draft plans are not claimed")

	_, err = svc.PlanAction(plan.ID, models.PlanActionStart)
	require.NoError(t, err)

	jobs := svc.Claim(10)
	require.Len(t, jobs, 1, "max_concurrency is 1")
	assert.Equal(t, models.TaskStatusRunning, jobs[0].Task.Status)
	assert.Equal(t, 1, jobs[0].Task.Attempt)
	assert.Empty(t, svc.Claim(10))

	svc.Complete(jobs[0], scheduler.Result{Command: "oozie job", Stdout: "ok"})
	detail, err := svc.GetPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, detail.Tasks[0].Status)
	require.NotNil(t, detail.Tasks[0].ExitCode)
	assert.Equal(t, 0, *detail.Tasks[0].ExitCode)

	jobs = svc.Claim(10)
	require.Len(t, jobs, 1)
	svc.Complete(jobs[0], scheduler.Result{Stderr: "boom", ExitCode: 2})

	svc.Sweep()
	detail, err = svc.GetPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, detail.Tasks[1].Status)
	assert.Equal(t, models.PlanStatusFailed, detail.Plan.Status)
}

func TestService_CompleteIgnoresCanceledTask(t *testing.T) {
	svc, _ := newTestService(t)
	plan, err := svc.CreatePlan(twoTaskRequest(), "admin")
	require.NoError(t, err)
	_, err = svc.PlanAction(plan.ID, models.PlanActionStart)
	require.NoError(t, err)

	jobs := svc.Claim(1)
	require.Len(t, jobs, 1)
	_, err = svc.TaskAction(jobs[0].Task.ID, models.TaskActionCancel)
	require.NoError(t, err)

	svc.Complete(jobs[0], scheduler.Result{Stdout: "late"})
	detail, err := svc.GetPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCanceled, detail.Tasks[0].Status)
	assert.Empty(t, detail.Tasks[0].Stdout)
}

func TestService_SweepCompletesEmptyPlan(t *testing.T) {
	svc, _ := newTestService(t)
	req := twoTaskRequest()
	req.Tasks = nil
	plan, err := svc.CreatePlan(req, "admin")
	require.NoError(t, err)
	_, err = svc.PlanAction(plan.ID, models.PlanActionStart)
	require.NoError(t, err)

	svc.Sweep()
	detail, err := svc.GetPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, detail.Plan.Status)
	assert.NotNil(t, detail.Tasks)
}

func TestService_JobInfo(t *testing.T) {
	svc, _ := newTestService(t)
	plan, err := svc.CreatePlan(twoTaskRequest(), "admin")
	require.NoError(t, err)

	info, err := svc.JobInfo(plan.ID, "0001-W")
	require.NoError(t, err)
	assert.Equal(t, "wf", info["appName"])
	assert.Equal(t, "PREP", info["status"])

	_, err = svc.JobInfo(99, "0001-W")
	assert.ErrorIs(t, err, ErrPlanNotFound)

	req := twoTaskRequest()
	req.TargetAddress = ""
	bare, err := svc.CreatePlan(req, "admin")
	require.NoError(t, err)
	_, err = svc.JobInfo(bare.ID, "0001-W")
	assert.ErrorIs(t, err, ErrNoTargetAddress)
}
