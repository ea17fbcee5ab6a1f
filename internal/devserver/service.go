// Package devserver is an in-memory backend that honours the REST and live
// notification contract of the reprocessing manager. It exists for local
// demos and end-to-end tests; tasks are simulated rather than executed.
package devserver

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/fentz26/reprocess/internal/scheduler"
	"github.com/google/uuid"
)

// Concurrency bounds accepted on plan creation.
const (
	MinConcurrency = 1
	MaxConcurrency = 64
)

// Event names published on every state change.
const (
	EventPlanCreated   = "plan_created"
	EventPlanStatus    = "plan_status"
	EventPlanStopped   = "plan_stopped"
	EventPlanCompleted = "plan_completed"
	EventTaskStarted   = "task_started"
	EventTaskFinished  = "task_finished"
	EventTaskCanceled  = "task_canceled"
	EventTaskRetried   = "task_retried"
)

// Publisher receives every event the service emits.
type Publisher interface {
	Publish(ev models.Event)
}

// User is a dev server account.
type User struct {
	Username string
	Password string
	Role     models.Role
}

// DefaultUsers are the accounts a fresh service accepts.
var DefaultUsers = []User{
	{Username: "admin", Password: "admin123", Role: models.RoleAdmin},
	{Username: "viewer", Password: "viewer123", Role: models.RoleViewer},
}

// Service holds plans, tasks and sessions in memory. All methods are safe
// for concurrent use.
type Service struct {
	mu         sync.Mutex
	users      map[string]User
	tokens     map[string]User
	plans      map[int64]*models.Plan
	tasks      map[int64]*models.Task
	nextPlanID int64
	nextTaskID int64

	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a service with the given accounts. A nil users slice
// means DefaultUsers.
func NewService(users []User, publisher Publisher, logger *slog.Logger) *Service {
	if users == nil {
		users = DefaultUsers
	}
	s := &Service{
		users:      make(map[string]User, len(users)),
		tokens:     make(map[string]User),
		plans:      make(map[int64]*models.Plan),
		tasks:      make(map[int64]*models.Task),
		nextPlanID: 1,
		nextTaskID: 1,
		publisher:  publisher,
		logger:     logging.OrDiscard(logger),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

// --- Auth ---

// Login checks credentials and issues a bearer token.
func (s *Service) Login(username, password string) (*api.LoginResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok || u.Password != password {
		return nil, ErrInvalidCredentials
	}
	token := uuid.NewString()
	s.tokens[token] = u
	s.logger.Info("user logged in", "username", username, "role", u.Role)
	return &api.LoginResponse{AccessToken: token, TokenType: "bearer", Role: string(u.Role)}, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(token string) (User, error) {
	if token == "" {
		return User{}, ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.tokens[token]
	if !ok {
		return User{}, ErrInvalidToken
	}
	return u, nil
}

// Revoke invalidates a token. Subsequent calls with it get 401.
func (s *Service) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// --- Plans ---

// ListPlans returns all plans, newest first.
func (s *Service) ListPlans() []models.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans := make([]models.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, *p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID > plans[j].ID })
	return plans
}

// GetPlan returns a plan with its tasks in creation order.
func (s *Service) GetPlan(id int64) (*models.PlanDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return &models.PlanDetail{Plan: *p, Tasks: s.planTasksLocked(id)}, nil
}

// CreatePlan validates and stores a new DRAFT plan with PENDING tasks.
func (s *Service) CreatePlan(req api.CreatePlanRequest, createdBy string) (*models.Plan, error) {
	if err := ValidatePlan(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	now := models.Timestamp{Time: s.now()}
	p := &models.Plan{
		ID:                   s.nextPlanID,
		Name:                 strings.TrimSpace(req.Name),
		Description:          req.Description,
		Status:               models.PlanStatusDraft,
		TargetAddress:        strings.TrimSpace(req.TargetAddress),
		UseAlternateProtocol: req.UseAlternateProtocol,
		MaxConcurrency:       req.MaxConcurrency,
		CreatedBy:            createdBy,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.nextPlanID++
	s.plans[p.ID] = p

	for _, tr := range req.Tasks {
		t := taskFromRequest(tr)
		t.ID = s.nextTaskID
		t.PlanID = p.ID
		s.nextTaskID++
		s.tasks[t.ID] = t
	}
	created := *p
	s.mu.Unlock()

	s.logger.Info("plan created", "plan_id", created.ID, "tasks", len(req.Tasks), "created_by", createdBy)
	s.publish(models.Event{PlanID: created.ID, Kind: EventPlanCreated})
	return &created, nil
}

// PlanAction applies start, pause, resume or stop to a plan.
func (s *Service) PlanAction(id int64, action models.PlanAction) (*api.PlanActionResponse, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	s.mu.Lock()
	p, ok := s.plans[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrPlanNotFound
	}

	kind := EventPlanStatus
	switch action {
	case models.PlanActionStart, models.PlanActionResume:
		p.Status = models.PlanStatusRunning
	case models.PlanActionPause:
		p.Status = models.PlanStatusPaused
	case models.PlanActionStop:
		p.Status = models.PlanStatusStopped
		kind = EventPlanStopped
		for _, t := range s.tasks {
			if t.PlanID == id && t.Status == models.TaskStatusPending {
				t.Status = models.TaskStatusCanceled
			}
		}
	}
	p.UpdatedAt = models.Timestamp{Time: s.now()}
	status := p.Status
	s.mu.Unlock()

	s.logger.Info("plan action", "plan_id", id, "action", action, "status", status)
	ev := models.Event{PlanID: id, Kind: kind}
	if kind == EventPlanStatus {
		ev.Status = string(status)
	}
	s.publish(ev)
	return &api.PlanActionResponse{PlanID: id, Status: status}, nil
}

// --- Tasks ---

// TaskAction applies cancel or retry to a task. Cancelling a task that
// already finished returns its status unchanged.
func (s *Service) TaskAction(id int64, action models.TaskAction) (*api.TaskActionResponse, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrTaskNotFound
	}

	var ev *models.Event
	switch action {
	case models.TaskActionCancel:
		if !t.Status.IsTerminal() {
			t.Status = models.TaskStatusCanceled
			ended := models.Timestamp{Time: s.now()}
			t.EndedAt = &ended
			ev = &models.Event{PlanID: t.PlanID, Kind: EventTaskCanceled, TaskID: id}
		}
	case models.TaskActionRetry:
		t.Status = models.TaskStatusPending
		t.Attempt++
		t.Stdout = ""
		t.Stderr = ""
		t.ExitCode = nil
		t.StartedAt = nil
		t.EndedAt = nil
		ev = &models.Event{PlanID: t.PlanID, Kind: EventTaskRetried, TaskID: id}
	}
	status := t.Status
	s.mu.Unlock()

	if ev != nil {
		s.logger.Info("task action", "task_id", id, "action", action, "status", status)
		s.publish(*ev)
	}
	return &api.TaskActionResponse{Status: status}, nil
}

// JobInfo returns a synthetic orchestrator job record for jobID, resolved
// against the plan's target address.
func (s *Service) JobInfo(planID int64, jobID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[planID]
	if !ok {
		return nil, ErrPlanNotFound
	}
	if p.TargetAddress == "" {
		return nil, ErrNoTargetAddress
	}

	info := map[string]any{
		"id":       jobID,
		"oozieUrl": p.TargetAddress,
		"status":   "SUCCEEDED",
		"appName":  "",
		"actions":  []any{},
	}
	for _, t := range s.planTasksLocked(planID) {
		if t.JobID != jobID {
			continue
		}
		info["appName"] = t.Name
		info["status"] = jobStatus(t.Status)
		info["run"] = t.Attempt
		break
	}
	return info, nil
}

// jobStatus maps a task status onto the orchestrator's vocabulary.
func jobStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusPending:
		return "PREP"
	case models.TaskStatusRunning:
		return "RUNNING"
	case models.TaskStatusFailed:
		return "FAILED"
	case models.TaskStatusCanceled, models.TaskStatusSkipped:
		return "KILLED"
	default:
		return "SUCCEEDED"
	}
}

// --- scheduler.Queue ---

// Claim moves up to limit PENDING tasks of RUNNING plans to RUNNING, oldest
// plan first, never exceeding a plan's max concurrency.
func (s *Service) Claim(limit int) []scheduler.Job {
	if limit <= 0 {
		return nil
	}

	s.mu.Lock()
	var (
		jobs   []scheduler.Job
		events []models.Event
	)
	for _, p := range s.sortedPlansLocked() {
		if p.Status != models.PlanStatusRunning {
			continue
		}
		tasks := s.planTasksLocked(p.ID)
		running := 0
		for _, t := range tasks {
			if t.Status == models.TaskStatusRunning {
				running++
			}
		}
		for _, t := range tasks {
			if len(jobs) >= limit || running >= max(p.MaxConcurrency, 1) {
				break
			}
			if t.Status != models.TaskStatusPending {
				continue
			}
			live := s.tasks[t.ID]
			started := models.Timestamp{Time: s.now()}
			live.Status = models.TaskStatusRunning
			live.StartedAt = &started
			live.Attempt++
			running++
			jobs = append(jobs, scheduler.Job{Plan: *p, Task: *live})
			events = append(events, models.Event{PlanID: p.ID, Kind: EventTaskStarted, TaskID: t.ID})
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.publish(ev)
	}
	return jobs
}

// Complete records a run's outcome unless the task was cancelled or retried
// while it ran.
func (s *Service) Complete(job scheduler.Job, res scheduler.Result) {
	s.mu.Lock()
	t, ok := s.tasks[job.Task.ID]
	if !ok || t.Status != models.TaskStatusRunning || t.Attempt != job.Task.Attempt {
		s.mu.Unlock()
		return
	}
	exitCode := res.ExitCode
	ended := models.Timestamp{Time: s.now()}
	t.Command = res.Command
	t.Stdout = res.Stdout
	t.Stderr = res.Stderr
	t.ExitCode = &exitCode
	t.EndedAt = &ended
	t.Status = models.TaskStatusSuccess
	if exitCode != 0 {
		t.Status = models.TaskStatusFailed
	}
	ev := models.Event{PlanID: t.PlanID, Kind: EventTaskFinished, TaskID: t.ID, Status: string(t.Status)}
	s.mu.Unlock()

	s.publish(ev)
}

// Sweep closes out RUNNING plans whose tasks have all reached a terminal
// status: FAILED if any task failed, COMPLETED otherwise.
func (s *Service) Sweep() {
	s.mu.Lock()
	var events []models.Event
	for _, p := range s.sortedPlansLocked() {
		if p.Status != models.PlanStatusRunning {
			continue
		}
		done, failed := true, false
		for _, t := range s.planTasksLocked(p.ID) {
			if !t.Status.IsTerminal() {
				done = false
				break
			}
			if t.Status == models.TaskStatusFailed {
				failed = true
			}
		}
		if !done {
			continue
		}
		p.Status = models.PlanStatusCompleted
		if failed {
			p.Status = models.PlanStatusFailed
		}
		p.UpdatedAt = models.Timestamp{Time: s.now()}
		events = append(events, models.Event{PlanID: p.ID, Kind: EventPlanCompleted, Status: string(p.Status)})
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.publish(ev)
	}
}

// --- helpers ---

func (s *Service) publish(ev models.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}

// planTasksLocked returns copies of a plan's tasks by ascending id. The
// caller must hold s.mu.
func (s *Service) planTasksLocked(planID int64) []models.Task {
	tasks := []models.Task{}
	for _, t := range s.tasks {
		if t.PlanID == planID {
			tasks = append(tasks, *t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// sortedPlansLocked returns the live plan records by ascending id. The
// caller must hold s.mu.
func (s *Service) sortedPlansLocked() []*models.Plan {
	plans := make([]*models.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans
}

func taskFromRequest(tr api.TaskRequest) *models.Task {
	t := &models.Task{
		Name:            strings.TrimSpace(tr.Name),
		Type:            tr.Type,
		JobID:           strings.TrimSpace(tr.JobID),
		Status:          models.TaskStatusPending,
		SkipNodes:       tr.SkipNodes,
		Action:          tr.Action,
		Date:            tr.Date,
		CoordinatorName: tr.CoordinatorName,
		ExtraProperties: tr.ExtraProperties,
	}
	if tr.FailNodesOnly != nil {
		t.FailNodesOnly = *tr.FailNodesOnly
	}
	if tr.Refresh != nil {
		t.Refresh = *tr.Refresh
	}
	if tr.Failed != nil {
		t.Failed = *tr.Failed
	}
	return t
}

// ValidatePlan applies the server-side creation rules.
func ValidatePlan(req api.CreatePlanRequest) error {
	var problems []string
	if strings.TrimSpace(req.Name) == "" {
		problems = append(problems, "name must not be empty")
	}
	if req.MaxConcurrency < MinConcurrency || req.MaxConcurrency > MaxConcurrency {
		problems = append(problems, fmt.Sprintf("max_concurrency must be between %d and %d", MinConcurrency, MaxConcurrency))
	}
	for i, t := range req.Tasks {
		prefix := fmt.Sprintf("tasks[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			problems = append(problems, prefix+": name must not be empty")
		}
		if strings.TrimSpace(t.JobID) == "" {
			problems = append(problems, prefix+": job_id must not be empty")
		}
		switch t.Type {
		case models.TaskTypeWorkflow:
		case models.TaskTypeCoordinator:
			if t.Action == "" && t.Date == "" {
				problems = append(problems, prefix+": coordinator rerun requires action or date")
			}
		case models.TaskTypeBundle:
			if t.CoordinatorName == "" && t.Date == "" {
				problems = append(problems, prefix+": bundle rerun requires coordinator_name or date")
			}
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown type %q", prefix, t.Type))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// SeedDemo creates a sample plan with one task of each type.
func (s *Service) SeedDemo() *models.Plan {
	yes := true
	plan, err := s.CreatePlan(api.CreatePlanRequest{
		Name:           "Sample Plan",
		Description:    "seeded by the dev server",
		TargetAddress:  "http://localhost:11000/oozie",
		MaxConcurrency: 2,
		Tasks: []api.TaskRequest{
			{Name: "wf-failed-only", Type: models.TaskTypeWorkflow, JobID: "0000000-000000000000000-oozie-oozi-W", FailNodesOnly: &yes},
			{Name: "coord-day", Type: models.TaskTypeCoordinator, JobID: "0000001-000000000000000-oozie-oozi-C", Action: "1-3", Refresh: &yes},
			{Name: "bundle-fail", Type: models.TaskTypeBundle, JobID: "0000002-000000000000000-oozie-oozi-B" + FailSuffix, Date: "2024-01-01T00:00Z"},
		},
	}, "admin")
	if err != nil {
		s.logger.Error("seed demo plan", "error", err)
		return nil
	}
	return plan
}
