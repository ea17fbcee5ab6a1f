// Package models defines the core domain types for the reprocessing manager.
package models

import "time"

// PlanStatus is the server-defined lifecycle label of a plan. The client
// treats it as opaque apart from display and action gating.
type PlanStatus string

const (
	PlanStatusDraft     PlanStatus = "DRAFT"
	PlanStatusCreated   PlanStatus = "CREATED"
	PlanStatusRunning   PlanStatus = "RUNNING"
	PlanStatusPaused    PlanStatus = "PAUSED"
	PlanStatusStopped   PlanStatus = "STOPPED"
	PlanStatusCompleted PlanStatus = "COMPLETED"
	PlanStatusFailed    PlanStatus = "FAILED"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "PENDING"
	TaskStatusRunning  TaskStatus = "RUNNING"
	TaskStatusSuccess  TaskStatus = "SUCCESS"
	TaskStatusFailed   TaskStatus = "FAILED"
	TaskStatusCanceled TaskStatus = "CANCELED"
	TaskStatusSkipped  TaskStatus = "SKIPPED"
)

// IsTerminal reports whether no further transition is expected from s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusCanceled, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// TaskType is the discriminant selecting a task's parameter set.
type TaskType string

const (
	TaskTypeWorkflow    TaskType = "workflow"
	TaskTypeCoordinator TaskType = "coordinator"
	TaskTypeBundle      TaskType = "bundle"
)

// TaskTypes lists the task types in display order.
var TaskTypes = []TaskType{TaskTypeWorkflow, TaskTypeCoordinator, TaskTypeBundle}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeWorkflow, TaskTypeCoordinator, TaskTypeBundle:
		return true
	default:
		return false
	}
}

// Plan is a named execution request against the backend.
type Plan struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	Status               PlanStatus `json:"status"`
	TargetAddress        string     `json:"target_address"`
	UseAlternateProtocol bool       `json:"use_alternate_protocol"`
	MaxConcurrency       int        `json:"max_concurrency"`
	CreatedBy            string     `json:"created_by"`
	CreatedAt            Timestamp  `json:"created_at"`
	UpdatedAt            Timestamp  `json:"updated_at"`
}

// Task is one unit of reprocessing work within a plan.
type Task struct {
	ID     int64      `json:"id"`
	PlanID int64      `json:"plan_id"`
	Name   string     `json:"name"`
	Type   TaskType   `json:"type"`
	JobID  string     `json:"job_id"`
	Status TaskStatus `json:"status"`

	// workflow
	FailNodesOnly bool     `json:"fail_nodes_only"`
	SkipNodes     NodeList `json:"skip_nodes"`

	// coordinator and bundle
	Action          string            `json:"action"`
	Date            string            `json:"date"`
	CoordinatorName string            `json:"coordinator_name"`
	Refresh         bool              `json:"refresh"`
	Failed          bool              `json:"failed"`
	ExtraProperties map[string]string `json:"extra_properties,omitempty"`

	Attempt   int        `json:"attempt"`
	Command   string     `json:"command"`
	Stdout    string     `json:"stdout"`
	Stderr    string     `json:"stderr"`
	ExitCode  *int       `json:"exit_code"`
	StartedAt *Timestamp `json:"started_at,omitempty"`
	EndedAt   *Timestamp `json:"ended_at,omitempty"`
}

// PlanDetail is a plan together with its tasks, as returned by a single fetch.
type PlanDetail struct {
	Plan  Plan   `json:"plan"`
	Tasks []Task `json:"tasks"`
}

// Event is a live invalidation signal. Only PlanID is meaningful to the
// client; the rest is informational.
type Event struct {
	PlanID int64  `json:"plan_id"`
	Kind   string `json:"event,omitempty"`
	TaskID int64  `json:"task_id,omitempty"`
	Status string `json:"status,omitempty"`
}

// Role is the privilege label carried by a session.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// ParseRole maps a persisted label to a Role, failing closed to viewer.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleViewer
}

// CanMutate reports whether r may trigger mutating actions.
func (r Role) CanMutate() bool {
	return r == RoleAdmin
}

// PlanAction is a plan state transition request.
type PlanAction string

const (
	PlanActionStart  PlanAction = "start"
	PlanActionPause  PlanAction = "pause"
	PlanActionResume PlanAction = "resume"
	PlanActionStop   PlanAction = "stop"
)

// PlanActions lists the plan actions in display order.
var PlanActions = []PlanAction{PlanActionStart, PlanActionPause, PlanActionResume, PlanActionStop}

// Valid reports whether a is a known plan action.
func (a PlanAction) Valid() bool {
	switch a {
	case PlanActionStart, PlanActionPause, PlanActionResume, PlanActionStop:
		return true
	}
	return false
}

// TaskAction is a task state transition request.
type TaskAction string

const (
	TaskActionCancel TaskAction = "cancel"
	TaskActionRetry  TaskAction = "retry"
)

// Valid reports whether a is a known task action.
func (a TaskAction) Valid() bool {
	return a == TaskActionCancel || a == TaskActionRetry
}

// Timestamp accepts both RFC 3339 and zone-less ISO 8601 timestamps, the
// latter being what the backend emits for naive UTC datetimes.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}
