package api

import "github.com/fentz26/reprocess/internal/models"

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
}

// TaskRequest is one task in a plan creation request. Only the fields of the
// task's own type are set.
type TaskRequest struct {
	Name  string          `json:"name"`
	Type  models.TaskType `json:"type"`
	JobID string          `json:"job_id"`

	FailNodesOnly *bool           `json:"fail_nodes_only,omitempty"`
	SkipNodes     models.NodeList `json:"skip_nodes,omitempty"`

	Action          string            `json:"action,omitempty"`
	Date            string            `json:"date,omitempty"`
	CoordinatorName string            `json:"coordinator_name,omitempty"`
	Refresh         *bool             `json:"refresh,omitempty"`
	Failed          *bool             `json:"failed,omitempty"`
	ExtraProperties map[string]string `json:"extra_properties,omitempty"`
}

// CreatePlanRequest is the body of POST /api/plans.
type CreatePlanRequest struct {
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	TargetAddress        string        `json:"target_address"`
	MaxConcurrency       int           `json:"max_concurrency"`
	UseAlternateProtocol bool          `json:"use_alternate_protocol"`
	Tasks                []TaskRequest `json:"tasks"`
}

// PlanActionResponse is returned by the plan action endpoints.
type PlanActionResponse struct {
	PlanID int64             `json:"plan_id"`
	Status models.PlanStatus `json:"status"`
}

// TaskActionResponse is returned by the task action endpoints.
type TaskActionResponse struct {
	TaskID int64             `json:"task_id,omitempty"`
	Status models.TaskStatus `json:"status"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	OK bool `json:"ok"`
}
