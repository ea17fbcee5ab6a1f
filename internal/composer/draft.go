package composer

import (
	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/models"
)

// TaskSpec is the type-specific half of a task draft. Exactly one of
// WorkflowTask, CoordinatorTask or BundleTask.
type TaskSpec interface {
	TaskType() models.TaskType
	apply(req *api.TaskRequest)
}

// WorkflowTask reruns a workflow job.
type WorkflowTask struct {
	FailNodesOnly bool
	SkipNodes     models.NodeList
}

// TaskType implements TaskSpec.
func (WorkflowTask) TaskType() models.TaskType { return models.TaskTypeWorkflow }

func (w WorkflowTask) apply(req *api.TaskRequest) {
	failNodes := w.FailNodesOnly
	req.FailNodesOnly = &failNodes
	req.SkipNodes = w.SkipNodes
}

// Window selects what a coordinator or bundle rerun covers. The two
// variants share one Window, so switching between them keeps the input.
type Window struct {
	Action          string
	Date            string
	CoordinatorName string
	Refresh         bool
	ExtraProperties map[string]string
}

func (w Window) apply(req *api.TaskRequest) {
	refresh := w.Refresh
	req.Action = w.Action
	req.Date = w.Date
	req.CoordinatorName = w.CoordinatorName
	req.Refresh = &refresh
	req.ExtraProperties = copyProps(w.ExtraProperties)
}

// CoordinatorTask reruns coordinator actions selected by action range or date.
type CoordinatorTask struct {
	Window
	Failed bool
}

// TaskType implements TaskSpec.
func (CoordinatorTask) TaskType() models.TaskType { return models.TaskTypeCoordinator }

func (c CoordinatorTask) apply(req *api.TaskRequest) {
	c.Window.apply(req)
	failed := c.Failed
	req.Failed = &failed
}

// BundleTask reruns a bundle, optionally narrowed to one coordinator.
type BundleTask struct {
	Window
}

// TaskType implements TaskSpec.
func (BundleTask) TaskType() models.TaskType { return models.TaskTypeBundle }

func (b BundleTask) apply(req *api.TaskRequest) {
	b.Window.apply(req)
}

// Draft is one task being composed. It keeps the workflow fields and the
// coordinator/bundle window side by side so switching Type back and forth
// restores earlier input; only the active variant is submitted.
type Draft struct {
	Name  string
	JobID string
	Type  models.TaskType

	Workflow WorkflowTask
	Window   Window
	// Failed applies to coordinator reruns only.
	Failed bool
}

// Spec returns the active variant.
func (d Draft) Spec() TaskSpec {
	switch d.Type {
	case models.TaskTypeCoordinator:
		return CoordinatorTask{Window: d.Window, Failed: d.Failed}
	case models.TaskTypeBundle:
		return BundleTask{Window: d.Window}
	default:
		return d.Workflow
	}
}

// Build returns the wire form of the draft with only the active variant's
// fields set.
func (d Draft) Build() api.TaskRequest {
	spec := d.Spec()
	req := api.TaskRequest{
		Name:  d.Name,
		Type:  spec.TaskType(),
		JobID: d.JobID,
	}
	spec.apply(&req)
	return req
}

func seedDraft() Draft {
	return Draft{
		Name:     "wf-failed-only",
		Type:     models.TaskTypeWorkflow,
		JobID:    "0000000-000000000000000-oozie-oozi-W",
		Workflow: WorkflowTask{FailNodesOnly: true},
	}
}

func newDraft() Draft {
	return Draft{
		Name: "new-task",
		Type: models.TaskTypeWorkflow,
	}
}

func copyProps(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
