package devserver

import (
	"context"
	"testing"

	"github.com/fentz26/reprocess/internal/models"
	"github.com/fentz26/reprocess/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCommand(t *testing.T) {
	plan := models.Plan{TargetAddress: "http://oozie:11000/oozie"}
	base := "oozie job -oozie http://oozie:11000/oozie -rerun J "

	tests := []struct {
		name string
		task models.Task
		want string
	}{
		{
			name: "workflow failed nodes",
			task: models.Task{Type: models.TaskTypeWorkflow, JobID: "J", FailNodesOnly: true},
			want: base + "-Doozie.wf.rerun.failnodes=true -nocleanup",
		},
		{
			name: "workflow skip nodes win",
			task: models.Task{Type: models.TaskTypeWorkflow, JobID: "J", FailNodesOnly: true, SkipNodes: models.NodeList{"a", "b"}},
			want: base + "-Doozie.wf.rerun.skip.nodes=a,b -nocleanup",
		},
		{
			name: "coordinator action",
			task: models.Task{Type: models.TaskTypeCoordinator, JobID: "J", Action: "1-3", Date: "ignored", Failed: true, Refresh: true},
			want: base + "-action 1-3 -failed -refresh -nocleanup",
		},
		{
			name: "coordinator date",
			task: models.Task{Type: models.TaskTypeCoordinator, JobID: "J", Date: "2024-01-01T00:00Z"},
			want: base + "-date 2024-01-01T00:00Z -nocleanup",
		},
		{
			name: "bundle coordinator",
			task: models.Task{Type: models.TaskTypeBundle, JobID: "J", CoordinatorName: "daily", Refresh: true},
			want: base + "-coordinator daily -refresh -nocleanup",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := BuildCommand(plan, tt.task)
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatCommand(parts))
		})
	}

	_, err := BuildCommand(models.Plan{}, models.Task{Type: models.TaskTypeWorkflow})
	assert.ErrorIs(t, err, ErrNoTargetAddress)
	_, err = BuildCommand(plan, models.Task{Type: models.TaskTypeBundle, JobID: "J"})
	assert.Error(t, err)
}

func TestFormatCommand_Quotes(t *testing.T) {
	assert.Equal(t, `oozie '-Dk=a b' ''`, FormatCommand([]string{"oozie", "-Dk=a b", ""}))
}

func TestSimulatedRunner(t *testing.T) {
	plan := models.Plan{TargetAddress: "http://oozie:11000/oozie"}

	res, err := SimulatedRunner{}.Run(context.Background(), scheduler.Job{
		Plan: plan,
		Task: models.Task{Type: models.TaskTypeWorkflow, JobID: "0001-W", Attempt: 1},
	})
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)
	assert.Contains(t, res.Stdout, "0001-W")
	assert.Contains(t, res.Command, "-rerun 0001-W")

	res, err = SimulatedRunner{}.Run(context.Background(), scheduler.Job{
		Plan: plan,
		Task: models.Task{Type: models.TaskTypeWorkflow, JobID: "0001-W" + FailSuffix},
	})
	require.NoError(t, err)
	assert.NotZero(t, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = SimulatedRunner{Delay: 1e9}.Run(ctx, scheduler.Job{
		Plan: plan,
		Task: models.Task{Type: models.TaskTypeWorkflow, JobID: "0001-W"},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
