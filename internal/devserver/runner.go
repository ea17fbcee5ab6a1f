package devserver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fentz26/reprocess/internal/models"
	"github.com/fentz26/reprocess/internal/scheduler"
)

// OozieBin is the executable named in rendered rerun commands.
const OozieBin = "oozie"

// FailSuffix marks job ids whose simulated rerun exits non-zero, so demos
// can show failures.
const FailSuffix = "-fail"

// BuildCommand renders the orchestrator CLI invocation that reruns a task.
func BuildCommand(plan models.Plan, task models.Task) ([]string, error) {
	target := strings.TrimSpace(plan.TargetAddress)
	if target == "" {
		return nil, ErrNoTargetAddress
	}

	cmd := []string{OozieBin, "job", "-oozie", target, "-rerun", task.JobID}

	switch task.Type {
	case models.TaskTypeWorkflow:
		props := map[string]string{}
		if len(task.SkipNodes) > 0 {
			props["oozie.wf.rerun.skip.nodes"] = task.SkipNodes.String()
		} else {
			props["oozie.wf.rerun.failnodes"] = fmt.Sprintf("%t", task.FailNodesOnly)
		}
		for k, v := range task.ExtraProperties {
			props[k] = v
		}
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd = append(cmd, "-D"+k+"="+props[k])
		}
		cmd = append(cmd, "-nocleanup")

	case models.TaskTypeCoordinator:
		switch {
		case task.Action != "":
			cmd = append(cmd, "-action", task.Action)
		case task.Date != "":
			cmd = append(cmd, "-date", task.Date)
		default:
			return nil, fmt.Errorf("coordinator rerun requires action or date")
		}
		if task.Failed {
			cmd = append(cmd, "-failed")
		}
		if task.Refresh {
			cmd = append(cmd, "-refresh")
		}
		cmd = append(cmd, "-nocleanup")

	case models.TaskTypeBundle:
		switch {
		case task.CoordinatorName != "":
			cmd = append(cmd, "-coordinator", task.CoordinatorName)
		case task.Date != "":
			cmd = append(cmd, "-date", task.Date)
		default:
			return nil, fmt.Errorf("bundle rerun requires coordinator or date")
		}
		if task.Refresh {
			cmd = append(cmd, "-refresh")
		}
		cmd = append(cmd, "-nocleanup")

	default:
		return nil, fmt.Errorf("unknown task type %q", task.Type)
	}
	return cmd, nil
}

// FormatCommand joins a command line, quoting arguments that need it.
func FormatCommand(parts []string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		if p == "" || strings.ContainsAny(p, " \t\n'\"\\$`") {
			quoted[i] = "'" + strings.ReplaceAll(p, "'", `'"'"'`) + "'"
			continue
		}
		quoted[i] = p
	}
	return strings.Join(quoted, " ")
}

// SimulatedRunner pretends to run rerun commands. It waits Delay and then
// reports success, or failure for job ids ending in FailSuffix.
type SimulatedRunner struct {
	Delay time.Duration
}

// Run implements scheduler.Runner.
func (r SimulatedRunner) Run(ctx context.Context, job scheduler.Job) (scheduler.Result, error) {
	parts, err := BuildCommand(job.Plan, job.Task)
	if err != nil {
		return scheduler.Result{Stderr: err.Error(), ExitCode: 1}, nil
	}
	command := FormatCommand(parts)

	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return scheduler.Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	if strings.HasSuffix(job.Task.JobID, FailSuffix) {
		return scheduler.Result{
			Command:  command,
			Stderr:   fmt.Sprintf("Error: E0605 : E0605: Action does not exist [%s]", job.Task.JobID),
			ExitCode: 255,
		}, nil
	}
	return scheduler.Result{
		Command:  command,
		Stdout:   fmt.Sprintf("Job ID : %s\nrerun submitted (attempt %d)", job.Task.JobID, job.Task.Attempt),
		ExitCode: 0,
	}, nil
}
