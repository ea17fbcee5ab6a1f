package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fentz26/reprocess/internal/models"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Act on tasks within a plan",
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Look up orchestration jobs",
}

var jobInfoCmd = &cobra.Command{
	Use:   "info [job-id]",
	Short: "Show what the orchestration system reports for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobInfo,
}

var (
	taskPlanID int64
	jobPlanID  int64
)

func init() {
	for _, action := range []models.TaskAction{models.TaskActionRetry, models.TaskActionCancel} {
		taskCmd.AddCommand(newTaskActionCmd(action))
	}
	taskCmd.PersistentFlags().Int64Var(&taskPlanID, "plan", 0, "Plan the task belongs to (required)")
	taskCmd.MarkPersistentFlagRequired("plan")

	jobCmd.AddCommand(jobInfoCmd)
	jobInfoCmd.Flags().Int64Var(&jobPlanID, "plan", 0, "Plan whose target the job runs on (required)")
	jobInfoCmd.MarkFlagRequired("plan")
}

func newTaskActionCmd(action models.TaskAction) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " [task-id]",
		Short: fmt.Sprintf("Request %s on a task", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskAction(cmd, args[0], action)
		},
	}
}

func runTaskAction(cmd *cobra.Command, arg string, action models.TaskAction) error {
	taskID, err := parseID(arg)
	if err != nil {
		return err
	}
	e, err := newClientEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireSession(); err != nil {
		return err
	}

	scope, d := e.planScope(taskPlanID, false)
	defer scope.Close()
	if err := d.DoTaskAction(cmd.Context(), taskID, action); err != nil {
		return err
	}
	if err := scope.Err(); err != nil {
		return fmt.Errorf("%s confirmed, but re-fetch failed: %w", action, err)
	}
	for _, t := range scope.Detail().Tasks {
		if t.ID == taskID {
			fmt.Printf("Task %d: %s (attempt %d)\n", t.ID, t.Status, t.Attempt)
			return nil
		}
	}
	fmt.Printf("Task %d: %s confirmed\n", taskID, action)
	return nil
}

func runJobInfo(cmd *cobra.Command, args []string) error {
	e, err := newClientEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireSession(); err != nil {
		return err
	}

	scope, d := e.planScope(jobPlanID, false)
	defer scope.Close()
	raw, err := d.JobInfo(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(out.String())
	return nil
}
