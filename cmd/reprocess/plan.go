package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fentz26/reprocess/internal/composer"
	"github.com/fentz26/reprocess/internal/dashboard"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage plans",
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans, newest first",
	RunE:  runPlanList,
}

var planShowCmd = &cobra.Command{
	Use:   "show [plan-id]",
	Short: "Show a plan, its tasks and recent output",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanShow,
}

var planCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a plan from a YAML definition",
	RunE:  runPlanCreate,
}

var planWatchCmd = &cobra.Command{
	Use:   "watch [plan-id]",
	Short: "Follow a plan's progress through live notifications",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanWatch,
}

var planFile string

func init() {
	planCmd.AddCommand(planListCmd, planShowCmd, planCreateCmd, planWatchCmd)
	for _, action := range models.PlanActions {
		planCmd.AddCommand(newPlanActionCmd(action))
	}

	planCreateCmd.Flags().StringVarP(&planFile, "file", "f", "", "Plan definition file (required)")
	planCreateCmd.MarkFlagRequired("file")
}

func newPlanActionCmd(action models.PlanAction) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " [plan-id]",
		Short: fmt.Sprintf("Request %s on a plan", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlanAction(cmd, args[0], action)
		},
	}
}

func runPlanList(cmd *cobra.Command, args []string) error {
	e, err := newClientEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireSession(); err != nil {
		return err
	}

	scope := dashboard.NewListScope(e.client, e.scopeOptions(false))
	defer scope.Close()
	if err := scope.Reload(cmd.Context()); err != nil {
		return err
	}

	plans := scope.Plans()
	if len(plans) == 0 {
		fmt.Println("No plans found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCONCURRENCY\tCREATED BY\tCREATED")
	for _, p := range plans {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, truncate(p.Name, 40), p.Status, p.MaxConcurrency, p.CreatedBy, formatTime(p.CreatedAt))
	}
	return w.Flush()
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
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

	scope, _ := e.planScope(id, false)
	defer scope.Close()
	if err := scope.Reload(cmd.Context()); err != nil {
		return err
	}
	printDetail(scope.Detail())
	return nil
}

func runPlanCreate(cmd *cobra.Command, args []string) error {
	c := composer.New()
	if err := c.LoadFile(planFile); err != nil {
		return err
	}
	for _, problem := range c.Validate() {
		fmt.Fprintln(os.Stderr, "Warning:", problem)
	}

	e, err := newClientEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireSession(); err != nil {
		return err
	}

	tasks := c.Len()
	plan, err := c.Submit(cmd.Context(), e.client)
	if err != nil {
		return err
	}
	fmt.Printf("Created plan %d (%s) with %d tasks\n", plan.ID, plan.Name, tasks)
	return nil
}

func runPlanAction(cmd *cobra.Command, arg string, action models.PlanAction) error {
	id, err := parseID(arg)
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

	scope, d := e.planScope(id, false)
	defer scope.Close()
	if err := d.DoPlanAction(cmd.Context(), action); err != nil {
		return err
	}
	if err := scope.Err(); err != nil {
		return fmt.Errorf("%s confirmed, but re-fetch failed: %w", action, err)
	}
	fmt.Printf("Plan %d: %s\n", id, scope.Detail().Plan.Status)
	return nil
}

func runPlanWatch(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newClientEnv(ctx, false)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireSession(); err != nil {
		return err
	}

	scope, _ := e.planScope(id, true)
	defer scope.Close()
	return watchPlan(ctx, scope)
}

// watchPlan prints a progress line after every fetch and re-fetches whenever
// a notification concerns the plan. It returns when ctx ends or the live
// channel closes.
func watchPlan(ctx context.Context, scope *dashboard.DetailScope) error {
	scope.Apply(scope.Open(ctx)())
	printProgress(scope)

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-scope.Messages():
			if !ok {
				return fmt.Errorf("live channel %s", scope.LiveState())
			}
			if scope.HandleMessage(m) {
				scope.Reload(ctx)
				printProgress(scope)
			} else {
				fmt.Printf("live: %s\n", scope.LiveState())
			}
		}
	}
}

func printProgress(scope *dashboard.DetailScope) {
	if err := scope.Err(); err != nil {
		fmt.Println("Error:", err)
		return
	}
	d := scope.Detail()
	if d == nil {
		return
	}
	fmt.Printf("%s  plan %d %s  %d%% (%d/%d)\n",
		time.Now().Format("15:04:05"), d.Plan.ID, d.Plan.Status,
		dashboard.Progress(d.Tasks), dashboard.Terminal(d.Tasks), len(d.Tasks))
}

func printDetail(d *models.PlanDetail) {
	p := d.Plan
	fmt.Printf("ID:          %d\n", p.ID)
	fmt.Printf("Name:        %s\n", p.Name)
	if p.Description != "" {
		fmt.Printf("Description: %s\n", p.Description)
	}
	fmt.Printf("Status:      %s\n", p.Status)
	fmt.Printf("Target:      %s\n", p.TargetAddress)
	fmt.Printf("Concurrency: %d\n", p.MaxConcurrency)
	fmt.Printf("Created By:  %s\n", p.CreatedBy)
	fmt.Printf("Created:     %s\n", formatTime(p.CreatedAt))
	fmt.Printf("Progress:    %d%% (%d/%d)\n", dashboard.Progress(d.Tasks), dashboard.Terminal(d.Tasks), len(d.Tasks))

	if len(d.Tasks) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tJOB ID\tSTATUS\tATTEMPT\tEXIT")
		for _, t := range d.Tasks {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
				t.ID, truncate(t.Name, 30), t.Type, t.JobID, t.Status, t.Attempt, dashboard.ExitCodeText(t.ExitCode))
		}
		w.Flush()
	}

	for _, entry := range dashboard.RecentLogs(d.Tasks) {
		fmt.Printf("\n=== Task %d %s (%s, attempt %d, exit %s) ===\n",
			entry.TaskID, entry.Name, entry.Status, entry.Attempt, orDash(entry.ExitCode))
		fmt.Printf("$ %s\n", entry.Command)
		if entry.Stdout != "" {
			fmt.Println(truncate(entry.Stdout, 2000))
		}
		if entry.Stderr != "" {
			fmt.Println("--- STDERR ---")
			fmt.Println(truncate(entry.Stderr, 2000))
		}
	}
}

// --- Helpers ---

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func formatTime(ts models.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
