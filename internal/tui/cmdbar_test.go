package tui

import (
	"errors"
	"testing"

	"github.com/fentz26/reprocess/internal/composer"
	"github.com/fentz26/reprocess/internal/models"
)

func TestParseCommand(t *testing.T) {
	name, args := parseCommand("  Retry @12  ")
	if name != "retry" || len(args) != 1 || args[0] != "12" {
		t.Errorf("parseCommand = %q %v", name, args)
	}
	if name, args := parseCommand("   "); name != "" || args != nil {
		t.Errorf("Expected empty command, got %q %v", name, args)
	}
}

func TestSuggestions(t *testing.T) {
	s := NewSuggestions()

	s.Update("ret")
	if sel := s.Selected(); sel == nil || sel.Text != "retry" {
		t.Fatalf("Expected retry, got %+v", sel)
	}

	s.SetTasks([]string{"1", "2", "13"})
	s.Update("cancel @1")
	if len(s.filtered) != 2 {
		t.Errorf("Expected 2 task matches, got %d", len(s.filtered))
	}
	s.Next()
	if sel := s.Selected(); sel == nil || sel.Text != "@13" {
		t.Errorf("Expected @13 after Next, got %+v", sel)
	}

	s.Update("cancel ")
	if s.IsVisible() {
		t.Error("Expected no suggestions after a completed word")
	}
	s.Update("")
	if s.IsVisible() {
		t.Error("Expected no suggestions for empty input")
	}
}

func TestCmdBar_AcceptThenSubmit(t *testing.T) {
	bar := NewCmdBarModel()
	bar.Focus()
	bar.SetTasks([]string{"7"})

	for _, r := range "res" {
		bar.Update(keyRunes(string(r)))
	}
	// "resume" is the only command containing "res".
	if line, _ := bar.Update(keyEnter()); line != "" {
		t.Fatalf("Expected enter to accept the suggestion, submitted %q", line)
	}
	if got := bar.input.Value(); got != "resume " {
		t.Fatalf("Expected completed input, got %q", got)
	}
	line, _ := bar.Update(keyEnter())
	if line != "resume" {
		t.Errorf("Expected resume submitted, got %q", line)
	}
	if bar.Focused() {
		t.Error("Expected bar to blur after submit")
	}
}

func TestApplyTaskUpdates_SwitchKeepsWorkflowFields(t *testing.T) {
	c := composer.New()
	v := newTaskFormValues(c.Draft(0))
	if !v.failNodesOnly {
		t.Fatal("Expected seed draft to rerun failed nodes only")
	}

	v.typ = string(models.TaskTypeCoordinator)
	v.action = "1-3"
	v.refresh = true
	v.props = "queue=etl"
	if err := applyTaskUpdates(c, 0, v.updates()); err != nil {
		t.Fatalf("applyTaskUpdates failed: %v", err)
	}

	d := c.Draft(0)
	if d.Type != models.TaskTypeCoordinator || d.Window.Action != "1-3" || !d.Window.Refresh {
		t.Errorf("Unexpected coordinator draft %+v", d.Window)
	}
	if d.Window.ExtraProperties["queue"] != "etl" {
		t.Errorf("Expected extra properties, got %v", d.Window.ExtraProperties)
	}
	if !d.Workflow.FailNodesOnly {
		t.Error("Workflow fields lost on type switch")
	}
}

func TestApplyTaskUpdates_BadValueLeavesDraft(t *testing.T) {
	c := composer.New()
	before := c.Draft(0)

	v := newTaskFormValues(before)
	v.name = "renamed"
	v.typ = string(models.TaskTypeBundle)
	v.props = "not-a-pair"
	err := applyTaskUpdates(c, 0, v.updates())
	if !errors.Is(err, composer.ErrInvalidValue) {
		t.Fatalf("Expected ErrInvalidValue, got %v", err)
	}
	if got := c.Draft(0); got.Name != before.Name || got.Type != before.Type {
		t.Errorf("Draft changed on error: %+v", got)
	}
}

func TestTaskFormValues_BundleKeepsCoordinatorWindow(t *testing.T) {
	c := composer.New()
	c.UpdateTask(0, composer.FieldType, "coordinator")
	c.UpdateTask(0, composer.FieldDate, "2024-01-01")
	c.UpdateTask(0, composer.FieldExtraProperties, "queue=etl")

	v := newTaskFormValues(c.Draft(0))
	v.typ = string(models.TaskTypeBundle)
	if v.date != "2024-01-01" || v.props != "queue=etl" {
		t.Fatalf("Expected window carried into the form, got date %q props %q", v.date, v.props)
	}
	if err := applyTaskUpdates(c, 0, v.updates()); err != nil {
		t.Fatalf("applyTaskUpdates failed: %v", err)
	}
	d := c.Draft(0)
	if d.Type != models.TaskTypeBundle || d.Window.Date != "2024-01-01" {
		t.Errorf("Unexpected bundle draft %+v", d)
	}
}

func TestValidateConcurrency(t *testing.T) {
	for _, tc := range []struct {
		in string
		ok bool
	}{
		{"1", true},
		{" 64 ", true},
		{"0", false},
		{"65", false},
		{"two", false},
	} {
		if err := validateConcurrency(tc.in); (err == nil) != tc.ok {
			t.Errorf("validateConcurrency(%q) = %v", tc.in, err)
		}
	}
}
