package dashboard

import (
	"math"
	"strconv"

	"github.com/fentz26/reprocess/internal/models"
)

// RecentLogCount is how many tasks RecentLogs returns.
const RecentLogCount = 3

// Progress returns the percentage of tasks in a terminal status, rounded to
// the nearest integer. No tasks is 0%.
func Progress(tasks []models.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	return int(math.Round(100 * float64(Terminal(tasks)) / float64(len(tasks))))
}

// Terminal counts tasks in a terminal status.
func Terminal(tasks []models.Task) int {
	n := 0
	for _, t := range tasks {
		if t.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// LogEntry is the log view of one task. Absent text is "".
type LogEntry struct {
	TaskID   int64
	Name     string
	Status   models.TaskStatus
	Attempt  int
	Command  string
	Stdout   string
	Stderr   string
	ExitCode string
}

// RecentLogs returns the last RecentLogCount tasks, most recent first.
func RecentLogs(tasks []models.Task) []LogEntry {
	start := len(tasks) - RecentLogCount
	if start < 0 {
		start = 0
	}
	out := make([]LogEntry, 0, len(tasks)-start)
	for i := len(tasks) - 1; i >= start; i-- {
		t := tasks[i]
		out = append(out, LogEntry{
			TaskID:   t.ID,
			Name:     t.Name,
			Status:   t.Status,
			Attempt:  t.Attempt,
			Command:  t.Command,
			Stdout:   t.Stdout,
			Stderr:   t.Stderr,
			ExitCode: ExitCodeText(t.ExitCode),
		})
	}
	return out
}

// ExitCodeText renders an optional exit code, "" when absent.
func ExitCodeText(code *int) string {
	if code == nil {
		return ""
	}
	return strconv.Itoa(*code)
}

// CanMutate reports whether role may trigger mutating actions.
func CanMutate(role models.Role) bool {
	return role.CanMutate()
}
