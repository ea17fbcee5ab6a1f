package composer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fentz26/reprocess/internal/models"
)

// Field names a single editable input.
type Field string

// Task fields.
const (
	FieldName            Field = "name"
	FieldType            Field = "type"
	FieldJobID           Field = "job_id"
	FieldFailNodesOnly   Field = "fail_nodes_only"
	FieldSkipNodes       Field = "skip_nodes"
	FieldAction          Field = "action"
	FieldDate            Field = "date"
	FieldCoordinatorName Field = "coordinator_name"
	FieldRefresh         Field = "refresh"
	FieldFailed          Field = "failed"
	FieldExtraProperties Field = "extra_properties"
)

// Plan fields.
const (
	FieldPlanName             Field = "name"
	FieldTargetAddress        Field = "target_address"
	FieldMaxConcurrency       Field = "max_concurrency"
	FieldUseAlternateProtocol Field = "use_alternate_protocol"
	FieldDescription          Field = "description"
)

// Label returns a human-readable caption for f.
func (f Field) Label() string {
	switch f {
	case FieldFailNodesOnly:
		return "Rerun failed nodes only"
	case FieldSkipNodes:
		return "Skip nodes (comma separated)"
	case FieldCoordinatorName:
		return "Coordinator"
	case FieldJobID:
		return "Job ID"
	case FieldTargetAddress:
		return "Target address"
	case FieldMaxConcurrency:
		return "Max concurrency"
	case FieldUseAlternateProtocol:
		return "Use REST protocol"
	case FieldExtraProperties:
		return "Extra properties (k=v,...)"
	}
	s := strings.ReplaceAll(string(f), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// VisibleFields returns the type-specific inputs shown for a task type.
func VisibleFields(t models.TaskType) []Field {
	switch t {
	case models.TaskTypeWorkflow:
		return []Field{FieldFailNodesOnly, FieldSkipNodes}
	case models.TaskTypeCoordinator, models.TaskTypeBundle:
		return []Field{FieldAction, FieldDate, FieldCoordinatorName}
	}
	return nil
}

// RerunFlags returns the additional switches a task type accepts.
func RerunFlags(t models.TaskType) []Field {
	switch t {
	case models.TaskTypeCoordinator:
		return []Field{FieldRefresh, FieldFailed}
	case models.TaskTypeBundle:
		return []Field{FieldRefresh}
	}
	return nil
}

// Value returns the current text of field f on d.
func (d Draft) Value(f Field) string {
	switch f {
	case FieldName:
		return d.Name
	case FieldType:
		return string(d.Type)
	case FieldJobID:
		return d.JobID
	case FieldFailNodesOnly:
		return strconv.FormatBool(d.Workflow.FailNodesOnly)
	case FieldSkipNodes:
		return d.Workflow.SkipNodes.String()
	}
	if d.Type == models.TaskTypeWorkflow {
		return ""
	}
	w := d.Window
	switch f {
	case FieldAction:
		return w.Action
	case FieldDate:
		return w.Date
	case FieldCoordinatorName:
		return w.CoordinatorName
	case FieldRefresh:
		return strconv.FormatBool(w.Refresh)
	case FieldExtraProperties:
		return formatProps(w.ExtraProperties)
	case FieldFailed:
		if d.Type == models.TaskTypeCoordinator {
			return strconv.FormatBool(d.Failed)
		}
	}
	return ""
}

// set writes value into field f of d. d is left untouched on error.
func (d *Draft) set(f Field, value string) error {
	next := *d
	switch f {
	case FieldName:
		next.Name = value
	case FieldJobID:
		next.JobID = value
	case FieldType:
		t := models.TaskType(strings.TrimSpace(value))
		if !t.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownType, value)
		}
		next.Type = t
	case FieldFailNodesOnly, FieldSkipNodes:
		if next.Type != models.TaskTypeWorkflow {
			return fmt.Errorf("%w: %s on %s task", ErrFieldNotVisible, f, next.Type)
		}
		if f == FieldSkipNodes {
			next.Workflow.SkipNodes = models.ParseNodeList(value)
			break
		}
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		next.Workflow.FailNodesOnly = b
	case FieldAction, FieldDate, FieldCoordinatorName, FieldRefresh, FieldFailed, FieldExtraProperties:
		if err := next.setWindow(f, value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	*d = next
	return nil
}

func (d *Draft) setWindow(f Field, value string) error {
	if d.Type != models.TaskTypeCoordinator && d.Type != models.TaskTypeBundle {
		return fmt.Errorf("%w: %s on %s task", ErrFieldNotVisible, f, d.Type)
	}
	w := &d.Window
	switch f {
	case FieldAction:
		w.Action = value
	case FieldDate:
		w.Date = value
	case FieldCoordinatorName:
		w.CoordinatorName = value
	case FieldRefresh:
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		w.Refresh = b
	case FieldFailed:
		if d.Type != models.TaskTypeCoordinator {
			return fmt.Errorf("%w: %s on %s task", ErrFieldNotVisible, f, d.Type)
		}
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		d.Failed = b
	case FieldExtraProperties:
		props, err := parseProps(value)
		if err != nil {
			return err
		}
		w.ExtraProperties = props
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off", "":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, s)
	}
	return b, nil
}

// parseProps reads "k=v,k2=v2". An empty string clears the map.
func parseProps(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	props := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: property %q is not key=value", ErrInvalidValue, pair)
		}
		props[k] = strings.TrimSpace(v)
	}
	return props, nil
}

func formatProps(props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + props[k]
	}
	return strings.Join(parts, ",")
}
