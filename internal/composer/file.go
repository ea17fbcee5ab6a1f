package composer

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fentz26/reprocess/internal/models"
	"gopkg.in/yaml.v3"
)

// planFile is the on-disk plan definition.
type planFile struct {
	Name                 string     `yaml:"name"`
	Description          string     `yaml:"description"`
	TargetAddress        string     `yaml:"target_address"`
	MaxConcurrency       int        `yaml:"max_concurrency"`
	UseAlternateProtocol bool       `yaml:"use_alternate_protocol"`
	Tasks                []taskFile `yaml:"tasks"`
}

type taskFile struct {
	Name            string            `yaml:"name"`
	Type            string            `yaml:"type"`
	JobID           string            `yaml:"job_id"`
	FailNodesOnly   bool              `yaml:"fail_nodes_only"`
	SkipNodes       nodeField         `yaml:"skip_nodes"`
	Action          string            `yaml:"action"`
	Date            string            `yaml:"date"`
	CoordinatorName string            `yaml:"coordinator_name"`
	Refresh         bool              `yaml:"refresh"`
	Failed          bool              `yaml:"failed"`
	ExtraProperties map[string]string `yaml:"extra_properties"`
}

// nodeField accepts either "a,b" or a YAML sequence.
type nodeField models.NodeList

func (n *nodeField) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*n = nodeField(models.ParseNodeList(value.Value))
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*n = nodeField(models.ParseNodeList(models.NodeList(items).String()))
		return nil
	}
	return fmt.Errorf("line %d: skip_nodes must be a string or a list", value.Line)
}

// LoadFile replaces the composer's input with the plan definition at path.
func (c *Composer) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open plan file: %w", err)
	}
	defer f.Close()
	if err := c.Load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Load replaces the composer's input with a YAML plan definition read from r.
// Unset plan fields keep their defaults. On error the composer is unchanged.
func (c *Composer) Load(r io.Reader) error {
	var pf planFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty plan definition")
		}
		return fmt.Errorf("parse plan: %w", err)
	}

	drafts := make([]Draft, 0, len(pf.Tasks))
	for i, tf := range pf.Tasks {
		t := models.TaskType(tf.Type)
		if tf.Type == "" {
			t = models.TaskTypeWorkflow
		}
		if !t.Valid() {
			return fmt.Errorf("task %d: %w: %q", i+1, ErrUnknownType, tf.Type)
		}
		d := Draft{Name: tf.Name, JobID: tf.JobID, Type: t}
		switch t {
		case models.TaskTypeWorkflow:
			d.Workflow = WorkflowTask{FailNodesOnly: tf.FailNodesOnly, SkipNodes: models.NodeList(tf.SkipNodes)}
		case models.TaskTypeCoordinator, models.TaskTypeBundle:
			d.Window = Window{
				Action:          tf.Action,
				Date:            tf.Date,
				CoordinatorName: tf.CoordinatorName,
				Refresh:         tf.Refresh,
				ExtraProperties: tf.ExtraProperties,
			}
			d.Failed = t == models.TaskTypeCoordinator && tf.Failed
		}
		drafts = append(drafts, d)
	}

	c.Reset()
	if pf.Name != "" {
		c.Name = pf.Name
	}
	if pf.TargetAddress != "" {
		c.TargetAddress = pf.TargetAddress
	}
	if pf.MaxConcurrency != 0 {
		c.MaxConcurrency = pf.MaxConcurrency
	}
	c.Description = pf.Description
	c.UseAlternateProtocol = pf.UseAlternateProtocol
	c.drafts = drafts
	return nil
}
