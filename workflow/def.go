package workflow

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// - a workflow file declares triggers, environment and jobs
// - jobs may depend on each other and run in parallel otherwise
// - each job consists of some execution steps, these execute serially

type (
	// Definition is the structural representation of a workflow file.
	// It is immutable once parsed and safe to share across concurrently
	// executing jobs.
	Definition struct {
		Name string            `yaml:"name,omitempty" json:"name"`
		On   []TriggerRule     `yaml:"on,omitempty" json:"on"`
		Env  map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
		Jobs Jobs              `yaml:"jobs" json:"jobs"`
	}

	TriggerRule struct {
		Event    EventKind  `yaml:"event" json:"event"`
		Branches StringList `yaml:"branches,omitempty" json:"branches,omitempty"`
	}

	// Jobs preserves the declaration order of the `jobs` mapping.
	Jobs []Job

	Job struct {
		Name   string     `yaml:"-" json:"name"`
		RunsOn string     `yaml:"runs-on,omitempty" json:"runs-on,omitempty"`
		Needs  StringList `yaml:"needs,omitempty" json:"needs,omitempty"`
		Steps  []Step     `yaml:"steps" json:"steps"`
	}

	// Step declares exactly one of Checkout, Toolchain or Run.
	Step struct {
		Name      string            `yaml:"name,omitempty" json:"name,omitempty"`
		Checkout  *CheckoutAction   `yaml:"checkout,omitempty" json:"checkout,omitempty"`
		Toolchain *ToolchainAction  `yaml:"toolchain-install,omitempty" json:"toolchain-install,omitempty"`
		Run       string            `yaml:"run,omitempty" json:"run,omitempty"`
		Dir       string            `yaml:"working-directory,omitempty" json:"working-directory,omitempty"`
		Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	}

	StringList []string
)

type StepKind int

const (
	StepKindInvalid StepKind = iota
	StepKindCheckout
	StepKindToolchain
	StepKindRun
)

// FromFile parses a workflow document. The name is used as a fallback when
// the document carries no `name` key. Parsing is pure; callers read the file.
func FromFile(name string, contents []byte) (*Definition, error) {
	var def Definition

	if err := yaml.Unmarshal(contents, &def); err != nil {
		return nil, &MalformedDefinitionError{Field: "document", Reason: err.Error()}
	}

	if def.Name == "" {
		def.Name = name
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

// Job looks up a job by name.
func (d *Definition) Job(name string) (*Job, bool) {
	for i := range d.Jobs {
		if d.Jobs[i].Name == name {
			return &d.Jobs[i], true
		}
	}
	return nil, false
}

func (s *Step) Kind() StepKind {
	var kind StepKind
	actions := 0

	if s.Checkout != nil {
		kind = StepKindCheckout
		actions++
	}
	if s.Toolchain != nil {
		kind = StepKindToolchain
		actions++
	}
	if s.Run != "" {
		kind = StepKindRun
		actions++
	}

	if actions != 1 {
		return StepKindInvalid
	}
	return kind
}

// DisplayName returns the declared step name, falling back to
// something derived from the action.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}

	switch s.Kind() {
	case StepKindCheckout:
		return "checkout"
	case StepKindToolchain:
		return "toolchain-install"
	case StepKindRun:
		return s.Run
	}
	return "invalid step"
}

func (j *Jobs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("jobs: expected a mapping, got %s", nodeKind(node))
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]

		var job Job
		if err := val.Decode(&job); err != nil {
			return fmt.Errorf("jobs.%s: %w", key.Value, err)
		}
		job.Name = key.Value

		*j = append(*j, job)
	}

	return nil
}

// MarshalYAML renders jobs back as a mapping in declaration order.
func (j Jobs) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}

	for _, job := range j {
		var key yaml.Node
		key.SetString(job.Name)

		var val yaml.Node
		if err := val.Encode(job); err != nil {
			return nil, err
		}

		node.Content = append(node.Content, &key, &val)
	}

	return node, nil
}

// CheckoutAction accepts `checkout: true`, or a mapping with a
// `submodules` key whose value is a bool or the word "recursive".
type CheckoutAction struct {
	Submodules bool `json:"submodules,omitempty"`
}

func (c *CheckoutAction) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
		if !enabled {
			return errors.New("checkout: use `checkout: true` or omit the step")
		}
		return nil

	case yaml.MappingNode:
		var raw struct {
			Submodules yaml.Node `yaml:"submodules"`
		}
		if err := node.Decode(&raw); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
		if raw.Submodules.IsZero() {
			return nil
		}

		var b bool
		if err := raw.Submodules.Decode(&b); err == nil {
			c.Submodules = b
			return nil
		}

		var s string
		if err := raw.Submodules.Decode(&s); err == nil && s == "recursive" {
			c.Submodules = true
			return nil
		}

		return fmt.Errorf("checkout.submodules: expected bool or \"recursive\", got %q", raw.Submodules.Value)
	}

	return fmt.Errorf("checkout: expected bool or mapping, got %s", nodeKind(node))
}

func (c CheckoutAction) MarshalYAML() (any, error) {
	return struct {
		Submodules bool `yaml:"submodules"`
	}{Submodules: c.Submodules}, nil
}

// ToolchainAction accepts a bare spec string like `nightly` or a mapping
// with `toolchain` and optional `components`.
type ToolchainAction struct {
	Toolchain  string     `yaml:"toolchain" json:"toolchain"`
	Components StringList `yaml:"components,omitempty" json:"components,omitempty"`
}

func (t *ToolchainAction) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var spec string
		if err := node.Decode(&spec); err != nil {
			return fmt.Errorf("toolchain-install: %w", err)
		}
		t.Toolchain = spec
		return nil
	}

	if node.Kind == yaml.MappingNode {
		type plain ToolchainAction
		var p plain
		if err := node.Decode(&p); err != nil {
			return fmt.Errorf("toolchain-install: %w", err)
		}
		*t = ToolchainAction(p)
		return nil
	}

	return fmt.Errorf("toolchain-install: expected string or mapping, got %s", nodeKind(node))
}

// Custom unmarshaller for StringList
func (s *StringList) UnmarshalYAML(unmarshal func(any) error) error {
	var stringType string
	if err := unmarshal(&stringType); err == nil {
		*s = []string{stringType}
		return nil
	}

	var sliceType []any
	if err := unmarshal(&sliceType); err == nil {
		if sliceType == nil {
			*s = nil
			return nil
		}

		parts := make([]string, len(sliceType))
		for k, v := range sliceType {
			if sv, ok := v.(string); ok {
				parts[k] = sv
			} else {
				return fmt.Errorf("cannot unmarshal '%v' of type %T into a string value", v, v)
			}
		}

		*s = parts
		return nil
	}

	return errors.New("failed to unmarshal string or string list")
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
