package plan

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

type (
	BindingKind int

	// Binding is one constructor argument of a step: a literal, a named
	// external configuration value, or the address produced by an earlier step.
	Binding struct {
		Kind BindingKind
		// Value holds the literal for BindingLiteral.
		Value any
		// Key names the configuration value for BindingConfig.
		Key string
		// StepIndex is the referenced step for BindingStep. StepName is kept
		// when the reference was written by name and is resolved to
		// StepIndex when the plan is built.
		StepIndex int
		StepName  string
	}

	// Step provisions one contract instance.
	Step struct {
		Index     int       `yaml:"index"`
		Name      string    `yaml:"name"`
		Contract  string    `yaml:"contract"`
		Migration string    `yaml:"migration,omitempty"`
		Args      []Binding `yaml:"args,omitempty"`
	}

	// Plan is the total order of deployment steps.
	Plan struct {
		Name  string `yaml:"name"`
		Steps []Step `yaml:"steps"`
	}
)

const (
	BindingLiteral BindingKind = iota
	BindingConfig
	BindingStep
)

func (k BindingKind) String() string {
	switch k {
	case BindingLiteral:
		return "literal"
	case BindingConfig:
		return "config"
	case BindingStep:
		return "step"
	default:
		return "unknown"
	}
}

// Literal binds a fixed value.
func Literal(value any) Binding {
	return Binding{Kind: BindingLiteral, Value: value}
}

// Config binds the external configuration value named key.
func Config(key string) Binding {
	return Binding{Kind: BindingConfig, Key: key}
}

// Ref binds the address produced by the step with the given index.
func Ref(index int) Binding {
	return Binding{Kind: BindingStep, StepIndex: index}
}

// RefName binds the address produced by the step with the given name.
func RefName(name string) Binding {
	return Binding{Kind: BindingStep, StepIndex: -1, StepName: name}
}

func (b Binding) String() string {
	switch b.Kind {
	case BindingLiteral:
		return fmt.Sprintf("%v", b.Value)
	case BindingConfig:
		return "$" + b.Key
	case BindingStep:
		if b.StepName != "" {
			return fmt.Sprintf("@%s(#%d)", b.StepName, b.StepIndex)
		}
		return fmt.Sprintf("@#%d", b.StepIndex)
	default:
		return "?"
	}
}

// UnmarshalYAML accepts a bare scalar or sequence (literal) or a mapping with
// exactly one of the keys literal, config or step.
func (b *Binding) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		value, err := decodeLiteral(node)
		if err != nil {
			return err
		}
		*b = Literal(value)
		return nil
	}

	if len(node.Content) != 2 {
		return fmt.Errorf("line %d: binding must have exactly one of 'literal', 'config' or 'step'", node.Line)
	}

	key, value := node.Content[0].Value, node.Content[1]
	switch key {
	case "literal":
		literal, err := decodeLiteral(value)
		if err != nil {
			return err
		}
		*b = Literal(literal)

	case "config":
		if value.Kind != yaml.ScalarNode || value.Value == "" {
			return fmt.Errorf("line %d: config binding needs a key name", value.Line)
		}
		*b = Config(value.Value)

	case "step":
		if value.Kind != yaml.ScalarNode || value.Value == "" {
			return fmt.Errorf("line %d: step binding needs an index or a name", value.Line)
		}
		if value.ShortTag() == "!!int" {
			index, err := strconv.Atoi(value.Value)
			if err != nil {
				return fmt.Errorf("line %d: invalid step index '%s': %w", value.Line, value.Value, err)
			}
			*b = Ref(index)
		} else {
			*b = RefName(value.Value)
		}

	default:
		return fmt.Errorf("line %d: unknown binding kind '%s'", node.Line, key)
	}

	return nil
}

// decodeLiteral decodes a literal node. Integers that do not fit 64 bits and
// floats keep their source text, so they reach ABI conversion unrounded.
func decodeLiteral(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		values := make([]any, len(node.Content))
		for i, item := range node.Content {
			value, err := decodeLiteral(item)
			if err != nil {
				return nil, err
			}
			values[i] = value
		}
		return values, nil

	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!float":
			return node.Value, nil
		case "!!int":
			var value any
			if err := node.Decode(&value); err != nil {
				return nil, fmt.Errorf("line %d: failed to decode literal: %w", node.Line, err)
			}
			if _, isFloat := value.(float64); isFloat {
				return node.Value, nil
			}
			return value, nil
		}
	}

	var value any
	if err := node.Decode(&value); err != nil {
		return nil, fmt.Errorf("line %d: failed to decode literal: %w", node.Line, err)
	}
	return value, nil
}

// MarshalYAML writes the mapping form accepted by UnmarshalYAML.
func (b Binding) MarshalYAML() (any, error) {
	switch b.Kind {
	case BindingLiteral:
		return map[string]any{"literal": b.Value}, nil
	case BindingConfig:
		return map[string]string{"config": b.Key}, nil
	case BindingStep:
		if b.StepName != "" {
			return map[string]string{"step": b.StepName}, nil
		}
		return map[string]int{"step": b.StepIndex}, nil
	default:
		return nil, fmt.Errorf("unknown binding kind %d", b.Kind)
	}
}

// Dependencies returns the indices of the steps s refers to, in argument order.
func (s Step) Dependencies() []int {
	var deps []int
	for _, arg := range s.Args {
		if arg.Kind == BindingStep {
			deps = append(deps, arg.StepIndex)
		}
	}
	return deps
}

// ConfigKeys returns the configuration keys s refers to, in argument order.
func (s Step) ConfigKeys() []string {
	var keys []string
	for _, arg := range s.Args {
		if arg.Kind == BindingConfig {
			keys = append(keys, arg.Key)
		}
	}
	return keys
}

// Contracts returns the distinct contract identifiers of the plan in step order.
func (p *Plan) Contracts() []string {
	seen := make(map[string]struct{}, len(p.Steps))
	var names []string
	for _, step := range p.Steps {
		if _, ok := seen[step.Contract]; ok {
			continue
		}
		seen[step.Contract] = struct{}{}
		names = append(names, step.Contract)
	}
	return names
}

// Step returns the step with the given index.
func (p *Plan) Step(index int) (Step, bool) {
	for _, step := range p.Steps {
		if step.Index == index {
			return step, true
		}
	}
	return Step{}, false
}
