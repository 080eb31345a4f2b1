package plan

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// DefaultName is the embedded plan used when no plan file is configured.
const DefaultName = "bpay"

//go:embed plans/*.yaml
var embeddedPlansFS embed.FS

// Load reads a plan from a YAML file.
func Load(filePath string) (*Plan, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan '%s': %w", filePath, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan '%s': %w", filePath, err)
	}

	return p, nil
}

// LoadEmbedded reads one of the plans bundled with the binary.
func LoadEmbedded(name string) (*Plan, error) {
	data, err := embeddedPlansFS.ReadFile(path.Join("plans", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded plan '%s': %w", name, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded plan '%s': %w", name, err)
	}

	return p, nil
}

// Resolve loads filePath, or the default embedded plan when filePath is empty.
func Resolve(filePath string) (*Plan, error) {
	if filePath == "" {
		return LoadEmbedded(DefaultName)
	}
	return Load(filePath)
}

// Parse decodes, normalizes and validates a YAML plan.
func Parse(data []byte) (*Plan, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var p Plan
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}

	return New(p.Name, p.Steps)
}

// New builds a plan from steps: names default to the contract identifier,
// name references are resolved to indices and the result is validated.
func New(name string, steps []Step) (*Plan, error) {
	p := &Plan{
		Name:  name,
		Steps: make([]Step, len(steps)),
	}

	for i, step := range steps {
		if step.Name == "" {
			step.Name = step.Contract
		}
		step.Args = append([]Binding(nil), step.Args...)
		p.Steps[i] = step
	}

	if err := p.resolveNames(); err != nil {
		return nil, err
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Plan) resolveNames() error {
	indexByName := make(map[string]int, len(p.Steps))
	for _, step := range p.Steps {
		if _, ok := indexByName[step.Name]; ok {
			return fmt.Errorf("step name '%s' is used more than once", step.Name)
		}
		indexByName[step.Name] = step.Index
	}

	for i := range p.Steps {
		for j, arg := range p.Steps[i].Args {
			if arg.Kind != BindingStep || arg.StepName == "" {
				continue
			}

			index, ok := indexByName[arg.StepName]
			if !ok {
				return fmt.Errorf("step %d (%s) argument %d refers to unknown step '%s'", p.Steps[i].Index, p.Steps[i].Name, j, arg.StepName)
			}
			p.Steps[i].Args[j].StepIndex = index
		}
	}

	return nil
}
