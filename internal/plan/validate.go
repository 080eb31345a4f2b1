package plan

import (
	"errors"
	"fmt"
)

// Validate checks the static ordering rules of the plan: indices are
// non-negative and strictly increasing in list order, names are unique, and
// every step reference points at a strictly earlier step of the plan.
func (p *Plan) Validate() error {
	var errs []error

	if len(p.Steps) == 0 {
		errs = append(errs, errors.New("plan has no steps"))
	}

	indices := make(map[int]struct{}, len(p.Steps))
	names := make(map[string]struct{}, len(p.Steps))
	previous := -1

	for position, step := range p.Steps {
		if step.Index < 0 {
			errs = append(errs, fmt.Errorf("step at position %d has negative index %d", position, step.Index))
		}
		if _, ok := indices[step.Index]; ok {
			errs = append(errs, fmt.Errorf("step index %d is used more than once", step.Index))
		} else if step.Index <= previous {
			errs = append(errs, fmt.Errorf("step index %d is listed after index %d", step.Index, previous))
		}
		if step.Contract == "" {
			errs = append(errs, fmt.Errorf("step %d has no contract", step.Index))
		}
		if step.Name == "" {
			errs = append(errs, fmt.Errorf("step %d has no name", step.Index))
		} else if _, ok := names[step.Name]; ok {
			errs = append(errs, fmt.Errorf("step name '%s' is used more than once", step.Name))
		}

		for argPosition, arg := range step.Args {
			switch arg.Kind {
			case BindingLiteral:
			case BindingConfig:
				if arg.Key == "" {
					errs = append(errs, fmt.Errorf("step %d argument %d has an empty config key", step.Index, argPosition))
				}
			case BindingStep:
				if arg.StepIndex >= step.Index {
					errs = append(errs, fmt.Errorf("step %d argument %d refers to step %d which does not come earlier", step.Index, argPosition, arg.StepIndex))
				} else if _, ok := indices[arg.StepIndex]; !ok {
					errs = append(errs, fmt.Errorf("step %d argument %d refers to unknown step %d", step.Index, argPosition, arg.StepIndex))
				}
			default:
				errs = append(errs, fmt.Errorf("step %d argument %d has unknown binding kind %d", step.Index, argPosition, arg.Kind))
			}
		}

		indices[step.Index] = struct{}{}
		names[step.Name] = struct{}{}
		if step.Index > previous {
			previous = step.Index
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("plan '%s' is invalid: %w", p.Name, errors.Join(errs...))
	}

	return nil
}
