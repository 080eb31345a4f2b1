package orchestrator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/borderless-pay/migrator/internal/address"
	"github.com/borderless-pay/migrator/internal/ledger"
	"github.com/borderless-pay/migrator/internal/plan"
	"github.com/ethereum/go-ethereum/common"
)

type (
	// StepPreview describes a step as it would be submitted.
	StepPreview struct {
		Index    int      `yaml:"index"`
		Name     string   `yaml:"name"`
		Contract string   `yaml:"contract"`
		Args     []string `yaml:"args"`
		Recorded string   `yaml:"recorded,omitempty"`
	}
)

// Check resolves and converts the arguments of every pending step without
// submitting anything. Addresses of steps that have not run yet are replaced
// by placeholders, and shown symbolically in the preview.
// All problems are collected rather than stopping at the first one.
func (o *Orchestrator) Check(p *plan.Plan, l *ledger.Ledger) ([]StepPreview, error) {
	pending, err := pendingSteps(p, l)
	if err != nil {
		return nil, err
	}

	previews := make([]StepPreview, 0, len(p.Steps))
	for _, entry := range l.Entries() {
		previews = append(previews, StepPreview{
			Index:    entry.Index,
			Name:     entry.Name,
			Contract: entry.Contract,
			Recorded: entry.Address.Display,
		})
	}

	// simulated copy of the ledger, so later steps can resolve references
	simulated := ledger.New()
	for _, entry := range l.Entries() {
		if err := simulated.Record(entry); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLedgerMismatch, err)
		}
	}

	var errs []error
	for _, step := range pending {
		if _, _, err := o.prepare(step, simulated); err != nil {
			errs = append(errs, err)
		}

		previews = append(previews, StepPreview{
			Index:    step.Index,
			Name:     step.Name,
			Contract: step.Contract,
			Args:     o.describeArgs(step, simulated),
		})

		if err := simulated.Record(ledger.Entry{
			Index:    step.Index,
			Name:     step.Name,
			Contract: step.Contract,
			Address:  address.Encode(o.codec, placeholderAddress(step.Index)),
		}); err != nil {
			errs = append(errs, stepError(step, ErrLedgerMismatch, err))
		}
	}

	if len(errs) > 0 {
		return previews, errors.Join(errs...)
	}

	return previews, nil
}

func (o *Orchestrator) describeArgs(step plan.Step, l *ledger.Ledger) []string {
	args := make([]string, len(step.Args))
	for i, arg := range step.Args {
		switch arg.Kind {
		case plan.BindingConfig:
			if value, ok := o.config.Lookup(arg.Key); ok {
				args[i] = fmt.Sprintf("%s = %s", arg.Key, value)
			} else {
				args[i] = fmt.Sprintf("%s = <missing>", arg.Key)
			}
		case plan.BindingStep:
			ref := fmt.Sprintf("<address of step %d>", arg.StepIndex)
			if target, ok := l.Lookup(arg.StepIndex); ok {
				ref = fmt.Sprintf("<address of step %d (%s)>", arg.StepIndex, target.Name)
				if target.TxHash != "" {
					ref = target.Address.Display
				}
			}
			args[i] = ref
		default:
			args[i] = arg.String()
		}
	}

	return args
}

// placeholderAddress is a stand-in address for a step that has not been deployed.
func placeholderAddress(index int) common.Address {
	return common.BigToAddress(big.NewInt(int64(index) + 1))
}
