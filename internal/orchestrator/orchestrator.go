package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/borderless-pay/migrator/internal/address"
	"github.com/borderless-pay/migrator/internal/chain"
	"github.com/borderless-pay/migrator/internal/contracts"
	"github.com/borderless-pay/migrator/internal/ledger"
	"github.com/borderless-pay/migrator/internal/logger"
	"github.com/borderless-pay/migrator/internal/plan"
	"github.com/ethereum/go-ethereum/common"
)

const defaultStepTimeout = 2 * time.Minute

type (
	// ConfigSource supplies named external values, e.g. addresses of
	// infrastructure deployed outside the plan.
	ConfigSource interface {
		Lookup(key string) (string, bool)
	}

	// Environment is the execution environment contracts are created in.
	Environment interface {
		Deploy(ctx context.Context, contract contracts.CompiledContract, args []any) (chain.Deployment, error)
		Balance(ctx context.Context, account common.Address) (*big.Int, error)
		Sender() common.Address
	}

	// PersistFunc is called with the ledger after every recorded step.
	PersistFunc func(l *ledger.Ledger) error

	Option func(*Orchestrator)

	/*
		Orchestrator runs a deployment plan strictly in index order:
		  - resolves each step's bindings against the configuration and the ledger
		  - converts them to the constructor's ABI types
		  - submits the creation and waits for confirmation
		  - records the produced address in the ledger
		The first failure aborts the run. Nothing is retried or rolled back.
	*/
	Orchestrator struct {
		env        Environment
		config     ConfigSource
		artifacts  contracts.Set
		codec      address.Codec
		timeout    time.Duration
		minBalance *big.Int
		persist    PersistFunc
		logger     *slog.Logger
	}
)

// WithStepTimeout bounds the wait for each step's confirmation.
func WithStepTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithMinBalance refuses to start a run while the deployer balance is below amount.
func WithMinBalance(amount *big.Int) Option {
	return func(o *Orchestrator) {
		o.minBalance = amount
	}
}

// WithPersist registers a callback invoked after every recorded step.
func WithPersist(persist PersistFunc) Option {
	return func(o *Orchestrator) {
		o.persist = persist
	}
}

// New creates a new deployment orchestrator
func New(env Environment, config ConfigSource, artifacts contracts.Set, codec address.Codec, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		env:       env,
		config:    config,
		artifacts: artifacts,
		codec:     codec,
		timeout:   defaultStepTimeout,
		logger:    logger.Named("orchestrator"),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Run executes the steps of p that are not yet in l. Steps already in l must
// form a prefix of p, as left behind by an earlier, interrupted run.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan, l *ledger.Ledger) error {
	pending, err := pendingSteps(p, l)
	if err != nil {
		return err
	}

	o.logger.
		With("plan", p.Name).
		With("steps", len(p.Steps)).
		With("completed", l.Len()).
		With("pending", len(pending)).
		Info("starting deployment run")

	if len(pending) == 0 {
		o.logger.Info("nothing to deploy, every step is recorded")
		return nil
	}

	if err := o.checkBalance(ctx); err != nil {
		return err
	}

	for _, step := range pending {
		if err := o.runStep(ctx, step, l); err != nil {
			var stepErr *StepError
			if errors.As(err, &stepErr) {
				o.logger.
					With("step_index", stepErr.Index).
					With("step", stepErr.Name).
					With("kind", KindName(err)).
					With("err", err.Error()).
					Error("deployment run aborted")
			}
			return err
		}
	}

	o.logger.With("plan", p.Name).With("deployed", len(pending)).Info("deployment run completed")

	return nil
}

func (o *Orchestrator) runStep(ctx context.Context, step plan.Step, l *ledger.Ledger) error {
	stepLogger := o.logger.
		With("step_index", step.Index).
		With("step", step.Name).
		With("contract", step.Contract)

	contract, values, err := o.prepare(step, l)
	if err != nil {
		return err
	}

	stepLogger.With("args", len(values)).Info("deploying contract")

	stepCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	deployment, err := o.env.Deploy(stepCtx, contract, values)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return stepError(step, ctx.Err(), err)
		case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
			return stepError(step, ErrDeploymentTimeout, fmt.Errorf("no confirmation within %s: %w", o.timeout, err))
		default:
			return stepError(step, ErrDeploymentRejected, err)
		}
	}

	entry := ledger.Entry{
		Index:       step.Index,
		Name:        step.Name,
		Contract:    step.Contract,
		Address:     address.Encode(o.codec, deployment.Address),
		TxHash:      deployment.TxHash.Hex(),
		BlockNumber: deployment.BlockNumber,
		GasUsed:     deployment.GasUsed,
	}
	if err := l.Record(entry); err != nil {
		return stepError(step, ErrLedgerMismatch, err)
	}

	stepLogger.
		With("hex", entry.Address.Hex).
		With("display", entry.Address.Display).
		With("tx_hash", entry.TxHash).
		With("gas_used", entry.GasUsed).
		Info("contract deployed")

	if o.persist != nil {
		if err := o.persist(l); err != nil {
			return fmt.Errorf("step %d (%s) deployed at %s but the ledger could not be saved: %w", step.Index, step.Name, entry.Address.Display, err)
		}
	}

	return nil
}

// prepare resolves and converts the arguments of step without touching the network.
func (o *Orchestrator) prepare(step plan.Step, l *ledger.Ledger) (contracts.CompiledContract, []any, error) {
	values, err := o.resolve(step, l)
	if err != nil {
		return contracts.CompiledContract{}, nil, err
	}

	contract, err := o.artifacts.Get(step.Contract)
	if err != nil {
		return contracts.CompiledContract{}, nil, stepError(step, ErrInvalidArgument, err)
	}

	args, err := contract.ConstructorArgs(values, o.codec.Parse)
	if err != nil {
		return contracts.CompiledContract{}, nil, stepError(step, ErrInvalidArgument, err)
	}

	return contract, args, nil
}

func (o *Orchestrator) resolve(step plan.Step, l *ledger.Ledger) ([]any, error) {
	values := make([]any, len(step.Args))
	for i, arg := range step.Args {
		switch arg.Kind {
		case plan.BindingLiteral:
			values[i] = arg.Value

		case plan.BindingConfig:
			value, ok := o.config.Lookup(arg.Key)
			if !ok {
				return nil, stepError(step, ErrMissingConfiguration, fmt.Errorf("argument %d needs '%s'", i, arg.Key))
			}
			values[i] = value

		case plan.BindingStep:
			if arg.StepIndex >= step.Index {
				return nil, stepError(step, ErrUnresolvedDependency, fmt.Errorf("argument %d refers to step %d which does not come earlier", i, arg.StepIndex))
			}
			entry, ok := l.Lookup(arg.StepIndex)
			if !ok {
				return nil, stepError(step, ErrUnresolvedDependency, fmt.Errorf("argument %d needs the address of step %d, which has not completed", i, arg.StepIndex))
			}
			values[i] = entry.Address.Address

		default:
			return nil, stepError(step, ErrInvalidArgument, fmt.Errorf("argument %d has unknown binding kind %d", i, arg.Kind))
		}
	}

	return values, nil
}

func (o *Orchestrator) checkBalance(ctx context.Context) error {
	sender := o.env.Sender()
	balance, err := o.env.Balance(ctx, sender)
	if err != nil {
		return fmt.Errorf("failed to read deployer balance: %w", err)
	}

	o.logger.
		With("deployer", o.codec.Display(sender)).
		With("balance", balance.String()).
		Info("deployer balance")

	if o.minBalance != nil && balance.Cmp(o.minBalance) < 0 {
		return fmt.Errorf("%w: deployer %s holds %s, at least %s is required", ErrInsufficientBalance, o.codec.Display(sender), balance, o.minBalance)
	}

	return nil
}

// pendingSteps checks that the ledger is a prefix of the plan and returns the remaining steps.
func pendingSteps(p *plan.Plan, l *ledger.Ledger) ([]plan.Step, error) {
	entries := l.Entries()
	if len(entries) > len(p.Steps) {
		return nil, fmt.Errorf("%w: ledger has %d steps, plan '%s' only %d", ErrLedgerMismatch, len(entries), p.Name, len(p.Steps))
	}

	for i, entry := range entries {
		step := p.Steps[i]
		if entry.Index != step.Index || entry.Contract != step.Contract {
			return nil, fmt.Errorf("%w: ledger entry %d is step %d (%s), plan expects step %d (%s)", ErrLedgerMismatch, i, entry.Index, entry.Contract, step.Index, step.Contract)
		}
	}

	return p.Steps[len(entries):], nil
}

func stepError(step plan.Step, kind, err error) *StepError {
	return &StepError{
		Index:    step.Index,
		Name:     step.Name,
		Contract: step.Contract,
		Kind:     kind,
		Err:      err,
	}
}
