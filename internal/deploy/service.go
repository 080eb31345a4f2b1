package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/borderless-pay/migrator/configs"
	"github.com/borderless-pay/migrator/internal/address"
	"github.com/borderless-pay/migrator/internal/chain"
	"github.com/borderless-pay/migrator/internal/contracts"
	"github.com/borderless-pay/migrator/internal/infra/filesystem"
	"github.com/borderless-pay/migrator/internal/ledger"
	"github.com/borderless-pay/migrator/internal/logger"
	"github.com/borderless-pay/migrator/internal/orchestrator"
	"github.com/borderless-pay/migrator/internal/output"
	"github.com/borderless-pay/migrator/internal/plan"
)

var ErrLedgerExists = errors.New("a ledger from a previous run exists")

type (
	RunOptions struct {
		// Resume continues from the persisted ledger.
		Resume bool
		// Force discards the persisted ledger and starts over.
		Force bool
	}

	// Service wires configuration, artifacts, the ledger store and the
	// execution environment into an orchestrator run.
	Service struct {
		cfg    configs.Config
		reader filesystem.Reader
		writer filesystem.Writer
		logger *slog.Logger
	}

	// prepared is everything a run needs that can be built without the network.
	prepared struct {
		plan      *plan.Plan
		artifacts contracts.Set
		bindings  *configs.Bindings
		codec     address.Codec
		store     *ledger.Store
		meta      ledger.Metadata
		ledger    *ledger.Ledger
	}
)

func NewService(cfg configs.Config, reader filesystem.Reader, writer filesystem.Writer) *Service {
	return &Service{
		cfg:    cfg,
		reader: reader,
		writer: writer,
		logger: logger.Named("deploy_service"),
	}
}

// Deploy runs the configured plan against the configured network.
func (s *Service) Deploy(ctx context.Context, opts RunOptions) error {
	prep, err := s.prepare(opts)
	if err != nil {
		return err
	}

	client, err := chain.Dial(ctx, chain.Options{
		RPCURL:      s.cfg.Network.RPCURL,
		PrivateKey:  s.cfg.Network.PrivateKey,
		GasLimit:    s.cfg.Network.GasLimit,
		WaitTimeout: s.cfg.Network.RPCWaitTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to network: %w", err)
	}
	defer client.Close()

	meta := ledger.Metadata{
		Plan:          prep.plan.Name,
		ChainID:       client.ChainID().Uint64(),
		AddressFormat: string(prep.codec.Format()),
		Deployer:      prep.codec.Display(client.Sender()),
	}
	if prep.ledger.Len() > 0 && (prep.meta.ChainID != meta.ChainID || prep.meta.Deployer != meta.Deployer) {
		return fmt.Errorf("%w: ledger was written for chain %d by %s, connected to chain %d as %s",
			orchestrator.ErrLedgerMismatch, prep.meta.ChainID, prep.meta.Deployer, meta.ChainID, meta.Deployer)
	}

	if err := prep.store.Save(meta, prep.ledger); err != nil {
		return err
	}

	minBalance, err := s.cfg.Network.MinBalanceWei()
	if err != nil {
		return err
	}

	orchestratorOpts := []orchestrator.Option{
		orchestrator.WithStepTimeout(s.cfg.Network.DeploymentTimeout),
		orchestrator.WithPersist(func(l *ledger.Ledger) error {
			return prep.store.Save(meta, l)
		}),
	}
	if minBalance.Sign() > 0 {
		orchestratorOpts = append(orchestratorOpts, orchestrator.WithMinBalance(minBalance))
	}

	o := orchestrator.New(client, prep.bindings, prep.artifacts, prep.codec, orchestratorOpts...)
	runErr := o.Run(ctx, prep.plan, prep.ledger)

	if prep.ledger.Len() > 0 {
		network := output.Network{
			ChainID:       meta.ChainID,
			RPCURL:        s.cfg.Network.RPCURL,
			AddressFormat: meta.AddressFormat,
			Deployer:      meta.Deployer,
			Plan:          meta.Plan,
		}
		outputPath := filepath.Join(s.cfg.Deployment.OutputDir, output.FileName)
		if err := output.NewGenerator(s.writer).Generate(outputPath, network, prep.ledger, prep.artifacts); err != nil {
			return errors.Join(runErr, err)
		}
	}

	return runErr
}

// Plan checks the configured plan without touching the network.
func (s *Service) Plan(opts RunOptions) ([]orchestrator.StepPreview, error) {
	prep, err := s.prepare(opts)
	if err != nil {
		return nil, err
	}

	o := orchestrator.New(nil, prep.bindings, prep.artifacts, prep.codec)

	return o.Check(prep.plan, prep.ledger)
}

func (s *Service) prepare(opts RunOptions) (*prepared, error) {
	if opts.Resume && opts.Force {
		return nil, errors.New("--resume and --force cannot be combined")
	}

	p, err := plan.Resolve(s.cfg.Deployment.Plan)
	if err != nil {
		return nil, err
	}
	s.logger.With("plan", p.Name).With("steps", len(p.Steps)).Info("plan loaded")

	artifacts, err := contracts.NewLoader(s.reader).Load(s.cfg.Deployment.ArtifactsDir)
	if err != nil {
		return nil, err
	}
	if err := artifacts.Require(p.Contracts()...); err != nil {
		return nil, fmt.Errorf("artifacts in %s do not cover the plan: %w", s.cfg.Deployment.ArtifactsDir, err)
	}

	bindings, err := configs.LoadBindings(s.cfg)
	if err != nil {
		return nil, err
	}

	codec, err := address.NewCodec(address.Format(s.cfg.Network.AddressFormat))
	if err != nil {
		return nil, err
	}

	store := ledger.NewStore(filepath.Join(s.cfg.Deployment.OutputDir, ledger.FileName), s.reader, s.writer)
	meta, l, err := s.openLedger(store, p, codec, opts)
	if err != nil {
		return nil, err
	}

	return &prepared{
		plan:      p,
		artifacts: artifacts,
		bindings:  bindings,
		codec:     codec,
		store:     store,
		meta:      meta,
		ledger:    l,
	}, nil
}

func (s *Service) openLedger(store *ledger.Store, p *plan.Plan, codec address.Codec, opts RunOptions) (ledger.Metadata, *ledger.Ledger, error) {
	exists, err := store.Exists()
	if err != nil {
		return ledger.Metadata{}, nil, fmt.Errorf("failed to check for ledger: %w", err)
	}
	if exists && !opts.Resume {
		// a run that failed before its first step leaves nothing to protect
		_, previous, err := store.Load()
		if err == nil && previous.Len() == 0 {
			exists = false
		}
	}

	switch {
	case exists && opts.Resume:
		meta, l, err := store.Load()
		if err != nil {
			return ledger.Metadata{}, nil, err
		}
		if meta.Plan != p.Name || meta.AddressFormat != string(codec.Format()) {
			return ledger.Metadata{}, nil, fmt.Errorf("%w: ledger %s belongs to plan '%s' (%s addresses)",
				orchestrator.ErrLedgerMismatch, store.Path(), meta.Plan, meta.AddressFormat)
		}
		s.logger.With("path", store.Path()).With("recorded", l.Len()).Info("resuming from ledger")
		return meta, l, nil

	case exists && !opts.Force:
		return ledger.Metadata{}, nil, fmt.Errorf("%w at %s, pass --resume to continue it or --force to start over", ErrLedgerExists, store.Path())

	case exists:
		s.logger.With("path", store.Path()).Warn("discarding ledger from previous run")

	case opts.Resume:
		s.logger.With("path", store.Path()).Warn("no ledger to resume, starting from the first step")
	}

	return ledger.Metadata{}, ledger.New(), nil
}
