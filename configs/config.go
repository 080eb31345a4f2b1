package configs

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

var Values Config

type (
	AddressFormat string
	LogFormat     string

	Config struct {
		Log          Log               `mapstructure:"log"`
		Network      Network           `mapstructure:"network"`
		Deployment   Deployment        `mapstructure:"deployment"`
		Compiler     Compiler          `mapstructure:"compiler"`
		Bindings     map[string]string `mapstructure:"bindings"`
		BindingsFile string            `mapstructure:"bindings-file"`
	}

	Log struct {
		Level  string    `mapstructure:"level"`
		Format LogFormat `mapstructure:"format"`
	}

	Network struct {
		RPCURL            string        `mapstructure:"rpc-url"`
		PrivateKey        string        `mapstructure:"private-key"`
		AddressFormat     AddressFormat `mapstructure:"address-format"`
		GasLimit          uint64        `mapstructure:"gas-limit"`
		DeploymentTimeout time.Duration `mapstructure:"deployment-timeout"`
		RPCWaitTimeout    time.Duration `mapstructure:"rpc-wait-timeout"`
		MinBalance        string        `mapstructure:"min-balance"`
	}

	Deployment struct {
		Plan         string `mapstructure:"plan"`
		ArtifactsDir string `mapstructure:"artifacts-dir"`
		OutputDir    string `mapstructure:"output-dir"`
	}

	Compiler struct {
		Image      string `mapstructure:"image"`
		SourcesDir string `mapstructure:"sources-dir"`
		Optimize   bool   `mapstructure:"optimize"`
	}
)

const (
	AddressFormatEVM  AddressFormat = "evm"
	AddressFormatTron AddressFormat = "tron"

	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// MinBalanceWei parses network.min-balance. A zero result disables the preflight check.
func (c *Network) MinBalanceWei() (*big.Int, error) {
	if c.MinBalance == "" {
		return new(big.Int), nil
	}

	value, ok := new(big.Int).SetString(c.MinBalance, 0)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("network.min-balance is not a valid amount: '%s'", c.MinBalance)
	}

	return value, nil
}

func (c *Network) Validate() error {
	var errs []error

	if c.RPCURL == "" {
		errs = append(errs, errors.New("network.rpc-url is required"))
	}
	if c.PrivateKey == "" {
		errs = append(errs, errors.New("network.private-key is required"))
	}
	if c.AddressFormat != AddressFormatEVM && c.AddressFormat != AddressFormatTron {
		errs = append(errs, errors.New("network.address-format must be either 'evm' or 'tron'"))
	}
	if c.GasLimit == 0 {
		errs = append(errs, errors.New("network.gas-limit is required"))
	}
	if c.DeploymentTimeout <= 0 {
		errs = append(errs, errors.New("network.deployment-timeout must be positive"))
	}
	if _, err := c.MinBalanceWei(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("network configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (c *Deployment) Validate() error {
	var errs []error

	if c.ArtifactsDir == "" {
		errs = append(errs, errors.New("deployment.artifacts-dir is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("deployment.output-dir is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("deployment configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (c *Compiler) Validate() error {
	var errs []error

	if c.Image == "" {
		errs = append(errs, errors.New("compiler.image is required"))
	}
	if c.SourcesDir == "" {
		errs = append(errs, errors.New("compiler.sources-dir is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("compiler configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}
