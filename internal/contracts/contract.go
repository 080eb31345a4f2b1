package contracts

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// CombinedFileName is the single-file artifact format written by the compiler.
const CombinedFileName = "contracts.json"

var ErrMissingArtifact = errors.New("missing contract artifact")

type (
	// CompiledContract is the ABI and creation bytecode of one contract.
	CompiledContract struct {
		Name     string
		ABI      abi.ABI
		RawABI   string
		Bytecode []byte
	}

	// Set is the collection of compiled contracts available to a deployment.
	Set map[string]CompiledContract
)

// Get returns the named contract.
func (s Set) Get(name string) (CompiledContract, error) {
	contract, ok := s[name]
	if !ok {
		return CompiledContract{}, fmt.Errorf("%w: '%s'", ErrMissingArtifact, name)
	}
	if len(contract.Bytecode) == 0 {
		return CompiledContract{}, fmt.Errorf("%w: '%s' has no creation bytecode", ErrMissingArtifact, name)
	}

	return contract, nil
}

// Require checks that every name is present and deployable.
func (s Set) Require(names ...string) error {
	var errs []error
	for _, name := range names {
		if _, err := s.Get(name); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Names returns the contract names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}
