package output

import (
	"gopkg.in/yaml.v3"
)

type (
	Model struct {
		Network   Network                   `yaml:"network"`
		Contracts map[string]ContractConfig `yaml:"contracts"`
	}
	Network struct {
		ChainID       uint64 `yaml:"chain-id"`
		RPCURL        string `yaml:"rpc-url"`
		AddressFormat string `yaml:"address-format"`
		Deployer      string `yaml:"deployer"`
		Plan          string `yaml:"plan"`
	}

	ContractConfig struct {
		Step     int                `yaml:"step"`
		Contract string             `yaml:"contract"`
		Hex      string             `yaml:"hex"`
		Address  string             `yaml:"address"`
		TxHash   string             `yaml:"tx-hash,omitempty"`
		ABI      SingleQuotedString `yaml:"abi"`
	}

	SingleQuotedString string
)

func (s SingleQuotedString) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Value: string(s),
	}
	return node, nil
}
