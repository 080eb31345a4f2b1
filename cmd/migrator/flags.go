package main

import (
	"github.com/borderless-pay/migrator/internal/cli"
)

var (
	stringFlags = []cli.FlagDef[string]{
		// Logging
		{"log-level", "log.level", "", "Log level (debug, info, warn, error)"},
		{"log-format", "log.format", "", "Log format (json or text)"},

		// Network
		{"rpc-url", "network.rpc-url", "", "JSON-RPC URL of the execution environment"},
		{"private-key", "network.private-key", "", "Deployer private key (prefer MIGRATOR_NETWORK_PRIVATE_KEY)"},
		{"address-format", "network.address-format", "", "Address display format (evm or tron)"},
		{"deployment-timeout", "network.deployment-timeout", "", "Per-step confirmation timeout, e.g. 2m"},
		{"rpc-wait-timeout", "network.rpc-wait-timeout", "", "How long to wait for the RPC endpoint to answer"},
		{"min-balance", "network.min-balance", "", "Refuse to deploy while the deployer holds less than this (smallest unit, 0 disables)"},

		// Deployment
		{"plan", "deployment.plan", "", "Plan file, empty for the embedded plan"},
		{"artifacts-dir", "deployment.artifacts-dir", "", "Directory holding compiled contract artifacts"},
		{"output-dir", "deployment.output-dir", "", "Directory for ledger.json and output.yaml"},

		// Bindings
		{"bindings-file", "bindings-file", "", "dotenv file with external values referenced by the plan"},
	}

	intFlags = []cli.FlagDef[int]{
		{"gas-limit", "network.gas-limit", 0, "Gas (energy) limit per contract creation"},
	}
)

func init() {
	if err := cli.DeclareFlags(rootCmd.PersistentFlags(), stringFlags); err != nil {
		panic(err)
	}
	if err := cli.DeclareFlags(rootCmd.PersistentFlags(), intFlags); err != nil {
		panic(err)
	}
}
