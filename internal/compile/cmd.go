package compile

import (
	"fmt"
	"log/slog"

	"github.com/borderless-pay/migrator/configs"
	"github.com/borderless-pay/migrator/internal/cli"
	"github.com/borderless-pay/migrator/internal/contracts"
	"github.com/borderless-pay/migrator/internal/infra/docker"
	fsjson "github.com/borderless-pay/migrator/internal/infra/filesystem/json"
	"github.com/borderless-pay/migrator/internal/plan"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "compile",
	Short: "Compile the Solidity sources of the plan's contracts",
	Long:  "Compiles Solidity contracts with solc in a container and writes contracts.json with ABIs and bytecodes into the artifacts directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("running contract compilation command")

		if err := configs.Values.Compiler.Validate(); err != nil {
			return err
		}
		if err := configs.Values.Deployment.Validate(); err != nil {
			return err
		}

		p, err := plan.Resolve(configs.Values.Deployment.Plan)
		if err != nil {
			return err
		}

		dockerClient, err := docker.New()
		if err != nil {
			return fmt.Errorf("failed to create docker client: %w", err)
		}
		defer dockerClient.Close()

		compiler := contracts.NewCompiler(
			dockerClient,
			fsjson.NewWriter(),
			configs.Values.Compiler.Image,
			configs.Values.Compiler.SourcesDir,
			configs.Values.Deployment.ArtifactsDir,
			configs.Values.Compiler.Optimize,
		)

		contractsToCompile := p.Contracts()
		slog.Info("starting contract compilation", "contracts", contractsToCompile)
		if _, err := compiler.Compile(cmd.Context(), contractsToCompile); err != nil {
			return fmt.Errorf("contract compilation failed: %w", err)
		}

		slog.Info("contract compilation completed successfully")

		return nil
	},
}

var (
	stringFlags = []cli.FlagDef[string]{
		{"image", "compiler.image", "", "solc container image"},
		{"sources-dir", "compiler.sources-dir", "", "Directory holding the Solidity sources"},
	}

	boolFlags = []cli.FlagDef[bool]{
		{"optimize", "compiler.optimize", false, "Enable the solc optimizer"},
	}
)

func init() {
	if err := cli.DeclareFlags(CMD.Flags(), stringFlags); err != nil {
		panic(err)
	}
	if err := cli.DeclareFlags(CMD.Flags(), boolFlags); err != nil {
		panic(err)
	}
}
