package deploy

import (
	"fmt"
	"log/slog"

	"github.com/borderless-pay/migrator/configs"
	fsjson "github.com/borderless-pay/migrator/internal/infra/filesystem/json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	resume bool
	force  bool
)

var CMD = &cobra.Command{
	Use:   "deploy",
	Short: "Run the deployment plan against the configured network",
	Long: "Deploys every step of the plan in index order, recording each contract address in the ledger. " +
		"The first failing step aborts the run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("starting deploy command. Validating config")

		if err := validate(configs.Values, true); err != nil {
			return err
		}

		slog.Info("config validation successful. Starting deployment...")

		svc := NewService(configs.Values, fsjson.NewReader(), fsjson.NewWriter())
		if err := svc.Deploy(cmd.Context(), RunOptions{Resume: resume, Force: force}); err != nil {
			return fmt.Errorf("deployment failed: %w", err)
		}

		slog.Info("deployment completed successfully")

		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the resolved plan without deploying anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validate(configs.Values, false); err != nil {
			return err
		}

		svc := NewService(configs.Values, fsjson.NewReader(), fsjson.NewWriter())
		previews, checkErr := svc.Plan(RunOptions{Resume: true})

		if len(previews) > 0 {
			data, err := yaml.Marshal(previews)
			if err != nil {
				return fmt.Errorf("failed to marshal plan preview: %w", err)
			}
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return err
			}
		}

		if checkErr != nil {
			return fmt.Errorf("plan check failed: %w", checkErr)
		}

		slog.Info("plan check passed", "steps", len(previews))

		return nil
	},
}

func init() {
	CMD.Flags().BoolVar(&resume, "resume", false, "Continue from the ledger of an interrupted run")
	CMD.Flags().BoolVar(&force, "force", false, "Discard the ledger of a previous run and start over")
	CMD.AddCommand(planCmd)
}

func validate(cfg configs.Config, network bool) error {
	if network {
		if err := cfg.Network.Validate(); err != nil {
			return err
		}
	}

	return cfg.Deployment.Validate()
}
