package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/borderless-pay/migrator/configs"
	"github.com/borderless-pay/migrator/internal/account"
	"github.com/borderless-pay/migrator/internal/compile"
	"github.com/borderless-pay/migrator/internal/deploy"
	"github.com/borderless-pay/migrator/internal/logger"
	"github.com/borderless-pay/migrator/internal/orchestrator"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName   = "migrator"
	envPrefix = "MIGRATOR"
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "CLI for deploying the contract suite in a fixed, ordered plan",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Initialize(slog.LevelInfo)

		if err := configs.SetDefaults(viper.GetViper()); err != nil {
			return err
		}

		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if execPath, err := os.Executable(); err == nil {
			execDir := filepath.Dir(execPath)
			viper.AddConfigPath(execDir)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")

		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()

		// Try to read config file, but don't fail if it doesn't exist
		// Flags, env and embedded defaults can provide all necessary configuration
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				slog.Debug("no config file found, will rely on flags and defaults")
			} else {
				const errMsg = "error reading config file"
				slog.With("err", err.Error()).Error(errMsg)
				return errors.Join(err, errors.New(errMsg))
			}
		} else {
			slog.With("config_file", viper.ConfigFileUsed()).Debug("config file loaded")
		}

		if err := viper.Unmarshal(&configs.Values); err != nil {
			const errMsg = "unable to decode application config"
			slog.With("err", err.Error()).Error(errMsg)
			return errors.Join(err, errors.New(errMsg))
		}

		logger.InitializeWithFormat(logger.ParseLevel(configs.Values.Log.Level), string(configs.Values.Log.Format))

		slog.With("config_file", viper.ConfigFileUsed()).
			With("plan", configs.Values.Deployment.Plan).
			With("rpc_url", configs.Values.Network.RPCURL).
			Debug("configuration loaded")

		return nil
	},
}

func main() {
	rootCmd.AddCommand(deploy.CMD)
	rootCmd.AddCommand(compile.CMD)
	rootCmd.AddCommand(account.CMD)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		log := slog.With("kind", orchestrator.KindName(err)).With("err", err.Error())

		var stepErr *orchestrator.StepError
		if errors.As(err, &stepErr) {
			log = log.With("step_index", stepErr.Index).With("step", stepErr.Name)
		}

		log.Error("failed to execute root command")
		os.Exit(1)
	}
}
