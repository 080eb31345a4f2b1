package account

import (
	"fmt"
	"log/slog"

	"github.com/borderless-pay/migrator/configs"
	"github.com/borderless-pay/migrator/internal/address"
	"github.com/borderless-pay/migrator/internal/chain"
	"github.com/spf13/cobra"
)

var token string

var CMD = &cobra.Command{
	Use:   "account",
	Short: "Inspect the deployer account and convert addresses",
}

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Show the native (and optionally token) balance of an account, the deployer by default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configs.Values.Network.Validate(); err != nil {
			return err
		}

		codec, err := address.NewCodec(address.Format(configs.Values.Network.AddressFormat))
		if err != nil {
			return err
		}

		client, err := chain.Dial(cmd.Context(), chain.Options{
			RPCURL:      configs.Values.Network.RPCURL,
			PrivateKey:  configs.Values.Network.PrivateKey,
			GasLimit:    configs.Values.Network.GasLimit,
			WaitTimeout: configs.Values.Network.RPCWaitTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to network: %w", err)
		}
		defer client.Close()

		account := client.Sender()
		if len(args) == 1 {
			if account, err = codec.Parse(args[0]); err != nil {
				return err
			}
		}

		report, err := NewChecker(client, codec).Check(cmd.Context(), account, token)
		if err != nil {
			return err
		}

		_, err = fmt.Fprint(cmd.OutOrStdout(), report.String())
		return err
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <address>",
	Short: "Print an address in both encodings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := address.NewCodec(address.Format(configs.Values.Network.AddressFormat))
		if err != nil {
			return err
		}

		converted, err := address.Decode(codec, args[0])
		if err != nil {
			return err
		}

		slog.Debug("address converted", "input", args[0])
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "hex: %s\ndisplay: %s\nevm: %s\n",
			converted.Hex, converted.Display, converted.Address.Hex())
		return err
	},
}

func init() {
	balanceCmd.Flags().StringVar(&token, "token", "", "Also report the balance of this token contract")
	CMD.AddCommand(balanceCmd)
	CMD.AddCommand(convertCmd)
}
