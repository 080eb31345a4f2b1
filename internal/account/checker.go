package account

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/borderless-pay/migrator/internal/address"
	"github.com/borderless-pay/migrator/internal/logger"
	"github.com/ethereum/go-ethereum/common"
)

type (
	balanceReader interface {
		Balance(ctx context.Context, account common.Address) (*big.Int, error)
		TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
	}

	// Checker reads native and token balances of an account
	Checker struct {
		client balanceReader
		codec  address.Codec
		logger *slog.Logger
	}

	// Report contains balance information
	Report struct {
		Account      address.ContractAddress
		Balance      *big.Int
		Token        *address.ContractAddress
		TokenBalance *big.Int
	}
)

func NewChecker(client balanceReader, codec address.Codec) *Checker {
	return &Checker{
		client: client,
		codec:  codec,
		logger: logger.Named("balance_checker"),
	}
}

// Check reads the balance of account, and its balance of token when token is not empty.
func (c *Checker) Check(ctx context.Context, account common.Address, token string) (Report, error) {
	report := Report{Account: address.Encode(c.codec, account)}

	balance, err := c.client.Balance(ctx, account)
	if err != nil {
		return Report{}, err
	}
	report.Balance = balance

	if token != "" {
		tokenAddr, err := address.Decode(c.codec, token)
		if err != nil {
			return Report{}, fmt.Errorf("invalid token address: %w", err)
		}

		tokenBalance, err := c.client.TokenBalance(ctx, tokenAddr.Address, account)
		if err != nil {
			return Report{}, err
		}
		report.Token = &tokenAddr
		report.TokenBalance = tokenBalance
	}

	c.logger.
		With("account", report.Account.Display).
		With("balance", report.Balance.String()).
		Debug("balance checked")

	return report, nil
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "account: %s (%s)\n", r.Account.Display, r.Account.Hex)
	fmt.Fprintf(&b, "balance: %s\n", r.Balance)
	if r.Token != nil {
		fmt.Fprintf(&b, "token: %s\n", r.Token.Display)
		fmt.Fprintf(&b, "token balance: %s\n", r.TokenBalance)
	}
	return b.String()
}
