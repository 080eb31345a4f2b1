package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/borderless-pay/migrator/internal/address"
	"github.com/borderless-pay/migrator/internal/contracts"
	"github.com/borderless-pay/migrator/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var ErrReverted = errors.New("contract creation reverted")

const tokenABIJSON = `[{"type":"function","name":"balanceOf","stateMutability":"view",
	"inputs":[{"name":"account","type":"address"}],
	"outputs":[{"name":"","type":"uint256"}]}]`

var tokenABI = mustParseABI(tokenABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

type (
	Options struct {
		RPCURL     string
		PrivateKey string
		GasLimit   uint64
		// WaitTimeout bounds how long Dial waits for the node to answer.
		WaitTimeout time.Duration
	}

	// Deployment is a confirmed contract creation.
	Deployment struct {
		Address     common.Address
		TxHash      common.Hash
		BlockNumber uint64
		GasUsed     uint64
	}

	// Client is the execution environment handle: it creates contracts from the
	// configured deployer account and reads balances.
	Client struct {
		rpc        *ethclient.Client
		privateKey *ecdsa.PrivateKey
		sender     common.Address
		chainID    *big.Int
		gasLimit   uint64
		logger     *slog.Logger
	}
)

// Dial connects to the node, waiting for it to become reachable, and loads the chain ID.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	log := logger.Named("chain_client")

	privateKey, err := address.PrivateKeyFromHex(opts.PrivateKey)
	if err != nil {
		return nil, err
	}
	sender, err := address.FromPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	log.With("url", opts.RPCURL).Info("waiting for RPC")
	rpc, err := waitForRPC(ctx, opts.RPCURL, opts.WaitTimeout)
	if err != nil {
		return nil, err
	}

	log.Info("fetching chain ID")
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	log.With("chain_id", chainID).With("sender", sender.Hex()).Info("chain ID was fetched")

	return &Client{
		rpc:        rpc,
		privateKey: privateKey,
		sender:     sender,
		chainID:    chainID,
		gasLimit:   opts.GasLimit,
		logger:     log,
	}, nil
}

func waitForRPC(ctx context.Context, url string, timeout time.Duration) (*ethclient.Client, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastErr error
	for {
		client, err := ethclient.DialContext(ctx, url)
		if err == nil {
			if _, err = client.BlockNumber(ctx); err == nil {
				return client, nil
			}
			client.Close()
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for RPC at %s: %w", url, errors.Join(ctx.Err(), lastErr))
		case <-ticker.C:
		}
	}
}

// Close closes the RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID returns the chain ID reported by the node at dial time.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Sender returns the deployer account.
func (c *Client) Sender() common.Address {
	return c.sender
}

// Balance returns the latest balance of account.
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.rpc.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}

// Deploy submits the creation transaction for contract and blocks until it is
// mined. A mined but failed creation returns ErrReverted.
func (c *Client) Deploy(ctx context.Context, contract contracts.CompiledContract, args []any) (Deployment, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, c.chainID)
	if err != nil {
		return Deployment{}, fmt.Errorf("failed to create transactor: %w", err)
	}

	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return Deployment{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	auth.Context = ctx
	auth.GasLimit = c.gasLimit
	auth.GasPrice = gasPrice

	predicted, tx, _, err := bind.DeployContract(auth, contract.ABI, contract.Bytecode, c.rpc, args...)
	if err != nil {
		return Deployment{}, fmt.Errorf("failed to deploy contract: %w", err)
	}

	c.logger.
		With("contract", contract.Name).
		With("address", predicted.Hex()).
		With("tx_hash", tx.Hash().Hex()).
		Info("contract deployment transaction sent")

	receipt, err := bind.WaitMined(ctx, c.rpc, tx)
	if err != nil {
		return Deployment{}, fmt.Errorf("failed to wait for transaction %s: %w", tx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return Deployment{}, fmt.Errorf("%w: transaction %s mined with status %d", ErrReverted, tx.Hash().Hex(), receipt.Status)
	}

	deployed := receipt.ContractAddress
	if deployed == (common.Address{}) {
		deployed = predicted
	}

	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}

	return Deployment{
		Address:     deployed,
		TxHash:      tx.Hash(),
		BlockNumber: blockNumber,
		GasUsed:     receipt.GasUsed,
	}, nil
}

// TokenBalance returns the ERC20/TRC20 balanceOf(account) of token.
func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := tokenABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	out, err := tokenABI.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result from %s: %w", token.Hex(), err)
	}

	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T from %s", out[0], token.Hex())
	}

	return balance, nil
}
