package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newRPCServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := results[req.Method]; ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	return server
}

func TestDialAndBalance(t *testing.T) {
	server := newRPCServer(t, map[string]string{
		"eth_blockNumber": "0x10",
		"eth_chainId":     "0xcd8690dc",
		"eth_getBalance":  "0xde0b6b3a7640000",
	})

	client, err := Dial(context.Background(), Options{
		RPCURL:      server.URL,
		PrivateKey:  devKey,
		GasLimit:    1_000_000,
		WaitTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()

	require.Equal(t, big.NewInt(3448148188), client.ChainID())
	require.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), client.Sender())

	balance, err := client.Balance(context.Background(), client.Sender())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000_000_000_000_000), balance)
}

func TestDialTimesOut(t *testing.T) {
	server := newRPCServer(t, map[string]string{})

	_, err := Dial(context.Background(), Options{
		RPCURL:      server.URL,
		PrivateKey:  devKey,
		WaitTimeout: 1500 * time.Millisecond,
	})
	require.ErrorContains(t, err, "timed out waiting for RPC")
}

func TestDialRejectsBadKey(t *testing.T) {
	_, err := Dial(context.Background(), Options{RPCURL: "http://127.0.0.1:1", PrivateKey: "nope"})
	require.ErrorContains(t, err, "failed to parse private key")
}

func TestTokenBalance(t *testing.T) {
	server := newRPCServer(t, map[string]string{
		"eth_blockNumber": "0x10",
		"eth_chainId":     "0x1",
		"eth_call":        "0x00000000000000000000000000000000000000000000000000000000000f4240",
	})

	client, err := Dial(context.Background(), Options{RPCURL: server.URL, PrivateKey: devKey, WaitTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	token := common.HexToAddress("0xa614f803b6fd780986a42c78ec9c7f77e6ded13c")
	balance, err := client.TokenBalance(context.Background(), token, client.Sender())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000), balance)
}

func TestTokenBalanceCallData(t *testing.T) {
	account := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	data, err := tokenABI.Pack("balanceOf", account)
	require.NoError(t, err)
	require.Len(t, data, 4+32)
	require.Equal(t, "70a08231", common.Bytes2Hex(data[:4]))
	require.Equal(t, account, common.BytesToAddress(data[4:]))
}

func TestTokenBalanceRejectsEmptyResult(t *testing.T) {
	server := newRPCServer(t, map[string]string{
		"eth_blockNumber": "0x10",
		"eth_chainId":     "0x1",
		"eth_call":        "0x",
	})

	client, err := Dial(context.Background(), Options{RPCURL: server.URL, PrivateKey: devKey, WaitTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.TokenBalance(context.Background(), common.HexToAddress("0x01"), client.Sender())
	require.ErrorContains(t, err, "failed to unpack balanceOf result")
}
