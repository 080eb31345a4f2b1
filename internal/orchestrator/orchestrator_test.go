package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/borderless-pay/migrator/internal/address"
	"github.com/borderless-pay/migrator/internal/chain"
	"github.com/borderless-pay/migrator/internal/contracts"
	"github.com/borderless-pay/migrator/internal/ledger"
	"github.com/borderless-pay/migrator/internal/plan"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type (
	deployCall struct {
		contract string
		args     []any
	}

	fakeEnv struct {
		calls     []deployCall
		addresses []common.Address
		failAt    map[string]error
		hangAt    map[string]bool
		balance   *big.Int
	}

	mapConfig map[string]string
)

func (c mapConfig) Lookup(key string) (string, bool) {
	v, ok := c[key]
	if v == "" {
		return "", false
	}
	return v, ok
}

func (f *fakeEnv) Deploy(ctx context.Context, contract contracts.CompiledContract, args []any) (chain.Deployment, error) {
	f.calls = append(f.calls, deployCall{contract: contract.Name, args: args})

	if f.hangAt[contract.Name] {
		<-ctx.Done()
		return chain.Deployment{}, ctx.Err()
	}
	if err, ok := f.failAt[contract.Name]; ok {
		return chain.Deployment{}, err
	}

	n := len(f.calls)
	addr := common.BigToAddress(big.NewInt(int64(0xa0 + n)))
	f.addresses = append(f.addresses, addr)

	return chain.Deployment{
		Address:     addr,
		TxHash:      common.BigToHash(big.NewInt(int64(n))),
		BlockNumber: uint64(100 + n),
		GasUsed:     uint64(21_000 * n),
	}, nil
}

func (f *fakeEnv) Balance(context.Context, common.Address) (*big.Int, error) {
	if f.balance == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return f.balance, nil
}

func (f *fakeEnv) Sender() common.Address {
	return common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
}

func contractWithInputs(t *testing.T, name string, inputs ...string) contracts.CompiledContract {
	t.Helper()

	parts := make([]string, len(inputs))
	for i, typ := range inputs {
		parts[i] = `{"name":"a` + string(rune('0'+i)) + `","type":"` + typ + `"}`
	}
	raw := `[{"type":"constructor","inputs":[` + strings.Join(parts, ",") + `]}]`

	parsed, err := abi.JSON(strings.NewReader(raw))
	require.NoError(t, err)

	return contracts.CompiledContract{Name: name, ABI: parsed, RawABI: raw, Bytecode: []byte{0x60, 0x80}}
}

func testCodec(t *testing.T) address.Codec {
	t.Helper()

	codec, err := address.NewCodec(address.FormatTron)
	require.NoError(t, err)
	return codec
}

func mustPlan(t *testing.T, steps ...plan.Step) *plan.Plan {
	t.Helper()

	p, err := plan.New("test", steps)
	require.NoError(t, err)
	return p
}

func TestRunDeploysInOrderAndChainsAddresses(t *testing.T) {
	artifacts := contracts.Set{
		"A": contractWithInputs(t),
		"B": contractWithInputs(t, "address"),
	}
	p := mustPlan(t,
		plan.Step{Index: 0, Contract: "A"},
		plan.Step{Index: 1, Contract: "B", Args: []plan.Binding{plan.Ref(0)}},
	)
	env := &fakeEnv{}
	l := ledger.New()

	err := New(env, mapConfig{}, artifacts, testCodec(t)).Run(context.Background(), p, l)
	require.NoError(t, err)

	require.Len(t, env.calls, 2)
	require.Equal(t, "A", env.calls[0].contract)
	require.Equal(t, "B", env.calls[1].contract)
	require.Equal(t, []any{env.addresses[0]}, env.calls[1].args)

	a, ok := l.Lookup(0)
	require.True(t, ok)
	require.Equal(t, env.addresses[0], a.Address.Address)
	b, ok := l.Lookup(1)
	require.True(t, ok)
	require.Equal(t, env.addresses[1], b.Address.Address)
	require.Equal(t, 2, l.Len())
	require.Equal(t, uint64(102), b.BlockNumber)
	require.Equal(t, uint64(42_000), b.GasUsed)

	require.True(t, strings.HasPrefix(b.Address.Display, "T"))
	require.Equal(t, "41"+strings.ToLower(env.addresses[1].Hex()[2:]), b.Address.Hex)
}

func TestRunResolvesConfigAndLiterals(t *testing.T) {
	artifacts := contracts.Set{
		"StableCoinCore": contractWithInputs(t, "string", "uint8", "address"),
	}
	p := mustPlan(t, plan.Step{
		Index:    0,
		Contract: "StableCoinCore",
		Args:     []plan.Binding{plan.Literal("GBPa"), plan.Literal(6), plan.Config("PUBLIC_ADDRESS")},
	})
	env := &fakeEnv{}
	cfg := mapConfig{"PUBLIC_ADDRESS": "0x00000000000000000000000000000000000000aa"}

	err := New(env, cfg, artifacts, testCodec(t)).Run(context.Background(), p, ledger.New())
	require.NoError(t, err)

	require.Len(t, env.calls, 1)
	require.Equal(t, []any{"GBPa", uint8(6), common.HexToAddress("0xaa")}, env.calls[0].args)
}

func TestRunAbortsOnRejection(t *testing.T) {
	artifacts := contracts.Set{
		"A": contractWithInputs(t),
		"B": contractWithInputs(t, "address"),
	}
	p := mustPlan(t,
		plan.Step{Index: 0, Contract: "A"},
		plan.Step{Index: 1, Contract: "B", Args: []plan.Binding{plan.Ref(0)}},
	)
	cause := errors.New("insufficient funds for gas")
	env := &fakeEnv{failAt: map[string]error{"A": cause}}
	l := ledger.New()

	err := New(env, mapConfig{}, artifacts, testCodec(t)).Run(context.Background(), p, l)
	require.ErrorIs(t, err, ErrDeploymentRejected)
	require.ErrorIs(t, err, cause)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, 0, stepErr.Index)
	require.Equal(t, "DeploymentRejected", KindName(err))

	require.Len(t, env.calls, 1)
	require.Equal(t, 0, l.Len())
}

func TestRunMissingConfigurationSubmitsNothing(t *testing.T) {
	artifacts := contracts.Set{
		"A": contractWithInputs(t, "address"),
	}
	p := mustPlan(t, plan.Step{Index: 0, Contract: "A", Args: []plan.Binding{plan.Config("USDT_CONTRACT_ADDRESS")}})
	env := &fakeEnv{}
	l := ledger.New()

	err := New(env, mapConfig{"USDT_CONTRACT_ADDRESS": ""}, artifacts, testCodec(t)).Run(context.Background(), p, l)
	require.ErrorIs(t, err, ErrMissingConfiguration)
	require.Contains(t, err.Error(), "USDT_CONTRACT_ADDRESS")
	require.Empty(t, env.calls)
	require.Equal(t, 0, l.Len())
}

func TestRunStopsAtFirstFailureKeepingEarlierEntries(t *testing.T) {
	artifacts := contracts.Set{
		"A": contractWithInputs(t),
		"B": contractWithInputs(t, "address"),
		"C": contractWithInputs(t, "address"),
	}
	p := mustPlan(t,
		plan.Step{Index: 0, Contract: "A"},
		plan.Step{Index: 1, Contract: "B", Args: []plan.Binding{plan.Config("TREASURY")}},
		plan.Step{Index: 2, Contract: "C", Args: []plan.Binding{plan.Ref(1)}},
	)
	env := &fakeEnv{}
	l := ledger.New()

	var persisted []int
	persist := func(l *ledger.Ledger) error {
		persisted = append(persisted, l.Len())
		return nil
	}

	err := New(env, mapConfig{}, artifacts, testCodec(t), WithPersist(persist)).Run(context.Background(), p, l)
	require.ErrorIs(t, err, ErrMissingConfiguration)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, 1, stepErr.Index)

	require.Len(t, env.calls, 1)
	require.Equal(t, 1, l.Len())
	require.Equal(t, []int{1}, persisted)
}

func TestResolveUnresolvedDependency(t *testing.T) {
	o := New(&fakeEnv{}, mapConfig{}, contracts.Set{}, testCodec(t))

	step := plan.Step{Index: 2, Name: "C", Contract: "C", Args: []plan.Binding{plan.Ref(1)}}
	_, err := o.resolve(step, ledger.New())
	require.ErrorIs(t, err, ErrUnresolvedDependency)

	forward := plan.Step{Index: 1, Name: "B", Contract: "B", Args: []plan.Binding{plan.Ref(1)}}
	_, err = o.resolve(forward, ledger.New())
	require.ErrorIs(t, err, ErrUnresolvedDependency)
}

func TestRunUnresolvedDependencyMakesNoNetworkCall(t *testing.T) {
	artifacts := contracts.Set{
		"A": contractWithInputs(t),
		"B": contractWithInputs(t, "address"),
	}
	p := mustPlan(t,
		plan.Step{Index: 0, Contract: "A"},
		plan.Step{Index: 1, Contract: "B", Args: []plan.Binding{plan.Ref(0)}},
	)
	env := &fakeEnv{}
	o := New(env, mapConfig{}, artifacts, testCodec(t))

	// drop step 0 from the plan view the orchestrator sees, leaving step 1 dangling
	partial := &plan.Plan{Name: p.Name, Steps: p.Steps[1:]}
	err := o.Run(context.Background(), partial, ledger.New())
	require.ErrorIs(t, err, ErrUnresolvedDependency)
	require.Empty(t, env.calls)
}

func TestRunTimeout(t *testing.T) {
	artifacts := contracts.Set{"A": contractWithInputs(t)}
	p := mustPlan(t, plan.Step{Index: 0, Contract: "A"})
	env := &fakeEnv{hangAt: map[string]bool{"A": true}}
	l := ledger.New()

	err := New(env, mapConfig{}, artifacts, testCodec(t), WithStepTimeout(20*time.Millisecond)).Run(context.Background(), p, l)
	require.ErrorIs(t, err, ErrDeploymentTimeout)
	require.Equal(t, "DeploymentTimeout", KindName(err))
	require.Equal(t, 0, l.Len())
}

func TestRunCancelledContextIsNotATimeout(t *testing.T) {
	artifacts := contracts.Set{"A": contractWithInputs(t)}
	p := mustPlan(t, plan.Step{Index: 0, Contract: "A"})
	env := &fakeEnv{hangAt: map[string]bool{"A": true}}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	err := New(env, mapConfig{}, artifacts, testCodec(t)).Run(ctx, p, ledger.New())
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrDeploymentTimeout)
}

func TestRunInvalidArgument(t *testing.T) {
	artifacts := contracts.Set{"A": contractWithInputs(t, "uint8")}
	p := mustPlan(t, plan.Step{Index: 0, Contract: "A", Args: []plan.Binding{plan.Literal(300)}})
	env := &fakeEnv{}

	err := New(env, mapConfig{}, artifacts, testCodec(t)).Run(context.Background(), p, ledger.New())
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Empty(t, env.calls)
}

func TestRunInsufficientBalance(t *testing.T) {
	artifacts := contracts.Set{"A": contractWithInputs(t)}
	p := mustPlan(t, plan.Step{Index: 0, Contract: "A"})
	env := &fakeEnv{balance: big.NewInt(10)}

	err := New(env, mapConfig{}, artifacts, testCodec(t), WithMinBalance(big.NewInt(100))).Run(context.Background(), p, ledger.New())
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Empty(t, env.calls)
}

func TestRunResumesFromLedgerPrefix(t *testing.T) {
	codec := testCodec(t)
	artifacts := contracts.Set{
		"A": contractWithInputs(t),
		"B": contractWithInputs(t, "address"),
	}
	p := mustPlan(t,
		plan.Step{Index: 0, Contract: "A"},
		plan.Step{Index: 1, Contract: "B", Args: []plan.Binding{plan.Ref(0)}},
	)

	previous := common.HexToAddress("0x00000000000000000000000000000000000000a0")
	l := ledger.New()
	require.NoError(t, l.Record(ledger.Entry{Index: 0, Name: "A", Contract: "A", Address: address.Encode(codec, previous)}))

	env := &fakeEnv{}
	err := New(env, mapConfig{}, artifacts, codec).Run(context.Background(), p, l)
	require.NoError(t, err)

	require.Len(t, env.calls, 1)
	require.Equal(t, "B", env.calls[0].contract)
	require.Equal(t, []any{previous}, env.calls[0].args)
	require.Equal(t, 2, l.Len())
}

func TestRunRejectsForeignLedger(t *testing.T) {
	codec := testCodec(t)
	artifacts := contracts.Set{"A": contractWithInputs(t)}
	p := mustPlan(t, plan.Step{Index: 0, Contract: "A"})

	l := ledger.New()
	require.NoError(t, l.Record(ledger.Entry{Index: 0, Name: "Other", Contract: "Other", Address: address.Encode(codec, common.HexToAddress("0x01"))}))

	env := &fakeEnv{}
	err := New(env, mapConfig{}, artifacts, codec).Run(context.Background(), p, l)
	require.ErrorIs(t, err, ErrLedgerMismatch)
	require.Empty(t, env.calls)
}

func TestRunPersistFailureStopsRun(t *testing.T) {
	artifacts := contracts.Set{"A": contractWithInputs(t), "B": contractWithInputs(t)}
	p := mustPlan(t, plan.Step{Index: 0, Contract: "A"}, plan.Step{Index: 1, Contract: "B"})
	env := &fakeEnv{}

	persist := func(*ledger.Ledger) error { return errors.New("disk full") }
	err := New(env, mapConfig{}, artifacts, testCodec(t), WithPersist(persist)).Run(context.Background(), p, ledger.New())
	require.ErrorContains(t, err, "disk full")
	require.Len(t, env.calls, 1)
}

func TestCheckReportsAllProblems(t *testing.T) {
	artifacts := contracts.Set{
		"A": contractWithInputs(t, "address"),
		"B": contractWithInputs(t, "address", "address"),
	}
	p := mustPlan(t,
		plan.Step{Index: 0, Contract: "A", Args: []plan.Binding{plan.Config("PUBLIC_ADDRESS")}},
		plan.Step{Index: 1, Contract: "B", Args: []plan.Binding{plan.Ref(0), plan.Config("TREASURY")}},
		plan.Step{Index: 2, Contract: "Missing"},
	)
	env := &fakeEnv{}
	cfg := mapConfig{"PUBLIC_ADDRESS": "0x00000000000000000000000000000000000000aa"}

	previews, err := New(env, cfg, artifacts, testCodec(t)).Check(p, ledger.New())
	require.ErrorIs(t, err, ErrMissingConfiguration)
	require.ErrorIs(t, err, contracts.ErrMissingArtifact)
	require.NotErrorIs(t, err, ErrUnresolvedDependency)

	require.Len(t, previews, 3)
	require.Equal(t, []string{"PUBLIC_ADDRESS = 0x00000000000000000000000000000000000000aa"}, previews[0].Args)
	require.Equal(t, []string{"<address of step 0 (A)>", "TREASURY = <missing>"}, previews[1].Args)
	require.Empty(t, env.calls)
}

func TestCheckValidPlan(t *testing.T) {
	artifacts := contracts.Set{
		"A": contractWithInputs(t),
		"B": contractWithInputs(t, "address"),
	}
	p := mustPlan(t,
		plan.Step{Index: 0, Contract: "A"},
		plan.Step{Index: 1, Contract: "B", Args: []plan.Binding{plan.Ref(0)}},
	)

	previews, err := New(&fakeEnv{}, mapConfig{}, artifacts, testCodec(t)).Check(p, ledger.New())
	require.NoError(t, err)
	require.Len(t, previews, 2)
}
