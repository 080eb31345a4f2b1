package contracts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/borderless-pay/migrator/internal/infra/docker"
	fsjson "github.com/borderless-pay/migrator/internal/infra/filesystem/json"
	"github.com/stretchr/testify/require"
)

const solcOutput = `{
	"contracts": {
		"/tmp/contracts/Registry.sol:AttestationRegistry": {
			"abi": [{"type":"constructor","inputs":[]}],
			"bin": "6080604052"
		},
		"/tmp/contracts/Registry.sol:IRegistry": {
			"abi": [],
			"bin": ""
		},
		"/tmp/contracts/Pool.sol:LiquidityPool": {
			"abi": "[{\"type\":\"constructor\",\"inputs\":[{\"name\":\"token\",\"type\":\"address\"}]}]",
			"bin": "60806040"
		}
	},
	"version": "0.8.26+commit.8a97fa7a.Linux.g++"
}`

type fakeRunner struct {
	ensured []string
	opts    []docker.RunOptions
	output  docker.Output
	err     error
}

func (f *fakeRunner) EnsureImage(_ context.Context, imageName string) error {
	f.ensured = append(f.ensured, imageName)
	return nil
}

func (f *fakeRunner) Run(_ context.Context, opts docker.RunOptions) (docker.Output, error) {
	f.opts = append(f.opts, opts)
	return f.output, f.err
}

func writeSources(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "contracts")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lending"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "dep"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Registry.sol"), []byte("// registry"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lending", "Pool.sol"), []byte("// pool"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "dep", "Dep.sol"), []byte("// dep"), 0644))

	return dir
}

func TestCompile(t *testing.T) {
	sourcesDir := writeSources(t)
	outputDir := t.TempDir()
	runner := &fakeRunner{output: docker.Output{Stdout: solcOutput}}

	compiler := NewCompiler(runner, fsjson.NewWriter(), "ethereum/solc:0.8.26", sourcesDir, outputDir, true)
	set, err := compiler.Compile(context.Background(), []string{"AttestationRegistry", "LiquidityPool"})
	require.NoError(t, err)
	require.Equal(t, []string{"AttestationRegistry", "LiquidityPool"}, set.Names())

	require.Equal(t, []string{"ethereum/solc:0.8.26"}, runner.ensured)
	require.Len(t, runner.opts, 1)
	require.Equal(t, []string{
		"--combined-json", "abi,bin",
		"--base-path", "/tmp/contracts",
		"--allow-paths", "/tmp/contracts",
		"--optimize",
		"/tmp/contracts/Registry.sol",
		"/tmp/contracts/lending/Pool.sol",
	}, runner.opts[0].Cmd)
	require.Equal(t, []docker.CopyIn{{HostDir: sourcesDir, ContainerDir: "/tmp"}}, runner.opts[0].CopyIn)

	loaded, err := NewLoader(fsjson.NewReader()).Load(outputDir)
	require.NoError(t, err)
	require.Equal(t, set.Names(), loaded.Names())
	require.Equal(t, set["LiquidityPool"].Bytecode, loaded["LiquidityPool"].Bytecode)
	require.Len(t, loaded["LiquidityPool"].ABI.Constructor.Inputs, 1)
}

func TestCompileMissingPlannedContract(t *testing.T) {
	runner := &fakeRunner{output: docker.Output{Stdout: solcOutput}}
	compiler := NewCompiler(runner, fsjson.NewWriter(), "solc", writeSources(t), t.TempDir(), false)

	_, err := compiler.Compile(context.Background(), []string{"LoanManager"})
	require.ErrorIs(t, err, ErrMissingArtifact)
}

func TestCompileRunnerFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("container exited with code 1")}
	compiler := NewCompiler(runner, fsjson.NewWriter(), "solc", writeSources(t), t.TempDir(), false)

	_, err := compiler.Compile(context.Background(), nil)
	require.ErrorContains(t, err, "solc failed")
}

func TestCompileWithoutSources(t *testing.T) {
	compiler := NewCompiler(&fakeRunner{}, fsjson.NewWriter(), "solc", t.TempDir(), t.TempDir(), false)

	_, err := compiler.Compile(context.Background(), nil)
	require.ErrorContains(t, err, "no .sol files")
}

func TestParseCombinedJSONDuplicateNames(t *testing.T) {
	output := `{"contracts": {
		"a/A.sol:Token": {"abi": [], "bin": "00"},
		"b/B.sol:Token": {"abi": [], "bin": "00"}
	}}`

	_, _, err := parseCombinedJSON([]byte(output))
	require.ErrorContains(t, err, "defined in both")
}
