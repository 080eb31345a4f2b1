package contracts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/borderless-pay/migrator/internal/infra/filesystem"
	"github.com/borderless-pay/migrator/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type (
	// Loader reads compiled contracts from an artifacts directory. Two layouts
	// are understood: a single contracts.json produced by the compiler
	// ({"Name": {"abi": [...], "bytecode": "0x..."}}), or one JSON artifact per
	// contract as written by truffle/tronbox (build/contracts/Name.json).
	Loader struct {
		reader filesystem.Reader
		logger *slog.Logger
	}

	combinedEntry struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode string          `json:"bytecode"`
	}

	artifactFile struct {
		ContractName string          `json:"contractName"`
		ABI          json.RawMessage `json:"abi"`
		Bytecode     string          `json:"bytecode"`
	}
)

// NewLoader creates a new artifact loader
func NewLoader(reader filesystem.Reader) *Loader {
	return &Loader{
		reader: reader,
		logger: logger.Named("contracts_loader"),
	}
}

// Load reads every artifact found in dir.
func (l *Loader) Load(dir string) (Set, error) {
	combinedPath := filepath.Join(dir, CombinedFileName)
	exists, err := l.reader.Exists(combinedPath)
	if err != nil {
		return nil, err
	}

	if exists {
		l.logger.With("path", combinedPath).Info("loading combined contract artifacts")
		return l.loadCombined(combinedPath)
	}

	l.logger.With("dir", dir).Info("loading per-contract artifacts")
	return l.loadArtifactDir(dir)
}

func (l *Loader) loadCombined(path string) (Set, error) {
	var result map[string]combinedEntry
	if err := l.reader.ReadJSON(path, &result); err != nil {
		return nil, fmt.Errorf("failed to read compiled contracts: %w", err)
	}

	set := make(Set, len(result))
	for name, entry := range result {
		contract, err := newCompiledContract(name, entry.ABI, entry.Bytecode)
		if err != nil {
			return nil, err
		}
		set[name] = contract
	}

	return set, nil
}

func (l *Loader) loadArtifactDir(dir string) (Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifacts directory '%s': %w", dir, err)
	}

	set := make(Set)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		var artifact artifactFile
		if err := l.reader.ReadJSON(filepath.Join(dir, entry.Name()), &artifact); err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", entry.Name(), err)
		}

		name := artifact.ContractName
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), ".json")
		}
		if _, ok := set[name]; ok {
			return nil, fmt.Errorf("contract '%s' is defined by more than one artifact", name)
		}

		contract, err := newCompiledContract(name, artifact.ABI, artifact.Bytecode)
		if err != nil {
			return nil, err
		}
		set[name] = contract
	}

	return set, nil
}

func newCompiledContract(name string, rawABI json.RawMessage, bytecodeHex string) (CompiledContract, error) {
	if len(rawABI) == 0 {
		rawABI = json.RawMessage("[]")
	}

	parsedABI, err := abi.JSON(strings.NewReader(string(rawABI)))
	if err != nil {
		return CompiledContract{}, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
	}

	bytecodeHex = strings.TrimPrefix(strings.TrimSpace(bytecodeHex), "0x")
	if !isHex(bytecodeHex) {
		return CompiledContract{}, fmt.Errorf("bytecode for %s is not valid hex (unlinked library placeholders?)", name)
	}

	return CompiledContract{
		Name:     name,
		ABI:      parsedABI,
		RawABI:   string(rawABI),
		Bytecode: common.Hex2Bytes(bytecodeHex),
	}, nil
}

func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
