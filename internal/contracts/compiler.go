package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/borderless-pay/migrator/internal/infra/docker"
	"github.com/borderless-pay/migrator/internal/infra/filesystem"
	"github.com/borderless-pay/migrator/internal/logger"
)

const containerSourcesRoot = "/tmp"

type (
	containerRunner interface {
		EnsureImage(ctx context.Context, imageName string) error
		Run(ctx context.Context, opts docker.RunOptions) (docker.Output, error)
	}

	// Compiler compiles Solidity sources with solc running in a container and
	// writes the result as a combined contracts.json artifact.
	Compiler struct {
		runner     containerRunner
		writer     filesystem.Writer
		image      string
		sourcesDir string
		outputDir  string
		optimize   bool
		logger     *slog.Logger
	}

	combinedOutput struct {
		Contracts map[string]struct {
			ABI json.RawMessage `json:"abi"`
			Bin string          `json:"bin"`
		} `json:"contracts"`
		Version string `json:"version"`
	}
)

// NewCompiler creates a new contract compiler
func NewCompiler(runner containerRunner, writer filesystem.Writer, image, sourcesDir, outputDir string, optimize bool) *Compiler {
	return &Compiler{
		runner:     runner,
		writer:     writer,
		image:      image,
		sourcesDir: sourcesDir,
		outputDir:  outputDir,
		optimize:   optimize,
		logger:     logger.Named("contracts_compiler"),
	}
}

// Compile compiles every .sol file under the sources directory. When names is
// not empty, compilation fails unless each named contract was produced.
func (c *Compiler) Compile(ctx context.Context, names []string) (Set, error) {
	c.logger.
		With("sources_dir", c.sourcesDir).
		With("image", c.image).
		Info("starting contract compilation")

	files, err := solidityFiles(c.sourcesDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .sol files found in %s", c.sourcesDir)
	}

	if err := c.runner.EnsureImage(ctx, c.image); err != nil {
		return nil, fmt.Errorf("failed to prepare compiler image: %w", err)
	}

	output, err := c.runner.Run(ctx, docker.RunOptions{
		Image:  c.image,
		Cmd:    c.solcArgs(files),
		CopyIn: []docker.CopyIn{{HostDir: c.sourcesDir, ContainerDir: containerSourcesRoot}},
	})
	if err != nil {
		return nil, fmt.Errorf("solc failed: %w", err)
	}

	if output.Stderr != "" {
		c.logger.With("stderr", output.Stderr).Warn("solc reported warnings")
	}

	set, artifacts, err := parseCombinedJSON([]byte(output.Stdout))
	if err != nil {
		return nil, err
	}

	if err := set.Require(names...); err != nil {
		return nil, fmt.Errorf("compilation did not produce every planned contract: %w", err)
	}

	outputPath := filepath.Join(c.outputDir, CombinedFileName)
	if err := c.writer.WriteJSON(outputPath, artifacts); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", CombinedFileName, err)
	}

	c.logger.
		With("contracts", set.Names()).
		With("path", outputPath).
		Info("contracts compiled successfully")

	return set, nil
}

func (c *Compiler) solcArgs(files []string) []string {
	base := path.Join(containerSourcesRoot, filepath.Base(filepath.Clean(c.sourcesDir)))

	args := []string{"--combined-json", "abi,bin", "--base-path", base, "--allow-paths", base}
	if c.optimize {
		args = append(args, "--optimize")
	}
	for _, file := range files {
		args = append(args, path.Join(base, file))
	}

	return args
}

// solidityFiles lists .sol files under dir as slash-separated relative paths.
func solidityFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || (strings.HasPrefix(d.Name(), ".") && p != dir) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != ".sol" {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources in %s: %w", dir, err)
	}

	slices.Sort(files)
	return files, nil
}

// parseCombinedJSON converts `solc --combined-json abi,bin` output into a
// contract set plus the contracts.json document the loader reads back.
// Contracts without bytecode (interfaces, abstract contracts) are skipped.
func parseCombinedJSON(data []byte) (Set, map[string]combinedEntry, error) {
	var output combinedOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, nil, fmt.Errorf("failed to parse solc output: %w", err)
	}

	set := make(Set)
	artifacts := make(map[string]combinedEntry)
	sources := make(map[string]string)

	for key, compiled := range output.Contracts {
		if compiled.Bin == "" {
			continue
		}

		name := key[strings.LastIndex(key, ":")+1:]
		if previous, ok := sources[name]; ok {
			return nil, nil, fmt.Errorf("contract name '%s' is defined in both %s and %s", name, previous, key)
		}
		sources[name] = key

		rawABI, err := normalizeABI(compiled.ABI)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read ABI of %s: %w", key, err)
		}

		bytecode := "0x" + compiled.Bin
		contract, err := newCompiledContract(name, rawABI, bytecode)
		if err != nil {
			return nil, nil, err
		}

		set[name] = contract
		artifacts[name] = combinedEntry{ABI: rawABI, Bytecode: bytecode}
	}

	return set, artifacts, nil
}

// normalizeABI accepts the ABI either as JSON or as a JSON-encoded string,
// which older solc releases emit.
func normalizeABI(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, `"`) {
		return json.RawMessage(trimmed), nil
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, err
	}

	return json.RawMessage(inner), nil
}
