package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/borderless-pay/migrator/internal/contracts"
	"github.com/borderless-pay/migrator/internal/infra/filesystem"
	"github.com/borderless-pay/migrator/internal/ledger"
	"github.com/borderless-pay/migrator/internal/logger"
	"gopkg.in/yaml.v3"
)

// FileName is the operator-facing summary written next to the ledger.
const FileName = "output.yaml"

type Generator struct {
	writer filesystem.Writer
	logger *slog.Logger
}

func NewGenerator(writer filesystem.Writer) *Generator {
	return &Generator{
		writer: writer,
		logger: logger.Named("output_generator"),
	}
}

// Build assembles the summary of every recorded step, keyed by step name.
func (g *Generator) Build(network Network, l *ledger.Ledger, artifacts contracts.Set) *Model {
	model := &Model{
		Network:   network,
		Contracts: make(map[string]ContractConfig, l.Len()),
	}

	for _, entry := range l.Entries() {
		model.Contracts[entry.Name] = ContractConfig{
			Step:     entry.Index,
			Contract: entry.Contract,
			Hex:      entry.Address.Hex,
			Address:  entry.Address.Display,
			TxHash:   entry.TxHash,
			ABI:      SingleQuotedString(compactJSON(artifacts[entry.Contract].RawABI)),
		}
	}

	return model
}

// Generate writes the summary to path.
func (g *Generator) Generate(path string, network Network, l *ledger.Ledger, artifacts contracts.Set) error {
	data, err := yaml.Marshal(g.Build(network, l, artifacts))
	if err != nil {
		return fmt.Errorf("could not marshal output model. Err: '%w'", err)
	}

	if err := g.writer.WriteBytes(path, data); err != nil {
		return fmt.Errorf("could not write output file. Err: '%w'", err)
	}

	g.logger.With("path", path).With("contracts", l.Len()).Info("output file written")

	return nil
}

func compactJSON(jsonStr string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(jsonStr)); err != nil {
		return jsonStr
	}
	return buf.String()
}
