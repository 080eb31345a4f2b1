package ledger

import (
	"fmt"
	"log/slog"

	"github.com/borderless-pay/migrator/internal/infra/filesystem"
	"github.com/borderless-pay/migrator/internal/logger"
)

// FileName is the ledger file written into the output directory.
const FileName = "ledger.json"

type (
	// Metadata identifies the run a persisted ledger belongs to.
	Metadata struct {
		Plan          string `json:"plan"`
		ChainID       uint64 `json:"chainId"`
		AddressFormat string `json:"addressFormat"`
		Deployer      string `json:"deployer"`
	}

	document struct {
		Metadata
		Steps []Entry `json:"steps"`
	}

	// Store persists a ledger as JSON.
	Store struct {
		path   string
		reader filesystem.Reader
		writer filesystem.Writer
		logger *slog.Logger
	}
)

// NewStore creates a ledger store backed by the file at path
func NewStore(path string, reader filesystem.Reader, writer filesystem.Writer) *Store {
	return &Store{
		path:   path,
		reader: reader,
		writer: writer,
		logger: logger.Named("ledger_store"),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a ledger was persisted before.
func (s *Store) Exists() (bool, error) {
	return s.reader.Exists(s.path)
}

// Save writes the full ledger.
func (s *Store) Save(meta Metadata, l *Ledger) error {
	doc := document{
		Metadata: meta,
		Steps:    l.Entries(),
	}
	if doc.Steps == nil {
		doc.Steps = []Entry{}
	}

	if err := s.writer.WriteJSON(s.path, doc); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}

	s.logger.With("path", s.path).With("steps", l.Len()).Debug("ledger saved")

	return nil
}

// Load reads a persisted ledger. Entries are re-recorded, so a file that
// breaks the ordering rules is rejected.
func (s *Store) Load() (Metadata, *Ledger, error) {
	var doc document
	if err := s.reader.ReadJSON(s.path, &doc); err != nil {
		return Metadata{}, nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	l := New()
	for _, entry := range doc.Steps {
		if err := l.Record(entry); err != nil {
			return Metadata{}, nil, fmt.Errorf("ledger %s is corrupt: %w", s.path, err)
		}
	}

	return doc.Metadata, l, nil
}
