package ledger

import (
	"errors"
	"fmt"

	"github.com/borderless-pay/migrator/internal/address"
)

var (
	ErrOutOfOrder      = errors.New("ledger entries must be recorded in increasing step order")
	ErrAlreadyRecorded = errors.New("step already recorded")
)

type (
	// Entry is the record of one successfully completed step.
	Entry struct {
		Index       int                     `json:"index"`
		Name        string                  `json:"name"`
		Contract    string                  `json:"contract"`
		Address     address.ContractAddress `json:"address"`
		TxHash      string                  `json:"txHash,omitempty"`
		BlockNumber uint64                  `json:"blockNumber,omitempty"`
		GasUsed     uint64                  `json:"gasUsed,omitempty"`
	}

	// Ledger is the append-only record of addresses produced by completed
	// steps of one run. Entries are never changed once recorded.
	Ledger struct {
		entries []Entry
		byIndex map[int]int
	}
)

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{byIndex: make(map[int]int)}
}

// Record appends entry. Its index must be greater than every recorded index.
func (l *Ledger) Record(entry Entry) error {
	if _, ok := l.byIndex[entry.Index]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyRecorded, entry.Index)
	}
	if last, ok := l.Last(); ok && entry.Index <= last.Index {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, entry.Index, last.Index)
	}

	l.byIndex[entry.Index] = len(l.entries)
	l.entries = append(l.entries, entry)

	return nil
}

// Lookup returns the entry recorded for step index.
func (l *Ledger) Lookup(index int) (Entry, bool) {
	position, ok := l.byIndex[index]
	if !ok {
		return Entry{}, false
	}
	return l.entries[position], true
}

// Last returns the most recently recorded entry.
func (l *Ledger) Last() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Entries returns a copy of the entries in index order.
func (l *Ledger) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

func (l *Ledger) Len() int {
	return len(l.entries)
}
