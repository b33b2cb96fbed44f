package slotmap

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"slotmap/core/contract"
	"slotmap/core/types"
	"slotmap/storage"
)

// memHost is a minimal contract.Host. It does not enforce phase permissions;
// the runtime tests cover those.
type memHost struct {
	tables   map[string]*memTable
	circuits map[string][]byte
	logger   *slog.Logger
}

type memTable struct {
	rows   map[string][]byte
	writes int
}

func newMemHost() *memHost {
	return &memHost{
		tables:   make(map[string]*memTable),
		circuits: make(map[string][]byte),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func tableName(cid types.ContractID, name string) string {
	return cid.String() + "/" + name
}

func (h *memHost) Lookup(cid types.ContractID, name string) (contract.DB, error) {
	t, ok := h.tables[tableName(cid, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrTableNotFound, name)
	}
	return t, nil
}

func (h *memHost) InitTable(cid types.ContractID, name string) (contract.DB, error) {
	key := tableName(cid, name)
	if _, ok := h.tables[key]; ok {
		return nil, storage.ErrTableExists
	}
	t := &memTable{rows: make(map[string][]byte)}
	h.tables[key] = t
	return t, nil
}

func (h *memHost) RegisterCircuit(namespace string, bincode []byte) error {
	h.circuits[namespace] = bincode
	return nil
}

func (h *memHost) Logger() *slog.Logger { return h.logger }

func (h *memHost) entries(t *testing.T, cid types.ContractID) *memTable {
	t.Helper()
	table, ok := h.tables[tableName(cid, EntriesTable)]
	require.True(t, ok, "entries table missing")
	return table
}

func (t *memTable) Get(key []byte) ([]byte, bool, error) {
	v, ok := t.rows[string(key)]
	return v, ok, nil
}

func (t *memTable) Set(key, value []byte) error {
	t.rows[string(key)] = value
	t.writes++
	return nil
}

// failingTable fails every operation.
type failingTable struct{}

func (failingTable) Get([]byte) ([]byte, bool, error) { return nil, false, fmt.Errorf("disk on fire") }
func (failingTable) Set([]byte, []byte) error         { return fmt.Errorf("disk on fire") }

type failingHost struct{ *memHost }

func (h failingHost) Lookup(types.ContractID, string) (contract.DB, error) {
	return failingTable{}, nil
}
