package runtime

import (
	"fmt"
	"log/slog"
	"strings"

	"slotmap/core/contract"
	"slotmap/core/types"
	"slotmap/storage"
)

// reservedTablePrefix marks tables the runtime keeps on a contract's behalf.
const reservedTablePrefix = "runtime."

// phaseHost is the contract.Host handed to a single entrypoint invocation.
// Its permissions depend on the phase: tables and circuits can only be
// created during init, and table writes are only accepted during apply.
type phaseHost struct {
	rt     *Runtime
	view   storage.Database
	cid    types.ContractID
	phase  contract.Phase
	logger *slog.Logger
}

var _ contract.Host = (*phaseHost)(nil)

func (h *phaseHost) Lookup(cid types.ContractID, table string) (contract.DB, error) {
	if strings.HasPrefix(table, reservedTablePrefix) {
		return nil, fmt.Errorf("%w: table %q is reserved", contract.ErrPhase, table)
	}
	t, err := storage.Lookup(h.view, cid.Bytes(), table)
	if err != nil {
		return nil, err
	}
	return &tableHandle{table: t, owner: cid, host: h}, nil
}

func (h *phaseHost) InitTable(cid types.ContractID, table string) (contract.DB, error) {
	if h.phase != contract.PhaseInit {
		return nil, fmt.Errorf("%w: InitTable during %s", contract.ErrPhase, h.phase)
	}
	if cid != h.cid {
		return nil, fmt.Errorf("%w: InitTable for foreign contract %s", contract.ErrPhase, cid)
	}
	if strings.HasPrefix(table, reservedTablePrefix) {
		return nil, fmt.Errorf("%w: table %q is reserved", contract.ErrPhase, table)
	}
	t, err := storage.Create(h.view, cid.Bytes(), table)
	if err != nil {
		return nil, err
	}
	return &tableHandle{table: t, owner: cid, host: h}, nil
}

func (h *phaseHost) RegisterCircuit(namespace string, bincode []byte) error {
	if h.phase != contract.PhaseInit {
		return fmt.Errorf("%w: RegisterCircuit during %s", contract.ErrPhase, h.phase)
	}
	written, err := registerCircuit(h.view, h.cid, namespace, bincode)
	if err != nil {
		return err
	}
	if written {
		h.rt.metrics.ObserveCircuitRegistered()
		h.logger.Info("circuit registered", "namespace", namespace, "bytes", len(bincode))
	}
	return nil
}

func (h *phaseHost) Logger() *slog.Logger { return h.logger }

// tableHandle enforces write permissions on top of a storage table.
type tableHandle struct {
	table *storage.Table
	owner types.ContractID
	host  *phaseHost
}

func (t *tableHandle) Get(key []byte) ([]byte, bool, error) {
	return t.table.Get(key)
}

func (t *tableHandle) Set(key, value []byte) error {
	if t.host.phase != contract.PhaseApply {
		return fmt.Errorf("%w: write during %s", contract.ErrPhase, t.host.phase)
	}
	if t.owner != t.host.cid {
		return fmt.Errorf("%w: write to table of %s", contract.ErrPhase, t.owner)
	}
	return t.table.Set(key, value)
}
