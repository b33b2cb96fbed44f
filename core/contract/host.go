// Package contract defines the boundary between a host runtime and the
// contracts it drives. A contract is four independent entrypoints; each
// invocation only sees the host, its own id, and the payload bytes the host
// threads between phases. Nothing survives between invocations except what
// was written to storage.
package contract

import (
	"log/slog"

	"slotmap/core/types"
)

// Phase names one of the four entrypoints.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseMetadata Phase = "metadata"
	PhaseExec     Phase = "exec"
	PhaseApply    Phase = "apply"
)

// DB is a handle to one contract table.
type DB interface {
	// Get returns the stored value and whether the key exists.
	Get(key []byte) ([]byte, bool, error)
	// Set writes a value. Hosts only permit it during apply.
	Set(key, value []byte) error
}

// Host is the environment an entrypoint runs in.
type Host interface {
	// Lookup opens an existing table owned by cid. It fails with an error
	// wrapping storage.ErrTableNotFound when the table was never created.
	Lookup(cid types.ContractID, table string) (DB, error)
	// InitTable creates a table. Only callable during init and only for the
	// contract being initialised.
	InitTable(cid types.ContractID, table string) (DB, error)
	// RegisterCircuit hands a zk circuit artifact to the host's proof
	// verification subsystem under namespace. Only callable during init.
	RegisterCircuit(namespace string, bincode []byte) error
	// Logger is scoped to the current invocation.
	Logger() *slog.Logger
}

type (
	InitFunc     func(host Host, cid types.ContractID, payload []byte) error
	MetadataFunc func(host Host, cid types.ContractID, payload []byte) ([]byte, error)
	ExecFunc     func(host Host, cid types.ContractID, payload []byte) ([]byte, error)
	ApplyFunc    func(host Host, cid types.ContractID, update []byte) error
)

// Entrypoints bundles the four phases of a contract for registration with a
// host.
type Entrypoints struct {
	Init     InitFunc
	Metadata MetadataFunc
	Exec     ExecFunc
	Apply    ApplyFunc
}

// Valid reports whether every phase is populated.
func (e Entrypoints) Valid() bool {
	return e.Init != nil && e.Metadata != nil && e.Exec != nil && e.Apply != nil
}
