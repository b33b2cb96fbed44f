package runtime

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"slotmap/core/types"
	"slotmap/storage"
)

// circuitsTable holds the circuits a contract registered during init. It is
// owned by the contract but only the runtime writes to it.
const circuitsTable = "runtime.zkas"

// ErrCircuitNotFound is returned when a call's metadata names a namespace the
// contract never registered.
var ErrCircuitNotFound = errors.New("runtime: circuit not registered")

// Circuit is a registered verification artifact.
type Circuit struct {
	Namespace string
	Digest    [32]byte
	Bincode   []byte
}

// registerCircuit stores bincode under (cid, namespace). Registering the same
// artifact again is a no-op; a different artifact replaces the old one.
// It reports whether anything was written.
func registerCircuit(db storage.Database, cid types.ContractID, namespace string, bincode []byte) (bool, error) {
	if namespace == "" {
		return false, errors.New("runtime: empty circuit namespace")
	}
	table, err := storage.LookupOrCreate(db, cid.Bytes(), circuitsTable)
	if err != nil {
		return false, err
	}
	digest := blake3.Sum256(bincode)

	raw, ok, err := table.Get([]byte(namespace))
	if err != nil {
		return false, err
	}
	if ok {
		var existing Circuit
		if err := rlp.DecodeBytes(raw, &existing); err != nil {
			return false, fmt.Errorf("decode circuit %s: %w", namespace, err)
		}
		if bytes.Equal(existing.Digest[:], digest[:]) {
			return false, nil
		}
	}

	encoded, err := rlp.EncodeToBytes(&Circuit{
		Namespace: namespace,
		Digest:    digest,
		Bincode:   bincode,
	})
	if err != nil {
		return false, err
	}
	if err := table.Set([]byte(namespace), encoded); err != nil {
		return false, err
	}
	return true, nil
}

// lookupCircuit loads a registered circuit.
func lookupCircuit(db storage.Database, cid types.ContractID, namespace string) (*Circuit, error) {
	table, err := storage.Lookup(db, cid.Bytes(), circuitsTable)
	if errors.Is(err, storage.ErrTableNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitNotFound, namespace)
	}
	if err != nil {
		return nil, err
	}
	raw, ok, err := table.Get([]byte(namespace))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCircuitNotFound, namespace)
	}
	c := new(Circuit)
	if err := rlp.DecodeBytes(raw, c); err != nil {
		return nil, fmt.Errorf("decode circuit %s: %w", namespace, err)
	}
	return c, nil
}
