package slotmap

import (
	_ "embed"
	"fmt"

	"slotmap/core/contract"
)

const (
	// EntriesTable holds the lock flag and value of every claimed slot.
	EntriesTable = "slotmap.entries"
	// SetCircuitNamespace names the circuit whose proof gates Set calls.
	SetCircuitNamespace = "Set_V1"
)

// setV1Circuit is the Set circuit artifact, built into the binary so init can
// register it without a filesystem.
//
//go:embed proof/set_v1.zk
var setV1Circuit []byte

// Function is the opcode carried in the first byte of every call and of every
// staged update. Values are append-only: a new function gets a new byte, an
// existing byte never changes meaning.
type Function uint8

const (
	FunctionSet Function = 0x00
)

// ParseFunction maps an opcode byte to a Function.
func ParseFunction(b byte) (Function, error) {
	switch Function(b) {
	case FunctionSet:
		return FunctionSet, nil
	default:
		return 0, fmt.Errorf("%w: opcode 0x%02x", contract.ErrUnsupportedFunction, b)
	}
}

func (f Function) String() string {
	switch f {
	case FunctionSet:
		return "set"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(f))
	}
}
