package slotmap

import (
	"fmt"

	"slotmap/core/contract"
)

// ErrLocked rejects a write to a slot whose stored lock flag is set. It is the
// only business rule rejection of the contract; it wraps contract.ErrRejected
// so hosts can tell it apart from malformed input.
var ErrLocked = fmt.Errorf("%w: slotmap: slot locked", contract.ErrRejected)
