package events

import (
	"strconv"

	"slotmap/core/types"
)

const (
	TypeCallApplied          = "runtime.call.applied"
	TypeTransactionCommitted = "runtime.tx.committed"
)

// CallApplied is emitted after a call's apply phase succeeded. The state it
// wrote is not yet durable; see TransactionCommitted.
type CallApplied struct {
	TxID       string
	Index      int
	ContractID types.ContractID
	Function   byte
}

func (CallApplied) EventType() string { return TypeCallApplied }

func (e CallApplied) Event() *types.Event {
	return &types.Event{
		Type: TypeCallApplied,
		Attributes: map[string]string{
			"tx":       e.TxID,
			"index":    strconv.Itoa(e.Index),
			"contract": e.ContractID.String(),
			"function": strconv.Itoa(int(e.Function)),
		},
	}
}

// TransactionCommitted is emitted once every call of a transaction applied and
// the buffered writes were flushed to storage.
type TransactionCommitted struct {
	TxID  string
	Calls int
	Keys  int
}

func (TransactionCommitted) EventType() string { return TypeTransactionCommitted }

func (e TransactionCommitted) Event() *types.Event {
	return &types.Event{
		Type: TypeTransactionCommitted,
		Attributes: map[string]string{
			"tx":    e.TxID,
			"calls": strconv.Itoa(e.Calls),
			"keys":  strconv.Itoa(e.Keys),
		},
	}
}
