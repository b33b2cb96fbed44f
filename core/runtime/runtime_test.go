package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"slotmap/core/contract"
	"slotmap/core/events"
	"slotmap/core/types"
	"slotmap/crypto"
	"slotmap/native/slotmap"
	"slotmap/storage"
)

var registry = types.ContractIDFromName("slotmap")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	db       *storage.MemDB
	rt       *Runtime
	recorder *events.Recorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{db: storage.NewMemDB(), recorder: &events.Recorder{}}
	opts = append([]Option{WithLogger(quietLogger()), WithEmitter(h.recorder)}, opts...)
	h.rt = New(h.db, opts...)
	require.NoError(t, h.rt.Deploy(context.Background(), registry, slotmap.Entrypoints(), nil))
	return h
}

func setTx(t *testing.T, params ...slotmap.SetParams) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{}
	for _, p := range params {
		data, err := slotmap.EncodeSetCall(p)
		require.NoError(t, err)
		tx.Calls = append(tx.Calls, types.ContractCall{ContractID: registry, Data: data})
	}
	return tx
}

func (h *harness) entry(t *testing.T, p slotmap.SetParams) (slotmap.Entry, bool) {
	t.Helper()
	lockKey, valueKey := slotmap.EntryKeys(slotmap.DeriveSlot(p.Car, p.Account, p.Key))
	rawLock, ok, err := h.rt.ReadTable(registry, slotmap.EntriesTable, lockKey)
	require.NoError(t, err)
	if !ok {
		return slotmap.Entry{}, false
	}
	rawValue, ok, err := h.rt.ReadTable(registry, slotmap.EntriesTable, valueKey)
	require.NoError(t, err)
	require.True(t, ok)
	entry, err := slotmap.DecodeEntry(rawLock, rawValue)
	require.NoError(t, err)
	return entry, true
}

func TestExecuteCommitsSet(t *testing.T) {
	h := newHarness(t)
	p := slotmap.SetParams{Car: crypto.One(), Key: crypto.NewElement(5), Value: crypto.NewElement(42), Lock: true}

	receipt, err := h.rt.Execute(context.Background(), setTx(t, p))
	require.NoError(t, err)
	require.True(t, receipt.Committed)
	require.Equal(t, -1, receipt.FailedCall)
	require.Len(t, receipt.Calls, 1)
	require.Len(t, receipt.Calls[0].Metadata.ZKPublicInputs, 1)
	require.Equal(t, slotmap.SetCircuitNamespace, receipt.Calls[0].Metadata.ZKPublicInputs[0].Namespace)

	entry, ok := h.entry(t, p)
	require.True(t, ok)
	require.True(t, entry.Lock)
	require.True(t, entry.Value.Equal(p.Value))

	require.Equal(t, []string{events.TypeCallApplied, events.TypeTransactionCommitted}, h.recorder.Types())
	committed := h.recorder.Events[1].(events.TransactionCommitted)
	require.Equal(t, receipt.ID.String(), committed.TxID)
	require.Equal(t, 2, committed.Keys)
}

func TestExecuteRejectsLockedSlot(t *testing.T) {
	h := newHarness(t)
	p := slotmap.SetParams{Account: crypto.NewElement(9), Key: crypto.NewElement(1), Value: crypto.NewElement(1), Lock: true}
	_, err := h.rt.Execute(context.Background(), setTx(t, p))
	require.NoError(t, err)

	p.Value = crypto.NewElement(2)
	receipt, err := h.rt.Execute(context.Background(), setTx(t, p))
	require.ErrorIs(t, err, slotmap.ErrLocked)
	require.False(t, receipt.Committed)
	require.Equal(t, 0, receipt.FailedCall)
	require.Equal(t, "rejected", receipt.Failure)

	entry, _ := h.entry(t, p)
	require.True(t, entry.Value.Equal(crypto.NewElement(1)))
}

func TestFailedTransactionLeavesNoWrites(t *testing.T) {
	h := newHarness(t)
	locked := slotmap.SetParams{Car: crypto.One(), Key: crypto.NewElement(100), Value: crypto.NewElement(1), Lock: true}
	_, err := h.rt.Execute(context.Background(), setTx(t, locked))
	require.NoError(t, err)
	before := h.db.Len()

	fresh := slotmap.SetParams{Car: crypto.One(), Key: crypto.NewElement(101), Value: crypto.NewElement(7)}
	receipt, err := h.rt.Execute(context.Background(), setTx(t, fresh, locked))
	require.ErrorIs(t, err, slotmap.ErrLocked)
	require.Equal(t, 1, receipt.FailedCall)
	require.Len(t, receipt.Calls, 2)

	require.Equal(t, before, h.db.Len())
	_, ok := h.entry(t, fresh)
	require.False(t, ok, "first call's writes must be discarded")
}

func TestLaterCallsSeeEarlierWrites(t *testing.T) {
	h := newHarness(t)
	first := slotmap.SetParams{Car: crypto.One(), Key: crypto.NewElement(3), Value: crypto.NewElement(1), Lock: true}
	second := first
	second.Value = crypto.NewElement(2)

	receipt, err := h.rt.Execute(context.Background(), setTx(t, first, second))
	require.ErrorIs(t, err, slotmap.ErrLocked)
	require.Equal(t, 1, receipt.FailedCall)
	_, ok := h.entry(t, first)
	require.False(t, ok)
}

func TestRedeployKeepsEntries(t *testing.T) {
	h := newHarness(t)
	p := slotmap.SetParams{Car: crypto.One(), Key: crypto.NewElement(8), Value: crypto.NewElement(80)}
	_, err := h.rt.Execute(context.Background(), setTx(t, p))
	require.NoError(t, err)

	require.NoError(t, h.rt.Deploy(context.Background(), registry, slotmap.Entrypoints(), nil))
	entry, ok := h.entry(t, p)
	require.True(t, ok)
	require.True(t, entry.Value.Equal(p.Value))
}

func TestDeployRejectsIncompleteEntrypoints(t *testing.T) {
	rt := New(storage.NewMemDB(), WithLogger(quietLogger()))
	entry := slotmap.Entrypoints()
	entry.Apply = nil
	require.ErrorIs(t, rt.Deploy(context.Background(), registry, entry, nil), ErrInvalidEntrypoints)
	require.False(t, rt.Deployed(registry))
}

func TestExecuteUnknownContract(t *testing.T) {
	h := newHarness(t)
	tx := setTx(t, slotmap.SetParams{})
	tx.Calls[0].ContractID = types.ContractIDFromName("nobody")

	receipt, err := h.rt.Execute(context.Background(), tx)
	require.ErrorIs(t, err, ErrUnknownContract)
	require.Equal(t, string(contract.KindUnsupportedFunction), receipt.Failure)
}

func TestExecuteEmptyTransaction(t *testing.T) {
	h := newHarness(t)
	_, err := h.rt.Execute(context.Background(), &types.Transaction{})
	require.ErrorIs(t, err, ErrEmptyTransaction)
	_, err = h.rt.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyTransaction)
}

func TestExecuteHonoursCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	receipt, err := h.rt.Execute(ctx, setTx(t, slotmap.SetParams{}))
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, receipt.Committed)
}

type verifierFunc func(namespace string, circuit []byte, inputs []crypto.Element, proof []byte) error

func (f verifierFunc) VerifyProof(namespace string, circuit []byte, inputs []crypto.Element, proof []byte) error {
	return f(namespace, circuit, inputs, proof)
}

func TestProofVerifierGatesExec(t *testing.T) {
	var seen []crypto.Element
	verifier := verifierFunc(func(namespace string, circuit []byte, inputs []crypto.Element, proof []byte) error {
		require.Equal(t, slotmap.SetCircuitNamespace, namespace)
		require.NotEmpty(t, circuit)
		seen = inputs
		if string(proof) != "valid" {
			return errors.New("bad proof")
		}
		return nil
	})
	h := newHarness(t, WithProofVerifier(verifier))
	p := slotmap.SetParams{Car: crypto.One(), Key: crypto.NewElement(5), Value: crypto.NewElement(42)}

	tx := setTx(t, p)
	receipt, err := h.rt.Execute(context.Background(), tx)
	require.ErrorIs(t, err, ErrProofInvalid)
	require.Equal(t, "unauthorized", receipt.Failure)
	_, ok := h.entry(t, p)
	require.False(t, ok)

	tx.Proofs = [][]byte{[]byte("valid")}
	_, err = h.rt.Execute(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, seen, 5)
	require.True(t, seen[2].Equal(p.Value))
}

func TestClassify(t *testing.T) {
	require.Equal(t, "unauthorized", Classify(ErrSignatureInvalid))
	require.Equal(t, "unauthorized", Classify(ErrCircuitNotFound))
	require.Equal(t, "range", Classify(contract.ErrCallIndexOutOfRange))
	require.Equal(t, "internal", Classify(errors.New("boom")))
	require.Equal(t, "", Classify(nil))
}
