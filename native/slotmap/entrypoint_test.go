package slotmap

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"slotmap/core/contract"
	"slotmap/core/types"
	"slotmap/crypto"
)

var testContract = types.ContractIDFromName("slotmap-test")

func setCall(t *testing.T, p SetParams) types.ContractCall {
	t.Helper()
	data, err := EncodeSetCall(p)
	require.NoError(t, err)
	return types.ContractCall{ContractID: testContract, Data: data}
}

func payload(t *testing.T, index uint32, calls ...types.ContractCall) []byte {
	t.Helper()
	out, err := types.CallPayload{CallIndex: index, Calls: calls}.Encode()
	require.NoError(t, err)
	return out
}

func deployed(t *testing.T) *memHost {
	t.Helper()
	host := newMemHost()
	require.NoError(t, Init(host, testContract, nil))
	return host
}

// commit runs exec then apply for a single Set call.
func commit(t *testing.T, host contract.Host, p SetParams) error {
	t.Helper()
	update, err := Exec(host, testContract, payload(t, 0, setCall(t, p)))
	if err != nil {
		return err
	}
	return Apply(host, testContract, update)
}

func readEntry(t *testing.T, host *memHost, slot crypto.Element) (Entry, bool) {
	t.Helper()
	table := host.entries(t, testContract)
	lockKey, valueKey := EntryKeys(slot)
	rawLock, ok := table.rows[string(lockKey)]
	if !ok {
		return Entry{}, false
	}
	rawValue, ok := table.rows[string(valueKey)]
	require.True(t, ok, "lock written without value")
	entry, err := DecodeEntry(rawLock, rawValue)
	require.NoError(t, err)
	return entry, true
}

func TestInitRegistersCircuitAndCreatesTable(t *testing.T) {
	host := deployed(t)
	require.Equal(t, setV1Circuit, host.circuits[SetCircuitNamespace])
	require.NotEmpty(t, setV1Circuit)
	_, err := host.Lookup(testContract, EntriesTable)
	require.NoError(t, err)
}

func TestInitRedeployKeepsEntries(t *testing.T) {
	host := deployed(t)
	p := SetParams{Car: crypto.One(), Key: crypto.NewElement(1), Value: crypto.NewElement(2)}
	require.NoError(t, commit(t, host, p))

	require.NoError(t, Init(host, testContract, nil))

	entry, ok := readEntry(t, host, DeriveSlot(p.Car, p.Account, p.Key))
	require.True(t, ok)
	require.True(t, entry.Value.Equal(p.Value))
}

func TestMetadataScenario(t *testing.T) {
	host := deployed(t)
	p := SetParams{Car: crypto.One(), Key: crypto.NewElement(5), Value: crypto.NewElement(42)}

	out, err := Metadata(host, testContract, payload(t, 0, setCall(t, p)))
	require.NoError(t, err)

	wantBytes := "f8b3" + "f8b0" + "f8ae" +
		"86" + hex.EncodeToString([]byte(SetCircuitNamespace)) +
		"f8a5" + "a0" + word(0) + "a0" + word(5) + "a0" + word(42) + "a0" + word(0) + "a0" + word(1) +
		"c0"
	require.Equal(t, wantBytes, hex.EncodeToString(out))

	md, err := contract.DecodeMetadata(out)
	require.NoError(t, err)
	require.Empty(t, md.SignaturePublicKeys)
	require.Len(t, md.ZKPublicInputs, 1)
	require.Equal(t, SetCircuitNamespace, md.ZKPublicInputs[0].Namespace)

	want := []crypto.Element{crypto.Zero(), crypto.NewElement(5), crypto.NewElement(42), crypto.Zero(), crypto.One()}
	got := md.ZKPublicInputs[0].Inputs
	require.Len(t, got, len(want))
	for i := range want {
		require.True(t, want[i].Equal(got[i]), "input %d: got %s want %s", i, got[i], want[i])
	}
}

func TestMetadataSelectsIndexedCall(t *testing.T) {
	host := deployed(t)
	first := SetParams{Key: crypto.NewElement(1)}
	second := SetParams{Key: crypto.NewElement(2)}

	out, err := Metadata(host, testContract, payload(t, 1, setCall(t, first), setCall(t, second)))
	require.NoError(t, err)
	md, err := contract.DecodeMetadata(out)
	require.NoError(t, err)
	require.True(t, md.ZKPublicInputs[0].Inputs[1].Equal(crypto.NewElement(2)))
}

func TestPhasesRejectIndexOutOfRange(t *testing.T) {
	host := deployed(t)
	// The call bytes are garbage; the index check must fire first.
	bad := types.ContractCall{ContractID: testContract, Data: []byte{0xff, 0x01}}
	for _, idx := range []uint32{1, 2, 1 << 31} {
		_, err := Exec(host, testContract, payload(t, idx, bad))
		require.ErrorIs(t, err, contract.ErrCallIndexOutOfRange)
		require.Equal(t, contract.KindRange, contract.Classify(err))

		_, err = Metadata(host, testContract, payload(t, idx, bad))
		require.ErrorIs(t, err, contract.ErrCallIndexOutOfRange)
	}

	_, err := Exec(host, testContract, payload(t, 0))
	require.ErrorIs(t, err, contract.ErrCallIndexOutOfRange)
}

func TestPhasesRejectMalformedInput(t *testing.T) {
	host := deployed(t)
	cases := []struct {
		name    string
		payload []byte
		want    error
	}{
		{"garbage payload", []byte{0xde, 0xad}, contract.ErrDecode},
		{"empty payload", nil, contract.ErrDecode},
		{"empty call data", payload(t, 0, types.ContractCall{ContractID: testContract}), contract.ErrDecode},
		{"unknown opcode", payload(t, 0, types.ContractCall{ContractID: testContract, Data: []byte{0x09}}), contract.ErrUnsupportedFunction},
		{"bad params", payload(t, 0, types.ContractCall{ContractID: testContract, Data: []byte{0x00, 0x01}}), contract.ErrDecode},
	}
	for _, tc := range cases {
		_, err := Exec(host, testContract, tc.payload)
		require.ErrorIs(t, err, tc.want, "exec: %s", tc.name)
		_, err = Metadata(host, testContract, tc.payload)
		require.ErrorIs(t, err, tc.want, "metadata: %s", tc.name)
	}
}

func TestExecDoesNotWrite(t *testing.T) {
	host := deployed(t)
	p := SetParams{Car: crypto.One(), Key: crypto.NewElement(3), Value: crypto.NewElement(4), Lock: true}

	update, err := Exec(host, testContract, payload(t, 0, setCall(t, p)))
	require.NoError(t, err)
	require.Zero(t, host.entries(t, testContract).writes)

	require.Equal(t, byte(FunctionSet), update[0])
	staged, err := DecodeSetUpdate(update[1:])
	require.NoError(t, err)
	require.True(t, staged.Slot.Equal(DeriveSlot(p.Car, p.Account, p.Key)))
	require.True(t, staged.Lock)
	require.True(t, staged.Value.Equal(p.Value))
}

func TestExecWithoutTableIsStorageError(t *testing.T) {
	host := newMemHost()
	_, err := Exec(host, testContract, payload(t, 0, setCall(t, SetParams{})))
	require.ErrorIs(t, err, contract.ErrStorage)
}

func TestApplyWritesExactlyTwoKeys(t *testing.T) {
	host := deployed(t)
	slot := crypto.NewElement(1000)
	update, err := SetUpdate{Slot: slot, Lock: true, Value: crypto.NewElement(8)}.Encode()
	require.NoError(t, err)

	require.NoError(t, Apply(host, testContract, update))

	table := host.entries(t, testContract)
	require.Len(t, table.rows, 2)
	require.Equal(t, 2, table.writes)

	entry, ok := readEntry(t, host, slot)
	require.True(t, ok)
	require.True(t, entry.Lock)
	require.True(t, entry.Value.Equal(crypto.NewElement(8)))
}

func TestApplyRejectsMalformedUpdate(t *testing.T) {
	host := deployed(t)
	require.ErrorIs(t, Apply(host, testContract, nil), contract.ErrDecode)
	require.ErrorIs(t, Apply(host, testContract, []byte{0x02}), contract.ErrUnsupportedFunction)
	require.ErrorIs(t, Apply(host, testContract, []byte{0x00, 0x01}), contract.ErrDecode)
}

func TestApplyStorageFailure(t *testing.T) {
	host := failingHost{deployed(t)}
	update, err := SetUpdate{Slot: crypto.NewElement(1)}.Encode()
	require.NoError(t, err)
	require.ErrorIs(t, Apply(host, testContract, update), contract.ErrStorage)
}

func TestLockIsPermanent(t *testing.T) {
	host := deployed(t)
	account := crypto.NewElement(12345)
	key := crypto.NewElement(6)

	first := SetParams{Car: crypto.Zero(), Account: account, Key: key, Value: crypto.NewElement(1), Lock: true}
	require.NoError(t, commit(t, host, first))

	for _, lock := range []bool{false, true} {
		second := SetParams{Car: crypto.Zero(), Account: account, Key: key, Value: crypto.NewElement(2), Lock: lock}
		err := commit(t, host, second)
		require.ErrorIs(t, err, ErrLocked)
		require.ErrorIs(t, err, contract.ErrRejected)
		require.Equal(t, contract.KindRejected, contract.Classify(err))
	}

	entry, ok := readEntry(t, host, DeriveSlot(first.Car, account, key))
	require.True(t, ok)
	require.True(t, entry.Value.Equal(crypto.NewElement(1)))
}

func TestUnlockedSlotCanBeRewrittenThenLocked(t *testing.T) {
	host := deployed(t)
	key := crypto.NewElement(77)
	slot := DeriveSlot(crypto.One(), crypto.Zero(), key)

	require.NoError(t, commit(t, host, SetParams{Car: crypto.One(), Key: key, Value: crypto.NewElement(1)}))
	require.NoError(t, commit(t, host, SetParams{Car: crypto.One(), Key: key, Value: crypto.NewElement(2), Lock: true}))
	entry, _ := readEntry(t, host, slot)
	require.True(t, entry.Lock)
	require.True(t, entry.Value.Equal(crypto.NewElement(2)))

	err := commit(t, host, SetParams{Car: crypto.One(), Key: key, Value: crypto.NewElement(3)})
	require.ErrorIs(t, err, ErrLocked)
}

func TestRootClaimsShareSlotAcrossCallers(t *testing.T) {
	host := deployed(t)
	key := crypto.NewElement(500)
	alice := SetParams{Car: crypto.One(), Account: crypto.NewElement(1), Key: key, Value: crypto.NewElement(10)}
	bob := SetParams{Car: crypto.One(), Account: crypto.NewElement(2), Key: key, Value: crypto.NewElement(20)}
	slot := DeriveSlot(crypto.One(), crypto.Zero(), key)

	require.NoError(t, commit(t, host, alice))
	require.NoError(t, commit(t, host, bob), "unlocked root claim can be overwritten")
	entry, _ := readEntry(t, host, slot)
	require.True(t, entry.Value.Equal(bob.Value))

	host = deployed(t)
	alice.Lock = true
	require.NoError(t, commit(t, host, alice))
	require.ErrorIs(t, commit(t, host, bob), ErrLocked, "locked root claim wins")
	entry, _ = readEntry(t, host, slot)
	require.True(t, entry.Value.Equal(alice.Value))
}

func TestOwnerClaimsDoNotCollide(t *testing.T) {
	host := deployed(t)
	key := crypto.NewElement(500)
	alice := SetParams{Account: crypto.NewElement(1), Key: key, Value: crypto.NewElement(10), Lock: true}
	bob := SetParams{Account: crypto.NewElement(2), Key: key, Value: crypto.NewElement(20), Lock: true}

	require.NoError(t, commit(t, host, alice))
	require.NoError(t, commit(t, host, bob))
}

func TestApplyTrustsHost(t *testing.T) {
	// Apply performs no lock check. A forged update that never went through
	// Exec overwrites a locked entry; keeping that from happening is the
	// host's job.
	host := deployed(t)
	p := SetParams{Car: crypto.One(), Key: crypto.NewElement(1), Value: crypto.NewElement(1), Lock: true}
	require.NoError(t, commit(t, host, p))

	slot := DeriveSlot(p.Car, p.Account, p.Key)
	forged, err := SetUpdate{Slot: slot, Lock: false, Value: crypto.NewElement(666)}.Encode()
	require.NoError(t, err)
	require.NoError(t, Apply(host, testContract, forged))

	entry, _ := readEntry(t, host, slot)
	require.False(t, entry.Lock)
	require.True(t, entry.Value.Equal(crypto.NewElement(666)))
}
