package slotmap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"slotmap/core/contract"
	"slotmap/crypto"
)

// DeriveSlot computes the storage address for a claim.
//
// A root claim (car == 1) lives at Hash(0, key) and can be attempted by
// anyone who knows key. Any other claim lives at Hash(account, key). Since
// Hash is second-preimage resistant nobody can pick an account' that lands on
// someone else's slot, so the slot is only writable by whoever can prove
// knowledge of account's secret to the host.
func DeriveSlot(car, account, key crypto.Element) crypto.Element {
	if car.IsOne() {
		return crypto.Hash(crypto.Zero(), key)
	}
	return crypto.Hash(account, key)
}

// An entry occupies two adjacent keys:
//
//	slot     -> lock
//	slot + 1 -> value
//
// where slot + 1 is field addition.
func lockKey(slot crypto.Element) []byte {
	b := slot.Bytes()
	return b[:]
}

func valueKey(slot crypto.Element) []byte {
	b := slot.Add(crypto.One()).Bytes()
	return b[:]
}

// IsLocked reports whether the entry at slot has its lock flag set. A missing
// entry is writable. Bytes that do not decode as a lock flag mean the store is
// corrupt; that is an internal error, never "unlocked".
func IsLocked(db contract.DB, slot crypto.Element) (bool, error) {
	raw, ok, err := db.Get(lockKey(slot))
	if err != nil {
		return false, fmt.Errorf("%w: read lock %s: %v", contract.ErrStorage, slot, err)
	}
	if !ok {
		return false, nil
	}
	var locked bool
	if err := rlp.DecodeBytes(raw, &locked); err != nil {
		return false, fmt.Errorf("%w: corrupt lock flag at %s: %v", contract.ErrStorage, slot, err)
	}
	return locked, nil
}

func encodeBool(b bool) ([]byte, error) {
	out, err := rlp.EncodeToBytes(b)
	if err != nil {
		return nil, fmt.Errorf("encode lock: %w", err)
	}
	return out, nil
}

func encodeElement(e crypto.Element) ([]byte, error) {
	out, err := rlp.EncodeToBytes(e)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return out, nil
}

// Entry is the decoded state stored for a slot.
type Entry struct {
	Lock  bool
	Value crypto.Element
}

// EntryKeys returns the table keys holding the lock flag and the value of the
// entry at slot. Hosts use them to inspect committed state.
func EntryKeys(slot crypto.Element) (lock, value []byte) {
	return lockKey(slot), valueKey(slot)
}

// DecodeEntry parses the raw bytes stored under EntryKeys.
func DecodeEntry(rawLock, rawValue []byte) (Entry, error) {
	var e Entry
	if err := rlp.DecodeBytes(rawLock, &e.Lock); err != nil {
		return Entry{}, fmt.Errorf("%w: lock flag: %v", contract.ErrDecode, err)
	}
	if err := rlp.DecodeBytes(rawValue, &e.Value); err != nil {
		return Entry{}, fmt.Errorf("%w: value: %v", contract.ErrDecode, err)
	}
	return e, nil
}
