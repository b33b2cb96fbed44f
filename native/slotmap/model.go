package slotmap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"slotmap/core/contract"
	"slotmap/crypto"
)

// SetParams is the body of a Set call, after the opcode byte.
type SetParams struct {
	// Car set to one claims the slot in the root namespace; any other value
	// claims it under Account.
	Car     crypto.Element
	Account crypto.Element
	Key     crypto.Element
	Value   crypto.Element
	Lock    bool
}

// PublicInputs lists the values the Set circuit exposes as instances, in the
// circuit's order.
func (p SetParams) PublicInputs() []crypto.Element {
	return []crypto.Element{
		p.Account,
		p.Key,
		p.Value,
		crypto.ElementFromBool(p.Lock),
		p.Car,
	}
}

// EncodeSetCall builds the call data for a Set call: opcode then params.
func EncodeSetCall(p SetParams) ([]byte, error) {
	body, err := rlp.EncodeToBytes(&p)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(FunctionSet)}, body...), nil
}

// DecodeSetParams parses the params that follow the opcode byte.
func DecodeSetParams(b []byte) (SetParams, error) {
	var p SetParams
	if err := rlp.DecodeBytes(b, &p); err != nil {
		return SetParams{}, fmt.Errorf("%w: set params: %v", contract.ErrDecode, err)
	}
	return p, nil
}

// SetUpdate is the staged state change exec hands to apply. It is never
// stored as such; apply expands it into the two entry keys.
type SetUpdate struct {
	Slot  crypto.Element
	Lock  bool
	Value crypto.Element
}

// Encode returns the opcode-prefixed update.
func (u SetUpdate) Encode() ([]byte, error) {
	body, err := rlp.EncodeToBytes(&u)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(FunctionSet)}, body...), nil
}

// DecodeSetUpdate parses an update body, without the opcode byte.
func DecodeSetUpdate(b []byte) (SetUpdate, error) {
	var u SetUpdate
	if err := rlp.DecodeBytes(b, &u); err != nil {
		return SetUpdate{}, fmt.Errorf("%w: set update: %v", contract.ErrDecode, err)
	}
	return u, nil
}
