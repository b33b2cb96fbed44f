// Package slotmap is a name-registry contract. Callers claim slots derived
// from (car, account, key) and store a value in them; a slot written with
// lock set can never be written again.
//
// The contract is four entrypoints driven by a host:
//
//	init      once per (re)deployment
//	metadata  per call, before the host verifies proofs and signatures
//	exec      per call, after verification; stages an update, writes nothing
//	apply     per call, commits the staged update
//
// Each is a plain function of (host, contract id, payload). They share no
// memory; exec's output reaches apply only because the host passes it along.
package slotmap

import (
	"errors"
	"fmt"

	"slotmap/core/contract"
	"slotmap/core/types"
	"slotmap/storage"
)

// Entrypoints returns the contract's phases for registration with a host.
func Entrypoints() contract.Entrypoints {
	return contract.Entrypoints{
		Init:     Init,
		Metadata: Metadata,
		Exec:     Exec,
		Apply:    Apply,
	}
}

// Init registers the Set circuit and creates the entries table. Running it
// again on redeployment leaves existing entries untouched.
func Init(host contract.Host, cid types.ContractID, _ []byte) error {
	if err := host.RegisterCircuit(SetCircuitNamespace, setV1Circuit); err != nil {
		return fmt.Errorf("register %s circuit: %w", SetCircuitNamespace, err)
	}

	_, err := host.Lookup(cid, EntriesTable)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrTableNotFound) {
		return fmt.Errorf("%w: lookup %s: %v", contract.ErrStorage, EntriesTable, err)
	}
	if _, err := host.InitTable(cid, EntriesTable); err != nil {
		return fmt.Errorf("%w: create %s: %v", contract.ErrStorage, EntriesTable, err)
	}
	host.Logger().Info("slotmap entries table created", "contract", cid.String())
	return nil
}

// selectCall decodes the host payload and returns the opcode and body of the
// call being processed.
func selectCall(payload []byte) (Function, []byte, error) {
	p, err := types.DecodeCallPayload(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: call payload: %v", contract.ErrDecode, err)
	}
	call, ok := p.Selected()
	if !ok {
		return 0, nil, fmt.Errorf("%w: index %d, batch of %d", contract.ErrCallIndexOutOfRange, p.CallIndex, len(p.Calls))
	}
	if len(call.Data) == 0 {
		return 0, nil, fmt.Errorf("%w: empty call data", contract.ErrDecode)
	}
	fn, err := ParseFunction(call.Data[0])
	if err != nil {
		return 0, nil, err
	}
	return fn, call.Data[1:], nil
}

// Metadata returns the public inputs of the proof that must accompany the
// call and the public keys whose signatures it needs. Set is authorised by
// proof alone, so the key list is empty.
func Metadata(_ contract.Host, _ types.ContractID, payload []byte) ([]byte, error) {
	fn, body, err := selectCall(payload)
	if err != nil {
		return nil, err
	}

	switch fn {
	case FunctionSet:
		params, err := DecodeSetParams(body)
		if err != nil {
			return nil, err
		}
		md := &contract.Metadata{
			ZKPublicInputs: []contract.PublicInputs{{
				Namespace: SetCircuitNamespace,
				Inputs:    params.PublicInputs(),
			}},
		}
		out, err := md.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", contract.ErrUnsupportedFunction, fn)
	}
}

// Exec validates the call against current state and returns the staged
// update. It only reads storage, so any party may re-run it.
func Exec(host contract.Host, cid types.ContractID, payload []byte) ([]byte, error) {
	fn, body, err := selectCall(payload)
	if err != nil {
		return nil, err
	}

	switch fn {
	case FunctionSet:
		params, err := DecodeSetParams(body)
		if err != nil {
			return nil, err
		}
		slot := DeriveSlot(params.Car, params.Account, params.Key)

		db, err := host.Lookup(cid, EntriesTable)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup %s: %v", contract.ErrStorage, EntriesTable, err)
		}
		locked, err := IsLocked(db, slot)
		if err != nil {
			return nil, err
		}
		if locked {
			return nil, fmt.Errorf("%w: %s", ErrLocked, slot)
		}

		host.Logger().Debug("[SET] staged",
			"slot", slot.String(),
			"car", params.Car.String(),
			"lock", params.Lock,
			"value", params.Value.String(),
		)

		update := SetUpdate{Slot: slot, Lock: params.Lock, Value: params.Value}
		out, err := update.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode update: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", contract.ErrUnsupportedFunction, fn)
	}
}

// Apply commits an update produced by Exec.
//
// Apply does not re-check the lock. The host must only ever call it with the
// output of a successful Exec for the same call; an update that did not come
// from Exec can overwrite a locked entry. That precondition belongs to the
// host.
func Apply(host contract.Host, cid types.ContractID, update []byte) error {
	if len(update) == 0 {
		return fmt.Errorf("%w: empty update", contract.ErrDecode)
	}
	fn, err := ParseFunction(update[0])
	if err != nil {
		return err
	}

	switch fn {
	case FunctionSet:
		u, err := DecodeSetUpdate(update[1:])
		if err != nil {
			return err
		}
		lock, err := encodeBool(u.Lock)
		if err != nil {
			return err
		}
		value, err := encodeElement(u.Value)
		if err != nil {
			return err
		}

		db, err := host.Lookup(cid, EntriesTable)
		if err != nil {
			return fmt.Errorf("%w: lookup %s: %v", contract.ErrStorage, EntriesTable, err)
		}
		if err := db.Set(lockKey(u.Slot), lock); err != nil {
			return fmt.Errorf("%w: write lock %s: %v", contract.ErrStorage, u.Slot, err)
		}
		if err := db.Set(valueKey(u.Slot), value); err != nil {
			return fmt.Errorf("%w: write value %s: %v", contract.ErrStorage, u.Slot, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", contract.ErrUnsupportedFunction, fn)
	}
}
