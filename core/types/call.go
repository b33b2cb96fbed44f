package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"slotmap/crypto"
)

// ContractIDLength is the size of a contract identifier in bytes.
const ContractIDLength = 32

// ContractID identifies a deployed contract. Storage tables and registered
// circuits are scoped by it.
type ContractID [ContractIDLength]byte

// ContractIDFromName derives a deterministic identifier from a deployment
// name.
func ContractIDFromName(name string) ContractID {
	var id ContractID
	copy(id[:], crypto.Keccak256([]byte("contract:"), []byte(strings.TrimSpace(name))))
	return id
}

// ParseContractID decodes a 0x-prefixed or bare hex identifier.
func ParseContractID(s string) (ContractID, error) {
	var id ContractID
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return id, fmt.Errorf("invalid contract id: %w", err)
	}
	if len(raw) != ContractIDLength {
		return id, fmt.Errorf("invalid contract id: want %d bytes, got %d", ContractIDLength, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id ContractID) String() string { return "0x" + hex.EncodeToString(id[:]) }

// Bytes returns a copy of the identifier.
func (id ContractID) Bytes() []byte { return append([]byte(nil), id[:]...) }

// ContractCall is one invocation inside a transaction. The first byte of Data
// selects the contract function.
type ContractCall struct {
	ContractID ContractID
	Data       []byte
}

// CallPayload is what the host hands to the metadata and exec phases: the
// whole call batch plus the index of the call being processed.
type CallPayload struct {
	CallIndex uint32
	Calls     []ContractCall
}

var errEmptyPayload = errors.New("types: empty call payload")

// Encode serialises the payload.
func (p CallPayload) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(&p)
}

// DecodeCallPayload parses bytes produced by Encode. Trailing bytes are an
// error.
func DecodeCallPayload(b []byte) (CallPayload, error) {
	var p CallPayload
	if len(b) == 0 {
		return p, errEmptyPayload
	}
	if err := rlp.DecodeBytes(b, &p); err != nil {
		return CallPayload{}, err
	}
	return p, nil
}

// Selected returns the call the payload points at.
func (p CallPayload) Selected() (ContractCall, bool) {
	if uint64(p.CallIndex) >= uint64(len(p.Calls)) {
		return ContractCall{}, false
	}
	return p.Calls[p.CallIndex], true
}
