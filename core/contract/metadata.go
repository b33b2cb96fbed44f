package contract

import (
	"github.com/ethereum/go-ethereum/rlp"

	"slotmap/crypto"
)

// PublicInputs are the instance values a proof for one circuit commits to.
type PublicInputs struct {
	Namespace string
	Inputs    []crypto.Element
}

// Metadata is the output of the metadata phase: what the host must verify
// before it may run exec. Field order is part of the wire format.
type Metadata struct {
	ZKPublicInputs      []PublicInputs
	SignaturePublicKeys []crypto.PublicKey
}

// Encode serialises the metadata.
func (m *Metadata) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(m)
}

// DecodeMetadata parses bytes produced by Encode.
func DecodeMetadata(b []byte) (*Metadata, error) {
	m := new(Metadata)
	if err := rlp.DecodeBytes(b, m); err != nil {
		return nil, err
	}
	return m, nil
}
