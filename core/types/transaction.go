package types

import (
	"github.com/ethereum/go-ethereum/rlp"

	"slotmap/crypto"
)

// Transaction is an ordered batch of contract calls together with the
// authorisation material the host checks against each call's metadata.
// Proofs and Signatures are indexed like Calls; Signatures[i] holds one
// signature per public key returned by call i's metadata phase.
type Transaction struct {
	Calls      []ContractCall
	Proofs     [][]byte
	Signatures [][][]byte
}

// Hash is the digest signatures are produced over. It commits to the calls
// only, so signers do not have to sign each other's signatures.
func (tx *Transaction) Hash() ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(tx.Calls)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

// Proof returns the proof attached to call i, if any.
func (tx *Transaction) Proof(i int) []byte {
	if i < 0 || i >= len(tx.Proofs) {
		return nil
	}
	return tx.Proofs[i]
}

// SignaturesFor returns the signatures attached to call i, if any.
func (tx *Transaction) SignaturesFor(i int) [][]byte {
	if i < 0 || i >= len(tx.Signatures) {
		return nil
	}
	return tx.Signatures[i]
}
