package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// AccountPrefix is the human-readable part of bech32 account strings.
const AccountPrefix = "acct"

// EncodeAccount renders an owner identity as a bech32 string so operators do
// not have to copy raw 32 byte hex around.
func EncodeAccount(account Element) (string, error) {
	raw := account.Bytes()
	conv, err := bech32.ConvertBits(raw[:], 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(AccountPrefix, conv)
}

// DecodeAccount parses a bech32 account string produced by EncodeAccount.
func DecodeAccount(s string) (Element, error) {
	prefix, decoded, err := bech32.Decode(s)
	if err != nil {
		return Element{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AccountPrefix {
		return Element{}, fmt.Errorf("unexpected account prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Element{}, fmt.Errorf("error converting bits: %w", err)
	}
	return ElementFromBytes(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey is a secp256k1 key. On the wire it is the 33 byte compressed form.
type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Sign produces a 64 byte [R || S] signature over a 32 byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, k.PrivateKey)
	if err != nil {
		return nil, err
	}
	return sig[:64], nil
}

// Compressed returns the 33 byte compressed encoding.
func (k PublicKey) Compressed() []byte {
	if k.PublicKey == nil {
		return nil
	}
	return crypto.CompressPubkey(k.PublicKey)
}

// Verify checks a 64 byte [R || S] signature over digest.
func (k PublicKey) Verify(digest, sig []byte) bool {
	if k.PublicKey == nil || len(sig) != 64 {
		return false
	}
	return crypto.VerifySignature(k.Compressed(), digest, sig)
}

// PublicKeyFromBytes decodes a compressed secp256k1 key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != 33 {
		return PublicKey{}, errors.New("crypto: public key must be 33 bytes")
	}
	pub, err := crypto.DecompressPubkey(b)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{pub}, nil
}

// EncodeRLP writes the compressed key.
func (k PublicKey) EncodeRLP(w io.Writer) error {
	if k.PublicKey == nil {
		return errors.New("crypto: nil public key")
	}
	return rlp.Encode(w, k.Compressed())
}

// DecodeRLP reads a compressed key.
func (k *PublicKey) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Bytes()
	if err != nil {
		return err
	}
	decoded, err := PublicKeyFromBytes(raw)
	if err != nil {
		return err
	}
	*k = decoded
	return nil
}

// Keccak256 is re-exported so callers hashing transaction bodies do not
// import go-ethereum directly.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}
