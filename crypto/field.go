package crypto

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/rlp"
)

// ElementSize is the length of the canonical big-endian encoding of an Element.
const ElementSize = fr.Bytes

// ErrNonCanonical is returned when bytes do not encode a reduced field element.
var ErrNonCanonical = errors.New("crypto: non-canonical field element")

// Element is a member of the BN254 scalar field, the field the proof system
// commits public inputs in. The zero value is the field's additive identity.
type Element struct {
	v fr.Element
}

// Zero returns the additive identity.
func Zero() Element { return Element{} }

// One returns the multiplicative identity.
func One() Element {
	var e Element
	e.v.SetOne()
	return e
}

// NewElement returns the field element with the given small integer value.
func NewElement(x uint64) Element {
	var e Element
	e.v.SetUint64(x)
	return e
}

// ElementFromBool maps false to zero and true to one.
func ElementFromBool(b bool) Element {
	if b {
		return One()
	}
	return Zero()
}

// ElementFromBytes decodes the canonical 32 byte big-endian form. Values at or
// above the modulus are rejected rather than reduced.
func ElementFromBytes(b []byte) (Element, error) {
	var e Element
	if len(b) != ElementSize {
		return e, fmt.Errorf("%w: want %d bytes, got %d", ErrNonCanonical, ElementSize, len(b))
	}
	if err := e.v.SetBytesCanonical(b); err != nil {
		return Element{}, fmt.Errorf("%w: %v", ErrNonCanonical, err)
	}
	return e, nil
}

// ParseElement accepts a decimal string or a 0x-prefixed hex string.
func ParseElement(s string) (Element, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Element{}, errors.New("crypto: empty field element")
	}
	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		_, ok = n.SetString(trimmed[2:], 16)
	} else {
		_, ok = n.SetString(trimmed, 10)
	}
	if !ok {
		return Element{}, fmt.Errorf("crypto: invalid field element %q", s)
	}
	if n.Sign() < 0 || n.Cmp(fr.Modulus()) >= 0 {
		return Element{}, fmt.Errorf("%w: %s out of range", ErrNonCanonical, trimmed)
	}
	var e Element
	e.v.SetBigInt(n)
	return e, nil
}

// MustParseElement is ParseElement for constants and tests.
func MustParseElement(s string) Element {
	e, err := ParseElement(s)
	if err != nil {
		panic(err)
	}
	return e
}

// Add returns e + o in the field.
func (e Element) Add(o Element) Element {
	var out Element
	out.v.Add(&e.v, &o.v)
	return out
}

// Equal reports whether both elements are the same field value.
func (e Element) Equal(o Element) bool { return e.v.Equal(&o.v) }

// IsZero reports whether e is the additive identity.
func (e Element) IsZero() bool { return e.v.IsZero() }

// IsOne reports whether e is the multiplicative identity.
func (e Element) IsOne() bool { return e.v.IsOne() }

// Bytes returns the canonical big-endian encoding.
func (e Element) Bytes() [ElementSize]byte { return e.v.Bytes() }

// String renders the element as 0x-prefixed hex of its canonical bytes.
func (e Element) String() string {
	b := e.v.Bytes()
	return fmt.Sprintf("0x%x", b[:])
}

// EncodeRLP writes the element as a fixed 32 byte string.
func (e Element) EncodeRLP(w io.Writer) error {
	b := e.v.Bytes()
	return rlp.Encode(w, b[:])
}

// DecodeRLP reads a 32 byte string and rejects non-canonical values.
func (e *Element) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Bytes()
	if err != nil {
		return err
	}
	decoded, err := ElementFromBytes(raw)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}
