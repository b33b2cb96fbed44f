package crypto

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hash absorbs the inputs in order into a MiMC sponge over the BN254 scalar
// field and returns the squeezed element. Circuits must compute the same
// function for a slot proof to verify.
func Hash(inputs ...Element) Element {
	h := mimc.NewMiMC()
	for i := range inputs {
		b := inputs[i].v.Bytes()
		// Canonical encodings are always accepted by the sponge.
		if _, err := h.Write(b[:]); err != nil {
			panic(err)
		}
	}
	var out Element
	out.v.SetBytes(h.Sum(nil))
	return out
}
