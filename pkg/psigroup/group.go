// Package psigroup implements the fixed multiplicative group used by the
// Diffie-Hellman-style private set intersection protocol.
//
// The modulus is the 2048-bit MODP safe prime from RFC 3526 group 14.
// Blinding exponents are drawn uniformly from [1, (p-1)/2 - 1]. Both the
// initiator and the joiner must use the same group parameters; changing
// them is a breaking protocol change.
package psigroup

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// modp2048Hex is the RFC 3526 group 14 prime.
const modp2048Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

var (
	// Modulus is the group modulus p.
	Modulus *big.Int

	// maxExponent is (p-1)/2 - 1, the upper bound of the exponent space.
	maxExponent *big.Int

	one = big.NewInt(1)
	two = big.NewInt(2)
)

func init() {
	p, ok := new(big.Int).SetString(modp2048Hex, 16)
	if !ok {
		panic("psigroup: invalid modulus constant")
	}
	Modulus = p

	// (p-1)/2 - 1
	maxExponent = new(big.Int).Sub(p, one)
	maxExponent.Div(maxExponent, two)
	maxExponent.Sub(maxExponent, one)
}

// HashToGroup maps an arbitrary byte string into Z_p by interpreting its
// SHA-256 digest as a big-endian integer.
//
// The raw interpretation does not land in the prime-order subgroup of
// order (p-1)/2; squaring the result would, but both protocol roles must
// agree on the mapping, so the raw form is kept for wire compatibility.
func HashToGroup(s []byte) *big.Int {
	digest := sha256.Sum256(s)
	return new(big.Int).SetBytes(digest[:])
}

// Blind computes value^k mod p.
func Blind(value, k *big.Int) *big.Int {
	return new(big.Int).Exp(value, k, Modulus)
}

// RandomExponent samples a blinding exponent uniformly from
// [1, (p-1)/2 - 1] using crypto/rand.
func RandomExponent() (*big.Int, error) {
	// rand.Int returns [0, maxExponent), shift into [1, maxExponent].
	k, err := rand.Int(rand.Reader, maxExponent)
	if err != nil {
		return nil, fmt.Errorf("sample blinding exponent: %w", err)
	}
	return k.Add(k, one), nil
}

// ValidElement reports whether v lies in [1, p-1].
func ValidElement(v *big.Int) bool {
	if v == nil || v.Sign() < 1 {
		return false
	}
	return v.Cmp(Modulus) < 0
}
