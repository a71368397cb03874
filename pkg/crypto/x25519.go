// x25519.go implements X25519 Diffie-Hellman over Curve25519 (RFC 7748).
//
// The scalar multiplication is the Montgomery ladder from the RFC,
// x-coordinate only, over the prime field 2^255 - 19. Field elements are
// math/big integers reduced modulo p; the ladder performs a fixed 255
// iterations with a conditional swap, but no further constant-time
// measures are taken.
package crypto

import (
	"math/big"

	"github.com/grahamking/ort/internal/errors"
)

// curve25519P is 2^255 - 19.
var curve25519P = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 255)
	return p.Sub(p, big.NewInt(19))
}()

// curve25519A24 is (486662 - 2) / 4, the ladder constant.
var curve25519A24 = big.NewInt(121665)

// X25519KeyPair holds an ephemeral X25519 key pair. The private scalar is
// stored clamped.
type X25519KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateX25519KeyPair draws a random scalar from the CSPRNG, clamps it,
// and computes the matching public key.
func GenerateX25519KeyPair() (*X25519KeyPair, error) {
	kp := &X25519KeyPair{}
	if err := SecureRandom(kp.Private[:]); err != nil {
		return nil, err
	}
	clampScalar(&kp.Private)

	var base [32]byte
	base[0] = 9
	kp.Public = scalarMult(kp.Private, base)
	return kp, nil
}

// NewX25519KeyPairFromScalar builds a key pair from a fixed 32-byte scalar.
// The scalar is clamped, so the same input always yields the same pair.
func NewX25519KeyPairFromScalar(scalar []byte) (*X25519KeyPair, error) {
	if len(scalar) != 32 {
		return nil, errors.ErrInvalidKeySize
	}
	kp := &X25519KeyPair{}
	copy(kp.Private[:], scalar)
	clampScalar(&kp.Private)

	var base [32]byte
	base[0] = 9
	kp.Public = scalarMult(kp.Private, base)
	return kp, nil
}

// SharedSecret computes the X25519 shared secret with the peer's public
// key. An all-zero result is rejected: RFC 7748 leaves the check optional,
// but a zero secret means the peer sent a low-order point and the
// handshake must not proceed.
func (kp *X25519KeyPair) SharedSecret(peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != 32 {
		return nil, errors.ErrInvalidKeySize
	}
	var peer [32]byte
	copy(peer[:], peerPublic)

	out := scalarMult(kp.Private, peer)

	var acc byte
	for _, b := range out {
		acc |= b
	}
	if acc == 0 {
		return nil, errors.ErrZeroSharedSecret
	}
	return out[:], nil
}

// Zeroize erases the private scalar.
func (kp *X25519KeyPair) Zeroize() {
	Zeroize(kp.Private[:])
}

// ScalarMult exposes the raw ladder: scalar is clamped, u is masked and
// interpreted per RFC 7748, and the resulting u-coordinate is returned.
func ScalarMult(scalar, u []byte) ([]byte, error) {
	if len(scalar) != 32 || len(u) != 32 {
		return nil, errors.ErrInvalidKeySize
	}
	var s, point [32]byte
	copy(s[:], scalar)
	copy(point[:], u)
	clampScalar(&s)
	out := scalarMult(s, point)
	return out[:], nil
}

// clampScalar applies the RFC 7748 bit clamping: clear the three low bits,
// clear the top bit, set bit 254.
func clampScalar(s *[32]byte) {
	s[0] &= 248
	s[31] &= 127
	s[31] |= 64
}

// scalarMult runs the Montgomery ladder. The scalar must already be
// clamped.
func scalarMult(scalar, point [32]byte) [32]byte {
	// Decode the u-coordinate: little-endian, top bit masked.
	var u [32]byte
	copy(u[:], point[:])
	u[31] &= 127
	x1 := decodeLittleEndian(u[:])

	x2 := big.NewInt(1)
	z2 := big.NewInt(0)
	x3 := new(big.Int).Set(x1)
	z3 := big.NewInt(1)
	swap := 0

	for t := 254; t >= 0; t-- {
		kt := int(scalar[t>>3] >> (uint(t) & 7) & 1)
		swap ^= kt
		if swap == 1 {
			x2, x3 = x3, x2
			z2, z3 = z3, z2
		}
		swap = kt

		// One ladder step (RFC 7748 section 5 pseudocode).
		a := fAdd(x2, z2)
		aa := fMul(a, a)
		b := fSub(x2, z2)
		bb := fMul(b, b)
		e := fSub(aa, bb)
		c := fAdd(x3, z3)
		d := fSub(x3, z3)
		da := fMul(d, a)
		cb := fMul(c, b)

		t0 := fAdd(da, cb)
		x3 = fMul(t0, t0)
		t1 := fSub(da, cb)
		z3 = fMul(x1, fMul(t1, t1))
		x2 = fMul(aa, bb)
		z2 = fMul(e, fAdd(aa, fMul(curve25519A24, e)))
	}
	if swap == 1 {
		x2, x3 = x3, x2
		z2, z3 = z3, z2
	}

	// x2 / z2 = x2 * z2^(p-2).
	zInv := new(big.Int).Exp(z2, new(big.Int).Sub(curve25519P, big.NewInt(2)), curve25519P)
	res := fMul(x2, zInv)

	var out [32]byte
	encodeLittleEndian(&out, res)
	return out
}

func fAdd(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Add(a, b), curve25519P)
}

func fSub(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Sub(a, b), curve25519P)
}

func fMul(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Mul(a, b), curve25519P)
}

func decodeLittleEndian(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(be)
}

func encodeLittleEndian(out *[32]byte, v *big.Int) {
	be := v.Bytes()
	for i, b := range be {
		out[len(be)-1-i] = b
	}
}
