// gcm.go implements AES-128-GCM (NIST SP 800-38D) on top of the AES block
// cipher in this package.
//
// GHASH is the textbook bit-serial multiplication in GF(2^128) with the
// reduction polynomial R = 0xe1 || 0^120. It is not the fastest approach,
// but record payloads are capped at ~16 KiB and the record layer is
// dominated by socket latency, not hashing.
package crypto

import (
	"encoding/binary"

	"github.com/grahamking/ort/internal/errors"
)

// gcmMaxPlaintext is the largest plaintext a single seal accepts. The TLS
// record cap of 2^14 dominates in practice.
const gcmMaxPlaintext = 1<<36 - 31

// gcmFieldElement is an element of GF(2^128) in big-endian bit order:
// bit 0 of the GCM specification is the most significant bit of hi.
type gcmFieldElement struct {
	hi, lo uint64
}

// GCM is an AES-128-GCM AEAD instance.
type GCM struct {
	block *AES128
	h     gcmFieldElement
}

// NewGCM builds an AEAD from a 16-byte AES key.
func NewGCM(key []byte) (*GCM, error) {
	block, err := NewAES128(key)
	if err != nil {
		return nil, err
	}

	// H = E_K(0^128).
	var h [16]byte
	block.EncryptBlock(h[:], h[:])

	return &GCM{
		block: block,
		h: gcmFieldElement{
			hi: binary.BigEndian.Uint64(h[:8]),
			lo: binary.BigEndian.Uint64(h[8:]),
		},
	}, nil
}

// Overhead is the ciphertext expansion: the 16-byte tag.
func (g *GCM) Overhead() int { return 16 }

// NonceSize is the required nonce length.
func (g *GCM) NonceSize() int { return 12 }

// Seal encrypts and authenticates plaintext with the given 12-byte nonce
// and additional data, returning ciphertext || tag.
func (g *GCM) Seal(nonce, plaintext, additionalData []byte) ([]byte, error) {
	if len(nonce) != 12 {
		return nil, errors.ErrInvalidNonce
	}
	if uint64(len(plaintext)) > gcmMaxPlaintext {
		return nil, errors.ErrMessageTooLarge
	}

	out := make([]byte, len(plaintext)+16)
	g.counterCrypt(out[:len(plaintext)], plaintext, nonce, 2)

	tag := g.tag(nonce, additionalData, out[:len(plaintext)])
	copy(out[len(plaintext):], tag[:])
	return out, nil
}

// Open authenticates and decrypts ciphertext || tag. The tag comparison is
// constant time, and no plaintext is returned on failure.
func (g *GCM) Open(nonce, sealed, additionalData []byte) ([]byte, error) {
	if len(nonce) != 12 {
		return nil, errors.ErrInvalidNonce
	}
	if len(sealed) < 16 {
		return nil, errors.ErrCiphertextTooShort
	}

	ciphertext := sealed[:len(sealed)-16]
	tag := sealed[len(sealed)-16:]

	expected := g.tag(nonce, additionalData, ciphertext)
	if !ConstantTimeCompare(expected[:], tag) {
		return nil, errors.ErrAuthenticationFailed
	}

	out := make([]byte, len(ciphertext))
	g.counterCrypt(out, ciphertext, nonce, 2)
	return out, nil
}

// counterCrypt XORs src with the AES-CTR keystream starting at counter
// value ctr under J0 = nonce || be32(ctr).
func (g *GCM) counterCrypt(dst, src, nonce []byte, ctr uint32) {
	var counterBlock, keystream [16]byte
	copy(counterBlock[:], nonce)

	for len(src) > 0 {
		binary.BigEndian.PutUint32(counterBlock[12:], ctr)
		ctr++
		g.block.EncryptBlock(keystream[:], counterBlock[:])

		n := len(src)
		if n > 16 {
			n = 16
		}
		for i := 0; i < n; i++ {
			dst[i] = src[i] ^ keystream[i]
		}
		dst = dst[n:]
		src = src[n:]
	}
}

// tag computes E_K(J0) XOR GHASH(H, aad, ciphertext).
func (g *GCM) tag(nonce, aad, ciphertext []byte) [16]byte {
	y := g.ghash(aad, ciphertext)

	var j0, ek [16]byte
	copy(j0[:], nonce)
	binary.BigEndian.PutUint32(j0[12:], 1)
	g.block.EncryptBlock(ek[:], j0[:])

	var out [16]byte
	binary.BigEndian.PutUint64(out[:8], y.hi^binary.BigEndian.Uint64(ek[:8]))
	binary.BigEndian.PutUint64(out[8:], y.lo^binary.BigEndian.Uint64(ek[8:]))
	return out
}

// ghash computes GHASH(H, A, C): blocks of A zero-padded, blocks of C
// zero-padded, then the 64-bit bit lengths of each.
func (g *GCM) ghash(aad, ciphertext []byte) gcmFieldElement {
	var y gcmFieldElement
	y = g.ghashUpdate(y, aad)
	y = g.ghashUpdate(y, ciphertext)

	var lengths [16]byte
	binary.BigEndian.PutUint64(lengths[:8], uint64(len(aad))*8)
	binary.BigEndian.PutUint64(lengths[8:], uint64(len(ciphertext))*8)
	return g.ghashBlock(y, lengths[:])
}

func (g *GCM) ghashUpdate(y gcmFieldElement, data []byte) gcmFieldElement {
	for len(data) >= 16 {
		y = g.ghashBlock(y, data[:16])
		data = data[16:]
	}
	if len(data) > 0 {
		var partial [16]byte
		copy(partial[:], data)
		y = g.ghashBlock(y, partial[:])
	}
	return y
}

func (g *GCM) ghashBlock(y gcmFieldElement, block []byte) gcmFieldElement {
	y.hi ^= binary.BigEndian.Uint64(block[:8])
	y.lo ^= binary.BigEndian.Uint64(block[8:])
	return gcmMul(y, g.h)
}

// gcmMul multiplies x by h in GF(2^128).
func gcmMul(x, h gcmFieldElement) gcmFieldElement {
	var z gcmFieldElement
	v := x

	// Walk the bits of h from most significant (GCM bit 0) down.
	for _, word := range [2]uint64{h.hi, h.lo} {
		for i := 63; i >= 0; i-- {
			if word>>uint(i)&1 != 0 {
				z.hi ^= v.hi
				z.lo ^= v.lo
			}
			// V = V >> 1, reduced by R if the dropped bit was set.
			carry := v.lo & 1
			v.lo = v.lo>>1 | v.hi<<63
			v.hi >>= 1
			if carry != 0 {
				v.hi ^= 0xe100000000000000
			}
		}
	}
	return z
}
