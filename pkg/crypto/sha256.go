// sha256.go implements the SHA-256 hash function (FIPS 180-4).
//
// SHA-256 is the only hash the client needs: it is the transcript hash,
// the HMAC hash, and the HKDF hash of the TLS_AES_128_GCM_SHA256 suite.
//
// The implementation is the straightforward one from the standard: a
// 64-entry message schedule per 512-bit block and the eight working
// variables a..h. No assembly, no special casing.
package crypto

import "encoding/binary"

// Size is the SHA-256 digest size in bytes.
const Size = 32

// BlockSize is the SHA-256 block size in bytes.
const BlockSize = 64

// sha256K holds the round constants: the first 32 bits of the fractional
// parts of the cube roots of the first 64 primes.
var sha256K = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5,
	0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3,
	0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc,
	0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7,
	0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13,
	0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3,
	0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5,
	0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208,
	0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

// Digest is an incremental SHA-256 computation.
// The zero value is not usable; call NewSHA256.
type Digest struct {
	h   [8]uint32
	x   [BlockSize]byte
	nx  int
	len uint64
}

// NewSHA256 returns a Digest initialized to the FIPS 180-4 IV.
func NewSHA256() *Digest {
	d := &Digest{}
	d.Reset()
	return d
}

// Reset returns the digest to its initial state.
func (d *Digest) Reset() {
	d.h = [8]uint32{
		0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
		0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
	}
	d.nx = 0
	d.len = 0
}

// Write absorbs p into the hash state. It never fails.
func (d *Digest) Write(p []byte) (int, error) {
	n := len(p)
	d.len += uint64(n)
	if d.nx > 0 {
		c := copy(d.x[d.nx:], p)
		d.nx += c
		if d.nx == BlockSize {
			d.block(d.x[:])
			d.nx = 0
		}
		p = p[c:]
	}
	for len(p) >= BlockSize {
		d.block(p[:BlockSize])
		p = p[BlockSize:]
	}
	if len(p) > 0 {
		d.nx = copy(d.x[:], p)
	}
	return n, nil
}

// Sum appends the current digest to in and returns the result. The digest
// state is not modified, so further writes may follow.
func (d *Digest) Sum(in []byte) []byte {
	// Finalize a copy so the caller can keep absorbing. This is what the
	// transcript hash relies on: snapshots at CertificateVerify and
	// Finished while the running hash continues.
	dd := *d
	sum := dd.checkSum()
	return append(in, sum[:]...)
}

// Sum32 returns the digest as a fixed-size array without disturbing the
// running state.
func (d *Digest) Sum32() [Size]byte {
	dd := *d
	return dd.checkSum()
}

func (d *Digest) checkSum() [Size]byte {
	// Padding: 0x80, zeros, then the bit length as a 64-bit big-endian.
	msgLen := d.len
	var pad [BlockSize + 8]byte
	pad[0] = 0x80
	padLen := BlockSize - int(msgLen%BlockSize) - 9
	if padLen < 0 {
		padLen += BlockSize
	}
	binary.BigEndian.PutUint64(pad[1+padLen:], msgLen<<3)
	d.Write(pad[:1+padLen+8]) //nolint:errcheck // never fails

	var out [Size]byte
	for i, v := range d.h {
		binary.BigEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func (d *Digest) block(p []byte) {
	var w [64]uint32
	for i := 0; i < 16; i++ {
		w[i] = binary.BigEndian.Uint32(p[i*4:])
	}
	for i := 16; i < 64; i++ {
		v1 := w[i-2]
		t1 := rotr32(v1, 17) ^ rotr32(v1, 19) ^ (v1 >> 10)
		v2 := w[i-15]
		t2 := rotr32(v2, 7) ^ rotr32(v2, 18) ^ (v2 >> 3)
		w[i] = t1 + w[i-7] + t2 + w[i-16]
	}

	a, b, c, dd, e, f, g, h := d.h[0], d.h[1], d.h[2], d.h[3], d.h[4], d.h[5], d.h[6], d.h[7]
	for i := 0; i < 64; i++ {
		s1 := rotr32(e, 6) ^ rotr32(e, 11) ^ rotr32(e, 25)
		ch := (e & f) ^ (^e & g)
		t1 := h + s1 + ch + sha256K[i] + w[i]
		s0 := rotr32(a, 2) ^ rotr32(a, 13) ^ rotr32(a, 22)
		maj := (a & b) ^ (a & c) ^ (b & c)
		t2 := s0 + maj

		h = g
		g = f
		f = e
		e = dd + t1
		dd = c
		c = b
		b = a
		a = t1 + t2
	}

	d.h[0] += a
	d.h[1] += b
	d.h[2] += c
	d.h[3] += dd
	d.h[4] += e
	d.h[5] += f
	d.h[6] += g
	d.h[7] += h
}

func rotr32(x uint32, n uint) uint32 {
	return (x >> n) | (x << (32 - n))
}

// Sum256 returns the SHA-256 digest of data.
func Sum256(data []byte) [Size]byte {
	d := NewSHA256()
	d.Write(data) //nolint:errcheck // never fails
	return d.checkSum()
}
