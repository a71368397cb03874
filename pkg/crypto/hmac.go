// hmac.go implements HMAC-SHA256 (RFC 2104).
//
// HMAC is used in two places: inside HKDF-Extract/Expand, and directly for
// the Finished verify_data on both sides of the handshake.
package crypto

// HMACSHA256 computes HMAC-SHA256 over msg with the given key.
// Keys longer than the block size are hashed first, per RFC 2104.
func HMACSHA256(key, msg []byte) [Size]byte {
	var k [BlockSize]byte
	if len(key) > BlockSize {
		sum := Sum256(key)
		copy(k[:], sum[:])
	} else {
		copy(k[:], key)
	}

	var ipad, opad [BlockSize]byte
	for i := 0; i < BlockSize; i++ {
		ipad[i] = k[i] ^ 0x36
		opad[i] = k[i] ^ 0x5c
	}

	inner := NewSHA256()
	inner.Write(ipad[:]) //nolint:errcheck // never fails
	inner.Write(msg)     //nolint:errcheck
	innerSum := inner.Sum32()

	outer := NewSHA256()
	outer.Write(opad[:])     //nolint:errcheck
	outer.Write(innerSum[:]) //nolint:errcheck
	return outer.Sum32()
}

// HMAC is an incremental HMAC-SHA256 computation for callers that feed the
// message in pieces.
type HMAC struct {
	inner *Digest
	opad  [BlockSize]byte
}

// NewHMAC returns an incremental HMAC-SHA256 keyed with key.
func NewHMAC(key []byte) *HMAC {
	var k [BlockSize]byte
	if len(key) > BlockSize {
		sum := Sum256(key)
		copy(k[:], sum[:])
	} else {
		copy(k[:], key)
	}

	h := &HMAC{inner: NewSHA256()}
	var ipad [BlockSize]byte
	for i := 0; i < BlockSize; i++ {
		ipad[i] = k[i] ^ 0x36
		h.opad[i] = k[i] ^ 0x5c
	}
	h.inner.Write(ipad[:]) //nolint:errcheck
	return h
}

// Write absorbs more message bytes.
func (h *HMAC) Write(p []byte) (int, error) {
	return h.inner.Write(p)
}

// Sum returns the MAC. The internal state is unchanged, so more writes may
// follow.
func (h *HMAC) Sum() [Size]byte {
	innerSum := h.inner.Sum32()
	outer := NewSHA256()
	outer.Write(h.opad[:])   //nolint:errcheck
	outer.Write(innerSum[:]) //nolint:errcheck
	return outer.Sum32()
}
