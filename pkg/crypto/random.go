// Package crypto implements the primitives the ort TLS client is built
// on: SHA-256, HMAC-SHA256, HKDF, AES-128, GCM, and X25519.
//
// The implementations are self-contained; the only external input is the
// operating system's CSPRNG, reached through crypto/rand. Randomness is
// the single piece of process-wide state, and crypto/rand already
// serializes access to its internal pool.
package crypto

import (
	"crypto/rand"
	"io"

	qerrors "github.com/grahamking/ort/internal/errors"
)

// Reader is the process-wide CSPRNG. It wraps crypto/rand.Reader, which is
// lazily initialized from the OS (getrandom where available, /dev/urandom
// otherwise) on first use.
var Reader = rand.Reader

// SecureRandom fills b with cryptographically secure random bytes.
// Failure means the OS CSPRNG is unavailable and must be treated as fatal
// by callers holding secret state.
func SecureRandom(b []byte) error {
	if _, err := io.ReadFull(Reader, b); err != nil {
		return qerrors.New(qerrors.KindCrypto, "secure_random", err)
	}
	return nil
}

// SecureRandomBytes returns n cryptographically secure random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustSecureRandomBytes returns n random bytes, panicking if the CSPRNG
// fails. Used where there is no secret state to unwind and continuing
// without entropy would be worse than crashing.
func MustSecureRandomBytes(n int) []byte {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		panic("crypto: CSPRNG failure: " + err.Error())
	}
	return b
}

// ConstantTimeCompare compares two byte slices in constant time with
// respect to their contents. Returns false for unequal lengths.
func ConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result byte
	for i := range a {
		result |= a[i] ^ b[i]
	}
	return result == 0
}

// Zeroize overwrites b with zeros. Called on traffic secrets and key
// schedule intermediates when a connection closes.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroizeMultiple zeroizes each slice.
func ZeroizeMultiple(slices ...[]byte) {
	for _, s := range slices {
		Zeroize(s)
	}
}
