// Known Answer Tests for AES-128 and GCM, plus differential tests against
// the standard library's implementations (crypto/aes + cipher.NewGCM).
package crypto_test

import (
	"bytes"
	stdaes "crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	qerrors "github.com/grahamking/ort/internal/errors"
	"github.com/grahamking/ort/pkg/crypto"
)

func TestAES128Vectors(t *testing.T) {
	testCases := []struct {
		name      string
		key       string
		plaintext string
		expected  string
	}{
		{
			// FIPS 197 Appendix C.1.
			name:      "fips 197 example",
			key:       "000102030405060708090a0b0c0d0e0f",
			plaintext: "00112233445566778899aabbccddeeff",
			expected:  "69c4e0d86a7b0430d8cdb78070b4c55a",
		},
		{
			name:      "all zero",
			key:       "00000000000000000000000000000000",
			plaintext: "00000000000000000000000000000000",
			expected:  "66e94bd4ef8a2c3b884cfa59ca342b2e",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			block, err := crypto.NewAES128(mustHex(t, tc.key))
			if err != nil {
				t.Fatalf("NewAES128: %v", err)
			}
			got := make([]byte, 16)
			block.EncryptBlock(got, mustHex(t, tc.plaintext))
			if hex.EncodeToString(got) != tc.expected {
				t.Errorf("EncryptBlock = %x, want %s", got, tc.expected)
			}
		})
	}
}

// TestAES128AgainstStdlib runs random blocks through both implementations.
func TestAES128AgainstStdlib(t *testing.T) {
	for i := 0; i < 50; i++ {
		key := crypto.MustSecureRandomBytes(16)
		pt := crypto.MustSecureRandomBytes(16)

		ours, err := crypto.NewAES128(key)
		if err != nil {
			t.Fatalf("NewAES128: %v", err)
		}
		ref, err := stdaes.NewCipher(key)
		if err != nil {
			t.Fatalf("stdlib: %v", err)
		}

		got := make([]byte, 16)
		want := make([]byte, 16)
		ours.EncryptBlock(got, pt)
		ref.Encrypt(want, pt)
		if !bytes.Equal(got, want) {
			t.Fatalf("key %x pt %x: got %x, want %x", key, pt, got, want)
		}
	}
}

func TestAES128RejectsBadKey(t *testing.T) {
	if _, err := crypto.NewAES128(make([]byte, 24)); err == nil {
		t.Error("expected error for 24-byte key")
	}
}

func TestGCMVectors(t *testing.T) {
	// NIST GCM revised spec, test cases 1 and 2 (AES-128).
	testCases := []struct {
		name       string
		key        string
		iv         string
		plaintext  string
		ciphertext string
		tag        string
	}{
		{
			name: "empty plaintext",
			key:  "00000000000000000000000000000000",
			iv:   "000000000000000000000000",
			tag:  "58e2fccefa7e3061367f1d57a4e7455a",
		},
		{
			name:       "single zero block",
			key:        "00000000000000000000000000000000",
			iv:         "000000000000000000000000",
			plaintext:  "00000000000000000000000000000000",
			ciphertext: "0388dace60b6a392f328c2b971b2fe78",
			tag:        "ab6e47d42cec13bdf53a67b21257bddf",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := crypto.NewGCM(mustHex(t, tc.key))
			if err != nil {
				t.Fatalf("NewGCM: %v", err)
			}
			sealed, err := g.Seal(mustHex(t, tc.iv), mustHex(t, tc.plaintext), nil)
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			want := tc.ciphertext + tc.tag
			if hex.EncodeToString(sealed) != want {
				t.Errorf("Seal = %x, want %s", sealed, want)
			}

			opened, err := g.Open(mustHex(t, tc.iv), sealed, nil)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if hex.EncodeToString(opened) != tc.plaintext {
				t.Errorf("Open = %x, want %s", opened, tc.plaintext)
			}
		})
	}
}

// TestGCMAgainstStdlib compares seal output with cipher.NewGCM across
// random keys, nonces, AAD, and plaintext sizes spanning block edges.
func TestGCMAgainstStdlib(t *testing.T) {
	sizes := []int{0, 1, 15, 16, 17, 31, 32, 100, 1000}
	for _, size := range sizes {
		key := crypto.MustSecureRandomBytes(16)
		nonce := crypto.MustSecureRandomBytes(12)
		aad := crypto.MustSecureRandomBytes(23)
		pt := crypto.MustSecureRandomBytes(size)

		ours, err := crypto.NewGCM(key)
		if err != nil {
			t.Fatalf("NewGCM: %v", err)
		}
		block, _ := stdaes.NewCipher(key)
		ref, _ := cipher.NewGCM(block)

		got, err := ours.Seal(nonce, pt, aad)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		want := ref.Seal(nil, nonce, pt, aad)
		if !bytes.Equal(got, want) {
			t.Fatalf("size %d: seal mismatch\ngot  %x\nwant %x", size, got, want)
		}
	}
}

func TestGCMAuthFailure(t *testing.T) {
	key := crypto.MustSecureRandomBytes(16)
	nonce := crypto.MustSecureRandomBytes(12)
	aad := []byte("header")
	pt := []byte("some record plaintext")

	g, err := crypto.NewGCM(key)
	if err != nil {
		t.Fatalf("NewGCM: %v", err)
	}
	sealed, err := g.Seal(nonce, pt, aad)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Flip each bit position of the first and last ciphertext bytes and
	// the first and last tag bytes.
	for _, idx := range []int{0, len(pt) - 1, len(pt), len(sealed) - 1} {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte{}, sealed...)
			corrupt[idx] ^= 1 << bit
			if _, err := g.Open(nonce, corrupt, aad); !qerrors.Is(err, qerrors.ErrAuthenticationFailed) {
				t.Fatalf("bit %d of byte %d: expected auth failure, got %v", bit, idx, err)
			}
		}
	}

	// Changed AAD must also fail.
	if _, err := g.Open(nonce, sealed, []byte("he4der")); !qerrors.Is(err, qerrors.ErrAuthenticationFailed) {
		t.Errorf("expected auth failure on AAD change, got %v", err)
	}

	// And the happy path still opens.
	opened, err := g.Open(nonce, sealed, aad)
	if err != nil || !bytes.Equal(opened, pt) {
		t.Errorf("Open after corruption tests: %v", err)
	}
}

func TestGCMRejectsShortInputs(t *testing.T) {
	g, err := crypto.NewGCM(make([]byte, 16))
	if err != nil {
		t.Fatalf("NewGCM: %v", err)
	}
	if _, err := g.Seal(make([]byte, 8), nil, nil); !qerrors.Is(err, qerrors.ErrInvalidNonce) {
		t.Errorf("short nonce: got %v", err)
	}
	if _, err := g.Open(make([]byte, 12), make([]byte, 15), nil); !qerrors.Is(err, qerrors.ErrCiphertextTooShort) {
		t.Errorf("short ciphertext: got %v", err)
	}
}
