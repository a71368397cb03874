package protocol

import (
	"testing"

	"github.com/grahamking/ort/internal/constants"
)

// The parsers face attacker-controlled bytes before any authentication
// exists, so they must never panic, whatever arrives.

func FuzzUnmarshalServerHello(f *testing.F) {
	var random [32]byte
	f.Add(buildServerHello(random, 0x1301, constants.VersionTLS13, constants.GroupX25519, make([]byte, 32)))
	f.Add([]byte{})
	f.Add([]byte{0x03, 0x03})
	f.Fuzz(func(t *testing.T, data []byte) {
		sh, err := UnmarshalServerHello(data)
		if err == nil && sh == nil {
			t.Error("nil message without error")
		}
	})
}

func FuzzUnmarshalCertificate(f *testing.F) {
	f.Add([]byte{0, 0, 0, 8, 0, 0, 3, 1, 2, 3, 0, 0})
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		cert, err := UnmarshalCertificate(data)
		if err == nil && len(cert.Leaf) == 0 {
			t.Error("empty leaf without error")
		}
	})
}

func FuzzUnmarshalEncryptedExtensions(f *testing.F) {
	f.Add([]byte{0, 0})
	f.Add([]byte{0, 4, 0xff, 0x01, 0, 0})
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = UnmarshalEncryptedExtensions(data)
	})
}

func FuzzParseHandshakeHeader(f *testing.F) {
	f.Add([]byte{1, 0, 0, 5})
	f.Fuzz(func(t *testing.T, data []byte) {
		_, length, err := ParseHandshakeHeader(data)
		if err == nil && length > constants.MaxHandshakeMessageSize {
			t.Errorf("oversize length %d accepted", length)
		}
	})
}
