// Package protocol defines the TLS 1.3 wire types the client reads and
// writes: record headers, handshake messages, extensions, and alerts.
//
// Every type follows the same discipline: a value struct with Marshal
// producing exact wire bytes and Unmarshal rejecting anything malformed
// with a sentinel error. Interpretation (state checking, key derivation)
// lives in pkg/tls13; this package only moves bytes.
package protocol

import (
	"encoding/binary"

	"github.com/grahamking/ort/internal/constants"
	"github.com/grahamking/ort/internal/errors"
)

// RecordHeader is the 5-byte TLS record header.
//
//	+--------------+----------------+--------+
//	| ContentType  | LegacyVersion  | Length |
//	| 1B           | 2B (0x0303)    | 2B BE  |
//	+--------------+----------------+--------+
type RecordHeader struct {
	Type    constants.ContentType
	Version uint16
	Length  uint16
}

// Marshal encodes the header into its 5-byte wire form.
func (h RecordHeader) Marshal() [constants.RecordHeaderSize]byte {
	var out [constants.RecordHeaderSize]byte
	out[0] = byte(h.Type)
	binary.BigEndian.PutUint16(out[1:], h.Version)
	binary.BigEndian.PutUint16(out[3:], h.Length)
	return out
}

// UnmarshalRecordHeader parses a 5-byte record header. The length field is
// validated against the ciphertext limit; the content type is validated
// against the four known types.
func UnmarshalRecordHeader(data []byte) (RecordHeader, error) {
	if len(data) < constants.RecordHeaderSize {
		return RecordHeader{}, errors.ErrBufferTooSmall
	}
	h := RecordHeader{
		Type:    constants.ContentType(data[0]),
		Version: binary.BigEndian.Uint16(data[1:]),
		Length:  binary.BigEndian.Uint16(data[3:]),
	}
	switch h.Type {
	case constants.ContentTypeChangeCipherSpec,
		constants.ContentTypeAlert,
		constants.ContentTypeHandshake,
		constants.ContentTypeApplicationData:
	default:
		return RecordHeader{}, errors.ErrUnexpectedMessage
	}
	if int(h.Length) > constants.MaxCiphertextSize {
		return RecordHeader{}, errors.ErrRecordTooLarge
	}
	return h, nil
}

// CCSBody is the one legal change_cipher_spec payload.
var CCSBody = []byte{0x01}
