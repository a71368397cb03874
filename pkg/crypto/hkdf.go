// hkdf.go implements HKDF (RFC 5869) over HMAC-SHA256, plus the TLS 1.3
// labelled variants from RFC 8446 section 7.1.
//
// HKDF-Expand-Label wraps HKDF-Expand with a HkdfLabel structure:
//
//	struct {
//	    uint16 length;
//	    opaque label<7..255>;   // "tls13 " || Label
//	    opaque context<0..255>;
//	} HkdfLabel;
package crypto

import (
	"encoding/binary"

	"github.com/grahamking/ort/internal/errors"
)

// tls13LabelPrefix is prepended to every HKDF-Expand-Label label.
const tls13LabelPrefix = "tls13 "

// HKDFExtract computes PRK = HMAC-Hash(salt, ikm). A nil or empty salt is
// replaced by a string of HashLen zeros, per RFC 5869.
func HKDFExtract(salt, ikm []byte) [Size]byte {
	if len(salt) == 0 {
		salt = make([]byte, Size)
	}
	return HMACSHA256(salt, ikm)
}

// HKDFExpand derives length bytes of output keying material from prk and
// info. Length must not exceed 255 * HashLen.
func HKDFExpand(prk, info []byte, length int) ([]byte, error) {
	if length < 0 || length > 255*Size {
		return nil, errors.ErrInvalidKeySize
	}

	out := make([]byte, 0, length)
	var t []byte
	var counter byte
	for len(out) < length {
		counter++
		h := NewHMAC(prk)
		h.Write(t)                 //nolint:errcheck // never fails
		h.Write(info)              //nolint:errcheck
		h.Write([]byte{counter})   //nolint:errcheck
		block := h.Sum()
		t = block[:]
		out = append(out, t...)
	}
	return out[:length], nil
}

// HKDFExpandLabel implements HKDF-Expand-Label(secret, label, context,
// length) from RFC 8446. The label is given without the "tls13 " prefix.
func HKDFExpandLabel(secret []byte, label string, context []byte, length int) ([]byte, error) {
	fullLabel := tls13LabelPrefix + label
	if len(fullLabel) > 255 || len(context) > 255 {
		return nil, errors.ErrInvalidKeySize
	}

	info := make([]byte, 0, 2+1+len(fullLabel)+1+len(context))
	info = binary.BigEndian.AppendUint16(info, uint16(length))
	info = append(info, byte(len(fullLabel)))
	info = append(info, fullLabel...)
	info = append(info, byte(len(context)))
	info = append(info, context...)

	return HKDFExpand(secret, info, length)
}

// DeriveSecret implements Derive-Secret(secret, label, messages) from
// RFC 8446: HKDF-Expand-Label with the transcript hash as context and the
// hash length as output size. transcriptHash is the already-computed
// Transcript-Hash(messages), not the messages themselves.
func DeriveSecret(secret []byte, label string, transcriptHash []byte) ([]byte, error) {
	return HKDFExpandLabel(secret, label, transcriptHash, Size)
}
