// messages.go defines the six handshake messages the client path accepts,
// with Marshal/Unmarshal over their body bytes (the 4-byte handshake
// header is handled separately, because a message may span records).
package protocol

import (
	"encoding/binary"

	"github.com/grahamking/ort/internal/constants"
	"github.com/grahamking/ort/internal/errors"
)

// Message is a parsed handshake message body.
type Message interface {
	// Type returns the handshake message type.
	Type() constants.HandshakeType
}

// EncodeHandshakeHeader prepends the 4-byte handshake header (1-byte type,
// 24-bit big-endian length) to body.
func EncodeHandshakeHeader(ht constants.HandshakeType, body []byte) []byte {
	out := make([]byte, constants.HandshakeHeaderSize+len(body))
	out[0] = byte(ht)
	out[1] = byte(len(body) >> 16)
	out[2] = byte(len(body) >> 8)
	out[3] = byte(len(body))
	copy(out[constants.HandshakeHeaderSize:], body)
	return out
}

// ParseHandshakeHeader reads a handshake header, returning the type and
// body length.
func ParseHandshakeHeader(data []byte) (constants.HandshakeType, int, error) {
	if len(data) < constants.HandshakeHeaderSize {
		return 0, 0, errors.ErrBufferTooSmall
	}
	ht := constants.HandshakeType(data[0])
	length := int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if length > constants.MaxHandshakeMessageSize {
		return 0, 0, errors.ErrHandshakeTooLarge
	}
	return ht, length, nil
}

// --- ClientHello ---

// ClientHello is the first flight. The client offers exactly one cipher
// suite and one key share; everything else is fixed.
type ClientHello struct {
	Random     [constants.RandomSize]byte
	SessionID  []byte // 32 random bytes, to look browser-like
	ServerName string
	KeyShare   [constants.X25519KeySize]byte
}

// Type returns the handshake message type.
func (m ClientHello) Type() constants.HandshakeType {
	return constants.HandshakeTypeClientHello
}

// Marshal encodes the ClientHello body.
func (m *ClientHello) Marshal() ([]byte, error) {
	if len(m.SessionID) != constants.RandomSize {
		return nil, errors.ErrInvalidKeySize
	}

	var b []byte
	b = binary.BigEndian.AppendUint16(b, constants.VersionTLS12)
	b = append(b, m.Random[:]...)

	b = append(b, byte(len(m.SessionID)))
	b = append(b, m.SessionID...)

	// cipher_suites: just TLS_AES_128_GCM_SHA256.
	b = binary.BigEndian.AppendUint16(b, 2)
	b = binary.BigEndian.AppendUint16(b, uint16(constants.CipherSuiteAES128GCMSHA256))

	// legacy_compression_methods: null only.
	b = append(b, 1, 0)

	ext := m.marshalExtensions()
	b = binary.BigEndian.AppendUint16(b, uint16(len(ext)))
	b = append(b, ext...)
	return b, nil
}

func (m *ClientHello) marshalExtensions() []byte {
	var b []byte

	// server_name: one host_name entry.
	name := []byte(m.ServerName)
	var sni []byte
	sni = binary.BigEndian.AppendUint16(sni, uint16(1+2+len(name))) // server_name_list
	sni = append(sni, 0)                                            // name_type host_name
	sni = binary.BigEndian.AppendUint16(sni, uint16(len(name)))
	sni = append(sni, name...)
	b = appendExtension(b, constants.ExtensionServerName, sni)

	// supported_versions: 1.3 only.
	b = appendExtension(b, constants.ExtensionSupportedVersions, []byte{2, 0x03, 0x04})

	// supported_groups: x25519 only.
	groups := []byte{0x00, 0x02, 0x00, 0x1d}
	b = appendExtension(b, constants.ExtensionSupportedGroups, groups)

	// signature_algorithms: what the server is likely to pick. Serialized
	// but never checked against the CertificateVerify.
	var sigs []byte
	schemes := []uint16{
		constants.SignatureRSAPSSRSAESHA256,
		constants.SignatureECDSAP256SHA256,
		constants.SignatureRSAPKCS1SHA256,
		constants.SignatureEd25519,
	}
	sigs = binary.BigEndian.AppendUint16(sigs, uint16(2*len(schemes)))
	for _, s := range schemes {
		sigs = binary.BigEndian.AppendUint16(sigs, s)
	}
	b = appendExtension(b, constants.ExtensionSignatureAlgorithms, sigs)

	// key_share: single x25519 entry.
	var ks []byte
	ks = binary.BigEndian.AppendUint16(ks, uint16(2+2+len(m.KeyShare))) // client_shares
	ks = binary.BigEndian.AppendUint16(ks, constants.GroupX25519)
	ks = binary.BigEndian.AppendUint16(ks, uint16(len(m.KeyShare)))
	ks = append(ks, m.KeyShare[:]...)
	b = appendExtension(b, constants.ExtensionKeyShare, ks)

	return b
}

func appendExtension(b []byte, extType uint16, data []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, extType)
	b = binary.BigEndian.AppendUint16(b, uint16(len(data)))
	return append(b, data...)
}

// --- ServerHello ---

// HelloRetryRequestRandom is the fixed random that marks a ServerHello as
// a HelloRetryRequest (RFC 8446 section 4.1.3).
var HelloRetryRequestRandom = [constants.RandomSize]byte{
	0xcf, 0x21, 0xad, 0x74, 0xe5, 0x9a, 0x61, 0x11,
	0xbe, 0x1d, 0x8c, 0x02, 0x1e, 0x65, 0xb8, 0x91,
	0xc2, 0xa2, 0x11, 0x16, 0x7a, 0xbb, 0x8c, 0x5e,
	0x07, 0x9e, 0x09, 0xe2, 0xc8, 0xa8, 0x33, 0x9c,
}

// Downgrade sentinels carried in the last 8 bytes of the random when a
// TLS-1.3-capable server negotiates an older version (RFC 8446 4.1.3).
var (
	downgradeTLS12 = [8]byte{0x44, 0x4f, 0x57, 0x4e, 0x47, 0x52, 0x44, 0x01}
	downgradeTLS11 = [8]byte{0x44, 0x4f, 0x57, 0x4e, 0x47, 0x52, 0x44, 0x00}
)

// ServerHello is the server's reply to the ClientHello.
type ServerHello struct {
	LegacyVersion   uint16
	Random          [constants.RandomSize]byte
	SessionIDEcho   []byte
	CipherSuite     constants.CipherSuite
	SelectedVersion uint16 // from supported_versions; 0 when absent
	KeyShareGroup   uint16
	KeySharePeer    []byte // 32-byte x25519 public key
}

// Type returns the handshake message type.
func (m ServerHello) Type() constants.HandshakeType {
	return constants.HandshakeTypeServerHello
}

// IsHelloRetryRequest reports whether the random carries the HRR sentinel.
func (m *ServerHello) IsHelloRetryRequest() bool {
	return m.Random == HelloRetryRequestRandom
}

// IsDowngrade reports whether the random carries either downgrade
// sentinel suffix.
func (m *ServerHello) IsDowngrade() bool {
	var tail [8]byte
	copy(tail[:], m.Random[constants.RandomSize-8:])
	return tail == downgradeTLS12 || tail == downgradeTLS11
}

// UnmarshalServerHello parses a ServerHello body.
func UnmarshalServerHello(data []byte) (*ServerHello, error) {
	m := &ServerHello{}
	if len(data) < 2+constants.RandomSize+1 {
		return nil, errors.ErrBufferTooSmall
	}
	m.LegacyVersion = binary.BigEndian.Uint16(data)
	copy(m.Random[:], data[2:])
	offset := 2 + constants.RandomSize

	sessLen := int(data[offset])
	offset++
	if sessLen > 32 || len(data) < offset+sessLen+3 {
		return nil, errors.ErrBufferTooSmall
	}
	m.SessionIDEcho = append([]byte{}, data[offset:offset+sessLen]...)
	offset += sessLen

	m.CipherSuite = constants.CipherSuite(binary.BigEndian.Uint16(data[offset:]))
	offset += 2

	if data[offset] != 0 {
		// legacy_compression_method must be null.
		return nil, errors.ErrUnexpectedMessage
	}
	offset++

	if len(data) < offset+2 {
		return nil, errors.ErrBufferTooSmall
	}
	extLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) < offset+extLen {
		return nil, errors.ErrBufferTooSmall
	}
	ext := data[offset : offset+extLen]

	for len(ext) > 0 {
		if len(ext) < 4 {
			return nil, errors.ErrBufferTooSmall
		}
		extType := binary.BigEndian.Uint16(ext)
		length := int(binary.BigEndian.Uint16(ext[2:]))
		ext = ext[4:]
		if len(ext) < length {
			return nil, errors.ErrBufferTooSmall
		}
		body := ext[:length]
		ext = ext[length:]

		switch extType {
		case constants.ExtensionSupportedVersions:
			if length != 2 {
				return nil, errors.ErrBufferTooSmall
			}
			m.SelectedVersion = binary.BigEndian.Uint16(body)
		case constants.ExtensionKeyShare:
			if length < 4 {
				return nil, errors.ErrBufferTooSmall
			}
			m.KeyShareGroup = binary.BigEndian.Uint16(body)
			keyLen := int(binary.BigEndian.Uint16(body[2:]))
			if len(body) != 4+keyLen {
				return nil, errors.ErrBufferTooSmall
			}
			m.KeySharePeer = append([]byte{}, body[4:]...)
		default:
			// Unknown ServerHello extensions are ignored.
		}
	}
	return m, nil
}

// --- EncryptedExtensions ---

// EncryptedExtensions carries server extensions the client mostly ignores.
type EncryptedExtensions struct {
	// Raw holds the undecoded extension block for debugging.
	Raw []byte
}

// Type returns the handshake message type.
func (m EncryptedExtensions) Type() constants.HandshakeType {
	return constants.HandshakeTypeEncryptedExtensions
}

// extensionEarlyData is forbidden here without a prior PSK offer.
const extensionEarlyData uint16 = 0x002a

// UnmarshalEncryptedExtensions parses the message, ignoring unknown
// extensions. early_data is rejected: the client never offered a PSK.
func UnmarshalEncryptedExtensions(data []byte) (*EncryptedExtensions, error) {
	if len(data) < 2 {
		return nil, errors.ErrBufferTooSmall
	}
	extLen := int(binary.BigEndian.Uint16(data))
	if len(data) != 2+extLen {
		return nil, errors.ErrBufferTooSmall
	}
	ext := data[2:]
	m := &EncryptedExtensions{Raw: append([]byte{}, ext...)}

	for len(ext) > 0 {
		if len(ext) < 4 {
			return nil, errors.ErrBufferTooSmall
		}
		extType := binary.BigEndian.Uint16(ext)
		length := int(binary.BigEndian.Uint16(ext[2:]))
		ext = ext[4:]
		if len(ext) < length {
			return nil, errors.ErrBufferTooSmall
		}
		if extType == extensionEarlyData {
			return nil, errors.ErrUnexpectedMessage
		}
		ext = ext[length:]
	}
	return m, nil
}

// --- Certificate ---

// Certificate carries the server chain. Only the leaf DER is extracted;
// the chain is neither parsed further nor validated.
type Certificate struct {
	// Leaf is the first certificate's DER bytes.
	Leaf []byte
}

// Type returns the handshake message type.
func (m Certificate) Type() constants.HandshakeType {
	return constants.HandshakeTypeCertificate
}

// UnmarshalCertificate parses far enough to pull out the leaf certificate:
// certificate_request_context, then a 24-bit-length list of entries, each
// a 24-bit-length DER blob plus a 16-bit-length extension block.
func UnmarshalCertificate(data []byte) (*Certificate, error) {
	if len(data) < 4 {
		return nil, errors.ErrBufferTooSmall
	}
	ctxLen := int(data[0])
	offset := 1 + ctxLen
	if len(data) < offset+3 {
		return nil, errors.ErrBufferTooSmall
	}
	listLen := int(data[offset])<<16 | int(data[offset+1])<<8 | int(data[offset+2])
	offset += 3
	if len(data) != offset+listLen {
		return nil, errors.ErrBufferTooSmall
	}

	m := &Certificate{}
	rest := data[offset:]
	for len(rest) > 0 {
		if len(rest) < 3 {
			return nil, errors.ErrBufferTooSmall
		}
		certLen := int(rest[0])<<16 | int(rest[1])<<8 | int(rest[2])
		rest = rest[3:]
		if len(rest) < certLen+2 {
			return nil, errors.ErrBufferTooSmall
		}
		if m.Leaf == nil {
			m.Leaf = append([]byte{}, rest[:certLen]...)
		}
		rest = rest[certLen:]

		extLen := int(binary.BigEndian.Uint16(rest))
		rest = rest[2:]
		if len(rest) < extLen {
			return nil, errors.ErrBufferTooSmall
		}
		rest = rest[extLen:]
	}
	if m.Leaf == nil {
		return nil, errors.ErrBufferTooSmall
	}
	return m, nil
}

// --- CertificateVerify ---

// CertificateVerify carries the server's signature over the transcript.
// It is parsed and hashed into the transcript but deliberately not
// verified; see the trust note on tls13.Conn.
type CertificateVerify struct {
	Algorithm uint16
	Signature []byte
}

// Type returns the handshake message type.
func (m CertificateVerify) Type() constants.HandshakeType {
	return constants.HandshakeTypeCertificateVerify
}

// UnmarshalCertificateVerify parses the algorithm and signature.
func UnmarshalCertificateVerify(data []byte) (*CertificateVerify, error) {
	if len(data) < 4 {
		return nil, errors.ErrBufferTooSmall
	}
	m := &CertificateVerify{Algorithm: binary.BigEndian.Uint16(data)}
	sigLen := int(binary.BigEndian.Uint16(data[2:]))
	if len(data) != 4+sigLen {
		return nil, errors.ErrBufferTooSmall
	}
	m.Signature = append([]byte{}, data[4:]...)
	return m, nil
}

// --- Finished ---

// Finished carries verify_data: HMAC(finished_key, transcript hash).
type Finished struct {
	VerifyData [constants.HashSize]byte
}

// Type returns the handshake message type.
func (m Finished) Type() constants.HandshakeType {
	return constants.HandshakeTypeFinished
}

// Marshal returns the verify_data as the message body.
func (m *Finished) Marshal() ([]byte, error) {
	return append([]byte{}, m.VerifyData[:]...), nil
}

// UnmarshalFinished parses a Finished body. The length must equal the
// transcript hash length.
func UnmarshalFinished(data []byte) (*Finished, error) {
	if len(data) != constants.HashSize {
		return nil, errors.ErrBufferTooSmall
	}
	m := &Finished{}
	copy(m.VerifyData[:], data)
	return m, nil
}
