// Package constants defines the protocol parameters and size limits for the
// ort TLS 1.3 client.
//
// The client implements exactly one configuration of RFC 8446: the
// TLS_AES_128_GCM_SHA256 cipher suite over an X25519 key exchange. The
// constants here are therefore a narrow slice of the TLS registries, not a
// general-purpose catalogue.
package constants

// Protocol versions on the wire.
const (
	// VersionTLS12 is the legacy_version carried in record headers and
	// hello messages (0x0303). TLS 1.3 freezes this field for middlebox
	// compatibility.
	VersionTLS12 uint16 = 0x0303

	// VersionTLS13 is the real protocol version, negotiated only through
	// the supported_versions extension.
	VersionTLS13 uint16 = 0x0304
)

// ContentType identifies the payload of a TLS record.
type ContentType uint8

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

// String returns the RFC name for the content type.
func (ct ContentType) String() string {
	switch ct {
	case ContentTypeChangeCipherSpec:
		return "change_cipher_spec"
	case ContentTypeAlert:
		return "alert"
	case ContentTypeHandshake:
		return "handshake"
	case ContentTypeApplicationData:
		return "application_data"
	default:
		return "unknown"
	}
}

// HandshakeType identifies a handshake message.
type HandshakeType uint8

const (
	HandshakeTypeClientHello         HandshakeType = 1
	HandshakeTypeServerHello         HandshakeType = 2
	HandshakeTypeEncryptedExtensions HandshakeType = 8
	HandshakeTypeCertificate         HandshakeType = 11
	HandshakeTypeCertificateVerify   HandshakeType = 15
	HandshakeTypeFinished            HandshakeType = 20
)

// String returns the RFC name for the handshake message type.
func (ht HandshakeType) String() string {
	switch ht {
	case HandshakeTypeClientHello:
		return "client_hello"
	case HandshakeTypeServerHello:
		return "server_hello"
	case HandshakeTypeEncryptedExtensions:
		return "encrypted_extensions"
	case HandshakeTypeCertificate:
		return "certificate"
	case HandshakeTypeCertificateVerify:
		return "certificate_verify"
	case HandshakeTypeFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// CipherSuite identifiers. Only TLS_AES_128_GCM_SHA256 is implemented.
type CipherSuite uint16

const (
	// CipherSuiteAES128GCMSHA256 is TLS_AES_128_GCM_SHA256 (RFC 8446).
	CipherSuiteAES128GCMSHA256 CipherSuite = 0x1301
)

// String returns a human-readable name for the cipher suite.
func (cs CipherSuite) String() string {
	switch cs {
	case CipherSuiteAES128GCMSHA256:
		return "TLS_AES_128_GCM_SHA256"
	default:
		return "Unknown"
	}
}

// IsSupported returns true if the cipher suite is implemented.
func (cs CipherSuite) IsSupported() bool {
	return cs == CipherSuiteAES128GCMSHA256
}

// Extension type codes used in the ClientHello.
const (
	ExtensionServerName          uint16 = 0x0000
	ExtensionSupportedGroups     uint16 = 0x000a
	ExtensionSignatureAlgorithms uint16 = 0x000d
	ExtensionSupportedVersions   uint16 = 0x002b
	ExtensionKeyShare            uint16 = 0x0033
)

// Named group codes. Only x25519 is implemented.
const (
	GroupX25519 uint16 = 0x001d
)

// Signature scheme codes advertised in signature_algorithms. The server's
// CertificateVerify signature is not checked, but the offered set mirrors
// what a browser would send so that servers pick a familiar scheme.
const (
	SignatureRSAPSSRSAESHA256 uint16 = 0x0804
	SignatureECDSAP256SHA256  uint16 = 0x0403
	SignatureRSAPKCS1SHA256   uint16 = 0x0401
	SignatureEd25519          uint16 = 0x0807
)

// X25519 parameters (RFC 7748).
const (
	// X25519KeySize is the size of X25519 public keys, private scalars,
	// and shared secrets in bytes.
	X25519KeySize = 32
)

// AEAD parameters for AES-128-GCM.
const (
	// AESKeySize is the size of AES-128 keys in bytes.
	AESKeySize = 16

	// AESNonceSize is the size of the per-record GCM nonce in bytes (96 bits).
	AESNonceSize = 12

	// AESTagSize is the size of the GCM authentication tag in bytes.
	AESTagSize = 16

	// AESBlockSize is the AES block size in bytes.
	AESBlockSize = 16
)

// Hash and transcript parameters.
const (
	// HashSize is the SHA-256 output size in bytes.
	HashSize = 32

	// TrafficSecretSize is the size of a derived traffic secret in bytes.
	TrafficSecretSize = 32
)

// Record layer limits (RFC 8446 section 5).
const (
	// RecordHeaderSize is the fixed TLS record header size in bytes.
	RecordHeaderSize = 5

	// MaxPlaintextSize is the maximum plaintext fragment per record.
	MaxPlaintextSize = 1 << 14

	// MaxCiphertextSize is the maximum protected fragment per record:
	// plaintext plus inner content type, padding, and AEAD expansion.
	MaxCiphertextSize = MaxPlaintextSize + 256

	// MaxHandshakeMessageSize is the maximum accepted handshake message
	// body. Messages above this are rejected.
	MaxHandshakeMessageSize = 1 << 14

	// MaxHandshakeAccumulator bounds the buffer holding handshake bytes
	// that span records while a message is reassembled.
	MaxHandshakeAccumulator = 64 * 1024
)

// Handshake message framing.
const (
	// HandshakeHeaderSize is the handshake message header: 1 byte type
	// plus a 24-bit big-endian length.
	HandshakeHeaderSize = 4

	// RandomSize is the size of hello randoms and the legacy session id.
	RandomSize = 32
)

// HTTP adapter limits.
const (
	// MaxHeaderBytes bounds the HTTP response head (status line plus
	// headers) the adapter will buffer.
	MaxHeaderBytes = 64 * 1024

	// MaxSSELineBytes bounds a single SSE line.
	MaxSSELineBytes = 1 << 20
)

// DefaultPort is the HTTPS port used when the caller does not override it.
const DefaultPort = 443
