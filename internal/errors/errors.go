// Package errors defines the error domain for the ort TLS client.
// Errors are typed by kind so that callers can distinguish transport
// failures from protocol violations and cryptographic failures without
// string matching.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a connection error.
type Kind int

const (
	// KindIo is an underlying socket read/write/connect failure.
	KindIo Kind = iota

	// KindProtocol is a malformed record or handshake message, an
	// unexpected message for the current state, or a forbidden extension.
	KindProtocol

	// KindCrypto is an AEAD tag mismatch, a Finished HMAC mismatch, or an
	// all-zero X25519 shared secret.
	KindCrypto

	// KindUnsupported means the server selected a cipher, group, or
	// version the client does not implement, or sent a HelloRetryRequest.
	KindUnsupported

	// KindClosed means the peer sent close_notify or a prior fatal error
	// already terminated the connection.
	KindClosed

	// KindTimeout means an OS-level socket deadline fired.
	KindTimeout
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindIo:
		return "io"
	case KindProtocol:
		return "protocol"
	case KindCrypto:
		return "crypto"
	case KindUnsupported:
		return "unsupported"
	case KindClosed:
		return "closed"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ConnError is a connection error with a kind, an operation, and an
// optional underlying cause.
type ConnError struct {
	Kind Kind
	Op   string // operation that failed, e.g. "handshake", "read_record"
	Err  error  // underlying error, may be nil
}

func (e *ConnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// New creates a ConnError.
func New(kind Kind, op string, err error) *ConnError {
	return &ConnError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindIo if err carries no ConnError.
func KindOf(err error) Kind {
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindIo
}

// Sentinel errors for record layer operations.
var (
	// ErrRecordTooLarge indicates a record length field above the
	// ciphertext limit.
	ErrRecordTooLarge = errors.New("record: length exceeds limit")

	// ErrRecordEmpty indicates a protected record whose plaintext was
	// empty after removing padding and the inner content type.
	ErrRecordEmpty = errors.New("record: empty plaintext after unpadding")

	// ErrBadRecordMAC indicates AEAD authentication failed.
	ErrBadRecordMAC = errors.New("record: bad record MAC")

	// ErrSequenceOverflow indicates the 64-bit record sequence wrapped.
	ErrSequenceOverflow = errors.New("record: sequence number overflow")

	// ErrUnexpectedCCS indicates a change_cipher_spec after application
	// data began.
	ErrUnexpectedCCS = errors.New("record: change_cipher_spec after application data")
)

// Sentinel errors for handshake operations.
var (
	// ErrBufferTooSmall indicates a message was shorter than its fixed
	// fields require.
	ErrBufferTooSmall = errors.New("handshake: buffer too small")

	// ErrUnexpectedMessage indicates a handshake message arrived in the
	// wrong state.
	ErrUnexpectedMessage = errors.New("handshake: unexpected message")

	// ErrHandshakeTooLarge indicates a handshake message above the size
	// limit, or accumulator overflow during reassembly.
	ErrHandshakeTooLarge = errors.New("handshake: message too large")

	// ErrHelloRetryRequest indicates the server answered with a
	// HelloRetryRequest, which the client does not support.
	ErrHelloRetryRequest = errors.New("handshake: HelloRetryRequest not supported")

	// ErrUnsupportedSuite indicates the server selected a cipher suite
	// other than TLS_AES_128_GCM_SHA256.
	ErrUnsupportedSuite = errors.New("handshake: unsupported cipher suite")

	// ErrUnsupportedGroup indicates a key_share group other than x25519.
	ErrUnsupportedGroup = errors.New("handshake: unsupported named group")

	// ErrUnsupportedVersion indicates supported_versions did not select
	// TLS 1.3.
	ErrUnsupportedVersion = errors.New("handshake: unsupported protocol version")

	// ErrFinishedMismatch indicates the server Finished verify_data did
	// not match the transcript HMAC.
	ErrFinishedMismatch = errors.New("handshake: finished verify_data mismatch")

	// ErrZeroSharedSecret indicates the X25519 exchange produced the
	// all-zero shared secret.
	ErrZeroSharedSecret = errors.New("handshake: all-zero shared secret")
)

// Sentinel errors for crypto primitives.
var (
	// ErrInvalidKeySize indicates a key of the wrong length.
	ErrInvalidKeySize = errors.New("crypto: invalid key size")

	// ErrInvalidNonce indicates a nonce of the wrong length.
	ErrInvalidNonce = errors.New("crypto: invalid nonce size")

	// ErrAuthenticationFailed indicates AEAD open failed.
	ErrAuthenticationFailed = errors.New("crypto: authentication failed")

	// ErrCiphertextTooShort indicates a ciphertext shorter than the tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

	// ErrMessageTooLarge indicates a plaintext above the AEAD limit.
	ErrMessageTooLarge = errors.New("crypto: message too large")
)

// Sentinel errors for connection lifecycle.
var (
	// ErrConnClosed indicates the connection is in its terminal state.
	ErrConnClosed = errors.New("conn: connection closed")

	// ErrCloseNotify indicates the peer ended the session cleanly.
	ErrCloseNotify = errors.New("conn: close_notify received")
)

// Sentinel errors for the HTTP/SSE adapter.
var (
	// ErrMalformedResponse indicates an unparsable status line or header.
	ErrMalformedResponse = errors.New("http: malformed response")

	// ErrHeaderTooLarge indicates the response head exceeded its bound.
	ErrHeaderTooLarge = errors.New("http: header block too large")

	// ErrBadChunk indicates a malformed chunked-encoding frame.
	ErrBadChunk = errors.New("http: malformed chunk")

	// ErrStreamCancelled indicates the caller's predicate stopped the
	// SSE read loop.
	ErrStreamCancelled = errors.New("http: stream cancelled")
)

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
