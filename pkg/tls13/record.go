// record.go implements the TLS 1.3 record layer: framing, AEAD
// protection, per-record nonces, and the change_cipher_spec tolerance
// required for middlebox compatibility.
package tls13

import (
	"io"

	"github.com/grahamking/ort/internal/constants"
	qerrors "github.com/grahamking/ort/internal/errors"
	"github.com/grahamking/ort/pkg/crypto"
	"github.com/grahamking/ort/pkg/protocol"
)

// recordLayer frames and protects records over a byte stream. It is owned
// by a single Conn and is not safe for concurrent use.
type recordLayer struct {
	rw io.ReadWriter

	// Write direction. Nil keys mean plaintext records.
	writeKeys *trafficKeys
	writeAEAD *crypto.GCM

	// Read direction.
	readKeys *trafficKeys
	readAEAD *crypto.GCM

	// appDataSeen flips when the first application_data record arrives;
	// change_cipher_spec records are fatal afterwards.
	appDataSeen bool

	// recvBuf holds exactly one record: header plus maximum ciphertext.
	recvBuf [constants.RecordHeaderSize + constants.MaxCiphertextSize]byte

	bytesIn  uint64
	bytesOut uint64
}

func newRecordLayer(rw io.ReadWriter) *recordLayer {
	return &recordLayer{rw: rw}
}

// setWriteKeys installs a new write direction secret. The sequence number
// resets to zero, as it must on every key change.
func (r *recordLayer) setWriteKeys(secret []byte) error {
	keys, err := trafficKeysFrom(secret)
	if err != nil {
		return err
	}
	aead, err := crypto.NewGCM(keys.key[:])
	if err != nil {
		return err
	}
	if r.writeKeys != nil {
		r.writeKeys.zeroize()
	}
	r.writeKeys = keys
	r.writeAEAD = aead
	return nil
}

// setReadKeys installs a new read direction secret.
func (r *recordLayer) setReadKeys(secret []byte) error {
	keys, err := trafficKeysFrom(secret)
	if err != nil {
		return err
	}
	aead, err := crypto.NewGCM(keys.key[:])
	if err != nil {
		return err
	}
	if r.readKeys != nil {
		r.readKeys.zeroize()
	}
	r.readKeys = keys
	r.readAEAD = aead
	return nil
}

// writeRecord frames and sends one record of the given true content type.
// payload must be at most MaxPlaintextSize; splitting is the caller's job.
func (r *recordLayer) writeRecord(ct constants.ContentType, payload []byte) error {
	if len(payload) > constants.MaxPlaintextSize {
		return qerrors.New(qerrors.KindProtocol, "write_record", qerrors.ErrRecordTooLarge)
	}

	var wire []byte
	if r.writeAEAD == nil || ct == constants.ContentTypeChangeCipherSpec {
		// Plaintext record. CCS is always sent unprotected.
		hdr := protocol.RecordHeader{
			Type:    ct,
			Version: constants.VersionTLS12,
			Length:  uint16(len(payload)),
		}.Marshal()
		wire = append(hdr[:], payload...)
	} else {
		// Protected record: the true type is appended to the plaintext,
		// the outer type is always application_data, and the AAD is the
		// final 5-byte header.
		if r.writeKeys.seq == 1<<64-1 {
			return qerrors.New(qerrors.KindProtocol, "write_record", qerrors.ErrSequenceOverflow)
		}
		inner := make([]byte, 0, len(payload)+1)
		inner = append(inner, payload...)
		inner = append(inner, byte(ct))

		hdr := protocol.RecordHeader{
			Type:    constants.ContentTypeApplicationData,
			Version: constants.VersionTLS12,
			Length:  uint16(len(inner) + constants.AESTagSize),
		}.Marshal()

		nonce := r.writeKeys.nonce()
		sealed, err := r.writeAEAD.Seal(nonce[:], inner, hdr[:])
		crypto.Zeroize(inner)
		if err != nil {
			return qerrors.New(qerrors.KindCrypto, "write_record", err)
		}
		r.writeKeys.seq++
		wire = append(hdr[:], sealed...)
	}

	if _, err := r.rw.Write(wire); err != nil {
		return wrapIOError("write_record", err)
	}
	r.bytesOut += uint64(len(wire))
	return nil
}

// readRecord pulls the next record, decrypting when read keys are
// installed. change_cipher_spec records are silently discarded until the
// first application_data record has been seen. The returned content type
// is the true (inner) type.
func (r *recordLayer) readRecord() (constants.ContentType, []byte, error) {
	for {
		hdrBuf := r.recvBuf[:constants.RecordHeaderSize]
		if _, err := io.ReadFull(r.rw, hdrBuf); err != nil {
			return 0, nil, wrapIOError("read_record", err)
		}
		hdr, err := protocol.UnmarshalRecordHeader(hdrBuf)
		if err != nil {
			return 0, nil, qerrors.New(qerrors.KindProtocol, "read_record", err)
		}

		body := r.recvBuf[constants.RecordHeaderSize : constants.RecordHeaderSize+int(hdr.Length)]
		if _, err := io.ReadFull(r.rw, body); err != nil {
			return 0, nil, wrapIOError("read_record", err)
		}
		r.bytesIn += uint64(constants.RecordHeaderSize) + uint64(hdr.Length)

		switch hdr.Type {
		case constants.ContentTypeChangeCipherSpec:
			if r.appDataSeen {
				return 0, nil, qerrors.New(qerrors.KindProtocol, "read_record", qerrors.ErrUnexpectedCCS)
			}
			// Middlebox compatibility: discard and keep reading.
			continue

		case constants.ContentTypeAlert:
			// Alerts may arrive unprotected before keys exist (e.g. a
			// handshake_failure straight after ClientHello).
			if r.readAEAD == nil {
				return hdr.Type, append([]byte{}, body...), nil
			}
			return 0, nil, qerrors.New(qerrors.KindProtocol, "read_record", qerrors.ErrUnexpectedMessage)

		case constants.ContentTypeHandshake:
			if r.readAEAD != nil {
				// Protected traffic must arrive as application_data.
				return 0, nil, qerrors.New(qerrors.KindProtocol, "read_record", qerrors.ErrUnexpectedMessage)
			}
			return hdr.Type, append([]byte{}, body...), nil

		case constants.ContentTypeApplicationData:
			if r.readAEAD == nil {
				return 0, nil, qerrors.New(qerrors.KindProtocol, "read_record", qerrors.ErrUnexpectedMessage)
			}
			ct, plain, err := r.openRecord(hdrBuf, body)
			if err != nil {
				return 0, nil, err
			}
			if ct == constants.ContentTypeApplicationData {
				r.appDataSeen = true
			}
			return ct, plain, nil
		}
	}
}

// openRecord decrypts a protected record, strips zero padding, and
// recovers the inner content type.
func (r *recordLayer) openRecord(hdr, body []byte) (constants.ContentType, []byte, error) {
	if r.readKeys.seq == 1<<64-1 {
		return 0, nil, qerrors.New(qerrors.KindProtocol, "open_record", qerrors.ErrSequenceOverflow)
	}
	nonce := r.readKeys.nonce()
	plain, err := r.readAEAD.Open(nonce[:], body, hdr)
	if err != nil {
		return 0, nil, qerrors.New(qerrors.KindCrypto, "open_record", qerrors.ErrBadRecordMAC)
	}
	r.readKeys.seq++

	// Strip trailing zero padding; the last nonzero byte is the type.
	i := len(plain) - 1
	for i >= 0 && plain[i] == 0 {
		i--
	}
	if i < 0 {
		return 0, nil, qerrors.New(qerrors.KindProtocol, "open_record", qerrors.ErrRecordEmpty)
	}
	return constants.ContentType(plain[i]), plain[:i], nil
}

// wrapIOError classifies a socket error as Timeout or Io.
func wrapIOError(op string, err error) error {
	if isTimeout(err) {
		return qerrors.New(qerrors.KindTimeout, op, err)
	}
	return qerrors.New(qerrors.KindIo, op, err)
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	var t timeout
	return qerrors.As(err, &t) && t.Timeout()
}
