// handshake.go implements the client side of the TLS 1.3 handshake:
//
//	Client                                     Server
//	  | -------- ClientHello ------------------> |
//	  | <------- ServerHello ------------------- |
//	  |   [handshake keys installed]             |
//	  | <------- EncryptedExtensions ----------- |
//	  | <------- Certificate ------------------- |
//	  | <------- CertificateVerify ------------- |
//	  | <------- Finished ---------------------- |
//	  | -------- Finished ---------------------> |
//	  |   [application keys installed]           |
//
// The state machine accepts exactly this sequence. A message in any other
// state is a fatal unexpected_message alert. HelloRetryRequest is not
// supported and surfaces as an Unsupported error.
package tls13

import (
	"github.com/grahamking/ort/internal/constants"
	qerrors "github.com/grahamking/ort/internal/errors"
	"github.com/grahamking/ort/pkg/crypto"
	"github.com/grahamking/ort/pkg/protocol"
)

// handshakeState tracks progress through the fixed message sequence.
type handshakeState int

const (
	stateStart handshakeState = iota
	stateWaitServerHello
	stateWaitEncryptedExtensions
	stateWaitCertificate
	stateWaitCertificateVerify
	stateWaitFinished
	stateConnected
	stateClosed
)

// String returns the state name.
func (s handshakeState) String() string {
	switch s {
	case stateStart:
		return "Start"
	case stateWaitServerHello:
		return "WaitServerHello"
	case stateWaitEncryptedExtensions:
		return "WaitEncryptedExtensions"
	case stateWaitCertificate:
		return "WaitCertificate"
	case stateWaitCertificateVerify:
		return "WaitCertificateVerify"
	case stateWaitFinished:
		return "WaitFinished"
	case stateConnected:
		return "Connected"
	case stateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// clientHandshake drives the handshake over a record layer.
type clientHandshake struct {
	rec        *recordLayer
	serverName string

	state      handshakeState
	transcript *transcript
	schedule   keySchedule
	keyPair    *crypto.X25519KeyPair

	// accumulator reassembles handshake messages that span records.
	accumulator []byte

	// leafCert is the server's leaf certificate DER, unverified.
	leafCert []byte

	// alert is the alert to send if the handshake fails.
	alert protocol.AlertDescription
}

func newClientHandshake(rec *recordLayer, serverName string) *clientHandshake {
	return &clientHandshake{
		rec:        rec,
		serverName: serverName,
		state:      stateStart,
		transcript: newTranscript(),
		alert:      protocol.AlertInternalError,
	}
}

// run performs the whole handshake. On error the caller is responsible
// for sending hs.alert and closing.
func (hs *clientHandshake) run() error {
	if err := hs.sendClientHello(); err != nil {
		return err
	}

	sh, err := hs.readServerHello()
	if err != nil {
		return err
	}
	if err := hs.processServerHello(sh); err != nil {
		return err
	}

	if err := hs.readEncryptedFlight(); err != nil {
		return err
	}

	if err := hs.sendClientFinished(); err != nil {
		return err
	}

	hs.state = stateConnected
	return nil
}

// sendClientHello builds, records, and sends the first flight.
func (hs *clientHandshake) sendClientHello() error {
	if hs.state != stateStart {
		return qerrors.New(qerrors.KindProtocol, "client_hello", qerrors.ErrUnexpectedMessage)
	}

	kp, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return err
	}
	hs.keyPair = kp

	ch := &protocol.ClientHello{
		ServerName: hs.serverName,
		KeyShare:   kp.Public,
	}
	if err := crypto.SecureRandom(ch.Random[:]); err != nil {
		return err
	}
	// A random legacy session id keeps middleboxes that fingerprint
	// resumption-capable clients happy.
	ch.SessionID = crypto.MustSecureRandomBytes(constants.RandomSize)

	body, err := ch.Marshal()
	if err != nil {
		return qerrors.New(qerrors.KindProtocol, "client_hello", err)
	}
	msg := protocol.EncodeHandshakeHeader(constants.HandshakeTypeClientHello, body)
	hs.transcript.update(msg)

	if err := hs.rec.writeRecord(constants.ContentTypeHandshake, msg); err != nil {
		return err
	}
	hs.state = stateWaitServerHello
	return nil
}

// readServerHello reads exactly one handshake message and requires it to
// be a ServerHello.
func (hs *clientHandshake) readServerHello() (*protocol.ServerHello, error) {
	ht, raw, body, err := hs.readHandshakeMessage()
	if err != nil {
		return nil, err
	}
	if ht != constants.HandshakeTypeServerHello {
		hs.alert = protocol.AlertUnexpectedMessage
		return nil, qerrors.New(qerrors.KindProtocol, "server_hello", qerrors.ErrUnexpectedMessage)
	}
	sh, err := protocol.UnmarshalServerHello(body)
	if err != nil {
		hs.alert = protocol.AlertDecodeError
		return nil, qerrors.New(qerrors.KindProtocol, "server_hello", err)
	}
	hs.transcript.update(raw)
	return sh, nil
}

// processServerHello validates the server's parameters, computes the
// shared secret, and installs handshake traffic keys.
func (hs *clientHandshake) processServerHello(sh *protocol.ServerHello) error {
	if hs.state != stateWaitServerHello {
		hs.alert = protocol.AlertUnexpectedMessage
		return qerrors.New(qerrors.KindProtocol, "server_hello", qerrors.ErrUnexpectedMessage)
	}

	if sh.IsHelloRetryRequest() {
		hs.alert = protocol.AlertHandshakeFailure
		return qerrors.New(qerrors.KindUnsupported, "server_hello", qerrors.ErrHelloRetryRequest)
	}
	if sh.IsDowngrade() {
		hs.alert = protocol.AlertIllegalParameter
		return qerrors.New(qerrors.KindProtocol, "server_hello", qerrors.ErrUnsupportedVersion)
	}
	if sh.LegacyVersion != constants.VersionTLS12 {
		hs.alert = protocol.AlertIllegalParameter
		return qerrors.New(qerrors.KindProtocol, "server_hello", qerrors.ErrUnsupportedVersion)
	}
	if sh.SelectedVersion != constants.VersionTLS13 {
		hs.alert = protocol.AlertIllegalParameter
		return qerrors.New(qerrors.KindUnsupported, "server_hello", qerrors.ErrUnsupportedVersion)
	}
	if !sh.CipherSuite.IsSupported() {
		hs.alert = protocol.AlertHandshakeFailure
		return qerrors.New(qerrors.KindUnsupported, "server_hello", qerrors.ErrUnsupportedSuite)
	}
	if sh.KeyShareGroup != constants.GroupX25519 {
		hs.alert = protocol.AlertIllegalParameter
		return qerrors.New(qerrors.KindUnsupported, "server_hello", qerrors.ErrUnsupportedGroup)
	}
	if len(sh.KeySharePeer) != constants.X25519KeySize {
		hs.alert = protocol.AlertIllegalParameter
		return qerrors.New(qerrors.KindProtocol, "server_hello", qerrors.ErrBufferTooSmall)
	}

	shared, err := hs.keyPair.SharedSecret(sh.KeySharePeer)
	if err != nil {
		hs.alert = protocol.AlertIllegalParameter
		return qerrors.New(qerrors.KindCrypto, "server_hello", err)
	}
	defer crypto.Zeroize(shared)

	if err := hs.schedule.deriveHandshake(shared, hs.transcript.hash()); err != nil {
		return qerrors.New(qerrors.KindCrypto, "key_schedule", err)
	}
	if err := hs.rec.setReadKeys(hs.schedule.serverHandshakeTraffic); err != nil {
		return qerrors.New(qerrors.KindCrypto, "key_schedule", err)
	}
	if err := hs.rec.setWriteKeys(hs.schedule.clientHandshakeTraffic); err != nil {
		return qerrors.New(qerrors.KindCrypto, "key_schedule", err)
	}

	hs.state = stateWaitEncryptedExtensions
	return nil
}

// readEncryptedFlight consumes EncryptedExtensions, Certificate,
// CertificateVerify, and the server Finished, in exactly that order.
func (hs *clientHandshake) readEncryptedFlight() error {
	for hs.state != stateWaitFinished {
		ht, raw, body, err := hs.readHandshakeMessage()
		if err != nil {
			return err
		}

		switch {
		case hs.state == stateWaitEncryptedExtensions && ht == constants.HandshakeTypeEncryptedExtensions:
			if _, err := protocol.UnmarshalEncryptedExtensions(body); err != nil {
				hs.alert = protocol.AlertUnsupportedExtension
				return qerrors.New(qerrors.KindProtocol, "encrypted_extensions", err)
			}
			hs.transcript.update(raw)
			hs.state = stateWaitCertificate

		case hs.state == stateWaitCertificate && ht == constants.HandshakeTypeCertificate:
			cert, err := protocol.UnmarshalCertificate(body)
			if err != nil {
				hs.alert = protocol.AlertDecodeError
				return qerrors.New(qerrors.KindProtocol, "certificate", err)
			}
			hs.leafCert = cert.Leaf
			hs.transcript.update(raw)
			hs.state = stateWaitCertificateVerify

		case hs.state == stateWaitCertificateVerify && ht == constants.HandshakeTypeCertificateVerify:
			if _, err := protocol.UnmarshalCertificateVerify(body); err != nil {
				hs.alert = protocol.AlertDecodeError
				return qerrors.New(qerrors.KindProtocol, "certificate_verify", err)
			}
			// The signature is not checked: the trust model is
			// trust-on-first-connect. The message still enters the
			// transcript so the Finished HMACs cover it.
			hs.transcript.update(raw)
			hs.state = stateWaitFinished

		default:
			hs.alert = protocol.AlertUnexpectedMessage
			return qerrors.New(qerrors.KindProtocol, "handshake", qerrors.ErrUnexpectedMessage)
		}
	}

	return hs.readServerFinished()
}

// readServerFinished verifies the server's verify_data over the
// CH..CertificateVerify transcript snapshot.
func (hs *clientHandshake) readServerFinished() error {
	// Snapshot before the Finished message itself enters the transcript.
	transcriptToCV := hs.transcript.hash()

	ht, raw, body, err := hs.readHandshakeMessage()
	if err != nil {
		return err
	}
	if ht != constants.HandshakeTypeFinished {
		hs.alert = protocol.AlertUnexpectedMessage
		return qerrors.New(qerrors.KindProtocol, "finished", qerrors.ErrUnexpectedMessage)
	}
	fin, err := protocol.UnmarshalFinished(body)
	if err != nil {
		hs.alert = protocol.AlertDecodeError
		return qerrors.New(qerrors.KindProtocol, "finished", err)
	}

	finishedKey, err := finishedKeyFrom(hs.schedule.serverHandshakeTraffic)
	if err != nil {
		return qerrors.New(qerrors.KindCrypto, "finished", err)
	}
	defer crypto.Zeroize(finishedKey)

	expected := crypto.HMACSHA256(finishedKey, transcriptToCV[:])
	if !crypto.ConstantTimeCompare(expected[:], fin.VerifyData[:]) {
		hs.alert = protocol.AlertDecryptError
		return qerrors.New(qerrors.KindCrypto, "finished", qerrors.ErrFinishedMismatch)
	}

	hs.transcript.update(raw)
	return nil
}

// sendClientFinished computes and sends the client Finished under the
// handshake keys, then switches both directions to application keys.
func (hs *clientHandshake) sendClientFinished() error {
	// Application secrets bind the transcript through server Finished.
	transcriptToFin := hs.transcript.hash()
	if err := hs.schedule.deriveApplication(transcriptToFin); err != nil {
		return qerrors.New(qerrors.KindCrypto, "key_schedule", err)
	}

	finishedKey, err := finishedKeyFrom(hs.schedule.clientHandshakeTraffic)
	if err != nil {
		return qerrors.New(qerrors.KindCrypto, "finished", err)
	}
	defer crypto.Zeroize(finishedKey)

	fin := &protocol.Finished{VerifyData: crypto.HMACSHA256(finishedKey, transcriptToFin[:])}
	body, err := fin.Marshal()
	if err != nil {
		return qerrors.New(qerrors.KindProtocol, "finished", err)
	}
	msg := protocol.EncodeHandshakeHeader(constants.HandshakeTypeFinished, body)
	hs.transcript.update(msg)

	// Compatible-mode change_cipher_spec before the protected flight.
	if err := hs.rec.writeRecord(constants.ContentTypeChangeCipherSpec, protocol.CCSBody); err != nil {
		return err
	}
	if err := hs.rec.writeRecord(constants.ContentTypeHandshake, msg); err != nil {
		return err
	}

	// The server installed its application write keys at its Finished;
	// the client installs both directions now.
	if err := hs.rec.setWriteKeys(hs.schedule.clientAppTraffic); err != nil {
		return qerrors.New(qerrors.KindCrypto, "key_schedule", err)
	}
	if err := hs.rec.setReadKeys(hs.schedule.serverAppTraffic); err != nil {
		return qerrors.New(qerrors.KindCrypto, "key_schedule", err)
	}
	return nil
}

// readHandshakeMessage returns the next complete handshake message,
// reassembling across records as needed. It returns the type, the raw
// message (header included, for the transcript), and the body.
func (hs *clientHandshake) readHandshakeMessage() (constants.HandshakeType, []byte, []byte, error) {
	for {
		if len(hs.accumulator) >= constants.HandshakeHeaderSize {
			ht, length, err := protocol.ParseHandshakeHeader(hs.accumulator)
			if err != nil {
				hs.alert = protocol.AlertDecodeError
				return 0, nil, nil, qerrors.New(qerrors.KindProtocol, "handshake", err)
			}
			total := constants.HandshakeHeaderSize + length
			if len(hs.accumulator) >= total {
				raw := append([]byte{}, hs.accumulator[:total]...)
				hs.accumulator = append(hs.accumulator[:0], hs.accumulator[total:]...)
				return ht, raw, raw[constants.HandshakeHeaderSize:], nil
			}
		}

		ct, payload, err := hs.rec.readRecord()
		if err != nil {
			return 0, nil, nil, err
		}
		switch ct {
		case constants.ContentTypeHandshake:
			if len(hs.accumulator)+len(payload) > constants.MaxHandshakeAccumulator {
				hs.alert = protocol.AlertDecodeError
				return 0, nil, nil, qerrors.New(qerrors.KindProtocol, "handshake", qerrors.ErrHandshakeTooLarge)
			}
			if len(payload) == 0 {
				// Records carrying zero handshake bytes are forbidden.
				hs.alert = protocol.AlertDecodeError
				return 0, nil, nil, qerrors.New(qerrors.KindProtocol, "handshake", qerrors.ErrRecordEmpty)
			}
			hs.accumulator = append(hs.accumulator, payload...)

		case constants.ContentTypeAlert:
			alert, err := protocol.UnmarshalAlert(payload)
			if err != nil {
				return 0, nil, nil, qerrors.New(qerrors.KindProtocol, "alert", err)
			}
			if alert.IsCloseNotify() {
				return 0, nil, nil, qerrors.New(qerrors.KindClosed, "handshake", qerrors.ErrCloseNotify)
			}
			return 0, nil, nil, qerrors.New(qerrors.KindClosed, "handshake",
				qerrors.New(qerrors.KindProtocol, "alert: "+alert.Description.String(), nil))

		default:
			hs.alert = protocol.AlertUnexpectedMessage
			return 0, nil, nil, qerrors.New(qerrors.KindProtocol, "handshake", qerrors.ErrUnexpectedMessage)
		}
	}
}
