// Package tls13 implements a minimal TLS 1.3 client: one cipher suite
// (TLS_AES_128_GCM_SHA256), one key-exchange group (x25519), no
// certificate verification.
//
// Trust model: the connection is confidential against passive
// eavesdroppers and integrity-protected within the session, but the
// server's certificate chain and CertificateVerify signature are not
// validated. The caller accepts man-in-the-middle risk; PeerCertificate
// exposes the unverified leaf for inspection.
package tls13

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/grahamking/ort/internal/constants"
	qerrors "github.com/grahamking/ort/internal/errors"
	"github.com/grahamking/ort/pkg/metrics"
	"github.com/grahamking/ort/pkg/protocol"
)

// Config carries everything Connect needs.
type Config struct {
	// Host is the server hostname, used for dialing when Addrs is empty
	// and as the SNI name unless ServerName overrides it.
	Host string

	// Port is the TCP port; zero means 443.
	Port uint16

	// ServerName overrides the SNI name sent in the ClientHello.
	ServerName string

	// Addrs optionally lists candidate IP addresses to dial in order,
	// bypassing DNS. Each may be a bare IP; the port is appended.
	Addrs []string

	// Timeout bounds the dial and is installed as the socket read/write
	// deadline interval. Zero means no timeout.
	Timeout time.Duration

	// Tracer receives connect/handshake spans. Nil means no tracing.
	Tracer metrics.Tracer
}

func (c *Config) port() uint16 {
	if c.Port == 0 {
		return constants.DefaultPort
	}
	return c.Port
}

func (c *Config) sni() string {
	if c.ServerName != "" {
		return c.ServerName
	}
	return c.Host
}

// Conn is an established TLS 1.3 connection. It is exclusively owned by
// one caller: no method may be invoked concurrently with another.
type Conn struct {
	tcp     net.Conn
	rec     *recordLayer
	timeout time.Duration

	state    handshakeState
	leafCert []byte
	schedule *keySchedule

	// readBuf holds application bytes from the last record not yet
	// consumed by Read.
	readBuf []byte

	// cleanEOF marks a close_notify from the peer: later reads return
	// io.EOF rather than an error.
	cleanEOF bool

	handshakeTime time.Duration
}

// Connect dials the server, runs the handshake, and returns a ready
// connection. On handshake failure an appropriate fatal alert is sent
// best-effort before the socket closes.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = metrics.NoOpTracer{}
	}

	ctx, endDial := tracer.StartSpan(ctx, "tls.dial")
	tcp, err := dial(ctx, cfg)
	endDial(err)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, tcp, cfg)
}

// NewClient runs the client handshake over an existing connection, which
// the returned Conn takes ownership of. Used directly when the caller
// does its own dialing.
func NewClient(ctx context.Context, tcp net.Conn, cfg Config) (*Conn, error) {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = metrics.NoOpTracer{}
	}

	if cfg.Timeout > 0 {
		// Deadlines cover the whole handshake; Read/Write refresh them
		// per call afterwards.
		_ = tcp.SetDeadline(time.Now().Add(cfg.Timeout))
	}

	c := &Conn{
		tcp:     tcp,
		rec:     newRecordLayer(tcp),
		timeout: cfg.Timeout,
	}

	_, endHS := tracer.StartSpan(ctx, "tls.handshake")
	start := time.Now()
	hs := newClientHandshake(c.rec, cfg.sni())
	err := hs.run()
	c.handshakeTime = time.Since(start)
	endHS(err)
	if err != nil {
		c.fail(hs.alert, err)
		return nil, err
	}

	c.state = stateConnected
	c.leafCert = hs.leafCert
	c.schedule = &hs.schedule
	hs.keyPair.Zeroize()
	return c, nil
}

// dial connects to the first reachable address: the candidate IPs in
// order when provided, the hostname otherwise.
func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	port := strconv.Itoa(int(cfg.port()))

	if len(cfg.Addrs) == 0 {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(cfg.Host, port))
		if err != nil {
			return nil, wrapIOError("dial", err)
		}
		return conn, nil
	}

	var lastErr error
	for _, addr := range cfg.Addrs {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, wrapIOError("dial", fmt.Errorf("no candidate address reachable: %w", lastErr))
}

// Write encrypts and sends p as application data, splitting it into
// records of at most the plaintext limit.
func (c *Conn) Write(p []byte) (int, error) {
	if c.state != stateConnected {
		return 0, qerrors.New(qerrors.KindClosed, "write", qerrors.ErrConnClosed)
	}
	if c.timeout > 0 {
		_ = c.tcp.SetWriteDeadline(time.Now().Add(c.timeout))
	}

	written := 0
	for len(p) > 0 {
		n := len(p)
		if n > constants.MaxPlaintextSize {
			n = constants.MaxPlaintextSize
		}
		if err := c.rec.writeRecord(constants.ContentTypeApplicationData, p[:n]); err != nil {
			c.fatal(err)
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// Read returns decrypted application bytes. A close_notify from the peer
// surfaces as io.EOF, as does every read after it; any other record-layer
// failure tears the connection down and returns a typed error.
func (c *Conn) Read(p []byte) (int, error) {
	if len(c.readBuf) > 0 {
		n := copy(p, c.readBuf)
		c.readBuf = c.readBuf[n:]
		return n, nil
	}
	if c.state != stateConnected {
		if c.cleanEOF {
			return 0, io.EOF
		}
		return 0, qerrors.New(qerrors.KindClosed, "read", qerrors.ErrConnClosed)
	}

	for {
		if c.timeout > 0 {
			_ = c.tcp.SetReadDeadline(time.Now().Add(c.timeout))
		}
		ct, payload, err := c.rec.readRecord()
		if err != nil {
			if qerrors.Is(err, io.EOF) {
				// TCP close at a record boundary. Strictly a truncation
				// without close_notify, but servers that set
				// Connection: close routinely skip the alert; the HTTP
				// framing above detects real truncation.
				c.cleanEOF = true
				c.close(nil)
				return 0, io.EOF
			}
			c.fatal(err)
			return 0, err
		}

		switch ct {
		case constants.ContentTypeApplicationData:
			if len(payload) == 0 {
				continue // empty fragment, keep pulling
			}
			n := copy(p, payload)
			c.readBuf = append(c.readBuf[:0], payload[n:]...)
			return n, nil

		case constants.ContentTypeAlert:
			alert, aerr := protocol.UnmarshalAlert(payload)
			if aerr != nil {
				err := qerrors.New(qerrors.KindProtocol, "alert", aerr)
				c.fatal(err)
				return 0, err
			}
			c.close(nil)
			if alert.IsCloseNotify() {
				c.cleanEOF = true
				return 0, io.EOF
			}
			return 0, qerrors.New(qerrors.KindClosed, "read",
				fmt.Errorf("fatal alert: %s", alert.Description))

		case constants.ContentTypeHandshake:
			// Post-handshake messages (NewSessionTicket, KeyUpdate) are
			// discarded: tickets are never honored and the peer has no
			// reason to update keys within a single request.
			continue

		default:
			err := qerrors.New(qerrors.KindProtocol, "read", qerrors.ErrUnexpectedMessage)
			c.fatal(err)
			return 0, err
		}
	}
}

// Close sends a best-effort close_notify and closes the socket.
func (c *Conn) Close() error {
	if c.state == stateClosed {
		return nil
	}
	return c.close(nil)
}

// Stats reports byte counters and handshake timing.
func (c *Conn) Stats() metrics.ConnectionStats {
	return metrics.ConnectionStats{
		BytesIn:       c.rec.bytesIn,
		BytesOut:      c.rec.bytesOut,
		HandshakeTime: c.handshakeTime,
	}
}

// PeerCertificate returns the server's leaf certificate DER bytes.
// The certificate was never validated.
func (c *Conn) PeerCertificate() []byte {
	return c.leafCert
}

// fatal reacts to a record-layer or protocol failure: Crypto and Protocol
// errors trigger a best-effort alert, Io and Timeout close silently.
func (c *Conn) fatal(err error) {
	if c.state == stateClosed {
		return
	}
	switch qerrors.KindOf(err) {
	case qerrors.KindCrypto:
		c.close(&protocol.Alert{Level: protocol.AlertLevelFatal, Description: protocol.AlertBadRecordMAC})
	case qerrors.KindProtocol:
		c.close(&protocol.Alert{Level: protocol.AlertLevelFatal, Description: protocol.AlertUnexpectedMessage})
	default:
		c.close(nil)
	}
}

// fail tears down a connection that never completed its handshake.
func (c *Conn) fail(desc protocol.AlertDescription, err error) {
	switch qerrors.KindOf(err) {
	case qerrors.KindIo, qerrors.KindTimeout, qerrors.KindClosed:
		c.close(nil)
	default:
		c.close(&protocol.Alert{Level: protocol.AlertLevelFatal, Description: desc})
	}
}

// close optionally sends one alert (close_notify when alert is nil and
// the handshake completed), closes the socket, and zeroizes secrets.
func (c *Conn) close(alert *protocol.Alert) error {
	if c.state == stateClosed {
		return nil
	}
	prev := c.state
	c.state = stateClosed

	if alert == nil && prev == stateConnected {
		alert = &protocol.Alert{Level: protocol.AlertLevelWarning, Description: protocol.AlertCloseNotify}
	}
	if alert != nil {
		// Best-effort: a short write deadline stops a dead peer from
		// blocking teardown.
		_ = c.tcp.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_ = c.rec.writeRecord(constants.ContentTypeAlert, alert.Marshal())
	}

	if c.schedule != nil {
		c.schedule.zeroize()
	}
	if c.rec.writeKeys != nil {
		c.rec.writeKeys.zeroize()
	}
	if c.rec.readKeys != nil {
		c.rec.readKeys.zeroize()
	}
	err := c.tcp.Close()
	if err != nil {
		return wrapIOError("close", err)
	}
	return nil
}
