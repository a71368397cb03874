package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/grahamking/ort/internal/constants"
	"github.com/grahamking/ort/internal/errors"
)

// buildServerHello assembles a valid ServerHello body for parser tests.
func buildServerHello(random [32]byte, suite uint16, version uint16, group uint16, peer []byte) []byte {
	var b []byte
	b = binary.BigEndian.AppendUint16(b, constants.VersionTLS12)
	b = append(b, random[:]...)
	b = append(b, 0) // empty session id echo
	b = binary.BigEndian.AppendUint16(b, suite)
	b = append(b, 0) // compression

	var ext []byte
	ext = binary.BigEndian.AppendUint16(ext, constants.ExtensionSupportedVersions)
	ext = binary.BigEndian.AppendUint16(ext, 2)
	ext = binary.BigEndian.AppendUint16(ext, version)
	ext = binary.BigEndian.AppendUint16(ext, constants.ExtensionKeyShare)
	ext = binary.BigEndian.AppendUint16(ext, uint16(4+len(peer)))
	ext = binary.BigEndian.AppendUint16(ext, group)
	ext = binary.BigEndian.AppendUint16(ext, uint16(len(peer)))
	ext = append(ext, peer...)

	b = binary.BigEndian.AppendUint16(b, uint16(len(ext)))
	return append(b, ext...)
}

func TestUnmarshalServerHello(t *testing.T) {
	var random [32]byte
	random[0] = 0xAB
	peer := bytes.Repeat([]byte{0x42}, 32)

	sh, err := UnmarshalServerHello(buildServerHello(random, 0x1301, constants.VersionTLS13, constants.GroupX25519, peer))
	if err != nil {
		t.Fatalf("UnmarshalServerHello: %v", err)
	}
	if sh.CipherSuite != constants.CipherSuiteAES128GCMSHA256 {
		t.Errorf("suite %v", sh.CipherSuite)
	}
	if sh.SelectedVersion != constants.VersionTLS13 {
		t.Errorf("version %04x", sh.SelectedVersion)
	}
	if sh.KeyShareGroup != constants.GroupX25519 {
		t.Errorf("group %04x", sh.KeyShareGroup)
	}
	if !bytes.Equal(sh.KeySharePeer, peer) {
		t.Errorf("peer key %x", sh.KeySharePeer)
	}
	if sh.IsHelloRetryRequest() || sh.IsDowngrade() {
		t.Error("spurious HRR/downgrade detection")
	}
}

func TestUnmarshalServerHelloTruncated(t *testing.T) {
	var random [32]byte
	full := buildServerHello(random, 0x1301, constants.VersionTLS13, constants.GroupX25519, make([]byte, 32))
	for n := 0; n < len(full); n++ {
		if _, err := UnmarshalServerHello(full[:n]); err == nil {
			t.Fatalf("truncation at %d accepted", n)
		}
	}
}

func TestServerHelloHRRSentinel(t *testing.T) {
	sh := &ServerHello{Random: HelloRetryRequestRandom}
	if !sh.IsHelloRetryRequest() {
		t.Error("HRR sentinel not detected")
	}
}

func TestServerHelloDowngradeSentinels(t *testing.T) {
	for _, tail := range [][8]byte{downgradeTLS12, downgradeTLS11} {
		sh := &ServerHello{}
		copy(sh.Random[24:], tail[:])
		if !sh.IsDowngrade() {
			t.Errorf("downgrade sentinel %x not detected", tail)
		}
	}
}

func TestClientHelloRequiresSessionID(t *testing.T) {
	ch := &ClientHello{ServerName: "x"}
	if _, err := ch.Marshal(); err == nil {
		t.Error("marshal without session id succeeded")
	}
}

func TestUnmarshalCertificate(t *testing.T) {
	leaf := []byte{0x30, 0x82, 0x01, 0x00, 0xAA, 0xBB}
	second := []byte{0x30, 0x03, 0x01}

	var body []byte
	body = append(body, 0) // context
	listLen := (3 + len(leaf) + 2) + (3 + len(second) + 2)
	body = append(body, byte(listLen>>16), byte(listLen>>8), byte(listLen))
	for _, der := range [][]byte{leaf, second} {
		body = append(body, byte(len(der)>>16), byte(len(der)>>8), byte(len(der)))
		body = append(body, der...)
		body = append(body, 0, 0)
	}

	cert, err := UnmarshalCertificate(body)
	if err != nil {
		t.Fatalf("UnmarshalCertificate: %v", err)
	}
	if !bytes.Equal(cert.Leaf, leaf) {
		t.Errorf("leaf %x, want %x", cert.Leaf, leaf)
	}
}

func TestUnmarshalCertificateEmptyList(t *testing.T) {
	if _, err := UnmarshalCertificate([]byte{0, 0, 0, 0}); err == nil {
		t.Error("empty certificate list accepted")
	}
}

func TestUnmarshalEncryptedExtensionsRejectsEarlyData(t *testing.T) {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, 4)
	body = binary.BigEndian.AppendUint16(body, extensionEarlyData)
	body = binary.BigEndian.AppendUint16(body, 0)
	if _, err := UnmarshalEncryptedExtensions(body); err == nil {
		t.Error("early_data accepted without a PSK offer")
	}

	// Unknown extensions pass.
	var ok []byte
	ok = binary.BigEndian.AppendUint16(ok, 6)
	ok = binary.BigEndian.AppendUint16(ok, 0xff01)
	ok = binary.BigEndian.AppendUint16(ok, 2)
	ok = append(ok, 0xde, 0xad)
	if _, err := UnmarshalEncryptedExtensions(ok); err != nil {
		t.Errorf("unknown extension rejected: %v", err)
	}
}

func TestHandshakeHeaderRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte{0x5a}, 300)
	msg := EncodeHandshakeHeader(constants.HandshakeTypeCertificate, body)

	ht, length, err := ParseHandshakeHeader(msg)
	if err != nil {
		t.Fatalf("ParseHandshakeHeader: %v", err)
	}
	if ht != constants.HandshakeTypeCertificate || length != len(body) {
		t.Errorf("parsed %v %d", ht, length)
	}
	if !bytes.Equal(msg[constants.HandshakeHeaderSize:], body) {
		t.Error("body mangled")
	}
}

func TestParseHandshakeHeaderRejectsOversize(t *testing.T) {
	msg := []byte{byte(constants.HandshakeTypeCertificate), 0x00, 0x40, 0x01}
	if _, _, err := ParseHandshakeHeader(msg); !errors.Is(err, errors.ErrHandshakeTooLarge) {
		t.Errorf("oversize header: got %v", err)
	}
}

func TestRecordHeaderRoundTrip(t *testing.T) {
	h := RecordHeader{
		Type:    constants.ContentTypeHandshake,
		Version: constants.VersionTLS12,
		Length:  517,
	}
	wire := h.Marshal()
	got, err := UnmarshalRecordHeader(wire[:])
	if err != nil {
		t.Fatalf("UnmarshalRecordHeader: %v", err)
	}
	if got != h {
		t.Errorf("round trip %+v != %+v", got, h)
	}

	wire[0] = 99 // unknown content type
	if _, err := UnmarshalRecordHeader(wire[:]); err == nil {
		t.Error("unknown content type accepted")
	}
}

func TestAlertRoundTrip(t *testing.T) {
	a := Alert{Level: AlertLevelFatal, Description: AlertHandshakeFailure}
	got, err := UnmarshalAlert(a.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalAlert: %v", err)
	}
	if got != a {
		t.Errorf("round trip %+v != %+v", got, a)
	}
	if got.IsCloseNotify() {
		t.Error("handshake_failure detected as close_notify")
	}
	if got.Description.String() != "handshake_failure" {
		t.Errorf("name %q", got.Description.String())
	}
}
