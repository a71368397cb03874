package tls13

import (
	"bytes"
	"testing"

	"github.com/grahamking/ort/internal/constants"
	qerrors "github.com/grahamking/ort/internal/errors"
	"github.com/grahamking/ort/pkg/crypto"
	"github.com/grahamking/ort/pkg/protocol"
)

// pairedLayers returns a sender and receiver sharing one in-memory
// stream, with the same traffic secret installed on the sender's write
// side and the receiver's read side.
func pairedLayers(t *testing.T, buf *bytes.Buffer) (*recordLayer, *recordLayer) {
	t.Helper()
	sender := newRecordLayer(buf)
	receiver := newRecordLayer(buf)
	secret := crypto.MustSecureRandomBytes(32)
	if err := sender.setWriteKeys(secret); err != nil {
		t.Fatalf("setWriteKeys: %v", err)
	}
	if err := receiver.setReadKeys(secret); err != nil {
		t.Fatalf("setReadKeys: %v", err)
	}
	return sender, receiver
}

func TestRecordRoundTrip(t *testing.T) {
	for _, size := range []int{1, 100, constants.MaxPlaintextSize} {
		var buf bytes.Buffer
		sender, receiver := pairedLayers(t, &buf)

		payload := crypto.MustSecureRandomBytes(size)
		if err := sender.writeRecord(constants.ContentTypeApplicationData, payload); err != nil {
			t.Fatalf("size %d: writeRecord: %v", size, err)
		}

		ct, got, err := receiver.readRecord()
		if err != nil {
			t.Fatalf("size %d: readRecord: %v", size, err)
		}
		if ct != constants.ContentTypeApplicationData {
			t.Errorf("size %d: content type %v", size, ct)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("size %d: payload mismatch", size)
		}
	}
}

// TestRecordInnerContentType checks the true type survives protection.
func TestRecordInnerContentType(t *testing.T) {
	var buf bytes.Buffer
	sender, receiver := pairedLayers(t, &buf)

	msg := []byte{1, 2, 3}
	if err := sender.writeRecord(constants.ContentTypeHandshake, msg); err != nil {
		t.Fatalf("writeRecord: %v", err)
	}

	// On the wire the outer type must be application_data.
	if got := constants.ContentType(buf.Bytes()[0]); got != constants.ContentTypeApplicationData {
		t.Errorf("outer type %v, want application_data", got)
	}

	ct, got, err := receiver.readRecord()
	if err != nil {
		t.Fatalf("readRecord: %v", err)
	}
	if ct != constants.ContentTypeHandshake || !bytes.Equal(got, msg) {
		t.Errorf("inner = %v %x", ct, got)
	}
}

func TestRecordCorruption(t *testing.T) {
	// Corrupt each byte position of a small record (header and body).
	probe := func(idx int) error {
		var buf bytes.Buffer
		sender, receiver := pairedLayers(t, &buf)
		if err := sender.writeRecord(constants.ContentTypeApplicationData, []byte("attack at dawn")); err != nil {
			t.Fatalf("writeRecord: %v", err)
		}
		buf.Bytes()[idx] ^= 0x40
		_, _, err := receiver.readRecord()
		return err
	}

	// 5-byte header plus 14 payload bytes, inner type, and tag.
	wireLen := constants.RecordHeaderSize + 14 + 1 + constants.AESTagSize

	// Byte 0 is the outer content type; flipping a bit there makes it an
	// unknown type (protocol error). Bytes 3..4 are the length. All other
	// corruption must fail AEAD authentication.
	for idx := 0; idx < wireLen; idx++ {
		if err := probe(idx); err == nil {
			t.Fatalf("byte %d: corruption went undetected", idx)
		}
	}
}

func TestRecordSequenceAdvances(t *testing.T) {
	var buf bytes.Buffer
	sender, receiver := pairedLayers(t, &buf)

	for i := 0; i < 3; i++ {
		if err := sender.writeRecord(constants.ContentTypeApplicationData, []byte{byte(i)}); err != nil {
			t.Fatalf("writeRecord %d: %v", i, err)
		}
	}
	if sender.writeKeys.seq != 3 {
		t.Errorf("writer seq %d, want 3", sender.writeKeys.seq)
	}
	for i := 0; i < 3; i++ {
		_, got, err := receiver.readRecord()
		if err != nil {
			t.Fatalf("readRecord %d: %v", i, err)
		}
		if got[0] != byte(i) {
			t.Errorf("record %d out of order: %x", i, got)
		}
	}

	// A replay (same bytes again) must fail: the nonce moved on.
	var replay bytes.Buffer
	sender2, receiver2 := pairedLayers(t, &replay)
	if err := sender2.writeRecord(constants.ContentTypeApplicationData, []byte("x")); err != nil {
		t.Fatalf("writeRecord: %v", err)
	}
	wire := append([]byte{}, replay.Bytes()...)
	if _, _, err := receiver2.readRecord(); err != nil {
		t.Fatalf("first read: %v", err)
	}
	replay.Write(wire)
	if _, _, err := receiver2.readRecord(); err == nil {
		t.Error("replayed record accepted")
	}
}

func TestRecordCCSTolerated(t *testing.T) {
	var buf bytes.Buffer
	sender, receiver := pairedLayers(t, &buf)

	// Plain CCS, then a protected record: the CCS is skipped.
	hdr := protocol.RecordHeader{
		Type:    constants.ContentTypeChangeCipherSpec,
		Version: constants.VersionTLS12,
		Length:  1,
	}.Marshal()
	buf.Write(hdr[:])
	buf.Write(protocol.CCSBody)
	if err := sender.writeRecord(constants.ContentTypeApplicationData, []byte("after ccs")); err != nil {
		t.Fatalf("writeRecord: %v", err)
	}

	ct, got, err := receiver.readRecord()
	if err != nil {
		t.Fatalf("readRecord: %v", err)
	}
	if ct != constants.ContentTypeApplicationData || string(got) != "after ccs" {
		t.Errorf("got %v %q", ct, got)
	}

	// After application data, CCS is fatal.
	buf.Write(hdr[:])
	buf.Write(protocol.CCSBody)
	if _, _, err := receiver.readRecord(); !qerrors.Is(err, qerrors.ErrUnexpectedCCS) {
		t.Errorf("CCS after app data: got %v", err)
	}
}

func TestRecordRejectsAllPadding(t *testing.T) {
	var buf bytes.Buffer
	sender, receiver := pairedLayers(t, &buf)

	// Hand-seal a record whose plaintext is nothing but padding zeros.
	inner := make([]byte, 8)
	hdr := protocol.RecordHeader{
		Type:    constants.ContentTypeApplicationData,
		Version: constants.VersionTLS12,
		Length:  uint16(len(inner) + constants.AESTagSize),
	}.Marshal()
	nonce := sender.writeKeys.nonce()
	sealed, err := sender.writeAEAD.Seal(nonce[:], inner, hdr[:])
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	buf.Write(hdr[:])
	buf.Write(sealed)

	if _, _, err := receiver.readRecord(); !qerrors.Is(err, qerrors.ErrRecordEmpty) {
		t.Errorf("all-padding record: got %v", err)
	}
}

func TestRecordOversizeLengthRejected(t *testing.T) {
	var buf bytes.Buffer
	hdr := protocol.RecordHeader{
		Type:    constants.ContentTypeApplicationData,
		Version: constants.VersionTLS12,
		Length:  0, // patched below
	}.Marshal()
	hdr[3] = 0x48 // 0x4800 > 2^14 + 256
	hdr[4] = 0x00
	buf.Write(hdr[:])

	receiver := newRecordLayer(&buf)
	if _, _, err := receiver.readRecord(); !qerrors.Is(err, qerrors.ErrRecordTooLarge) {
		t.Errorf("oversize record: got %v", err)
	}
}

// TestConnWriteSplitsRecords pushes more than one record's worth of
// application data through Conn.Write and counts the framed records.
func TestConnWriteSplitsRecords(t *testing.T) {
	var buf bytes.Buffer
	c := &Conn{rec: newRecordLayer(&buf), state: stateConnected}
	if err := c.rec.setWriteKeys(crypto.MustSecureRandomBytes(32)); err != nil {
		t.Fatalf("setWriteKeys: %v", err)
	}

	payload := crypto.MustSecureRandomBytes(constants.MaxPlaintextSize*2 + 100)
	n, err := c.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(payload) {
		t.Errorf("wrote %d, want %d", n, len(payload))
	}

	records := 0
	wire := buf.Bytes()
	for len(wire) > 0 {
		hdr, err := protocol.UnmarshalRecordHeader(wire)
		if err != nil {
			t.Fatalf("record %d: %v", records, err)
		}
		wire = wire[constants.RecordHeaderSize+int(hdr.Length):]
		records++
	}
	if records != 3 {
		t.Errorf("got %d records, want 3", records)
	}
}

func TestWriteRecordRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	sender := newRecordLayer(&buf)
	err := sender.writeRecord(constants.ContentTypeApplicationData, make([]byte, constants.MaxPlaintextSize+1))
	if !qerrors.Is(err, qerrors.ErrRecordTooLarge) {
		t.Errorf("oversize payload: got %v", err)
	}
}
