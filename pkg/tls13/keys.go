// keys.go implements the TLS 1.3 key schedule (RFC 8446 section 7.1) and
// the handshake transcript hash.
//
// The schedule is computed with a PSK of zeros (no resumption) and no
// early data, so only the chain the client actually needs is derived:
//
//	early_secret      = HKDF-Extract(0, 0^32)
//	derived1          = Derive-Secret(early_secret, "derived", "")
//	handshake_secret  = HKDF-Extract(derived1, ECDHE)
//	c/s hs traffic    = Derive-Secret(handshake_secret, "c/s hs traffic", CH..SH)
//	derived2          = Derive-Secret(handshake_secret, "derived", "")
//	master_secret     = HKDF-Extract(derived2, 0^32)
//	c/s ap traffic    = Derive-Secret(master_secret, "c/s ap traffic", CH..server Finished)
package tls13

import (
	"encoding/binary"

	"github.com/grahamking/ort/internal/constants"
	"github.com/grahamking/ort/pkg/crypto"
)

// transcript is the running SHA-256 over handshake messages in wire order,
// each including its 4-byte handshake header. Records and record headers
// are never hashed.
type transcript struct {
	digest *crypto.Digest
}

func newTranscript() *transcript {
	return &transcript{digest: crypto.NewSHA256()}
}

// update absorbs one complete handshake message (header plus body).
func (t *transcript) update(msg []byte) {
	t.digest.Write(msg) //nolint:errcheck // never fails
}

// hash snapshots the current transcript hash without disturbing the
// running state. The snapshots at CertificateVerify and at server Finished
// are the values the Finished HMACs bind.
func (t *transcript) hash() [constants.HashSize]byte {
	return t.digest.Sum32()
}

// trafficKeys is the per-direction record protection state: AEAD key,
// static IV, and the record sequence number.
type trafficKeys struct {
	key [constants.AESKeySize]byte
	iv  [constants.AESNonceSize]byte
	seq uint64
}

// nonce computes the per-record nonce: the static IV XORed with the
// big-endian sequence number, left-padded to 12 bytes.
func (k *trafficKeys) nonce() [constants.AESNonceSize]byte {
	var n [constants.AESNonceSize]byte
	copy(n[:], k.iv[:])
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], k.seq)
	for i := 0; i < 8; i++ {
		n[4+i] ^= seqBytes[i]
	}
	return n
}

// zeroize erases the key material.
func (k *trafficKeys) zeroize() {
	crypto.Zeroize(k.key[:])
	crypto.Zeroize(k.iv[:])
}

// trafficKeysFrom expands a traffic secret into key and IV.
func trafficKeysFrom(secret []byte) (*trafficKeys, error) {
	key, err := crypto.HKDFExpandLabel(secret, "key", nil, constants.AESKeySize)
	if err != nil {
		return nil, err
	}
	iv, err := crypto.HKDFExpandLabel(secret, "iv", nil, constants.AESNonceSize)
	if err != nil {
		return nil, err
	}
	k := &trafficKeys{}
	copy(k.key[:], key)
	copy(k.iv[:], iv)
	crypto.ZeroizeMultiple(key, iv)
	return k, nil
}

// finishedKeyFrom derives the finished_key for a traffic secret.
func finishedKeyFrom(secret []byte) ([]byte, error) {
	return crypto.HKDFExpandLabel(secret, "finished", nil, constants.HashSize)
}

// keySchedule holds the secrets as they are derived. The early secret and
// the two "derived" salts are zeroed as soon as they are used; the
// handshake, master and traffic secrets stay in the struct until zeroize
// drops everything.
type keySchedule struct {
	handshakeSecret []byte
	masterSecret    []byte

	clientHandshakeTraffic []byte
	serverHandshakeTraffic []byte
	clientAppTraffic       []byte
	serverAppTraffic       []byte
}

// deriveHandshake consumes the ECDHE shared secret and the CH..SH
// transcript hash, producing the handshake traffic secrets.
func (ks *keySchedule) deriveHandshake(ecdhe []byte, transcriptHash [constants.HashSize]byte) error {
	zeros := make([]byte, constants.HashSize)
	earlySecret := crypto.HKDFExtract(nil, zeros)

	emptyHash := crypto.Sum256(nil)
	derived1, err := crypto.DeriveSecret(earlySecret[:], "derived", emptyHash[:])
	if err != nil {
		return err
	}

	hsSecret := crypto.HKDFExtract(derived1, ecdhe)
	ks.handshakeSecret = hsSecret[:]

	ks.clientHandshakeTraffic, err = crypto.DeriveSecret(ks.handshakeSecret, "c hs traffic", transcriptHash[:])
	if err != nil {
		return err
	}
	ks.serverHandshakeTraffic, err = crypto.DeriveSecret(ks.handshakeSecret, "s hs traffic", transcriptHash[:])
	if err != nil {
		return err
	}

	derived2, err := crypto.DeriveSecret(ks.handshakeSecret, "derived", emptyHash[:])
	if err != nil {
		return err
	}
	masterSecret := crypto.HKDFExtract(derived2, zeros)
	ks.masterSecret = masterSecret[:]

	crypto.ZeroizeMultiple(derived1, derived2, earlySecret[:])
	return nil
}

// deriveApplication consumes the CH..server Finished transcript hash,
// producing the application traffic secrets.
func (ks *keySchedule) deriveApplication(transcriptHash [constants.HashSize]byte) error {
	var err error
	ks.clientAppTraffic, err = crypto.DeriveSecret(ks.masterSecret, "c ap traffic", transcriptHash[:])
	if err != nil {
		return err
	}
	ks.serverAppTraffic, err = crypto.DeriveSecret(ks.masterSecret, "s ap traffic", transcriptHash[:])
	return err
}

// zeroize erases every derived secret.
func (ks *keySchedule) zeroize() {
	crypto.ZeroizeMultiple(
		ks.handshakeSecret,
		ks.masterSecret,
		ks.clientHandshakeTraffic,
		ks.serverHandshakeTraffic,
		ks.clientAppTraffic,
		ks.serverAppTraffic,
	)
}
