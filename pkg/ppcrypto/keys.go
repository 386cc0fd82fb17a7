// Package ppcrypto implements PProto's per-connection authenticated
// encryption: Curve25519 key exchange with XSalsa20-Poly1305 sealing (the
// NaCl "box" primitive), plus the mandatory plaintext padding envelope
// (core spec §4.1.3/§6.1/§6.3).
package ppcrypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/box"
)

var (
	ErrInvalidKey       = errors.New("ppcrypto: invalid key")
	ErrEncryptionFailed = errors.New("ppcrypto: encryption failed")
	ErrDecryptionFailed = errors.New("ppcrypto: decryption failed")
)

// KeySize is the length in bytes of a Curve25519 public or private key, and
// of the length field carried on the wire after the 16-byte signature
// (core spec §6.1).
const KeySize = 32

// GenerateKeyPair returns a fresh ephemeral X25519 keypair for one
// connection (core spec §4.1.3: "per-connection ephemeral keypairs").
func GenerateKeyPair() (pub, priv *[KeySize]byte, err error) {
	pub, priv, err = box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, ErrEncryptionFailed
	}
	return pub, priv, nil
}

// SharedKey is the result of the "before-nm" precomputation: a symmetric
// key derived once per connection from the local private key and the
// peer's public key, then reused for every frame (core spec §4.1.3).
type SharedKey [KeySize]byte

// Precompute derives the shared secret for one connection.
func Precompute(peerPublic, localPrivate *[KeySize]byte) *SharedKey {
	var shared SharedKey
	box.Precompute((*[KeySize]byte)(&shared), peerPublic, localPrivate)
	return &shared
}
