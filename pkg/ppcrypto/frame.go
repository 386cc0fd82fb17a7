package ppcrypto

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/box"
)

// MacSize and NonceSize are the wire sizes of the two fields that precede
// the ciphertext in an encrypted frame body (core spec §6.3):
// [mac(16)][nonce(24)][ciphertext].
const (
	MacSize   = 16
	NonceSize = 24
)

// SealFrame authenticates and encrypts plaintext under shared, generating a
// fresh random nonce. box.SealAfterPrecomputation returns mac||ciphertext
// as one contiguous "box" (the underlying secretbox primitive always
// prepends the 16-byte Poly1305 MAC), so splitting it in two is exactly the
// wire layout core spec §6.3 requires — no extra copying scheme is needed.
func SealFrame(shared *SharedKey, plaintext []byte) (mac [MacSize]byte, nonce [NonceSize]byte, ciphertext []byte, err error) {
	if _, err = rand.Read(nonce[:]); err != nil {
		return mac, nonce, nil, ErrEncryptionFailed
	}
	sealed := box.SealAfterPrecomputation(nil, plaintext, &nonce, (*[KeySize]byte)(shared))
	if len(sealed) < MacSize {
		return mac, nonce, nil, ErrEncryptionFailed
	}
	copy(mac[:], sealed[:MacSize])
	ciphertext = sealed[MacSize:]
	return mac, nonce, ciphertext, nil
}

// OpenFrame reverses SealFrame, verifying the Poly1305 MAC before returning
// plaintext.
func OpenFrame(shared *SharedKey, mac [MacSize]byte, nonce [NonceSize]byte, ciphertext []byte) ([]byte, error) {
	sealed := make([]byte, 0, MacSize+len(ciphertext))
	sealed = append(sealed, mac[:]...)
	sealed = append(sealed, ciphertext...)
	plaintext, ok := box.OpenAfterPrecomputation(nil, sealed, &nonce, (*[KeySize]byte)(shared))
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
