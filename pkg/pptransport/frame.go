package pptransport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/zentalk/pproto/pkg/ppcrypto"
)

// frameHeaderSize is the size of the length prefix that precedes every
// frame body, unencrypted or encrypted alike (core spec §4.1.5/§6.3).
const frameHeaderSize = 4

// writeFrame writes one unencrypted frame: [i32 length][body], where the
// sign of length carries the compression flag (core spec §4.1.5/§6.3/I8):
// positive means raw, negative means zlib-compressed, and |length| is
// always the number of body bytes that follow.
func writeFrame(w io.Writer, body []byte, compressed bool) error {
	length := int32(len(body))
	if compressed {
		length = -length
	}
	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(length))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// readFrame reads one unencrypted frame, returning the body and whether it
// was zlib-compressed on the wire.
func readFrame(r io.Reader) (body []byte, compressed bool, err error) {
	var hdr [frameHeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return nil, false, err
	}
	length := int32(binary.BigEndian.Uint32(hdr[:]))
	compressed = length < 0
	n := length
	if compressed {
		n = -n
	}
	if n == 0 {
		return nil, compressed, nil
	}
	body = make([]byte, n)
	if _, err = io.ReadFull(r, body); err != nil {
		return nil, false, err
	}
	return body, compressed, nil
}

// zipCompress compresses data with zlib at level (clamped already by the
// caller), using klauspost/compress for the deflate implementation (the
// teacher's own transitive dependency, promoted to direct use here).
func zipCompress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func zipDecompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// writeEncryptedFrame writes one encrypted frame: [i32 length][mac(16)]
// [nonce(24)][ciphertext], where ciphertext decrypts to the padded
// plaintext envelope of core spec §6.3. length is always positive.
func writeEncryptedFrame(w io.Writer, shared *ppcrypto.SharedKey, isCompressed bool, plaintext []byte) error {
	padded, err := ppcrypto.PadPlaintext(isCompressed, plaintext)
	if err != nil {
		return err
	}
	mac, nonce, ciphertext, err := ppcrypto.SealFrame(shared, padded)
	if err != nil {
		return err
	}
	body := make([]byte, 0, ppcrypto.MacSize+ppcrypto.NonceSize+len(ciphertext))
	body = append(body, mac[:]...)
	body = append(body, nonce[:]...)
	body = append(body, ciphertext...)

	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readEncryptedFrame reads and decrypts one encrypted frame.
func readEncryptedFrame(r io.Reader, shared *ppcrypto.SharedKey) (isCompressed bool, plaintext []byte, err error) {
	var hdr [frameHeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return false, nil, err
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length < ppcrypto.MacSize+ppcrypto.NonceSize {
		return false, nil, fmt.Errorf("pptransport: encrypted frame too short (%d bytes)", length)
	}
	body := make([]byte, length)
	if _, err = io.ReadFull(r, body); err != nil {
		return false, nil, err
	}
	var mac [ppcrypto.MacSize]byte
	var nonce [ppcrypto.NonceSize]byte
	copy(mac[:], body[:ppcrypto.MacSize])
	copy(nonce[:], body[ppcrypto.MacSize:ppcrypto.MacSize+ppcrypto.NonceSize])
	ciphertext := body[ppcrypto.MacSize+ppcrypto.NonceSize:]

	padded, err := ppcrypto.OpenFrame(shared, mac, nonce, ciphertext)
	if err != nil {
		return false, nil, err
	}
	return ppcrypto.UnpadPlaintext(padded)
}
