package ppcrypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
)

// ErrInvalidPadding is returned by UnpadPlaintext when the padding-length
// field disagrees with the actual buffer size.
var ErrInvalidPadding = errors.New("ppcrypto: invalid padding")

// blockSize is the multiple of bytes the padded plaintext is rounded up to
// before encryption, so the on-wire ciphertext size does not leak the
// exact message length at byte granularity (core spec §4.1.5/§6.3).
const blockSize = 16

// padLenFieldSize is the size of the trailing [u32 pad_len] field, which
// itself must be counted in the ≥4-byte padding reserve core spec §4.1.5
// requires.
const padLenFieldSize = 4

// PadPlaintext builds the encrypted-mode plaintext envelope
// [u8 is_compressed][u32 data_len][data][u32 pad_len][pad], padding with
// cryptographically random bytes so the total ciphertext size becomes a
// multiple of blockSize, reserving at least padLenFieldSize bytes of pad
// for the pad_len field itself (core spec §4.1.5/§6.3). Generalizes the
// teacher's fixed-cell-size AddPadding idea into the one scheme the wire
// format mandates.
func PadPlaintext(isCompressed bool, data []byte) ([]byte, error) {
	// Bytes written before the pad_len field: is_compressed(1) + data_len(4)
	// + data + pad_len(4) itself — the ≥4-byte reserve core spec §4.1.5
	// describes is exactly this trailing length field.
	before := 1 + 4 + len(data) + padLenFieldSize
	padLen := (blockSize - before%blockSize) % blockSize

	out := make([]byte, 0, before+padLen)
	out = append(out, boolByte(isCompressed))
	out = appendUint32(out, uint32(len(data)))
	out = append(out, data...)
	out = appendUint32(out, uint32(padLen))

	pad := make([]byte, padLen)
	if _, err := rand.Read(pad); err != nil {
		return nil, err
	}
	out = append(out, pad...)
	return out, nil
}

// UnpadPlaintext reverses PadPlaintext.
func UnpadPlaintext(buf []byte) (isCompressed bool, data []byte, err error) {
	if len(buf) < 1+4+4 {
		return false, nil, ErrInvalidPadding
	}
	isCompressed = buf[0] != 0
	buf = buf[1:]
	dataLen := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(dataLen) > uint64(len(buf)) {
		return false, nil, ErrInvalidPadding
	}
	data = buf[:dataLen]
	buf = buf[dataLen:]
	if len(buf) < 4 {
		return false, nil, ErrInvalidPadding
	}
	padLen := binary.BigEndian.Uint32(buf[:4])
	if uint64(padLen) != uint64(len(buf)-4) {
		return false, nil, ErrInvalidPadding
	}
	return isCompressed, data, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendUint32(out []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(out, b[:]...)
}
