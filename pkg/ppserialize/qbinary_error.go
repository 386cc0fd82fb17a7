package ppserialize

import (
	"github.com/zentalk/pproto/pkg/ppserialize/qbinary"
)

// EncodeMessageError serializes a MessageError/MessageFailed record (they
// share a wire shape, core spec §3.3) as a single qbinary version: group,
// code and description.
func EncodeMessageError(group int32, code [16]byte, description string) []byte {
	w := qbinary.NewWriter()
	w.BeginVersion()
	w.WriteUint32(uint32(group))
	w.WriteRaw(code[:])
	w.WriteString(description)
	w.EndVersion()
	return w.Bytes()
}

// DecodeMessageError is EncodeMessageError's inverse.
func DecodeMessageError(data []byte) (group int32, code [16]byte, description string, err error) {
	r, err := qbinary.NewReader(data)
	if err != nil {
		return 0, code, "", err
	}
	r.BeginVersion()
	group = int32(r.ReadUint32())
	raw := r.ReadRaw(16)
	copy(code[:], raw)
	description = r.ReadString()
	r.EndVersion()
	return group, code, description, nil
}
