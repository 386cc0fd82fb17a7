// Package ppserialize binds the generic qbinary and ppjson codecs to the
// PProto message envelope (core spec §3.2/§4.2), and implements the
// round-trip laws of core spec §8 (I1-I3).
package ppserialize

import (
	"fmt"

	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/ppserialize/qbinary"
)

// EncodeQBinary serializes m into a single-version qbinary record. Adding a
// field to a future schema version means opening a second
// BeginVersion/EndVersion pair here and bumping the reader's known-version
// count in DecodeQBinary — existing readers keep decoding version 1
// unaffected (core spec §9).
func EncodeQBinary(m *ppmsg.Message) []byte {
	// The not-empty bits are derived from the fields at encode time, so a
	// field assigned directly (without its setter) is still written.
	flags := m.Flags.
		WithTagsNotEmpty(len(m.Tags) > 0).
		WithMaxLifeNotEmpty(m.HasMaxTimeLife()).
		WithContentNotEmpty(len(m.Content) > 0).
		WithProxyNotEmpty(m.ProxyId != 0).
		WithAccessNotEmpty(len(m.AccessId) > 0).
		WithFlags2NotEmpty(m.Flags2 != 0)

	w := qbinary.NewWriter()
	w.BeginVersion() // V1
	w.WriteRaw(m.Id[:])
	w.WriteRaw(m.Command[:])
	w.WriteUint16(m.ProtocolVersionLow)
	w.WriteUint16(m.ProtocolVersionHigh)
	w.WriteUint32(uint32(flags))
	if flags.Flags2NotEmpty() {
		w.WriteUint32(m.Flags2)
	}
	if flags.TagsNotEmpty() {
		w.WriteUint64Slice(m.Tags)
	}
	if flags.MaxLifeNotEmpty() {
		w.WriteUint64(m.MaxTimeLife)
	}
	if flags.ProxyNotEmpty() {
		w.WriteUint64(m.ProxyId)
	}
	if flags.AccessNotEmpty() {
		w.WriteBytes(m.AccessId)
	}
	if flags.ContentNotEmpty() {
		w.WriteBytes(m.Content)
	}
	w.EndVersion()
	return w.Bytes()
}

// knownQBinaryVersions is how many schema versions this build of
// DecodeQBinary understands. Bump alongside adding a new
// BeginVersion/EndVersion block to EncodeQBinary.
const knownQBinaryVersions = 1

// DecodeQBinary parses a qbinary record produced by EncodeQBinary (or by a
// peer on a newer or older schema version — core spec §4.2.1/§8 I3).
func DecodeQBinary(data []byte) (*ppmsg.Message, error) {
	r, err := qbinary.NewReader(data)
	if err != nil {
		return nil, fmt.Errorf("qbinary decode: %w", err)
	}
	m := &ppmsg.Message{MaxTimeLife: ppmsg.NoMaxTimeLife}
	for v := 0; v < knownQBinaryVersions && v < r.NumVersions(); v++ {
		r.BeginVersion()
		switch v {
		case 0:
			copy(m.Id[:], r.ReadRaw(16))
			copy(m.Command[:], r.ReadRaw(16))
			m.ProtocolVersionLow = r.ReadUint16()
			m.ProtocolVersionHigh = r.ReadUint16()
			m.Flags = ppmsg.Flags(r.ReadUint32())
			if m.Flags.Flags2NotEmpty() {
				m.Flags2 = r.ReadUint32()
			}
			if m.Flags.TagsNotEmpty() {
				m.Tags = r.ReadUint64Slice()
			}
			if m.Flags.MaxLifeNotEmpty() {
				m.MaxTimeLife = r.ReadUint64()
			} else {
				m.MaxTimeLife = ppmsg.NoMaxTimeLife
			}
			if m.Flags.ProxyNotEmpty() {
				m.ProxyId = r.ReadUint64()
			}
			if m.Flags.AccessNotEmpty() {
				m.AccessId = r.ReadBytes()
			}
			if m.Flags.ContentNotEmpty() {
				m.Content = r.ReadBytes()
				m.ContentFormat = m.Flags.ContentFormat()
			}
		}
		r.EndVersion()
	}
	// A writer running a newer schema (more versions than we know) is
	// ignored past knownQBinaryVersions, per core spec §4.2.1.
	return m, nil
}
