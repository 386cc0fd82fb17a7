package ppserialize

import (
	"fmt"
	"log"

	"github.com/zentalk/pproto/pkg/ppmsg"
	"github.com/zentalk/pproto/pkg/ppserialize/ppjson"
	"github.com/zentalk/pproto/pkg/pptype"
)

// EncodeJSON serializes m into the JSON envelope of core spec §4.2.2.
// max_time_life is emitted only when set (the JSON path's sentinel is
// key-presence, not a magic number — core spec §9 Open Question b).
func EncodeJSON(m *ppmsg.Message, webFlags bool) ([]byte, error) {
	w := ppjson.NewWriter()
	w.StartObject()

	w.Member("id")
	w.WriteUUID(m.Id)

	w.Member("command")
	w.WriteUUID(m.Command)

	w.Member("protocolVersionLow")
	w.WriteUint(uint64(m.ProtocolVersionLow))
	w.Member("protocolVersionHigh")
	w.WriteUint(uint64(m.ProtocolVersionHigh))

	w.Member("flags")
	w.WriteUint(uint64(m.Flags))
	if m.Flags.Flags2NotEmpty() {
		w.Member("flags2")
		w.WriteUint(uint64(m.Flags2))
	}

	if webFlags {
		w.Member("webFlags")
		w.StartObject()
		w.Member("type")
		w.WriteUint(uint64(m.Type()))
		w.Member("execStatus")
		w.WriteUint(uint64(m.ExecStatus()))
		w.Member("priority")
		w.WriteUint(uint64(m.Priority()))
		w.Member("contentFormat")
		w.WriteUint(uint64(m.ContentFormat))
		w.EndObject()
	}

	if len(m.Tags) > 0 {
		w.Member("tags")
		w.StartArray(len(m.Tags))
		for _, t := range m.Tags {
			w.WriteUint(t)
		}
		w.EndArray()
	}

	if m.HasMaxTimeLife() {
		w.Member("maxTimeLife")
		w.WriteUint(m.MaxTimeLife)
	}

	if m.ProxyId != 0 {
		w.Member("proxyId")
		w.WriteUint(m.ProxyId)
	}

	if len(m.AccessId) > 0 {
		w.Member("accessId")
		w.WriteRawBytes(m.AccessId)
	}

	if len(m.Content) > 0 {
		w.Member("content")
		w.WriteRawBytes(m.Content)
		w.Member("contentFormat")
		w.WriteUint(uint64(m.ContentFormat))
	}

	w.EndObject()
	return w.Bytes()
}

// DecodeJSON parses the JSON envelope of core spec §4.2.2. When both the
// binary flags and a webFlags object are present and disagree, the binary
// flags win and a warning is logged (core spec §4.2.2).
func DecodeJSON(data []byte) (*ppmsg.Message, error) {
	r, err := ppjson.NewReader(data)
	if err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	r.StartObject()
	defer r.EndObject()

	m := &ppmsg.Message{MaxTimeLife: ppmsg.NoMaxTimeLife}

	r.Member("id", false)
	m.Id = r.ReadUUID()
	r.EndMember()

	r.Member("command", false)
	m.Command = r.ReadUUID()
	r.EndMember()

	r.Member("protocolVersionLow", false)
	m.ProtocolVersionLow = uint16(r.ReadUint())
	r.EndMember()

	r.Member("protocolVersionHigh", false)
	m.ProtocolVersionHigh = uint16(r.ReadUint())
	r.EndMember()

	r.Member("flags", false)
	m.Flags = ppmsg.Flags(r.ReadUint())
	r.EndMember()

	if r.Member("flags2", true) {
		m.Flags2 = uint32(r.ReadUint())
	}
	r.EndMember()

	warnWebFlagsMismatch(r, m)

	if r.Member("tags", true) {
		var size int
		r.StartArray(&size)
		tags := make([]uint64, 0, size)
		for i := 0; i < size; i++ {
			r.NextElement()
			tags = append(tags, r.ReadUint())
			r.EndElement()
		}
		r.EndArray()
		m.SetTags(tags)
	}
	r.EndMember()

	if r.Member("maxTimeLife", true) {
		m.MaxTimeLife = r.ReadUint()
	}
	r.EndMember()

	if r.Member("proxyId", true) {
		m.ProxyId = r.ReadUint()
	}
	r.EndMember()

	if r.Member("accessId", true) {
		m.AccessId = r.ReadRawBytes()
	}
	r.EndMember()

	if r.Member("content", true) {
		m.Content = r.ReadRawBytes()
	}
	r.EndMember()

	if r.Member("contentFormat", true) {
		m.ContentFormat = pptype.SerializeFormat(r.ReadUint())
	}
	r.EndMember()

	if r.Failed {
		return nil, fmt.Errorf("json decode: missing mandatory member")
	}
	return m, nil
}

func warnWebFlagsMismatch(r *ppjson.Reader, m *ppmsg.Message) {
	if !r.Member("webFlags", true) {
		r.EndMember()
		return
	}
	defer r.EndMember()
	if r.IsNull() {
		return
	}
	r.StartObject()
	defer r.EndObject()
	if r.Member("type", true) {
		if ppmsg.MessageType(r.ReadUint()) != m.Type() {
			log.Printf("ppserialize: webFlags.type disagrees with binary flags for message %s; binary wins", m.Id)
		}
	}
	r.EndMember()
	if r.Member("execStatus", true) && ppmsg.ExecStatus(r.ReadUint()) != m.ExecStatus() {
		log.Printf("ppserialize: webFlags.execStatus disagrees with binary flags for message %s; binary wins", m.Id)
	}
	r.EndMember()
	if r.Member("priority", true) && ppmsg.Priority(r.ReadUint()) != m.Priority() {
		log.Printf("ppserialize: webFlags.priority disagrees with binary flags for message %s; binary wins", m.Id)
	}
	r.EndMember()
	if r.Member("contentFormat", true) && pptype.SerializeFormat(r.ReadUint()) != m.Flags.ContentFormat() {
		log.Printf("ppserialize: webFlags.contentFormat disagrees with binary flags for message %s; binary wins", m.Id)
	}
	r.EndMember()
}
