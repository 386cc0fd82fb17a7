// Package ppmsg defines the PProto message envelope: identity, flags,
// optional fields and opaque content. See the core spec §3.2 for the
// authoritative schema; this file implements it field-for-field.
package ppmsg

import (
	"log"
	"math"
	"sync/atomic"

	"github.com/zentalk/pproto/pkg/pptype"
)

// NoMaxTimeLife is the sentinel value of MaxTimeLife meaning "no limit".
const NoMaxTimeLife = math.MaxUint64

// maxTags is the largest number of tags a message may carry; attempts to
// append beyond this are truncated with an error log (core spec §3.2).
const maxTags = 255

// Message is the versioned envelope exchanged between PProto endpoints.
// The exported fields below are the wire-serialized ones; the *transient
// fields further down are local bookkeeping that never crosses the wire.
type Message struct {
	Id                   pptype.MessageId
	Command              pptype.CommandId
	ProtocolVersionLow   uint16
	ProtocolVersionHigh  uint16
	Flags                Flags
	Flags2               uint32
	Tags                 []uint64
	MaxTimeLife          uint64
	ProxyId              uint64
	AccessId             []byte
	Content              []byte
	ContentFormat        pptype.SerializeFormat

	// Transient — never serialized, never crosses the wire.
	SourcePoint        pptype.HostPoint
	SocketDescriptor   pptype.SocketDescriptor
	SocketName         string
	DestinationPoints  []pptype.HostPoint
	DestinationSockets []pptype.SocketDescriptor
	Auxiliary          any
	processed          atomic.Bool
}

// New creates a fresh Command message: a new random id, Normal priority,
// ExecStatus Unknown, no optional fields set.
func New(command pptype.CommandId) *Message {
	m := &Message{
		Id:          pptype.NewMessageId(),
		Command:     command,
		MaxTimeLife: NoMaxTimeLife,
	}
	m.Flags = m.Flags.WithType(TypeCommand).WithPriority(PriorityNormal).WithExecStatus(ExecUnknown)
	m.SocketDescriptor = pptype.NoSocketDescriptor
	return m
}

// NewEvent creates a fresh Event message.
func NewEvent(command pptype.CommandId) *Message {
	m := New(command)
	m.Flags = m.Flags.WithType(TypeEvent)
	return m
}

// Processed reports whether a handler has already claimed this message.
// Interior-mutable via atomics because a message may be visible to several
// handlers concurrently once it is in the dispatch queue (core spec §9).
func (m *Message) Processed() bool { return m.processed.Load() }

// MarkProcessed claims the message for a single-fire handler. Returns true
// if this call was the one to claim it.
func (m *Message) MarkProcessed() bool { return m.processed.CompareAndSwap(false, true) }

// SetTags sets the tag list, truncating to maxTags and logging an error if
// the caller supplied more (core spec §3.2's overflow rule), and keeps
// tags_not_empty in sync with the new field value.
func (m *Message) SetTags(tags []uint64) {
	if len(tags) > maxTags {
		log.Printf("ppmsg: tag list of length %d truncated to %d", len(tags), maxTags)
		tags = tags[:maxTags]
	}
	m.Tags = tags
	m.Flags = m.Flags.WithTagsNotEmpty(len(tags) > 0)
}

// HasMaxTimeLife reports whether a deadline is set (core spec §9 Open
// Question b: the qbinary sentinel and the JSON presence-of-key test both
// reduce to this one predicate so values round-trip across formats).
func (m *Message) HasMaxTimeLife() bool { return m.MaxTimeLife != NoMaxTimeLife }

// IsStale reports whether m's max_time_life deadline (an absolute UTC unix
// second count) has already passed.
func (m *Message) IsStale(nowUnix uint64) bool {
	return m.HasMaxTimeLife() && nowUnix > m.MaxTimeLife
}

// syncNotEmptyBits recomputes the five "not-empty" bits and flags2_not_empty
// from the current field values, per core spec §3.2's invariant that these
// bits always mirror actual field presence.
func (m *Message) syncNotEmptyBits() {
	m.Flags = m.Flags.
		WithTagsNotEmpty(len(m.Tags) > 0).
		WithMaxLifeNotEmpty(m.HasMaxTimeLife()).
		WithContentNotEmpty(len(m.Content) > 0).
		WithProxyNotEmpty(m.ProxyId != 0).
		WithAccessNotEmpty(len(m.AccessId) > 0).
		WithFlags2NotEmpty(m.Flags2 != 0)
}

// CloneForAnswer returns a new Answer message that preserves identity,
// command, protocol version, flags, tags and life, clears content and
// destinations, and sets ExecStatus to Success (core spec §3.2/I6).
func (m *Message) CloneForAnswer() *Message {
	a := &Message{
		Id:                  m.Id,
		Command:             m.Command,
		ProtocolVersionLow:  m.ProtocolVersionLow,
		ProtocolVersionHigh: m.ProtocolVersionHigh,
		Flags:               m.Flags,
		Flags2:              m.Flags2,
		Tags:                m.Tags,
		MaxTimeLife:         m.MaxTimeLife,
		SocketDescriptor:    m.SocketDescriptor,
		SocketName:          m.SocketName,
		SourcePoint:         m.SourcePoint,
	}
	a.Flags = a.Flags.
		WithType(TypeAnswer).
		WithExecStatus(ExecSuccess).
		WithCompression(CompressNone)
	a.Content = nil
	a.DestinationPoints = nil
	a.DestinationSockets = nil
	a.syncNotEmptyBits()
	return a
}

// SetContent assigns the serialized payload and its format, recomputing the
// content_not_empty and content_format flag fields.
func (m *Message) SetContent(content []byte, format pptype.SerializeFormat) {
	m.Content = content
	m.ContentFormat = format
	m.Flags = m.Flags.WithContentFormat(format).WithContentNotEmpty(len(content) > 0)
}

// Type, ExecStatus, Priority and Compression are thin convenience
// accessors over the flag word.
func (m *Message) Type() MessageType          { return m.Flags.Type() }
func (m *Message) ExecStatus() ExecStatus     { return m.Flags.ExecStatus() }
func (m *Message) Priority() Priority         { return m.Flags.Priority() }
func (m *Message) Compression() Compression   { return m.Flags.Compression() }

// SetExecStatus sets the outcome of an Answer message.
func (m *Message) SetExecStatus(s ExecStatus) { m.Flags = m.Flags.WithExecStatus(s) }

// SetPriority sets the send-queue priority of a not-yet-enqueued message.
func (m *Message) SetPriority(p Priority) { m.Flags = m.Flags.WithPriority(p) }
