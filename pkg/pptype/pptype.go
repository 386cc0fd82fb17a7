// Package pptype defines the small value types shared by every PProto
// package: command and message identifiers, host addresses, socket
// descriptors and the two wire enumerations (socket type, serialize format).
package pptype

import (
	"fmt"

	"github.com/google/uuid"
)

// CommandId identifies an operation. Assigned once per command name at
// registry population time; never reused or mutated afterward.
type CommandId = uuid.UUID

// MessageId uniquely identifies a single message, generated fresh per
// message by NewMessageId.
type MessageId = uuid.UUID

// NewMessageId returns a fresh, random MessageId.
func NewMessageId() MessageId {
	return uuid.New()
}

// NilCommandId is the zero UUID, used as "no command" / "unknown command".
var NilCommandId = uuid.Nil

// HostPoint is an address/port pair. The zero value is the "unset" sentinel.
type HostPoint struct {
	Address string
	Port    uint16
}

// NullHostPoint is the "unset" sentinel value for HostPoint.
var NullHostPoint = HostPoint{}

// IsNull reports whether p is the unset sentinel.
func (p HostPoint) IsNull() bool {
	return p == NullHostPoint
}

func (p HostPoint) String() string {
	if p.IsNull() {
		return "<null>"
	}
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}

// SocketDescriptor is an opaque per-connection handle with OS file
// descriptor semantics. NoSocketDescriptor means "no socket".
type SocketDescriptor int64

// NoSocketDescriptor is the sentinel value meaning "no socket".
const NoSocketDescriptor SocketDescriptor = -1

// SocketType distinguishes the transport a connection runs over.
type SocketType uint8

const (
	SocketUnknown SocketType = iota
	SocketLocal              // UNIX domain socket
	SocketTcp
	SocketUdp
)

func (t SocketType) String() string {
	switch t {
	case SocketLocal:
		return "local"
	case SocketTcp:
		return "tcp"
	case SocketUdp:
		return "udp"
	default:
		return "unknown"
	}
}

// SerializeFormat selects the wire envelope used for message content. It is
// encoded in 3 bits of the message flag word (room reserved up to 8 values).
type SerializeFormat uint8

const (
	QBinary SerializeFormat = 0
	Json    SerializeFormat = 1
)

func (f SerializeFormat) String() string {
	switch f {
	case QBinary:
		return "qbinary"
	case Json:
		return "json"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}
