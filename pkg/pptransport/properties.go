// Package pptransport implements the PProto stream socket engine: the
// per-connection state machine, handshake, key exchange, framed I/O loop
// with priority scheduling, liveness and optional compression/encryption
// (core spec §4.1).
package pptransport

import (
	"github.com/zentalk/pproto/pkg/ppcommand"
	"github.com/zentalk/pproto/pkg/pptype"
)

// Properties configures one socket's behavior. The zero value is not
// ready to use; call DefaultProperties to get sane defaults (core spec
// §4.1.5/§4.1.6/§4.1.4/§4.5).
type Properties struct {
	// MessageFormat selects qbinary or JSON framing for this socket.
	MessageFormat pptype.SerializeFormat

	// Encrypted, when true, requires key exchange and frames every message
	// through ppcrypto (core spec §4.1.3/§6.3).
	Encrypted bool

	// OnlyEncrypted rejects incoming connections whose signature selects an
	// unencrypted row (core spec §4.1.2).
	OnlyEncrypted bool

	// CompressionLevel is clamped to [-1, 9]; 0 disables compression
	// outright, -1 means "library default" (core spec §4.1.5).
	CompressionLevel int

	// CompressionSize is the serialized-size threshold (bytes) above which
	// outbound messages are compressed (core spec §4.1.5). Default 1024.
	CompressionSize int

	// CheckProtocolCompatibility, when true (the default), closes the
	// connection with protocol_incompatible if the version windows don't
	// overlap (core spec §4.1.4).
	CheckProtocolCompatibility bool

	// CheckUnknownCommands, when true, makes an accepted (listener-side)
	// socket reply Unknown to any received command absent from Registry
	// rather than delivering it to the application (core spec §4.1.5/§7).
	// Dialed sockets do not perform the check.
	CheckUnknownCommands bool

	// MessageWebFlags mirrors binary flags into a human-readable webFlags
	// object on JSON-framed sockets (core spec §4.2.2).
	MessageWebFlags bool

	// EchoTimeoutMS is the liveness probe interval in milliseconds; 0
	// disables liveness entirely (core spec §4.1.6). Public constructors
	// taking seconds convert into this field.
	EchoTimeoutMS int64

	// ProtocolVersionLow/High is this endpoint's wire-compatible version
	// window (core spec §4.1.4).
	ProtocolVersionLow  uint16
	ProtocolVersionHigh uint16

	// Registry is the command registry consulted for CheckUnknownCommands.
	// Start freezes it. Defaults to ppcommand.Default.
	Registry *ppcommand.Registry
}

// DefaultProperties returns the documented defaults of core spec §4.1.5 et
// seq.: no encryption, zip threshold 1024 bytes, default compression
// level, protocol compatibility checking on, unknown-command checking on,
// no liveness probing, version window [1,1], and the process-wide default
// command registry.
func DefaultProperties() Properties {
	return Properties{
		MessageFormat:              pptype.QBinary,
		CompressionLevel:           -1,
		CompressionSize:            1024,
		CheckProtocolCompatibility: true,
		CheckUnknownCommands:       true,
		ProtocolVersionLow:         1,
		ProtocolVersionHigh:        1,
		Registry:                   ppcommand.Default,
	}
}

// WithEchoTimeoutSeconds returns a copy of p with its liveness timer set
// from a whole number of seconds; public API expresses this in seconds per core spec §6's note,
// converted here to the millisecond granularity the wire tag carries.
func (p Properties) WithEchoTimeoutSeconds(seconds int) Properties {
	p.EchoTimeoutMS = int64(seconds) * 1000
	return p
}

func clampCompressionLevel(level int) int {
	if level < -1 {
		return -1
	}
	if level > 9 {
		return 9
	}
	return level
}
