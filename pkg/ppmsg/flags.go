package ppmsg

import "github.com/zentalk/pproto/pkg/pptype"

// MessageType classifies the role of a message: a Command invites an
// Answer, an Answer conveys the outcome of a previously received Command,
// an Event is fire-and-forget.
type MessageType uint8

const (
	TypeUnknown MessageType = iota
	TypeCommand
	TypeAnswer
	TypeEvent
)

// ExecStatus is only meaningful on Answer messages.
type ExecStatus uint8

const (
	ExecUnknown ExecStatus = iota
	ExecSuccess
	ExecFailed
	ExecError
)

// Priority selects which of the three send-queue FIFOs a message travels
// through; see package ppqueue.
type Priority uint8

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

// Compression names the algorithm (if any) applied to the serialized
// content before it was framed on the wire.
type Compression uint8

const (
	CompressNone Compression = iota
	CompressZip
	CompressLzma
	CompressPpmd
	CompressDisable
)

// Flag bit layout, LSB first, matching the wire word exactly (core spec
// §6.2). Widths are documented per group; reserved bits are always zero.
const (
	bitType            = 0 // 3 bits
	bitExecStatus      = 3 // 3 bits
	bitPriority        = 6 // 2 bits
	bitCompression     = 8 // 3 bits
	bitTagsNotEmpty    = 11
	bitMaxLifeNotEmpty = 12
	bitContentNotEmpty = 13
	bitProxyNotEmpty   = 14
	bitAccessNotEmpty  = 15
	bitContentFormat   = 24 // 3 bits
	bitFlags2NotEmpty  = 31
)

const (
	maskType        = 0x7
	maskExecStatus  = 0x7
	maskPriority    = 0x3
	maskCompression = 0x7
	maskFormat      = 0x7
)

// Flags is the bit-packed 32-bit flag word carried on every message.
type Flags uint32

func packField(f Flags, shift uint, mask, value uint32) Flags {
	f &^= Flags(mask << shift)
	f |= Flags((value & mask) << shift)
	return f
}

func unpackField(f Flags, shift uint, mask uint32) uint32 {
	return (uint32(f) >> shift) & mask
}

func (f Flags) Type() MessageType      { return MessageType(unpackField(f, bitType, maskType)) }
func (f Flags) ExecStatus() ExecStatus { return ExecStatus(unpackField(f, bitExecStatus, maskExecStatus)) }
func (f Flags) Priority() Priority     { return Priority(unpackField(f, bitPriority, maskPriority)) }
func (f Flags) Compression() Compression {
	return Compression(unpackField(f, bitCompression, maskCompression))
}
func (f Flags) ContentFormat() pptype.SerializeFormat {
	return pptype.SerializeFormat(unpackField(f, bitContentFormat, maskFormat))
}

func (f Flags) TagsNotEmpty() bool    { return f&(1<<bitTagsNotEmpty) != 0 }
func (f Flags) MaxLifeNotEmpty() bool { return f&(1<<bitMaxLifeNotEmpty) != 0 }
func (f Flags) ContentNotEmpty() bool { return f&(1<<bitContentNotEmpty) != 0 }
func (f Flags) ProxyNotEmpty() bool   { return f&(1<<bitProxyNotEmpty) != 0 }
func (f Flags) AccessNotEmpty() bool  { return f&(1<<bitAccessNotEmpty) != 0 }
func (f Flags) Flags2NotEmpty() bool  { return f&(1<<bitFlags2NotEmpty) != 0 }

func (f Flags) WithType(t MessageType) Flags { return packField(f, bitType, maskType, uint32(t)) }
func (f Flags) WithExecStatus(s ExecStatus) Flags {
	return packField(f, bitExecStatus, maskExecStatus, uint32(s))
}
func (f Flags) WithPriority(p Priority) Flags {
	return packField(f, bitPriority, maskPriority, uint32(p))
}
func (f Flags) WithCompression(c Compression) Flags {
	return packField(f, bitCompression, maskCompression, uint32(c))
}
func (f Flags) WithContentFormat(sf pptype.SerializeFormat) Flags {
	return packField(f, bitContentFormat, maskFormat, uint32(sf))
}

func setBit(f Flags, bit uint, v bool) Flags {
	if v {
		return f | (1 << bit)
	}
	return f &^ (1 << bit)
}

func (f Flags) WithTagsNotEmpty(v bool) Flags    { return setBit(f, bitTagsNotEmpty, v) }
func (f Flags) WithMaxLifeNotEmpty(v bool) Flags { return setBit(f, bitMaxLifeNotEmpty, v) }
func (f Flags) WithContentNotEmpty(v bool) Flags { return setBit(f, bitContentNotEmpty, v) }
func (f Flags) WithProxyNotEmpty(v bool) Flags   { return setBit(f, bitProxyNotEmpty, v) }
func (f Flags) WithAccessNotEmpty(v bool) Flags  { return setBit(f, bitAccessNotEmpty, v) }
func (f Flags) WithFlags2NotEmpty(v bool) Flags  { return setBit(f, bitFlags2NotEmpty, v) }
