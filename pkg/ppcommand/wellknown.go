package ppcommand

import (
	"github.com/google/uuid"

	"github.com/zentalk/pproto/pkg/pptype"
)

// Well-known commands, normative per core spec §6.5.
var (
	Unknown            = uuid.MustParse("4aef29d6-5b1a-4323-8655-ef0d4f1bb79d")
	Error              = uuid.MustParse("b18b98cc-b026-4bfe-8e33-e7afebfbe78b")
	ProtocolCompatible = uuid.MustParse("173cbbeb-1d81-4e01-bf3c-5d06f9c878c3")
	CloseConnection    = uuid.MustParse("e71921fd-e5b3-4f9b-8be7-283e8bb2a531")
	EchoConnection     = uuid.MustParse("db702b07-7f5a-403f-963a-ec50d41c7305")
)

// Default is the process-wide registry every pptransport.Socket consults
// unless constructed with an explicit alternative. Application code calls
// Default.Register(...) for its own commands before starting any listener
// or dialing any connection, then relies on the first socket start to
// implicitly freeze it.
var Default = NewRegistry()

func init() {
	Default.Register(Unknown, "Unknown", false)
	Default.Register(Error, "Error", false)
	Default.Register(ProtocolCompatible, "ProtocolCompatible", false)
	Default.Register(CloseConnection, "CloseConnection", false)
	Default.Register(EchoConnection, "EchoConnection", false)
}

// protocolSignature selects the 16-byte UUID exchanged as the first bytes
// of every stream connection, chosen by (format, encrypted) per core spec
// §4.1.2. It lives here (rather than pptransport) because it is, like the
// well-known commands above, part of the process-wide registry of
// protocol-level UUID constants.
var protocolSignatures = map[[2]bool]uuid.UUID{}

func signatureKey(format pptype.SerializeFormat, encrypted bool) [2]bool {
	return [2]bool{format == pptype.Json, encrypted}
}

func init() {
	protocolSignatures[signatureKey(pptype.QBinary, false)] = uuid.MustParse("82c40273-4037-4f1b-a823-38123435b22f")
	protocolSignatures[signatureKey(pptype.Json, false)] = uuid.MustParse("fea6b958-dafb-4f5c-b620-fe0aafbd47e2")
	protocolSignatures[signatureKey(pptype.QBinary, true)] = uuid.MustParse("6ae8b2c0-4fac-4ac5-ac87-138e0bc33a39")
	protocolSignatures[signatureKey(pptype.Json, true)] = uuid.MustParse("5980f24b-d518-4d38-b8dc-84e9f7aadaf3")
}

// Signature returns the 16-byte protocol signature for a (format,
// encrypted) pair.
func Signature(format pptype.SerializeFormat, encrypted bool) uuid.UUID {
	return protocolSignatures[signatureKey(format, encrypted)]
}

// SignatureLookup returns the (format, encrypted) pair matching sig, and
// whether any row matched at all.
func SignatureLookup(sig uuid.UUID) (format pptype.SerializeFormat, encrypted bool, ok bool) {
	for k, v := range protocolSignatures {
		if v == sig {
			return boolToFormat(k[0]), k[1], true
		}
	}
	return 0, false, false
}

func boolToFormat(json bool) pptype.SerializeFormat {
	if json {
		return pptype.Json
	}
	return pptype.QBinary
}
