package ppmsg

import "github.com/google/uuid"

// MessageError is the Answer content when ExecStatus is Error: an
// application-level or protocol-level failure that the caller should treat
// as exceptional (core spec §3.3).
type MessageError struct {
	Group       int32
	Code        uuid.UUID
	Description string
}

// MessageFailed has the identical wire shape to MessageError, used when
// ExecStatus is Failed: a non-exceptional negative outcome such as "bad
// credentials" (core spec §3.3).
type MessageFailed struct {
	Group       int32
	Code        uuid.UUID
	Description string
}

// Well-known error codes for group 0, normative per core spec §6.5.
var (
	ErrCodeProtocolIncompatible = uuid.MustParse("afa4209c-bd5a-4791-9713-5c3f4ab3c52b")
	ErrCodeQBinaryParse         = uuid.MustParse("ed291487-0000-0000-0000-000000000000")
	ErrCodeJSONParse            = uuid.MustParse("db5d018b-0000-0000-0000-000000000000")
	ErrCodeMessageContentParse  = uuid.MustParse("d603db4a-0000-0000-0000-000000000000")
)
