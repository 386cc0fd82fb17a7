// Package qbinary implements PProto's versioned binary record codec (core
// spec §4.2.1/§9): a record is serialized as a list of up to 255
// self-delimited byte-array "chunks", one per schema version. A writer at
// schema version N emits N chunks; a reader that only knows versions up to
// M decodes the first min(N, M) chunks and ignores the rest, so adding a
// field (a new chunk, or a new trailing write within an existing chunk
// written after all prior fields) is forward- and backward-compatible by
// construction. Fields are never removed; they only stop being written
// within their chunk, in which case a reader built for the old schema
// still finds them absent and leaves its target default-initialized.
package qbinary

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// maxVersions is the largest number of chunks a record may carry; it is a
// wire limit (one byte count prefix), not a design choice.
const maxVersions = 255

// order is the fixed numeric byte order used by every qbinary record,
// chosen once per process (core spec §4.2.1).
var order = binary.BigEndian

// Writer accumulates chunks and produces the final encoded byte slice.
type Writer struct {
	chunks [][]byte
	cur    bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// BeginVersion starts a new chunk. Call EndVersion to close it before
// starting the next one or finishing with Bytes.
func (w *Writer) BeginVersion() {
	w.cur.Reset()
}

// EndVersion closes the current chunk, appending it to the record. Panics
// if called enough times to exceed maxVersions — that is a programming
// error in the schema, not a runtime condition to recover from.
func (w *Writer) EndVersion() {
	if len(w.chunks) >= maxVersions {
		panic("qbinary: record exceeds 255 versions")
	}
	w.chunks = append(w.chunks, append([]byte(nil), w.cur.Bytes()...))
	w.cur.Reset()
}

// Bytes finalizes the record: [u8 count][per chunk: u32 length][bytes].
func (w *Writer) Bytes() []byte {
	var out bytes.Buffer
	out.WriteByte(byte(len(w.chunks)))
	for _, c := range w.chunks {
		var lenBuf [4]byte
		order.PutUint32(lenBuf[:], uint32(len(c)))
		out.Write(lenBuf[:])
		out.Write(c)
	}
	return out.Bytes()
}

func (w *Writer) WriteUint8(v uint8)   { w.cur.WriteByte(v) }
func (w *Writer) WriteBool(v bool) {
	if v {
		w.cur.WriteByte(1)
	} else {
		w.cur.WriteByte(0)
	}
}

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	order.PutUint16(b[:], v)
	w.cur.Write(b[:])
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	order.PutUint32(b[:], v)
	w.cur.Write(b[:])
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	order.PutUint64(b[:], v)
	w.cur.Write(b[:])
}

// WriteRaw writes exactly len(b) bytes with no length prefix, for
// fixed-size fields (e.g. a 16-byte UUID) whose length both sides already
// agree on.
func (w *Writer) WriteRaw(b []byte) { w.cur.Write(b) }

// WriteBytes writes a length-prefixed byte array: [u32 length][bytes].
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.cur.Write(b)
}

// WriteString writes s as an explicit UTF-8 byte array.
func (w *Writer) WriteString(s string) { w.WriteBytes([]byte(s)) }

// WriteUint64Slice writes a []uint64 as [u32 count][items...].
func (w *Writer) WriteUint64Slice(s []uint64) {
	w.WriteUint32(uint32(len(s)))
	for _, v := range s {
		w.WriteUint64(v)
	}
}

// Reader decodes a record produced by Writer.Bytes.
type Reader struct {
	chunks  [][]byte
	verIdx  int // number of BeginVersion calls so far
	cur     *bytes.Reader
}

// NewReader parses the chunk table of data. It returns an error only on a
// structurally malformed record (truncated length prefix or body); an
// empty or short record relative to the reader's own schema is not an
// error — BeginVersion simply returns an empty chunk for missing versions.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < 1 {
		return &Reader{}, nil
	}
	count := int(data[0])
	data = data[1:]
	chunks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < 4 {
			return nil, fmt.Errorf("qbinary: truncated chunk %d length prefix", i)
		}
		n := int(order.Uint32(data[:4]))
		data = data[4:]
		if len(data) < n {
			return nil, fmt.Errorf("qbinary: truncated chunk %d body (want %d, have %d)", i, n, len(data))
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return &Reader{chunks: chunks}, nil
}

// NumVersions returns how many chunks the writer actually produced.
func (r *Reader) NumVersions() int { return len(r.chunks) }

// BeginVersion advances to the next chunk. If the writer produced fewer
// chunks than the reader calls BeginVersion, the reader sees an empty
// chunk and every field read in it returns its zero value — "versions
// unknown to the writer are absent and default-initialized" (core §4.2.1).
func (r *Reader) BeginVersion() {
	var chunk []byte
	if r.verIdx < len(r.chunks) {
		chunk = r.chunks[r.verIdx]
	}
	r.verIdx++
	r.cur = bytes.NewReader(chunk)
}

// EndVersion closes the current chunk. Any bytes left unread in it (fields
// written by a newer schema than this reader knows) are silently ignored.
func (r *Reader) EndVersion() {
	r.cur = nil
}

func (r *Reader) ReadUint8() uint8 {
	b, err := r.cur.ReadByte()
	if err != nil {
		return 0
	}
	return b
}

func (r *Reader) ReadBool() bool { return r.ReadUint8() != 0 }

func (r *Reader) readN(n int) []byte {
	buf := make([]byte, n)
	got, _ := r.cur.Read(buf)
	if got < n {
		// Short read (field absent or truncated): treat unread tail as zero.
		for i := got; i < n; i++ {
			buf[i] = 0
		}
	}
	return buf
}

// ReadRaw reads exactly n bytes with no length prefix, the counterpart of
// WriteRaw. Short reads are zero-padded, consistent with every other Read*
// method's "absent field defaults to zero" behavior.
func (r *Reader) ReadRaw(n int) []byte { return r.readN(n) }

func (r *Reader) ReadUint16() uint16 { return order.Uint16(r.readN(2)) }
func (r *Reader) ReadUint32() uint32 { return order.Uint32(r.readN(4)) }
func (r *Reader) ReadUint64() uint64 { return order.Uint64(r.readN(8)) }

// ReadBytes reads a length-prefixed byte array. If the prefix claims more
// data than remains, it is clamped to what is actually available.
func (r *Reader) ReadBytes() []byte {
	n := int(r.ReadUint32())
	if n <= 0 {
		return nil
	}
	remaining := r.cur.Len()
	if n > remaining {
		n = remaining
	}
	buf := make([]byte, n)
	if _, err := r.cur.Read(buf); err != nil {
		return nil
	}
	return buf
}

func (r *Reader) ReadString() string { return string(r.ReadBytes()) }

func (r *Reader) ReadUint64Slice() []uint64 {
	n := int(r.ReadUint32())
	if n <= 0 {
		return nil
	}
	out := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.ReadUint64())
	}
	return out
}
