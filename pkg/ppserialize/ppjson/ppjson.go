// Package ppjson implements PProto's JSON envelope as a pair of mirrored
// visitors (core spec §4.2.2): a Writer that builds a JSON value over a
// buffer and a Reader that walks a decoded JSON value, both exposing the
// same Member/StartObject/StartArray vocabulary so message codecs can be
// written once and read back symmetrically.
package ppjson

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// Writer accumulates an in-memory JSON value (object, array or scalar) and
// serializes it on Bytes(). It mirrors Reader's member-oriented API rather
// than encoding/json's struct-tag reflection, because PProto's optional
// fields and null semantics are visitor-driven, not struct-shaped.
//
// Containers are tracked as pointers (*map[string]any / *[]any) so that
// appending to an array or inserting into a map is always visible through
// every earlier reference to that container — encoding/json dereferences
// pointers transparently, so the pointer-typed root serializes identically
// to the plain value.
type Writer struct {
	stack []any    // *map[string]any or *[]any, innermost last
	keys  []string // pending member name for the object on top of stack
	root  any
}

// NewWriter returns an empty Writer with the document root not yet started.
func NewWriter() *Writer { return &Writer{} }

// StartObject opens a new JSON object, either as the document root or as
// the current member's value.
func (w *Writer) StartObject() {
	obj := &map[string]any{}
	w.push(obj)
}

// EndObject closes the object opened by the matching StartObject.
func (w *Writer) EndObject() { w.pop() }

// StartArray opens a new JSON array. size is advisory only on the write
// side (Reader's StartArray is where size matters, on decode).
func (w *Writer) StartArray(size int) {
	arr := &[]any{}
	*arr = make([]any, 0, size)
	w.push(arr)
}

// EndArray closes the array opened by the matching StartArray.
func (w *Writer) EndArray() { w.pop() }

func (w *Writer) push(container any) {
	w.set(container)
	w.stack = append(w.stack, container)
}

func (w *Writer) pop() {
	w.stack = w.stack[:len(w.stack)-1]
}

// set assigns v as the value of the pending member name (object context),
// appends it to the open array (array context), or — if no container is
// open yet — makes v the document root.
func (w *Writer) set(v any) {
	if len(w.stack) == 0 {
		w.root = v
		return
	}
	switch top := w.stack[len(w.stack)-1].(type) {
	case *map[string]any:
		key := w.keys[len(w.keys)-1]
		w.keys = w.keys[:len(w.keys)-1]
		(*top)[key] = v
	case *[]any:
		*top = append(*top, v)
	}
}

// Member announces the next value belongs to the named member of the
// currently open object. Call it immediately before the Write*/Start* call
// that supplies the value.
func (w *Writer) Member(name string) { w.keys = append(w.keys, name) }

func (w *Writer) writeScalar(v any) { w.set(v) }

func (w *Writer) WriteString(s string)  { w.writeScalar(s) }
func (w *Writer) WriteInt(v int64)      { w.writeScalar(v) }
func (w *Writer) WriteUint(v uint64)    { w.writeScalar(v) }
func (w *Writer) WriteFloat(v float64)  { w.writeScalar(v) }
func (w *Writer) WriteBool(v bool)      { w.writeScalar(v) }
func (w *Writer) SetNull()              { w.writeScalar(nil) }

// WriteUUID writes u as its canonical 36-character string, unbraced.
func (w *Writer) WriteUUID(u [16]byte) { w.WriteString(formatUUID(u)) }

// WriteTimestamp writes t as milliseconds since epoch.
func (w *Writer) WriteTimestamp(t time.Time) { w.WriteInt(t.UnixMilli()) }

// WriteDate writes t as yyyy-MM-dd.
func (w *Writer) WriteDate(t time.Time) { w.WriteString(t.Format("2006-01-02")) }

// WriteTime writes t as hh:mm:ss.zzz.
func (w *Writer) WriteTime(t time.Time) { w.WriteString(t.Format("15:04:05.000")) }

// WriteRawBytes embeds b verbatim if it already looks like a JSON
// object/array/bool/number, else writes it as a quoted string — avoiding
// double-encoding of already-serialized content (core spec §4.2.2).
func (w *Writer) WriteRawBytes(b []byte) {
	if looksLikeJSON(b) {
		var v any
		if err := json.Unmarshal(b, &v); err == nil {
			w.writeScalar(v)
			return
		}
	}
	w.WriteString(string(b))
}

// Bytes serializes the accumulated document.
func (w *Writer) Bytes() ([]byte, error) { return json.Marshal(w.root) }

func looksLikeJSON(b []byte) bool {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return false
	}
	switch s[0] {
	case '{', '[':
		return true
	}
	if s == "true" || s == "false" || s == "null" {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}

func formatUUID(u [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}

// ReadState reports the outcome of a Reader.Member lookup.
type ReadState int

const (
	Ok ReadState = iota
	OptionalMissing
	Fatal
)

// Reader walks a decoded JSON value. Missing mandatory members set Failed
// and stop further decoding (the caller is expected to check Failed after
// each top-level Decode call); missing optional members are silently
// tolerated, leaving the target default-initialized.
type Reader struct {
	stack    []any
	indices  []int // current array index, valid when stack top is []any
	Failed   bool
	lastErr  error
}

// NewReader parses data and returns a Reader positioned at the document
// root.
func NewReader(data []byte) (*Reader, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	return &Reader{stack: []any{root}}, nil
}

func (r *Reader) top() any {
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

// StartObject descends into the current value, which must be a JSON
// object.
func (r *Reader) StartObject() {
	obj, _ := r.top().(map[string]any)
	if obj == nil {
		obj = map[string]any{}
	}
	r.stack = append(r.stack, obj)
}

func (r *Reader) EndObject() { r.pop() }

// StartArray descends into the current value, which must be a JSON array,
// and reports its length in size.
func (r *Reader) StartArray(size *int) {
	arr, _ := r.top().([]any)
	r.stack = append(r.stack, arr)
	r.indices = append(r.indices, 0)
	if size != nil {
		*size = len(arr)
	}
}

func (r *Reader) EndArray() {
	r.indices = r.indices[:len(r.indices)-1]
	r.pop()
}

func (r *Reader) pop() { r.stack = r.stack[:len(r.stack)-1] }

// Member positions the reader at member name's value within the current
// object. If absent: optional members leave the reader positioned at a nil
// value (subsequent reads return zero values) and report found=false;
// mandatory members (optional=false) additionally set r.Failed=true and
// log the error, per core spec §4.2.2. Once r.Failed is set, every later
// Member call reports found=false without looking the name up.
func (r *Reader) Member(name string, optional bool) (found bool) {
	if r.Failed {
		r.stack = append(r.stack, nil)
		return false
	}
	obj, _ := r.top().(map[string]any)
	v, ok := obj[name]
	if !ok {
		if !optional {
			r.Failed = true
			r.lastErr = fmt.Errorf("ppjson: missing mandatory member %q", name)
			log.Printf("ppjson: %v", r.lastErr)
		}
		r.stack = append(r.stack, nil)
		return false
	}
	r.stack = append(r.stack, v)
	return true
}

// EndMember closes the value positioned by Member.
func (r *Reader) EndMember() { r.pop() }

// NextElement positions the reader at the array's next element. Call
// within a StartArray/EndArray pair, once per element.
func (r *Reader) NextElement() {
	arr, _ := r.stack[len(r.stack)-2].([]any)
	idx := r.indices[len(r.indices)-1]
	var v any
	if idx < len(arr) {
		v = arr[idx]
	}
	r.indices[len(r.indices)-1] = idx + 1
	r.stack = append(r.stack, v)
}

// EndElement closes the value positioned by NextElement.
func (r *Reader) EndElement() { r.pop() }

// IsNull reports whether the value currently positioned is JSON null or
// simply absent (core spec: "null is accepted for any type and produces
// the type's default").
func (r *Reader) IsNull() bool { return r.top() == nil }

func (r *Reader) ReadString() string {
	s, _ := r.top().(string)
	return s
}

func (r *Reader) ReadInt() int64 {
	switch v := r.top().(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func (r *Reader) ReadUint() uint64 {
	switch v := r.top().(type) {
	case float64:
		return uint64(v)
	}
	return 0
}

func (r *Reader) ReadFloat() float64 {
	f, _ := r.top().(float64)
	return f
}

func (r *Reader) ReadBool() bool {
	b, _ := r.top().(bool)
	return b
}

// ReadUUID parses a canonical unbraced 36-character UUID string.
func (r *Reader) ReadUUID() (out [16]byte) {
	s := r.ReadString()
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 32 {
		return out
	}
	for i := 0; i < 16; i++ {
		var b byte
		fmt.Sscanf(s[i*2:i*2+2], "%02x", &b)
		out[i] = b
	}
	return out
}

// ReadTimestamp parses milliseconds-since-epoch.
func (r *Reader) ReadTimestamp() time.Time {
	return time.UnixMilli(r.ReadInt())
}

// ReadDate parses yyyy-MM-dd.
func (r *Reader) ReadDate() time.Time {
	t, _ := time.Parse("2006-01-02", r.ReadString())
	return t
}

// ReadTime parses hh:mm:ss.zzz.
func (r *Reader) ReadTime() time.Time {
	t, _ := time.Parse("15:04:05.000", r.ReadString())
	return t
}

// ReadRawBytes returns the raw JSON encoding of the currently positioned
// value, for fields that were embedded pre-serialized by WriteRawBytes.
func (r *Reader) ReadRawBytes() []byte {
	if s, ok := r.top().(string); ok {
		return []byte(s)
	}
	b, _ := json.Marshal(r.top())
	return b
}
