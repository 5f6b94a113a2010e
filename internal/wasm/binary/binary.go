// Package binary implements the WebAssembly binary format: decoding bytes
// into a *wasm.Module and encoding a *wasm.Module back into bytes. Nothing
// here is aware of reachability or renumbering; higher layers (internal/usegraph,
// internal/reachability, internal/relocation, internal/isolate) treat this
// package as the external decoder/encoder collaborator the design assumes.
package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bvisness/wasm-isolate/internal/leb128"
	"github.com/bvisness/wasm-isolate/internal/wasm"
)

// Magic is the 4-byte WebAssembly preamble, "\0asm".
var Magic = []byte{0x00, 0x61, 0x73, 0x6d}

// version is the only binary format version this tool understands.
var version = []byte{0x01, 0x00, 0x00, 0x00}

// ParseError is returned for any malformed input, carrying the approximate
// byte offset at which decoding failed.
type ParseError struct {
	Offset uint64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %#x: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EncodeError is returned when the module cannot be faithfully re-encoded,
// e.g. a concrete heap type that is not module-level.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode error: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// UnsupportedConstructError is returned for a recognized-but-out-of-scope
// construct, such as a continuation-type instruction.
type UnsupportedConstructError struct {
	Construct string
}

func (e *UnsupportedConstructError) Error() string {
	return fmt.Sprintf("unsupported construct: %s", e.Construct)
}

// reader is a counting cursor over a module or section's bytes. It
// implements io.ByteReader so the leb128 package can read directly from it.
type reader struct {
	buf []byte
	pos int
	// base is the offset of buf[0] within the original input, used only to
	// annotate ParseErrors with a useful byte offset.
	base uint64
}

func newReader(buf []byte, base uint64) *reader {
	return &reader{buf: buf, base: base}
}

func (r *reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) offset() uint64 { return r.base + uint64(r.pos) }

func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) parseErr(err error) *ParseError {
	return &ParseError{Offset: r.offset(), Err: err}
}

func (r *reader) readUint32() (uint32, error) {
	v, n, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, err
	}
	_ = n
	return v, nil
}

func (r *reader) readUint64() (uint64, error) {
	v, _, err := leb128.DecodeUint64(r)
	return v, err
}

func (r *reader) readInt32() (int32, error) {
	v, _, err := leb128.DecodeInt32(r)
	return v, err
}

func (r *reader) readInt64() (int64, error) {
	v, _, err := leb128.DecodeInt64(r)
	return v, err
}

func (r *reader) readInt33() (int64, error) {
	v, _, err := leb128.DecodeInt33AsInt64(r)
	return v, err
}

func (r *reader) readByte() (byte, error) { return r.ReadByte() }

func (r *reader) readName() (string, error) {
	n, err := r.readUint32()
	if err != nil {
		return "", err
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writer accumulates encoded bytes. It is a thin wrapper over bytes.Buffer
// with LEB128 helpers so section encoders read like their decoder
// counterparts.
type writer struct {
	bytes.Buffer
}

func newWriter() *writer { return &writer{} }

func (w *writer) writeByte(b byte) { w.WriteByte(b) }

func (w *writer) writeBytes(b []byte) { w.Write(b) }

func (w *writer) writeUint32(v uint32) { w.Write(leb128.EncodeUint32(v)) }

func (w *writer) writeUint64(v uint64) { w.Write(leb128.EncodeUint64(v)) }

func (w *writer) writeInt32(v int32) { w.Write(leb128.EncodeInt32(v)) }

func (w *writer) writeInt64(v int64) { w.Write(leb128.EncodeInt64(v)) }

func (w *writer) writeName(s string) {
	w.writeUint32(uint32(len(s)))
	w.WriteString(s)
}

// writeVecHeader writes a LEB128 element count as a vector header; callers
// write the n elements themselves.
func (w *writer) writeVecHeader(n int) { w.writeUint32(uint32(n)) }

// leWriteUint32 writes v little-endian, used only for raw fixed-width fields
// (the module header).
func leWriteUint32(w io.Writer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, _ = w.Write(b[:])
}
