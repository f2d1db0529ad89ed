// Package io provides small error-sticky binary reader/writer helpers
// used to build the wire codec: once Err is set on a reader or writer,
// every subsequent call becomes a no-op that preserves it.
package io

import (
	"bytes"
	"encoding/binary"
	"io"
)

// BinReader reads from an underlying io.Reader in little-endian order,
// sticking on the first error encountered.
type BinReader struct {
	r   io.Reader
	Err error
}

// NewBinReaderFromIO creates a BinReader reading from r.
func NewBinReaderFromIO(r io.Reader) *BinReader {
	return &BinReader{r: r}
}

// NewBinReaderFromBuf creates a BinReader reading from an in-memory buffer.
func NewBinReaderFromBuf(b []byte) *BinReader {
	return NewBinReaderFromIO(bytes.NewReader(b))
}

// ReadLE reads a fixed-size little-endian value into v.
func (r *BinReader) ReadLE(v interface{}) {
	if r.Err != nil {
		return
	}
	r.Err = binary.Read(r.r, binary.LittleEndian, v)
}

// ReadBE reads a fixed-size big-endian value into v.
func (r *BinReader) ReadBE(v interface{}) {
	if r.Err != nil {
		return
	}
	r.Err = binary.Read(r.r, binary.BigEndian, v)
}

// ReadBytes reads exactly len(buf) bytes into buf.
func (r *BinReader) ReadBytes(buf []byte) {
	if r.Err != nil {
		return
	}
	if len(buf) == 0 {
		return
	}
	_, r.Err = io.ReadFull(r.r, buf)
}

// ReadI64LE reads a signed 64-bit little-endian integer, the field unit
// used throughout the wire protocol.
func (r *BinReader) ReadI64LE() int64 {
	var v int64
	r.ReadLE(&v)
	return v
}

// ReadU64LE reads an unsigned 64-bit little-endian integer.
func (r *BinReader) ReadU64LE() uint64 {
	var v uint64
	r.ReadLE(&v)
	return v
}

// BinWriter writes to an underlying io.Writer in little-endian order,
// sticking on the first error encountered.
type BinWriter struct {
	w   io.Writer
	Err error
}

// NewBinWriterFromIO creates a BinWriter writing to w.
func NewBinWriterFromIO(w io.Writer) *BinWriter {
	return &BinWriter{w: w}
}

// BufBinWriter is a BinWriter backed by an in-memory buffer.
type BufBinWriter struct {
	*BinWriter
	buf *bytes.Buffer
}

// NewBufBinWriter creates a BufBinWriter with a fresh internal buffer.
func NewBufBinWriter() *BufBinWriter {
	b := new(bytes.Buffer)
	return &BufBinWriter{BinWriter: NewBinWriterFromIO(b), buf: b}
}

// Len returns the number of bytes written so far.
func (w *BufBinWriter) Len() int {
	return w.buf.Len()
}

// Bytes returns the accumulated buffer, or nil if an error occurred.
func (w *BufBinWriter) Bytes() []byte {
	if w.Err != nil {
		return nil
	}
	return append([]byte(nil), w.buf.Bytes()...)
}

// Reset clears the buffer and any sticky error, allowing reuse.
func (w *BufBinWriter) Reset() {
	w.buf.Reset()
	w.Err = nil
}

// WriteLE writes a fixed-size value in little-endian order.
func (w *BinWriter) WriteLE(v interface{}) {
	if w.Err != nil {
		return
	}
	w.Err = binary.Write(w.w, binary.LittleEndian, v)
}

// WriteBE writes a fixed-size value in big-endian order.
func (w *BinWriter) WriteBE(v interface{}) {
	if w.Err != nil {
		return
	}
	w.Err = binary.Write(w.w, binary.BigEndian, v)
}

// WriteBytes writes buf verbatim.
func (w *BinWriter) WriteBytes(buf []byte) {
	if w.Err != nil {
		return
	}
	_, w.Err = w.w.Write(buf)
}

// WriteI64LE writes a signed 64-bit little-endian integer.
func (w *BinWriter) WriteI64LE(v int64) {
	w.WriteLE(v)
}

// WriteU64LE writes an unsigned 64-bit little-endian integer.
func (w *BinWriter) WriteU64LE(v uint64) {
	w.WriteLE(v)
}
