// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package binio

import "encoding/binary"

// A Writer appends little-endian scalars and byte strings to a growable
// buffer. It mirrors Reader for the exact byte layout of tracefmt entries.
type Writer struct {
	buf     []byte
	scratch [8]byte
}

// NewWriter returns a Writer with an initial capacity hint.
func NewWriter(capHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capHint)}
}

// Bytes returns the accumulated buffer. The slice is owned by the Writer;
// copy it before calling Reset or further writes if it must outlive them.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Reset empties the buffer for reuse.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

func (w *Writer) I16(v int16) {
	binary.LittleEndian.PutUint16(w.scratch[:2], uint16(v))
	w.buf = append(w.buf, w.scratch[:2]...)
}

func (w *Writer) I32(v int32) {
	binary.LittleEndian.PutUint32(w.scratch[:4], uint32(v))
	w.buf = append(w.buf, w.scratch[:4]...)
}

func (w *Writer) U32(v uint32) {
	binary.LittleEndian.PutUint32(w.scratch[:4], v)
	w.buf = append(w.buf, w.scratch[:4]...)
}

func (w *Writer) I64(v int64) {
	binary.LittleEndian.PutUint64(w.scratch[:8], uint64(v))
	w.buf = append(w.buf, w.scratch[:8]...)
}

func (w *Writer) U64(v uint64) {
	binary.LittleEndian.PutUint64(w.scratch[:8], v)
	w.buf = append(w.buf, w.scratch[:8]...)
}

// WriteBytes appends p verbatim.
func (w *Writer) WriteBytes(p []byte) {
	w.buf = append(w.buf, p...)
}
