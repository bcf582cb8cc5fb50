// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package binio provides little-endian, position-addressable byte access
// over either an in-memory buffer or a file, tuned for decoding a stream of
// small fixed-layout records without allocating per record.
package binio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// A FormatError reports a read that ran past the end of the available
// bytes, or any other violation of the expected framing.
type FormatError struct {
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("binio: format error at offset %d: %s", e.Offset, e.Msg)
}

// A Reader decodes little-endian scalars and byte strings from a cursor
// over a byte source. Reads advance the cursor; Seek repositions it.
type Reader interface {
	// Pos returns the current read position.
	Pos() int64
	// Len returns the total number of bytes available.
	Len() int64
	// Seek repositions the cursor to an absolute offset.
	Seek(off int64) error

	U8() (uint8, error)
	Bool() (bool, error)
	I16() (int16, error)
	I32() (int32, error)
	U32() (uint32, error)
	I64() (int64, error)
	U64() (uint64, error)
	// Bytes reads exactly len(p) bytes into p.
	Bytes(p []byte) error
}

// BufReader is a Reader backed by an in-memory byte slice. Seeks are O(1).
type BufReader struct {
	buf []byte
	pos int64
}

// NewBufReader returns a Reader over buf. buf is not copied; the caller
// must not mutate it while the Reader is in use.
func NewBufReader(buf []byte) *BufReader {
	return &BufReader{buf: buf}
}

func (r *BufReader) Pos() int64 { return r.pos }
func (r *BufReader) Len() int64 { return int64(len(r.buf)) }

func (r *BufReader) Seek(off int64) error {
	if off < 0 || off > int64(len(r.buf)) {
		return &FormatError{off, "seek out of range"}
	}
	r.pos = off
	return nil
}

func (r *BufReader) need(n int) ([]byte, error) {
	if r.pos < 0 || r.pos+int64(n) > int64(len(r.buf)) {
		return nil, &FormatError{r.pos, fmt.Sprintf("need %d bytes, have %d", n, int64(len(r.buf))-r.pos)}
	}
	b := r.buf[r.pos : r.pos+int64(n)]
	r.pos += int64(n)
	return b, nil
}

func (r *BufReader) U8() (uint8, error) {
	b, err := r.need(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *BufReader) Bool() (bool, error) {
	b, err := r.U8()
	return b != 0, err
}

func (r *BufReader) I16() (int16, error) {
	b, err := r.need(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

func (r *BufReader) I32() (int32, error) {
	b, err := r.need(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (r *BufReader) U32() (uint32, error) {
	b, err := r.need(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *BufReader) I64() (int64, error) {
	b, err := r.need(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (r *BufReader) U64() (uint64, error) {
	b, err := r.need(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *BufReader) Bytes(p []byte) error {
	b, err := r.need(len(p))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}

// FileReader is a Reader backed by an *os.File (or any ReaderAt), buffered
// for sequential access the way bufferedSectionReader buffers perf.data
// record reads. Random seeks are supported but discard the buffer.
type FileReader struct {
	ra      io.ReaderAt
	size    int64
	buf     []byte
	r, w    int   // valid region of buf is [r,w)
	base    int64 // file offset corresponding to buf[0]
	pos     int64
	scratch [8]byte
}

// NewFileReader returns a Reader over the first size bytes of ra.
func NewFileReader(ra io.ReaderAt, size int64) *FileReader {
	return &FileReader{ra: ra, size: size, buf: make([]byte, 16<<10)}
}

// OpenFileReader opens name and returns a Reader over its full contents.
// The caller is responsible for closing the returned file via Close.
func OpenFileReader(name string) (*FileReader, io.Closer, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return NewFileReader(f, fi.Size()), f, nil
}

func (r *FileReader) Pos() int64 { return r.pos }
func (r *FileReader) Len() int64 { return r.size }

func (r *FileReader) Seek(off int64) error {
	if off < 0 || off > r.size {
		return &FormatError{off, "seek out of range"}
	}
	r.pos = off
	return nil
}

// fill ensures at least n bytes are available starting at r.pos in the
// buffer, refilling from the underlying ReaderAt if necessary.
func (r *FileReader) fill(n int) error {
	bufOff := r.pos - r.base
	if bufOff >= 0 && bufOff+int64(n) <= int64(r.w) {
		return nil
	}
	if r.pos+int64(n) > r.size {
		return &FormatError{r.pos, fmt.Sprintf("need %d bytes, have %d", n, r.size-r.pos)}
	}
	if n > len(r.buf) {
		r.buf = make([]byte, n)
	}
	r.base = r.pos
	toRead := len(r.buf)
	if r.base+int64(toRead) > r.size {
		toRead = int(r.size - r.base)
	}
	read, err := r.ra.ReadAt(r.buf[:toRead], r.base)
	if read < n && err != nil {
		return &FormatError{r.pos, err.Error()}
	}
	r.w = read
	return nil
}

func (r *FileReader) need(n int) ([]byte, error) {
	if err := r.fill(n); err != nil {
		return nil, err
	}
	off := int(r.pos - r.base)
	r.pos += int64(n)
	return r.buf[off : off+n], nil
}

func (r *FileReader) U8() (uint8, error) {
	b, err := r.need(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *FileReader) Bool() (bool, error) {
	b, err := r.U8()
	return b != 0, err
}

func (r *FileReader) I16() (int16, error) {
	b, err := r.need(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

func (r *FileReader) I32() (int32, error) {
	b, err := r.need(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (r *FileReader) U32() (uint32, error) {
	b, err := r.need(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *FileReader) I64() (int64, error) {
	b, err := r.need(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (r *FileReader) U64() (uint64, error) {
	b, err := r.need(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *FileReader) Bytes(p []byte) error {
	// Large reads bypass the buffer to avoid a double copy.
	if len(p) > len(r.buf) {
		if r.pos+int64(len(p)) > r.size {
			return &FormatError{r.pos, fmt.Sprintf("need %d bytes, have %d", len(p), r.size-r.pos)}
		}
		n, err := r.ra.ReadAt(p, r.pos)
		r.pos += int64(n)
		if n < len(p) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return &FormatError{r.pos, err.Error()}
		}
		r.base, r.w = r.pos, 0 // invalidate buffer
		return nil
	}
	b, err := r.need(len(p))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}
