// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracefile pairs a shared prefix (the program's setup phase,
// decoded once) with a per-testcase body, and exposes iteration that
// concatenates prefix then body, as well as a body-only iteration.
package tracefile

import (
	"io"

	"github.com/aclements/leakanalyze/internal/binio"
	"github.com/aclements/leakanalyze/tracefmt"
)

// A Prefix is the shared leading portion of every testcase trace: the
// program's setup phase, decoded once and held immutable for the lifetime
// of the run. Multiple concurrent Files may share one Prefix by reference;
// the caller must keep it alive at least as long as any File refers to it.
type Prefix struct {
	entries []tracefmt.Entry
}

// DecodePrefix reads and fully materializes every entry in r as the shared
// prefix. The returned Prefix is immutable.
func DecodePrefix(r binio.Reader) (*Prefix, error) {
	dec := tracefmt.NewDecoder(r)
	var entries []tracefmt.Entry
	for !dec.Done() {
		e, err := dec.Advance()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return &Prefix{entries: entries}, nil
}

// EmptyPrefix returns a Prefix with no entries, for bodies that stand
// alone.
func EmptyPrefix() *Prefix {
	return &Prefix{}
}

// Len returns the number of entries in the prefix.
func (p *Prefix) Len() int { return len(p.entries) }

// A Body is the per-testcase portion of a trace file: either an
// in-memory buffer or a path to a file on disk, read lazily when iterated.
type Body struct {
	buf  []byte
	path string
}

// NewBufferBody returns a Body backed by an in-memory buffer.
func NewBufferBody(buf []byte) *Body {
	return &Body{buf: buf}
}

// NewFileBody returns a Body backed by the named file, opened lazily by
// each iteration.
func NewFileBody(path string) *Body {
	return &Body{path: path}
}

func (b *Body) open() (binio.Reader, io.Closer, error) {
	if b.buf != nil || b.path == "" {
		return binio.NewBufReader(b.buf), nil, nil
	}
	r, closer, err := binio.OpenFileReader(b.path)
	if err != nil {
		return nil, nil, err
	}
	return r, closer, nil
}

// A File is a prefix-shared trace file: a reference to a (possibly
// shared) decoded Prefix, plus this testcase's own Body.
type File struct {
	Prefix *Prefix
	Body   *Body
}

// New returns a File pairing prefix (which may be shared with other
// Files) with body.
func New(prefix *Prefix, body *Body) *File {
	return &File{Prefix: prefix, Body: body}
}

// Iter returns a non-allocating iterator over the body only.
func (f *File) Iter() (*Iterator, error) {
	r, closer, err := f.Body.open()
	if err != nil {
		return nil, err
	}
	return &Iterator{dec: tracefmt.NewNonAllocDecoder(r), closer: closer}, nil
}

// IterWithPrefix returns a non-allocating iterator that yields every entry
// of the prefix, then every entry of the body, preserving order: a body
// iterated with its prefix is indistinguishable from a body that never
// used prefix-sharing at all.
func (f *File) IterWithPrefix() (*Iterator, error) {
	r, closer, err := f.Body.open()
	if err != nil {
		return nil, err
	}
	return &Iterator{
		prefix: f.Prefix.entries,
		dec:    tracefmt.NewNonAllocDecoder(r),
		closer: closer,
	}, nil
}

// An Iterator yields tracefmt.Entry values one at a time. Entries are only
// valid until the next call to Next, matching tracefmt's
// non-allocating decoder contract.
type Iterator struct {
	prefix   []tracefmt.Entry
	prefixAt int
	dec      *tracefmt.Decoder
	cur      tracefmt.Entry
	err      error
	closer   io.Closer
}

// Next advances the iterator and reports whether a new entry is
// available. On false, call Err to distinguish end-of-stream from error.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.prefixAt < len(it.prefix) {
		it.cur = it.prefix[it.prefixAt]
		it.prefixAt++
		return true
	}
	if it.dec.Done() {
		return false
	}
	e, err := it.dec.Advance()
	if err != nil {
		it.err = err
		return false
	}
	it.cur = e
	return true
}

// Entry returns the entry produced by the most recent call to Next.
func (it *Iterator) Entry() tracefmt.Entry { return it.cur }

// Err returns the first error encountered, if any.
func (it *Iterator) Err() error { return it.err }

// Close releases any underlying file handle.
func (it *Iterator) Close() error {
	if it.closer != nil {
		return it.closer.Close()
	}
	return nil
}
