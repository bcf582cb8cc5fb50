// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import (
	"fmt"

	"github.com/aclements/leakanalyze/internal/binio"
)

// A FormatError reports malformed trace bytes: an unknown tag or a
// truncated payload. It carries the byte offset of the failure and a
// message; it does not record which testcase the bytes belong to.
type FormatError struct {
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("tracefmt: format error at offset %d: %s", e.Offset, e.Msg)
}

func wrapFormatError(r binio.Reader, err error) error {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*binio.FormatError); ok {
		return &FormatError{fe.Offset, fe.Msg}
	}
	return &FormatError{r.Pos(), err.Error()}
}

// A Decoder reads framed Entry values from a binio.Reader. Each entry is a
// single tag byte followed by a fixed-size payload (see Tag's doc).
//
// A Decoder is single-shot over one Reader; use NewDecoder per trace body.
type Decoder struct {
	r binio.Reader
	// Non-allocating mode reuses these instances across Advance calls.
	nonAlloc bool
	scratch  scratchEntries
}

type scratchEntries struct {
	heapAlloc  HeapAllocation
	heapFree   HeapFree
	stackAlloc StackAllocation
	branch     Branch
	imgAccess  ImageMemoryAccess
	heapAccess HeapMemoryAccess
	stkAccess  StackMemoryAccess
}

// NewDecoder returns an allocating Decoder: every call to Advance returns a
// freshly allocated Entry.
func NewDecoder(r binio.Reader) *Decoder {
	return &Decoder{r: r}
}

// NewNonAllocDecoder returns a Decoder that reuses one preallocated
// instance per entry kind. The Entry returned by Advance is only valid
// until the next call to Advance; callers that must retain it need to copy
// the payload themselves.
func NewNonAllocDecoder(r binio.Reader) *Decoder {
	return &Decoder{r: r, nonAlloc: true}
}

// Done reports whether the decoder has reached the end of its input.
func (d *Decoder) Done() bool {
	return d.r.Pos() >= d.r.Len()
}

// Advance decodes and returns the next entry, or an error. Advance must
// not be called again once Done reports true or a prior call returned a
// non-nil error.
func (d *Decoder) Advance() (Entry, error) {
	tagByte, err := d.r.U8()
	if err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	tag := Tag(tagByte)
	switch tag {
	case TagHeapAllocation:
		return d.decodeHeapAllocation()
	case TagHeapFree:
		return d.decodeHeapFree()
	case TagStackAllocation:
		return d.decodeStackAllocation()
	case TagBranch:
		return d.decodeBranch()
	case TagImageMemoryAccess:
		return d.decodeImageMemoryAccess()
	case TagHeapMemoryAccess:
		return d.decodeHeapMemoryAccess()
	case TagStackMemoryAccess:
		return d.decodeStackMemoryAccess()
	}
	return nil, &FormatError{d.r.Pos() - 1, fmt.Sprintf("unknown tag %d", tagByte)}
}

func (d *Decoder) target(nonAllocNew func() Entry, reuse Entry) Entry {
	if d.nonAlloc {
		return reuse
	}
	return nonAllocNew()
}

func (d *Decoder) decodeHeapAllocation() (Entry, error) {
	o := &d.scratch.heapAlloc
	var err error
	if o.ID, err = d.r.I32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if o.Size, err = d.r.U32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if o.Address, err = d.r.U64(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if d.nonAlloc {
		return o, nil
	}
	cp := *o
	return &cp, nil
}

func (d *Decoder) decodeHeapFree() (Entry, error) {
	o := &d.scratch.heapFree
	var err error
	if o.ID, err = d.r.I32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if d.nonAlloc {
		return o, nil
	}
	cp := *o
	return &cp, nil
}

func (d *Decoder) decodeStackAllocation() (Entry, error) {
	o := &d.scratch.stackAlloc
	var err error
	if o.ID, err = d.r.I32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	var img int32
	if img, err = d.r.I32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	o.InstructionImage = ImageID(img)
	if o.InstructionOffset, err = d.r.U32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if o.Size, err = d.r.U32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if o.Address, err = d.r.U64(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if d.nonAlloc {
		return o, nil
	}
	cp := *o
	return &cp, nil
}

func (d *Decoder) decodeBranch() (Entry, error) {
	o := &d.scratch.branch
	flags, err := d.r.U8()
	if err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	o.Taken = flags&1 != 0
	o.Type = BranchType((flags >> 1) & 0x3)
	var img int32
	if img, err = d.r.I32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	o.SourceImage = ImageID(img)
	if o.SourceOffset, err = d.r.U32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if img, err = d.r.I32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	o.DestImage = ImageID(img)
	if o.DestOffset, err = d.r.U32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if d.nonAlloc {
		return o, nil
	}
	cp := *o
	return &cp, nil
}

func (d *Decoder) decodeImageMemoryAccess() (Entry, error) {
	o := &d.scratch.imgAccess
	if err := decodeAccessHeader(d.r, &o.IsWrite, &o.Size, &o.InstrImage, &o.InstrOffset); err != nil {
		return nil, err
	}
	var err error
	var img int32
	if img, err = d.r.I32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	o.MemImage = ImageID(img)
	if o.MemOffset, err = d.r.U32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if d.nonAlloc {
		return o, nil
	}
	cp := *o
	return &cp, nil
}

func (d *Decoder) decodeHeapMemoryAccess() (Entry, error) {
	o := &d.scratch.heapAccess
	if err := decodeAccessHeader(d.r, &o.IsWrite, &o.Size, &o.InstrImage, &o.InstrOffset); err != nil {
		return nil, err
	}
	var err error
	if o.HeapBlockID, err = d.r.I32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if o.MemOffset, err = d.r.U32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if d.nonAlloc {
		return o, nil
	}
	cp := *o
	return &cp, nil
}

func (d *Decoder) decodeStackMemoryAccess() (Entry, error) {
	o := &d.scratch.stkAccess
	if err := decodeAccessHeader(d.r, &o.IsWrite, &o.Size, &o.InstrImage, &o.InstrOffset); err != nil {
		return nil, err
	}
	var err error
	if o.StackBlockID, err = d.r.I32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if o.MemOffset, err = d.r.U32(); err != nil {
		return nil, wrapFormatError(d.r, err)
	}
	if d.nonAlloc {
		return o, nil
	}
	cp := *o
	return &cp, nil
}

func decodeAccessHeader(r binio.Reader, isWrite *bool, size *int16, instrImage *ImageID, instrOffset *uint32) error {
	var err error
	if *isWrite, err = r.Bool(); err != nil {
		return wrapFormatError(r, err)
	}
	if *size, err = r.I16(); err != nil {
		return wrapFormatError(r, err)
	}
	var img int32
	if img, err = r.I32(); err != nil {
		return wrapFormatError(r, err)
	}
	*instrImage = ImageID(img)
	if *instrOffset, err = r.U32(); err != nil {
		return wrapFormatError(r, err)
	}
	return nil
}

// Encode appends the framed wire representation of e to w: a tag byte
// followed by e's fixed-size payload.
func Encode(w *binio.Writer, e Entry) {
	w.U8(uint8(e.Tag()))
	switch e := e.(type) {
	case *HeapAllocation:
		w.I32(e.ID)
		w.U32(e.Size)
		w.U64(e.Address)
	case *HeapFree:
		w.I32(e.ID)
	case *StackAllocation:
		w.I32(e.ID)
		w.I32(int32(e.InstructionImage))
		w.U32(e.InstructionOffset)
		w.U32(e.Size)
		w.U64(e.Address)
	case *Branch:
		flags := uint8(0)
		if e.Taken {
			flags |= 1
		}
		flags |= uint8(e.Type&0x3) << 1
		w.U8(flags)
		w.I32(int32(e.SourceImage))
		w.U32(e.SourceOffset)
		w.I32(int32(e.DestImage))
		w.U32(e.DestOffset)
	case *ImageMemoryAccess:
		encodeAccessHeader(w, e.IsWrite, e.Size, e.InstrImage, e.InstrOffset)
		w.I32(int32(e.MemImage))
		w.U32(e.MemOffset)
	case *HeapMemoryAccess:
		encodeAccessHeader(w, e.IsWrite, e.Size, e.InstrImage, e.InstrOffset)
		w.I32(e.HeapBlockID)
		w.U32(e.MemOffset)
	case *StackMemoryAccess:
		encodeAccessHeader(w, e.IsWrite, e.Size, e.InstrImage, e.InstrOffset)
		w.I32(e.StackBlockID)
		w.U32(e.MemOffset)
	default:
		panic(fmt.Sprintf("tracefmt: unknown entry type %T", e))
	}
}

func encodeAccessHeader(w *binio.Writer, isWrite bool, size int16, instrImage ImageID, instrOffset uint32) {
	w.Bool(isWrite)
	w.I16(size)
	w.I32(int32(instrImage))
	w.U32(instrOffset)
}
