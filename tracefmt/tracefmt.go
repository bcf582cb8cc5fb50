// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracefmt defines the binary trace entry model: a discriminated
// set of event variants with fixed binary layouts, framed by a single
// leading tag byte, and a streaming decoder capable of operating without
// allocating a fresh entry per step.
package tracefmt

import "fmt"

// Tag identifies the kind of a framed trace entry. Values are fixed by the
// wire format and must never be renumbered.
type Tag uint8

const (
	TagImageMemoryAccess Tag = 1
	TagHeapMemoryAccess  Tag = 2
	TagStackMemoryAccess Tag = 3
	TagHeapAllocation    Tag = 4
	TagHeapFree          Tag = 5
	TagBranch            Tag = 6
	TagStackAllocation   Tag = 7
)

func (t Tag) String() string {
	switch t {
	case TagImageMemoryAccess:
		return "ImageMemoryAccess"
	case TagHeapMemoryAccess:
		return "HeapMemoryAccess"
	case TagStackMemoryAccess:
		return "StackMemoryAccess"
	case TagHeapAllocation:
		return "HeapAllocation"
	case TagHeapFree:
		return "HeapFree"
	case TagBranch:
		return "Branch"
	case TagStackAllocation:
		return "StackAllocation"
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// BranchType is the 2-bit branch-kind field of a Branch entry.
type BranchType uint8

const (
	BranchCall BranchType = iota
	BranchReturn
	BranchJump
)

func (t BranchType) String() string {
	switch t {
	case BranchCall:
		return "call"
	case BranchReturn:
		return "return"
	case BranchJump:
		return "jump"
	}
	return fmt.Sprintf("BranchType(%d)", uint8(t))
}

// ImageID identifies a registered image (the program image or a shared
// library) that instructions and image-relative addresses live in.
type ImageID int32

// InstructionID names a code location as (image id, byte offset) packed
// into a single 64-bit value: (image_id << 32) | offset.
type InstructionID uint64

// NewInstructionID packs an image id and offset into an InstructionID.
func NewInstructionID(image ImageID, offset uint32) InstructionID {
	return InstructionID(uint64(uint32(image))<<32 | uint64(offset))
}

func (id InstructionID) Image() ImageID { return ImageID(int32(uint32(id >> 32))) }
func (id InstructionID) Offset() uint32 { return uint32(id) }
func (id InstructionID) String() string { return fmt.Sprintf("I-%d:%#x", id.Image(), id.Offset()) }

// AddressID packs either an image-relative instruction address or a
// memory-block-relative offset, with the top bit distinguishing the two:
// 0 means "image address", 1 means "allocation-block address". The lower
// 63 bits hold (container_id<<32)|offset, with offset restricted to 32
// bits.
type AddressID uint64

const addressIDTagBit = uint64(1) << 63

// NewImageAddressID builds an AddressID referring to an image-relative
// location.
func NewImageAddressID(image ImageID, offset uint32) AddressID {
	return AddressID(uint64(uint32(image))<<32 | uint64(offset))
}

// NewBlockAddressID builds an AddressID referring to a heap or stack
// allocation block. blockID may be -1 (per spec.md's "unresolved" stack
// block convention); it is stored verbatim, not remapped to a sentinel.
func NewBlockAddressID(blockID int32, offset uint32) AddressID {
	return AddressID(addressIDTagBit | uint64(uint32(blockID))<<32 | uint64(offset))
}

// IsBlock reports whether id refers to an allocation block rather than an
// image address.
func (id AddressID) IsBlock() bool { return uint64(id)&addressIDTagBit != 0 }

// Container returns the image id or block id this address is relative to.
func (id AddressID) Container() int32 { return int32(uint32(uint64(id) >> 32)) }

// Offset returns the offset within the address's container.
func (id AddressID) Offset() uint32 { return uint32(id) }

func (id AddressID) String() string {
	if id.IsBlock() {
		return fmt.Sprintf("B-%d:%#x", id.Container(), id.Offset())
	}
	return fmt.Sprintf("A-%d:%#x", id.Container(), id.Offset())
}

// Image describes one registered image: its display name and byte length.
// Images are referenced by id from every instruction or data address and
// must be registered before any entry refers to them.
type Image struct {
	ID     ImageID
	Name   string
	Length uint64
}

// An Entry is one decoded trace record. Concrete types are HeapAllocation,
// HeapFree, StackAllocation, Branch, ImageMemoryAccess, HeapMemoryAccess,
// and StackMemoryAccess.
//
// Entries produced by a non-allocating Decoder are owned by the decoder
// and are only valid until the next call to Advance; a consumer that needs
// to retain one must copy it explicitly.
type Entry interface {
	Tag() Tag
}

type HeapAllocation struct {
	ID      int32
	Size    uint32
	Address uint64
}

func (*HeapAllocation) Tag() Tag { return TagHeapAllocation }

type HeapFree struct {
	ID int32
}

func (*HeapFree) Tag() Tag { return TagHeapFree }

type StackAllocation struct {
	ID                int32
	InstructionImage  ImageID
	InstructionOffset uint32
	Size              uint32
	Address           uint64
}

func (*StackAllocation) Tag() Tag { return TagStackAllocation }

// InstrID returns the instruction id of the allocation site.
func (e *StackAllocation) InstrID() InstructionID {
	return NewInstructionID(e.InstructionImage, e.InstructionOffset)
}

type Branch struct {
	Taken        bool
	Type         BranchType
	SourceImage  ImageID
	SourceOffset uint32
	DestImage    ImageID
	DestOffset   uint32
}

func (*Branch) Tag() Tag { return TagBranch }

func (e *Branch) SourceInstr() InstructionID {
	return NewInstructionID(e.SourceImage, e.SourceOffset)
}

func (e *Branch) DestInstr() InstructionID {
	return NewInstructionID(e.DestImage, e.DestOffset)
}

type ImageMemoryAccess struct {
	IsWrite     bool
	Size        int16
	InstrImage  ImageID
	InstrOffset uint32
	MemImage    ImageID
	MemOffset   uint32
}

func (*ImageMemoryAccess) Tag() Tag { return TagImageMemoryAccess }

func (e *ImageMemoryAccess) InstrID() InstructionID {
	return NewInstructionID(e.InstrImage, e.InstrOffset)
}

func (e *ImageMemoryAccess) AddressID() AddressID {
	return NewImageAddressID(e.MemImage, e.MemOffset)
}

type HeapMemoryAccess struct {
	IsWrite     bool
	Size        int16
	InstrImage  ImageID
	InstrOffset uint32
	HeapBlockID int32
	MemOffset   uint32
}

func (*HeapMemoryAccess) Tag() Tag { return TagHeapMemoryAccess }

func (e *HeapMemoryAccess) InstrID() InstructionID {
	return NewInstructionID(e.InstrImage, e.InstrOffset)
}

func (e *HeapMemoryAccess) AddressID() AddressID {
	return NewBlockAddressID(e.HeapBlockID, e.MemOffset)
}

type StackMemoryAccess struct {
	IsWrite      bool
	Size         int16
	InstrImage   ImageID
	InstrOffset  uint32
	StackBlockID int32 // may be -1: unresolved
	MemOffset    uint32
}

func (*StackMemoryAccess) Tag() Tag { return TagStackMemoryAccess }

func (e *StackMemoryAccess) InstrID() InstructionID {
	return NewInstructionID(e.InstrImage, e.InstrOffset)
}

func (e *StackMemoryAccess) AddressID() AddressID {
	return NewBlockAddressID(e.StackBlockID, e.MemOffset)
}

// IsMemoryAccess reports whether e is one of the three memory-access entry
// kinds, and if so returns its instruction id, address id, and whether the
// access is a write.
func IsMemoryAccess(e Entry) (instr InstructionID, addr AddressID, isWrite bool, ok bool) {
	switch e := e.(type) {
	case *ImageMemoryAccess:
		return e.InstrID(), e.AddressID(), e.IsWrite, true
	case *HeapMemoryAccess:
		return e.InstrID(), e.AddressID(), e.IsWrite, true
	case *StackMemoryAccess:
		return e.InstrID(), e.AddressID(), e.IsWrite, true
	}
	return 0, 0, false, false
}

// DigestAddressID reports whether e is one of the three memory-access entry
// kinds, and if so returns its instruction id, its digest address, and
// whether the access is a write. The digest address differs from AddressID:
// heap and image accesses compose (block_or_image_id<<32)|offset with no tag
// bit, and stack accesses use offset alone, since a stack access's block id
// is frequently unresolved (-1) and must not distinguish otherwise-identical
// accesses from one another.
func DigestAddressID(e Entry) (instr InstructionID, addr uint64, isWrite bool, ok bool) {
	switch e := e.(type) {
	case *ImageMemoryAccess:
		return e.InstrID(), uint64(uint32(e.MemImage))<<32 | uint64(e.MemOffset), e.IsWrite, true
	case *HeapMemoryAccess:
		return e.InstrID(), uint64(uint32(e.HeapBlockID))<<32 | uint64(e.MemOffset), e.IsWrite, true
	case *StackMemoryAccess:
		return e.InstrID(), uint64(e.MemOffset), e.IsWrite, true
	}
	return 0, 0, false, false
}
