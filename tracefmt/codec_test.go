// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/aclements/leakanalyze/internal/binio"
)

func allEntries() []Entry {
	return []Entry{
		&HeapAllocation{ID: 1, Size: 16, Address: 0xA000},
		&HeapFree{ID: 1},
		&StackAllocation{ID: 2, InstructionImage: 0, InstructionOffset: 0x10, Size: 8, Address: 0xB000},
		&Branch{Taken: true, Type: BranchCall, SourceImage: 0, SourceOffset: 0x20, DestImage: 0, DestOffset: 0x30},
		&Branch{Taken: false, Type: BranchJump, SourceImage: 0, SourceOffset: 0x40, DestImage: 0, DestOffset: 0},
		&ImageMemoryAccess{IsWrite: true, Size: 4, InstrImage: 0, InstrOffset: 0x50, MemImage: 0, MemOffset: 0x100},
		&HeapMemoryAccess{IsWrite: false, Size: 8, InstrImage: 0, InstrOffset: 0x60, HeapBlockID: 1, MemOffset: 0},
		&StackMemoryAccess{IsWrite: false, Size: 8, InstrImage: 0, InstrOffset: 0x70, StackBlockID: -1, MemOffset: 4},
	}
}

// TestRoundTrip checks round-trip invariant:
// serialize(deserialize(T)) == T byte-for-byte.
func TestRoundTrip(t *testing.T) {
	w := binio.NewWriter(0)
	for _, e := range allEntries() {
		Encode(w, e)
	}
	wire := append([]byte(nil), w.Bytes()...)

	dec := NewDecoder(binio.NewBufReader(wire))
	var got []Entry
	for !dec.Done() {
		e, err := dec.Advance()
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		got = append(got, e)
	}
	want := allEntries()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decoded entries differ:\ngot: %+v\nwant: %+v", got, want)
	}

	w2 := binio.NewWriter(0)
	for _, e := range got {
		Encode(w2, e)
	}
	if !bytes.Equal(w2.Bytes(), wire) {
		t.Fatalf("re-encoded bytes differ from original wire bytes")
	}
}

func TestNonAllocDecoderReusesInstances(t *testing.T) {
	w := binio.NewWriter(0)
	Encode(w, &HeapAllocation{ID: 1, Size: 1, Address: 1})
	Encode(w, &HeapAllocation{ID: 2, Size: 2, Address: 2})

	dec := NewNonAllocDecoder(binio.NewBufReader(w.Bytes()))
	e1, err := dec.Advance()
	if err != nil {
		t.Fatal(err)
	}
	e2, err := dec.Advance()
	if err != nil {
		t.Fatal(err)
	}
	if e1 != e2 {
		t.Fatalf("non-allocating decoder should reuse the same instance: %p != %p", e1, e2)
	}
	ha := e2.(*HeapAllocation)
	if ha.ID != 2 || ha.Size != 2 {
		t.Fatalf("reused instance wasn't overwritten: %+v", ha)
	}
}

func TestUnknownTag(t *testing.T) {
	dec := NewDecoder(binio.NewBufReader([]byte{99}))
	_, err := dec.Advance()
	if err == nil {
		t.Fatal("expected format error for unknown tag")
	}
	if _, ok := err.(*FormatError); !ok {
		t.Fatalf("expected *FormatError, got %T", err)
	}
}

func TestTruncatedPayload(t *testing.T) {
	dec := NewDecoder(binio.NewBufReader([]byte{byte(TagHeapAllocation), 1, 2}))
	_, err := dec.Advance()
	if err == nil {
		t.Fatal("expected format error for truncated payload")
	}
}

func TestAddressIDBlockSentinel(t *testing.T) {
	id := NewBlockAddressID(-1, 4)
	if !id.IsBlock() {
		t.Fatal("expected block address")
	}
	if id.Container() != -1 {
		t.Fatalf("Container() = %d, want -1", id.Container())
	}
}
