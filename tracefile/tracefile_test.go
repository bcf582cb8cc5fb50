// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefile

import (
	"testing"

	"github.com/aclements/leakanalyze/internal/binio"
	"github.com/aclements/leakanalyze/tracefmt"
)

func encodeAll(entries []tracefmt.Entry) []byte {
	w := binio.NewWriter(0)
	for _, e := range entries {
		tracefmt.Encode(w, e)
	}
	return w.Bytes()
}

// TestPrefixTransparency checks: iterating P∥B yields exactly the
// entries of P followed by those of B.
func TestPrefixTransparency(t *testing.T) {
	prefixEntries := []tracefmt.Entry{
		&tracefmt.HeapAllocation{ID: 1, Size: 16, Address: 0xA000},
	}
	bodyEntries := []tracefmt.Entry{
		&tracefmt.HeapMemoryAccess{IsWrite: false, Size: 8, InstrImage: 0, InstrOffset: 0x10, HeapBlockID: 1, MemOffset: 0},
	}

	prefix, err := DecodePrefix(binio.NewBufReader(encodeAll(prefixEntries)))
	if err != nil {
		t.Fatal(err)
	}

	f := New(prefix, NewBufferBody(encodeAll(bodyEntries)))
	it, err := f.IterWithPrefix()
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var got []tracefmt.Entry
	for it.Next() {
		e := it.Entry()
		if ha, ok := e.(*tracefmt.HeapAllocation); ok {
			cp := *ha
			got = append(got, &cp)
			continue
		}
		hma := *(e.(*tracefmt.HeapMemoryAccess))
		got = append(got, &hma)
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if _, ok := got[0].(*tracefmt.HeapAllocation); !ok {
		t.Fatalf("entry 0 = %T, want HeapAllocation", got[0])
	}
	if _, ok := got[1].(*tracefmt.HeapMemoryAccess); !ok {
		t.Fatalf("entry 1 = %T, want HeapMemoryAccess", got[1])
	}
}

func TestBodyOnlyIterSkipsPrefix(t *testing.T) {
	prefixEntries := []tracefmt.Entry{&tracefmt.HeapFree{ID: 9}}
	prefix, err := DecodePrefix(binio.NewBufReader(encodeAll(prefixEntries)))
	if err != nil {
		t.Fatal(err)
	}
	bodyEntries := []tracefmt.Entry{&tracefmt.HeapFree{ID: 1}}
	f := New(prefix, NewBufferBody(encodeAll(bodyEntries)))

	it, err := f.Iter()
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	count := 0
	var last *tracefmt.HeapFree
	for it.Next() {
		count++
		last = it.Entry().(*tracefmt.HeapFree)
	}
	if count != 1 {
		t.Fatalf("got %d entries, want 1 (prefix should be excluded)", count)
	}
	if last.ID != 1 {
		t.Fatalf("ID = %d, want 1", last.ID)
	}
}
