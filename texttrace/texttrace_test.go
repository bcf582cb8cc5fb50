// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package texttrace

import (
	"strings"
	"testing"
)

func decodeAll(t *testing.T, text string) []Record {
	t.Helper()
	d := NewDecoder(strings.NewReader(text))
	var recs []Record
	for d.Next() {
		recs = append(recs, d.Record())
	}
	if err := d.Err(); err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestDecodeBasicRecords(t *testing.T) {
	text := strings.Join([]string{
		"c;1;10;2;20;foo",
		"R;2;21",
		"r;1;11",
		"Y;1;12",
		"j;1;13;14",
		"m;r;1;15;9;0x10",
		"m;w;1;16;9;24",
	}, "\n")
	recs := decodeAll(t, text)
	if len(recs) != 7 {
		t.Fatalf("got %d records, want 7", len(recs))
	}
	call, ok := recs[0].(Call)
	if !ok || call.SrcFile != 1 || call.SrcLoc != 10 || call.DstFile != 2 || call.DstLoc != 20 || call.Name != "foo" {
		t.Fatalf("call = %+v", recs[0])
	}
	mem, ok := recs[5].(MemoryAccess)
	if !ok || mem.Write || mem.ObjID != 9 || mem.Offset != 0x10 {
		t.Fatalf("memory access = %+v", recs[5])
	}
}

func TestDecodeExternalCall(t *testing.T) {
	recs := decodeAll(t, "c;1;10;E;0;memcpy")
	call := recs[0].(Call)
	if !call.DstExternal || call.Name != "memcpy" {
		t.Fatalf("call = %+v", call)
	}
}

func TestDecodeDictionaryIntegerReference(t *testing.T) {
	text := strings.Join([]string{
		"L|5|c;1;10;2;20;foo",
		"5",
	}, "\n")
	recs := decodeAll(t, text)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2 (definition + reference)", len(recs))
	}
	for _, r := range recs {
		if _, ok := r.(Call); !ok {
			t.Fatalf("record = %+v, want Call", r)
		}
	}
}

func TestDecodeDictionaryRelativeReference(t *testing.T) {
	text := strings.Join([]string{
		"L|10|c;1;10;2;20;foo",
		"L|11|R;2;21",
		"i", // 'i' = 'j'-1, delta -1 from lastRef (11) -> id 10, the Call definition.
	}, "\n")
	recs := decodeAll(t, text)
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3 (two definitions + one relative reference)", len(recs))
	}
	if _, ok := recs[2].(Call); !ok {
		t.Fatalf("relative reference decoded as %+v, want Call (id 10)", recs[2])
	}
}

func TestDecodeVariablePartOverridesCallName(t *testing.T) {
	text := strings.Join([]string{
		"L|1|c;1;10;2;20;base|override",
	}, "\n")
	recs := decodeAll(t, text)
	call := recs[0].(Call)
	if call.Name != "override" {
		t.Fatalf("Name = %q, want %q", call.Name, "override")
	}
}

func TestDecodeUndefinedReferenceIsFormatError(t *testing.T) {
	d := NewDecoder(strings.NewReader("42"))
	if d.Next() {
		t.Fatal("expected no records")
	}
	if _, ok := d.Err().(*FormatError); !ok {
		t.Fatalf("Err() = %v, want *FormatError", d.Err())
	}
}

func TestDecodeUnrecognizedKindIsFormatError(t *testing.T) {
	d := NewDecoder(strings.NewReader("z;1;2"))
	if d.Next() {
		t.Fatal("expected no records")
	}
	if _, ok := d.Err().(*FormatError); !ok {
		t.Fatalf("Err() = %v, want *FormatError", d.Err())
	}
}
