// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"strconv"
	"strings"
	"testing"

	"github.com/aclements/leakanalyze/tcset"
)

func ids(xs ...uint32) []tcset.ID {
	out := make([]tcset.ID, len(xs))
	for i, x := range xs {
		out[i] = tcset.ID(x)
	}
	return out
}

// TestCompressIDs covers scenario 6.
func TestCompressIDs(t *testing.T) {
	got := CompressIDs(ids(1, 2, 3, 4, 6, 7, 8, 10))
	want := "1-4 6-8 10"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCompressIDsShortRunsStaySpaceSeparated(t *testing.T) {
	got := CompressIDs(ids(1, 2, 5))
	want := "1 2 5"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCompressIDsEmpty(t *testing.T) {
	if got := CompressIDs(nil); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

// TestCompressIdempotence covers compression-idempotence
// invariant indirectly: compressing the already-compressed textual form
// (re-parsed back into a flat id list) reproduces the same string.
func TestCompressIdempotence(t *testing.T) {
	in := ids(1, 2, 3, 4, 6, 7, 8, 10)
	once := CompressIDs(in)
	var reparsed []tcset.ID
	for _, field := range strings.Fields(once) {
		lo, hi, isRange := strings.Cut(field, "-")
		if !isRange {
			hi = lo
		}
		a, errA := strconv.ParseUint(lo, 10, 32)
		b, errB := strconv.ParseUint(hi, 10, 32)
		if errA != nil || errB != nil {
			t.Fatalf("cannot re-parse %q", field)
		}
		for x := a; x <= b; x++ {
			reparsed = append(reparsed, tcset.ID(x))
		}
	}
	twice := CompressIDs(reparsed)
	if once != twice {
		t.Fatalf("compression not idempotent: %q vs %q", once, twice)
	}
}
