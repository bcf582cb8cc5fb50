// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"fmt"
	"io"
	"sort"
)

// CFGLeak is the minimal view report needs of one cfgleak.Leaks entry,
// kept as a plain struct here to avoid report importing cfgleak's own LeakKey
// (cfgleak already imports report for CompressIDs; this keeps the
// dependency one-directional).
type CFGLeak struct {
	StackID      uint64
	Instr        string
	UniqueHashes int
}

// WriteCFGInstructions writes instructions.txt: each leaking
// (call-stack, instruction) pair with its count of distinct split
// hashes, sorted by descending unique-hash count then by instruction
// label.
func WriteCFGInstructions(w io.Writer, leaks []CFGLeak) error {
	sorted := append([]CFGLeak(nil), leaks...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].UniqueHashes != sorted[j].UniqueHashes {
			return sorted[i].UniqueHashes > sorted[j].UniqueHashes
		}
		if sorted[i].Instr != sorted[j].Instr {
			return sorted[i].Instr < sorted[j].Instr
		}
		return sorted[i].StackID < sorted[j].StackID
	})
	for _, l := range sorted {
		if _, err := fmt.Fprintf(w, "%s %s %d\n", StackLabel(l.StackID), l.Instr, l.UniqueHashes); err != nil {
			return err
		}
	}
	return nil
}
