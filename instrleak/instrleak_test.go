// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package instrleak

import (
	"math"
	"testing"

	"github.com/aclements/leakanalyze/tcset"
	"github.com/aclements/leakanalyze/tracefmt"
)

func access(instrOffset uint32, memOffset uint32) *tracefmt.ImageMemoryAccess {
	return &tracefmt.ImageMemoryAccess{IsWrite: false, Size: 8, InstrImage: 0, InstrOffset: instrOffset, MemImage: 0, MemOffset: memOffset}
}

// TestConstantAddressNoLeakage covers scenario 1.
func TestConstantAddressNoLeakage(t *testing.T) {
	e := New(false)
	e.AddTrace(0, []tracefmt.Entry{access(0x10, 0x100)})
	e.AddTrace(1, []tracefmt.Entry{access(0x10, 0x100)})
	res := e.Finish(nil)

	instr := tracefmt.NewInstructionID(0, 0x10)
	s := res.ByInstr[instr]
	if s.TestcaseCount != 2 {
		t.Fatalf("testcase count = %d, want 2", s.TestcaseCount)
	}
	if s.MutualInformation != 0 {
		t.Fatalf("MI = %v, want 0", s.MutualInformation)
	}
	if s.MinEntropy != 0 {
		t.Fatalf("min-entropy = %v, want 0", s.MinEntropy)
	}
	if math.Abs(s.MinCondGuessEntropy-1.5) > 1e-9 {
		t.Fatalf("min-cond-guess = %v, want 1.5", s.MinCondGuessEntropy)
	}
}

// TestPerfectlyInputDependent covers scenario 2.
func TestPerfectlyInputDependent(t *testing.T) {
	e := New(false)
	addrs := []uint32{0x100, 0x200, 0x300, 0x400}
	for i, a := range addrs {
		e.AddTrace(tcset.ID(i), []tracefmt.Entry{access(0x10, a)})
	}
	res := e.Finish(nil)
	instr := tracefmt.NewInstructionID(0, 0x10)
	s := res.ByInstr[instr]
	if s.TestcaseCount != 4 {
		t.Fatalf("testcase count = %d, want 4", s.TestcaseCount)
	}
	if math.Abs(s.MutualInformation-2) > 1e-9 {
		t.Fatalf("MI = %v, want 2", s.MutualInformation)
	}
	if math.Abs(s.MinEntropy-2) > 1e-9 {
		t.Fatalf("min-entropy = %v, want 2", s.MinEntropy)
	}
	if math.Abs(s.CondGuessEntropy-1) > 1e-9 {
		t.Fatalf("cond-guess = %v, want 1", s.CondGuessEntropy)
	}
	if math.Abs(s.MinCondGuessEntropy-1) > 1e-9 {
		t.Fatalf("min-cond-guess = %v, want 1", s.MinCondGuessEntropy)
	}
}

func TestFullDataRecordsTestcases(t *testing.T) {
	e := New(true)
	e.AddTrace(0, []tracefmt.Entry{access(0x10, 0x100)})
	e.AddTrace(1, []tracefmt.Entry{access(0x10, 0x200)})
	res := e.Finish(nil)
	instr := tracefmt.NewInstructionID(0, 0x10)
	if len(res.FullData[instr]) != 2 {
		t.Fatalf("got %d distinct digests, want 2", len(res.FullData[instr]))
	}
}
