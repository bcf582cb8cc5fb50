// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package calltree

import (
	"testing"

	"github.com/aclements/leakanalyze/tracefmt"
)

func TestArenaRoot(t *testing.T) {
	a := NewArena()
	root := a.Node(a.Root())
	if root.Kind != KindRoot {
		t.Fatalf("root kind = %v, want Root", root.Kind)
	}
	if root.TestcaseIDs == nil {
		t.Fatal("root TestcaseIDs is nil")
	}
}

func TestMatchesCall(t *testing.T) {
	a := NewArena()
	idx := a.AllocCall(1, 2, 99)
	node := a.Node(idx)
	if !Matches(node, CallProposal(1, 2)) {
		t.Fatal("expected match")
	}
	if Matches(node, CallProposal(1, 3)) {
		t.Fatal("expected mismatch on different target")
	}
}

func TestMatchesBranchNotTakenIgnoresTarget(t *testing.T) {
	a := NewArena()
	idx := a.AllocBranch(1, 0, false)
	node := a.Node(idx)
	if !Matches(node, BranchProposal(1, 999, false)) {
		t.Fatal("not-taken branch should match regardless of target")
	}
	if Matches(node, BranchProposal(1, 999, true)) {
		t.Fatal("taken proposal should not match not-taken node")
	}
}

func TestMatchesMemoryIgnoresTarget(t *testing.T) {
	a := NewArena()
	instr := tracefmt.NewInstructionID(0, 0x10)
	idx := a.AllocMemory(instr, false)
	node := a.Node(idx)
	p1 := MemoryProposal(instr, false, tracefmt.NewImageAddressID(0, 0x100))
	p2 := MemoryProposal(instr, false, tracefmt.NewImageAddressID(0, 0x200))
	if !Matches(node, p1) || !Matches(node, p2) {
		t.Fatal("memory nodes should match regardless of target address")
	}
}
