// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package calltree

import "github.com/aclements/leakanalyze/tracefmt"

// A Proposal describes an incoming trace entry translated into "the kind
// of node this would integrate as", before it's known whether an existing
// successor already matches it.
type Proposal struct {
	Kind Kind

	// Call / Branch / Return identifying fields.
	Src, Tgt tracefmt.InstructionID
	Taken    bool // meaningful for Branch only; Tgt is meaningless when !Taken

	// Memory identifying fields. Target is accumulated into the matched
	// node's Targets map rather than used for matching.
	MemInstr   tracefmt.InstructionID
	MemIsWrite bool
	MemTarget  tracefmt.AddressID

	// Allocation identifying fields.
	BlockID int32
	Size    uint32
	IsHeap  bool
}

// CallProposal builds the Proposal for a taken Call branch.
func CallProposal(src, tgt tracefmt.InstructionID) Proposal {
	return Proposal{Kind: KindCall, Src: src, Tgt: tgt}
}

// BranchProposal builds the Proposal for a taken or not-taken Jump branch.
func BranchProposal(src, tgt tracefmt.InstructionID, taken bool) Proposal {
	return Proposal{Kind: KindBranch, Src: src, Tgt: tgt, Taken: taken}
}

// ReturnProposal builds the Proposal for a Return branch.
func ReturnProposal(src, tgt tracefmt.InstructionID) Proposal {
	return Proposal{Kind: KindReturn, Src: src, Tgt: tgt}
}

// MemoryProposal builds the Proposal for a memory access.
func MemoryProposal(instr tracefmt.InstructionID, isWrite bool, target tracefmt.AddressID) Proposal {
	return Proposal{Kind: KindMemory, MemInstr: instr, MemIsWrite: isWrite, MemTarget: target}
}

// AllocationProposal builds the Proposal for a heap or stack allocation.
func AllocationProposal(blockID int32, size uint32, isHeap bool) Proposal {
	return Proposal{Kind: KindAllocation, BlockID: blockID, Size: size, IsHeap: isHeap}
}

// Matches reports whether node already represents p: same node kind plus
// identifying fields. Memory nodes match on instruction id and direction
// only; divergent target addresses at the same instruction never cause a
// split, they accumulate in node.Targets instead.
func Matches(node *Node, p Proposal) bool {
	if node.Kind != p.Kind {
		return false
	}
	switch p.Kind {
	case KindCall:
		return node.CallSrc == p.Src && node.CallTgt == p.Tgt
	case KindBranch:
		if p.Taken {
			return node.Taken && node.BranchSrc == p.Src && node.BranchTgt == p.Tgt
		}
		return !node.Taken && node.BranchSrc == p.Src
	case KindReturn:
		return node.BranchSrc == p.Src && node.BranchTgt == p.Tgt
	case KindMemory:
		return node.MemInstr == p.MemInstr && node.MemIsWrite == p.MemIsWrite
	case KindAllocation:
		return node.BlockID == p.BlockID && node.IsHeap == p.IsHeap
	}
	return false
}
