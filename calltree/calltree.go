// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package calltree implements the merged call-tree node taxonomy: a
// tagged union of node kinds (Split, Root, Call, Branch, Return, Memory,
// Allocation), arena-allocated and addressed by NodeIndex rather than
// pointer, so that the radix-trie split operation in cfgleak re-parents
// subtrees by moving indices instead of doing pointer surgery.
// Iteration is expected to use an explicit work stack, not recursion,
// since call trees can be deep.
package calltree

import (
	"github.com/aclements/leakanalyze/tcset"
	"github.com/aclements/leakanalyze/tracefmt"
)

// Kind discriminates the tagged node union. Split, Root, and Call are
// "split-bearing": they carry a testcase-id set, an ordered Successors
// list, and an unordered SplitSuccessors list. Branch, Return, Memory, and
// Allocation are leaves.
type Kind uint8

const (
	KindSplit Kind = iota
	KindRoot
	KindCall
	KindBranch
	KindReturn
	KindMemory
	KindAllocation
)

func (k Kind) String() string {
	switch k {
	case KindSplit:
		return "split"
	case KindRoot:
		return "root"
	case KindCall:
		return "call"
	case KindBranch:
		return "branch"
	case KindReturn:
		return "return"
	case KindMemory:
		return "memory"
	case KindAllocation:
		return "allocation"
	}
	return "unknown"
}

// IsSplitBearing reports whether k carries a testcase-id set and successor
// lists (Split, Root, Call).
func (k Kind) IsSplitBearing() bool {
	return k == KindSplit || k == KindRoot || k == KindCall
}

// NodeIndex addresses a Node within an Arena. The zero value is the root.
type NodeIndex int32

// Invalid is a sentinel for "no such node".
const Invalid NodeIndex = -1

// Node is the flat representation of every node kind; Kind selects which
// fields are meaningful, a tagged-sum encoding that keeps the arena a
// single flat slice without the indirection cost of one struct type per
// kind.
type Node struct {
	Kind Kind

	// Split-bearing fields (Split, Root, Call).
	TestcaseIDs     *tcset.Set
	Successors      []NodeIndex
	SplitSuccessors []NodeIndex

	// Call fields.
	CallSrc, CallTgt tracefmt.InstructionID
	StackID          uint64

	// Branch/Return fields.
	BranchSrc, BranchTgt tracefmt.InstructionID
	Taken                bool

	// Memory fields.
	MemInstr   tracefmt.InstructionID
	MemIsWrite bool
	Targets    map[tracefmt.AddressID]*tcset.Set

	// Allocation fields.
	BlockID int32
	Size    uint32
	IsHeap  bool
}

// An Arena owns every Node in one merged call tree, indexed by NodeIndex.
type Arena struct {
	nodes []Node
}

// NewArena returns an Arena containing just a RootNode at index 0.
func NewArena() *Arena {
	a := &Arena{}
	a.nodes = append(a.nodes, Node{Kind: KindRoot, TestcaseIDs: tcset.New()})
	return a
}

// Root is the NodeIndex of the tree's root.
func (a *Arena) Root() NodeIndex { return 0 }

// Node returns a pointer to the node at idx. The pointer is invalidated by
// any subsequent call to an Alloc* method, which may grow the backing
// slice.
func (a *Arena) Node(idx NodeIndex) *Node { return &a.nodes[idx] }

// Len returns the number of nodes allocated so far.
func (a *Arena) Len() int { return len(a.nodes) }

func (a *Arena) alloc(n Node) NodeIndex {
	a.nodes = append(a.nodes, n)
	return NodeIndex(len(a.nodes) - 1)
}

// AllocSplit allocates a new, empty Split node.
func (a *Arena) AllocSplit() NodeIndex {
	return a.alloc(Node{Kind: KindSplit, TestcaseIDs: tcset.New()})
}

// AllocCall allocates a new Call node for a call from src to tgt reached
// via the given call-stack id.
func (a *Arena) AllocCall(src, tgt tracefmt.InstructionID, stackID uint64) NodeIndex {
	return a.alloc(Node{Kind: KindCall, TestcaseIDs: tcset.New(), CallSrc: src, CallTgt: tgt, StackID: stackID})
}

// AllocBranch allocates a new Branch leaf.
func (a *Arena) AllocBranch(src, tgt tracefmt.InstructionID, taken bool) NodeIndex {
	return a.alloc(Node{Kind: KindBranch, BranchSrc: src, BranchTgt: tgt, Taken: taken})
}

// AllocReturn allocates a new Return leaf.
func (a *Arena) AllocReturn(src, tgt tracefmt.InstructionID) NodeIndex {
	return a.alloc(Node{Kind: KindReturn, BranchSrc: src, BranchTgt: tgt})
}

// AllocMemory allocates a new Memory leaf for an access by instr.
func (a *Arena) AllocMemory(instr tracefmt.InstructionID, isWrite bool) NodeIndex {
	return a.alloc(Node{Kind: KindMemory, MemInstr: instr, MemIsWrite: isWrite, Targets: make(map[tracefmt.AddressID]*tcset.Set)})
}

// AllocAllocation allocates a new Allocation leaf.
func (a *Arena) AllocAllocation(blockID int32, size uint32, isHeap bool) NodeIndex {
	return a.alloc(Node{Kind: KindAllocation, BlockID: blockID, Size: size, IsHeap: isHeap})
}

// AllocFromProposal allocates the node kind matching p. For a Call
// proposal the caller must still set StackID on the returned node, since
// computing it requires the running call-stack hash.
func (a *Arena) AllocFromProposal(p Proposal) NodeIndex {
	switch p.Kind {
	case KindCall:
		return a.AllocCall(p.Src, p.Tgt, 0)
	case KindBranch:
		return a.AllocBranch(p.Src, p.Tgt, p.Taken)
	case KindReturn:
		return a.AllocReturn(p.Src, p.Tgt)
	case KindMemory:
		return a.AllocMemory(p.MemInstr, p.MemIsWrite)
	case KindAllocation:
		return a.AllocAllocation(p.BlockID, p.Size, p.IsHeap)
	}
	panic("calltree: unknown proposal kind")
}
