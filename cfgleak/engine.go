// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package cfgleak implements the control-flow leakage engine: it merges
// every testcase trace into one shared radix-trie call tree
// (calltree.Arena), diverging only where traces actually differ, then
// scores each divergence point for input dependence.
//
// Unlike instrleak/callstackleak, AddTrace is not parallel-safe: it
// mutates the shared tree in place and callers must serialize calls in
// ascending testcase-id order, a single-threaded, causally-ordered
// mutation discipline.
package cfgleak

import (
	"fmt"

	"github.com/aclements/leakanalyze/analyzerlog"
	"github.com/aclements/leakanalyze/calltree"
	"github.com/aclements/leakanalyze/stackhash"
	"github.com/aclements/leakanalyze/tcset"
	"github.com/aclements/leakanalyze/tracefmt"
)

// Engine owns the shared merged call tree. The zero value is not usable;
// use New.
type Engine struct {
	arena   *calltree.Arena
	log     analyzerlog.Logger
	lastID  tcset.ID
	started bool
}

// New returns an Engine with a fresh, empty call tree.
func New(log analyzerlog.Logger) *Engine {
	if log == nil {
		log = analyzerlog.Nop
	}
	return &Engine{arena: calltree.NewArena(), log: log}
}

// Arena exposes the underlying tree for Dump and scoring.
func (e *Engine) Arena() *calltree.Arena { return e.arena }

type stackFrame struct {
	node        calltree.NodeIndex
	resumeIndex int
	stackID     uint64
}

type traceState struct {
	id             tcset.ID
	current        calltree.NodeIndex
	successorIndex int
	stack          []stackFrame
	callStackID    uint64
}

// AddTrace merges one testcase's trace into the shared tree. Testcase ids
// must be presented in strictly ascending order; a violation is a
// Configuration-class programming error in the caller, not a recoverable
// condition, so it is returned rather than logged.
func (e *Engine) AddTrace(id tcset.ID, entries []tracefmt.Entry) error {
	if e.started && id <= e.lastID {
		return fmt.Errorf("cfgleak: testcase %d presented out of order (last was %d); AddTrace requires ascending order", id, e.lastID)
	}
	e.started, e.lastID = true, id

	// Every trace passes through root, so root's own testcase set always
	// includes id the moment it's entered, the same way any other
	// split-bearing node's set is updated the instant it's entered
	// (descending into a matched or freshly created Call does this via
	// markTestcase before integrate() makes it state.current).
	e.arena.Node(e.arena.Root()).TestcaseIDs.Add(id)

	state := &traceState{id: id, current: e.arena.Root(), successorIndex: 0}
	for _, entry := range entries {
		p, ok := classify(entry)
		if !ok {
			continue
		}
		e.step(state, p)
	}
	return nil
}

// classify translates a trace entry into the node proposal it would
// integrate as, or ok=false for entries the tree ignores
// (HeapFree has no tree representation; untaken Call/Return never
// transfer control).
func classify(e tracefmt.Entry) (p calltree.Proposal, ok bool) {
	switch v := e.(type) {
	case *tracefmt.Branch:
		switch v.Type {
		case tracefmt.BranchCall:
			if !v.Taken {
				return calltree.Proposal{}, false
			}
			return calltree.CallProposal(v.SourceInstr(), v.DestInstr()), true
		case tracefmt.BranchReturn:
			if !v.Taken {
				return calltree.Proposal{}, false
			}
			return calltree.ReturnProposal(v.SourceInstr(), v.DestInstr()), true
		case tracefmt.BranchJump:
			return calltree.BranchProposal(v.SourceInstr(), v.DestInstr(), v.Taken), true
		}
		return calltree.Proposal{}, false
	case *tracefmt.HeapAllocation:
		return calltree.AllocationProposal(v.ID, v.Size, true), true
	case *tracefmt.StackAllocation:
		return calltree.AllocationProposal(v.ID, v.Size, false), true
	case *tracefmt.HeapFree:
		return calltree.Proposal{}, false
	}
	if instr, addr, isWrite, ok := tracefmt.IsMemoryAccess(e); ok {
		return calltree.MemoryProposal(instr, isWrite, addr), true
	}
	return calltree.Proposal{}, false
}

// step runs one proposal through the match/split/append integration rule:
// it matches an existing successor, splits the current node, or appends
// a new successor or split, depending on what's already there.
func (e *Engine) step(state *traceState, p calltree.Proposal) {
	node := e.arena.Node(state.current)

	if state.successorIndex < len(node.Successors) {
		succIdx := node.Successors[state.successorIndex]
		if calltree.Matches(e.arena.Node(succIdx), p) {
			e.markTestcase(succIdx, state.id, p.MemTarget)
			e.integrate(state, state.current, succIdx, state.successorIndex+1)
			return
		}
		e.splitAt(state, p)
		return
	}

	if node.TestcaseIDs.Len() == 1 {
		parentIdx := state.current
		childIdx := e.allocChild(state, p)
		e.markTestcase(childIdx, state.id, p.MemTarget)
		parent := e.arena.Node(parentIdx)
		parent.Successors = append(parent.Successors, childIdx)
		e.integrate(state, parentIdx, childIdx, len(parent.Successors))
		return
	}

	if len(node.SplitSuccessors) > 0 {
		for _, ssIdx := range node.SplitSuccessors {
			ss := e.arena.Node(ssIdx)
			if len(ss.Successors) == 0 {
				continue
			}
			firstIdx := ss.Successors[0]
			if calltree.Matches(e.arena.Node(firstIdx), p) {
				e.arena.Node(ssIdx).TestcaseIDs.Add(state.id)
				e.markTestcase(firstIdx, state.id, p.MemTarget)
				e.integrate(state, ssIdx, firstIdx, 1)
				return
			}
		}
		e.newSplitSuccessor(state, p)
		return
	}

	// The other testcases ended exactly here without any split signal.
	// Defensive; keep the warning so malformed traces stay debuggable.
	e.log.Log(analyzerlog.Warning, "testcase %d: node with %d testcases has no matching successor, creating defensive split", state.id, node.TestcaseIDs.Len())
	e.newSplitSuccessor(state, p)
}

// splitAt implements SplitNode.split_at from case 2.
func (e *Engine) splitAt(state *traceState, p calltree.Proposal) {
	parentIdx := state.current
	idx := state.successorIndex

	parentNode := e.arena.Node(parentIdx)
	tail := append([]calltree.NodeIndex(nil), parentNode.Successors[idx:]...)
	splitSuccessors := parentNode.SplitSuccessors
	parentIDs := parentNode.TestcaseIDs

	split1 := e.arena.AllocSplit()
	s1 := e.arena.Node(split1)
	s1.TestcaseIDs = parentIDs.CloneWithout(state.id)
	s1.Successors = tail
	s1.SplitSuccessors = splitSuccessors

	split2 := e.arena.AllocSplit()
	e.arena.Node(split2).TestcaseIDs = tcset.NewWithID(state.id)

	childIdx := e.allocChild(state, p)
	e.markTestcase(childIdx, state.id, p.MemTarget)
	s2 := e.arena.Node(split2)
	s2.Successors = append(s2.Successors, childIdx)

	parentNode = e.arena.Node(parentIdx)
	parentNode.Successors = parentNode.Successors[:idx]
	parentNode.SplitSuccessors = []calltree.NodeIndex{split1, split2}

	e.integrate(state, split2, childIdx, 1)
}

// newSplitSuccessor creates a fresh SplitSuccessor of state.current
// holding only p, used by both the "no split-successor matches" and
// "weird case" paths of case 3.
func (e *Engine) newSplitSuccessor(state *traceState, p calltree.Proposal) {
	parentIdx := state.current

	newIdx := e.arena.AllocSplit()
	e.arena.Node(newIdx).TestcaseIDs.Add(state.id)

	childIdx := e.allocChild(state, p)
	e.markTestcase(childIdx, state.id, p.MemTarget)

	newNode := e.arena.Node(newIdx)
	newNode.Successors = append(newNode.Successors, childIdx)

	parent := e.arena.Node(parentIdx)
	parent.SplitSuccessors = append(parent.SplitSuccessors, newIdx)

	e.integrate(state, newIdx, childIdx, 1)
}

// allocChild allocates the node for proposal p, computing the correct
// running call-stack id for a new CallNode (AllocFromProposal gives a new
// Call node the placeholder id 0, so the real id is set here).
func (e *Engine) allocChild(state *traceState, p calltree.Proposal) calltree.NodeIndex {
	idx := e.arena.AllocFromProposal(p)
	if p.Kind == calltree.KindCall {
		e.arena.Node(idx).StackID = stackhash.Node(state.callStackID, uint64(p.Src), uint64(p.Tgt))
	}
	return idx
}

// markTestcase records that testcase id reached node idx: into the
// node's own testcase set if it is split-bearing, or into the matched
// target's address set if it is a Memory node. Plain leaf nodes (Branch,
// Return, Allocation) carry no testcase set of their own; membership is
// implied by the split-bearing ancestor sets along the path to them.
func (e *Engine) markTestcase(idx calltree.NodeIndex, id tcset.ID, target tracefmt.AddressID) {
	node := e.arena.Node(idx)
	if node.Kind.IsSplitBearing() {
		node.TestcaseIDs.Add(id)
		return
	}
	if node.Kind == calltree.KindMemory {
		set, ok := node.Targets[target]
		if !ok {
			set = tcset.New()
			node.Targets[target] = set
		}
		set.Add(id)
	}
}

// integrate applies the push/pop/advance rule shared by matched,
// freshly-appended, and freshly-split children:
// entering a CallNode pushes the resume point and descends; a ReturnNode
// pops it (recovering at root with a Balance warning if the stacks are
// already empty); anything else just resumes at resumeIndex within
// containerIdx.
func (e *Engine) integrate(state *traceState, containerIdx, childIdx calltree.NodeIndex, resumeIndex int) {
	child := e.arena.Node(childIdx)
	switch child.Kind {
	case calltree.KindCall:
		state.stack = append(state.stack, stackFrame{node: containerIdx, resumeIndex: resumeIndex, stackID: state.callStackID})
		state.current = childIdx
		state.successorIndex = 0
		state.callStackID = child.StackID
	case calltree.KindReturn:
		if len(state.stack) == 0 {
			e.log.Log(analyzerlog.Warning, "testcase %d: return with empty node stack, recovering at root", state.id)
			state.current = e.arena.Root()
			state.successorIndex = len(e.arena.Node(state.current).Successors)
			state.callStackID = 0
			return
		}
		top := state.stack[len(state.stack)-1]
		state.stack = state.stack[:len(state.stack)-1]
		state.current = top.node
		state.successorIndex = top.resumeIndex
		state.callStackID = top.stackID
	default:
		state.current = containerIdx
		state.successorIndex = resumeIndex
	}
}
