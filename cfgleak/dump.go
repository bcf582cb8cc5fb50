// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package cfgleak

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aclements/leakanalyze/calltree"
	"github.com/aclements/leakanalyze/report"
	"github.com/aclements/leakanalyze/tracefmt"
)

// LeakKey identifies one leaking divergence point: the call-stack in
// effect at the split, and the instruction whose branch caused it.
type LeakKey struct {
	StackID uint64
	Instr   tracefmt.InstructionID
}

// Leaks maps each leaking (call-stack, instruction) pair to the distinct
// testcase-set hashes observed across its split-successors.
type Leaks map[LeakKey]map[uint64]bool

type walkItem struct {
	idx         calltree.NodeIndex
	callStackID uint64
	callDepth   int
}

// Walk performs an explicit-stack preorder traversal of the merged tree,
// avoiding recursion since call trees can be deep, visiting every node
// exactly once and computing the call-stack id in effect at each one.
// visit is called before a node's children are pushed.
func (e *Engine) Walk(visit func(idx calltree.NodeIndex, node *calltree.Node, callStackID uint64, callDepth int)) {
	stack := []walkItem{{e.arena.Root(), 0, 0}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := e.arena.Node(top.idx)
		visit(top.idx, node, top.callStackID, top.callDepth)

		childCallStackID := top.callStackID
		childDepth := top.callDepth
		if node.Kind == calltree.KindCall {
			childCallStackID = node.StackID
			childDepth++
		}

		// A Call node's split-successors diverge inside the callee body,
		// so they take the callee's call-stack id like its Successors do.
		//
		// Push in reverse so Successors pop in original order, followed
		// by SplitSuccessors.
		for i := len(node.SplitSuccessors) - 1; i >= 0; i-- {
			stack = append(stack, walkItem{node.SplitSuccessors[i], childCallStackID, childDepth})
		}
		for i := len(node.Successors) - 1; i >= 0; i-- {
			stack = append(stack, walkItem{node.Successors[i], childCallStackID, childDepth})
		}
	}
}

// Leaks walks the merged tree once, grouping every split-bearing node's
// split-successors by the first instruction id of the branch that caused
// the divergence, and collecting the testcase-set hash of each
// alternative. Splits whose first successor carries no
// instruction id (an Allocation leaf) are not reportable and are
// skipped.
func (e *Engine) Leaks() Leaks {
	leaks := make(Leaks)
	e.Walk(func(idx calltree.NodeIndex, node *calltree.Node, callStackID uint64, callDepth int) {
		if !node.Kind.IsSplitBearing() || len(node.SplitSuccessors) == 0 {
			return
		}
		// A Call node's split-successors diverge inside the callee, so
		// they are keyed by the callee's call-stack id (as in Walk).
		stackID := callStackID
		if node.Kind == calltree.KindCall {
			stackID = node.StackID
		}
		for _, ssIdx := range node.SplitSuccessors {
			ss := e.arena.Node(ssIdx)
			if len(ss.Successors) == 0 {
				continue
			}
			instr, ok := splitCauseInstr(e.arena.Node(ss.Successors[0]))
			if !ok {
				continue
			}
			key := LeakKey{StackID: stackID, Instr: instr}
			set, ok := leaks[key]
			if !ok {
				set = make(map[uint64]bool)
				leaks[key] = set
			}
			set[ss.TestcaseIDs.Hash()] = true
		}
	})
	for k, v := range leaks {
		if len(v) < 2 {
			delete(leaks, k)
		}
	}
	return leaks
}

func splitCauseInstr(n *calltree.Node) (tracefmt.InstructionID, bool) {
	switch n.Kind {
	case calltree.KindCall:
		return n.CallSrc, true
	case calltree.KindBranch, calltree.KindReturn:
		return n.BranchSrc, true
	case calltree.KindMemory:
		return n.MemInstr, true
	}
	return 0, false
}

// Dump renders the merged tree as the preorder call-tree-dump.txt text
// format: one line per node, indented by call depth.
func (e *Engine) Dump(w io.Writer) error {
	var err error
	write := func(format string, args ...interface{}) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, format, args...)
	}
	e.Walk(func(idx calltree.NodeIndex, node *calltree.Node, callStackID uint64, callDepth int) {
		indent := strings.Repeat(" ", callDepth)
		switch node.Kind {
		case calltree.KindRoot:
			write("%s@root %s\n", indent, report.CompressIDs(node.TestcaseIDs.Slice()))
		case calltree.KindSplit:
			write("%s@split %s\n", indent, report.CompressIDs(node.TestcaseIDs.Slice()))
		case calltree.KindCall:
			write("%s#call %s -> %s ($%s)\n", indent, node.CallSrc, node.CallTgt, callStackLabel(node.StackID))
		case calltree.KindBranch:
			if node.Taken {
				write("%s#branch %s -> %s\n", indent, node.BranchSrc, node.BranchTgt)
			} else {
				write("%s#branch %s not taken\n", indent, node.BranchSrc)
			}
		case calltree.KindReturn:
			write("%s#return %s -> %s\n", indent, node.BranchSrc, node.BranchTgt)
		case calltree.KindMemory:
			dir := "reads"
			if node.MemIsWrite {
				dir = "writes"
			}
			write("%s#memory %s %s\n", indent, node.MemInstr, dir)
			addrs := make([]tracefmt.AddressID, 0, len(node.Targets))
			for a := range node.Targets {
				addrs = append(addrs, a)
			}
			sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
			for _, a := range addrs {
				write("%s %s %s\n", indent, a, report.CompressIDs(node.Targets[a].Slice()))
			}
		case calltree.KindAllocation:
			kind := "stack"
			if node.IsHeap {
				kind = "heap"
			}
			write("%s#allocation %s block=%d size=%d\n", indent, kind, node.BlockID, node.Size)
		}
	})
	return err
}

// callStackLabel formats a call-stack id the way call-stacks.txt does:
// "CS-" followed by 16 hex digits.
func callStackLabel(id uint64) string {
	return fmt.Sprintf("CS-%016x", id)
}
