// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package cfgleak

import (
	"bytes"
	"testing"

	"github.com/aclements/leakanalyze/analyzerlog"
	"github.com/aclements/leakanalyze/calltree"
	"github.com/aclements/leakanalyze/tracefmt"
)

func callA2B() *tracefmt.Branch {
	return &tracefmt.Branch{Taken: true, Type: tracefmt.BranchCall, SourceImage: 0, SourceOffset: 0x10, DestImage: 0, DestOffset: 0x20}
}

func jumpBtoC(dst uint32) *tracefmt.Branch {
	return &tracefmt.Branch{Taken: true, Type: tracefmt.BranchJump, SourceImage: 0, SourceOffset: 0x20, DestImage: 0, DestOffset: dst}
}

func returnBtoA() *tracefmt.Branch {
	return &tracefmt.Branch{Taken: true, Type: tracefmt.BranchReturn, SourceImage: 0, SourceOffset: 0x28, DestImage: 0, DestOffset: 0x14}
}

// TestControlFlowSplit covers scenario 3.
func TestControlFlowSplit(t *testing.T) {
	e := New(nil)
	trace1 := []tracefmt.Entry{callA2B(), jumpBtoC(0x100), returnBtoA()}
	trace2 := []tracefmt.Entry{callA2B(), jumpBtoC(0x200), returnBtoA()}

	if err := e.AddTrace(1, trace1); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTrace(2, trace2); err != nil {
		t.Fatal(err)
	}

	root := e.Arena().Node(e.Arena().Root())
	if len(root.Successors) != 1 {
		t.Fatalf("root has %d successors, want 1 (the shared call)", len(root.Successors))
	}
	callIdx := root.Successors[0]
	callNode := e.Arena().Node(callIdx)
	if callNode.Kind != calltree.KindCall {
		t.Fatalf("root's successor kind = %v, want Call", callNode.Kind)
	}
	if callNode.TestcaseIDs.Len() != 2 {
		t.Fatalf("call node testcase count = %d, want 2", callNode.TestcaseIDs.Len())
	}
	if len(callNode.SplitSuccessors) != 2 {
		t.Fatalf("call node has %d split-successors, want 2 (the divergent jump)", len(callNode.SplitSuccessors))
	}

	leaks := e.Leaks()
	if len(leaks) != 1 {
		t.Fatalf("got %d leaking (stack,instr) pairs, want 1", len(leaks))
	}
	for k, hashes := range leaks {
		if k.Instr != tracefmt.NewInstructionID(0, 0x20) {
			t.Fatalf("leak instr = %v, want jump source 0x20", k.Instr)
		}
		if len(hashes) != 2 {
			t.Fatalf("got %d unique hashes, want 2", len(hashes))
		}
	}

	var buf bytes.Buffer
	if err := e.Dump(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty dump")
	}
}

// TestImbalancedReturnAtEntry covers scenario 4.
func TestImbalancedReturnAtEntry(t *testing.T) {
	var warned bool
	e := New(warnLogger(func(sev analyzerlog.Severity) {
		if sev == analyzerlog.Warning {
			warned = true
		}
	}))
	if err := e.AddTrace(0, []tracefmt.Entry{returnBtoA()}); err != nil {
		t.Fatal(err)
	}
	if !warned {
		t.Fatal("expected a balance warning for a lone return before any call")
	}
	root := e.Arena().Node(e.Arena().Root())
	if len(root.Successors) != 1 {
		t.Fatalf("root has %d successors, want 1 (the return, still recorded)", len(root.Successors))
	}
	if e.Arena().Node(root.Successors[0]).Kind != calltree.KindReturn {
		t.Fatal("root's recorded successor should be the Return node")
	}
}

func TestAddTraceRejectsOutOfOrderIDs(t *testing.T) {
	e := New(nil)
	if err := e.AddTrace(5, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTrace(3, nil); err == nil {
		t.Fatal("expected an error for a descending testcase id")
	}
}

type warnLogger func(sev analyzerlog.Severity)

func (f warnLogger) Log(sev analyzerlog.Severity, format string, args ...interface{}) { f(sev) }
