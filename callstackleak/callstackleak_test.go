// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package callstackleak

import (
	"testing"

	"github.com/aclements/leakanalyze/analyzerlog"
	"github.com/aclements/leakanalyze/tracefmt"
)

func memAccess(off uint32) *tracefmt.ImageMemoryAccess {
	return &tracefmt.ImageMemoryAccess{IsWrite: false, Size: 8, InstrImage: 0, InstrOffset: 0x20, MemImage: 0, MemOffset: off}
}

func callBranch(dstOffset uint32) *tracefmt.Branch {
	return &tracefmt.Branch{Taken: true, Type: tracefmt.BranchCall, SourceImage: 0, SourceOffset: 0x10, DestImage: 0, DestOffset: dstOffset}
}

func returnBranch() *tracefmt.Branch {
	return &tracefmt.Branch{Taken: true, Type: tracefmt.BranchReturn, SourceImage: 0, SourceOffset: 0x30, DestImage: 0, DestOffset: 0x12}
}

func TestSameCallStackSameDigestNoLeak(t *testing.T) {
	e := New(false)
	trace := []tracefmt.Entry{callBranch(0x100), memAccess(0x1000), returnBranch()}
	e.AddTrace(0, trace, nil)
	e.AddTrace(1, trace, nil)
	res := e.Finish(nil)
	if len(res.ByStack) != 1 {
		t.Fatalf("got %d stack/instr keys, want 1", len(res.ByStack))
	}
	for _, s := range res.ByStack {
		if s.MutualInformation != 0 {
			t.Fatalf("MI = %v, want 0", s.MutualInformation)
		}
	}
}

func TestDifferentCallTargetsSeparateStacks(t *testing.T) {
	e := New(false)
	e.AddTrace(0, []tracefmt.Entry{callBranch(0x100), memAccess(0x1000)}, nil)
	e.AddTrace(1, []tracefmt.Entry{callBranch(0x200), memAccess(0x1000)}, nil)
	res := e.Finish(nil)
	if len(res.ByStack) != 2 {
		t.Fatalf("got %d keys, want 2 (distinct call targets produce distinct stack ids)", len(res.ByStack))
	}
}

func TestReturnWithEmptyStackWarns(t *testing.T) {
	e := New(false)
	var warned bool
	logger := warnLogger(func(sev analyzerlog.Severity, format string, args ...interface{}) {
		if sev == analyzerlog.Warning {
			warned = true
		}
	})
	e.AddTrace(0, []tracefmt.Entry{returnBranch()}, logger)
	if !warned {
		t.Fatal("expected a balance warning for return with empty call stack")
	}
}

type warnLogger func(analyzerlog.Severity, string, ...interface{})

func (f warnLogger) Log(sev analyzerlog.Severity, format string, args ...interface{}) {
	f(sev, format, args...)
}

func TestStackPathWalksToRoot(t *testing.T) {
	e := New(false)
	e.AddTrace(0, []tracefmt.Entry{callBranch(0x100), memAccess(0x1000), returnBranch()}, nil)
	var stackID uint64
	for k := range e.aggs {
		stackID = k.stackID
	}
	path := e.StackPath(stackID)
	if len(path) != 1 {
		t.Fatalf("got path length %d, want 1", len(path))
	}
}
