// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package callstackleak implements the call-stack-aware leakage engine
// of: instrleak generalized to key on (call-stack id,
// instruction id), maintaining a per-testcase call tree during ingest.
//
// The per-PID/per-frame bookkeeping during a single pass over a trace
// follows perfsession.Session.Update's style of folding one record at a
// time into running state, generalized here from perf mmap/comm/fork
// records to Branch entries.
package callstackleak

import (
	"math"
	"sync"

	"github.com/aclements/leakanalyze/analyzerlog"
	"github.com/aclements/leakanalyze/instrleak"
	"github.com/aclements/leakanalyze/stackhash"
	"github.com/aclements/leakanalyze/tcset"
	"github.com/aclements/leakanalyze/tracefmt"
)

// RootStackID is the literal call-stack id of the tree's root.
const RootStackID uint64 = 0

type stackFrame struct {
	parent uint64
	src    tracefmt.InstructionID
	tgt    tracefmt.InstructionID
}

type instrKey struct {
	stackID uint64
	instr   tracefmt.InstructionID
}

type instrAgg struct {
	hashCounts    map[stackhash.Digest]int
	hashTestcases map[stackhash.Digest][]tcset.ID
}

// Engine accumulates (call-stack id, instruction id) digests across
// testcases. AddTrace is parallel-safe: each call only mutates its own
// local call-stack walk before merging into the shared, mutex-guarded
// aggregate maps.
type Engine struct {
	fullData bool

	mu     sync.Mutex
	stacks map[uint64]stackFrame
	aggs   map[instrKey]*instrAgg
	n      int
}

// New returns an empty Engine.
func New(fullData bool) *Engine {
	e := &Engine{fullData: fullData, stacks: make(map[uint64]stackFrame), aggs: make(map[instrKey]*instrAgg)}
	e.stacks[RootStackID] = stackFrame{}
	return e
}

// AddTrace folds one testcase's trace into the engine, maintaining a
// local call-stack walk and merging the resulting per-instruction
// digests into the shared aggregate maps under lock.
func (e *Engine) AddTrace(id tcset.ID, entries []tracefmt.Entry, log analyzerlog.Logger) {
	if log == nil {
		log = analyzerlog.Nop
	}

	localStacks := make(map[uint64]stackFrame)
	var stackStack []uint64
	current := RootStackID
	digests := make(map[instrKey]stackhash.Digest)

	for _, entry := range entries {
		if b, ok := entry.(*tracefmt.Branch); ok {
			switch b.Type {
			case tracefmt.BranchCall:
				if !b.Taken {
					break
				}
				src, tgt := b.SourceInstr(), b.DestInstr()
				newID := stackhash.CallStack(current, uint64(tgt))
				if _, seen := localStacks[newID]; !seen {
					localStacks[newID] = stackFrame{parent: current, src: src, tgt: tgt}
				}
				stackStack = append(stackStack, current)
				current = newID
			case tracefmt.BranchReturn:
				if len(stackStack) == 0 {
					log.Log(analyzerlog.Warning, "testcase %d: return with empty call-stack, recovering at root", id)
					current = RootStackID
					break
				}
				current, stackStack = stackStack[len(stackStack)-1], stackStack[:len(stackStack)-1]
			}
			continue
		}

		instr, addr, _, ok := tracefmt.DigestAddressID(entry)
		if !ok {
			continue
		}
		k := instrKey{stackID: current, instr: instr}
		d := digests[k]
		d.Roll(addr)
		digests[k] = d
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.n++
	for stackID, frame := range localStacks {
		if _, ok := e.stacks[stackID]; !ok {
			e.stacks[stackID] = frame
		}
	}
	for k, d := range digests {
		agg, ok := e.aggs[k]
		if !ok {
			agg = &instrAgg{hashCounts: make(map[stackhash.Digest]int)}
			if e.fullData {
				agg.hashTestcases = make(map[stackhash.Digest][]tcset.ID)
			}
			e.aggs[k] = agg
		}
		agg.hashCounts[d]++
		if e.fullData {
			agg.hashTestcases[d] = append(agg.hashTestcases[d], id)
		}
	}
}

// StackPath returns the leaf-to-root sequence of instruction ids for
// stackID, by walking parent links back to the root.
func (e *Engine) StackPath(stackID uint64) []tracefmt.InstructionID {
	var path []tracefmt.InstructionID
	for stackID != RootStackID {
		frame, ok := e.stacks[stackID]
		if !ok {
			break
		}
		path = append(path, frame.tgt)
		stackID = frame.parent
	}
	return path
}

// Results is the final, scored output of Finish, keyed by (stack id,
// instruction id).
type Results struct {
	N        int
	ByStack  map[instrKey]instrleak.Scores
	FullData map[instrKey]map[stackhash.Digest][]tcset.ID
}

// InstrKey identifies one (call-stack id, instruction id) pair in
// Results; equal to the unexported key callstackleak uses internally.
type InstrKey = instrKey

// StackID returns the call-stack id component of k.
func (k InstrKey) StackID() uint64 { return k.stackID }

// Instr returns the instruction id component of k.
func (k InstrKey) Instr() tracefmt.InstructionID { return k.instr }

// Finish scores every (stack, instruction) pair seen by at least one
// AddTrace call.
func (e *Engine) Finish(log analyzerlog.Logger) Results {
	if log == nil {
		log = analyzerlog.Nop
	}
	res := Results{N: e.n, ByStack: make(map[instrKey]instrleak.Scores)}
	if e.fullData {
		res.FullData = make(map[instrKey]map[stackhash.Digest][]tcset.ID)
	}
	warnThreshold := math.Log2(float64(e.n)) - 0.9
	for k, agg := range e.aggs {
		s := instrleak.Score(agg.hashCounts)
		res.ByStack[k] = s
		if e.fullData {
			res.FullData[k] = agg.hashTestcases
		}
		if s.MutualInformation > warnThreshold {
			log.Log(analyzerlog.Warning, "stack %016x instruction %s: mutual information %.3f exceeds log2(N)-0.9 (%.3f)", k.stackID, k.instr, s.MutualInformation, warnThreshold)
		}
	}
	return res
}
