// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package instrleak implements the instruction-level leakage engine: a
// per-testcase rolling digest of each instruction's memory-address
// sequence, aggregated across testcases into per-instruction hash
// histograms and scored for input dependence.
//
// The aggregation-then-score-then-sort shape follows
// cmd/branchstats's map[PC]Agg accumulation, generalized from a single
// branch-mispredict counter to a full hash histogram per instruction.
package instrleak

import (
	"math"
	"sort"
	"sync"

	"github.com/aclements/leakanalyze/analyzerlog"
	"github.com/aclements/leakanalyze/stackhash"
	"github.com/aclements/leakanalyze/tcset"
	"github.com/aclements/leakanalyze/tracefmt"
)

// Scores holds the four leakage measures of a single instruction, plus
// the digest that minimizes conditional guessing entropy.
type Scores struct {
	TestcaseCount       int
	MutualInformation   float64
	MinEntropy          float64
	CondGuessEntropy    float64
	MinCondGuessEntropy float64
	MinCondGuessDigest  stackhash.Digest
}

type instrAgg struct {
	hashCounts    map[stackhash.Digest]int
	hashTestcases map[stackhash.Digest][]tcset.ID
}

// Engine accumulates memory-access digests across testcases. AddTrace is
// safe to call concurrently for distinct testcase ids: each call builds
// per-instruction digests local to its own testcase id, then merges them
// into the shared histogram under a single engine-wide mutex.
type Engine struct {
	fullData bool

	mu   sync.Mutex
	aggs map[tracefmt.InstructionID]*instrAgg
	n    int
}

// New returns an empty Engine. When fullData is true, Finish's results
// additionally record which testcases produced each digest.
func New(fullData bool) *Engine {
	return &Engine{fullData: fullData, aggs: make(map[tracefmt.InstructionID]*instrAgg)}
}

// AddTrace folds one testcase's trace into the engine. It may be called
// concurrently with other AddTrace calls for distinct testcase ids.
func (e *Engine) AddTrace(id tcset.ID, entries []tracefmt.Entry) {
	digests := make(map[tracefmt.InstructionID]stackhash.Digest)
	for _, entry := range entries {
		instr, addr, _, ok := tracefmt.DigestAddressID(entry)
		if !ok {
			continue
		}
		d := digests[instr]
		d.Roll(addr)
		digests[instr] = d
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.n++
	for instr, d := range digests {
		agg, ok := e.aggs[instr]
		if !ok {
			agg = &instrAgg{hashCounts: make(map[stackhash.Digest]int)}
			if e.fullData {
				agg.hashTestcases = make(map[stackhash.Digest][]tcset.ID)
			}
			e.aggs[instr] = agg
		}
		agg.hashCounts[d]++
		if e.fullData {
			agg.hashTestcases[d] = append(agg.hashTestcases[d], id)
		}
	}
}

// Results is the final, scored output of Finish.
type Results struct {
	N        int
	ByInstr  map[tracefmt.InstructionID]Scores
	FullData map[tracefmt.InstructionID]map[stackhash.Digest][]tcset.ID
}

// Finish scores every instruction seen by at least one AddTrace call. It
// must not be called concurrently with AddTrace.
func (e *Engine) Finish(log analyzerlog.Logger) Results {
	if log == nil {
		log = analyzerlog.Nop
	}
	res := Results{N: e.n, ByInstr: make(map[tracefmt.InstructionID]Scores)}
	if e.fullData {
		res.FullData = make(map[tracefmt.InstructionID]map[stackhash.Digest][]tcset.ID)
	}
	warnThreshold := math.Log2(float64(e.n)) - 0.9
	for instr, agg := range e.aggs {
		res.ByInstr[instr] = Score(agg.hashCounts)
		if e.fullData {
			res.FullData[instr] = agg.hashTestcases
		}
		if res.ByInstr[instr].MutualInformation > warnThreshold {
			log.Log(analyzerlog.Warning, "instruction %s: mutual information %.3f exceeds log2(N)-0.9 (%.3f); too few testcases to distinguish from full leakage", instr, res.ByInstr[instr].MutualInformation, warnThreshold)
		}
	}
	return res
}

// Score computes the four measures of from one instruction's
// digest histogram, assuming a uniform distribution over the testcases
// that reached it. Exported so callstackleak, which keys the same
// histogram shape by (stack id, instruction id) instead of just
// instruction id, can reuse it rather than duplicate the arithmetic.
func Score(hashCounts map[stackhash.Digest]int) Scores {
	var s Scores
	s.TestcaseCount = 0
	for _, c := range hashCounts {
		s.TestcaseCount += c
	}
	if s.TestcaseCount == 0 {
		return s
	}
	nf := float64(s.TestcaseCount)

	var mi, condGuess float64
	minCondGuess := math.Inf(1)
	var minDigest stackhash.Digest
	for digest, count := range hashCounts {
		p := float64(count) / nf
		mi += p * math.Log2(1/p)
		condGuess += p * (float64(count) + 1) / 2
		mcg := (float64(count) + 1) / 2
		if mcg < minCondGuess {
			minCondGuess = mcg
			minDigest = digest
		}
	}
	s.MutualInformation = mi
	s.MinEntropy = math.Log2(float64(len(hashCounts)))
	s.CondGuessEntropy = condGuess
	s.MinCondGuessEntropy = minCondGuess
	s.MinCondGuessDigest = minDigest
	return s
}

// SortedInstructions returns instr ids from res ordered by measure, with
// MI/min-entropy descending (tiebreak ascending instruction id) and the
// guessing entropies ascending, matching four output files.
func SortedInstructions(res Results, measure string) []tracefmt.InstructionID {
	ids := make([]tracefmt.InstructionID, 0, len(res.ByInstr))
	for id := range res.ByInstr {
		ids = append(ids, id)
	}
	less := func(i, j int) bool {
		a, b := res.ByInstr[ids[i]], res.ByInstr[ids[j]]
		switch measure {
		case "mi":
			if a.MutualInformation != b.MutualInformation {
				return a.MutualInformation > b.MutualInformation
			}
		case "min-entropy":
			if a.MinEntropy != b.MinEntropy {
				return a.MinEntropy > b.MinEntropy
			}
		case "cond-guess":
			if a.CondGuessEntropy != b.CondGuessEntropy {
				return a.CondGuessEntropy < b.CondGuessEntropy
			}
		case "min-cond-guess":
			if a.MinCondGuessEntropy != b.MinCondGuessEntropy {
				return a.MinCondGuessEntropy < b.MinCondGuessEntropy
			}
		}
		return ids[i] < ids[j]
	}
	sort.Slice(ids, less)
	return ids
}
