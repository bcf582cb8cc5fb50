// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/aclements/leakanalyze/callstackleak"
	"github.com/aclements/leakanalyze/instrleak"
)

// StackLabel formats a call-stack id as call-stacks.txt does: "CS-"
// followed by 16 hex digits.
func StackLabel(id uint64) string {
	return fmt.Sprintf("CS-%016x", id)
}

// WriteCallStacks writes call-stacks.txt: each stack id followed by its
// leaf-to-root instruction sequence, joined by " => ".
func WriteCallStacks(w io.Writer, e *callstackleak.Engine, stackIDs []uint64, resolver Resolver) error {
	if resolver == nil {
		resolver = PlainResolver
	}
	ids := append([]uint64(nil), stackIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		path := e.StackPath(id)
		labels := make([]string, len(path))
		for i, instr := range path {
			labels[i] = resolver.Resolve(instr)
		}
		line := StackLabel(id)
		for _, l := range labels {
			line += " => " + l
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteCallStackInstrText writes the four parallel measure files,
// the call-stack-aware counterpart of WriteInstrText, each line carrying
// a resolved call-stack column ahead of the instruction.
func WriteCallStackInstrText(miW, minEntW, condGuessW, minCondGuessW io.Writer, res callstackleak.Results, resolver Resolver) error {
	if resolver == nil {
		resolver = PlainResolver
	}
	keys := make([]callstackleak.InstrKey, 0, len(res.ByStack))
	for k := range res.ByStack {
		keys = append(keys, k)
	}
	write := func(w io.Writer, get func(instrleak.Scores) string) error {
		sorted := append([]callstackleak.InstrKey(nil), keys...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Instr() < sorted[j].Instr() || (sorted[i].Instr() == sorted[j].Instr() && sorted[i].StackID() < sorted[j].StackID())
		})
		for _, k := range sorted {
			s := res.ByStack[k]
			if _, err := fmt.Fprintf(w, "%s %s %s\n", StackLabel(k.StackID()), resolver.Resolve(k.Instr()), get(s)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := write(miW, func(s instrleak.Scores) string { return fmt.Sprintf("%.6f", s.MutualInformation) }); err != nil {
		return err
	}
	if err := write(minEntW, func(s instrleak.Scores) string { return fmt.Sprintf("%.6f", s.MinEntropy) }); err != nil {
		return err
	}
	if err := write(condGuessW, func(s instrleak.Scores) string { return fmt.Sprintf("%.6f", s.CondGuessEntropy) }); err != nil {
		return err
	}
	if err := write(minCondGuessW, func(s instrleak.Scores) string {
		return fmt.Sprintf("%.6f %s", s.MinCondGuessEntropy, digestHex(s.MinCondGuessDigest))
	}); err != nil {
		return err
	}
	return nil
}
