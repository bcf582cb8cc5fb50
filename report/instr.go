// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/aclements/leakanalyze/instrleak"
	"github.com/aclements/leakanalyze/tracefmt"
)

// Resolver turns a numeric instruction id into a human-readable label
// for text/CSV output. The hot scoring paths never call it; only report
// does, since resolution is used only for human-readable outputs.
type Resolver interface {
	Resolve(instr tracefmt.InstructionID) string
}

type plainResolver struct{}

func (plainResolver) Resolve(instr tracefmt.InstructionID) string { return instr.String() }

// PlainResolver is the default Resolver, printing the raw instruction id.
var PlainResolver Resolver = plainResolver{}

// digestHex prints the first 8 bytes of a 16-byte digest as uppercase
// hex.
func digestHex(d [16]byte) string {
	return fmt.Sprintf("%02X%02X%02X%02X%02X%02X%02X%02X",
		d[0], d[1], d[2], d[3], d[4], d[5], d[6], d[7])
}

// WriteInstrText writes the four parallel instruction-leakage text
// files: MI and min-entropy sorted descending with instruction-id
// tiebreak, the two guessing entropies sorted ascending.
func WriteInstrText(miW, minEntW, condGuessW, minCondGuessW io.Writer, res instrleak.Results, resolver Resolver) error {
	if resolver == nil {
		resolver = PlainResolver
	}
	writers := map[string]io.Writer{
		"mi": miW, "min-entropy": minEntW, "cond-guess": condGuessW, "min-cond-guess": minCondGuessW,
	}
	for measure, w := range writers {
		ids := instrleak.SortedInstructions(res, measure)
		for _, id := range ids {
			s := res.ByInstr[id]
			var err error
			switch measure {
			case "mi":
				_, err = fmt.Fprintf(w, "%s %.6f\n", resolver.Resolve(id), s.MutualInformation)
			case "min-entropy":
				_, err = fmt.Fprintf(w, "%s %.6f\n", resolver.Resolve(id), s.MinEntropy)
			case "cond-guess":
				_, err = fmt.Fprintf(w, "%s %.6f\n", resolver.Resolve(id), s.CondGuessEntropy)
			case "min-cond-guess":
				_, err = fmt.Fprintf(w, "%s %.6f %s\n", resolver.Resolve(id), s.MinCondGuessEntropy, digestHex(s.MinCondGuessDigest))
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteInstrCSV writes the single six-column CSV alternative of the four
// text files, ";"-separated regardless of locale.
func WriteInstrCSV(w io.Writer, res instrleak.Results, resolver Resolver) error {
	if resolver == nil {
		resolver = PlainResolver
	}
	ids := instrleak.SortedInstructions(res, "mi")
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if _, err := fmt.Fprintf(w, "instruction;mi;min-entropy;cond-guess;min-cond-guess;min-cond-guess-digest\n"); err != nil {
		return err
	}
	for _, id := range ids {
		s := res.ByInstr[id]
		_, err := fmt.Fprintf(w, "%s;%.6f;%.6f;%.6f;%.6f;%s\n",
			resolver.Resolve(id), s.MutualInformation, s.MinEntropy, s.CondGuessEntropy, s.MinCondGuessEntropy, digestHex(s.MinCondGuessDigest))
		if err != nil {
			return err
		}
	}
	return nil
}
