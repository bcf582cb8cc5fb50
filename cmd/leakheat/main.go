// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command leakheat renders the instruction-level mutual-information
// scores of instrleak as an SVG heat map: one row for each of the -limit
// instructions with the highest MI (instructions with zero MI included),
// shaded by MI, the same row-per-hot-location layout cmd/memheat uses
// for memory load latency.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/aclements/leakanalyze/instrleak"
	"github.com/aclements/leakanalyze/report"
	"github.com/aclements/leakanalyze/scale"
	"github.com/aclements/leakanalyze/symresolve"
	"github.com/aclements/leakanalyze/tcset"
	"github.com/aclements/leakanalyze/tracefile"
	"github.com/aclements/leakanalyze/tracefmt"
)

const (
	marginLeft = 10.0
	barHeight  = 18.0
	barGap     = 4.0
	barWidth   = 300.0
	labelGap   = 8.0
	fontSize   = 12.0
)

func main() {
	var (
		flagTestcases = flag.String("testcases", ".", "testcase trace `directory`")
		flagOut       = flag.String("o", "heat.svg", "output SVG `file`")
		flagLimit     = flag.Int("limit", 30, "render at most N hottest instructions")
		flagMapDir    = flag.String("map-directory", "", "optional symresolve map `directory`")
	)
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	entries, err := os.ReadDir(*flagTestcases)
	if err != nil {
		log.Fatal(err)
	}
	prefix := tracefile.EmptyPrefix()

	eng := instrleak.New(false)
	n := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".bin" || e.Name() == "prefix.bin" {
			continue
		}
		f := tracefile.New(prefix, tracefile.NewFileBody(filepath.Join(*flagTestcases, e.Name())))
		it, err := f.IterWithPrefix()
		if err != nil {
			log.Fatal(err)
		}
		var trace []tracefmt.Entry
		for it.Next() {
			// The iterator reuses one instance per entry kind; instrleak
			// reads only memory accesses, so those are copied out.
			e := it.Entry()
			switch v := e.(type) {
			case *tracefmt.ImageMemoryAccess:
				cp := *v
				e = &cp
			case *tracefmt.HeapMemoryAccess:
				cp := *v
				e = &cp
			case *tracefmt.StackMemoryAccess:
				cp := *v
				e = &cp
			}
			trace = append(trace, e)
		}
		if err := it.Err(); err != nil {
			log.Fatal(err)
		}
		it.Close()
		eng.AddTrace(tcset.ID(n), trace)
		n++
	}
	res := eng.Finish(nil)

	var resolver report.Resolver = report.PlainResolver
	if *flagMapDir != "" {
		tbl := symresolve.New()
		if err := tbl.LoadMapDirectory(*flagMapDir); err != nil {
			log.Fatal(err)
		}
		resolver = tbl
	}

	ids := instrleak.SortedInstructions(res, "mi")
	if len(ids) > *flagLimit {
		ids = ids[:*flagLimit]
	}
	var maxMI float64
	for _, id := range ids {
		if s := res.ByInstr[id].MutualInformation; s > maxMI {
			maxMI = s
		}
	}
	if maxMI == 0 {
		maxMI = 1
	}

	out, err := os.Create(*flagOut)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()

	metrics := newLabelMetrics(fontSize)
	labelWidth := 0.0
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = resolver.Resolve(id)
		if w := metrics.Width(labels[i]); w > labelWidth {
			labelWidth = w
		}
	}

	barLeft := marginLeft + labelWidth + labelGap
	width := int(barLeft + barWidth + marginLeft)
	height := int(marginLeft*2 + float64(len(ids))*(barHeight+barGap))

	svg := NewSVG(out, width, height)
	shade := scale.NewPower([]float64{0, maxMI}, 1/2.0)

	y := marginLeft
	for i, id := range ids {
		s := res.ByInstr[id]
		svg.SetFill(nil)
		svg.Text(marginLeft, y+barHeight/2+metrics.Ascent()/3, AnchorStart, labels[i])

		intensity := shade.Of(s.MutualInformation)
		svg.SetFill(heatColor(intensity))
		svg.Rect(barLeft, y, barWidth*intensity, barHeight).Fill()

		svg.SetStroke(grayBorder)
		svg.Rect(barLeft, y, barWidth, barHeight).Stroke()

		y += barHeight + barGap
	}
	if err := svg.Done(); err != nil {
		log.Fatal(err)
	}
	log.Printf("rendered %d instruction(s) to %s; %d instruction(s) leak in total", len(ids), *flagOut, totalLeaking(res))
}

func totalLeaking(res instrleak.Results) int {
	n := 0
	for _, s := range res.ByInstr {
		if s.MutualInformation > 0 {
			n++
		}
	}
	return n
}
