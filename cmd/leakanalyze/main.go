// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command leakanalyze runs the side-channel leakage analyzers
// over a directory of binary traces.
//
// leakanalyze expects a directory produced by leakpreprocess:
//
//	leakanalyze -config config.json -testcases traces/
//
// where traces/ holds an optional "prefix.bin" shared prefix and one
// "<id>.bin" file per testcase, numbered from 0.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/aclements/leakanalyze/analyzerconfig"
	"github.com/aclements/leakanalyze/analyzerlog"
	"github.com/aclements/leakanalyze/callstackleak"
	"github.com/aclements/leakanalyze/cfgleak"
	"github.com/aclements/leakanalyze/instrleak"
	"github.com/aclements/leakanalyze/internal/binio"
	"github.com/aclements/leakanalyze/procmon"
	"github.com/aclements/leakanalyze/report"
	"github.com/aclements/leakanalyze/symresolve"
	"github.com/aclements/leakanalyze/tcset"
	"github.com/aclements/leakanalyze/tracefile"
	"github.com/aclements/leakanalyze/tracefmt"
)

func main() {
	var (
		flagConfig    = flag.String("config", "", "analyzer configuration `file` (JSON)")
		flagTestcases = flag.String("testcases", ".", "testcase trace `directory`")
	)
	flag.Parse()
	if flag.NArg() > 0 || *flagConfig == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := analyzerconfig.LoadFile(*flagConfig)
	if err != nil {
		log.Fatal(err)
	}
	lg := analyzerlog.NewStd(cfg.General.Logger.Severity())

	mon := procmon.New(cfg.General.Monitor.Interval(), lg)
	defer mon.LogSummary()

	testcases, err := discoverTestcases(*flagTestcases)
	if err != nil {
		log.Fatal(err)
	}
	lg.Log(analyzerlog.Info, "found %d testcase trace(s) in %s", len(testcases), *flagTestcases)

	resolver := buildResolver(cfg)

	for _, mod := range cfg.AnalysisModules {
		if err := runModule(mod, testcases, resolver, lg); err != nil {
			log.Fatalf("analysis module %s: %v", mod.Kind, err)
		}
	}
}

// buildResolver wires symresolve.Table from any configured map-files
// or map-directory; falls back to report.PlainResolver
// when none are configured.
func buildResolver(cfg analyzerconfig.Config) report.Resolver {
	tbl := symresolve.New()
	var any bool
	for _, mod := range cfg.AnalysisModules {
		for _, mf := range mod.ModuleOptions.MapFiles {
			if err := tbl.LoadMapFile(0, mf); err == nil {
				any = true
			}
		}
		if mod.ModuleOptions.MapDirectory != "" {
			if err := tbl.LoadMapDirectory(mod.ModuleOptions.MapDirectory); err == nil {
				any = true
			}
		}
	}
	if !any {
		return report.PlainResolver
	}
	return tbl
}

var testcaseFileRE = regexp.MustCompile(`^(\d+)\.bin$`)

// testcaseFile is one discovered testcase trace, paired with its
// numeric id (tcset.ID) derived from the filename.
type testcaseFile struct {
	id   tcset.ID
	path string
}

// discoverTestcases scans dir for an optional "prefix.bin" and every
// "<id>.bin" testcase file, returning File handles sharing the decoded
// prefix (tracefile's whole reason for existing), sorted ascending by
// id (cfgleak.Engine.AddTrace requires this order).
func discoverTestcases(dir string) ([]*tracefile.File, error) {
	prefix := tracefile.EmptyPrefix()
	if fi, err := os.Stat(filepath.Join(dir, "prefix.bin")); err == nil && !fi.IsDir() {
		r, closer, err := binio.OpenFileReader(filepath.Join(dir, "prefix.bin"))
		if err != nil {
			return nil, err
		}
		p, err := tracefile.DecodePrefix(r)
		closer.Close()
		if err != nil {
			return nil, err
		}
		prefix = p
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("leakanalyze: %w", err)
	}
	var files []testcaseFile
	for _, e := range entries {
		m := testcaseFileRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.ParseUint(m[1], 10, 32)
		files = append(files, testcaseFile{tcset.ID(n), filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].id < files[j].id })

	out := make([]*tracefile.File, len(files))
	for i, f := range files {
		out[i] = tracefile.New(prefix, tracefile.NewFileBody(f.path))
	}
	return out, nil
}

// readEntries materializes every tracefmt.Entry of a testcase file,
// prefix included; the core engines' AddTrace signatures take a
// []tracefmt.Entry rather than an iterator.
func readEntries(f *tracefile.File) ([]tracefmt.Entry, error) {
	it, err := f.IterWithPrefix()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var entries []tracefmt.Entry
	for it.Next() {
		entries = append(entries, copyEntry(it.Entry()))
	}
	return entries, it.Err()
}

// copyEntry returns a freshly allocated copy of e. IterWithPrefix's decoder
// is non-allocating: it reuses one scratch instance per entry kind, valid
// only until the next Next call, so every entry retained past that call
// must be copied out of the scratch space first.
func copyEntry(e tracefmt.Entry) tracefmt.Entry {
	switch e := e.(type) {
	case *tracefmt.HeapAllocation:
		cp := *e
		return &cp
	case *tracefmt.HeapFree:
		cp := *e
		return &cp
	case *tracefmt.StackAllocation:
		cp := *e
		return &cp
	case *tracefmt.Branch:
		cp := *e
		return &cp
	case *tracefmt.ImageMemoryAccess:
		cp := *e
		return &cp
	case *tracefmt.HeapMemoryAccess:
		cp := *e
		return &cp
	case *tracefmt.StackMemoryAccess:
		cp := *e
		return &cp
	}
	return e
}

func runModule(mod analyzerconfig.AnalysisModule, files []*tracefile.File, resolver report.Resolver, lg analyzerlog.Logger) error {
	if mod.ModuleOptions.OutputDirectory == "" && mod.Kind != "passthrough" {
		return fmt.Errorf("module-options.output-directory is required")
	}
	if mod.Kind != "passthrough" {
		if err := os.MkdirAll(mod.ModuleOptions.OutputDirectory, 0755); err != nil {
			return err
		}
	}

	switch mod.Kind {
	case "instruction-memory-access-trace-leakage":
		return runInstrLeak(mod, files, resolver, lg)
	case "call-stack-memory-access-trace-leakage":
		return runCallStackLeak(mod, files, resolver, lg)
	case "control-flow-leakage":
		return runCFGLeak(mod, files, resolver, lg)
	case "dump":
		return runDump(mod, files, lg)
	case "passthrough":
		return nil
	default:
		return fmt.Errorf("unrecognized analysis module kind %q", mod.Kind)
	}
}

func runInstrLeak(mod analyzerconfig.AnalysisModule, files []*tracefile.File, resolver report.Resolver, lg analyzerlog.Logger) error {
	eng := instrleak.New(mod.ModuleOptions.DumpFullData)
	if err := forEachTestcase(files, func(id tcset.ID, entries []tracefmt.Entry) error {
		eng.AddTrace(id, entries)
		return nil
	}); err != nil {
		return err
	}
	res := eng.Finish(lg)
	return writeTabular(mod, func(w *outputSet) error {
		if mod.ModuleOptions.Format() == "txt" {
			mi, me, cg, mcg := w.open("mi.txt"), w.open("min-entropy.txt"), w.open("cond-guess.txt"), w.open("min-cond-guess.txt")
			return report.WriteInstrText(mi, me, cg, mcg, res, resolver)
		}
		return report.WriteInstrCSV(w.open("instructions.csv"), res, resolver)
	})
}

func runCallStackLeak(mod analyzerconfig.AnalysisModule, files []*tracefile.File, resolver report.Resolver, lg analyzerlog.Logger) error {
	eng := callstackleak.New(mod.ModuleOptions.DumpFullData)
	if err := forEachTestcase(files, func(id tcset.ID, entries []tracefmt.Entry) error {
		eng.AddTrace(id, entries, lg)
		return nil
	}); err != nil {
		return err
	}
	res := eng.Finish(lg)

	stackSeen := make(map[uint64]bool)
	for k := range res.ByStack {
		stackSeen[k.StackID()] = true
	}
	var stackIDs []uint64
	for id := range stackSeen {
		stackIDs = append(stackIDs, id)
	}

	return writeTabular(mod, func(w *outputSet) error {
		if err := report.WriteCallStacks(w.open("call-stacks.txt"), eng, stackIDs, resolver); err != nil {
			return err
		}
		mi, me, cg, mcg := w.open("mi.txt"), w.open("min-entropy.txt"), w.open("cond-guess.txt"), w.open("min-cond-guess.txt")
		return report.WriteCallStackInstrText(mi, me, cg, mcg, res, resolver)
	})
}

func runCFGLeak(mod analyzerconfig.AnalysisModule, files []*tracefile.File, resolver report.Resolver, lg analyzerlog.Logger) error {
	eng := cfgleak.New(lg)
	if err := forEachTestcase(files, func(id tcset.ID, entries []tracefmt.Entry) error {
		return eng.AddTrace(id, entries)
	}); err != nil {
		return err
	}

	leaks := eng.Leaks()
	cfgLeaks := make([]report.CFGLeak, 0, len(leaks))
	for k, hashes := range leaks {
		cfgLeaks = append(cfgLeaks, report.CFGLeak{StackID: k.StackID, Instr: resolver.Resolve(k.Instr), UniqueHashes: len(hashes)})
	}

	return writeTabular(mod, func(w *outputSet) error {
		if err := report.WriteCFGInstructions(w.open("instructions.txt"), cfgLeaks); err != nil {
			return err
		}
		if mod.ModuleOptions.DumpFullData {
			return eng.Dump(w.open("call-tree-dump.txt"))
		}
		return nil
	})
}

func runDump(mod analyzerconfig.AnalysisModule, files []*tracefile.File, lg analyzerlog.Logger) error {
	return writeTabular(mod, func(w *outputSet) error {
		out := w.open("dump.txt")
		return forEachTestcase(files, func(id tcset.ID, entries []tracefmt.Entry) error {
			for _, e := range entries {
				if _, err := fmt.Fprintf(out, "%d: %+v\n", id, e); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// forEachTestcase decodes and feeds every testcase's entries through fn
// in ascending id order (required by cfgleak, harmless for the other,
// parallel-safe engines).
func forEachTestcase(files []*tracefile.File, fn func(id tcset.ID, entries []tracefmt.Entry) error) error {
	for i, f := range files {
		entries, err := readEntries(f)
		if err != nil {
			return err
		}
		if err := fn(tcset.ID(i), entries); err != nil {
			return err
		}
	}
	return nil
}

// outputSet lazily opens files under one module's output directory and
// closes them all together. Each file is created when it is opened, so
// after an error the files opened so far remain with whatever was
// written to them, and files never opened are absent.
type outputSet struct {
	dir   string
	files []*os.File
	err   error
}

func (w *outputSet) open(name string) *os.File {
	if w.err != nil {
		return nil
	}
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		w.err = err
		return nil
	}
	w.files = append(w.files, f)
	return f
}

func writeTabular(mod analyzerconfig.AnalysisModule, fn func(*outputSet) error) error {
	w := &outputSet{dir: mod.ModuleOptions.OutputDirectory}
	err := fn(w)
	for _, f := range w.files {
		f.Close()
	}
	if err != nil {
		return err
	}
	return w.err
}
