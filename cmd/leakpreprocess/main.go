// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command leakpreprocess translates the textual trace grammar (one file
// per testcase, plus an optional shared prefix) into the binary
// tracefmt stream leakanalyze consumes.
//
// Resolution choices the textual grammar leaves open (documented in
// DESIGN.md): a Return record's destination is unknown from the text
// alone, so source and destination are recorded identically; a memory
// access's object id 0 is treated as an image-relative (global/static)
// address and any other object id as a heap block id; every memory
// access is recorded at a fixed 8-byte size, since the grammar carries
// none.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aclements/leakanalyze/internal/binio"
	"github.com/aclements/leakanalyze/texttrace"
	"github.com/aclements/leakanalyze/tracefmt"
)

func main() {
	var (
		flagIn  = flag.String("i", "", "input `directory` of textual trace files (*.txt), plus optional prefix.txt")
		flagOut = flag.String("o", "", "output `directory` for binary traces")
	)
	flag.Parse()
	if flag.NArg() > 0 || *flagIn == "" || *flagOut == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := os.MkdirAll(*flagOut, 0755); err != nil {
		log.Fatal(err)
	}

	entries, err := os.ReadDir(*flagIn)
	if err != nil {
		log.Fatal(err)
	}

	if fi, err := os.Stat(filepath.Join(*flagIn, "prefix.txt")); err == nil && !fi.IsDir() {
		if err := convertFile(filepath.Join(*flagIn, "prefix.txt"), filepath.Join(*flagOut, "prefix.bin")); err != nil {
			log.Fatal(err)
		}
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || e.Name() == "prefix.txt" || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		out := filepath.Join(*flagOut, fmt.Sprintf("%d.bin", n))
		if err := convertFile(filepath.Join(*flagIn, e.Name()), out); err != nil {
			log.Fatalf("%s: %v", e.Name(), err)
		}
		n++
	}
	log.Printf("converted %d testcase trace(s)", n)
}

func convertFile(inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	dec := texttrace.NewDecoder(in)
	w := binio.NewWriter(4096)
	for dec.Next() {
		entry, ok := translate(dec.Record())
		if !ok {
			continue
		}
		tracefmt.Encode(w, entry)
	}
	if err := dec.Err(); err != nil {
		return err
	}
	_, err = out.Write(w.Bytes())
	return err
}

// translate converts one textual-trace record into its tracefmt entry,
// or ok=false for records with no binary representation (Yield has no
// corresponding tracefmt.Tag; nothing downstream observes yield points).
func translate(r texttrace.Record) (tracefmt.Entry, bool) {
	switch v := r.(type) {
	case texttrace.Call:
		dstImage := tracefmt.ImageID(v.DstFile)
		if v.DstExternal {
			dstImage = tracefmt.ImageID(-1)
		}
		return &tracefmt.Branch{
			Taken: true, Type: tracefmt.BranchCall,
			SourceImage: tracefmt.ImageID(v.SrcFile), SourceOffset: uint32(v.SrcLoc),
			DestImage: dstImage, DestOffset: uint32(v.DstLoc),
		}, true
	case texttrace.ReturnAfterCall:
		return &tracefmt.Branch{
			Taken: true, Type: tracefmt.BranchReturn,
			SourceImage: tracefmt.ImageID(v.File), SourceOffset: uint32(v.Loc),
			DestImage: tracefmt.ImageID(v.File), DestOffset: uint32(v.Loc),
		}, true
	case texttrace.ReturnFromBody:
		return &tracefmt.Branch{
			Taken: true, Type: tracefmt.BranchReturn,
			SourceImage: tracefmt.ImageID(v.File), SourceOffset: uint32(v.Loc),
			DestImage: tracefmt.ImageID(v.File), DestOffset: uint32(v.Loc),
		}, true
	case texttrace.Jump:
		return &tracefmt.Branch{
			Taken: true, Type: tracefmt.BranchJump,
			SourceImage: tracefmt.ImageID(v.File), SourceOffset: uint32(v.SrcLoc),
			DestImage: tracefmt.ImageID(v.File), DestOffset: uint32(v.DstLoc),
		}, true
	case texttrace.MemoryAccess:
		if v.ObjID == 0 {
			return &tracefmt.ImageMemoryAccess{
				IsWrite: v.Write, Size: 8,
				InstrImage: tracefmt.ImageID(v.File), InstrOffset: uint32(v.Loc),
				MemImage: tracefmt.ImageID(v.File), MemOffset: uint32(v.Offset),
			}, true
		}
		return &tracefmt.HeapMemoryAccess{
			IsWrite: v.Write, Size: 8,
			InstrImage: tracefmt.ImageID(v.File), InstrOffset: uint32(v.Loc),
			HeapBlockID: int32(v.ObjID), MemOffset: uint32(v.Offset),
		}, true
	case texttrace.Yield:
		return nil, false
	}
	return nil, false
}
