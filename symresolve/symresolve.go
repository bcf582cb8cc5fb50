// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symresolve is the default symbol-resolver collaborator: it
// turns an (image, offset) pair into a human-readable label for report's
// text/CSV output, demangling C++/Rust names along the way. The hot
// scoring paths in instrleak, callstackleak, and cfgleak never call it.
//
// Each image's symbol ranges are sorted once, lazily, and looked up with
// sort.Search, keyed by the configured map-files/map-directory sources.
package symresolve

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ianlancetaylor/demangle"

	"github.com/aclements/leakanalyze/tracefmt"
)

type symbol struct {
	lo, hi uint64
	name   string
}

type imageTable struct {
	name string
	syms []symbol
	// sorted once, lazily, the first time Resolve is called; map files
	// are read-mostly after initialization.
	sorted bool
}

// Table resolves instruction ids to demangled "image+offset (symbol)"
// labels. The zero value is an empty table that falls back to raw hex
// for every image.
type Table struct {
	images map[tracefmt.ImageID]*imageTable
}

// New returns an empty Table. Load map files into it with LoadMapFile or
// LoadMapDirectory before resolving.
func New() *Table {
	return &Table{images: make(map[tracefmt.ImageID]*imageTable)}
}

// RegisterImage records the display name of an image so unresolved
// offsets still print something better than a bare id.
func (t *Table) RegisterImage(id tracefmt.ImageID, name string) {
	t.image(id).name = name
}

func (t *Table) image(id tracefmt.ImageID) *imageTable {
	img, ok := t.images[id]
	if !ok {
		img = &imageTable{}
		t.images[id] = img
	}
	return img
}

// LoadMapFile reads a symbol map file for image id: lines of the form
// "<lo> <hi> <name>", one symbol range per line. lo and hi are parsed as Go
// integer literals, so hex values need a "0x" prefix. This is the
// map-files source of analysis.modules[].module-options
// config.
func (t *Table) LoadMapFile(id tracefmt.ImageID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("symresolve: %w", err)
	}
	defer f.Close()

	img := t.image(id)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		lo, err1 := strconv.ParseUint(fields[0], 0, 64)
		hi, err2 := strconv.ParseUint(fields[1], 0, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		img.syms = append(img.syms, symbol{lo, hi, strings.Join(fields[2:], " ")})
	}
	img.sorted = false
	return sc.Err()
}

// LoadMapDirectory loads every "*.map" file in dir, keying each by the
// numeric image id in its basename (e.g. "3.map" registers image 3).
func (t *Table) LoadMapDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("symresolve: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".map" {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".map")
		n, err := strconv.Atoi(base)
		if err != nil {
			continue
		}
		if err := t.LoadMapFile(tracefmt.ImageID(n), filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (img *imageTable) lookup(offset uint32) (symbol, bool) {
	if !img.sorted {
		sort.Slice(img.syms, func(i, j int) bool { return img.syms[i].lo < img.syms[j].lo })
		img.sorted = true
	}
	off := uint64(offset)
	i := sort.Search(len(img.syms), func(i int) bool { return off < img.syms[i].hi })
	if i < len(img.syms) && img.syms[i].lo <= off && off < img.syms[i].hi {
		return img.syms[i], true
	}
	return symbol{}, false
}

// Resolve implements report.Resolver, formatting instr as
// "image_name+offset (symbol)" when a map entry covers it, demangling
// mangled C++/Rust names, or falling back to the raw instruction id.
func (t *Table) Resolve(instr tracefmt.InstructionID) string {
	id, offset := instr.Image(), instr.Offset()
	img, ok := t.images[id]
	if !ok {
		return instr.String()
	}
	name := img.name
	if name == "" {
		name = fmt.Sprintf("image%d", id)
	}
	sym, found := img.lookup(offset)
	if !found {
		return fmt.Sprintf("%s+0x%x", name, offset)
	}
	return fmt.Sprintf("%s+0x%x (%s)", name, offset, demangle.Filter(sym.name))
}
