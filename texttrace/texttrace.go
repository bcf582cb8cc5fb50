// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package texttrace decodes the compact textual trace grammar emitted by
// an instrumented target program: semicolon-separated per-line records,
// including an "L|n|line" dictionary-packing scheme for repeated
// records. The tracer that produces this grammar is out of scope here;
// this package owns only the on-disk grammar, decoding it into Records
// that cmd/leakpreprocess translates into the binary tracefmt stream.
//
// Decoder follows the same Next/Record/Err iterator shape used
// elsewhere in this module.
package texttrace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record is one decoded textual-trace entry.
type Record interface {
	isRecord()
}

// Call is a `c;<src_fileId>;<src_loc>;<dst_fileId>;<dst_loc>;<name>` record.
type Call struct {
	SrcFile, SrcLoc int
	DstFile         int // -1 when DstExternal
	DstExternal     bool
	DstLoc          int
	Name            string
}

// ReturnAfterCall is an `R;<fileId>;<loc>` record.
type ReturnAfterCall struct{ File, Loc int }

// ReturnFromBody is an `r;<fileId>;<loc>` record.
type ReturnFromBody struct{ File, Loc int }

// Yield is a `Y;<fileId>;<loc>` record.
type Yield struct{ File, Loc int }

// Jump is a `j;<fileId>;<src_loc>;<dst_loc>` record.
type Jump struct {
	File           int
	SrcLoc, DstLoc int
}

// MemoryAccess is an `m;<r|w>;<fileId>;<loc>;<objId>;<offset>` record.
type MemoryAccess struct {
	Write     bool
	File, Loc int
	ObjID     int
	Offset    int64
}

func (Call) isRecord()            {}
func (ReturnAfterCall) isRecord() {}
func (ReturnFromBody) isRecord()  {}
func (Yield) isRecord()           {}
func (Jump) isRecord()            {}
func (MemoryAccess) isRecord()    {}

// FormatError reports a malformed textual trace line.
type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("texttrace: line %d: %s", e.Line, e.Msg)
}

// dictEntry is one "L|n|line" definition: the stable record text, and
// whether the def line carried a "|<variable_part>" trailing field.
type dictEntry struct {
	text     string
	variable string
	hasVar   bool
}

// Decoder decodes a stream of textual trace records, resolving
// dictionary backreferences (both integer and relative single-char
// forms) as it goes.
//
// The dictionary entry's own line is treated as the stable, interned
// record shape; a "|<variable_part>" suffix on an integer *reference*
// occurrence ("<n>|<variable_part>") overrides the Name/trailing field of
// the expanded record. Packed single-char references carry no suffix. A
// defining "L|n|line" may also itself carry a "|<variable_part>" suffix,
// which simply becomes that record's own trailing field, consistent with
// how a plain (non-dictionary) line would be parsed.
type Decoder struct {
	sc      *bufio.Scanner
	lineNo  int
	dict    map[int]dictEntry
	lastRef int
	cur     Record
	err     error
	queue   []Record
}

// NewDecoder returns a Decoder reading textual trace records from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{sc: bufio.NewScanner(r), dict: make(map[int]dictEntry)}
}

// Next decodes the next record, returning false at end of stream or on
// the first error (see Err).
func (d *Decoder) Next() bool {
	if d.err != nil {
		return false
	}
	if len(d.queue) > 0 {
		d.cur = d.queue[0]
		d.queue = d.queue[1:]
		return true
	}
	for d.sc.Scan() {
		d.lineNo++
		line := d.sc.Text()
		if line == "" {
			continue
		}
		rec, err := d.decodeLine(line)
		if err != nil {
			d.err = err
			return false
		}
		if rec == nil {
			// A pure dictionary definition with no immediate record to
			// surface, or a packed line whose records were all buffered.
			continue
		}
		d.cur = rec
		return true
	}
	if err := d.sc.Err(); err != nil {
		d.err = fmt.Errorf("texttrace: %w", err)
	}
	return false
}

// Record returns the record produced by the most recent call to Next.
func (d *Decoder) Record() Record { return d.cur }

// Err returns the first error encountered, if any.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) decodeLine(line string) (Record, error) {
	if strings.HasPrefix(line, "L|") {
		return d.decodeDictDef(line)
	}
	if isPackedRefLine(line) {
		return d.decodePackedRefs(line)
	}
	ref, variable, _ := strings.Cut(line, "|")
	if n, err := strconv.Atoi(ref); err == nil {
		return d.expandRef(n, variable)
	}
	return parseRecord(line, d.lineNo)
}

// decodeDictDef handles "L|<n>|<line>" possibly followed by
// "|<variable_part>".
func (d *Decoder) decodeDictDef(line string) (Record, error) {
	parts := strings.SplitN(line[len("L|"):], "|", 3)
	if len(parts) < 2 {
		return nil, &FormatError{d.lineNo, "malformed dictionary entry: " + line}
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, &FormatError{d.lineNo, "malformed dictionary id: " + parts[0]}
	}
	entry := dictEntry{text: parts[1]}
	if len(parts) == 3 {
		entry.hasVar = true
		entry.variable = parts[2]
	}
	d.dict[n] = entry
	d.lastRef = n
	rec, err := parseRecord(entry.text, d.lineNo)
	if err != nil {
		return nil, err
	}
	return applyVariable(rec, entry), nil
}

// isPackedRefLine reports whether line consists entirely of single
// relative-reference characters in 'a'..'s'.
func isPackedRefLine(line string) bool {
	if line == "" {
		return false
	}
	for i := 0; i < len(line); i++ {
		if line[i] < 'a' || line[i] > 's' {
			return false
		}
	}
	return true
}

// decodePackedRefs expands a line of packed relative references: each
// byte is one more record, decoded relative to the previously referenced
// dictionary id. The first is returned directly; the rest are queued for
// subsequent Next calls.
func (d *Decoder) decodePackedRefs(line string) (Record, error) {
	var first Record
	for i := 0; i < len(line); i++ {
		delta := int(line[i]) - int('j')
		id := d.lastRef + delta
		rec, err := d.expandRef(id, "")
		if err != nil {
			return nil, err
		}
		d.lastRef = id
		if first == nil {
			first = rec
			continue
		}
		d.queue = append(d.queue, rec)
	}
	return first, nil
}

func (d *Decoder) expandRef(id int, variable string) (Record, error) {
	entry, ok := d.dict[id]
	if !ok {
		return nil, &FormatError{d.lineNo, fmt.Sprintf("reference to undefined dictionary id %d", id)}
	}
	d.lastRef = id
	rec, err := parseRecord(entry.text, d.lineNo)
	if err != nil {
		return nil, err
	}
	if variable != "" {
		entry.hasVar, entry.variable = true, variable
	}
	return applyVariable(rec, entry), nil
}

// applyVariable overrides the trailing dynamic field of rec (currently
// only Call.Name) with entry's variable part, when present.
func applyVariable(rec Record, entry dictEntry) Record {
	if !entry.hasVar {
		return rec
	}
	if c, ok := rec.(Call); ok {
		c.Name = entry.variable
		return c
	}
	return rec
}

func parseRecord(line string, lineNo int) (Record, error) {
	fields := strings.Split(line, ";")
	if len(fields) == 0 {
		return nil, &FormatError{lineNo, "empty record"}
	}
	switch fields[0] {
	case "c":
		if len(fields) < 6 {
			return nil, &FormatError{lineNo, "call record has too few fields: " + line}
		}
		srcFile, err1 := strconv.Atoi(fields[1])
		srcLoc, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			return nil, &FormatError{lineNo, "malformed call source: " + line}
		}
		if fields[3] == "E" {
			return Call{SrcFile: srcFile, SrcLoc: srcLoc, DstFile: -1, DstExternal: true, Name: strings.Join(fields[5:], ";")}, nil
		}
		dstFile, err3 := strconv.Atoi(fields[3])
		dstLoc, err4 := strconv.Atoi(fields[4])
		if err3 != nil || err4 != nil {
			return nil, &FormatError{lineNo, "malformed call destination: " + line}
		}
		return Call{SrcFile: srcFile, SrcLoc: srcLoc, DstFile: dstFile, DstLoc: dstLoc, Name: strings.Join(fields[5:], ";")}, nil
	case "R", "r", "Y":
		if len(fields) < 3 {
			return nil, &FormatError{lineNo, "malformed record: " + line}
		}
		file, err1 := strconv.Atoi(fields[1])
		loc, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			return nil, &FormatError{lineNo, "malformed location: " + line}
		}
		switch fields[0] {
		case "R":
			return ReturnAfterCall{file, loc}, nil
		case "r":
			return ReturnFromBody{file, loc}, nil
		default:
			return Yield{file, loc}, nil
		}
	case "j":
		if len(fields) < 4 {
			return nil, &FormatError{lineNo, "malformed jump: " + line}
		}
		file, err1 := strconv.Atoi(fields[1])
		src, err2 := strconv.Atoi(fields[2])
		dst, err3 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, &FormatError{lineNo, "malformed jump: " + line}
		}
		return Jump{file, src, dst}, nil
	case "m":
		if len(fields) < 6 {
			return nil, &FormatError{lineNo, "malformed memory access: " + line}
		}
		var write bool
		switch fields[1] {
		case "w":
			write = true
		case "r":
			write = false
		default:
			return nil, &FormatError{lineNo, "malformed memory access direction: " + line}
		}
		file, err1 := strconv.Atoi(fields[2])
		loc, err2 := strconv.Atoi(fields[3])
		obj, err3 := strconv.Atoi(fields[4])
		off, err4 := strconv.ParseInt(fields[5], 0, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, &FormatError{lineNo, "malformed memory access: " + line}
		}
		return MemoryAccess{Write: write, File: file, Loc: loc, ObjID: obj, Offset: off}, nil
	}
	return nil, &FormatError{lineNo, "unrecognized record kind: " + line}
}
