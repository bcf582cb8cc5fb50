// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package analyzerlog is the minimal logger contract the core analysis
// engines expect from their host pipeline: five severities,
// synchronous logging, no buffering or async delivery the core needs to
// reason about.
package analyzerlog

import (
	"fmt"
	"log"
	"os"
)

// Severity is one of the five levels the pipeline's logger config
// (general.logger.log-level) recognizes.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Result
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Result:
		return "result"
	}
	return "unknown"
}

// A Logger accepts synchronous, severity-tagged messages. The analysis
// engines only ever log Warning (balance conditions, and the "too few
// testcases" MI warning in instrleak and callstackleak); Result is
// reserved for final pipeline summaries.
type Logger interface {
	Log(sev Severity, format string, args ...interface{})
}

// Std is a Logger backed by the standard library's *log.Logger, filtering
// out messages below Level.
type Std struct {
	L     *log.Logger
	Level Severity
}

// NewStd returns a Std logger writing to os.Stderr at the given minimum
// level.
func NewStd(level Severity) *Std {
	return &Std{L: log.New(os.Stderr, "", log.LstdFlags), Level: level}
}

func (s *Std) Log(sev Severity, format string, args ...interface{}) {
	if sev < s.Level {
		return
	}
	s.L.Printf("[%s] %s", sev, fmt.Sprintf(format, args...))
}

// Discard is a Logger that drops every message; useful for tests that
// exercise warning paths without printing.
type Discard struct{}

func (Discard) Log(Severity, string, ...interface{}) {}

// Nop is a process-wide Logger that discards everything, handy as a
// zero-value default when callers don't wire one in.
var Nop Logger = Discard{}
