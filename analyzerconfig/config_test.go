// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analyzerconfig

import (
	"strings"
	"testing"

	"github.com/aclements/leakanalyze/analyzerlog"
)

const sampleConfig = `{
  "testcase.module": "dir",
  "trace.module": "binary",
  "preprocess.module": "passthrough",
  "analysis.modules": [
    {
      "kind": "instruction-memory-access-trace-leakage",
      "module-options": {
        "output-directory": "/tmp/out",
        "dump-full-data": true,
        "map-files": ["a.map", "b.map"]
      }
    }
  ],
  "general": {
    "logger": {"log-level": "warning"},
    "monitor": {"enable": true, "sample-rate": 4}
  }
}`

func TestLoadDecodesAllSections(t *testing.T) {
	c, err := Load(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	if c.TestcaseModule != "dir" || c.TraceModule != "binary" {
		t.Fatalf("unexpected module selection: %+v", c)
	}
	mod, ok := c.Module("instruction-memory-access-trace-leakage")
	if !ok {
		t.Fatal("expected to find the configured analysis module")
	}
	if mod.ModuleOptions.OutputDirectory != "/tmp/out" {
		t.Fatalf("output-directory = %q", mod.ModuleOptions.OutputDirectory)
	}
	if !mod.ModuleOptions.DumpFullData {
		t.Fatal("expected dump-full-data = true")
	}
	if got, want := mod.ModuleOptions.Format(), "csv"; got != want {
		t.Fatalf("Format() = %q, want default %q", got, want)
	}
	if len(mod.ModuleOptions.MapFiles) != 2 {
		t.Fatalf("map-files = %v", mod.ModuleOptions.MapFiles)
	}
	if c.General.Logger.Severity() != analyzerlog.Warning {
		t.Fatalf("Severity() = %v, want Warning", c.General.Logger.Severity())
	}
	if got, want := c.General.Monitor.Interval(), 250*1_000_000; int64(got) != int64(want) {
		t.Fatalf("Interval() = %v, want 250ms", got)
	}
}

func TestStageOptionsNormalizesZeroValues(t *testing.T) {
	c, err := Load(strings.NewReader(`{"testcase.options": {}}`))
	if err != nil {
		t.Fatal(err)
	}
	if c.TestcaseOptions.InputBufferSize != 1 || c.TestcaseOptions.MaxParallelThreads != 1 {
		t.Fatalf("normalized options = %+v, want both 1", c.TestcaseOptions)
	}
}

func TestMonitorDisabledByDefault(t *testing.T) {
	c, err := Load(strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if c.General.Monitor.Interval() != 0 {
		t.Fatal("expected disabled monitor to report a zero interval")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	if _, err := Load(strings.NewReader(`{"bogus-key": 1}`)); err == nil {
		t.Fatal("expected an error for an unrecognized top-level key")
	}
}
