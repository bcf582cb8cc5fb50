// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package procmon

import (
	"testing"
	"time"

	"github.com/aclements/leakanalyze/analyzerlog"
)

func TestDisabledMonitorStillReportsOnDemand(t *testing.T) {
	m := New(0, nil)
	defer m.Stop()
	s := m.Latest()
	if s.Elapsed <= 0 {
		t.Fatal("expected positive elapsed time")
	}
	if s.PeakRSS == 0 {
		t.Fatal("expected a non-zero RSS proxy reading")
	}
}

func TestEnabledMonitorSamplesAndStops(t *testing.T) {
	m := New(time.Millisecond, nil)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	s := m.Latest()
	if s.Elapsed <= 0 {
		t.Fatal("expected positive elapsed time after stop")
	}
}

func TestLogSummaryEmitsResultSeverity(t *testing.T) {
	var gotSev analyzerlog.Severity
	var called bool
	lg := loggerFunc(func(sev analyzerlog.Severity, format string, args ...interface{}) {
		called = true
		gotSev = sev
	})
	m := New(0, lg)
	m.LogSummary()
	if !called {
		t.Fatal("expected LogSummary to log")
	}
	if gotSev != analyzerlog.Result {
		t.Fatalf("severity = %v, want Result", gotSev)
	}
}

type loggerFunc func(sev analyzerlog.Severity, format string, args ...interface{})

func (f loggerFunc) Log(sev analyzerlog.Severity, format string, args ...interface{}) {
	f(sev, format, args...)
}
