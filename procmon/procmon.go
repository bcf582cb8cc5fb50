// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package procmon is the resource/process monitor collaborator
// supplementing: a tiny sampling goroutine tracking peak RSS, reported
// with elapsed wall-clock time and GC totals, in the same small-single-purpose-helper-type
// style as the scale package. It has no scoring role; cmd/leakanalyze
// uses it only to emit a Result-level summary line on exit.
package procmon

import (
	"runtime"
	"sync"
	"time"

	"github.com/aclements/leakanalyze/analyzerlog"
)

// Sample is one point-in-time resource reading.
type Sample struct {
	Elapsed time.Duration
	PeakRSS uint64 // bytes, from runtime.MemStats.Sys as a process-RSS proxy
	GCPause time.Duration
	NumGC   uint32
}

// Monitor samples process resource usage at a fixed interval until
// Stop is called. The zero value is not usable; use New.
type Monitor struct {
	interval time.Duration
	log      analyzerlog.Logger
	start    time.Time

	mu      sync.Mutex
	peakRSS uint64

	stop chan struct{}
	done chan struct{}
}

// New returns a Monitor that samples every interval. A non-positive
// interval disables sampling (Stop still works and Latest still reports
// one reading taken on demand), matching general.monitor.enable=false.
func New(interval time.Duration, log analyzerlog.Logger) *Monitor {
	if log == nil {
		log = analyzerlog.Nop
	}
	m := &Monitor{interval: interval, log: log, start: time.Now(), stop: make(chan struct{}), done: make(chan struct{})}
	if interval > 0 {
		go m.run()
	} else {
		close(m.done)
	}
	return m
}

func (m *Monitor) run() {
	defer close(m.done)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.sample()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.mu.Lock()
	if ms.Sys > m.peakRSS {
		m.peakRSS = ms.Sys
	}
	m.mu.Unlock()
}

// Stop halts sampling and blocks until the sampling goroutine (if any)
// has exited.
func (m *Monitor) Stop() {
	select {
	case <-m.done:
		return
	default:
	}
	close(m.stop)
	<-m.done
}

// Latest takes one final sample and returns the cumulative reading.
func (m *Monitor) Latest() Sample {
	m.sample()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.mu.Lock()
	peak := m.peakRSS
	m.mu.Unlock()
	return Sample{
		Elapsed: time.Since(m.start),
		PeakRSS: peak,
		GCPause: time.Duration(ms.PauseTotalNs),
		NumGC:   ms.NumGC,
	}
}

// LogSummary emits the final reading as a single Result-severity line,
// the only place procmon touches the logger contract.
func (m *Monitor) LogSummary() {
	s := m.Latest()
	m.log.Log(analyzerlog.Result, "elapsed=%s peak-rss=%dMB gc-pause=%s gc-cycles=%d",
		s.Elapsed.Round(time.Millisecond), s.PeakRSS/(1<<20), s.GCPause.Round(time.Microsecond), s.NumGC)
}
