// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package analyzerconfig decodes the pipeline's nested configuration
// mapping into plain option structs the cmd/leak* binaries
// pass to the engines. No third-party mapping/config library appears
// anywhere in the example corpus (see DESIGN.md); encoding/json is the
// nested-mapping decoder every command here already has on hand, so the
// config file is plain JSON rather than a fabricated YAML dependency.
package analyzerconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aclements/leakanalyze/analyzerlog"
)

// StageOptions is the *.options shape shared by testcase.module,
// trace.module, and preprocess.module.
type StageOptions struct {
	InputBufferSize    int `json:"input-buffer-size"`
	MaxParallelThreads int `json:"max-parallel-threads"`
}

func (o StageOptions) normalized() StageOptions {
	if o.InputBufferSize <= 0 {
		o.InputBufferSize = 1
	}
	if o.MaxParallelThreads <= 0 {
		o.MaxParallelThreads = 1
	}
	return o
}

// ModuleOptions is analysis.modules[].module-options.
type ModuleOptions struct {
	OutputDirectory string   `json:"output-directory"`
	OutputFormat    string   `json:"output-format"` // "csv" (default) or "txt"
	DumpFullData    bool     `json:"dump-full-data"`
	MapFiles        []string `json:"map-files"`
	MapDirectory    string   `json:"map-directory"`
}

// Format returns the configured output format, defaulting to csv.
func (o ModuleOptions) Format() string {
	if o.OutputFormat == "" {
		return "csv"
	}
	return o.OutputFormat
}

// AnalysisModule is one entry of analysis.modules[].
type AnalysisModule struct {
	Kind          string        `json:"kind"` // e.g. instruction-memory-access-trace-leakage
	ModuleOptions ModuleOptions `json:"module-options"`
}

// LoggerOptions is general.logger.
type LoggerOptions struct {
	LogLevel string `json:"log-level"`
	File     string `json:"file"`
}

// Severity parses LogLevel into an analyzerlog.Severity, defaulting to
// Info for an empty or unrecognized level.
func (o LoggerOptions) Severity() analyzerlog.Severity {
	switch o.LogLevel {
	case "debug":
		return analyzerlog.Debug
	case "warning":
		return analyzerlog.Warning
	case "error":
		return analyzerlog.Error
	case "result":
		return analyzerlog.Result
	default:
		return analyzerlog.Info
	}
}

// MonitorOptions is general.monitor.
type MonitorOptions struct {
	Enable     bool `json:"enable"`
	SampleRate int  `json:"sample-rate"` // samples per second; 0 means disabled
}

// Interval converts SampleRate into a sampling period, or 0 if disabled.
func (o MonitorOptions) Interval() time.Duration {
	if !o.Enable || o.SampleRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(o.SampleRate)
}

// GeneralOptions is the general top-level section.
type GeneralOptions struct {
	Logger  LoggerOptions  `json:"logger"`
	Monitor MonitorOptions `json:"monitor"`
}

// Config is the complete pipeline configuration: which module runs each
// stage, that module's options, the analysis modules to run, and general
// logging/monitoring options.
type Config struct {
	TestcaseModule    string           `json:"testcase.module"`
	TraceModule       string           `json:"trace.module"`
	PreprocessModule  string           `json:"preprocess.module"`
	TestcaseOptions   StageOptions     `json:"testcase.options"`
	TraceOptions      StageOptions     `json:"trace.options"`
	PreprocessOptions StageOptions     `json:"preprocess.options"`
	AnalysisModules   []AnalysisModule `json:"analysis.modules"`
	General           GeneralOptions   `json:"general"`
}

// Load decodes a Config from r.
func Load(r io.Reader) (Config, error) {
	var c Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("analyzerconfig: %w", err)
	}
	c.TestcaseOptions = c.TestcaseOptions.normalized()
	c.TraceOptions = c.TraceOptions.normalized()
	c.PreprocessOptions = c.PreprocessOptions.normalized()
	return c, nil
}

// LoadFile opens path and decodes a Config from it.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("analyzerconfig: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Module returns the first analysis module of the given kind, or ok=false
// if none is configured.
func (c Config) Module(kind string) (AnalysisModule, bool) {
	for _, m := range c.AnalysisModules {
		if m.Kind == kind {
			return m, true
		}
	}
	return AnalysisModule{}, false
}
