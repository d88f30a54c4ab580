package resolver

import (
	"fmt"

	"jspack/internal/core/errors"
)

// Step names recorded by Trace.
const (
	StepParseSpecifier  = "parse_specifier"
	StepApplyAlias      = "apply_alias"
	StepFindPackageDir  = "find_package_dir"
	StepReadPackageJSON = "read_package_json"
	StepMatchExportsKey = "match_exports_key"
	StepMatchImportsKey = "match_imports_key"
	StepTryFile         = "try_file"
	StepTryExtensions   = "try_extensions"
	StepTryDirectory    = "try_directory"
	StepMainField       = "main_field"
	StepIndexFallback   = "index_fallback"
	StepWorkspace       = "workspace_lookup"
	StepRealpath        = "realpath"
)

type TraceStep struct {
	Name   string
	OK     bool
	Detail string
}

type TraceWarning struct {
	Code    errors.ErrorCode
	Message string
}

// Trace is the diagnostic record of one resolution.
type Trace struct {
	Importer  string
	Specifier string
	Steps     []TraceStep
	Warnings  []TraceWarning
	Result    Result
}

// tracer is nil on the hot path; every method is nil-safe.
type tracer struct {
	t *Trace
}

func (tr *tracer) step(name string, ok bool, format string, args ...interface{}) {
	if tr == nil {
		return
	}
	tr.t.Steps = append(tr.t.Steps, TraceStep{Name: name, OK: ok, Detail: fmt.Sprintf(format, args...)})
}

func (tr *tracer) warn(code errors.ErrorCode, format string, args ...interface{}) {
	if tr == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	for _, w := range tr.t.Warnings {
		if w.Code == code && w.Message == msg {
			return
		}
	}
	tr.t.Warnings = append(tr.t.Warnings, TraceWarning{Code: code, Message: msg})
}

func (tr *tracer) enabled() bool { return tr != nil }
