package errors

import (
	"fmt"
	"sort"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is a non-fatal finding collected during a build. Builds return
// them in BundleResult.Warnings; fatal conditions are returned as errors.
type Diagnostic struct {
	Code      ErrorCode
	Severity  Severity
	Message   string
	Path      string
	Specifier string
	Line      int
	Column    int
}

func (d Diagnostic) String() string {
	loc := d.Path
	if loc != "" && d.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", d.Path, d.Line, d.Column)
	}
	if loc == "" {
		return fmt.Sprintf("%s [%s] %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s [%s] %s", loc, d.Severity, d.Code, d.Message)
}

// Err converts the diagnostic into a DomainError carrying its location.
func (d Diagnostic) Err() error {
	de := &DomainError{Code: d.Code, Message: d.Message}
	if d.Path != "" {
		de.WithContext(CtxPath, d.Path)
	}
	if d.Specifier != "" {
		de.WithContext(CtxSpecifier, d.Specifier)
	}
	if d.Line > 0 {
		de.WithContext(CtxLine, d.Line)
		de.WithContext(CtxColumn, d.Column)
	}
	return de
}

// SortDiagnostics orders diagnostics by path, position and code so output is
// stable across parallel builds.
func SortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.Code < b.Code
	})
}
