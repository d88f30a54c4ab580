package resolver

import (
	"fmt"
	"strings"

	"jspack/internal/core/errors"
)

// Kind records how a specifier was resolved.
type Kind string

const (
	KindRelative      Kind = "relative"
	KindAbsolute      Kind = "absolute"
	KindDirectory     Kind = "directory"
	KindExportsMap    Kind = "exports-map"
	KindImportsMap    Kind = "imports-map"
	KindMainField     Kind = "main-field"
	KindIndexFallback Kind = "index-fallback"
	KindBrowserField  Kind = "browser-field"
	KindExternal      Kind = "external"
)

// Result is the outcome of one resolution: Resolved, NotFound or Ambiguous.
// Call sites switch over all three.
type Result interface {
	isResult()
	String() string
}

// Resolved is a successful resolution. For KindExternal, Path is the
// specifier kept as a runtime import.
type Resolved struct {
	Path string
	Kind Kind
}

// NotFound carries the reason a specifier did not resolve. Code is the
// diagnostic identifier the graph builder reports.
type NotFound struct {
	Reason string
	Code   errors.ErrorCode
}

// Ambiguous lists equally specific candidates.
type Ambiguous struct {
	Candidates []string
}

func (Resolved) isResult()  {}
func (NotFound) isResult()  {}
func (Ambiguous) isResult() {}

func (r Resolved) String() string { return fmt.Sprintf("%s (%s)", r.Path, r.Kind) }
func (r NotFound) String() string { return "not found: " + r.Reason }
func (r Ambiguous) String() string {
	return "ambiguous: " + strings.Join(r.Candidates, ", ")
}

// IsExternal reports whether the result leaves the import to the runtime.
func (r Resolved) IsExternal() bool { return r.Kind == KindExternal }

func notFound(code errors.ErrorCode, format string, args ...interface{}) NotFound {
	return NotFound{Reason: fmt.Sprintf(format, args...), Code: code}
}

// ResultPath returns the resolved path of r, or "" for failures and externals.
func ResultPath(r Result) string {
	switch v := r.(type) {
	case Resolved:
		if v.IsExternal() {
			return ""
		}
		return v.Path
	case NotFound, Ambiguous:
		return ""
	}
	return ""
}
