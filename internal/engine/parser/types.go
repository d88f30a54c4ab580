package parser

import (
	"sort"
)

// Loader selects the grammar and post-processing applied to a file.
type Loader uint8

const (
	LoaderNone Loader = iota
	LoaderJS
	LoaderJSX
	LoaderTS
	LoaderTSX
	LoaderCSS
	LoaderJSON
)

func (l Loader) String() string {
	switch l {
	case LoaderJS:
		return "js"
	case LoaderJSX:
		return "jsx"
	case LoaderTS:
		return "ts"
	case LoaderTSX:
		return "tsx"
	case LoaderCSS:
		return "css"
	case LoaderJSON:
		return "json"
	default:
		return "none"
	}
}

// IsScript reports whether the module contributes to the JavaScript output.
func (l Loader) IsScript() bool {
	return l != LoaderNone && l != LoaderCSS
}

// Range is a half-open byte range into Module.Source.
type Range struct {
	Start uint32
	End   uint32
}

func (r Range) Empty() bool { return r.End <= r.Start }

func (r Range) Contains(o Range) bool { return r.Start <= o.Start && o.End <= r.End }

type Location struct {
	File   string
	Line   int
	Column int
}

type ImportKind uint8

const (
	// ImportStatic is `import ... from "x"` or the bare `import "x"`.
	ImportStatic ImportKind = iota
	// ImportReExport is `export { a } from "x"` or `export * as ns from "x"`.
	ImportReExport
	// ImportReExportAll is `export * from "x"`.
	ImportReExportAll
	ImportDynamic
	ImportRequire
	// ImportStylesheet is a CSS `@import`.
	ImportStylesheet
)

func (k ImportKind) String() string {
	switch k {
	case ImportStatic:
		return "import-statement"
	case ImportReExport:
		return "re-export"
	case ImportReExportAll:
		return "re-export-all"
	case ImportDynamic:
		return "dynamic-import"
	case ImportRequire:
		return "require-call"
	case ImportStylesheet:
		return "css-import"
	default:
		return "unknown"
	}
}

// IsStatic reports whether an unresolved specifier of this kind is subject to
// the unresolved-import policy. Dynamic imports are always tolerated.
func (k ImportKind) IsStatic() bool { return k != ImportDynamic }

// IsRequire reports whether the record resolves with the "require" condition.
func (k ImportKind) IsRequire() bool { return k == ImportRequire }

// ImportName binds an exported name of the target to a local name. Imported
// is "default" for default imports and "*" for namespace imports.
type ImportName struct {
	Imported string
	Local    string
}

type ImportRecord struct {
	Specifier string
	Kind      ImportKind
	Names     []ImportName
	// Stmt is the owning top-level statement index.
	Stmt int
	// SpecRange covers the quoted specifier literal.
	SpecRange Range
	// ExprRange covers the whole import()/require() call expression.
	ExprRange Range
	Loc       Location
}

// SideEffectOnly reports `import "x"` with no bindings.
func (r ImportRecord) SideEffectOnly() bool {
	return r.Kind == ImportStatic && len(r.Names) == 0
}

// Export is one exported name. Local is the module-scope binding for local
// exports, or the target's exported name ("*" for `export * as ns`) when
// Record refers to a re-export.
type Export struct {
	Name   string
	Local  string
	Stmt   int
	Record int
}

func (e Export) IsReExport() bool { return e.Record >= 0 }

type StmtKind uint8

const (
	StmtOther StmtKind = iota
	StmtImport
	StmtExportFrom
	StmtExportClause
	StmtDecl
	StmtExpr
	// StmtTypeOnly has no runtime semantics and is always dropped.
	StmtTypeOnly
)

// Ident is an occurrence of a module-scope or free name. Shorthand marks
// `{ name }` object literals and patterns, where a rename must expand to
// `name: renamed`. Callee marks the callee of a call, a tagged template or
// a new expression.
type Ident struct {
	Name      string
	Range     Range
	Shorthand bool
	Callee    bool
}

type Stmt struct {
	Kind     StmtKind
	Range    Range
	Declares []string
	// Refs lists every unshadowed identifier occurrence in the statement,
	// including the declaring occurrences of Declares.
	Refs        []Ident
	SideEffects bool
	Record      int
	// ExportKeyword covers `export ` or `export default ` before a declaration
	// or default expression.
	ExportKeyword Range
	DefaultExpr   bool
	HasSemicolon  bool
}

// Module is the scanned form of one source file: enough structure for
// resolution, tree shaking, hoisting and splice-based code generation.
type Module struct {
	Path    string
	Loader  Loader
	Source  []byte
	Stmts   []Stmt
	Imports []ImportRecord
	Exports []Export

	// TopLevel maps a declared module-scope name to its statement.
	TopLevel map[string]int
	// FreeRefs are names referenced but never declared in the module.
	FreeRefs map[string]bool
	// Nested holds every name bound in a function, block or catch scope.
	Nested map[string]bool

	UsesEval                bool
	UsesWith                bool
	CommonJS                bool
	NonLiteralDynamicImport bool

	// Erase covers TypeScript-only syntax stripped by code generation.
	Erase []Range
	// Comments and Protected drive minification; Protected ranges (template
	// literals, multi-line strings) are never edited.
	Comments  []Range
	Protected []Range

	lineStarts []uint32
}

// Unanalyzable reports constructs that defeat static export analysis.
func (m *Module) Unanalyzable() bool {
	return m.UsesEval || m.UsesWith || m.CommonJS || m.NonLiteralDynamicImport
}

// ExportNames returns the statically known export names, excluding names
// contributed by `export *`.
func (m *Module) ExportNames() []string {
	seen := make(map[string]bool, len(m.Exports))
	out := make([]string, 0, len(m.Exports))
	for _, exp := range m.Exports {
		if seen[exp.Name] {
			continue
		}
		seen[exp.Name] = true
		out = append(out, exp.Name)
	}
	sort.Strings(out)
	return out
}

// FindExport returns the export with the given name.
func (m *Module) FindExport(name string) (Export, bool) {
	for _, exp := range m.Exports {
		if exp.Name == name {
			return exp, true
		}
	}
	return Export{}, false
}

// StarExports returns the import record indices of `export * from` clauses.
func (m *Module) StarExports() []int {
	var out []int
	for i, rec := range m.Imports {
		if rec.Kind == ImportReExportAll {
			out = append(out, i)
		}
	}
	return out
}

// Position converts a byte offset into a 1-based line and column.
func (m *Module) Position(offset uint32) (line, column int) {
	if m.lineStarts == nil {
		m.lineStarts = computeLineStarts(m.Source)
	}
	idx := sort.Search(len(m.lineStarts), func(i int) bool { return m.lineStarts[i] > offset }) - 1
	if idx < 0 {
		idx = 0
	}
	return idx + 1, int(offset-m.lineStarts[idx]) + 1
}

func computeLineStarts(src []byte) []uint32 {
	starts := []uint32{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, uint32(i+1))
		}
	}
	return starts
}
