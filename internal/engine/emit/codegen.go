package emit

import (
	"bytes"
	"sort"
	"strings"

	"jspack/internal/engine/graph"
	"jspack/internal/engine/hoist"
	"jspack/internal/engine/parser"
)

// Fragment is the generated code of one module. Mapping lines are relative
// to the fragment and Source is left zero for the emitter to fill.
type Fragment struct {
	Module   graph.ModuleID
	Path     string
	Code     string
	Mappings []Mapping
}

type edit struct {
	start, end uint32
	text       string
}

// writer accumulates generated text and, when enabled, source mappings.
type writer struct {
	b        strings.Builder
	line     int
	col      int
	src      *parser.Module
	mappings []Mapping
	track    bool
}

func newWriter(src *parser.Module, track bool) *writer {
	return &writer{src: src, track: track && src != nil}
}

func (w *writer) WriteString(s string) {
	w.b.WriteString(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		w.line += strings.Count(s, "\n")
		w.col = len(s) - i - 1
	} else {
		w.col += len(s)
	}
}

// mark maps the current generated position to a source offset.
func (w *writer) mark(offset uint32) {
	if !w.track {
		return
	}
	line, col := w.src.Position(offset)
	m := Mapping{GenLine: w.line, GenCol: w.col, SrcLine: line - 1, SrcCol: col - 1}
	if n := len(w.mappings); n > 0 && w.mappings[n-1].GenLine == m.GenLine && w.mappings[n-1].GenCol == m.GenCol {
		w.mappings[n-1] = m
		return
	}
	w.mappings = append(w.mappings, m)
}

// copy writes src[start:end] verbatim, mapping the start of every line.
func (w *writer) copy(start, end uint32) {
	if end <= start {
		return
	}
	w.mark(start)
	chunk := w.src.Source[start:end]
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 || i == len(chunk)-1 {
			w.WriteString(string(chunk))
			return
		}
		w.WriteString(string(chunk[:i+1]))
		start += uint32(i + 1)
		chunk = chunk[i+1:]
		w.mark(start)
	}
}

// splice copies r while applying edits. Edits overlapping an earlier applied
// edit are dropped.
func (w *writer) splice(r parser.Range, edits []edit) {
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start < edits[j].start
		}
		return edits[i].end > edits[j].end
	})
	cursor := r.Start
	for _, e := range edits {
		if e.start < cursor || e.start < r.Start || e.end > r.End {
			continue
		}
		w.copy(cursor, e.start)
		if e.text != "" {
			w.mark(e.start)
			w.WriteString(e.text)
		}
		cursor = e.end
	}
	w.copy(cursor, r.End)
}

func live(m *graph.ModuleNode, i int) bool {
	return m.Live == nil || m.Live[i]
}

// generate produces the fragment of one script module from its hoisting
// scope: live statements only, identifiers renamed, import and export
// syntax rewritten and TypeScript syntax erased.
func generate(m *graph.ModuleNode, s *hoist.Scope, opts Options) *Fragment {
	a := m.AST
	w := newWriter(a, opts.Sourcemap)
	for i, st := range a.Stmts {
		if !live(m, i) || st.Kind == parser.StmtTypeOnly {
			continue
		}
		if text, ok := s.Replace[i]; ok {
			if text != "" {
				w.mark(st.Range.Start)
				w.WriteString(text)
				w.WriteString("\n")
			}
			continue
		}
		w.splice(st.Range, statementEdits(a, s, i, opts.Minify))
		if st.DefaultExpr && !st.HasSemicolon {
			w.WriteString(";")
		}
		w.WriteString("\n")
	}
	return &Fragment{Module: m.ID, Path: m.Path, Code: w.b.String(), Mappings: w.mappings}
}

func statementEdits(a *parser.Module, s *hoist.Scope, i int, minify bool) []edit {
	st := a.Stmts[i]
	var edits []edit
	var calls []parser.Range
	for j, rec := range a.Imports {
		if rec.Stmt != i {
			continue
		}
		if text, ok := s.Calls[j]; ok {
			edits = append(edits, edit{rec.ExprRange.Start, rec.ExprRange.End, text})
			calls = append(calls, rec.ExprRange)
		}
	}
	if !st.ExportKeyword.Empty() {
		text := ""
		if st.DefaultExpr {
			text = "const " + s.Local("default") + " = "
		}
		edits = append(edits, edit{st.ExportKeyword.Start, st.ExportKeyword.End, text})
	}
	for _, ref := range st.Refs {
		repl, ok := s.Rewrite(ref.Name)
		if !ok || repl == ref.Name || within(calls, ref.Range) {
			continue
		}
		if ref.Callee && !hoist.IsIdentifier(repl) {
			// Callees see an undefined this, as with the original binding.
			repl = "(0, " + repl + ")"
		}
		if ref.Shorthand {
			repl = ref.Name + ": " + repl
		}
		edits = append(edits, edit{ref.Range.Start, ref.Range.End, repl})
	}
	for _, r := range a.Erase {
		if st.Range.Contains(r) {
			edits = append(edits, edit{r.Start, r.End, ""})
		}
	}
	if minify {
		edits = append(edits, minifyEdits(a, st.Range)...)
	}
	return edits
}

func within(ranges []parser.Range, r parser.Range) bool {
	for _, outer := range ranges {
		if outer.Contains(r) {
			return true
		}
	}
	return false
}
