// Package shaker computes used exports and live statements over a module
// graph. Every quantity it tracks only grows, so iterating to a fixpoint
// terminates.
package shaker

import (
	"context"
	"fmt"
	"log/slog"

	"jspack/internal/core/errors"
	"jspack/internal/engine/graph"
	"jspack/internal/engine/parser"
	"jspack/internal/shared/observability"
)

type Stats struct {
	Iterations int
	Included   int
	Live       int
	Eliminated int
}

// Shaker holds the per-build propagation state.
type Shaker struct {
	g          *graph.Graph
	order      []graph.ModuleID
	recsByStmt map[graph.ModuleID][][]int
	reported   map[string]bool
	Warnings   []errors.Diagnostic
}

func New(g *graph.Graph) *Shaker {
	s := &Shaker{
		g:          g,
		order:      g.EmissionOrder(),
		recsByStmt: make(map[graph.ModuleID][][]int),
		reported:   make(map[string]bool),
	}
	s.seed()
	return s
}

// Shake runs propagation to a fixpoint and fills Used, Live and Included on
// every module.
func Shake(ctx context.Context, g *graph.Graph) (Stats, []errors.Diagnostic, error) {
	_, end := observability.StartPhase(ctx, "shake")
	defer end()

	s := New(g)
	var st Stats
	for {
		if err := ctx.Err(); err != nil {
			return st, nil, errors.Wrap(err, errors.CodeCanceled, "tree shaking canceled")
		}
		st.Iterations++
		if !s.Pass() {
			break
		}
	}
	for _, m := range g.Modules() {
		if !m.Included {
			continue
		}
		st.Included++
		for i, stmt := range m.AST.Stmts {
			switch {
			case m.Live[i]:
				st.Live++
			case stmt.Kind != parser.StmtTypeOnly:
				st.Eliminated++
			}
		}
	}
	observability.EliminatedStatements.Add(float64(st.Eliminated))
	slog.Debug("tree shaking converged", "iterations", st.Iterations, "included", st.Included, "eliminated", st.Eliminated)
	return st, s.Warnings, nil
}

func (s *Shaker) seed() {
	for _, m := range s.g.Modules() {
		m.Used = graph.NewUsedExports()
		m.Live = make([]bool, len(m.AST.Stmts))
		m.Included = m.IsEntry

		byStmt := make([][]int, len(m.AST.Stmts))
		for j, rec := range m.AST.Imports {
			if rec.Stmt >= 0 && rec.Stmt < len(byStmt) {
				byStmt[rec.Stmt] = append(byStmt[rec.Stmt], j)
			}
		}
		s.recsByStmt[m.ID] = byStmt

		if m.IsEntry || m.AST.Unanalyzable() {
			m.Used.SetAll()
		}
		if m.IsStylesheet() || m.AST.UsesEval || m.AST.UsesWith || m.AST.CommonJS {
			for i, stmt := range m.AST.Stmts {
				m.Live[i] = stmt.Kind != parser.StmtTypeOnly
			}
		}
	}
	// A dynamic import or require observes the whole namespace.
	for _, m := range s.g.Modules() {
		for j, rec := range m.AST.Imports {
			if t := m.Targets[j]; t.Bundled() && (rec.Kind == parser.ImportDynamic || rec.Kind == parser.ImportRequire) {
				s.g.Module(t.Module).Used.SetAll()
			}
		}
	}
}

// Pass performs one propagation sweep in emission order and reports whether
// anything changed. After convergence a further Pass returns false.
func (s *Shaker) Pass() bool {
	changed := false
	for _, id := range s.order {
		m := s.g.Module(id)
		if m.Included && s.visit(m) {
			changed = true
		}
	}
	return changed
}

func (s *Shaker) visit(m *graph.ModuleNode) bool {
	ast := m.AST
	changed := false
	var work []int
	mark := func(i int) {
		if i < 0 || i >= len(m.Live) || m.Live[i] || ast.Stmts[i].Kind == parser.StmtTypeOnly {
			return
		}
		m.Live[i] = true
		changed = true
		work = append(work, i)
	}

	for i, live := range m.Live {
		if live {
			work = append(work, i)
		}
	}
	for i, stmt := range ast.Stmts {
		if stmt.SideEffects || s.evaluatesTarget(m, i) {
			mark(i)
		}
	}
	changed = s.markExports(m, mark) || changed

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		// Clause exports are reached per name through markExports.
		if ast.Stmts[i].Kind == parser.StmtExportClause {
			continue
		}
		for _, ref := range ast.Stmts[i].Refs {
			k, ok := ast.TopLevel[ref.Name]
			if !ok {
				continue
			}
			mark(k)
			if ast.Stmts[k].Kind == parser.StmtImport {
				changed = s.useImportedLocal(m, k, ref.Name) || changed
			}
		}
	}

	for i, live := range m.Live {
		if !live {
			continue
		}
		for _, j := range s.recsByStmt[m.ID][i] {
			t := m.Targets[j]
			if !t.Bundled() {
				continue
			}
			if target := s.g.Module(t.Module); !target.Included {
				target.Included = true
				changed = true
			}
		}
	}
	return changed
}

// evaluatesTarget reports an import or re-export statement that must stay
// for its target's side effects even when none of its bindings are used.
func (s *Shaker) evaluatesTarget(m *graph.ModuleNode, i int) bool {
	kind := m.AST.Stmts[i].Kind
	if kind != parser.StmtImport && kind != parser.StmtExportFrom {
		return false
	}
	for _, j := range s.recsByStmt[m.ID][i] {
		t := m.Targets[j]
		if !t.Bundled() {
			return true
		}
		if !s.g.Module(t.Module).SideEffectFree() {
			return true
		}
	}
	return false
}

// markExports marks the statements behind every used export and forwards
// used re-exported names to their source modules.
func (s *Shaker) markExports(m *graph.ModuleNode, mark func(int)) bool {
	ast := m.AST
	changed := false
	for _, exp := range ast.Exports {
		if !m.Used.Has(exp.Name) {
			continue
		}
		mark(exp.Stmt)
		if !exp.IsReExport() {
			if k, ok := ast.TopLevel[exp.Local]; ok {
				mark(k)
				if ast.Stmts[k].Kind == parser.StmtImport {
					changed = s.useImportedLocal(m, k, exp.Local) || changed
				}
			}
			continue
		}
		t := m.Targets[exp.Record]
		if !t.Bundled() {
			continue
		}
		changed = s.use(m, t.Module, exp.Local) || changed
	}

	for _, j := range ast.StarExports() {
		t := m.Targets[j]
		if !t.Bundled() {
			continue
		}
		target := s.g.Module(t.Module)
		if m.Used.All() {
			changed = target.Used.SetAll() || changed
			continue
		}
		names, enumerable := s.g.ExportNames(t.Module)
		available := make(map[string]bool, len(names))
		for _, n := range names {
			available[n] = true
		}
		for _, n := range m.Used.Names() {
			if n == "default" {
				continue
			}
			if _, own := ast.FindExport(n); own {
				continue
			}
			if !enumerable || available[n] {
				changed = target.Used.Add(n) || changed
			}
		}
		if target.Used.All() || target.Used.Len() > 0 {
			mark(ast.Imports[j].Stmt)
		}
	}
	return changed
}

// useImportedLocal forwards a referenced import binding to its target.
func (s *Shaker) useImportedLocal(m *graph.ModuleNode, stmt int, local string) bool {
	changed := false
	for _, j := range s.recsByStmt[m.ID][stmt] {
		t := m.Targets[j]
		if !t.Bundled() {
			continue
		}
		for _, name := range m.AST.Imports[j].Names {
			if name.Local == local {
				changed = s.use(m, t.Module, name.Imported) || changed
			}
		}
	}
	return changed
}

func (s *Shaker) use(from *graph.ModuleNode, target graph.ModuleID, name string) bool {
	node := s.g.Module(target)
	if name == "*" {
		return node.Used.SetAll()
	}
	if node.IsStylesheet() {
		return false
	}
	if s.g.ResolveExport(target, name).Kind == graph.BindingMissing {
		key := fmt.Sprintf("%d:%s", target, name)
		if _, enumerable := s.g.ExportNames(target); enumerable && !s.reported[key] {
			s.reported[key] = true
			s.Warnings = append(s.Warnings, errors.Diagnostic{
				Code:     errors.CodeMissingExport,
				Severity: errors.SeverityWarning,
				Message:  fmt.Sprintf("%q is not exported by %s", name, node.Path),
				Path:     from.Path,
			})
		}
	}
	return node.Used.Add(name)
}
