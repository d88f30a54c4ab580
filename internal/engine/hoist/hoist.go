// Package hoist plans how the modules of a shaken graph share one bundle
// scope. Analyzable modules are flattened with collision-free renames;
// modules using eval, with or CommonJS exports are wrapped in registry
// functions and reached through their exports object.
package hoist

import (
	"context"
	"fmt"
	"log/slog"

	"jspack/internal/core/errors"
	"jspack/internal/engine/graph"
	"jspack/internal/engine/parser"
	"jspack/internal/shared/observability"
)

type Options struct {
	// Flatten merges analyzable modules into the bundle scope. When false
	// every module is wrapped.
	Flatten bool
}

// Getter is one property of a generated namespace or exports object.
type Getter struct {
	Name string
	Expr string
}

// Scope is the rewrite plan for a single module.
type Scope struct {
	Module  *graph.ModuleNode
	Wrapped bool
	// Names maps top-level bindings to their bundle-scope names. "default"
	// maps to the binding generated for an anonymous default export.
	Names map[string]string
	// Imports maps import binding locals to the expression replacing them.
	Imports map[string]string
	// Replace holds replacement text for import and export statements.
	Replace map[int]string
	// Calls holds replacement text for require() and import() expressions,
	// keyed by import record.
	Calls map[int]string
	// Namespace is the bundle-scope binding for the module's namespace
	// object, or for a wrapped module's exports. Empty when unused.
	Namespace string
	// Getters and StarSources describe the exports object of a wrapped
	// module, or the namespace object of a flattened one.
	Getters     []Getter
	StarSources []string
}

// Local returns the name a top-level binding carries in the output.
func (s *Scope) Local(name string) string {
	if r, ok := s.Names[name]; ok {
		return r
	}
	return name
}

// Rewrite returns the replacement for a module-scope identifier reference.
func (s *Scope) Rewrite(name string) (string, bool) {
	if expr, ok := s.Imports[name]; ok {
		return expr, true
	}
	r, ok := s.Names[name]
	return r, ok
}

// PureCommonJS reports a wrapped module whose exports object is filled by its
// own code.
func (s *Scope) PureCommonJS() bool {
	return s.Module.AST.CommonJS && len(s.Module.AST.Exports) == 0
}

type External struct {
	Specifier string
	Name      string
}

// EntryExport is one export of the bundle. Init is set when the exported
// value is not a plain bundle-scope identifier.
type EntryExport struct {
	Name  string
	Local string
	Init  string
}

type Plan struct {
	Flatten bool
	// Order lists the included modules in emission order.
	Order     []graph.ModuleID
	Scopes    map[graph.ModuleID]*Scope
	Externals []External
	Exports   []EntryExport
	// Runtime reports whether the registry helpers must be emitted.
	Runtime bool
}

func (p *Plan) Scope(id graph.ModuleID) *Scope { return p.Scopes[id] }

type planner struct {
	g         *graph.Graph
	plan      *Plan
	names     *namespace
	externals map[string]string
	pending   []*Scope
}

// Build computes rename maps and rewrites for every included module of g,
// visiting modules in order.
func Build(ctx context.Context, g *graph.Graph, order []graph.ModuleID, opts Options) (*Plan, error) {
	_, end := observability.StartPhase(ctx, "hoist")
	defer end()

	p := &planner{
		g: g,
		plan: &Plan{
			Flatten: opts.Flatten,
			Scopes:  make(map[graph.ModuleID]*Scope),
		},
		names:     newNamespace(),
		externals: make(map[string]string),
	}
	for _, id := range order {
		m := g.Module(id)
		if m == nil || m.AST == nil {
			return nil, errors.Newf(errors.CodeInternalInvariant, "module %d has no parsed source", id)
		}
		if !m.Included {
			continue
		}
		p.plan.Order = append(p.plan.Order, id)
		p.plan.Scopes[id] = &Scope{
			Module:  m,
			Wrapped: !m.IsStylesheet() && (!opts.Flatten || mustWrap(m)),
			Names:   make(map[string]string),
			Imports: make(map[string]string),
			Replace: make(map[int]string),
			Calls:   make(map[int]string),
		}
	}

	p.reserve()
	for _, id := range p.plan.Order {
		p.claimTopLevel(p.plan.Scopes[id])
	}
	for _, id := range p.plan.Order {
		s := p.plan.Scopes[id]
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeCanceled, "scope hoisting canceled")
		}
		if s.Module.IsStylesheet() {
			continue
		}
		p.rewrite(s)
		if s.Wrapped {
			p.plan.Runtime = true
			if !s.PureCommonJS() {
				s.Getters, s.StarSources = p.exportsObject(s, s)
			}
		}
	}
	p.entryExports()
	// Namespace objects can reference further namespaces.
	for len(p.pending) > 0 {
		s := p.pending[0]
		p.pending = p.pending[1:]
		s.Getters, s.StarSources = p.exportsObject(s, s)
	}

	renamed := 0
	for _, s := range p.plan.Scopes {
		for k, v := range s.Names {
			if k != v {
				renamed++
			}
		}
	}
	slog.Debug("scope hoisting planned", "modules", len(p.plan.Order), "renamed", renamed, "externals", len(p.plan.Externals))
	return p.plan, nil
}

// mustWrap reports modules that cannot share the bundle scope.
func mustWrap(m *graph.ModuleNode) bool {
	a := m.AST
	return a.UsesEval || a.UsesWith || a.CommonJS && (m.Used == nil || m.Used.All())
}

func live(m *graph.ModuleNode, i int) bool {
	return m.Live == nil || m.Live[i]
}

// reserve blocks global references and indexes nested bindings. The
// top-level names of a wrapped module live in its closure, so they count as
// nested from the bundle scope's point of view.
func (p *planner) reserve() {
	for _, id := range p.plan.Order {
		s := p.plan.Scopes[id]
		a := s.Module.AST
		for name := range a.FreeRefs {
			p.names.reserve(name)
		}
		for name := range a.Nested {
			p.names.bindNested(name, id)
		}
		if s.Wrapped {
			for name := range a.TopLevel {
				p.names.bindNested(name, id)
			}
		}
	}
}

func (p *planner) claimTopLevel(s *Scope) {
	m := s.Module
	id := m.ID
	if s.Wrapped && p.plan.Flatten {
		s.Namespace = p.names.claim(baseName(m.Path)+"_ns", id)
	}
	for i, st := range m.AST.Stmts {
		if !live(m, i) || st.Kind == parser.StmtImport || st.Kind == parser.StmtTypeOnly {
			continue
		}
		if st.DefaultExpr {
			s.Names["default"] = p.names.claim(baseName(m.Path)+"_default", -1)
			continue
		}
		if s.Wrapped {
			continue
		}
		for _, name := range st.Declares {
			if _, done := s.Names[name]; done || name == "" {
				continue
			}
			s.Names[name] = p.names.claim(name, id)
		}
	}
}

func (p *planner) rewrite(s *Scope) {
	m := s.Module
	for j, rec := range m.AST.Imports {
		t := m.Targets[j]
		switch rec.Kind {
		case parser.ImportStatic:
			for _, n := range rec.Names {
				s.Imports[n.Local] = p.importExpr(s, t, n.Imported)
			}
			s.Replace[rec.Stmt] = p.evaluate(s, t)
		case parser.ImportReExport, parser.ImportReExportAll:
			s.Replace[rec.Stmt] = p.evaluate(s, t)
		case parser.ImportRequire, parser.ImportDynamic:
			if call, ok := p.call(s, t, rec.Kind); ok {
				s.Calls[j] = call
			}
		}
	}
	for i, st := range m.AST.Stmts {
		if st.Kind == parser.StmtExportClause {
			s.Replace[i] = ""
		}
	}
}

// evaluate returns the statement that runs a dependency's body at the
// import's position. Flattened dependencies already ran in emission order.
func (p *planner) evaluate(from *Scope, t graph.Target) string {
	if !from.Wrapped || !t.Bundled() {
		return ""
	}
	target := p.plan.Scopes[t.Module]
	if target == nil || !target.Wrapped {
		return ""
	}
	return fmt.Sprintf("%s(%d);", RequireFn, t.Module)
}

func (p *planner) importExpr(from *Scope, t graph.Target, imported string) string {
	switch {
	case t.Bundled():
		return p.expr(from, p.g.ResolveExport(t.Module, imported))
	case t.External != "":
		return p.expr(from, graph.Binding{Kind: graph.BindingExternal, External: t.External, Name: imported})
	}
	return "void 0"
}

func (p *planner) call(from *Scope, t graph.Target, kind parser.ImportKind) (string, bool) {
	if !t.Bundled() {
		return "", false
	}
	target := p.plan.Scopes[t.Module]
	if target == nil {
		return "", false
	}
	var expr string
	switch {
	case target.Module.IsStylesheet():
		expr = "({})"
	case target.Wrapped:
		expr = fmt.Sprintf("%s(%d)", RequireFn, t.Module)
	default:
		expr = p.namespaceOf(target)
	}
	if kind == parser.ImportDynamic {
		return "Promise.resolve().then(function () { return " + expr + "; })", true
	}
	return expr, true
}

// expr renders binding as seen from module from. A nil from is the bundle
// scope itself.
func (p *planner) expr(from *Scope, b graph.Binding) string {
	switch b.Kind {
	case graph.BindingLocal:
		target := p.plan.Scopes[b.Module]
		if target == nil {
			return "void 0"
		}
		if from != nil && from.Module.ID == b.Module || !target.Wrapped {
			return target.Local(b.Local)
		}
		return p.accessor(from, target) + Member(b.Name)
	case graph.BindingNamespace:
		target := p.plan.Scopes[b.Module]
		if target == nil {
			return "void 0"
		}
		if target.Wrapped {
			return p.accessor(from, target)
		}
		return p.namespaceOf(target)
	case graph.BindingDynamic:
		target := p.plan.Scopes[b.Module]
		if target == nil {
			return "void 0"
		}
		if b.Name == "default" {
			return p.accessor(from, target)
		}
		return p.accessor(from, target) + Member(b.Name)
	case graph.BindingExternal:
		ext := p.external(b.External)
		if b.Name == "*" {
			return ext
		}
		return ext + Member(b.Name)
	}
	return "void 0"
}

// accessor returns an expression for a wrapped module's exports object.
// Inside another wrapper the registry is asked directly so cyclic requires
// see the partially filled object.
func (p *planner) accessor(from *Scope, target *Scope) string {
	if from != nil && from.Wrapped {
		return fmt.Sprintf("%s(%d)", RequireFn, target.Module.ID)
	}
	if target.Namespace == "" {
		target.Namespace = p.names.claim(baseName(target.Module.Path)+"_ns", target.Module.ID)
	}
	return target.Namespace
}

// namespaceOf returns the frozen namespace object of a flattened module,
// scheduling it for generation on first use.
func (p *planner) namespaceOf(target *Scope) string {
	if target.Namespace == "" {
		target.Namespace = p.names.claim(baseName(target.Module.Path)+"_ns", -1)
		p.pending = append(p.pending, target)
		p.plan.Runtime = true
	}
	return target.Namespace
}

func (p *planner) external(spec string) string {
	if name, ok := p.externals[spec]; ok {
		return name
	}
	name := p.names.claim(sanitize(spec), -1)
	p.externals[spec] = name
	p.plan.Externals = append(p.plan.Externals, External{Specifier: spec, Name: name})
	return name
}

// exportsObject lists the getters for every statically known export of s as
// seen from module from, plus the sources of exports only known at runtime.
func (p *planner) exportsObject(from, s *Scope) ([]Getter, []string) {
	id := s.Module.ID
	names, enumerable := p.g.ExportNames(id)
	getters := make([]Getter, 0, len(names))
	used := s.Module.Used
	for _, name := range names {
		// Exports nobody reads may point at eliminated statements.
		if used != nil && !used.Has(name) {
			continue
		}
		getters = append(getters, Getter{Name: name, Expr: p.expr(from, p.g.ResolveExport(id, name))})
	}
	if enumerable {
		return getters, nil
	}
	var sources []string
	for _, j := range s.Module.AST.StarExports() {
		t := s.Module.Targets[j]
		switch {
		case t.Bundled():
			if b := p.expr(from, graph.Binding{Kind: graph.BindingNamespace, Module: t.Module}); b != "void 0" {
				sources = append(sources, b)
			}
		case t.External != "":
			sources = append(sources, p.external(t.External))
		}
	}
	return getters, sources
}

// entryExports lists the exports of every entry module; the first entry to
// export a name wins.
func (p *planner) entryExports() {
	seen := make(map[string]bool)
	add := func(name, expr string) {
		if seen[name] {
			return
		}
		seen[name] = true
		e := EntryExport{Name: name, Local: expr}
		if !IsIdentifier(expr) {
			e.Local = p.names.claim("export_"+sanitize(name), -1)
			e.Init = expr
		}
		p.plan.Exports = append(p.plan.Exports, e)
	}
	for _, id := range p.g.Entries {
		s := p.plan.Scopes[id]
		if s == nil || s.Module.IsStylesheet() {
			continue
		}
		var from *Scope
		if !s.Wrapped {
			from = s
		}
		if s.PureCommonJS() {
			add("default", p.accessor(nil, s))
			continue
		}
		names, _ := p.g.ExportNames(id)
		for _, name := range names {
			add(name, p.expr(from, p.g.ResolveExport(id, name)))
		}
	}
}
