package graph

import (
	"sort"

	"jspack/internal/engine/parser"
)

type BindingKind uint8

const (
	BindingMissing BindingKind = iota
	// BindingLocal is a top-level binding of Module.
	BindingLocal
	// BindingNamespace is the namespace object of Module.
	BindingNamespace
	// BindingExternal is an export of a runtime import.
	BindingExternal
	// BindingDynamic is a property of a CommonJS module's exports object.
	BindingDynamic
)

// Binding is where an imported name finally lives after following
// re-exports. Name is the export name on the final module.
type Binding struct {
	Kind     BindingKind
	Module   ModuleID
	Local    string
	Name     string
	External string
}

type exportKey struct {
	id   ModuleID
	name string
}

// ResolveExport follows re-exports and `export *` chains from module id to
// the binding that provides name. Cyclic chains resolve to BindingMissing.
func (g *Graph) ResolveExport(id ModuleID, name string) Binding {
	return g.resolveExport(id, name, make(map[exportKey]bool))
}

func (g *Graph) resolveExport(id ModuleID, name string, seen map[exportKey]bool) Binding {
	key := exportKey{id, name}
	if seen[key] {
		return Binding{}
	}
	seen[key] = true

	node := g.Module(id)
	if node == nil || node.AST == nil || !node.AST.Loader.IsScript() {
		return Binding{}
	}
	if name == "*" {
		return Binding{Kind: BindingNamespace, Module: id}
	}
	m := node.AST
	if m.CommonJS && len(m.Exports) == 0 {
		return Binding{Kind: BindingDynamic, Module: id, Name: name}
	}

	if exp, ok := m.FindExport(name); ok {
		if !exp.IsReExport() {
			if rec, imported, ok := importedBinding(m, exp.Local); ok {
				return g.follow(node, rec, imported, seen)
			}
			return Binding{Kind: BindingLocal, Module: id, Local: exp.Local, Name: name}
		}
		return g.follow(node, exp.Record, exp.Local, seen)
	}
	if name == "default" {
		return Binding{}
	}

	var external *Binding
	for _, rec := range m.StarExports() {
		t := node.Targets[rec]
		if t.Bundled() {
			if b := g.resolveExport(t.Module, name, seen); b.Kind != BindingMissing {
				return b
			}
		} else if t.External != "" && external == nil {
			external = &Binding{Kind: BindingExternal, External: t.External, Name: name}
		}
	}
	if external != nil {
		return *external
	}
	return Binding{}
}

func (g *Graph) follow(node *ModuleNode, rec int, name string, seen map[exportKey]bool) Binding {
	t := node.Targets[rec]
	switch {
	case t.Bundled():
		return g.resolveExport(t.Module, name, seen)
	case t.External != "":
		return Binding{Kind: BindingExternal, External: t.External, Name: name}
	}
	return Binding{}
}

// importedBinding finds the import record behind a local that an export
// clause re-exports, as in `import { a } from "x"; export { a }`.
func importedBinding(m *parser.Module, local string) (int, string, bool) {
	k, ok := m.TopLevel[local]
	if !ok || m.Stmts[k].Kind != parser.StmtImport {
		return 0, "", false
	}
	rec := m.Stmts[k].Record
	for _, n := range m.Imports[rec].Names {
		if n.Local == local {
			return rec, n.Imported, true
		}
	}
	return 0, "", false
}

// ExportNames lists every name module id exports, including names reached
// through `export *`. The second result is false when some star source
// cannot be enumerated statically.
func (g *Graph) ExportNames(id ModuleID) ([]string, bool) {
	set := make(map[string]bool)
	enumerable := g.collectExportNames(id, set, make(map[ModuleID]bool), true)
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, enumerable
}

func (g *Graph) collectExportNames(id ModuleID, set map[string]bool, seen map[ModuleID]bool, top bool) bool {
	if seen[id] {
		return true
	}
	seen[id] = true
	node := g.Module(id)
	if node == nil || node.AST == nil {
		return false
	}
	m := node.AST
	if m.CommonJS && len(m.Exports) == 0 {
		return false
	}
	ok := true
	for _, exp := range m.Exports {
		// `export *` never forwards a default export.
		if !top && exp.Name == "default" {
			continue
		}
		set[exp.Name] = true
	}
	for _, rec := range m.StarExports() {
		t := node.Targets[rec]
		if !t.Bundled() {
			ok = false
			continue
		}
		if !g.collectExportNames(t.Module, set, seen, false) {
			ok = false
		}
	}
	return ok
}
