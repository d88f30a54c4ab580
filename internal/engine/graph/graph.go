package graph

import (
	"sort"
	"sync"

	"jspack/internal/core/errors"
	"jspack/internal/engine/parser"
	"jspack/internal/engine/resolver"
	"jspack/internal/shared/observability"
)

// ModuleID is a dense handle into the graph's node table. IDs are never
// reused within one build.
type ModuleID int

// NoModule marks an import record with no bundled target.
const NoModule ModuleID = -1

// Target is the outcome of one import record after resolution.
type Target struct {
	Module ModuleID
	// External is the runtime specifier for imports left to the host.
	External string
	// Unresolved is set when resolution failed and the policy kept the
	// import as a runtime reference.
	Unresolved bool
}

func (t Target) Bundled() bool { return t.Module != NoModule }

type ModuleNode struct {
	ID   ModuleID
	Path string
	AST  *parser.Module
	// Package is the nearest package.json; nil outside any package.
	Package *resolver.PackageJSON
	// Targets runs parallel to AST.Imports.
	Targets   []Target
	Importers []ModuleID
	IsEntry   bool

	// Used, Live and Included are filled by the tree shaker.
	Used     *UsedExports
	Live     []bool
	Included bool
}

func (m *ModuleNode) IsStylesheet() bool {
	return m.AST != nil && m.AST.Loader == parser.LoaderCSS
}

// SideEffectFree reports a module whose package declares it free of side
// effects through "sideEffects".
func (m *ModuleNode) SideEffectFree() bool {
	return m.Package != nil && !m.Package.HasSideEffects(m.Path)
}

// Edge is one (importer, specifier) -> module resolution.
type Edge struct {
	Importer  ModuleID
	Record    int
	Specifier string
	Kind      parser.ImportKind
	Target    ModuleID
}

// Graph owns every module of one build. The path index holds at most one
// node per absolute path.
type Graph struct {
	mu      sync.RWMutex
	modules []*ModuleNode
	byPath  map[string]ModuleID
	edges   []Edge

	Entries     []ModuleID
	Diagnostics []errors.Diagnostic
}

func New() *Graph {
	return &Graph{byPath: make(map[string]ModuleID)}
}

// InsertIfAbsent returns the node for path, creating it when missing. The
// second result reports whether this call created the node.
func (g *Graph) InsertIfAbsent(path string) (ModuleID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byPath[path]; ok {
		return id, false
	}
	id := ModuleID(len(g.modules))
	g.modules = append(g.modules, &ModuleNode{ID: id, Path: path})
	g.byPath[path] = id
	return id, true
}

func (g *Graph) Lookup(path string) (ModuleID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byPath[path]
	return id, ok
}

func (g *Graph) Module(id ModuleID) *ModuleNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id < 0 || int(id) >= len(g.modules) {
		return nil
	}
	return g.modules[id]
}

// Modules returns the nodes in ID order.
func (g *Graph) Modules() []*ModuleNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*ModuleNode(nil), g.modules...)
}

func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.modules)
}

func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.edges...)
}

func (g *Graph) addEdge(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = append(g.edges, e)
	target := g.modules[e.Target]
	for _, id := range target.Importers {
		if id == e.Importer {
			return
		}
	}
	target.Importers = append(target.Importers, e.Importer)
}

func (g *Graph) addDiagnostic(d errors.Diagnostic) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Diagnostics = append(g.Diagnostics, d)
}

// Paths returns every module path sorted.
func (g *Graph) Paths() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.byPath))
	for p := range g.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CheckInvariants verifies the path index against the node table.
func (g *Graph) CheckInvariants() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.byPath) != len(g.modules) {
		return errors.Newf(errors.CodeInternalInvariant, "path index has %d entries for %d modules", len(g.byPath), len(g.modules))
	}
	for i, m := range g.modules {
		if m.ID != ModuleID(i) {
			return errors.Newf(errors.CodeInternalInvariant, "module %s has id %d at slot %d", m.Path, m.ID, i)
		}
		if id := g.byPath[m.Path]; id != m.ID {
			return errors.Newf(errors.CodeInternalInvariant, "path %s indexed as %d, node is %d", m.Path, id, m.ID)
		}
	}
	return nil
}

func (g *Graph) publishMetrics() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	observability.GraphModules.Set(float64(len(g.modules)))
	observability.GraphEdges.Set(float64(len(g.edges)))
}
