package report

import (
	"fmt"
	"sort"
	"strings"

	"jspack/internal/engine/graph"
)

// RenderGraph lists the modules of a built graph in ID order with their
// fan-in, fan-out and bundled dependencies, followed by any import cycles.
func RenderGraph(root string, g *graph.Graph) string {
	var buf strings.Builder
	modules := g.Modules()
	buf.WriteString(titleStyle.Render(fmt.Sprintf("%d modules", len(modules))) + "\n")
	fan := make(map[graph.ModuleID]graph.ModuleStats, len(modules))
	for _, s := range g.Stats() {
		fan[s.ID] = s
	}

	for _, m := range modules {
		marker := " "
		if m.IsEntry {
			marker = "*"
		}
		name := relTo(root, m.Path)
		if !m.Included {
			name = dimStyle.Render(name + " (eliminated)")
		}
		buf.WriteString(fmt.Sprintf("%s %s  %s\n", marker, name,
			dimStyle.Render(fmt.Sprintf("in %d, out %d", fan[m.ID].FanIn, fan[m.ID].FanOut))))
		for _, dep := range dependencyNames(root, g, m) {
			buf.WriteString(detailStyle.Render(iconArrow+" "+dep) + "\n")
		}
	}

	cycles := g.DetectCycles()
	if len(cycles) == 0 {
		buf.WriteString(successStyle.Render("no import cycles") + "\n")
		return buf.String()
	}
	buf.WriteString(warningStyle.Render(fmt.Sprintf("%d import cycles", len(cycles))) + "\n")
	for _, c := range cycles {
		paths := g.CyclePaths(c)
		for i := range paths {
			paths[i] = relTo(root, paths[i])
		}
		buf.WriteString(detailStyle.Render(strings.Join(paths, " "+iconArrow+" ")) + "\n")
	}
	return buf.String()
}

func dependencyNames(root string, g *graph.Graph, m *graph.ModuleNode) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range m.Targets {
		var name string
		switch {
		case t.Bundled():
			name = relTo(root, g.Module(t.Module).Path)
		case t.External != "":
			name = t.External + " (external)"
		default:
			continue
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// RenderGraphDOT writes the graph in Graphviz format. Modules on a cycle and
// the edges closing it are drawn red; externals are dashed.
func RenderGraphDOT(root string, g *graph.Graph) string {
	var buf strings.Builder
	buf.WriteString("digraph modules {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=rounded, fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=8];\n\n")

	cycleEdges := make(map[[2]graph.ModuleID]bool)
	inCycle := make(map[graph.ModuleID]bool)
	for _, c := range g.DetectCycles() {
		for i, id := range c {
			inCycle[id] = true
			cycleEdges[[2]graph.ModuleID{id, c[(i+1)%len(c)]}] = true
		}
	}

	externals := make(map[string]bool)
	for _, m := range g.Modules() {
		attrs := []string{fmt.Sprintf("label=%q", relTo(root, m.Path))}
		if m.IsEntry {
			attrs = append(attrs, "penwidth=2")
		}
		if inCycle[m.ID] {
			attrs = append(attrs, "color=\"red\"")
		}
		if !m.Included {
			attrs = append(attrs, "fontcolor=\"gray\"")
		}
		buf.WriteString(fmt.Sprintf("  m%d [%s];\n", m.ID, strings.Join(attrs, ", ")))
		for _, t := range m.Targets {
			if !t.Bundled() && t.External != "" {
				externals[t.External] = true
			}
		}
	}

	ext := make([]string, 0, len(externals))
	for name := range externals {
		ext = append(ext, name)
	}
	sort.Strings(ext)
	for _, name := range ext {
		buf.WriteString(fmt.Sprintf("  %q [style=dashed];\n", name))
	}
	buf.WriteString("\n")

	drawn := make(map[[2]graph.ModuleID]bool)
	for _, e := range g.Edges() {
		key := [2]graph.ModuleID{e.Importer, e.Target}
		if drawn[key] {
			continue
		}
		drawn[key] = true
		if cycleEdges[key] {
			buf.WriteString(fmt.Sprintf("  m%d -> m%d [color=\"red\"];\n", e.Importer, e.Target))
		} else {
			buf.WriteString(fmt.Sprintf("  m%d -> m%d;\n", e.Importer, e.Target))
		}
	}
	for _, m := range g.Modules() {
		seen := make(map[string]bool)
		for _, t := range m.Targets {
			if t.Bundled() || t.External == "" || seen[t.External] {
				continue
			}
			seen[t.External] = true
			buf.WriteString(fmt.Sprintf("  m%d -> %q [style=dashed];\n", m.ID, t.External))
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}
