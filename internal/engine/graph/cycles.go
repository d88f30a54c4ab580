package graph

// DetectCycles returns each import cycle once, as the module IDs along the
// cycle starting from the first one reached. Modules and imports are visited
// in ID and source order so the result is stable.
func (g *Graph) DetectCycles() [][]ModuleID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var cycles [][]ModuleID
	visited := make([]bool, len(g.modules))
	onStack := make([]bool, len(g.modules))

	for id := range g.modules {
		if !visited[id] {
			g.findCycles(ModuleID(id), visited, onStack, nil, &cycles)
		}
	}
	return cycles
}

func (g *Graph) findCycles(curr ModuleID, visited, onStack []bool, path []ModuleID, cycles *[][]ModuleID) {
	visited[curr] = true
	onStack[curr] = true
	path = append(path, curr)

	for _, next := range g.dependencies(curr) {
		if onStack[next] {
			for i, mod := range path {
				if mod == next {
					cycle := make([]ModuleID, len(path)-i)
					copy(cycle, path[i:])
					*cycles = append(*cycles, cycle)
					break
				}
			}
		} else if !visited[next] {
			g.findCycles(next, visited, onStack, path, cycles)
		}
	}

	onStack[curr] = false
}

// dependencies lists the distinct bundled targets of a module in source
// order. Callers hold g.mu.
func (g *Graph) dependencies(id ModuleID) []ModuleID {
	node := g.modules[id]
	out := make([]ModuleID, 0, len(node.Targets))
	seen := make(map[ModuleID]bool, len(node.Targets))
	for _, t := range node.Targets {
		if !t.Bundled() || seen[t.Module] {
			continue
		}
		seen[t.Module] = true
		out = append(out, t.Module)
	}
	return out
}

func (g *Graph) CyclePaths(cycle []ModuleID) []string {
	out := make([]string, 0, len(cycle)+1)
	for _, id := range cycle {
		out = append(out, g.Module(id).Path)
	}
	if len(cycle) > 0 {
		out = append(out, g.Module(cycle[0]).Path)
	}
	return out
}

// ImportChain returns the shortest import path from one module to another.
func (g *Graph) ImportChain(from, to ModuleID) ([]ModuleID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if from < 0 || to < 0 || int(from) >= len(g.modules) || int(to) >= len(g.modules) {
		return nil, false
	}
	if from == to {
		return []ModuleID{from}, true
	}

	queue := []ModuleID{from}
	visited := map[ModuleID]bool{from: true}
	prev := make(map[ModuleID]ModuleID)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, next := range g.dependencies(curr) {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = curr

			if next == to {
				path := []ModuleID{to}
				for node := to; node != from; {
					node = prev[node]
					path = append(path, node)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

// AffectedBy returns the path of the module at changedFile followed by
// every module that imports it directly or transitively.
func (g *Graph) AffectedBy(changedFile string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.byPath[changedFile]
	if !ok {
		return nil
	}
	out := []string{changedFile}
	seen := map[ModuleID]bool{start: true}
	queue := []ModuleID{start}
	for len(queue) > 0 {
		mod := queue[0]
		queue = queue[1:]
		for _, importer := range g.modules[mod].Importers {
			if seen[importer] {
				continue
			}
			seen[importer] = true
			out = append(out, g.modules[importer].Path)
			queue = append(queue, importer)
		}
	}
	return out
}
