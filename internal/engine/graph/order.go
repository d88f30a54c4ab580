package graph

// EmissionOrder returns every reachable module with dependencies before
// dependents: a depth-first post-order from the entries in entry order,
// following imports in source order. A module inside a cycle is emitted
// once, at the point its first visit completes.
func (g *Graph) EmissionOrder() []ModuleID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order := make([]ModuleID, 0, len(g.modules))
	state := make([]uint8, len(g.modules))
	var visit func(id ModuleID)
	visit = func(id ModuleID) {
		if state[id] != 0 {
			return
		}
		state[id] = 1
		for _, dep := range g.dependencies(id) {
			visit(dep)
		}
		state[id] = 2
		order = append(order, id)
	}
	for _, entry := range g.Entries {
		visit(entry)
	}
	// Covers graphs assembled without entry points.
	for id := range g.modules {
		visit(ModuleID(id))
	}
	return order
}
