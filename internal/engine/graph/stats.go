package graph

import "sort"

// ModuleStats summarizes one module's position in the graph.
type ModuleStats struct {
	ID     ModuleID
	Path   string
	FanIn  int
	FanOut int
	// Score ranks modules for reports: FanIn*2 + FanOut, plus 10 for entries.
	Score float64
}

func importanceScore(fanIn, fanOut int, entry bool) float64 {
	score := float64(fanIn*2) + float64(fanOut)
	if entry {
		score += 10
	}
	return score
}

// Stats returns per-module fan-in and fan-out ordered by descending score,
// then path.
func (g *Graph) Stats() []ModuleStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]ModuleStats, 0, len(g.modules))
	for _, m := range g.modules {
		fanOut := len(g.dependencies(m.ID))
		out = append(out, ModuleStats{
			ID:     m.ID,
			Path:   m.Path,
			FanIn:  len(m.Importers),
			FanOut: fanOut,
			Score:  importanceScore(len(m.Importers), fanOut, m.IsEntry),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Path < out[j].Path
	})
	return out
}
