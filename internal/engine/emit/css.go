package emit

import (
	"strings"

	"jspack/internal/engine/hoist"
	"jspack/internal/engine/parser"
)

// emitCSS concatenates stylesheet modules in emission order. Bundled
// @import rules are dropped since their targets are already inlined ahead of
// the importer; runtime @import rules move to the top of the asset.
func emitCSS(plan *hoist.Plan, minify bool) []byte {
	var head, body strings.Builder
	for _, id := range plan.Order {
		m := plan.Scope(id).Module
		if !m.IsStylesheet() {
			continue
		}
		w := newWriter(m.AST, false)
		for i, st := range m.AST.Stmts {
			if !live(m, i) {
				continue
			}
			if st.Kind == parser.StmtImport && st.Record >= 0 {
				if t := m.Targets[st.Record]; !t.Bundled() {
					head.Write(m.AST.Source[st.Range.Start:st.Range.End])
					head.WriteByte('\n')
				}
				continue
			}
			var edits []edit
			if minify {
				edits = minifyEdits(m.AST, st.Range)
			}
			w.splice(st.Range, edits)
			w.WriteString("\n")
		}
		body.WriteString(w.b.String())
	}
	if head.Len() == 0 && body.Len() == 0 {
		return nil
	}
	return []byte(head.String() + body.String())
}
