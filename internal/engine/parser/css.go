package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// extractStylesheet records every top-level rule as a side-effecting statement
// and every `@import` as a stylesheet import record.
func extractStylesheet(ctx *ExtractionContext, root *sitter.Node) error {
	m := ctx.Module
	NewExtractorEngine(map[string]NodeHandler{
		"comment": func(ctx *ExtractionContext, node *sitter.Node) bool {
			ctx.Module.Comments = append(ctx.Module.Comments, ctx.Range(node))
			return true
		},
		"string_value": func(ctx *ExtractionContext, node *sitter.Node) bool {
			ctx.Module.Protected = append(ctx.Module.Protected, ctx.Range(node))
			return true
		},
	}).Walk(ctx, root)

	for i := uint(0); i < root.NamedChildCount(); i++ {
		node := root.NamedChild(i)
		if node.Kind() == "comment" {
			continue
		}
		index := len(m.Stmts)
		st := Stmt{Kind: StmtOther, Range: ctx.Range(node), Record: -1, SideEffects: true}
		if node.Kind() == "import_statement" {
			if spec, specNode := cssImportTarget(ctx, node); specNode != nil {
				st.Kind = StmtImport
				st.Record = len(m.Imports)
				m.Imports = append(m.Imports, ImportRecord{
					Specifier: spec,
					Kind:      ImportStylesheet,
					Stmt:      index,
					SpecRange: ctx.Range(specNode),
					Loc:       ctx.Location(specNode),
				})
			}
		}
		m.Stmts = append(m.Stmts, st)
	}
	return nil
}

// cssImportTarget reads `@import "x"`, `@import url(x)` and `@import url("x")`.
func cssImportTarget(ctx *ExtractionContext, node *sitter.Node) (string, *sitter.Node) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "string_value":
			return unquoteCSS(ctx.Text(child)), child
		case "call_expression":
			if ctx.Text(child.NamedChild(0)) != "url" {
				continue
			}
			args := ctx.ChildOfKind(child, "arguments")
			if args == nil || args.NamedChildCount() == 0 {
				continue
			}
			arg := args.NamedChild(0)
			return unquoteCSS(ctx.Text(arg)), arg
		}
	}
	return "", nil
}

func unquoteCSS(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
