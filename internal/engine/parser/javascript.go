package parser

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// typeOnlyKinds are TypeScript nodes with no runtime semantics.
var typeOnlyKinds = map[string]bool{
	"type_annotation":           true,
	"type_arguments":            true,
	"type_parameters":           true,
	"type_predicate_annotation": true,
	"asserts_annotation":        true,
	"implements_clause":         true,
	"interface_declaration":     true,
	"type_alias_declaration":    true,
	"ambient_declaration":       true,
	"function_signature":        true,
	"method_signature":          true,
	"abstract_method_signature": true,
	"index_signature":           true,
	"accessibility_modifier":    true,
	"override_modifier":         true,
	"omitting_type_annotation":  true,
	"adding_type_annotation":    true,
	"opting_type_annotation":    true,
	"type_assertion_annotation": true,
	"construct_signature":       true,
	"call_signature":            true,
	"property_signature":        true,
}

// unsupportedKinds cannot be erased without a real transform.
var unsupportedKinds = map[string]string{
	"enum_declaration":         "TypeScript enums",
	"internal_module":          "TypeScript namespaces",
	"module":                   "TypeScript namespaces",
	"import_alias":             "import aliases",
	"import_require_clause":    "import = require()",
	"jsx_element":              "JSX",
	"jsx_self_closing_element": "JSX",
	"decorator":                "decorators",
}

func isFunctionKind(kind string) bool {
	switch kind {
	case "function_declaration", "generator_function_declaration", "function_expression",
		"function", "generator_function", "arrow_function", "method_definition":
		return true
	}
	return false
}

type scriptExtractor struct {
	ctx *ExtractionContext
	ts  bool

	unsupported     *sitter.Node
	unsupportedWhat string

	// reads holds, per statement, the names its purity depends on being
	// declared in the module.
	current int
	reads   map[int][]string
}

// pureGlobals may be read without a ReferenceError in any host.
var pureGlobals = map[string]bool{
	"undefined": true, "NaN": true, "Infinity": true, "globalThis": true,
	"Object": true, "Array": true, "Function": true, "String": true, "Number": true,
	"Boolean": true, "Symbol": true, "BigInt": true, "Math": true, "JSON": true,
	"Date": true, "RegExp": true, "Error": true, "TypeError": true, "RangeError": true,
	"Map": true, "Set": true, "WeakMap": true, "WeakSet": true, "Promise": true,
	"Reflect": true, "Proxy": true,
}

// extractScript fills ctx.Module from a JavaScript or TypeScript tree.
func extractScript(ctx *ExtractionContext, root *sitter.Node) error {
	m := ctx.Module
	x := &scriptExtractor{ctx: ctx, ts: m.Loader == LoaderTS || m.Loader == LoaderTSX, reads: make(map[int][]string)}
	x.trivia(root)
	if x.unsupported != nil {
		loc := ctx.Location(x.unsupported)
		return &unsupportedError{what: x.unsupportedWhat, loc: loc}
	}

	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		x.statement(child)
	}
	for index, names := range x.reads {
		for _, name := range names {
			if _, ok := m.TopLevel[name]; !ok {
				m.Stmts[index].SideEffects = true
				break
			}
		}
	}

	for _, st := range m.Stmts {
		for _, ref := range st.Refs {
			if _, ok := m.TopLevel[ref.Name]; !ok {
				m.FreeRefs[ref.Name] = true
			}
		}
	}
	if m.FreeRefs["module"] || m.FreeRefs["exports"] {
		m.CommonJS = true
	}
	if m.FreeRefs["require"] && !x.hasModuleSyntax() {
		m.CommonJS = true
	}
	if m.FreeRefs["eval"] {
		m.UsesEval = true
	}
	return nil
}

func (x *scriptExtractor) hasModuleSyntax() bool {
	for _, st := range x.ctx.Module.Stmts {
		switch st.Kind {
		case StmtImport, StmtExportFrom, StmtExportClause:
			return true
		}
		if !st.ExportKeyword.Empty() {
			return true
		}
	}
	return false
}

type unsupportedError struct {
	what string
	loc  Location
}

func (e *unsupportedError) Error() string {
	return fmt.Sprintf("%s are not supported", e.what)
}

// trivia records comments, protected literals and TypeScript erasure ranges
// over the whole tree.
func (x *scriptExtractor) trivia(root *sitter.Node) {
	handlers := map[string]NodeHandler{
		"comment": func(ctx *ExtractionContext, node *sitter.Node) bool {
			ctx.Module.Comments = append(ctx.Module.Comments, ctx.Range(node))
			return true
		},
		"template_string": func(ctx *ExtractionContext, node *sitter.Node) bool {
			ctx.Module.Protected = append(ctx.Module.Protected, ctx.Range(node))
			return false
		},
		"string": func(ctx *ExtractionContext, node *sitter.Node) bool {
			if strings.Contains(ctx.Text(node), "\n") {
				ctx.Module.Protected = append(ctx.Module.Protected, ctx.Range(node))
			}
			return true
		},
		"with_statement": func(ctx *ExtractionContext, node *sitter.Node) bool {
			ctx.Module.UsesWith = true
			return false
		},
	}
	for kind, what := range unsupportedKinds {
		what := what
		handlers[kind] = func(ctx *ExtractionContext, node *sitter.Node) bool {
			if x.unsupported == nil {
				x.unsupported = node
				x.unsupportedWhat = what
			}
			return true
		}
	}
	if x.ts {
		x.addTypeScriptHandlers(handlers)
	}
	NewExtractorEngine(handlers).Walk(x.ctx, root)
}

func (x *scriptExtractor) addTypeScriptHandlers(handlers map[string]NodeHandler) {
	eraseAll := func(ctx *ExtractionContext, node *sitter.Node) bool {
		ctx.AddErase(ctx.Range(node))
		return true
	}
	for kind, erase := range typeOnlyKinds {
		if erase {
			handlers[kind] = eraseAll
		}
	}
	eraseTail := func(ctx *ExtractionContext, node *sitter.Node) bool {
		if expr := node.NamedChild(0); expr != nil {
			ctx.AddErase(Range{Start: uint32(expr.EndByte()), End: uint32(node.EndByte())})
		}
		return false
	}
	handlers["as_expression"] = eraseTail
	handlers["satisfies_expression"] = eraseTail
	handlers["non_null_expression"] = func(ctx *ExtractionContext, node *sitter.Node) bool {
		end := uint32(node.EndByte())
		ctx.AddErase(Range{Start: end - 1, End: end})
		return false
	}
	eraseKeywords := func(keywords ...string) NodeHandler {
		return func(ctx *ExtractionContext, node *sitter.Node) bool {
			for i := uint(0); i < node.ChildCount(); i++ {
				child := node.Child(i)
				if child == nil || child.IsNamed() {
					continue
				}
				for _, kw := range keywords {
					if child.Kind() == kw {
						ctx.AddErase(ctx.Range(child))
					}
				}
			}
			return false
		}
	}
	handlers["optional_parameter"] = eraseKeywords("?")
	handlers["abstract_class_declaration"] = eraseKeywords("abstract")
	handlers["variable_declarator"] = eraseKeywords("!")
	handlers["public_field_definition"] = func(ctx *ExtractionContext, node *sitter.Node) bool {
		if ctx.HasChildKind(node, "declare") || ctx.HasChildKind(node, "abstract") {
			ctx.AddErase(ctx.Range(node))
			return true
		}
		return eraseKeywords("readonly", "?", "!")(ctx, node)
	}
	handlers["required_parameter"] = eraseKeywords("readonly")
}

func hasSemicolon(node *sitter.Node) bool {
	n := node.ChildCount()
	if n == 0 {
		return false
	}
	last := node.Child(n - 1)
	return last != nil && last.Kind() == ";"
}

func (x *scriptExtractor) statement(node *sitter.Node) {
	ctx := x.ctx
	m := ctx.Module
	index := len(m.Stmts)
	x.current = index
	st := Stmt{
		Range:        ctx.Range(node),
		Record:       -1,
		HasSemicolon: hasSemicolon(node),
	}

	switch node.Kind() {
	case "import_statement":
		x.importStatement(&st, index, node)
	case "export_statement":
		x.exportStatement(&st, index, node)
	case "lexical_declaration", "variable_declaration":
		st.Kind = StmtDecl
		st.Declares = declaratorNames(ctx, node)
		st.SideEffects = !x.pureDeclaration(node)
		x.collectRefs(&st, index, node)
	case "function_declaration", "generator_function_declaration":
		st.Kind = StmtDecl
		st.Declares = []string{ctx.Text(node.ChildByFieldName("name"))}
		x.collectRefs(&st, index, node)
	case "class_declaration", "abstract_class_declaration":
		st.Kind = StmtDecl
		st.Declares = []string{ctx.Text(node.ChildByFieldName("name"))}
		st.SideEffects = !x.pureClass(node)
		x.collectRefs(&st, index, node)
	case "expression_statement":
		st.Kind = StmtExpr
		st.SideEffects = !x.pureExpr(node.NamedChild(0))
		x.collectRefs(&st, index, node)
	case "empty_statement":
		st.Kind = StmtOther
	case "hash_bang_line", "interface_declaration", "type_alias_declaration",
		"ambient_declaration", "function_signature":
		st.Kind = StmtTypeOnly
	default:
		st.Kind = StmtOther
		st.SideEffects = true
		st.Declares = hoistedVars(ctx, node)
		x.collectRefs(&st, index, node)
	}

	for _, name := range st.Declares {
		if name == "" {
			continue
		}
		if _, exists := m.TopLevel[name]; !exists {
			m.TopLevel[name] = index
		}
	}
	m.Stmts = append(m.Stmts, st)
}

func (x *scriptExtractor) importStatement(st *Stmt, index int, node *sitter.Node) {
	ctx := x.ctx
	st.Kind = StmtImport
	if ctx.HasChildKind(node, "type") {
		st.Kind = StmtTypeOnly
		return
	}
	source := node.ChildByFieldName("source")
	if source == nil {
		st.Kind = StmtTypeOnly
		return
	}
	rec := ImportRecord{
		Specifier: stringValue(ctx, source),
		Kind:      ImportStatic,
		Stmt:      index,
		SpecRange: ctx.Range(source),
		Loc:       ctx.Location(source),
	}
	typeOnlyClause := false
	if clause := ctx.ChildOfKind(node, "import_clause"); clause != nil {
		named := 0
		for i := uint(0); i < clause.NamedChildCount(); i++ {
			child := clause.NamedChild(i)
			switch child.Kind() {
			case "identifier":
				rec.Names = append(rec.Names, ImportName{Imported: "default", Local: ctx.Text(child)})
			case "namespace_import":
				if id := ctx.ChildOfKind(child, "identifier"); id != nil {
					rec.Names = append(rec.Names, ImportName{Imported: "*", Local: ctx.Text(id)})
				}
			case "named_imports":
				for j := uint(0); j < child.NamedChildCount(); j++ {
					spec := child.NamedChild(j)
					if spec.Kind() != "import_specifier" {
						continue
					}
					named++
					if ctx.HasChildKind(spec, "type") {
						continue
					}
					name := spec.ChildByFieldName("name")
					imported := exportName(ctx, name)
					local := imported
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						local = ctx.Text(alias)
					}
					rec.Names = append(rec.Names, ImportName{Imported: imported, Local: local})
				}
			}
		}
		// `import { type A } from "x"` is erased entirely.
		typeOnlyClause = named > 0 && len(rec.Names) == 0
	}
	if typeOnlyClause && x.ts {
		st.Kind = StmtTypeOnly
		return
	}
	for _, n := range rec.Names {
		st.Declares = append(st.Declares, n.Local)
	}
	st.Record = len(ctx.Module.Imports)
	ctx.Module.Imports = append(ctx.Module.Imports, rec)
}

func (x *scriptExtractor) exportStatement(st *Stmt, index int, node *sitter.Node) {
	ctx := x.ctx
	m := ctx.Module
	if ctx.HasChildKind(node, "type") || ctx.HasChildKind(node, "=") || ctx.HasChildKind(node, "namespace") {
		st.Kind = StmtTypeOnly
		return
	}
	isDefault := ctx.HasChildKind(node, "default")

	if source := node.ChildByFieldName("source"); source != nil {
		st.Kind = StmtExportFrom
		rec := ImportRecord{
			Specifier: stringValue(ctx, source),
			Kind:      ImportReExport,
			Stmt:      index,
			SpecRange: ctx.Range(source),
			Loc:       ctx.Location(source),
		}
		recIndex := len(m.Imports)
		switch {
		case ctx.HasChildKind(node, "namespace_export"):
			ns := ctx.ChildOfKind(node, "namespace_export")
			alias := exportName(ctx, ns.NamedChild(ns.NamedChildCount()-1))
			rec.Names = []ImportName{{Imported: "*", Local: alias}}
			m.Exports = append(m.Exports, Export{Name: alias, Local: "*", Stmt: index, Record: recIndex})
		case ctx.HasChildKind(node, "export_clause"):
			clause := ctx.ChildOfKind(node, "export_clause")
			for i := uint(0); i < clause.NamedChildCount(); i++ {
				spec := clause.NamedChild(i)
				if spec.Kind() != "export_specifier" || ctx.HasChildKind(spec, "type") {
					continue
				}
				name := exportName(ctx, spec.ChildByFieldName("name"))
				alias := name
				if a := spec.ChildByFieldName("alias"); a != nil {
					alias = exportName(ctx, a)
				}
				rec.Names = append(rec.Names, ImportName{Imported: name, Local: alias})
				m.Exports = append(m.Exports, Export{Name: alias, Local: name, Stmt: index, Record: recIndex})
			}
		default:
			rec.Kind = ImportReExportAll
		}
		st.Record = recIndex
		m.Imports = append(m.Imports, rec)
		return
	}

	if clause := ctx.ChildOfKind(node, "export_clause"); clause != nil {
		st.Kind = StmtExportClause
		for i := uint(0); i < clause.NamedChildCount(); i++ {
			spec := clause.NamedChild(i)
			if spec.Kind() != "export_specifier" || ctx.HasChildKind(spec, "type") {
				continue
			}
			nameNode := spec.ChildByFieldName("name")
			name := exportName(ctx, nameNode)
			alias := name
			if a := spec.ChildByFieldName("alias"); a != nil {
				alias = exportName(ctx, a)
			}
			m.Exports = append(m.Exports, Export{Name: alias, Local: name, Stmt: index, Record: -1})
			st.Refs = append(st.Refs, Ident{Name: name, Range: ctx.Range(nameNode)})
		}
		return
	}

	if decl := node.ChildByFieldName("declaration"); decl != nil {
		st.ExportKeyword = Range{Start: uint32(node.StartByte()), End: uint32(decl.StartByte())}
		switch decl.Kind() {
		case "interface_declaration", "type_alias_declaration", "ambient_declaration", "function_signature":
			st.Kind = StmtTypeOnly
			return
		case "lexical_declaration", "variable_declaration":
			st.Kind = StmtDecl
			st.Declares = declaratorNames(ctx, decl)
			st.SideEffects = !x.pureDeclaration(decl)
		case "class_declaration", "abstract_class_declaration":
			st.Kind = StmtDecl
			st.Declares = []string{ctx.Text(decl.ChildByFieldName("name"))}
			st.SideEffects = !x.pureClass(decl)
		default:
			st.Kind = StmtDecl
			st.Declares = []string{ctx.Text(decl.ChildByFieldName("name"))}
		}
		// `export default function () {}` binds no name of its own.
		if isDefault && len(st.Declares) == 1 && st.Declares[0] == "" {
			st.DefaultExpr = true
			st.Declares = []string{"default"}
			m.Exports = append(m.Exports, Export{Name: "default", Local: "default", Stmt: index, Record: -1})
			x.collectRefs(st, index, decl)
			return
		}
		for _, name := range st.Declares {
			exported := name
			if isDefault {
				exported = "default"
			}
			m.Exports = append(m.Exports, Export{Name: exported, Local: name, Stmt: index, Record: -1})
		}
		x.collectRefs(st, index, decl)
		return
	}

	if value := node.ChildByFieldName("value"); value != nil {
		st.Kind = StmtDecl
		st.DefaultExpr = true
		st.ExportKeyword = Range{Start: uint32(node.StartByte()), End: uint32(value.StartByte())}
		st.Declares = []string{"default"}
		st.SideEffects = !x.pureExpr(value)
		m.Exports = append(m.Exports, Export{Name: "default", Local: "default", Stmt: index, Record: -1})
		x.collectRefs(st, index, value)
		return
	}
	st.Kind = StmtTypeOnly
}

// exportName reads an identifier or string module export name.
func exportName(ctx *ExtractionContext, node *sitter.Node) string {
	if node == nil {
		return ""
	}
	if node.Kind() == "string" {
		return stringValue(ctx, node)
	}
	return ctx.Text(node)
}

// stringValue decodes a string or substitution-free template literal.
func stringValue(ctx *ExtractionContext, node *sitter.Node) string {
	var b strings.Builder
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "string_fragment":
			b.WriteString(ctx.Text(child))
		case "escape_sequence":
			b.WriteString(decodeEscape(ctx.Text(child)))
		}
	}
	return b.String()
}

func decodeEscape(seq string) string {
	if len(seq) < 2 {
		return seq
	}
	switch seq[1] {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return "\x00"
	case '\n':
		return ""
	}
	return seq[1:]
}

// isLiteralString reports a string or a template literal without substitutions.
func isLiteralString(node *sitter.Node) bool {
	if node == nil {
		return false
	}
	switch node.Kind() {
	case "string":
		return true
	case "template_string":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if node.NamedChild(i).Kind() == "template_substitution" {
				return false
			}
		}
		return true
	}
	return false
}

func declaratorNames(ctx *ExtractionContext, decl *sitter.Node) []string {
	var names []string
	for i := uint(0); i < decl.NamedChildCount(); i++ {
		d := decl.NamedChild(i)
		if d.Kind() != "variable_declarator" {
			continue
		}
		for _, id := range patternIdents(d.ChildByFieldName("name")) {
			names = append(names, ctx.Text(id))
		}
	}
	return names
}

// patternIdents returns the binding identifiers of a destructuring pattern.
func patternIdents(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	switch node.Kind() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []*sitter.Node{node}
	case "pair_pattern":
		return patternIdents(node.ChildByFieldName("value"))
	case "assignment_pattern", "object_assignment_pattern":
		return patternIdents(node.ChildByFieldName("left"))
	case "required_parameter", "optional_parameter":
		return patternIdents(node.ChildByFieldName("pattern"))
	case "object_pattern", "array_pattern", "rest_pattern", "formal_parameters":
		var out []*sitter.Node
		for i := uint(0); i < node.NamedChildCount(); i++ {
			out = append(out, patternIdents(node.NamedChild(i))...)
		}
		return out
	}
	return nil
}

// hoistedVars returns `var` bindings declared anywhere inside node outside of
// nested functions.
func hoistedVars(ctx *ExtractionContext, node *sitter.Node) []string {
	var names []string
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		kind := n.Kind()
		if isFunctionKind(kind) || kind == "class_body" {
			return
		}
		switch kind {
		case "variable_declaration":
			names = append(names, declaratorNames(ctx, n)...)
		case "for_in_statement":
			if k := n.ChildByFieldName("kind"); k != nil && ctx.Text(k) == "var" {
				for _, id := range patternIdents(n.ChildByFieldName("left")) {
					names = append(names, ctx.Text(id))
				}
			}
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(node)
	return names
}

// blockDeclarations returns the lexical bindings introduced directly in a block.
func blockDeclarations(ctx *ExtractionContext, block *sitter.Node) []string {
	var names []string
	for i := uint(0); i < block.NamedChildCount(); i++ {
		child := block.NamedChild(i)
		switch child.Kind() {
		case "lexical_declaration":
			names = append(names, declaratorNames(ctx, child)...)
		case "function_declaration", "generator_function_declaration", "class_declaration", "abstract_class_declaration":
			if name := child.ChildByFieldName("name"); name != nil {
				names = append(names, ctx.Text(name))
			}
		}
	}
	return names
}

func (x *scriptExtractor) pureDeclaration(decl *sitter.Node) bool {
	for i := uint(0); i < decl.NamedChildCount(); i++ {
		d := decl.NamedChild(i)
		if d.Kind() != "variable_declarator" {
			continue
		}
		if name := d.ChildByFieldName("name"); name != nil && name.Kind() != "identifier" {
			// Destructuring may invoke getters or iterators.
			return false
		}
		if value := d.ChildByFieldName("value"); value != nil && !x.pureExpr(value) {
			return false
		}
	}
	return true
}

func (x *scriptExtractor) pureClass(node *sitter.Node) bool {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "class_heritage":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				h := child.NamedChild(j)
				if h.Kind() == "implements_clause" || h.Kind() == "extends_clause" && x.pureHeritage(h) {
					continue
				}
				if !x.pureExpr(h) {
					return false
				}
			}
		case "class_body":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				member := child.NamedChild(j)
				switch member.Kind() {
				case "class_static_block":
					return false
				case "field_definition", "public_field_definition":
					if x.ctx.HasChildKind(member, "static") {
						if v := member.ChildByFieldName("value"); v != nil && !x.pureExpr(v) {
							return false
						}
					}
				}
				if prop := member.ChildByFieldName("property"); prop != nil && prop.Kind() == "computed_property_name" {
					return false
				}
				if name := member.ChildByFieldName("name"); name != nil && name.Kind() == "computed_property_name" {
					return false
				}
			}
		}
	}
	return true
}

func (x *scriptExtractor) pureHeritage(h *sitter.Node) bool {
	v := h.ChildByFieldName("value")
	if v == nil {
		v = h.NamedChild(0)
	}
	return x.pureExpr(v)
}

// pureExpr reports expressions whose evaluation cannot be observed. Identifier
// reads are recorded and checked against the module's declarations once
// every statement is scanned.
func (x *scriptExtractor) pureExpr(node *sitter.Node) bool {
	if node == nil {
		return true
	}
	switch node.Kind() {
	case "identifier", "shorthand_property_identifier":
		if name := x.ctx.Text(node); !pureGlobals[name] {
			x.reads[x.current] = append(x.reads[x.current], name)
		}
		return true
	case "number", "string", "true", "false", "null", "undefined", "regex",
		"this", "function_expression", "function", "arrow_function", "generator_function",
		"comment":
		return true
	case "template_string":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if child.Kind() == "template_substitution" && !x.pureExpr(child.NamedChild(0)) {
				return false
			}
		}
		return true
	case "class":
		return x.pureClass(node)
	case "parenthesized_expression", "as_expression", "satisfies_expression", "non_null_expression":
		return x.pureExpr(node.NamedChild(0))
	case "array":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if child.Kind() == "spread_element" || !x.pureExpr(child) {
				return false
			}
		}
		return true
	case "object":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			switch child.Kind() {
			case "shorthand_property_identifier":
				x.pureExpr(child)
			case "method_definition", "comment":
				continue
			case "pair":
				if key := child.ChildByFieldName("key"); key != nil && key.Kind() == "computed_property_name" {
					return false
				}
				if !x.pureExpr(child.ChildByFieldName("value")) {
					return false
				}
			default:
				return false
			}
		}
		return true
	case "unary_expression":
		op := node.ChildByFieldName("operator")
		if op != nil && x.ctx.Text(op) == "delete" {
			return false
		}
		if arg := node.ChildByFieldName("argument"); op != nil && x.ctx.Text(op) == "typeof" && arg != nil && arg.Kind() == "identifier" {
			return true
		}
		return x.pureExpr(node.ChildByFieldName("argument"))
	case "binary_expression":
		return x.pureExpr(node.ChildByFieldName("left")) && x.pureExpr(node.ChildByFieldName("right"))
	case "ternary_expression":
		return x.pureExpr(node.ChildByFieldName("condition")) &&
			x.pureExpr(node.ChildByFieldName("consequence")) &&
			x.pureExpr(node.ChildByFieldName("alternative"))
	case "sequence_expression":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if !x.pureExpr(node.NamedChild(i)) {
				return false
			}
		}
		return true
	case "call_expression", "new_expression":
		if !x.hasPureAnnotation(node) {
			return false
		}
		args := node.ChildByFieldName("arguments")
		if args == nil {
			return true
		}
		for i := uint(0); i < args.NamedChildCount(); i++ {
			if !x.pureExpr(args.NamedChild(i)) {
				return false
			}
		}
		return true
	}
	return false
}

// hasPureAnnotation reports a `/* @__PURE__ */` or `/* #__PURE__ */` comment
// directly before a call.
func (x *scriptExtractor) hasPureAnnotation(node *sitter.Node) bool {
	start := int(node.StartByte())
	src := x.ctx.Source
	i := start - 1
	for i >= 0 && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r' || src[i] == '(') {
		i--
	}
	if i < 1 || src[i] != '/' || src[i-1] != '*' {
		return false
	}
	open := strings.LastIndex(string(src[:i]), "/*")
	if open < 0 {
		return false
	}
	comment := string(src[open : i+1])
	return strings.Contains(comment, "@__PURE__") || strings.Contains(comment, "#__PURE__")
}

// refWalker collects identifier occurrences that resolve to module scope or
// to globals, skipping names shadowed by nested scopes.
type refWalker struct {
	x      *scriptExtractor
	st     *Stmt
	index  int
	scopes []map[string]bool
}

func (x *scriptExtractor) collectRefs(st *Stmt, index int, node *sitter.Node) {
	w := &refWalker{x: x, st: st, index: index}
	w.walk(node)
}

func (w *refWalker) shadowed(name string) bool {
	for i := len(w.scopes) - 1; i >= 0; i-- {
		if w.scopes[i][name] {
			return true
		}
	}
	return false
}

func (w *refWalker) push(names []string) {
	scope := make(map[string]bool, len(names))
	for _, n := range names {
		scope[n] = true
		w.x.ctx.Module.Nested[n] = true
	}
	w.scopes = append(w.scopes, scope)
}

func (w *refWalker) pop() {
	w.scopes = w.scopes[:len(w.scopes)-1]
}

func (w *refWalker) ref(node *sitter.Node, shorthand bool) {
	name := w.x.ctx.Text(node)
	if name == "" || w.shadowed(name) {
		return
	}
	w.st.Refs = append(w.st.Refs, Ident{Name: name, Range: w.x.ctx.Range(node), Shorthand: shorthand})
}

// callee walks the target of a call or new expression.
func (w *refWalker) callee(node *sitter.Node) {
	if node == nil || node.Kind() != "identifier" {
		w.walk(node)
		return
	}
	w.ref(node, false)
	if n := len(w.st.Refs); n > 0 && w.st.Refs[n-1].Range == w.x.ctx.Range(node) {
		w.st.Refs[n-1].Callee = true
	}
}

func (w *refWalker) walkChildren(node *sitter.Node) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		w.walk(node.NamedChild(i))
	}
}

func (w *refWalker) walk(node *sitter.Node) {
	if node == nil {
		return
	}
	ctx := w.x.ctx
	kind := node.Kind()
	if typeOnlyKinds[kind] {
		return
	}
	switch kind {
	case "identifier":
		w.ref(node, false)
	case "shorthand_property_identifier", "shorthand_property_identifier_pattern":
		w.ref(node, true)
	case "as_expression", "satisfies_expression":
		w.walk(node.NamedChild(0))
	case "public_field_definition", "field_definition":
		if ctx.HasChildKind(node, "declare") {
			return
		}
		if prop := node.ChildByFieldName("property"); prop != nil && prop.Kind() == "computed_property_name" {
			w.walk(prop)
		}
		if name := node.ChildByFieldName("name"); name != nil && name.Kind() == "computed_property_name" {
			w.walk(name)
		}
		w.walk(node.ChildByFieldName("value"))
	case "function_declaration", "generator_function_declaration":
		if name := node.ChildByFieldName("name"); name != nil {
			w.ref(name, false)
		}
		w.function(node, "")
	case "function_expression", "function", "generator_function":
		self := ""
		if name := node.ChildByFieldName("name"); name != nil {
			self = ctx.Text(name)
		}
		w.function(node, self)
	case "arrow_function", "method_definition":
		if name := node.ChildByFieldName("name"); name != nil && name.Kind() == "computed_property_name" {
			w.walk(name)
		}
		w.function(node, "")
	case "class_declaration", "abstract_class_declaration", "class":
		name := node.ChildByFieldName("name")
		if name != nil && kind != "class" {
			w.ref(name, false)
		}
		if name != nil && kind == "class" {
			w.push([]string{ctx.Text(name)})
			defer w.pop()
		}
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if name != nil && child.StartByte() == name.StartByte() && child.EndByte() == name.EndByte() {
				continue
			}
			w.walk(child)
		}
	case "statement_block", "class_static_block":
		w.push(blockDeclarations(ctx, node))
		w.walkChildren(node)
		w.pop()
	case "for_statement":
		var names []string
		if init := node.ChildByFieldName("initializer"); init != nil && init.Kind() == "lexical_declaration" {
			names = declaratorNames(ctx, init)
		}
		w.push(names)
		w.walkChildren(node)
		w.pop()
	case "for_in_statement":
		var names []string
		if k := node.ChildByFieldName("kind"); k != nil && ctx.Text(k) != "var" {
			for _, id := range patternIdents(node.ChildByFieldName("left")) {
				names = append(names, ctx.Text(id))
			}
		}
		w.push(names)
		w.walkChildren(node)
		w.pop()
	case "catch_clause":
		var names []string
		for _, id := range patternIdents(node.ChildByFieldName("parameter")) {
			names = append(names, ctx.Text(id))
		}
		w.push(names)
		w.walkChildren(node)
		w.pop()
	case "call_expression":
		w.call(node)
	case "new_expression":
		w.callee(node.ChildByFieldName("constructor"))
		if args := node.ChildByFieldName("arguments"); args != nil {
			w.walkChildren(args)
		}
	case "member_expression":
		w.walk(node.ChildByFieldName("object"))
		if prop := node.ChildByFieldName("property"); prop != nil && prop.Kind() != "property_identifier" && prop.Kind() != "private_property_identifier" {
			w.walk(prop)
		}
	case "pair":
		if key := node.ChildByFieldName("key"); key != nil && key.Kind() == "computed_property_name" {
			w.walk(key)
		}
		w.walk(node.ChildByFieldName("value"))
	case "pair_pattern":
		if key := node.ChildByFieldName("key"); key != nil && key.Kind() == "computed_property_name" {
			w.walk(key)
		}
		w.walk(node.ChildByFieldName("value"))
	case "labeled_statement":
		w.walk(node.ChildByFieldName("body"))
	case "break_statement", "continue_statement", "comment", "property_identifier",
		"private_property_identifier", "statement_identifier", "string", "number", "regex":
	default:
		w.walkChildren(node)
	}
}

// function walks a function-like node inside its own parameter scope.
func (w *refWalker) function(node *sitter.Node, self string) {
	ctx := w.x.ctx
	var names []string
	if self != "" {
		names = append(names, self)
	}
	if p := node.ChildByFieldName("parameter"); p != nil {
		names = append(names, ctx.Text(p))
	}
	params := node.ChildByFieldName("parameters")
	for _, id := range patternIdents(params) {
		names = append(names, ctx.Text(id))
	}
	body := node.ChildByFieldName("body")
	if body != nil && body.Kind() == "statement_block" {
		names = append(names, hoistedVars(ctx, body)...)
	}
	if node.Kind() != "arrow_function" {
		names = append(names, "arguments")
	}
	w.push(names)
	if params != nil {
		w.walk(params)
	}
	w.walk(body)
	w.pop()
}

// call records import()/require() sites and direct eval before walking
// the call's children.
func (w *refWalker) call(node *sitter.Node) {
	ctx := w.x.ctx
	m := ctx.Module
	fn := node.ChildByFieldName("function")
	args := node.ChildByFieldName("arguments")
	var first *sitter.Node
	if args != nil && args.NamedChildCount() > 0 {
		first = args.NamedChild(0)
	}

	switch {
	case fn != nil && fn.Kind() == "import":
		if isLiteralString(first) && args.NamedChildCount() == 1 {
			m.Imports = append(m.Imports, ImportRecord{
				Specifier: stringValue(ctx, first),
				Kind:      ImportDynamic,
				Stmt:      w.index,
				SpecRange: ctx.Range(first),
				ExprRange: ctx.Range(node),
				Loc:       ctx.Location(first),
			})
		} else {
			m.NonLiteralDynamicImport = true
		}
	case fn != nil && fn.Kind() == "identifier" && ctx.Text(fn) == "require" && !w.shadowed("require"):
		if isLiteralString(first) && args.NamedChildCount() == 1 {
			m.Imports = append(m.Imports, ImportRecord{
				Specifier: stringValue(ctx, first),
				Kind:      ImportRequire,
				Stmt:      w.index,
				SpecRange: ctx.Range(first),
				ExprRange: ctx.Range(node),
				Loc:       ctx.Location(first),
			})
		}
	case fn != nil && fn.Kind() == "identifier" && ctx.Text(fn) == "eval" && !w.shadowed("eval"):
		m.UsesEval = true
	}
	if fn != nil && fn.Kind() != "import" {
		w.callee(fn)
	}
	if args != nil {
		w.walkChildren(args)
	}
}
