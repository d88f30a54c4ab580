package parser

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"jspack/internal/core/errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Parser turns source files into scanned Modules. It is safe for concurrent
// use; each call leases a tree-sitter parser from the grammar's pool.
type Parser struct {
	loader *GrammarLoader
}

func NewParser(loader *GrammarLoader) *Parser {
	return &Parser{loader: loader}
}

func (p *Parser) LoaderFor(path string) Loader {
	return p.loader.LoaderFor(path)
}

func (p *Parser) IsSupportedPath(path string) bool {
	return p.loader.LoaderFor(path) != LoaderNone
}

func (p *Parser) SupportedExtensions() []string {
	return p.loader.SupportedExtensions()
}

// Parse scans source as the file at path. JSON files become a module with a
// single default export.
func (p *Parser) Parse(path string, source []byte) (*Module, error) {
	loader := p.loader.LoaderFor(path)
	if loader == LoaderNone {
		return nil, errors.AddContext(errors.New(errors.CodeUnsupportedFile, "no loader for file extension"), errors.CtxPath, path)
	}
	if loader == LoaderJSON {
		if !json.Valid(source) {
			return nil, errors.AddContext(errors.New(errors.CodeParseError, "invalid JSON"), errors.CtxPath, path)
		}
		source = []byte(fmt.Sprintf("export default %s;\n", trimJSON(source)))
	}

	pool := p.loader.pool(loader)
	if pool == nil {
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("grammar not loaded: %s", loader))
	}
	sp := pool.Get()
	defer pool.Put(sp)

	tree := sp.Parse(source, nil)
	if tree == nil {
		return nil, errors.New(errors.CodeInternal, "parse failed")
	}
	defer tree.Close()

	m := &Module{
		Path:     path,
		Loader:   loader,
		Source:   source,
		TopLevel: make(map[string]int),
		FreeRefs: make(map[string]bool),
		Nested:   make(map[string]bool),
	}
	ctx := &ExtractionContext{Source: source, Module: m}
	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(ctx, root)
	}

	var err error
	if loader == LoaderCSS {
		err = extractStylesheet(ctx, root)
	} else {
		err = extractScript(ctx, root)
	}
	if err != nil {
		var unsupported *unsupportedError
		if stderrors.As(err, &unsupported) {
			return nil, located(errors.New(errors.CodeUnsupportedSyntax, unsupported.Error()), path, unsupported.loc.Line, unsupported.loc.Column)
		}
		return nil, errors.Wrap(err, errors.CodeInternal, "extraction failed")
	}
	return m, nil
}

func syntaxError(ctx *ExtractionContext, root *sitter.Node) error {
	node := firstErrorNode(root)
	if node == nil {
		node = root
	}
	loc := ctx.Location(node)
	msg := "unexpected syntax"
	if node.IsMissing() {
		msg = fmt.Sprintf("missing %q", node.Kind())
	} else if text := ctx.Text(node); text != "" && len(text) <= 40 {
		msg = fmt.Sprintf("unexpected %q", text)
	}
	return located(errors.New(errors.CodeParseError, msg), ctx.Module.Path, loc.Line, loc.Column)
}

func located(err error, path string, line, column int) error {
	err = errors.AddContext(err, errors.CtxPath, path)
	err = errors.AddContext(err, errors.CtxLine, line)
	return errors.AddContext(err, errors.CtxColumn, column)
}

func trimJSON(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
