package parser

import (
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_css "github.com/tree-sitter/tree-sitter-css/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// DefaultLoaders maps file extensions to loaders.
var DefaultLoaders = map[string]Loader{
	".js":   LoaderJS,
	".mjs":  LoaderJS,
	".cjs":  LoaderJS,
	".jsx":  LoaderJSX,
	".ts":   LoaderTS,
	".mts":  LoaderTS,
	".cts":  LoaderTS,
	".tsx":  LoaderTSX,
	".css":  LoaderCSS,
	".json": LoaderJSON,
}

// GrammarLoader owns the tree-sitter grammars and one parser pool per grammar.
type GrammarLoader struct {
	languages  map[Loader]*sitter.Language
	pools      map[Loader]*ParserPool
	extensions map[string]Loader
}

// NewGrammarLoader loads the JavaScript, TypeScript, TSX and CSS grammars.
// Extra extension mappings override DefaultLoaders.
func NewGrammarLoader(extra map[string]Loader) *GrammarLoader {
	gl := &GrammarLoader{
		languages:  make(map[Loader]*sitter.Language),
		pools:      make(map[Loader]*ParserPool),
		extensions: make(map[string]Loader, len(DefaultLoaders)+len(extra)),
	}
	js := sitter.NewLanguage(tree_sitter_javascript.Language())
	gl.languages[LoaderJS] = js
	gl.languages[LoaderJSX] = js
	gl.languages[LoaderJSON] = js
	gl.languages[LoaderTS] = sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	gl.languages[LoaderTSX] = sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	gl.languages[LoaderCSS] = sitter.NewLanguage(tree_sitter_css.Language())

	for l, lang := range gl.languages {
		gl.pools[l] = NewParserPool(lang)
	}
	for ext, l := range DefaultLoaders {
		gl.extensions[ext] = l
	}
	for ext, l := range extra {
		gl.extensions[strings.ToLower(ext)] = l
	}
	return gl
}

func (gl *GrammarLoader) LoaderFor(path string) Loader {
	return gl.extensions[strings.ToLower(filepath.Ext(path))]
}

func (gl *GrammarLoader) pool(l Loader) *ParserPool {
	return gl.pools[l]
}

func (gl *GrammarLoader) SupportedExtensions() []string {
	out := make([]string, 0, len(gl.extensions))
	for ext := range gl.extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// ActiveParsers reports parsers currently leased across all pools.
func (gl *GrammarLoader) ActiveParsers() int {
	total := 0
	seen := make(map[*ParserPool]bool)
	for _, p := range gl.pools {
		if seen[p] {
			continue
		}
		seen[p] = true
		total += p.Stats()
	}
	return total
}
