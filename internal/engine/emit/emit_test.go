package emit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jspack/internal/engine/graph"
	"jspack/internal/engine/hoist"
	"jspack/internal/engine/parser"
	"jspack/internal/engine/resolver"
	"jspack/internal/engine/shaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bundle(t *testing.T, files map[string]string, entry string, flatten bool, opts Options) *Output {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	ctx := context.Background()
	res := resolver.New(nil, nil, nil, resolver.Options{Platform: "node"})
	g, err := graph.NewBuilder(nil, res, parser.NewParser(parser.NewGrammarLoader(nil)), graph.Options{Workers: 2}).
		Build(ctx, root, []string{entry})
	require.NoError(t, err)
	_, _, err = shaker.Shake(ctx, g)
	require.NoError(t, err)
	plan, err := hoist.Build(ctx, g, g.EmissionOrder(), hoist.Options{Flatten: flatten})
	require.NoError(t, err)
	opts.Root = root
	out, err := Emit(ctx, g, plan, opts)
	require.NoError(t, err)
	return out
}

var scenario = map[string]string{
	"index.js": "import { a } from './lib.js';\nconsole.log(a);\n",
	"lib.js":   "export const a = 1;\nexport const b = 2;\n",
}

func TestEmitHoistedDropsUnusedExport(t *testing.T) {
	out := bundle(t, scenario, "index.js", true, Options{})
	assert.Equal(t, "const a = 1;\nconsole.log(a);\n", string(out.Code))
	assert.Len(t, out.Modules, 2)
	assert.Nil(t, out.CSS)
	assert.Nil(t, out.SourceMap)
}

func TestEmitWrappedModules(t *testing.T) {
	out := bundle(t, scenario, "index.js", false, Options{})
	code := string(out.Code)

	assert.Contains(t, code, "function __jspack_require(id) {")
	assert.Contains(t, code, "__jspack_modules[1] = function (module, exports) {\n__jspack_export(exports, {\n  a: function () { return a; }\n}, []);\nconst a = 1;\n};\n")
	assert.Contains(t, code, "__jspack_modules[0] = function (module, exports) {\n__jspack_export(exports, {}, []);\n__jspack_require(1);\nconsole.log(__jspack_require(1).a);\n};\n")
	assert.True(t, strings.HasSuffix(code, "__jspack_require(0);\n"))
	assert.NotContains(t, code, "const b")
	assert.Len(t, out.Modules, 2)
}

var callees = map[string]string{
	"index.js": "import { C, f, tag } from './lib.js';\nconsole.log(new C().x, f(), tag`t`);\n",
	"lib.js": "export class C { constructor() { this.x = 1; } }\n" +
		"export function f() { return this; }\n" +
		"export function tag(s) { return s[0]; }\n",
}

func TestEmitWrappedCalleesKeepReceiver(t *testing.T) {
	out := bundle(t, callees, "index.js", false, Options{})
	code := string(out.Code)

	assert.Contains(t, code, "console.log(new (0, __jspack_require(1).C)().x, (0, __jspack_require(1).f)(), (0, __jspack_require(1).tag)`t`);\n")
	assert.NotContains(t, code, "new __jspack_require")
}

func TestEmitHoistedCalleesStayBare(t *testing.T) {
	out := bundle(t, callees, "index.js", true, Options{})
	assert.True(t, strings.HasSuffix(string(out.Code), "console.log(new C().x, f(), tag`t`);\n"))
}

func TestEmitRenamesAndDefaultExports(t *testing.T) {
	out := bundle(t, map[string]string{
		"index.js": "import { x } from './a';\nimport cfg from './cfg';\nconsole.log(x, cfg);\n",
		"a.js":     "export const x = 5;\n",
		"cfg.js":   "const x = 1;\nexport default { x };\n",
	}, "index.js", true, Options{})

	assert.Equal(t, "const x = 5;\nconst x$1 = 1;\nconst cfg_default = { x: x$1 };\nconsole.log(x, cfg_default);\n", string(out.Code))
}

func TestEmitErasesTypeScript(t *testing.T) {
	out := bundle(t, map[string]string{
		"index.ts": "import { add } from './lib';\nconsole.log(add(1, 2) as number);\n",
		"lib.ts":   "export interface Pair { x: number }\nexport function add(a: number, b: number): number { return a + b; }\n",
	}, "index.ts", true, Options{})

	assert.Equal(t, "function add(a, b) { return a + b; }\nconsole.log(add(1, 2));\n", string(out.Code))
}

func TestEmitMinifyKeepsProtectedLiterals(t *testing.T) {
	out := bundle(t, map[string]string{
		"index.js": "import { f } from './f';\nf();\n",
		"f.js":     "export function f() {\n    // comment\n    return `multi\n    line`;\n}\n",
	}, "index.js", true, Options{Minify: true})

	assert.Equal(t, "function f() {\nreturn `multi\n    line`;\n}\nf();\n", string(out.Code))
}

func TestEmitSourceMap(t *testing.T) {
	out := bundle(t, scenario, "index.js", true, Options{Sourcemap: true, OutFile: "dist/out.js"})
	require.NotNil(t, out.SourceMap)
	assert.True(t, strings.HasSuffix(string(out.Code), "//# sourceMappingURL=out.js.map\n"))

	var sm SourceMap
	require.NoError(t, json.Unmarshal(out.SourceMap, &sm))
	assert.Equal(t, 3, sm.Version)
	assert.Equal(t, "out.js", sm.File)
	assert.Equal(t, []string{"lib.js", "index.js"}, sm.Sources)
	require.Len(t, sm.SourcesContent, 2)
	assert.Equal(t, scenario["lib.js"], sm.SourcesContent[0])

	mappings, ok := DecodeMappings(sm.Mappings)
	require.True(t, ok)
	require.Len(t, mappings, 2)
	assert.Equal(t, Mapping{GenLine: 0, GenCol: 0, Source: 0, SrcLine: 0, SrcCol: 7}, mappings[0])
	assert.Equal(t, Mapping{GenLine: 1, GenCol: 0, Source: 1, SrcLine: 1, SrcCol: 0}, mappings[1])
}

func TestEmitCSSAsset(t *testing.T) {
	out := bundle(t, map[string]string{
		"index.js": "import './a.css';\n",
		"a.css":    "@import './b.css';\n.a { color: red; }\n",
		"b.css":    ".b { color: blue; }\n",
	}, "index.js", true, Options{})

	assert.Equal(t, ".b { color: blue; }\n.a { color: red; }\n", string(out.CSS))
	assert.Empty(t, out.Code)
	assert.Len(t, out.Modules, 3)
}

func TestEmitIIFEWithExternals(t *testing.T) {
	out := bundle(t, map[string]string{
		"index.js": "import { readFileSync } from 'node:fs';\nexport const read = readFileSync;\n",
	}, "index.js", true, Options{Format: FormatIIFE, GlobalName: "lib"})
	code := string(out.Code)

	assert.True(t, strings.HasPrefix(code, "var lib = (function () {\n\"use strict\";\n"))
	assert.Contains(t, code, "var node_fs = __jspack_external(\"node:fs\");\n")
	assert.Contains(t, code, "const read = node_fs.readFileSync;\n")
	assert.Contains(t, code, "return __jspack_namespace({\n  read: function () { return read; }\n});\n")
	assert.True(t, strings.HasSuffix(code, "})();\n"))
}

func TestEmitESMExternalsAndEntryExports(t *testing.T) {
	out := bundle(t, map[string]string{
		"index.js": "import { join } from 'node:path';\nconst local = (p) => join(p, 'x');\nexport { local as resolve };\n",
	}, "index.js", true, Options{})

	assert.Equal(t, "import * as node_path from \"node:path\";\n"+
		"const local = (p) => (0, node_path.join)(p, 'x');\n"+
		"export { local as resolve };\n", string(out.Code))
}

func TestEmitRejectsUnknownFormat(t *testing.T) {
	_, err := Emit(context.Background(), graph.New(), &hoist.Plan{Scopes: map[graph.ModuleID]*hoist.Scope{}}, Options{Format: "amd"})
	require.Error(t, err)
}

func TestVLQ(t *testing.T) {
	cases := map[int]string{0: "A", 1: "C", -1: "D", 16: "gB", 123: "2H"}
	for value, want := range cases {
		var b strings.Builder
		appendVLQ(&b, value)
		assert.Equal(t, want, b.String(), value)
		got, n, ok := decodeVLQ(want)
		require.True(t, ok)
		assert.Equal(t, len(want), n)
		assert.Equal(t, value, got)
	}

	in := []Mapping{{0, 0, 0, 0, 7}, {0, 12, 0, 0, 19}, {2, 4, 1, 3, 2}}
	decoded, ok := DecodeMappings(encodeMappings(in))
	require.True(t, ok)
	assert.Equal(t, in, decoded)
}
