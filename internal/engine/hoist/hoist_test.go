package hoist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"jspack/internal/engine/graph"
	"jspack/internal/engine/parser"
	"jspack/internal/engine/resolver"
	"jspack/internal/engine/shaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	g    *graph.Graph
	root string
}

func shaken(t *testing.T, files map[string]string, entry string) fixture {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	res := resolver.New(nil, nil, nil, resolver.Options{Platform: "node"})
	b := graph.NewBuilder(nil, res, parser.NewParser(parser.NewGrammarLoader(nil)), graph.Options{Workers: 2})
	g, err := b.Build(context.Background(), root, []string{entry})
	require.NoError(t, err)
	_, _, err = shaker.Shake(context.Background(), g)
	require.NoError(t, err)
	return fixture{g: g, root: root}
}

func (f fixture) scope(t *testing.T, p *Plan, rel string) *Scope {
	t.Helper()
	id, ok := f.g.Lookup(filepath.Join(f.root, filepath.FromSlash(rel)))
	require.True(t, ok, rel)
	s := p.Scope(id)
	require.NotNil(t, s, rel)
	return s
}

func plan(t *testing.T, f fixture, flatten bool) *Plan {
	t.Helper()
	p, err := Build(context.Background(), f.g, f.g.EmissionOrder(), Options{Flatten: flatten})
	require.NoError(t, err)
	return p
}

func TestHoistRenamesCollisions(t *testing.T) {
	f := shaken(t, map[string]string{
		"index.js": "import { a } from './a';\nimport { b } from './b';\nconst count = a() + b();\nconsole.log(count);\n",
		"a.js":     "const count = 1;\nfunction helper() { return count; }\nexport const a = () => helper();\n",
		"b.js":     "const count = 2;\nfunction helper() { return count; }\nexport const b = () => helper();\n",
	}, "index.js")
	p := plan(t, f, true)

	a := f.scope(t, p, "a.js")
	b := f.scope(t, p, "b.js")
	index := f.scope(t, p, "index.js")
	assert.Equal(t, "count", a.Local("count"))
	assert.Equal(t, "helper", a.Local("helper"))
	assert.Equal(t, "count$1", b.Local("count"))
	assert.Equal(t, "helper$1", b.Local("helper"))
	assert.Equal(t, "count$2", index.Local("count"))

	assert.Equal(t, "a", index.Imports["a"])
	assert.Equal(t, "b", index.Imports["b"])
	assert.Equal(t, "", index.Replace[0])
	assert.False(t, p.Runtime)

	// Every surviving top-level binding maps to a distinct bundle name.
	seen := map[string]string{}
	for _, id := range p.Order {
		s := p.Scope(id)
		for local, name := range s.Names {
			owner := s.Module.Path + ":" + local
			prev, dup := seen[name]
			assert.False(t, dup, "%s collides with %s", owner, prev)
			seen[name] = owner
		}
	}
}

func TestHoistAvoidsGlobalsAndNestedCapture(t *testing.T) {
	f := shaken(t, map[string]string{
		"index.js": "import { c as d, console } from './x';\nexport function f(c) { return c + d + console; }\nglobalThis.log(f(1));\n",
		"x.js":     "export const c = 1;\nexport const console = 2;\n",
	}, "index.js")
	p := plan(t, f, true)

	x := f.scope(t, p, "x.js")
	// `c` would be captured by f's parameter.
	assert.Equal(t, "c$1", x.Local("c"))
	assert.Equal(t, "console", x.Local("console"))
	index := f.scope(t, p, "index.js")
	assert.Equal(t, "c$1", index.Imports["d"])
	assert.Equal(t, "f", index.Local("f"))

	require.Len(t, p.Exports, 1)
	assert.Equal(t, EntryExport{Name: "f", Local: "f"}, p.Exports[0])
}

func TestHoistWrapsUnanalyzableModules(t *testing.T) {
	f := shaken(t, map[string]string{
		"index.js":   "import { run } from './evil';\nimport legacy from './legacy.cjs';\nimport * as ns from './plain';\nrun(legacy, ns);\n",
		"evil.js":    "export const run = (x) => eval(x);\n",
		"legacy.cjs": "module.exports = { value: 1 };\n",
		"plain.js":   "export const p = 1;\nexport default 2;\n",
	}, "index.js")
	p := plan(t, f, true)
	require.True(t, p.Runtime)

	evil := f.scope(t, p, "evil.js")
	assert.True(t, evil.Wrapped)
	assert.Equal(t, "evil_ns", evil.Namespace)
	assert.Equal(t, []Getter{{Name: "run", Expr: "run"}}, evil.Getters)

	legacy := f.scope(t, p, "legacy.cjs")
	assert.True(t, legacy.Wrapped)
	assert.True(t, legacy.PureCommonJS())
	assert.Empty(t, legacy.Getters)

	plain := f.scope(t, p, "plain.js")
	assert.False(t, plain.Wrapped)
	assert.Equal(t, "plain_ns", plain.Namespace)
	assert.Equal(t, "plain_default", plain.Local("default"))
	assert.Equal(t, []Getter{{Name: "default", Expr: "plain_default"}, {Name: "p", Expr: "p"}}, plain.Getters)

	index := f.scope(t, p, "index.js")
	assert.Equal(t, "evil_ns.run", index.Imports["run"])
	assert.Equal(t, "legacy_ns", index.Imports["legacy"])
	assert.Equal(t, "plain_ns", index.Imports["ns"])
}

func TestHoistWithoutFlatteningWrapsEverything(t *testing.T) {
	f := shaken(t, map[string]string{
		"index.js": "import { a } from './lib.js';\nconsole.log(a);\nexport const out = a;\n",
		"lib.js":   "export const a = 1;\nexport const b = 2;\n",
	}, "index.js")
	p := plan(t, f, false)

	index := f.scope(t, p, "index.js")
	lib := f.scope(t, p, "lib.js")
	assert.True(t, index.Wrapped)
	assert.True(t, lib.Wrapped)
	assert.Empty(t, lib.Names)
	assert.Equal(t, "__jspack_require(1).a", index.Imports["a"])
	assert.Equal(t, "__jspack_require(1);", index.Replace[0])
	assert.Equal(t, []Getter{{Name: "a", Expr: "a"}}, lib.Getters)

	require.Len(t, p.Exports, 1)
	assert.Equal(t, "out", p.Exports[0].Name)
	assert.Equal(t, "export_out", p.Exports[0].Local)
	assert.Equal(t, "index_ns.out", p.Exports[0].Init)
	assert.Equal(t, "index_ns", index.Namespace)
}

func TestHoistExternalsAndDynamicImports(t *testing.T) {
	f := shaken(t, map[string]string{
		"index.js": "import { readFileSync } from 'node:fs';\nconst load = () => import('./lazy');\nconst req = () => require('./lazy');\nreadFileSync(load, req);\n",
		"lazy.js":  "export const l = 1;\n",
	}, "index.js")
	p := plan(t, f, true)

	require.Len(t, p.Externals, 1)
	assert.Equal(t, External{Specifier: "node:fs", Name: "node_fs"}, p.Externals[0])

	index := f.scope(t, p, "index.js")
	assert.Equal(t, "node_fs.readFileSync", index.Imports["readFileSync"])
	assert.Equal(t, "Promise.resolve().then(function () { return lazy_ns; })", index.Calls[1])
	assert.Equal(t, "lazy_ns", index.Calls[2])
}

func TestMemberAndIdentifiers(t *testing.T) {
	assert.Equal(t, ".a", Member("a"))
	assert.Equal(t, `["a-b"]`, Member("a-b"))
	assert.True(t, IsIdentifier("$x1"))
	assert.False(t, IsIdentifier("1x"))
	assert.Equal(t, "_1st", sanitize("1st"))
	assert.Equal(t, "node_fs", sanitize("node:fs"))
	assert.Equal(t, "utils", baseName(filepath.Join("src", "utils", "index.ts")))
}
