package shaker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"jspack/internal/core/errors"
	"jspack/internal/engine/graph"
	"jspack/internal/engine/parser"
	"jspack/internal/engine/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, files map[string]string, entry string) (*graph.Graph, string) {
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
	return g, root
}

func module(t *testing.T, g *graph.Graph, root, rel string) *graph.ModuleNode {
	t.Helper()
	id, ok := g.Lookup(filepath.Join(root, filepath.FromSlash(rel)))
	require.True(t, ok, rel)
	return g.Module(id)
}

func liveDecls(m *graph.ModuleNode) []string {
	var out []string
	for i, st := range m.AST.Stmts {
		if m.Live[i] {
			out = append(out, st.Declares...)
		}
	}
	return out
}

func TestShakeEliminatesUnusedExport(t *testing.T) {
	g, root := buildGraph(t, map[string]string{
		"index.js": "import { a } from './lib.js';\nconsole.log(a);\n",
		"lib.js":   "export const a = 1;\nexport const b = 2;\n",
	}, "index.js")

	st, warnings, err := Shake(context.Background(), g)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 2, st.Included)

	lib := module(t, g, root, "lib.js")
	assert.True(t, lib.Included)
	assert.Equal(t, "Some{a}", lib.Used.String())
	assert.Equal(t, []bool{true, false}, lib.Live)
	assert.Equal(t, 1, st.Eliminated)
}

func TestShakeFollowsLocalReferences(t *testing.T) {
	g, root := buildGraph(t, map[string]string{
		"index.js": "import { api } from './lib';\napi();\n",
		"lib.js": "const helper = () => 1;\nconst unused = () => 2;\n" +
			"function api() { return helper(); }\nexport { api, unused };\n",
	}, "index.js")
	_, _, err := Shake(context.Background(), g)
	require.NoError(t, err)

	lib := module(t, g, root, "lib.js")
	assert.ElementsMatch(t, []string{"helper", "api"}, liveDecls(lib))
}

func TestShakeSideEffectFreePackage(t *testing.T) {
	g, root := buildGraph(t, map[string]string{
		"index.js":                         "import { used } from 'pure';\nimport 'impure';\nused();\n",
		"node_modules/pure/package.json":   `{"name": "pure", "sideEffects": false, "exports": "./index.js"}`,
		"node_modules/pure/index.js":       "export { used } from './used.js';\nexport { other } from './other.js';\n",
		"node_modules/pure/used.js":        "export const used = () => 1;\n",
		"node_modules/pure/other.js":       "export const other = () => 2;\nconsole.log('never');\n",
		"node_modules/impure/package.json": `{"name": "impure"}`,
		"node_modules/impure/index.js":     "globalThis.touched = true;\n",
	}, "index.js")
	st, _, err := Shake(context.Background(), g)
	require.NoError(t, err)

	assert.True(t, module(t, g, root, "node_modules/pure/used.js").Included)
	assert.False(t, module(t, g, root, "node_modules/pure/other.js").Included)
	assert.True(t, module(t, g, root, "node_modules/impure/index.js").Included)
	assert.Equal(t, 4, st.Included)
}

func TestShakeStarExportIntersection(t *testing.T) {
	g, root := buildGraph(t, map[string]string{
		"index.js":  "import { x } from './barrel';\nx();\n",
		"barrel.js": "export * from './one';\nexport * from './two';\n",
		"one.js":    "export const x = () => 1;\nexport const y = 2;\n",
		"two.js":    "export const z = 3;\n",
	}, "index.js")
	_, _, err := Shake(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, "Some{x}", module(t, g, root, "one.js").Used.String())
	assert.Equal(t, "Some{}", module(t, g, root, "two.js").Used.String())
	assert.Equal(t, []string{"x"}, liveDecls(module(t, g, root, "one.js")))
}

func TestShakeConservativeConstructs(t *testing.T) {
	g, root := buildGraph(t, map[string]string{
		"index.js": "import { run } from './evil';\nimport * as ns from './ns';\nconst lazy = () => import('./lazy');\nrun(ns, lazy);\n",
		"evil.js":  "export const run = (x) => eval(x);\nexport const spare = 1;\n",
		"ns.js":    "export const p = 1;\nexport const q = 2;\n",
		"lazy.js":  "export const l = 1;\nexport const m = 2;\n",
	}, "index.js")
	_, _, err := Shake(context.Background(), g)
	require.NoError(t, err)

	for _, rel := range []string{"evil.js", "ns.js", "lazy.js"} {
		m := module(t, g, root, rel)
		assert.True(t, m.Used.All(), rel)
		assert.Equal(t, []bool{true, true}, m.Live, rel)
	}
}

func TestShakeFixpointIsIdempotent(t *testing.T) {
	g, _ := buildGraph(t, map[string]string{
		"a.js": "import { b } from './b';\nexport const a = () => b();\na();\n",
		"b.js": "import { a } from './a';\nexport const b = () => a;\nexport const dead = 1;\n",
	}, "a.js")

	s := New(g)
	var snapshots []string
	for s.Pass() {
		var snap string
		for _, m := range g.Modules() {
			snap += m.Used.String()
		}
		if len(snapshots) > 0 {
			assert.GreaterOrEqual(t, len(snap), len(snapshots[len(snapshots)-1]))
		}
		snapshots = append(snapshots, snap)
	}
	before := make([][]bool, 0)
	for _, m := range g.Modules() {
		before = append(before, append([]bool(nil), m.Live...))
	}
	assert.False(t, s.Pass())
	for i, m := range g.Modules() {
		assert.Equal(t, before[i], m.Live)
	}
	assert.Equal(t, "Some{b}", g.Module(1).Used.String())
}

func TestShakeMissingExportWarns(t *testing.T) {
	g, _ := buildGraph(t, map[string]string{
		"index.js": "import { nope } from './lib';\nnope();\n",
		"lib.js":   "export const yes = 1;\n",
	}, "index.js")
	_, warnings, err := Shake(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, errors.CodeMissingExport, warnings[0].Code)
}
