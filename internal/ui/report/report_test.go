package report

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jspack/internal/core/errors"
	"jspack/internal/core/ports"
	"jspack/internal/data/cachestore"
	"jspack/internal/engine/graph"
	"jspack/internal/engine/parser"
	"jspack/internal/engine/resolver"
	"jspack/internal/engine/shaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, files map[string]string, entry string) (string, *graph.Graph) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	res := resolver.New(nil, nil, nil, resolver.Options{Platform: "node"})
	p := parser.NewParser(parser.NewGrammarLoader(nil))
	g, err := graph.NewBuilder(nil, res, p, graph.Options{Workers: 2}).Build(context.Background(), root, []string{entry})
	require.NoError(t, err)
	_, _, err = shaker.Shake(context.Background(), g)
	require.NoError(t, err)
	return root, g
}

func TestRenderBuilds(t *testing.T) {
	builds := []ports.BuildSummary{
		{
			Entry:      "index.js",
			OutFile:    "/p/dist/out.js",
			Modules:    3,
			CodeBytes:  2048,
			MapBytes:   100,
			Eliminated: 1,
			Duration:   12 * time.Millisecond,
			Diagnostics: []errors.Diagnostic{{
				Code: errors.CodeCircularImport, Severity: errors.SeverityWarning,
				Message: "cycle", Path: "/p/a.js",
			}},
		},
		{Entry: "broken.js", Err: stderrors.New("unresolved import ./missing.js")},
	}

	out := RenderBuilds("/p", builds)
	assert.Contains(t, out, "index.js → dist/out.js")
	assert.Contains(t, out, "3 modules, 2.0 KiB, 1 eliminated, 12ms")
	assert.Contains(t, out, "source map 100 B")
	assert.Contains(t, out, "a.js: warning")
	assert.Contains(t, out, "broken.js failed")
	assert.Contains(t, out, "unresolved import ./missing.js")
	assert.Contains(t, out, "1 of 2 entries failed")

	assert.Contains(t, RenderBuilds("/p", builds[:1]), "1 of 1 entries built")
	assert.Contains(t, RenderBuilds("/p", nil), "no entries built")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "0 B", FormatBytes(-1))
}

func TestRelTo(t *testing.T) {
	assert.Equal(t, "src/a.js", relTo("/p", "/p/src/a.js"))
	assert.Equal(t, "/q/a.js", relTo("/p", "/q/a.js"))
	assert.Equal(t, "react", relTo("/p", "react"))
}

func TestRenderGraphListsCycles(t *testing.T) {
	root, g := buildGraph(t, map[string]string{
		"a.js": "import { b } from './b';\nexport const a = () => b;\nconsole.log(a);\n",
		"b.js": "import { a } from './a';\nimport fs from 'node:fs';\nexport const b = () => a(fs);\n",
	}, "a.js")

	out := RenderGraph(root, g)
	assert.Contains(t, out, "2 modules")
	assert.Contains(t, out, "* a.js  in 1, out 1")
	assert.Contains(t, out, "→ b.js")
	assert.Contains(t, out, "→ node:fs (external)")
	assert.Contains(t, out, "1 import cycles")
	assert.Contains(t, out, "a.js → b.js → a.js")
}

func TestRenderGraphDOT(t *testing.T) {
	root, g := buildGraph(t, map[string]string{
		"a.js": "import { b } from './b';\nexport const a = () => b;\nconsole.log(a);\n",
		"b.js": "import { a } from './a';\nimport fs from 'node:fs';\nexport const b = () => a(fs);\n",
	}, "a.js")

	out := RenderGraphDOT(root, g)
	assert.True(t, strings.HasPrefix(out, "digraph modules {"))
	assert.Contains(t, out, `m0 [label="a.js", penwidth=2, color="red"];`)
	assert.Contains(t, out, `m0 -> m1 [color="red"];`)
	assert.Contains(t, out, `m1 -> m0 [color="red"];`)
	assert.Contains(t, out, `"node:fs" [style=dashed];`)
	assert.Contains(t, out, `m1 -> "node:fs" [style=dashed];`)
}

func TestRenderGraphWithoutCycles(t *testing.T) {
	root, g := buildGraph(t, map[string]string{
		"index.js": "import { a } from './lib.js';\nconsole.log(a);\n",
		"lib.js":   "export const a = 1;\n",
	}, "index.js")
	assert.Contains(t, RenderGraph(root, g), "no import cycles")
}

func TestRenderResolution(t *testing.T) {
	out := RenderResolution("./lib", resolver.Resolved{Path: "/p/lib.js", Kind: resolver.KindRelative}, nil)
	assert.Contains(t, out, "./lib → /p/lib.js")
	assert.Contains(t, out, "kind relative")
	assert.NotContains(t, out, "trace")

	tr := &resolver.Trace{
		Specifier: "./nope",
		Steps: []resolver.TraceStep{
			{Name: resolver.StepParseSpecifier, OK: true, Detail: "relative"},
			{Name: resolver.StepTryFile, OK: false, Detail: "/p/nope"},
		},
		Warnings: []resolver.TraceWarning{{Code: errors.CodeUnresolvedImport, Message: "gave up"}},
	}
	out = RenderResolution("./nope", resolver.NotFound{Reason: "no file", Code: errors.CodeUnresolvedImport}, tr)
	assert.Contains(t, out, "./nope not found")
	assert.Contains(t, out, "no file")
	assert.Contains(t, out, "parse_specifier")
	assert.Contains(t, out, "try_file")
	assert.Contains(t, out, "gave up")

	out = RenderResolution("x", resolver.Ambiguous{Candidates: []string{"/a", "/b"}}, nil)
	assert.Contains(t, out, "ambiguous")
	assert.Contains(t, out, "/b")
}

func TestRenderHistory(t *testing.T) {
	records := []cachestore.BuildRecord{
		{
			BuildID: "b2", Entry: "index.js", Timestamp: time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC),
			Duration: 15 * time.Millisecond, Modules: 4, CodeBytes: 900, Status: "ok",
		},
		{
			BuildID: "b1", Entry: "index.js", Timestamp: time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC),
			Status: "failed", Error: "unresolved\timport",
		},
	}

	tsv, err := RenderHistoryTSV(records)
	require.NoError(t, err)
	assert.Contains(t, string(tsv), "Timestamp\tBuildID\tEntry")
	assert.Contains(t, string(tsv), "2026-02-13T00:00:00Z\tb2\tindex.js\tok\t4\t900\t0\t0\t15\t\n")
	assert.Contains(t, string(tsv), "unresolved import\n")

	js, err := RenderHistoryJSON(records)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(js, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "b2", decoded[0]["build_id"])
	assert.NotContains(t, decoded[0], "error")

	text := RenderHistory(records)
	assert.Contains(t, text, "4 modules, 900 B, 15ms")
	assert.Contains(t, text, "unresolved")
	assert.Contains(t, RenderHistory(nil), "no builds recorded")
}
