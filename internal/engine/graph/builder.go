package graph

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"jspack/internal/core/errors"
	"jspack/internal/engine/parser"
	"jspack/internal/engine/resolver"
	"jspack/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type UnresolvedPolicy string

const (
	// UnresolvedError aborts the build on any unresolved static import.
	UnresolvedError UnresolvedPolicy = "error"
	// UnresolvedExternal keeps the raw specifier as a runtime import.
	UnresolvedExternal UnresolvedPolicy = "external"
)

type Options struct {
	Workers    int
	Unresolved UnresolvedPolicy
}

// BuildError carries the diagnostics that aborted a build.
type BuildError struct {
	Diagnostics []errors.Diagnostic
}

func (e *BuildError) Error() string {
	if len(e.Diagnostics) == 1 {
		return e.Diagnostics[0].String()
	}
	return fmt.Sprintf("%s (and %d more)", e.Diagnostics[0].String(), len(e.Diagnostics)-1)
}

func (e *BuildError) Unwrap() error { return e.Diagnostics[0].Err() }

// Builder discovers every module reachable from the entry points.
type Builder struct {
	fs       resolver.FS
	resolver *resolver.Resolver
	parser   *parser.Parser
	opts     Options
}

func NewBuilder(fsys resolver.FS, res *resolver.Resolver, p *parser.Parser, opts Options) *Builder {
	if fsys == nil {
		fsys = resolver.OSFS{}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Unresolved == "" {
		opts.Unresolved = UnresolvedError
	}
	return &Builder{fs: fsys, resolver: res, parser: p, opts: opts}
}

type loaded struct {
	ast     *parser.Module
	pkg     *resolver.PackageJSON
	results []resolver.Result
}

// Build walks the import graph breadth first. Each level is loaded, parsed
// and resolved in parallel; the calling goroutine then links the level in
// order so module IDs follow first discovery regardless of scheduling.
func (b *Builder) Build(ctx context.Context, root string, entries []string) (*Graph, error) {
	ctx, end := observability.StartPhase(ctx, "graph", attribute.Int("entries", len(entries)))
	defer end()

	g := New()
	var frontier []ModuleID
	for _, entry := range entries {
		path, err := b.resolveEntry(root, entry)
		if err != nil {
			return nil, err
		}
		id, fresh := g.InsertIfAbsent(path)
		if !fresh {
			continue
		}
		g.Module(id).IsEntry = true
		g.Entries = append(g.Entries, id)
		frontier = append(frontier, id)
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeCanceled, "build canceled")
		}
		results := make([]*loaded, len(frontier))
		eg, egctx := errgroup.WithContext(ctx)
		eg.SetLimit(b.opts.Workers)
		for i, id := range frontier {
			i, path := i, g.Module(id).Path
			eg.Go(func() error {
				l, err := b.load(egctx, path)
				if err != nil {
					return err
				}
				results[i] = l
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		var next []ModuleID
		var failed []errors.Diagnostic
		for i, id := range frontier {
			fresh, diags := b.link(g, g.Module(id), results[i])
			next = append(next, fresh...)
			failed = append(failed, diags...)
		}
		if len(failed) > 0 {
			errors.SortDiagnostics(failed)
			return nil, &BuildError{Diagnostics: failed}
		}
		frontier = next
	}

	if err := g.CheckInvariants(); err != nil {
		return nil, err
	}
	for _, cycle := range g.DetectCycles() {
		g.addDiagnostic(errors.Diagnostic{
			Code:     errors.CodeCircularImport,
			Severity: errors.SeverityInfo,
			Message:  "import cycle: " + strings.Join(g.CyclePaths(cycle), " -> "),
			Path:     g.Module(cycle[0]).Path,
		})
	}
	errors.SortDiagnostics(g.Diagnostics)
	g.publishMetrics()
	slog.Debug("module graph built", "modules", g.Len(), "edges", len(g.Edges()), "diagnostics", len(g.Diagnostics))
	return g, nil
}

func (b *Builder) resolveEntry(root, entry string) (string, error) {
	spec := filepath.ToSlash(entry)
	if !filepath.IsAbs(entry) && !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		spec = "./" + spec
	}
	res := b.resolver.Resolve(resolver.Context{Dir: root, Specifier: spec})
	if _, ok := res.(resolver.NotFound); ok && spec != entry {
		res = b.resolver.Resolve(resolver.Context{Dir: root, Specifier: entry})
	}
	switch r := res.(type) {
	case resolver.Resolved:
		if r.IsExternal() {
			return "", errors.AddContext(errors.Newf(errors.CodeUnresolvedImport, "entry point %q is external", entry), errors.CtxSpecifier, entry)
		}
		return r.Path, nil
	case resolver.NotFound:
		return "", errors.AddContext(errors.Newf(errors.CodeUnresolvedImport, "entry point %q: %s", entry, r.Reason), errors.CtxSpecifier, entry)
	case resolver.Ambiguous:
		return "", errors.AddContext(errors.Newf(errors.CodeAmbiguousExportsMatch, "entry point %q: %s", entry, r), errors.CtxSpecifier, entry)
	}
	return "", errors.Newf(errors.CodeInternalInvariant, "unexpected resolve result %T", res)
}

func (b *Builder) load(ctx context.Context, path string) (*loaded, error) {
	source, err := b.fs.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read module"), errors.CtxPath, path)
	}
	start := time.Now()
	ast, err := b.parser.Parse(path, source)
	if err != nil {
		return nil, err
	}
	observability.ObserveParse(ast.Loader.String(), start)
	observability.ModulesBuiltTotal.Inc()

	l := &loaded{ast: ast, pkg: b.resolver.PackageFor(path), results: make([]resolver.Result, len(ast.Imports))}
	for j, rec := range ast.Imports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.results[j] = b.resolveRecord(path, rec)
	}
	return l, nil
}

func (b *Builder) resolveRecord(importer string, rec parser.ImportRecord) resolver.Result {
	kind := resolver.ImportESM
	if rec.Kind.IsRequire() {
		kind = resolver.ImportRequire
	}
	c := resolver.Context{Importer: importer, Specifier: rec.Specifier, Kind: kind}
	// A stylesheet url without a leading "./" is still relative to the sheet.
	if rec.Kind == parser.ImportStylesheet && isBareStylesheetURL(rec.Specifier) {
		rel := c
		rel.Specifier = "./" + rec.Specifier
		if res, ok := b.resolver.Resolve(rel).(resolver.Resolved); ok {
			return res
		}
	}
	return b.resolver.Resolve(c)
}

func isBareStylesheetURL(spec string) bool {
	if strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") || strings.HasPrefix(spec, "#") {
		return false
	}
	parsed, _ := resolver.ParseSpecifier(spec)
	return parsed.Kind == resolver.SpecBare
}

// link publishes a loaded module into the graph and returns the newly
// discovered modules plus any unresolved imports that abort the build.
func (b *Builder) link(g *Graph, node *ModuleNode, l *loaded) ([]ModuleID, []errors.Diagnostic) {
	node.AST = l.ast
	node.Package = l.pkg
	node.Targets = make([]Target, len(l.ast.Imports))

	var fresh []ModuleID
	var failed []errors.Diagnostic
	for j, rec := range l.ast.Imports {
		node.Targets[j] = Target{Module: NoModule}
		switch r := l.results[j].(type) {
		case resolver.Resolved:
			if r.IsExternal() {
				node.Targets[j].External = r.Path
				continue
			}
			id, created := g.InsertIfAbsent(r.Path)
			if created {
				fresh = append(fresh, id)
			}
			node.Targets[j].Module = id
			g.addEdge(Edge{Importer: node.ID, Record: j, Specifier: rec.Specifier, Kind: rec.Kind, Target: id})
		case resolver.NotFound:
			code := r.Code
			if code == "" {
				code = errors.CodeUnresolvedImport
			}
			if d, fatal := b.unresolved(g, node, j, rec, code, r.Reason); fatal {
				failed = append(failed, d)
			}
		case resolver.Ambiguous:
			reason := "matches " + strings.Join(r.Candidates, ", ")
			if d, fatal := b.unresolved(g, node, j, rec, errors.CodeAmbiguousExportsMatch, reason); fatal {
				failed = append(failed, d)
			}
		}
	}
	return fresh, failed
}

// unresolved records a failed import according to the policy. Dynamic
// imports always degrade to a runtime import with a warning.
func (b *Builder) unresolved(g *Graph, node *ModuleNode, j int, rec parser.ImportRecord, code errors.ErrorCode, reason string) (errors.Diagnostic, bool) {
	d := errors.Diagnostic{
		Code:      code,
		Severity:  errors.SeverityWarning,
		Message:   fmt.Sprintf("cannot resolve %q: %s", rec.Specifier, reason),
		Path:      node.Path,
		Specifier: rec.Specifier,
		Line:      rec.Loc.Line,
		Column:    rec.Loc.Column,
	}
	if rec.Kind == parser.ImportDynamic {
		d.Code = errors.CodeDynamicUnresolved
	} else if b.opts.Unresolved == UnresolvedError {
		d.Severity = errors.SeverityError
		return d, true
	}
	node.Targets[j] = Target{Module: NoModule, External: rec.Specifier, Unresolved: true}
	g.addDiagnostic(d)
	return d, false
}
