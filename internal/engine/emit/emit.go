// Package emit turns a hoisting plan into the bundle text, its source map
// and the CSS asset.
package emit

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"

	"jspack/internal/core/errors"
	"jspack/internal/engine/graph"
	"jspack/internal/engine/hoist"
	"jspack/internal/shared/observability"

	"golang.org/x/sync/errgroup"
)

type Format string

const (
	FormatESM  Format = "esm"
	FormatIIFE Format = "iife"
)

type Options struct {
	Format    Format
	Minify    bool
	Sourcemap bool
	// GlobalName receives the entry exports in iife output.
	GlobalName string
	// Root is the directory source map paths are relative to.
	Root string
	// OutFile names the bundle in the source map and its trailing comment.
	OutFile string
	Workers int
}

type Output struct {
	Code      []byte
	SourceMap []byte
	CSS       []byte
	// Modules lists the emitted module paths in emission order.
	Modules []string
}

// Emit generates every fragment in parallel and concatenates them in the
// plan's emission order.
func Emit(ctx context.Context, g *graph.Graph, plan *hoist.Plan, opts Options) (*Output, error) {
	ctx, end := observability.StartPhase(ctx, "emit")
	defer end()

	if opts.Format == "" {
		opts.Format = FormatESM
	}
	if opts.Format != FormatESM && opts.Format != FormatIIFE {
		return nil, errors.Newf(errors.CodeValidationError, "unknown output format %q", opts.Format)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	for _, id := range plan.Order {
		if s := plan.Scope(id); s == nil || g.Module(id) != s.Module {
			return nil, errors.Newf(errors.CodeInternalInvariant, "module %d is not part of the graph being emitted", id)
		}
	}

	frags := make([]*Fragment, len(plan.Order))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, id := range plan.Order {
		i, s := i, plan.Scope(id)
		if s.Module.IsStylesheet() {
			continue
		}
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return errors.Wrap(err, errors.CodeCanceled, "code generation canceled")
			}
			frags[i] = generate(s.Module, s, opts)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	a := &assembler{opts: opts, plan: plan, sourceIndex: make(map[string]int)}
	a.assemble(frags)
	out := &Output{Code: []byte(a.out.b.String())}
	if opts.Sourcemap {
		sm := a.sourceMap()
		data, err := sm.JSON()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "encode source map")
		}
		out.SourceMap = data
	}
	out.CSS = emitCSS(plan, opts.Minify)
	for _, id := range plan.Order {
		out.Modules = append(out.Modules, plan.Scope(id).Module.Path)
	}

	observability.EmittedBytes.WithLabelValues("js").Add(float64(len(out.Code)))
	observability.EmittedBytes.WithLabelValues("css").Add(float64(len(out.CSS)))
	observability.EmittedBytes.WithLabelValues("map").Add(float64(len(out.SourceMap)))
	slog.Debug("bundle emitted", "modules", len(out.Modules), "bytes", len(out.Code), "css_bytes", len(out.CSS))
	return out, nil
}

type assembler struct {
	opts        Options
	plan        *hoist.Plan
	out         writer
	mappings    []Mapping
	sources     []string
	contents    []string
	sourceIndex map[string]int
}

// glue writes generated code that maps to no source.
func (a *assembler) glue(s string) {
	if a.opts.Minify {
		s = minifyText(s)
	}
	a.out.WriteString(s)
}

func (a *assembler) fragment(f *Fragment, content []byte) {
	if f == nil || f.Code == "" {
		return
	}
	if a.opts.Sourcemap {
		idx, ok := a.sourceIndex[f.Path]
		if !ok {
			idx = len(a.sources)
			a.sourceIndex[f.Path] = idx
			a.sources = append(a.sources, a.sourcePath(f.Path))
			a.contents = append(a.contents, string(content))
		}
		for _, m := range f.Mappings {
			m.GenLine += a.out.line
			m.Source = idx
			a.mappings = append(a.mappings, m)
		}
	}
	a.out.WriteString(f.Code)
}

func (a *assembler) sourcePath(path string) string {
	if a.opts.Root != "" {
		if rel, err := filepath.Rel(a.opts.Root, path); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

func (a *assembler) needsExternalHelper() bool {
	return a.opts.Format == FormatIIFE && len(a.plan.Externals) > 0
}

func (a *assembler) exportsObject() bool {
	return a.opts.Format == FormatIIFE && a.opts.GlobalName != "" && len(a.plan.Exports) > 0
}

func (a *assembler) assemble(frags []*Fragment) {
	plan := a.plan
	iife := a.opts.Format == FormatIIFE

	if !iife {
		for _, ext := range plan.Externals {
			a.glue(fmt.Sprintf("import * as %s from %s;\n", ext.Name, strconv.Quote(ext.Specifier)))
		}
	} else {
		if a.exportsObject() {
			a.glue(fmt.Sprintf("var %s = (function () {\n", a.opts.GlobalName))
		} else {
			a.glue("(function () {\n")
		}
		a.glue("\"use strict\";\n")
	}
	if plan.Runtime || a.exportsObject() {
		a.glue(runtimeCore)
	}
	if a.needsExternalHelper() {
		a.glue(runtimeExternal)
		for _, ext := range plan.Externals {
			a.glue(fmt.Sprintf("var %s = %s(%s);\n", ext.Name, hoist.ExternalFn, strconv.Quote(ext.Specifier)))
		}
	}

	// Registry functions first, so any require in emission order finds them.
	for i, id := range plan.Order {
		s := plan.Scope(id)
		if !s.Wrapped {
			continue
		}
		a.glue(wrapperHeader(int(id), s))
		a.fragment(frags[i], s.Module.AST.Source)
		a.glue("};\n")
	}

	for i, id := range plan.Order {
		s := plan.Scope(id)
		switch {
		case s.Module.IsStylesheet():
		case s.Wrapped:
			if s.Namespace != "" {
				a.glue(fmt.Sprintf("var %s = %s(%d);\n", s.Namespace, hoist.RequireFn, id))
			} else if s.Module.IsEntry {
				a.glue(fmt.Sprintf("%s(%d);\n", hoist.RequireFn, id))
			}
		default:
			a.fragment(frags[i], s.Module.AST.Source)
			if s.Namespace != "" {
				a.glue(namespaceDecl(s))
			}
		}
	}

	for _, e := range plan.Exports {
		if e.Init != "" {
			a.glue(fmt.Sprintf("var %s = %s;\n", e.Local, e.Init))
		}
	}
	switch {
	case !iife && len(plan.Exports) > 0:
		a.glue(exportClause(plan.Exports))
	case a.exportsObject():
		getters := make([]hoist.Getter, len(plan.Exports))
		for i, e := range plan.Exports {
			getters[i] = hoist.Getter{Name: e.Name, Expr: e.Local}
		}
		a.glue(fmt.Sprintf("return %s(%s);\n", hoist.NamespaceFn, getterObject(getters)))
	}
	if iife {
		a.glue("})();\n")
	}
	if a.opts.Sourcemap && a.opts.OutFile != "" {
		a.out.WriteString("//# sourceMappingURL=" + filepath.Base(a.opts.OutFile) + ".map\n")
	}
}

func (a *assembler) sourceMap() *SourceMap {
	sm := &SourceMap{
		Version:        3,
		Sources:        a.sources,
		SourcesContent: a.contents,
		Names:          []string{},
		Mappings:       encodeMappings(a.mappings),
	}
	if sm.Sources == nil {
		sm.Sources = []string{}
	}
	if a.opts.OutFile != "" {
		sm.File = filepath.Base(a.opts.OutFile)
	}
	return sm
}
