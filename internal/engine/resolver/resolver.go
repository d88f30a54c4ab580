package resolver

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"jspack/internal/core/errors"
	"jspack/internal/shared/observability"
)

// ImportKind selects the "import" or "require" condition.
type ImportKind uint8

const (
	ImportESM ImportKind = iota
	ImportRequire
)

// Context is the immutable input of one resolution.
type Context struct {
	// Importer is the absolute path of the importing file.
	Importer string
	// Dir overrides the lookup directory; used for entry points.
	Dir       string
	Specifier string
	Kind      ImportKind
}

func (c Context) dir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Dir(c.Importer)
}

type Options struct {
	// Conditions are appended after import/require and the platform condition.
	Conditions []string
	// Extensions are tried in order for extensionless paths.
	Extensions []string
	// MainFields are consulted in order when a package has no "exports".
	MainFields []string
	// Platform is "browser", "node" or "neutral".
	Platform string
	// Aliases rewrite specifier prefixes before classification.
	Aliases map[string]string
	// External package names are left as runtime imports.
	External         []string
	WorkspaceRoot    string
	PreserveSymlinks bool
}

var DefaultExtensions = []string{".tsx", ".ts", ".jsx", ".js", ".mjs", ".cjs", ".css", ".json"}

// tsSourceExtensions maps an emitted-JS extension written in a specifier to
// the TypeScript sources that produce it.
var tsSourceExtensions = map[string][]string{
	".js":  {".ts", ".tsx"},
	".jsx": {".tsx"},
	".mjs": {".mts"},
	".cjs": {".cts"},
}

func DefaultMainFields(platform string) []string {
	if platform == "browser" {
		return []string{"browser", "module", "main"}
	}
	return []string{"module", "main"}
}

// Resolver maps specifiers to files. The manifest cache and resolve cache
// are injected so daemons can share them across builds.
type Resolver struct {
	fs        FS
	opts      Options
	manifests *ManifestCache
	cache     Cache
	aliasKeys []string

	wsMu sync.Mutex
	ws   *workspaceIndex
}

func New(fsys FS, manifests *ManifestCache, cache Cache, opts Options) *Resolver {
	if fsys == nil {
		fsys = OSFS{}
	}
	if manifests == nil {
		manifests = NewManifestCache(fsys)
	}
	if cache == nil {
		cache = NullCache{}
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Platform == "" {
		opts.Platform = "browser"
	}
	if len(opts.MainFields) == 0 {
		opts.MainFields = DefaultMainFields(opts.Platform)
	}
	r := &Resolver{fs: fsys, opts: opts, manifests: manifests, cache: cache}
	for k := range opts.Aliases {
		r.aliasKeys = append(r.aliasKeys, k)
	}
	sort.Slice(r.aliasKeys, func(i, j int) bool {
		if len(r.aliasKeys[i]) != len(r.aliasKeys[j]) {
			return len(r.aliasKeys[i]) > len(r.aliasKeys[j])
		}
		return r.aliasKeys[i] < r.aliasKeys[j]
	})
	return r
}

func (r *Resolver) Options() Options { return r.opts }

func (r *Resolver) Cache() Cache { return r.cache }

func (r *Resolver) Manifests() *ManifestCache { return r.manifests }

// Conditions returns the active condition list for an import kind.
func (r *Resolver) Conditions(kind ImportKind) []string {
	conds := []string{"import"}
	if kind == ImportRequire {
		conds[0] = "require"
	}
	switch r.opts.Platform {
	case "browser":
		conds = append(conds, "browser")
	case "node":
		conds = append(conds, "node")
	}
	return append(conds, r.opts.Conditions...)
}

type resolveState struct {
	tr    *tracer
	conds conditionSet
	deps  []string
}

// Resolve answers from the resolve cache when possible; a miss resolves
// against the filesystem and stores the result.
func (r *Resolver) Resolve(c Context) Result {
	conds := r.Conditions(c.Kind)
	key := CacheKey{Dir: c.dir(), Specifier: c.Specifier, Conditions: conditionKey(conds)}
	if entry, ok := r.cache.Get(key); ok {
		observability.ResolveCacheHits.Inc()
		return entry.Result
	}
	observability.ResolveCacheMisses.Inc()
	st := &resolveState{conds: newConditionSet(conds)}
	res := r.resolve(st, c)
	r.cache.Set(key, CacheEntry{Result: res, Deps: st.deps})
	return res
}

// Trace resolves without consulting or filling the resolve cache and
// records every step taken.
func (r *Resolver) Trace(c Context) *Trace {
	t := &Trace{Importer: c.Importer, Specifier: c.Specifier}
	st := &resolveState{tr: &tracer{t: t}, conds: newConditionSet(r.Conditions(c.Kind))}
	t.Result = r.resolve(st, c)
	return t
}

// Invalidate drops cached state derived from path and returns the number of
// resolve-cache entries removed.
func (r *Resolver) Invalidate(path string) int {
	n := r.cache.Invalidate(path)
	if filepath.Base(path) == "package.json" {
		r.manifests.Invalidate(path)
		r.wsMu.Lock()
		if r.ws != nil && containsString(r.ws.manifests, path) {
			r.ws = nil
		}
		r.wsMu.Unlock()
	}
	if n > 0 {
		observability.ResolveCacheEvictions.Add(float64(n))
		slog.Debug("resolve cache invalidated", "path", path, "entries", n)
	}
	return n
}

// PackageFor returns the nearest package.json at or above file's directory.
func (r *Resolver) PackageFor(file string) *PackageJSON {
	st := &resolveState{}
	return r.nearestManifest(st, filepath.Dir(file))
}

func (r *Resolver) resolve(st *resolveState, c Context) Result {
	spec := c.Specifier
	if aliased, ok := r.applyAlias(spec); ok {
		st.tr.step(StepApplyAlias, true, "%s -> %s", spec, aliased)
		spec = aliased
	}
	if r.isExternal(spec) {
		st.tr.step(StepParseSpecifier, true, "%q is external", spec)
		return Resolved{Path: spec, Kind: KindExternal}
	}

	parsed, ok := ParseSpecifier(spec)
	st.tr.step(StepParseSpecifier, ok, "%s specifier %q", parsed.Kind, spec)
	if !ok {
		return notFound(errors.CodeUnresolvedImport, "invalid specifier %q", spec)
	}
	dir := c.dir()

	var res Result
	switch parsed.Kind {
	case SpecVirtual:
		if IsNodeBuiltin(spec) {
			res = r.resolveBuiltin(st, spec)
		} else {
			res = Resolved{Path: spec, Kind: KindExternal}
		}
	case SpecRelative:
		res = r.resolveFileOrDir(st, filepath.Join(dir, filepath.FromSlash(spec)), KindRelative)
	case SpecAbsolute:
		res = r.resolveFileOrDir(st, filepath.Clean(spec), KindAbsolute)
	case SpecHash:
		res = r.resolveHash(st, dir, spec)
	case SpecBare:
		if IsNodeBuiltin(parsed.Package) && r.opts.Platform != "browser" {
			res = r.resolveBuiltin(st, spec)
		} else {
			res = r.resolveBare(st, dir, parsed)
		}
	}
	return r.finish(st, res)
}

func (r *Resolver) resolveBuiltin(st *resolveState, spec string) Result {
	if r.opts.Platform == "browser" {
		return notFound(errors.CodeUnresolvedImport, "node builtin %q is not available for platform browser", spec)
	}
	st.tr.step(StepParseSpecifier, true, "node builtin %q", spec)
	return Resolved{Path: spec, Kind: KindExternal}
}

// finish canonicalizes resolved paths through symlinks so pnpm-style layouts
// dedupe to one module per real file.
func (r *Resolver) finish(st *resolveState, res Result) Result {
	v, ok := res.(Resolved)
	if !ok || v.IsExternal() {
		return res
	}
	if !r.opts.PreserveSymlinks {
		if real, err := r.fs.Realpath(v.Path); err == nil && real != v.Path {
			st.tr.step(StepRealpath, true, "%s -> %s", v.Path, real)
			v.Path = real
		}
	}
	st.deps = append(st.deps, v.Path)
	return v
}

func (r *Resolver) applyAlias(spec string) (string, bool) {
	for _, key := range r.aliasKeys {
		target := r.opts.Aliases[key]
		rest := ""
		switch {
		case spec == key:
		case strings.HasSuffix(key, "/") && strings.HasPrefix(spec, key):
			rest = spec[len(key):]
			if !strings.HasSuffix(target, "/") {
				target += "/"
			}
		case strings.HasPrefix(spec, key+"/"):
			rest = spec[len(key):]
		default:
			continue
		}
		out := target + rest
		if (strings.HasPrefix(out, "./") || strings.HasPrefix(out, "../")) && r.opts.WorkspaceRoot != "" {
			out = filepath.Join(r.opts.WorkspaceRoot, filepath.FromSlash(out))
		}
		return out, true
	}
	return "", false
}

func (r *Resolver) isExternal(spec string) bool {
	for _, ext := range r.opts.External {
		if spec == ext || strings.HasPrefix(spec, ext+"/") {
			return true
		}
	}
	return false
}

func (r *Resolver) tryFile(st *resolveState, path string) bool {
	ok := isFile(r.fs, path)
	st.tr.step(StepTryFile, ok, "%s", path)
	return ok
}

// tryExtensions appends each configured extension in priority order. In trace
// mode every candidate is probed so shadowed siblings can be reported.
func (r *Resolver) tryExtensions(st *resolveState, path string) (string, bool) {
	var found []string
	for _, ext := range r.opts.Extensions {
		candidate := path + ext
		if !isFile(r.fs, candidate) {
			continue
		}
		found = append(found, candidate)
		if !st.tr.enabled() {
			break
		}
	}
	if len(found) == 0 {
		if alts, ok := tsSourceExtensions[filepath.Ext(path)]; ok {
			base := strings.TrimSuffix(path, filepath.Ext(path))
			for _, ext := range alts {
				if isFile(r.fs, base+ext) {
					found = append(found, base+ext)
					break
				}
			}
		}
	}
	if len(found) == 0 {
		st.tr.step(StepTryExtensions, false, "%s{%s}", path, strings.Join(r.opts.Extensions, ","))
		return "", false
	}
	st.tr.step(StepTryExtensions, true, "%s", found[0])
	if len(found) > 1 {
		st.tr.warn(errors.CodeAmbiguousExtension, "%s matches %s; using %s", path, strings.Join(found, ", "), found[0])
	}
	return found[0], true
}

// resolveFileOrDir resolves a file path. kind is reported when the path
// itself or an extension of it names a file.
func (r *Resolver) resolveFileOrDir(st *resolveState, path string, kind Kind) Result {
	if r.tryFile(st, path) {
		return Resolved{Path: path, Kind: kind}
	}
	if p, ok := r.tryExtensions(st, path); ok {
		return Resolved{Path: p, Kind: kind}
	}
	if res, ok := r.tryDirectory(st, path); ok {
		return res
	}
	return notFound(errors.CodeUnresolvedImport, "no file or directory at %s", path)
}

func (r *Resolver) tryDirectory(st *resolveState, dir string) (Result, bool) {
	if !isDir(r.fs, dir) {
		st.tr.step(StepTryDirectory, false, "%s", dir)
		return nil, false
	}
	st.tr.step(StepTryDirectory, true, "%s", dir)
	pkg, err := r.loadManifest(st, filepath.Join(dir, "package.json"))
	if err != nil {
		return NotFound{Reason: err.Error(), Code: errors.CodeInvalidPackageJSON}, true
	}
	if pkg != nil && pkg.HasExports() {
		return r.resolveExports(st, pkg, "."), true
	}
	if pkg != nil {
		if res, ok := r.resolveMain(st, pkg); ok {
			if v, isResolved := res.(Resolved); isResolved && v.Kind == KindMainField {
				v.Kind = KindDirectory
				return v, true
			}
			return res, true
		}
	}
	res := r.resolveIndex(st, dir)
	if v, ok := res.(Resolved); ok {
		v.Kind = KindDirectory
		return v, true
	}
	return res, true
}

func (r *Resolver) resolveMain(st *resolveState, pkg *PackageJSON) (Result, bool) {
	for _, field := range r.opts.MainFields {
		value := pkg.MainField(field)
		if value == "" {
			continue
		}
		kind := KindMainField
		if field == "browser" {
			kind = KindBrowserField
		}
		p := filepath.Join(pkg.Dir, filepath.FromSlash(value))
		st.tr.step(StepMainField, true, "%s: %s", field, value)
		if r.tryFile(st, p) {
			return Resolved{Path: p, Kind: kind}, true
		}
		if found, ok := r.tryExtensions(st, p); ok {
			return Resolved{Path: found, Kind: kind}, true
		}
		if isDir(r.fs, p) {
			if v, ok := r.resolveIndex(st, p).(Resolved); ok {
				v.Kind = kind
				return v, true
			}
		}
		st.tr.step(StepMainField, false, "%s target %s missing", field, value)
	}
	return nil, false
}

func (r *Resolver) resolveIndex(st *resolveState, dir string) Result {
	for _, ext := range r.opts.Extensions {
		p := filepath.Join(dir, "index"+ext)
		if isFile(r.fs, p) {
			st.tr.step(StepIndexFallback, true, "%s", p)
			return Resolved{Path: p, Kind: KindIndexFallback}
		}
	}
	st.tr.step(StepIndexFallback, false, "no index file in %s", dir)
	return notFound(errors.CodeUnresolvedImport, "no index file in %s", dir)
}

// resolvePackageEntry resolves subpath inside a located package: exports
// first and fail closed, then main fields, then index files.
func (r *Resolver) resolvePackageEntry(st *resolveState, pkg *PackageJSON, pkgDir, subpath string) Result {
	if pkg != nil && pkg.HasExports() {
		return r.resolveExports(st, pkg, subpath)
	}
	if pkg != nil {
		if pkg.Main != "" {
			st.tr.warn(errors.CodeDeprecatedMainOnly, "package %q declares only \"main\"", pkg.Name)
		} else {
			st.tr.warn(errors.CodeMissingExports, "package %q declares neither \"exports\" nor \"main\"", pkg.Name)
		}
	}
	if subpath != "." {
		return r.resolveFileOrDir(st, filepath.Join(pkgDir, filepath.FromSlash(subpath)), KindRelative)
	}
	if pkg != nil {
		if res, ok := r.resolveMain(st, pkg); ok {
			return res
		}
	}
	return r.resolveIndex(st, pkgDir)
}

func (r *Resolver) resolveExports(st *resolveState, pkg *PackageJSON, subpath string) Result {
	m, err := normalizeSubpathMap(pkg.Exports, false)
	if err != nil {
		st.tr.step(StepMatchExportsKey, false, "%v", err)
		return notFound(errors.CodeInvalidPackageJSON, "%s: %v", pkg.Path, err)
	}
	match, ok := matchSubpath(m, subpath)
	if !ok {
		st.tr.step(StepMatchExportsKey, false, "no key for %q", subpath)
		return notFound(errors.CodeExportsNotDeclared, "subpath %q is not exported by %q", subpath, pkg.Name)
	}
	st.tr.step(StepMatchExportsKey, true, "key %q", match.Key)
	path, status := resolveTarget(st.tr, pkg.Dir, match.Target, match.Star, st.conds, false)
	return r.targetResult(st, status, path, subpath, pkg, KindExportsMap)
}

func (r *Resolver) targetResult(st *resolveState, status targetStatus, path, subpath string, pkg *PackageJSON, kind Kind) Result {
	switch status {
	case targetOK:
		if r.tryFile(st, path) {
			return Resolved{Path: path, Kind: kind}
		}
		return notFound(errors.CodeUnresolvedImport, "target %s for %q does not exist", path, subpath)
	case targetBlocked:
		return notFound(errors.CodeExportsNotDeclared, "subpath %q of %q is blocked", subpath, pkg.Name)
	case targetNoMatch:
		return notFound(errors.CodeExportsNotDeclared, "no condition matched %q in %q", subpath, pkg.Name)
	}
	return notFound(errors.CodeInvalidPackageJSON, "invalid target for %q in %s", subpath, pkg.Path)
}

// resolveHash maps "#name" through the "imports" field of the nearest
// manifest. Without an "imports" field the specifier is unresolvable.
func (r *Resolver) resolveHash(st *resolveState, dir, spec string) Result {
	pkg := r.nearestManifest(st, dir)
	if pkg == nil || !pkg.HasImports() {
		st.tr.step(StepMatchImportsKey, false, "no \"imports\" field above %s", dir)
		return notFound(errors.CodeExportsNotDeclared, "imports-not-declared: %q", spec)
	}
	m, err := normalizeSubpathMap(pkg.Imports, true)
	if err != nil {
		return notFound(errors.CodeInvalidPackageJSON, "%s: %v", pkg.Path, err)
	}
	match, ok := matchSubpath(m, spec)
	if !ok {
		st.tr.step(StepMatchImportsKey, false, "no key for %q", spec)
		return notFound(errors.CodeExportsNotDeclared, "%q is not declared in %s", spec, pkg.Path)
	}
	st.tr.step(StepMatchImportsKey, true, "key %q", match.Key)
	path, status := resolveTarget(st.tr, pkg.Dir, match.Target, match.Star, st.conds, true)
	if status == targetBare {
		parsed, ok := ParseSpecifier(path)
		if !ok || parsed.Kind != SpecBare {
			return notFound(errors.CodeInvalidPackageJSON, "invalid imports target %q", path)
		}
		return r.resolveBare(st, pkg.Dir, parsed)
	}
	return r.targetResult(st, status, path, spec, pkg, KindImportsMap)
}

func (r *Resolver) resolveBare(st *resolveState, dir string, parsed Specifier) Result {
	if self := r.nearestManifest(st, dir); self != nil && self.Name == parsed.Package && self.HasExports() {
		st.tr.step(StepFindPackageDir, true, "self-reference %s", self.Dir)
		return r.resolveExports(st, self, parsed.Subpath)
	}

	for d := dir; ; {
		if filepath.Base(d) != "node_modules" {
			candidate := filepath.Join(d, "node_modules", filepath.FromSlash(parsed.Package))
			if isDir(r.fs, candidate) {
				pkg, err := r.loadManifest(st, filepath.Join(candidate, "package.json"))
				if err != nil {
					return NotFound{Reason: err.Error(), Code: errors.CodeInvalidPackageJSON}
				}
				if pkg == nil || pkg.Name == "" || pkg.Name == parsed.Package {
					st.tr.step(StepFindPackageDir, true, "%s", candidate)
					return r.resolvePackageEntry(st, pkg, candidate, parsed.Subpath)
				}
				st.tr.step(StepFindPackageDir, false, "%s declares name %q", candidate, pkg.Name)
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}

	dirs := r.workspaces(st).lookup(parsed.Package)
	switch len(dirs) {
	case 0:
	case 1:
		st.tr.step(StepWorkspace, true, "%s", dirs[0])
		pkg, err := r.loadManifest(st, filepath.Join(dirs[0], "package.json"))
		if err != nil {
			return NotFound{Reason: err.Error(), Code: errors.CodeInvalidPackageJSON}
		}
		return r.resolvePackageEntry(st, pkg, dirs[0], parsed.Subpath)
	default:
		st.tr.step(StepWorkspace, false, "%d workspace packages named %q", len(dirs), parsed.Package)
		return Ambiguous{Candidates: append([]string(nil), dirs...)}
	}

	st.tr.step(StepFindPackageDir, false, "no node_modules/%s above %s", parsed.Package, dir)
	return notFound(errors.CodeUnresolvedImport, "package %q not found", parsed.Package)
}

func (r *Resolver) loadManifest(st *resolveState, path string) (*PackageJSON, error) {
	st.deps = append(st.deps, path)
	pkg, err := r.manifests.Load(path)
	st.tr.step(StepReadPackageJSON, err == nil && pkg != nil, "%s", path)
	return pkg, err
}

func (r *Resolver) nearestManifest(st *resolveState, dir string) *PackageJSON {
	for d := dir; ; {
		if filepath.Base(d) != "node_modules" {
			path := filepath.Join(d, "package.json")
			st.deps = append(st.deps, path)
			if pkg, err := r.manifests.Load(path); err == nil && pkg != nil {
				return pkg
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			return nil
		}
		d = parent
	}
}

func (r *Resolver) workspaces(st *resolveState) *workspaceIndex {
	if r.opts.WorkspaceRoot == "" {
		return nil
	}
	r.wsMu.Lock()
	defer r.wsMu.Unlock()
	if r.ws == nil {
		r.ws = buildWorkspaceIndex(r.fs, r.manifests, r.opts.WorkspaceRoot)
	}
	st.deps = append(st.deps, r.ws.manifests...)
	return r.ws
}
