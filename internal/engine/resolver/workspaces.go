package resolver

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"jspack/internal/shared/util"

	"github.com/gobwas/glob"
)

// workspaceIndex maps workspace package names to their directories. Names
// declared by more than one package keep every candidate.
type workspaceIndex struct {
	root     string
	packages map[string][]string
	// manifests lists every manifest the index was built from.
	manifests []string
}

func (w *workspaceIndex) lookup(name string) []string {
	if w == nil {
		return nil
	}
	return w.packages[name]
}

// buildWorkspaceIndex expands the "workspaces" globs of the root manifest.
func buildWorkspaceIndex(fsys FS, manifests *ManifestCache, root string) *workspaceIndex {
	idx := &workspaceIndex{root: root, packages: make(map[string][]string)}
	if root == "" {
		return idx
	}
	rootManifest := filepath.Join(root, "package.json")
	idx.manifests = append(idx.manifests, rootManifest)
	pkg, err := manifests.Load(rootManifest)
	if err != nil || pkg == nil || len(pkg.Workspaces) == 0 {
		return idx
	}

	for _, raw := range pkg.Workspaces {
		pattern := util.NormalizePatternPath(raw)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			slog.Warn("ignoring invalid workspace pattern", "pattern", raw, "error", err)
			continue
		}
		base, depth := staticPatternBase(pattern)
		for _, dir := range walkDirs(fsys, filepath.Join(root, filepath.FromSlash(base)), depth) {
			rel, err := filepath.Rel(root, dir)
			if err != nil || !g.Match(filepath.ToSlash(rel)) {
				continue
			}
			manifestPath := filepath.Join(dir, "package.json")
			wp, err := manifests.Load(manifestPath)
			if err != nil || wp == nil || wp.Name == "" {
				continue
			}
			idx.manifests = append(idx.manifests, manifestPath)
			if !containsString(idx.packages[wp.Name], dir) {
				idx.packages[wp.Name] = append(idx.packages[wp.Name], dir)
			}
		}
	}
	for name := range idx.packages {
		sort.Strings(idx.packages[name])
	}
	return idx
}

// staticPatternBase splits a glob into its literal leading directory and the
// number of segments left to match. "**" allows unlimited depth.
func staticPatternBase(pattern string) (string, int) {
	segs := strings.Split(pattern, "/")
	i := 0
	for i < len(segs) && !strings.ContainsAny(segs[i], "*?[{") {
		i++
	}
	depth := len(segs) - i
	for _, s := range segs[i:] {
		if s == "**" {
			depth = -1
			break
		}
	}
	return strings.Join(segs[:i], "/"), depth
}

// walkDirs lists directories under base up to depth levels (base itself at
// depth 0). node_modules and dot-directories are skipped.
func walkDirs(fsys FS, base string, depth int) []string {
	var out []string
	var visit func(dir string, level int)
	visit = func(dir string, level int) {
		if depth >= 0 && level == depth {
			out = append(out, dir)
			return
		}
		if depth < 0 {
			out = append(out, dir)
		}
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			name := e.Name()
			if !e.IsDir() || name == "node_modules" || strings.HasPrefix(name, ".") {
				continue
			}
			visit(filepath.Join(dir, name), level+1)
		}
	}
	visit(base, 0)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
