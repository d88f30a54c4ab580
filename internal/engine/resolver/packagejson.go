package resolver

import (
	"path/filepath"
	"strings"

	"jspack/internal/core/errors"
	"jspack/internal/shared/util"

	"github.com/gobwas/glob"
)

// PackageJSON is a typed, immutable view over a parsed manifest. Every field
// is optional; absent fields keep their zero value.
type PackageJSON struct {
	Path    string
	Dir     string
	Stamp   Stamp
	Name    string
	Version string
	Main    string
	Module  string
	Type    string
	// Browser is the string form of the "browser" field.
	Browser string
	Exports *JSONValue
	Imports *JSONValue

	Workspaces []string

	sideEffectsDeclared bool
	sideEffects         bool
	sideEffectGlobs     []sideEffectGlob
	fields              *JSONValue
}

type sideEffectGlob struct {
	pattern  string
	basename bool
	g        glob.Glob
}

// ParsePackageJSON decodes the manifest at path. A manifest that is not a JSON
// object is reported with CodeInvalidPackageJSON.
func ParsePackageJSON(path string, data []byte) (*PackageJSON, error) {
	root, err := decodeOrderedJSON(data)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeInvalidPackageJSON, "malformed package.json"), errors.CtxPath, path)
	}
	if root.Kind != JSONObject {
		return nil, errors.AddContext(errors.New(errors.CodeInvalidPackageJSON, "package.json is not an object"), errors.CtxPath, path)
	}
	pkg := &PackageJSON{
		Path:    path,
		Dir:     filepath.Dir(path),
		Name:    root.Get("name").StringOr(""),
		Version: root.Get("version").StringOr(""),
		Main:    root.Get("main").StringOr(""),
		Module:  root.Get("module").StringOr(""),
		Type:    root.Get("type").StringOr("commonjs"),
		Browser: root.Get("browser").StringOr(""),
		Exports: root.Get("exports"),
		Imports: root.Get("imports"),
		fields:  root,
	}
	if ws := root.Get("workspaces"); ws != nil {
		if ws.Kind == JSONObject {
			ws = ws.Get("packages")
		}
		pkg.Workspaces = ws.Strings()
	}
	if se := root.Get("sideEffects"); se != nil {
		switch se.Kind {
		case JSONBool:
			pkg.sideEffectsDeclared = true
			pkg.sideEffects = se.Bool
		case JSONArray:
			pkg.sideEffectsDeclared = true
			for _, raw := range se.Strings() {
				pattern := util.NormalizePatternPath(raw)
				if pattern == "" {
					continue
				}
				g, err := glob.Compile(pattern, '/')
				if err != nil {
					continue
				}
				pkg.sideEffectGlobs = append(pkg.sideEffectGlobs, sideEffectGlob{
					pattern:  pattern,
					basename: !strings.Contains(pattern, "/"),
					g:        g,
				})
			}
		}
	}
	return pkg, nil
}

// Field returns a raw top-level manifest field.
func (p *PackageJSON) Field(name string) *JSONValue {
	return p.fields.Get(name)
}

// MainField returns a string entry-point field such as "main" or "module".
func (p *PackageJSON) MainField(name string) string {
	switch name {
	case "main":
		return p.Main
	case "module":
		return p.Module
	case "browser":
		return p.Browser
	}
	return p.fields.Get(name).StringOr("")
}

func (p *PackageJSON) HasExports() bool { return p.Exports != nil }

func (p *PackageJSON) HasImports() bool { return p.Imports != nil }

// SideEffectsDeclared reports whether the manifest has a "sideEffects" field.
func (p *PackageJSON) SideEffectsDeclared() bool { return p.sideEffectsDeclared }

// HasSideEffects reports whether file, inside this package, may have side
// effects according to the "sideEffects" field. Undeclared means true.
func (p *PackageJSON) HasSideEffects(file string) bool {
	if !p.sideEffectsDeclared {
		return true
	}
	if len(p.sideEffectGlobs) == 0 {
		return p.sideEffects
	}
	rel, err := filepath.Rel(p.Dir, file)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(file)
	for _, sg := range p.sideEffectGlobs {
		target := rel
		if sg.basename {
			target = base
		}
		if sg.g.Match(target) {
			return true
		}
	}
	return false
}
