package resolver

import (
	"path/filepath"
	"strings"

	"jspack/internal/core/errors"
)

type targetStatus uint8

const (
	targetOK targetStatus = iota
	// targetBare is an `imports` target naming a package rather than a file.
	targetBare
	// targetNoMatch means no condition applied; the caller may try siblings.
	targetNoMatch
	// targetBlocked is an explicit null target.
	targetBlocked
	targetInvalid
)

// conditionSet is the active condition set in canonical form.
type conditionSet map[string]bool

func newConditionSet(conds []string) conditionSet {
	set := make(conditionSet, len(conds)+1)
	for _, c := range conds {
		set[c] = true
	}
	set["default"] = true
	return set
}

// normalizeSubpathMap turns every legal shape of "exports" into an object
// keyed by subpath. Mixing subpath keys with condition keys is invalid.
func normalizeSubpathMap(v *JSONValue, hashKeys bool) (*JSONValue, error) {
	if v == nil {
		return nil, nil
	}
	if v.Kind != JSONObject {
		if hashKeys {
			return nil, errors.New(errors.CodeInvalidPackageJSON, `"imports" must be an object`)
		}
		return &JSONValue{Kind: JSONObject, Keys: []string{"."}, Fields: map[string]*JSONValue{".": v}}, nil
	}
	prefix := "."
	if hashKeys {
		prefix = "#"
	}
	subpaths := 0
	for _, k := range v.Keys {
		if strings.HasPrefix(k, prefix) {
			subpaths++
		}
	}
	switch {
	case subpaths == len(v.Keys):
		return v, nil
	case subpaths == 0 && !hashKeys:
		return &JSONValue{Kind: JSONObject, Keys: []string{"."}, Fields: map[string]*JSONValue{".": v}}, nil
	}
	return nil, errors.New(errors.CodeInvalidPackageJSON, "exports mixes subpath and condition keys")
}

// subpathMatch is the winning key for a requested subpath.
type subpathMatch struct {
	Key    string
	Target *JSONValue
	Star   string
}

// matchSubpath selects the most specific key for subpath: an exact key beats
// any pattern; among "*" patterns the longest static prefix wins, then the
// longer key. Distinct keys cannot tie under that order.
func matchSubpath(m *JSONValue, subpath string) (subpathMatch, bool) {
	if t, ok := m.Fields[subpath]; ok && !strings.Contains(subpath, "*") {
		return subpathMatch{Key: subpath, Target: t}, true
	}
	best := ""
	for _, key := range m.Keys {
		star := strings.IndexByte(key, '*')
		if star < 0 || strings.LastIndexByte(key, '*') != star {
			continue
		}
		prefix, suffix := key[:star], key[star+1:]
		if len(subpath) < len(key) || !strings.HasPrefix(subpath, prefix) || !strings.HasSuffix(subpath, suffix) {
			continue
		}
		if best == "" || patternKeyLess(best, key) {
			best = key
		}
	}
	if best == "" {
		return subpathMatch{}, false
	}
	star := strings.IndexByte(best, '*')
	suffixLen := len(best) - star - 1
	return subpathMatch{
		Key:    best,
		Target: m.Fields[best],
		Star:   subpath[star : len(subpath)-suffixLen],
	}, true
}

// patternKeyLess reports whether key b is more specific than key a.
func patternKeyLess(a, b string) bool {
	ai, bi := strings.IndexByte(a, '*'), strings.IndexByte(b, '*')
	if ai != bi {
		return bi > ai
	}
	return len(b) > len(a)
}

// resolveTarget expands a target value under the active conditions. Object
// keys are visited in manifest order; arrays yield their first valid entry.
func resolveTarget(tr *tracer, pkgDir string, target *JSONValue, star string, conds conditionSet, allowBare bool) (string, targetStatus) {
	if target == nil {
		return "", targetNoMatch
	}
	switch target.Kind {
	case JSONString:
		s := target.String
		if !strings.HasPrefix(s, "./") {
			if allowBare && !strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "../") && !hasURLScheme(s) {
				return strings.ReplaceAll(s, "*", star), targetBare
			}
			tr.step(StepMatchExportsKey, false, "invalid target %q", s)
			return "", targetInvalid
		}
		if invalidTargetSegments(s[2:]) || invalidTargetSegments(star) {
			tr.step(StepMatchExportsKey, false, "target %q escapes the package", s)
			return "", targetInvalid
		}
		resolved := filepath.Join(pkgDir, filepath.FromSlash(strings.ReplaceAll(s, "*", star)))
		return resolved, targetOK
	case JSONArray:
		last := targetNoMatch
		for _, item := range target.Array {
			path, status := resolveTarget(tr, pkgDir, item, star, conds, allowBare)
			if status == targetOK || status == targetBare {
				return path, status
			}
			last = status
		}
		return "", last
	case JSONObject:
		for _, key := range target.Keys {
			if !conds[key] {
				continue
			}
			tr.step(StepMatchExportsKey, true, "condition %q", key)
			path, status := resolveTarget(tr, pkgDir, target.Fields[key], star, conds, allowBare)
			if status == targetNoMatch {
				continue
			}
			return path, status
		}
		return "", targetNoMatch
	case JSONNull:
		return "", targetBlocked
	}
	return "", targetInvalid
}

func invalidTargetSegments(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." || seg == "node_modules" {
			return true
		}
	}
	return false
}
