package hoist

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"jspack/internal/engine/graph"
)

// Runtime identifiers shared with the emitter.
const (
	ModulesVar  = "__jspack_modules"
	CacheVar    = "__jspack_cache"
	RequireFn   = "__jspack_require"
	ExportFn    = "__jspack_export"
	NamespaceFn = "__jspack_namespace"
	ExternalFn  = "__jspack_external"
)

var reservedWords = []string{
	"await", "break", "case", "catch", "class", "const", "continue", "debugger", "default",
	"delete", "do", "else", "enum", "export", "extends", "false", "finally", "for", "function",
	"if", "implements", "import", "in", "instanceof", "interface", "let", "new", "null",
	"package", "private", "protected", "public", "return", "static", "super", "switch", "this",
	"throw", "true", "try", "typeof", "var", "void", "while", "with", "yield",
	"arguments", "eval", "undefined", "NaN", "Infinity", "globalThis",
	"module", "exports", "require",
	ModulesVar, CacheVar, RequireFn, ExportFn, NamespaceFn, ExternalFn,
}

// namespace tracks every identifier claimed in the bundle scope. A candidate
// is rejected when it is already claimed, reserved, or bound in a nested scope
// of some module, since a rewritten reference there would be captured.
type namespace struct {
	claimed  map[string]bool
	reserved map[string]bool
	nested   map[string][]graph.ModuleID
}

func newNamespace() *namespace {
	ns := &namespace{
		claimed:  make(map[string]bool),
		reserved: make(map[string]bool),
		nested:   make(map[string][]graph.ModuleID),
	}
	for _, w := range reservedWords {
		ns.reserved[w] = true
	}
	return ns
}

func (ns *namespace) reserve(name string) { ns.reserved[name] = true }

func (ns *namespace) bindNested(name string, owner graph.ModuleID) {
	ns.nested[name] = append(ns.nested[name], owner)
}

// claim returns name, or name$N for the smallest free N. A module may keep a
// top-level name it also binds in its own nested scopes, because its own
// references were already resolved against the correct scope.
func (ns *namespace) claim(name string, owner graph.ModuleID) string {
	for n := 0; ; n++ {
		cand := name
		if n > 0 {
			cand = fmt.Sprintf("%s$%d", name, n)
		}
		if ns.available(cand, owner, n == 0) {
			ns.claimed[cand] = true
			return cand
		}
	}
}

func (ns *namespace) available(cand string, owner graph.ModuleID, original bool) bool {
	if ns.claimed[cand] || ns.reserved[cand] {
		return false
	}
	for _, id := range ns.nested[cand] {
		if id != owner || !original {
			return false
		}
	}
	return true
}

// baseName derives an identifier stem from a module path; index files take
// their directory's name.
func baseName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if stem == "index" {
		if dir := filepath.Base(filepath.Dir(path)); dir != "." && dir != string(filepath.Separator) {
			stem = dir
		}
	}
	return sanitize(stem)
}

func sanitize(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "module"
	}
	return b.String()
}

// IsIdentifier reports whether s can be written as a bare property name.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Member renders a property access on an object expression.
func Member(name string) string {
	if IsIdentifier(name) {
		return "." + name
	}
	return "[" + strconv.Quote(name) + "]"
}

// PropertyKey renders name as an object literal key.
func PropertyKey(name string) string {
	if IsIdentifier(name) {
		return name
	}
	return strconv.Quote(name)
}
