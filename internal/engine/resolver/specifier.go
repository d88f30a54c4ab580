package resolver

import (
	"path/filepath"
	"strings"
)

type SpecifierKind uint8

const (
	SpecRelative SpecifierKind = iota
	SpecAbsolute
	SpecBare
	SpecHash
	SpecVirtual
)

func (k SpecifierKind) String() string {
	switch k {
	case SpecRelative:
		return "relative"
	case SpecAbsolute:
		return "absolute"
	case SpecBare:
		return "bare"
	case SpecHash:
		return "hash-import"
	case SpecVirtual:
		return "virtual"
	}
	return "unknown"
}

// Specifier is a classified import string. For bare specifiers Package is
// the full package name (including scope) and Subpath is "." or "./rest".
type Specifier struct {
	Raw     string
	Kind    SpecifierKind
	Package string
	Scope   string
	Subpath string
}

// ParseSpecifier classifies raw. The second result is false for bare
// specifiers that do not form a valid package name.
func ParseSpecifier(raw string) (Specifier, bool) {
	s := Specifier{Raw: raw}
	switch {
	case raw == "":
		return s, false
	case raw == "." || raw == ".." || strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../"):
		s.Kind = SpecRelative
		return s, true
	case strings.HasPrefix(raw, "/") || filepath.IsAbs(raw):
		s.Kind = SpecAbsolute
		return s, true
	case strings.HasPrefix(raw, "#"):
		s.Kind = SpecHash
		return s, raw != "#" && !strings.HasPrefix(raw, "#/")
	case hasURLScheme(raw):
		s.Kind = SpecVirtual
		return s, true
	}

	s.Kind = SpecBare
	parts := strings.SplitN(raw, "/", 3)
	nameParts := 1
	if strings.HasPrefix(raw, "@") {
		if len(parts) < 2 || parts[1] == "" || len(parts[0]) < 2 {
			return s, false
		}
		s.Scope = parts[0]
		nameParts = 2
	}
	s.Package = strings.Join(parts[:nameParts], "/")
	rest := strings.TrimPrefix(raw, s.Package)
	if rest == "" {
		s.Subpath = "."
	} else {
		s.Subpath = "." + rest
	}
	if strings.HasPrefix(s.Package, ".") || strings.ContainsAny(s.Package, "\\%") {
		return s, false
	}
	return s, true
}

// hasURLScheme reports "data:", "node:", "https:" and similar prefixes.
func hasURLScheme(raw string) bool {
	colon := strings.IndexByte(raw, ':')
	if colon < 2 {
		return false
	}
	for i := 0; i < colon; i++ {
		c := raw[i]
		isAlpha := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !(c >= '0' && c <= '9') && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}
