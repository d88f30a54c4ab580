package graph

import "sort"

// UsedExports is either All or a set of export names. It only grows.
type UsedExports struct {
	all   bool
	names map[string]bool
}

func NewUsedExports() *UsedExports {
	return &UsedExports{names: make(map[string]bool)}
}

func (u *UsedExports) All() bool { return u.all }

// SetAll reports whether the set changed.
func (u *UsedExports) SetAll() bool {
	if u.all {
		return false
	}
	u.all = true
	return true
}

// Add reports whether name was newly added.
func (u *UsedExports) Add(name string) bool {
	if u.all || u.names[name] {
		return false
	}
	u.names[name] = true
	return true
}

func (u *UsedExports) Has(name string) bool {
	return u.all || u.names[name]
}

func (u *UsedExports) Len() int { return len(u.names) }

// Names returns the explicit names, sorted. It is empty for All.
func (u *UsedExports) Names() []string {
	if u.all {
		return nil
	}
	out := make([]string, 0, len(u.names))
	for n := range u.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Covers reports whether u includes every name of o.
func (u *UsedExports) Covers(o *UsedExports) bool {
	if u.all {
		return true
	}
	if o.all {
		return false
	}
	for n := range o.names {
		if !u.names[n] {
			return false
		}
	}
	return true
}

func (u *UsedExports) String() string {
	if u.all {
		return "All"
	}
	names := u.Names()
	s := "Some{"
	for i, n := range names {
		if i > 0 {
			s += ","
		}
		s += n
	}
	return s + "}"
}
