package emit

import (
	"bytes"
	"strings"

	"jspack/internal/engine/parser"
)

// minifyEdits strips comments, indentation and blank lines inside r. Line
// breaks survive so automatic semicolon insertion is unaffected, and
// protected literals are never touched.
func minifyEdits(a *parser.Module, r parser.Range) []edit {
	var edits []edit
	src := a.Source
	comments := make(map[uint32]uint32)
	for _, c := range a.Comments {
		if !r.Contains(c) || protected(a, c.Start) {
			continue
		}
		comments[c.Start] = c.End
		// A block comment may separate two tokens.
		text := " "
		if bytes.HasPrefix(src[c.Start:c.End], []byte("//")) {
			text = ""
		}
		edits = append(edits, edit{c.Start, c.End, text})
	}
	for k := r.Start; k < r.End; k++ {
		if src[k] != '\n' || protected(a, k) {
			continue
		}
		// Comments at the start of a line fold into the whitespace run.
		j := k + 1
		for j < r.End && !protected(a, j) {
			if isBlank(src[j]) {
				j++
				continue
			}
			if end, ok := comments[j]; ok {
				j = end
				continue
			}
			break
		}
		if j > k+1 {
			edits = append(edits, edit{k, j, "\n"})
		}
		k = j - 1
	}
	return edits
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func protected(a *parser.Module, offset uint32) bool {
	for _, p := range a.Protected {
		if p.Start <= offset && offset < p.End {
			return true
		}
	}
	return false
}

// minifyText trims indentation and blank lines from generated glue code,
// which never contains multi-line literals.
func minifyText(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
