package report

import (
	"fmt"
	"strings"

	"jspack/internal/engine/resolver"
)

// RenderResolution prints the outcome of one resolution and, when tr is not
// nil, every step the resolver tried.
func RenderResolution(specifier string, result resolver.Result, tr *resolver.Trace) string {
	var buf strings.Builder
	switch r := result.(type) {
	case resolver.Resolved:
		buf.WriteString(fmt.Sprintf("%s %s %s %s\n", successStyle.Render(iconSuccess), specifier, iconArrow, r.Path))
		buf.WriteString(detailStyle.Render(dimStyle.Render("kind "+string(r.Kind))) + "\n")
	case resolver.NotFound:
		buf.WriteString(fmt.Sprintf("%s %s %s\n", errorStyle.Render(iconError), specifier, errorStyle.Render("not found")))
		buf.WriteString(detailStyle.Render(fmt.Sprintf("[%s] %s", r.Code, r.Reason)) + "\n")
	case resolver.Ambiguous:
		buf.WriteString(fmt.Sprintf("%s %s %s\n", warningStyle.Render(iconWarning), specifier, warningStyle.Render("ambiguous")))
		for _, c := range r.Candidates {
			buf.WriteString(detailStyle.Render(c) + "\n")
		}
	}
	if tr == nil {
		return buf.String()
	}

	buf.WriteString(titleStyle.Render("trace") + "\n")
	for i, s := range tr.Steps {
		mark := errorStyle.Render(iconError)
		if s.OK {
			mark = successStyle.Render(iconSuccess)
		}
		buf.WriteString(fmt.Sprintf("%3d %s %-18s %s\n", i+1, mark, s.Name, s.Detail))
	}
	for _, w := range tr.Warnings {
		buf.WriteString(warningStyle.Render(iconWarning) + " " + fmt.Sprintf("[%s] %s", w.Code, w.Message) + "\n")
	}
	return buf.String()
}
