package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"jspack/internal/core/errors"
	"jspack/internal/core/ports"

	"github.com/dustin/go-humanize"
)

// RenderBuilds prints one line per build followed by its diagnostics. Paths
// are shown relative to root when they live below it.
func RenderBuilds(root string, builds []ports.BuildSummary) string {
	var buf strings.Builder
	failed := 0
	for _, b := range builds {
		if b.Err != nil {
			failed++
			buf.WriteString(errorStyle.Render(iconError) + " " + b.Entry + " " + errorStyle.Render("failed") + "\n")
			buf.WriteString(detailStyle.Render(b.Err.Error()) + "\n")
		} else {
			target := relTo(root, b.OutFile)
			if target == "" {
				target = "(not written)"
			}
			line := fmt.Sprintf("%s %s %s %s  %s",
				successStyle.Render(iconSuccess), b.Entry, iconArrow, target,
				dimStyle.Render(fmt.Sprintf("%d modules, %s, %d eliminated, %s",
					b.Modules, FormatBytes(b.CodeBytes), b.Eliminated, b.Duration.Round(time.Millisecond))))
			buf.WriteString(line + "\n")
			if b.MapBytes > 0 {
				buf.WriteString(detailStyle.Render(dimStyle.Render("source map "+FormatBytes(b.MapBytes))) + "\n")
			}
			if b.CSSBytes > 0 {
				buf.WriteString(detailStyle.Render(dimStyle.Render("css "+FormatBytes(b.CSSBytes))) + "\n")
			}
		}
		for _, d := range b.Diagnostics {
			buf.WriteString(detailStyle.Render(RenderDiagnostic(root, d)) + "\n")
		}
	}

	switch {
	case len(builds) == 0:
		buf.WriteString(dimStyle.Render("no entries built") + "\n")
	case failed == 0:
		buf.WriteString(successStyle.Render(fmt.Sprintf("%d of %d entries built", len(builds), len(builds))) + "\n")
	default:
		buf.WriteString(errorStyle.Render(fmt.Sprintf("%d of %d entries failed", failed, len(builds))) + "\n")
	}
	return buf.String()
}

// RenderDiagnostic formats one finding with a severity marker.
func RenderDiagnostic(root string, d errors.Diagnostic) string {
	d.Path = relTo(root, d.Path)
	switch d.Severity {
	case errors.SeverityError:
		return errorStyle.Render(iconError) + " " + d.String()
	case errors.SeverityWarning:
		return warningStyle.Render(iconWarning) + " " + d.String()
	default:
		return dimStyle.Render(d.String())
	}
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func relTo(root, path string) string {
	if root == "" || path == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
