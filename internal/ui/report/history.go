package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"jspack/internal/data/cachestore"
)

func RenderHistoryTSV(records []cachestore.BuildRecord) ([]byte, error) {
	var buf strings.Builder
	buf.WriteString("Timestamp\tBuildID\tEntry\tStatus\tModules\tCodeBytes\tCSSBytes\tWarnings\tDurationMs\tError\n")
	for _, r := range records {
		buf.WriteString(fmt.Sprintf("%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Timestamp.UTC().Format(time.RFC3339),
			r.BuildID,
			r.Entry,
			r.Status,
			r.Modules,
			r.CodeBytes,
			r.CSSBytes,
			r.Warnings,
			r.Duration.Milliseconds(),
			strings.ReplaceAll(r.Error, "\t", " "),
		))
	}
	return []byte(buf.String()), nil
}

type historyJSON struct {
	BuildID    string    `json:"build_id"`
	Entry      string    `json:"entry"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Modules    int       `json:"modules"`
	CodeBytes  int       `json:"code_bytes"`
	CSSBytes   int       `json:"css_bytes"`
	Warnings   int       `json:"warnings"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

func RenderHistoryJSON(records []cachestore.BuildRecord) ([]byte, error) {
	out := make([]historyJSON, 0, len(records))
	for _, r := range records {
		out = append(out, historyJSON{
			BuildID:    r.BuildID,
			Entry:      r.Entry,
			Timestamp:  r.Timestamp.UTC(),
			DurationMs: r.Duration.Milliseconds(),
			Modules:    r.Modules,
			CodeBytes:  r.CodeBytes,
			CSSBytes:   r.CSSBytes,
			Warnings:   r.Warnings,
			Status:     r.Status,
			Error:      r.Error,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// RenderHistory is the terminal view of the build log, newest first.
func RenderHistory(records []cachestore.BuildRecord) string {
	if len(records) == 0 {
		return dimStyle.Render("no builds recorded") + "\n"
	}
	var buf strings.Builder
	for _, r := range records {
		var mark string
		switch r.Status {
		case "ok":
			mark = successStyle.Render(iconSuccess)
		case "canceled":
			mark = warningStyle.Render(iconWarning)
		default:
			mark = errorStyle.Render(iconError)
		}
		buf.WriteString(fmt.Sprintf("%s %s  %s  %s\n", mark,
			dimStyle.Render(r.Timestamp.Local().Format("2006-01-02 15:04:05")),
			r.Entry,
			dimStyle.Render(fmt.Sprintf("%d modules, %s, %s", r.Modules, FormatBytes(r.CodeBytes), r.Duration.Round(time.Millisecond)))))
		if r.Error != "" {
			buf.WriteString(detailStyle.Render(r.Error) + "\n")
		}
	}
	return buf.String()
}
