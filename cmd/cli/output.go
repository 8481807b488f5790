package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"comoview/internal/loader"
	"comoview/internal/search"
)

var (
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// renderSummary formats the end-of-load report for stderr.
func renderSummary(sum loader.Summary) string {
	var b strings.Builder
	b.WriteString(okStyle.Render(fmt.Sprintf("Loaded %s files", humanize.Comma(int64(sum.Succeeded)))))
	b.WriteString(mutedStyle.Render(fmt.Sprintf(" (%s lines, %s) in %s",
		humanize.Comma(int64(sum.Lines)),
		humanize.Bytes(uint64(sum.Bytes)),
		sum.Elapsed.Round(time.Millisecond))))

	if sum.Cancelled {
		b.WriteString(warnStyle.Render(" (interrupted)"))
	}
	if sum.Failed > 0 {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(fmt.Sprintf("%s failed", humanize.Comma(int64(sum.Failed)))))
		for _, p := range sum.FailedExamples {
			b.WriteString("\n  ")
			b.WriteString(p)
		}
		if more := sum.Failed - len(sum.FailedExamples); more > 0 {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("\n  ... and %d more", more)))
		}
	}
	return b.String()
}

// formatMatch renders a match as 1-based line:start-end.
func formatMatch(sourceIndex int, p search.Position) string {
	return fmt.Sprintf("%d:%d-%d", sourceIndex+1, p.Span.Start, p.Span.End)
}
