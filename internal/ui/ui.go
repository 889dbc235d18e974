// Package ui renders run reports for the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"stacksync/internal/deploy"
	"stacksync/internal/reconcile"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Ok renders positive output.
func Ok(s string) string { return okStyle.Render(s) }

// Warn renders a warning.
func Warn(s string) string { return warnStyle.Render(s) }

// Fail renders a failure.
func Fail(s string) string { return failStyle.Render(s) }

// Accent renders emphasized output such as environment names.
func Accent(s string) string { return accentStyle.Render(s) }

// RenderSummary formats the end-of-run report: classification counts,
// one line per deployment record, and the overall verdict.
func RenderSummary(source, target string, s *reconcile.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s %s\n",
		Accent(source), dimStyle.Render("→"), Accent(target))
	fmt.Fprintf(&b, "  new %d, changed %d, unchanged %d, indeterminate %d\n",
		s.Counts.New, s.Counts.Changed, s.Counts.Unchanged, s.Counts.Indeterminate)

	for _, r := range s.Records {
		b.WriteString("  " + renderRecord(r) + "\n")
	}
	for _, name := range s.Unretrievable {
		fmt.Fprintf(&b, "  %s %s %s\n",
			Warn("!"), name, dimStyle.Render("unretrievable from source, skipped"))
	}

	switch {
	case s.Scheduled == 0:
		b.WriteString(Ok("nothing to deploy") + "\n")
	case s.Success():
		fmt.Fprintf(&b, "%s\n", Ok(fmt.Sprintf("deployed %d/%d", s.Deployed, s.Scheduled)))
	default:
		fmt.Fprintf(&b, "%s\n", Fail(fmt.Sprintf("deployed 0/%d", s.Scheduled)))
	}
	return b.String()
}

func renderRecord(r deploy.Record) string {
	if r.Outcome == deploy.Deployed {
		return fmt.Sprintf("%s %s %s", Ok("✓"), r.Name, dimStyle.Render("via "+r.Strategy))
	}
	return fmt.Sprintf("%s %s %s", Fail("✗"), r.Name, dimStyle.Render(r.Diagnostic))
}

// RenderInventory formats a function listing.
func RenderInventory(env string, names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d functions)\n", Accent(env), len(names))
	for _, name := range names {
		b.WriteString("  " + name + "\n")
	}
	return b.String()
}
