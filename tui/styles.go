package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/offliner/result"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true)
	successStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	categoryStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle         = lipgloss.NewStyle().Faint(true)
	urlStyle         = lipgloss.NewStyle()
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// categoryOrder defines the display order for failure categories (most to least actionable).
var categoryOrder = []result.ErrorCategory{
	result.Category4xx,
	result.Category5xx,
	result.CategoryTimeout,
	result.CategoryDNSFailure,
	result.CategoryConnectionRefused,
	result.CategoryRedirectLoop,
	result.CategoryFilesystem,
	result.CategoryEncoding,
	result.CategoryStructure,
	result.CategoryUnknown,
}

// RenderSummary produces a Lip Gloss styled summary of a mirror run.
func RenderSummary(res *result.Result) string {
	if res == nil {
		return errorStyle.Render("No results available.")
	}

	var builder strings.Builder
	stats := res.Stats
	counts := fmt.Sprintf("%d pages, %d stylesheets, %d images",
		stats.Pages.Saved, stats.Styles.Saved, stats.Images.Saved)

	if len(res.Failures) == 0 {
		builder.WriteString(successStyle.Render("Everything mirrored!"))
		builder.WriteString("\n")
		builder.WriteString(dimStyle.Render(fmt.Sprintf(
			"Saved %s with %d requests in %s",
			counts, stats.Fetches,
			stats.Duration.Round(1_000_000), // round to ms
		)))
		builder.WriteString("\n")
		writeCancelled(&builder, res)
		return builder.String()
	}

	grouped := make(map[result.ErrorCategory][]result.Failure)
	for _, f := range result.SortFailures(res.Failures) {
		cat := f.ErrorCategory
		if cat == "" {
			cat = result.CategoryUnknown
		}
		grouped[cat] = append(grouped[cat], f)
	}

	for _, cat := range categoryOrder {
		failures := grouped[cat]
		if len(failures) == 0 {
			continue
		}

		builder.WriteString(categoryStyle.Render(fmt.Sprintf("## %s (%d)", result.FormatCategory(cat), len(failures))))
		builder.WriteString("\n")

		rows := make([][]string, 0, len(failures))
		for _, f := range failures {
			status := fmt.Sprintf("%d", f.StatusCode)
			if f.StatusCode == 0 {
				status = f.Error
			}
			rows = append(rows, []string{f.URL, f.Kind, status, f.SourcePage})
		}

		catTable := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers("URL", "Kind", "Status", "Found On").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if col == 2 { // Status column
					return statusErrorStyle
				}
				return urlStyle
			}).
			Rows(rows...)

		builder.WriteString(catTable.Render())
		builder.WriteString("\n\n")
	}

	builder.WriteString(titleStyle.Render(fmt.Sprintf(
		"Saved %s; %d not mirrored (%s)",
		counts,
		len(res.Failures),
		stats.Duration.Round(1_000_000),
	)))
	builder.WriteString("\n")
	writeCancelled(&builder, res)

	return builder.String()
}

func writeCancelled(builder *strings.Builder, res *result.Result) {
	if res.Cancelled {
		builder.WriteString(warnStyle.Render("Interrupted. Run again to resume from the ledger."))
		builder.WriteString("\n")
	}
}
