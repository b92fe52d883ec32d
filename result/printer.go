package result

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// PrintResults writes the resources left remote and a one-line summary to w.
func PrintResults(w io.Writer, res *Result) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	if len(res.Failures) == 0 {
		writef("Everything mirrored.\n")
	} else {
		writef("Not mirrored (left remote):\n")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, f := range SortFailures(res.Failures) {
			reason := string(f.ErrorCategory)
			if f.StatusCode != 0 {
				reason = fmt.Sprintf("HTTP %d", f.StatusCode)
			}
			_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Kind, f.URL, reason)
			if f.SourcePage != "" {
				_, _ = fmt.Fprintf(tw, "  \tfound on %s\t\n", f.SourcePage)
			}
			if f.Error != "" && f.StatusCode == 0 {
				_, _ = fmt.Fprintf(tw, "  \t%s\t\n", f.Error)
			}
		}
		_ = tw.Flush()
	}

	s := res.Stats
	writef("Saved %d pages, %d stylesheets, %d images; %d not mirrored\n",
		s.Pages.Saved, s.Styles.Saved, s.Images.Saved, s.FailureCount())
	if res.Cancelled {
		writef("Run was interrupted; re-run to resume.\n")
	}
}
