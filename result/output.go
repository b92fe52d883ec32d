package result

import (
	"cmp"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// kindRank orders report rows: pages first, then what they pull in.
var kindRank = map[string]int{"page": 0, "style": 1, "image": 2}

// SortFailures returns a copy of failures ordered by kind, then URL, so
// reports from concurrent runs are comparable.
func SortFailures(failures []Failure) []Failure {
	sorted := slices.Clone(failures)
	slices.SortStableFunc(sorted, func(a, b Failure) int {
		if c := cmp.Compare(kindRank[a.Kind], kindRank[b.Kind]); c != 0 {
			return c
		}
		return cmp.Compare(a.URL, b.URL)
	})
	return sorted
}

// WriteJSON writes the failures as an indented JSON array. URLs are not
// HTML-escaped so the report can be fed straight back to other tools.
func WriteJSON(w io.Writer, failures []Failure) error {
	rows := SortFailures(failures)
	if rows == nil {
		rows = []Failure{}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	return nil
}

// csvColumns defines the CSV report, header and cell together.
var csvColumns = []struct {
	name string
	cell func(Failure) string
}{
	{"url", func(f Failure) string { return f.URL }},
	{"kind", func(f Failure) string { return f.Kind }},
	{"status_code", func(f Failure) string { return statusCodeStr(f.StatusCode) }},
	{"error_type", func(f Failure) string { return string(f.ErrorCategory) }},
	{"source_page", func(f Failure) string { return f.SourcePage }},
	{"error", func(f Failure) string { return f.Error }},
}

// WriteCSV writes the failures as CSV. The header row is always written.
func WriteCSV(w io.Writer, failures []Failure) error {
	cw := csv.NewWriter(w)

	record := make([]string, len(csvColumns))
	for i, col := range csvColumns {
		record[i] = col.name
	}
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, f := range SortFailures(failures) {
		for i, col := range csvColumns {
			record[i] = col.cell(f)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row for %s: %w", f.URL, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv report: %w", err)
	}
	return nil
}

// statusCodeStr leaves the cell empty when no HTTP response was received.
func statusCodeStr(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}
