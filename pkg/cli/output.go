package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is plain tabular output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
)

// WriteJSON renders v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Table renders rows with aligned columns.
type Table struct {
	tw *tabwriter.Writer
}

// NewTable creates a table writing to w with the given header columns.
func NewTable(w io.Writer, headers ...any) *Table {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	t := &Table{tw: tw}
	t.Row(headers...)
	return t
}

// Row appends one row.
func (t *Table) Row(cols ...any) {
	for i, col := range cols {
		if i > 0 {
			fmt.Fprint(t.tw, "\t")
		}
		fmt.Fprint(t.tw, col)
	}
	fmt.Fprintln(t.tw)
}

// Flush writes the accumulated rows.
func (t *Table) Flush() error {
	return t.tw.Flush()
}
