package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/vegasq/aggcat/pipeline"
)

// CSVFormatter outputs records as CSV with a header row.
type CSVFormatter struct {
	writer io.Writer
}

// NewCSVFormatter creates a new CSV formatter.
func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{writer: w}
}

// SetOutput sets the output writer.
func (c *CSVFormatter) SetOutput(w io.Writer) {
	c.writer = w
}

// Format writes the table as CSV. The header holds every field seen in the
// table, in first-seen order, so records with different fields line up.
// Missing and null values are written as empty cells.
func (c *CSVFormatter) Format(t pipeline.Table) error {
	csvWriter := csv.NewWriter(c.writer)

	if len(t) > 0 {
		columns := t.Fields()
		if err := csvWriter.Write(columns); err != nil {
			return err
		}
		record := make([]string, len(columns))
		for _, rec := range t {
			for i, col := range columns {
				record[i] = csvCell(rec.Get(col))
			}
			if err := csvWriter.Write(record); err != nil {
				return err
			}
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV writer: %w", err)
	}
	return nil
}

// csvCell renders a value as a CSV cell. Text starting with a character
// that spreadsheets treat as a formula is prefixed with a single quote.
func csvCell(v any) string {
	s, ok := v.(string)
	if !ok {
		return cellText(v, "")
	}
	if len(s) > 0 {
		switch s[0] {
		case '=', '+', '-', '@', '\t', '\r', '\n', '|':
			return "'" + strings.ReplaceAll(s, "'", "''")
		}
	}
	return s
}
