package output

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/olekukonko/tablewriter"
	"github.com/vegasq/aggcat/pipeline"
)

const nullText = "NULL"

// TableFormatter draws an ASCII grid.
type TableFormatter struct {
	writer io.Writer
}

// NewTableFormatter creates an ASCII table formatter.
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w}
}

// SetOutput sets the output writer.
func (f *TableFormatter) SetOutput(w io.Writer) {
	f.writer = w
}

// Format writes the grid followed by a row count.
func (f *TableFormatter) Format(t pipeline.Table) error {
	if len(t) == 0 {
		_, err := fmt.Fprintln(f.writer, "(0 rows)")
		return err
	}

	columns := t.Fields()
	tw := tablewriter.NewWriter(f.writer)
	tw.SetHeader(columns)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	for _, rec := range t {
		tw.Append(textRow(rec, columns))
	}
	tw.Render()

	_, err := fmt.Fprintf(f.writer, "(%d rows)\n", len(t))
	return err
}

func textRow(rec *pipeline.Record, columns []string) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		row[i] = cellText(rec.Get(col), nullText)
	}
	return row
}

// PrettyFormatter draws a box-drawing table.
type PrettyFormatter struct {
	writer io.Writer
}

// NewPrettyFormatter creates a box-drawing table formatter.
func NewPrettyFormatter(w io.Writer) *PrettyFormatter {
	return &PrettyFormatter{writer: w}
}

// SetOutput sets the output writer.
func (f *PrettyFormatter) SetOutput(w io.Writer) {
	f.writer = w
}

// Format writes the table followed by a row count.
func (f *PrettyFormatter) Format(t pipeline.Table) error {
	if len(t) == 0 {
		_, err := fmt.Fprintln(f.writer, "(0 rows)")
		return err
	}

	tw := prettyTable(f.writer, t)
	tw.SetStyle(table.StyleLight)
	tw.Render()

	_, err := fmt.Fprintf(f.writer, "(%d rows)\n", len(t))
	return err
}

// MarkdownFormatter writes a GitHub-flavored markdown table.
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a markdown table formatter.
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// SetOutput sets the output writer.
func (f *MarkdownFormatter) SetOutput(w io.Writer) {
	f.writer = w
}

// Format writes the table. Pipe characters inside cells are escaped.
func (f *MarkdownFormatter) Format(t pipeline.Table) error {
	if len(t) == 0 {
		_, err := fmt.Fprintln(f.writer, "(0 rows)")
		return err
	}
	prettyTable(f.writer, t).RenderMarkdown()
	return nil
}

func prettyTable(w io.Writer, t pipeline.Table) table.Writer {
	columns := t.Fields()

	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	header := make(table.Row, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	tw.AppendHeader(header)

	for _, rec := range t {
		cells := textRow(rec, columns)
		row := make(table.Row, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		tw.AppendRow(row)
	}
	return tw
}
