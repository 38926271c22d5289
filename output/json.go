package output

import (
	"encoding/json"
	"io"

	"github.com/vegasq/aggcat/pipeline"
)

// JSONLinesFormatter writes one JSON object per record.
type JSONLinesFormatter struct {
	writer io.Writer
}

// NewJSONLinesFormatter creates a JSON Lines formatter.
func NewJSONLinesFormatter(w io.Writer) *JSONLinesFormatter {
	return &JSONLinesFormatter{writer: w}
}

// SetOutput sets the output writer.
func (j *JSONLinesFormatter) SetOutput(w io.Writer) {
	j.writer = w
}

// Format writes each record on its own line with fields in record order.
func (j *JSONLinesFormatter) Format(t pipeline.Table) error {
	encoder := json.NewEncoder(j.writer)
	for _, rec := range t {
		if err := encoder.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// JSONFormatter writes the table as one indented JSON array.
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a JSON array formatter.
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

// SetOutput sets the output writer.
func (j *JSONFormatter) SetOutput(w io.Writer) {
	j.writer = w
}

// Format writes the table. An empty table is written as [].
func (j *JSONFormatter) Format(t pipeline.Table) error {
	if t == nil {
		t = pipeline.Table{}
	}
	encoder := json.NewEncoder(j.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(t)
}
