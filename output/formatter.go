package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/vegasq/aggcat/pipeline"
)

// Output format names accepted by New.
const (
	FormatJSONL    = "jsonl"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatTable    = "table"
	FormatPretty   = "pretty"
	FormatMarkdown = "markdown"
)

// Formats lists every supported format name.
var Formats = []string{FormatJSONL, FormatJSON, FormatCSV, FormatTable, FormatPretty, FormatMarkdown}

// Formatter writes a result table in one output format.
type Formatter interface {
	// Format writes the table. Columns follow the table's first-seen field
	// order.
	Format(t pipeline.Table) error

	// SetOutput changes the output writer.
	SetOutput(w io.Writer)
}

// New returns the formatter for format writing to w.
func New(format string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(format) {
	case FormatJSONL, "ndjson":
		return NewJSONLinesFormatter(w), nil
	case FormatJSON:
		return NewJSONFormatter(w), nil
	case FormatCSV:
		return NewCSVFormatter(w), nil
	case FormatTable:
		return NewTableFormatter(w), nil
	case FormatPretty:
		return NewPrettyFormatter(w), nil
	case FormatMarkdown, "md":
		return NewMarkdownFormatter(w), nil
	}
	return nil, fmt.Errorf("unsupported output format %q (want one of %s)", format, strings.Join(Formats, ", "))
}

// cellText renders a value for text formats. Null renders as nullText.
func cellText(v any, nullText string) string {
	switch val := v.(type) {
	case nil:
		return nullText
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case []any, []string:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
