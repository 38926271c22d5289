package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vegasq/aggcat/pipeline"
)

// CSVSource serves <Dir>/<table>.csv. The first row is the header. With
// InferTypes set, cells that parse as integers, floats or booleans are
// converted and empty cells become null; otherwise every cell is a string.
type CSVSource struct {
	Dir        string
	Comma      rune
	InferTypes bool
	Logger     *slog.Logger
}

// NewCSVSource returns a comma-separated source with type inference.
func NewCSVSource(dir string, logger *slog.Logger) *CSVSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CSVSource{Dir: dir, Comma: ',', InferTypes: true, Logger: logger}
}

// FetchAll reads the whole file.
func (s *CSVSource) FetchAll(ctx context.Context, table string) (pipeline.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := table
	if !strings.HasSuffix(name, ".csv") {
		name += ".csv"
	}
	path := filepath.Join(s.Dir, name)
	s.Logger.Debug("reading csv", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return s.Read(f)
}

// Read decodes CSV from r.
func (s *CSVSource) Read(r io.Reader) (pipeline.Table, error) {
	cr := csv.NewReader(r)
	if s.Comma != 0 {
		cr.Comma = s.Comma
	}
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return pipeline.Table{}, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var out pipeline.Table
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if len(row) > len(header) {
			return nil, fmt.Errorf("line %d: %d values for %d columns", line, len(row), len(header))
		}
		rec := pipeline.NewRecord()
		for i, col := range header {
			if i >= len(row) {
				rec.Set(col, nil)
				continue
			}
			if s.InferTypes {
				rec.Set(col, inferValue(row[i]))
			} else {
				rec.Set(col, row[i])
			}
		}
		out = append(out, rec)
	}
	if out == nil {
		out = pipeline.Table{}
	}
	return out, nil
}

// inferValue converts a CSV cell to the narrowest value type it parses as.
func inferValue(cell string) any {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return cell
}

// Tables lists the CSV files in Dir without their extension.
func (s *CSVSource) Tables(context.Context) ([]string, error) {
	return listTables(s.Dir, ".csv")
}

// Close is a no-op.
func (s *CSVSource) Close() error { return nil }
