package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/vegasq/aggcat/pipeline"
)

// maxGlobFiles bounds how many files one glob may expand to.
const maxGlobFiles = 1000

// Reader reads one parquet file into records.
//
// It keeps both the OS file handle and the parquet file handle so that
// Close can release them.
type Reader struct {
	file   *os.File
	pqFile *parquet.File
}

// NewReader opens path and validates it as a parquet file.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pqFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	return &Reader{file: file, pqFile: pqFile}, nil
}

// ReadAll loads every row. Record fields follow the schema's column order.
func (r *Reader) ReadAll() (pipeline.Table, error) {
	columns := make([]string, 0, len(r.pqFile.Schema().Fields()))
	for _, f := range r.pqFile.Schema().Fields() {
		columns = append(columns, f.Name())
	}

	reader := parquet.NewReader(r.pqFile)
	defer func() { _ = reader.Close() }()

	out := make(pipeline.Table, 0, r.pqFile.NumRows())
	for {
		row := make(map[string]any)
		if err := reader.Read(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		out = append(out, rowToRecord(columns, row))
	}
	return out, nil
}

func rowToRecord(columns []string, row map[string]any) *pipeline.Record {
	rec := pipeline.NewRecord()
	for _, c := range columns {
		if v, ok := row[c]; ok {
			rec.Set(c, v)
		}
	}
	if len(row) > rec.Len() {
		var extra []string
		for k := range row {
			if !rec.Has(k) {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		for _, k := range extra {
			rec.Set(k, row[k])
		}
	}
	return rec
}

// Schema returns the parquet schema of the file.
func (r *Reader) Schema() *parquet.Schema {
	return r.pqFile.Schema()
}

// Close releases the file handle. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// ReadMultipleFiles reads every parquet file matching pattern.
//
// A pattern without wildcards reads that single file unchanged. When the
// pattern is a glob, each record is tagged with a "_file" field holding its
// source path. An error is returned if nothing matches or any file fails.
func ReadMultipleFiles(pattern string) (pipeline.Table, error) {
	if !isGlob(pattern) {
		return readFile(pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no files match pattern: %s", pattern)
	}
	if len(matches) > maxGlobFiles {
		return nil, fmt.Errorf("glob pattern matched too many files (%d), maximum is %d", len(matches), maxGlobFiles)
	}

	var all pipeline.Table
	for _, path := range matches {
		rows, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for _, rec := range rows {
			rec.Set("_file", path)
		}
		all = append(all, rows...)
	}
	return all, nil
}

func readFile(path string) (pipeline.Table, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	rows, readErr := r.ReadAll()
	closeErr := r.Close()
	if readErr != nil {
		return nil, readErr
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	return rows, nil
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// ParquetSource serves <Dir>/<table>.parquet. A table name containing glob
// characters is matched against Dir and read as a multi-file table.
type ParquetSource struct {
	Dir    string
	Logger *slog.Logger
}

// NewParquetSource returns a source rooted at dir.
func NewParquetSource(dir string, logger *slog.Logger) *ParquetSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ParquetSource{Dir: dir, Logger: logger}
}

// FetchAll reads the table's file or files.
func (s *ParquetSource) FetchAll(ctx context.Context, table string) (pipeline.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.path(table)
	s.Logger.Debug("reading parquet", slog.String("path", path))
	return ReadMultipleFiles(path)
}

func (s *ParquetSource) path(table string) string {
	name := table
	if !strings.HasSuffix(name, ".parquet") {
		name += ".parquet"
	}
	return filepath.Join(s.Dir, name)
}

// Tables lists the parquet files in Dir without their extension.
func (s *ParquetSource) Tables(context.Context) ([]string, error) {
	return listTables(s.Dir, ".parquet")
}

// Close is a no-op; files are closed after every read.
func (s *ParquetSource) Close() error { return nil }

func listTables(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var tables []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		tables = append(tables, strings.TrimSuffix(e.Name(), ext))
	}
	slices.Sort(tables)
	return tables, nil
}
