// Package dataset loads tabular data for binding into a session sandbox:
// CSV, TSV and JSON files through gota, and SQL result sets through
// database/sql (sqlite via go-sqlite3).
package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"

	"github.com/tailored-agentic-units/autods/sandbox"
)

// Supported file formats.
const (
	FormatCSV  = "csv"
	FormatTSV  = "tsv"
	FormatJSON = "json"
)

// FormatOf returns the format implied by a file extension, or "" when the
// extension is not supported.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".tsv", ".tab":
		return FormatTSV
	case ".json":
		return FormatJSON
	}
	return ""
}

// Load reads the file at path into a Dataset.
func Load(path string) (*sandbox.Dataset, error) {
	format := FormatOf(path)
	if format == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Read(filepath.Base(path), format, f)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		ds.Path = abs
	} else {
		ds.Path = path
	}
	return ds, nil
}

// Read parses r in the given format. The result has no Path; environments
// that need a file materialize the frame themselves.
func Read(name, format string, r io.Reader) (*sandbox.Dataset, error) {
	var df dataframe.DataFrame
	switch format {
	case FormatCSV:
		df = dataframe.ReadCSV(r)
	case FormatTSV:
		df = dataframe.ReadCSV(r, dataframe.WithDelimiter('\t'))
	case FormatJSON:
		df = dataframe.ReadJSON(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if df.Err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, df.Err)
	}
	if _, cols := df.Dims(); cols == 0 {
		return nil, fmt.Errorf("parse %s: %w", name, ErrEmpty)
	}

	format = strings.Replace(format, FormatTSV, FormatCSV, 1)
	return &sandbox.Dataset{Name: name, Format: format, Frame: df}, nil
}
