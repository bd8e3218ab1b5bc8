package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tailored-agentic-units/autods/sandbox"
)

const sqliteScheme = "sqlite://"

var writeStatement = regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|TRUNCATE|CREATE|ATTACH|PRAGMA)\b|\bREPLACE\s+INTO\b`)

// Open opens a database read-only from a connection URI. Only sqlite is
// supported: "sqlite:///path/to/file.db", "sqlite://:memory:" or a bare file
// path. A file database must already exist.
func Open(uri string) (*sql.DB, error) {
	path := uri
	if scheme, rest, ok := strings.Cut(uri, "://"); ok {
		if scheme != "sqlite" {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, scheme)
		}
		path = rest
	}
	path = strings.TrimPrefix(path, sqliteScheme)
	if path == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDriver)
	}

	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func readOnlyDSN(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("open database: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("open database: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("open database: %s is a directory", path)
	}

	u := url.URL{Scheme: "file", Path: abs, RawQuery: "mode=ro"}
	return u.String(), nil
}

// CheckReadOnly rejects statements containing any keyword that could modify
// the database.
func CheckReadOnly(query string) error {
	if kw := writeStatement.FindString(query); kw != "" {
		return fmt.Errorf("%w: found %s", ErrReadOnly, strings.ToUpper(kw))
	}
	return nil
}

// Query runs a read-only query and loads the full result set as a Dataset.
// NULL values become missing values in the frame.
func Query(ctx context.Context, db *sql.DB, query string) (*sandbox.Dataset, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, ErrEmpty
	}

	records := [][]string{columns}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query scan: %w", err)
		}
		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = cell(v)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}

	var df dataframe.DataFrame
	if len(records) == 1 {
		// LoadRecords rejects a header without rows.
		cols := make([]series.Series, len(columns))
		for i, name := range columns {
			cols[i] = series.New([]string{}, series.String, name)
		}
		df = dataframe.New(cols...)
	} else {
		df = dataframe.LoadRecords(records)
	}
	if df.Err != nil {
		return nil, fmt.Errorf("query frame: %w", df.Err)
	}

	return &sandbox.Dataset{Name: "query", Format: "sql", Frame: df}, nil
}

// Schema lists every table in a sqlite database with its column names.
func Schema(ctx context.Context, db *sql.DB) (map[string][]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("schema: %w", err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	schema := make(map[string][]string, len(tables))
	for _, table := range tables {
		cols, err := tableColumns(ctx, db, table)
		if err != nil {
			return nil, err
		}
		schema[table] = cols
	}
	return schema, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, cid FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", table, err)
	}
	defer rows.Close()

	type column struct {
		name string
		cid  int
	}
	var cols []column
	for rows.Next() {
		var c column
		if err := rows.Scan(&c.name, &c.cid); err != nil {
			return nil, fmt.Errorf("schema %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", table, err)
	}

	sort.Slice(cols, func(i, j int) bool { return cols[i].cid < cols[j].cid })
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names, nil
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NaN"
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
