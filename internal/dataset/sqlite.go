package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSource reads one table of a SQLite database opened read-only.
type SQLiteSource struct {
	db    *sql.DB
	path  string
	table string
}

// OpenSQLite opens path read-only. When table is empty and the database
// holds exactly one table, that table is used.
func OpenSQLite(path, table string) (*SQLiteSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteSource{db: db, path: path, table: table}
	if table == "" {
		tables, err := s.Tables(context.Background())
		if err != nil {
			db.Close()
			return nil, err
		}
		if len(tables) != 1 {
			db.Close()
			return nil, fmt.Errorf("dataset %s has %d tables %v; set dataset.table", path, len(tables), tables)
		}
		s.table = tables[0]
	}
	return s, nil
}

func (s *SQLiteSource) Describe() string { return s.path + "#" + s.table }

func (s *SQLiteSource) Close() error { return s.db.Close() }

// Tables lists user tables in the database.
func (s *SQLiteSource) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (s *SQLiteSource) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", s.table)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", s.table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("table %q not found in %s", s.table, s.path)
	}
	return names, nil
}

func (s *SQLiteSource) Column(ctx context.Context, name string, limit int, mode SampleMode) (*ColumnData, error) {
	names, err := s.Columns(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return nil, columnNotFound(name, names)
	}

	// Identifiers were checked against the schema above; quoting handles
	// names with spaces or quotes.
	query := fmt.Sprintf("SELECT %s FROM %s", quoteIdent(name), quoteIdent(s.table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read column %s: %w", name, err)
	}
	defer rows.Close()

	smp := newSampler(limit, mode)
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		smp.add(sqlCell(v))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &ColumnData{Name: name, Cells: smp.result(), RowsTotal: smp.seen}, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func sqlCell(v any) Cell {
	switch x := v.(type) {
	case nil:
		return Cell{Missing: true}
	case int64:
		return Cell{Value: strconv.FormatInt(x, 10)}
	case float64:
		return Cell{Value: strconv.FormatFloat(x, 'g', -1, 64)}
	case bool:
		return Cell{Value: strconv.FormatBool(x)}
	case []byte:
		return textCell(string(x))
	case string:
		return textCell(x)
	case time.Time:
		return Cell{Value: x.UTC().Format(time.RFC3339)}
	default:
		return Cell{Value: fmt.Sprint(x)}
	}
}
