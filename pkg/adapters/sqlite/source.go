package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Source implements ports.TableSource over a SQLite database. Reads are the
// only operation; the engine never writes through a binding.
type Source struct {
	db *sql.DB
}

// NewSource creates a source over an existing database handle. A handle
// shared with a Store reuses its WAL configuration.
func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

// OpenSource opens a database read-only.
func OpenSource(path string) (*Source, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Source{db: db}, nil
}

// Close closes the database connection.
func (s *Source) Close() error {
	return s.db.Close()
}

// Select returns every row of a table. A missing table yields (nil, nil):
// the binder represents it as an empty binding rather than failing the
// document.
func (s *Source) Select(ctx context.Context, table string) ([]map[string]any, error) {
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, table))
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query table %q: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %q: %w", table, err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %q: %w", table, err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize maps driver types onto the engine's value model.
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int64:
		return float64(val)
	default:
		return v
	}
}
