// Package sqlite persists flattened records into a SQLite database.
//
// Key design points vs Postgres:
//   - SQLite has no dedicated timestamp type; "timestamp" and "date" columns
//     get TEXT affinity and values are stored as the strings the source
//     carried (RFC3339-style for discovered date-time fields).
//   - "INTEGER PRIMARY KEY" is special in SQLite: it aliases the rowid, so
//     the discovered primary key keeps its declared type and is enforced with
//     a UNIQUE constraint instead.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"wmsprobe/internal/flatten"
	"wmsprobe/internal/sink"
)

type writer struct {
	db *sql.DB
}

func init() {
	sink.Register("sqlite", New)
}

// New opens (or creates) the SQLite database at cfg.DSN and validates
// connectivity.
func New(ctx context.Context, cfg sink.Config) (sink.Writer, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &writer{db: db}, nil
}

func (w *writer) Close() error { return w.db.Close() }

// EnsureTable creates the destination table if it does not already exist.
// Idempotent, safe to run on every probe invocation.
func (w *writer) EnsureTable(ctx context.Context, spec sink.TableSpec) error {
	ddl, err := buildCreateTableSQL(spec)
	if err != nil {
		return err
	}
	if _, err := w.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", spec.Name, err)
	}
	return nil
}

// WriteRows performs a multi-row insert.
//
// When the spec carries a primary key, "INSERT OR IGNORE" makes reprocessing
// the same sample idempotent (it relies on the UNIQUE constraint EnsureTable
// declares for that column).
func (w *writer) WriteRows(ctx context.Context, spec sink.TableSpec, recs []flatten.FlatRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	q, args := buildInsertSQL(spec, recs)
	res, err := w.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnDDLType(t string) string {
	switch t {
	case sink.ColBigint:
		return "INTEGER"
	case sink.ColDouble:
		return "REAL"
	case sink.ColBoolean:
		return "INTEGER"
	default:
		// text, timestamp, date
		return "TEXT"
	}
}

func buildCreateTableSQL(spec sink.TableSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("sqlite: table name is empty")
	}
	if len(spec.Columns) == 0 {
		return "", fmt.Errorf("sqlite: table %s has no columns", spec.Name)
	}

	var parts []string
	for _, c := range spec.Columns {
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), columnDDLType(c.Type))
		if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if spec.PrimaryKey != "" {
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", sqlIdent(spec.PrimaryKey)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(spec.Name), strings.Join(parts, ",\n  ")), nil
}

func buildInsertSQL(spec sink.TableSpec, recs []flatten.FlatRecord) (string, []any) {
	prefix := "INSERT INTO "
	if spec.PrimaryKey != "" {
		prefix = "INSERT OR IGNORE INTO "
	}

	colList := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		colList = append(colList, sqlIdent(c.Name))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(spec.Columns)), ",") + ")"

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(sqlIdent(spec.Name))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(recs)*len(spec.Columns))
	for i, rec := range recs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, sink.RowValues(spec, rec)...)
	}
	return b.String(), args
}
