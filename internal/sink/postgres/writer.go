// Package postgres persists flattened records into Postgres via pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"wmsprobe/internal/flatten"
	"wmsprobe/internal/sink"
)

type writer struct {
	pool *pgxpool.Pool
}

func init() {
	sink.Register("postgres", New)
}

// New creates a pgx connection pool for cfg.DSN.
func New(ctx context.Context, cfg sink.Config) (sink.Writer, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &writer{pool: pool}, nil
}

func (w *writer) Close() error {
	w.pool.Close()
	return nil
}

// EnsureTable creates the destination table if it does not already exist.
func (w *writer) EnsureTable(ctx context.Context, spec sink.TableSpec) error {
	ddl, err := buildCreateTableSQL(spec)
	if err != nil {
		return err
	}
	if _, err := w.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create table %s: %w", spec.Name, err)
	}
	return nil
}

// WriteRows inserts the records in a single multi-row statement.
//
// When the spec carries a primary key the insert is made idempotent with
// ON CONFLICT (<pk>) DO NOTHING, so reprocessing the same sample does not
// fail on the unique constraint.
func (w *writer) WriteRows(ctx context.Context, spec sink.TableSpec, recs []flatten.FlatRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	q, args := buildInsertSQL(spec, recs)
	cmd, err := w.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnDDLType(t string) string {
	switch t {
	case sink.ColBigint:
		return "BIGINT"
	case sink.ColDouble:
		return "DOUBLE PRECISION"
	case sink.ColBoolean:
		return "BOOLEAN"
	case sink.ColTimestamp:
		return "TIMESTAMPTZ"
	case sink.ColDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// buildCreateTableSQL is pure and deterministic so DDL generation can be
// unit tested without a database.
func buildCreateTableSQL(spec sink.TableSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("postgres: table name is empty")
	}
	if len(spec.Columns) == 0 {
		return "", fmt.Errorf("postgres: table %s has no columns", spec.Name)
	}

	var parts []string
	for _, c := range spec.Columns {
		col := fmt.Sprintf("%s %s", pgIdent(c.Name), columnDDLType(c.Type))
		if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if spec.PrimaryKey != "" {
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", pgIdent(spec.PrimaryKey)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", pgIdent(spec.Name), strings.Join(parts, ",\n  ")), nil
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// Placeholder numbering is positional ($1..$n) across all rows, which is the
// part most worth unit testing.
func buildInsertSQL(spec sink.TableSpec, recs []flatten.FlatRecord) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(spec.Name))
	b.WriteString(" (")
	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c.Name))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(recs)*len(spec.Columns))
	p := 1
	for i, rec := range recs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, v := range sink.RowValues(spec, rec) {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, v)
			p++
		}
		b.WriteString(")")
	}

	if spec.PrimaryKey != "" {
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", pgIdent(spec.PrimaryKey))
	}
	return b.String(), args
}
