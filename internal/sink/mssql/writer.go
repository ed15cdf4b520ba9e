// Package mssql persists flattened records into Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"wmsprobe/internal/flatten"
	"wmsprobe/internal/sink"
)

type writer struct {
	db *sql.DB
}

func init() {
	sink.Register("mssql", New)
}

// New connects to SQL Server using cfg.DSN and validates connectivity.
func New(ctx context.Context, cfg sink.Config) (sink.Writer, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for bursty sample loads.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &writer{db: db}, nil
}

func (w *writer) Close() error { return w.db.Close() }

// EnsureTable creates the destination table if it does not already exist.
// SQL Server has no CREATE TABLE IF NOT EXISTS, so the DDL is guarded with
// an OBJECT_ID check.
func (w *writer) EnsureTable(ctx context.Context, spec sink.TableSpec) error {
	ddl, err := buildCreateTableSQL(spec)
	if err != nil {
		return err
	}
	if _, err := w.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", spec.Name, err)
	}
	return nil
}

// WriteRows performs a multi-row insert using @pN named parameters.
//
// SQL Server caps a statement at 2100 parameters, so large samples are
// written in chunks.
func (w *writer) WriteRows(ctx context.Context, spec sink.TableSpec, recs []flatten.FlatRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	chunk := maxParams / len(spec.Columns)
	if chunk < 1 {
		chunk = 1
	}

	var total int64
	for start := 0; start < len(recs); start += chunk {
		end := start + chunk
		if end > len(recs) {
			end = len(recs)
		}

		q, args := buildInsertSQL(spec, recs[start:end])
		res, err := w.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

const maxParams = 2000

func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

func columnDDLType(t string) string {
	switch t {
	case sink.ColBigint:
		return "BIGINT"
	case sink.ColDouble:
		return "FLOAT"
	case sink.ColBoolean:
		return "BIT"
	case sink.ColTimestamp:
		return "DATETIMEOFFSET"
	case sink.ColDate:
		return "DATE"
	default:
		return "NVARCHAR(MAX)"
	}
}

func buildCreateTableSQL(spec sink.TableSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}
	if len(spec.Columns) == 0 {
		return "", fmt.Errorf("mssql: table %s has no columns", spec.Name)
	}

	var parts []string
	for _, c := range spec.Columns {
		col := fmt.Sprintf("%s %s", msIdent(c.Name), columnDDLType(c.Type))
		if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if spec.PrimaryKey != "" {
		// NVARCHAR(MAX) cannot back a unique index, so the constraint is only
		// declared for bounded column types.
		for _, c := range spec.Columns {
			if c.Name == spec.PrimaryKey && c.Type != sink.ColText {
				parts = append(parts, fmt.Sprintf("UNIQUE (%s)", msIdent(spec.PrimaryKey)))
				break
			}
		}
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (\n  %s\n);",
		spec.Name, msIdent(spec.Name), strings.Join(parts, ",\n  "),
	), nil
}

func buildInsertSQL(spec sink.TableSpec, recs []flatten.FlatRecord) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(msIdent(spec.Name))
	b.WriteString(" (")
	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c.Name))
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
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, sql.Named(fmt.Sprintf("p%d", p), v))
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}
