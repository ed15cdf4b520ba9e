// Package sink persists flattened records into tabular destinations.
//
// A sink backend registers itself under a kind ("sqlite", "postgres",
// "mssql", "csv") and implements Writer. Table layout is derived from a
// discovered entity schema, so a probe run can go straight from raw
// documents to queryable rows.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"wmsprobe/internal/config"
	"wmsprobe/internal/flatten"
	"wmsprobe/internal/identifier"
	"wmsprobe/internal/record"
	"wmsprobe/internal/schema"
)

// Generic column types. Each backend maps these onto its own dialect.
const (
	ColText      = "text"
	ColBigint    = "bigint"
	ColDouble    = "double"
	ColBoolean   = "boolean"
	ColTimestamp = "timestamp"
	ColDate      = "date"
)

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific (for "csv" it is a file path).
type Config struct {
	Kind string
	DSN  string
}

// ColumnSpec describes one destination column.
//
// SourceKey is the flattened-record key the column reads from; Name is the
// normalized identifier used in the destination.
type ColumnSpec struct {
	Name      string
	Type      string
	SourceKey string
	Nullable  bool
}

// TableSpec describes one destination table.
type TableSpec struct {
	Name       string
	Columns    []ColumnSpec
	PrimaryKey string
}

// Writer is a backend-agnostic destination for flattened records.
//
// IMPORTANT: This interface is intentionally minimal. Each backend implements
// these semantics in its own idiomatic way (Postgres ON CONFLICT, SQLite
// OR IGNORE, CSV append).
type Writer interface {
	// EnsureTable creates the destination table if it does not exist.
	// Safe to call on every run.
	EnsureTable(ctx context.Context, spec TableSpec) error

	// WriteRows persists the given flattened records and reports how many
	// rows were written. Keys absent from a record become NULL.
	WriteRows(ctx context.Context, spec TableSpec, recs []flatten.FlatRecord) (int64, error)

	// Close releases backend resources. Treat as "call once".
	Close() error
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Writer, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. Registering the
// same kind more than once panics: fail fast instead of ambiguous backend
// selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("sink: Register called with empty kind")
	}
	if f == nil {
		panic("sink: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("sink: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Writer using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Writer, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("sink: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("sink: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds in unspecified order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

// SpecFromEntity derives a TableSpec from a discovered entity schema.
//
// Only scalar fields outside of arrays become columns; fields whose path
// crosses an array are carried by the flattened index keys, which are not
// stable columns, so they are skipped. Array- and object-typed fields are
// stored as JSON text.
//
// Column names are normalized and truncated to fit backend identifier
// limits. When two paths normalize to the same column name the later field
// (in schema order) is skipped.
func SpecFromEntity(tableName string, ent *schema.Entity, cfg config.Core) TableSpec {
	spec := TableSpec{
		Name: identifier.Truncate(identifier.Normalize(tableName)),
	}

	seen := map[string]bool{}
	for _, f := range ent.Fields {
		segs := strings.Split(f.Path, ".")
		if crossesArray(segs) {
			continue
		}

		name := identifier.Truncate(identifier.Normalize(f.Path))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		spec.Columns = append(spec.Columns, ColumnSpec{
			Name:      name,
			Type:      columnType(f),
			SourceKey: strings.Join(segs, cfg.Separator),
			Nullable:  f.Nullable,
		})
		if f.Path == ent.PrimaryKey {
			spec.PrimaryKey = name
		}
	}
	return spec
}

func crossesArray(segs []string) bool {
	for _, s := range segs {
		if s == record.ArrayMarker {
			return true
		}
	}
	return false
}

func columnType(f schema.Field) string {
	switch f.Type {
	case schema.TypeInteger:
		return ColBigint
	case schema.TypeNumber:
		return ColDouble
	case schema.TypeBoolean:
		return ColBoolean
	case schema.TypeString:
		switch f.Format {
		case "date-time":
			return ColTimestamp
		case "date":
			return ColDate
		}
		return ColText
	default:
		// null, array, object: store as text (arrays/objects arrive as JSON).
		return ColText
	}
}

// ColumnNames returns the destination column names in spec order.
func ColumnNames(spec TableSpec) []string {
	out := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		out = append(out, c.Name)
	}
	return out
}

// RowValues projects a flattened record onto the spec's columns.
// Missing keys yield nil.
//
// Values are normalized for database drivers: json.Number becomes int64 or
// float64 depending on the literal, and composite values (arrays kept intact
// by the flattener, nested objects) are serialized to JSON text.
func RowValues(spec TableSpec, rec flatten.FlatRecord) []any {
	out := make([]any, len(spec.Columns))
	for i, c := range spec.Columns {
		if v, ok := rec[c.SourceKey]; ok {
			out[i] = driverValue(v)
		}
	}
	return out
}

func driverValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := t.Int64(); err == nil {
				return n
			}
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return s
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return v
	}
}
