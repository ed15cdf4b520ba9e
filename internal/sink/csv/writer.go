// Package csv writes flattened records to a CSV file, one column per
// schema field. Useful for eyeballing a probe run without standing up a
// database.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"wmsprobe/internal/flatten"
	"wmsprobe/internal/sink"
)

// Writer streams rows into an encoding/csv writer. The header row is written
// by EnsureTable so output mirrors the SQL backends' table-then-rows flow.
type Writer struct {
	w       *csv.Writer
	closer  io.Closer
	started bool
}

func init() {
	sink.Register("csv", func(ctx context.Context, cfg sink.Config) (sink.Writer, error) {
		f, err := os.Create(cfg.DSN)
		if err != nil {
			return nil, err
		}
		w := NewWriter(f)
		w.closer = f
		return w, nil
	})
}

// NewWriter wraps an io.Writer. The caller owns closing the underlying
// writer unless the sink registry created it from a file path.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: csv.NewWriter(w)}
}

func (w *Writer) Close() error {
	w.w.Flush()
	err := w.w.Error()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// EnsureTable writes the header row. Calling it twice is an error: a CSV
// file has exactly one header.
func (w *Writer) EnsureTable(_ context.Context, spec sink.TableSpec) error {
	if w.started {
		return fmt.Errorf("csv: header already written")
	}
	w.started = true
	return w.w.Write(sink.ColumnNames(spec))
}

// WriteRows appends one CSV row per record. Missing values render as empty
// cells.
func (w *Writer) WriteRows(_ context.Context, spec sink.TableSpec, recs []flatten.FlatRecord) (int64, error) {
	if !w.started {
		return 0, fmt.Errorf("csv: EnsureTable must run before WriteRows")
	}

	var n int64
	row := make([]string, len(spec.Columns))
	for _, rec := range recs {
		for i, v := range sink.RowValues(spec, rec) {
			row[i] = formatCell(v)
		}
		if err := w.w.Write(row); err != nil {
			return n, err
		}
		n++
	}
	w.w.Flush()
	return n, w.w.Error()
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
