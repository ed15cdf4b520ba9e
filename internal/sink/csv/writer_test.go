package csv

import (
	"bytes"
	"context"
	"testing"

	"wmsprobe/internal/flatten"
	"wmsprobe/internal/sink"
)

func testSpec() sink.TableSpec {
	return sink.TableSpec{
		Name: "orders",
		Columns: []sink.ColumnSpec{
			{Name: "order_id", Type: sink.ColText, SourceKey: "order_id"},
			{Name: "qty", Type: sink.ColBigint, SourceKey: "qty"},
			{Name: "paid", Type: sink.ColBoolean, SourceKey: "paid"},
		},
	}
}

func TestWriter_HeaderAndRows(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.EnsureTable(context.Background(), testSpec()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	n, err := w.WriteRows(context.Background(), testSpec(), []flatten.FlatRecord{
		{"order_id": "A-1", "qty": int64(3), "paid": true},
		{"order_id": "A-2"},
	})
	if err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if n != 2 {
		t.Fatalf("wrote %d rows, want 2", n)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := "order_id,qty,paid\nA-1,3,true\nA-2,,\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}

func TestWriter_Misuse(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)

	if _, err := w.WriteRows(context.Background(), testSpec(), nil); err == nil {
		t.Fatalf("expected error writing before header")
	}
	if err := w.EnsureTable(context.Background(), testSpec()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if err := w.EnsureTable(context.Background(), testSpec()); err == nil {
		t.Fatalf("expected error on second header")
	}
}
