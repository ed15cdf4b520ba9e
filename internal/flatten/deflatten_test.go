package flatten

import (
	"reflect"
	"testing"

	"wmsprobe/internal/schema"
)

//
// Deflatten
//

// TestDeflatten_RoundTrip verifies Deflatten(Flatten(R, cfg), cfg) == R for
// records within the depth limit and free of separator-colliding names, for
// both list policies.
func TestDeflatten_RoundTrip(t *testing.T) {
	t.Parallel()

	records := []map[string]any{
		{
			"oid": "123",
			"lines": []any{
				map[string]any{"sku": "A", "qty": 2},
				map[string]any{"sku": "B", "qty": 1},
			},
		},
		{
			"id":     7,
			"vendor": map[string]any{"name": "acme", "address": map[string]any{"city": "Hamm"}},
			"open":   true,
			"ratio":  1.25,
			"note":   nil,
		},
		{
			"tags": []any{"fast", "bulk"},
		},
	}

	for _, preserve := range []bool{true, false} {
		for i, rec := range records {
			cfg := testConfig()
			cfg.PreserveLists = preserve

			flat, err := Flatten(rec, cfg)
			if err != nil {
				t.Fatalf("Flatten(#%d, preserve=%v): %v", i, preserve, err)
			}
			back, diags, err := Deflatten(flat, cfg, nil)
			if err != nil {
				t.Fatalf("Deflatten(#%d, preserve=%v): %v", i, preserve, err)
			}
			if len(diags) != 0 {
				t.Fatalf("unexpected diagnostics without schema: %v", diags)
			}
			if !reflect.DeepEqual(back, rec) {
				t.Fatalf("round trip #%d (preserve=%v):\n got %v\nwant %v", i, preserve, back, rec)
			}
		}
	}
}

// TestDeflatten_SeparatorCollision pins down why the round-trip contract
// excludes field names containing the separator: "order_id" under "_" is
// indistinguishable from a nested order.id, and splitting wins.
func TestDeflatten_SeparatorCollision(t *testing.T) {
	t.Parallel()

	got, _, err := Deflatten(FlatRecord{"order_id": "123"}, testConfig(), nil)
	if err != nil {
		t.Fatalf("Deflatten: %v", err)
	}
	want := map[string]any{"order": map[string]any{"id": "123"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Deflatten = %v, want %v", got, want)
	}
}

// TestDeflatten_ArrayGapFill verifies arrays are sized to max index + 1 with
// nil gap fill.
func TestDeflatten_ArrayGapFill(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PreserveLists = false

	got, _, err := Deflatten(FlatRecord{"lines_0": "a", "lines_3": "d"}, cfg, nil)
	if err != nil {
		t.Fatalf("Deflatten: %v", err)
	}
	want := map[string]any{"lines": []any{"a", nil, nil, "d"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Deflatten = %v, want %v", got, want)
	}
}

// TestDeflatten_NoStructuralGuessing verifies numeric segments stay object
// keys when list preservation is on: interpretation follows configuration,
// never the data.
func TestDeflatten_NoStructuralGuessing(t *testing.T) {
	t.Parallel()

	cfg := testConfig() // preserve_lists true

	got, _, err := Deflatten(FlatRecord{"a_0": "x"}, cfg, nil)
	if err != nil {
		t.Fatalf("Deflatten: %v", err)
	}
	want := map[string]any{"a": map[string]any{"0": "x"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Deflatten = %v, want %v (numeric segment must stay an object key)", got, want)
	}
}

//
// schema coercion
//

func coercionSchema(fields ...schema.Field) *schema.Entity {
	return &schema.Entity{Name: "orders", Fields: fields}
}

// TestDeflatten_Coercion verifies schema-declared leaf types are applied:
// numeric-looking strings to integer, loose literals to boolean.
func TestDeflatten_Coercion(t *testing.T) {
	t.Parallel()

	es := coercionSchema(
		schema.Field{Path: "a.b", Type: schema.TypeInteger},
	)
	got, diags, err := Deflatten(FlatRecord{"a_b": "1"}, testConfig(), es)
	if err != nil {
		t.Fatalf("Deflatten: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("diagnostics = %v, want none", diags)
	}
	want := map[string]any{"a": map[string]any{"b": int64(1)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Deflatten = %v, want %v", got, want)
	}
}

// TestDeflatten_CoercionFailure verifies a failing leaf is recorded in the
// diagnostics list while the original value is kept; one bad field never
// aborts the record.
func TestDeflatten_CoercionFailure(t *testing.T) {
	t.Parallel()

	es := coercionSchema(
		schema.Field{Path: "a.b", Type: schema.TypeInteger},
	)
	got, diags, err := Deflatten(FlatRecord{"a_b": "not-a-number"}, testConfig(), es)
	if err != nil {
		t.Fatalf("Deflatten: %v", err)
	}
	want := map[string]any{"a": map[string]any{"b": "not-a-number"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Deflatten = %v, want original value kept", got)
	}
	if len(diags) != 1 || diags[0].Path != "a.b" || diags[0].Target != schema.TypeInteger {
		t.Fatalf("diagnostics = %v, want one entry for a.b", diags)
	}
}

// TestDeflatten_CoercionTable verifies the per-type casting rules.
func TestDeflatten_CoercionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		typ      string
		in       any
		want     any
		wantDiag bool
	}{
		{"string to integer", schema.TypeInteger, "42", int64(42), false},
		{"integral float to integer", schema.TypeInteger, float64(3), int64(3), false},
		{"fractional float to integer fails", schema.TypeInteger, 3.5, 3.5, true},
		{"string to number", schema.TypeNumber, "1.25", 1.25, false},
		{"integer to number", schema.TypeNumber, 2, 2.0, false},
		{"true literal to boolean", schema.TypeBoolean, "true", true, false},
		{"numeric literal to boolean", schema.TypeBoolean, "0", false, false},
		{"garbage to boolean fails", schema.TypeBoolean, "maybe", "maybe", true},
		{"number to string", schema.TypeString, int64(7), "7", false},
		{"bool to string", schema.TypeString, true, "true", false},
		{"null passes through", schema.TypeInteger, nil, nil, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			es := coercionSchema(schema.Field{Path: "v", Type: tt.typ})
			got, diags, err := Deflatten(FlatRecord{"v": tt.in}, testConfig(), es)
			if err != nil {
				t.Fatalf("Deflatten: %v", err)
			}
			if (len(diags) > 0) != tt.wantDiag {
				t.Fatalf("diagnostics = %v, wantDiag=%v", diags, tt.wantDiag)
			}
			if !reflect.DeepEqual(got["v"], tt.want) {
				t.Fatalf("value = %#v, want %#v", got["v"], tt.want)
			}
		})
	}
}

// TestDeflatten_IndexSegmentsMapToMarker verifies coercion lookups collapse
// index segments onto the "[]" marker used by discovered schema paths.
func TestDeflatten_IndexSegmentsMapToMarker(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PreserveLists = false

	es := coercionSchema(
		schema.Field{Path: "lines.[].qty", Type: schema.TypeInteger},
	)
	got, diags, err := Deflatten(FlatRecord{"lines_0_qty": "2", "lines_1_qty": "5"}, cfg, es)
	if err != nil {
		t.Fatalf("Deflatten: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("diagnostics = %v", diags)
	}
	want := map[string]any{"lines": []any{
		map[string]any{"qty": int64(2)},
		map[string]any{"qty": int64(5)},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Deflatten = %v, want %v", got, want)
	}
}

// TestDeflatten_InvalidConfig verifies fail-fast validation.
func TestDeflatten_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxDepth = 0
	if _, _, err := Deflatten(FlatRecord{"a": 1}, cfg, nil); err == nil {
		t.Fatalf("Deflatten accepted non-positive max_depth")
	}
}
