package flatten

import (
	"reflect"
	"testing"

	"wmsprobe/internal/config"
)

func testConfig() config.Core {
	return config.Default()
}

//
// Flatten
//

// TestFlatten_IndexExpansion verifies index-segment expansion of repeating
// groups when list preservation is off.
func TestFlatten_IndexExpansion(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PreserveLists = false

	rec := map[string]any{
		"order_id": "123",
		"lines": []any{
			map[string]any{"sku": "A", "qty": 2},
			map[string]any{"sku": "B", "qty": 1},
		},
	}
	got, err := Flatten(rec, cfg)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}

	want := FlatRecord{
		"order_id":    "123",
		"lines_0_sku": "A",
		"lines_0_qty": 2,
		"lines_1_sku": "B",
		"lines_1_qty": 1,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flatten = %v, want %v", got, want)
	}
}

// TestFlatten_PreserveLists verifies arrays pass through whole, untouched,
// when list preservation is on.
func TestFlatten_PreserveLists(t *testing.T) {
	t.Parallel()

	cfg := testConfig() // preserve_lists defaults true

	lines := []any{
		map[string]any{"sku": "A", "qty": 2},
		map[string]any{"sku": "B", "qty": 1},
	}
	got, err := Flatten(map[string]any{"order_id": "123", "lines": lines}, cfg)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}

	want := FlatRecord{"order_id": "123", "lines": lines}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flatten = %v, want %v", got, want)
	}
}

// TestFlatten_DepthTruncation verifies the remainder past max_depth is
// serialized into exactly one opaque leaf; truncation never drops data and
// never errors.
func TestFlatten_DepthTruncation(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxDepth = 2

	got, err := Flatten(map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": map[string]any{"d": 1},
			},
		},
	}, cfg)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("flat record = %v, want single truncated leaf", got)
	}
	opaque, ok := got["a_b"].(string)
	if !ok {
		t.Fatalf("truncated leaf = %T, want serialized string", got["a_b"])
	}
	if opaque != `{"c":{"d":1}}` {
		t.Fatalf("opaque remainder = %q", opaque)
	}
}

// TestFlatten_LeafCount verifies the no-data-loss property: within the depth
// limit, the flat key count equals the primitive leaf count of the input.
func TestFlatten_LeafCount(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PreserveLists = false

	rec := map[string]any{
		"id":     7,
		"vendor": map[string]any{"name": "acme", "rating": 4.5},
		"tags":   []any{"fast", "bulk"},
		"lines": []any{
			map[string]any{"sku": "A", "qty": 2},
		},
	}
	const primitiveLeaves = 7

	got, err := Flatten(rec, cfg)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(got) != primitiveLeaves {
		t.Fatalf("flat keys = %d, want %d: %v", len(got), primitiveLeaves, got)
	}
}

// TestFlatten_EmptyContainers verifies empty objects and arrays survive as
// leaves so the round trip stays exact.
func TestFlatten_EmptyContainers(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PreserveLists = false

	got, err := Flatten(map[string]any{
		"meta":  map[string]any{},
		"notes": []any{},
	}, cfg)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("flat record = %v, want both empty containers kept", got)
	}
}

// TestFlatten_InvalidConfig verifies configuration problems fail fast.
func TestFlatten_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Separator = ""
	if _, err := Flatten(map[string]any{"a": 1}, cfg); err == nil {
		t.Fatalf("Flatten accepted empty separator")
	}
}

// TestFlatten_CustomSeparator verifies the separator is honored end to end.
func TestFlatten_CustomSeparator(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Separator = "."

	got, err := Flatten(map[string]any{"a": map[string]any{"b": 1}}, cfg)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if _, ok := got["a.b"]; !ok {
		t.Fatalf("flat record = %v, want key a.b", got)
	}
}
