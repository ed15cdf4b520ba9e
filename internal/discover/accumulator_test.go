package discover

import (
	"reflect"
	"testing"

	"wmsprobe/internal/config"
	"wmsprobe/internal/record"
)

func testConfig() config.Core {
	cfg := config.Default()
	cfg.SampleSize = 100
	return cfg
}

func mustAccumulator(t *testing.T, cfg config.Core) *Accumulator {
	t.Helper()
	acc, err := NewAccumulator(cfg)
	if err != nil {
		t.Fatalf("NewAccumulator: %v", err)
	}
	return acc
}

//
// NewAccumulator
//

// TestNewAccumulator_ConfigValidation verifies construction fails fast on
// invalid parameters, so per-record calls never re-validate.
func TestNewAccumulator_ConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Core)
	}{
		{"empty separator", func(c *config.Core) { c.Separator = "" }},
		{"zero max depth", func(c *config.Core) { c.MaxDepth = 0 }},
		{"negative max depth", func(c *config.Core) { c.MaxDepth = -1 }},
		{"zero sample size", func(c *config.Core) { c.SampleSize = 0 }},
		{"threshold above one", func(c *config.Core) { c.ConfidenceThreshold = 1.5 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(&cfg)
			if _, err := NewAccumulator(cfg); err == nil {
				t.Fatalf("NewAccumulator accepted invalid config %+v", cfg)
			}
		})
	}
}

//
// Analyze
//

// TestAnalyze_LeafStats verifies per-leaf counting: totals, nulls, and the
// type histogram.
func TestAnalyze_LeafStats(t *testing.T) {
	t.Parallel()

	acc := mustAccumulator(t, testConfig())
	acc.Analyze(map[string]any{"status": "active"})
	acc.Analyze(map[string]any{"status": "active"})
	acc.Analyze(map[string]any{"status": nil})

	st := acc.fields["status"]
	if st == nil {
		t.Fatalf("status field not tracked")
	}
	if st.total != 3 || st.nulls != 1 {
		t.Fatalf("total=%d nulls=%d, want 3/1", st.total, st.nulls)
	}
	if st.hist[record.KindString] != 2 || st.hist[record.KindNull] != 1 {
		t.Fatalf("hist = %v", st.hist)
	}
}

// TestAnalyze_ArrayMarker verifies array elements share one marker segment
// instead of per-index segments: repeating groups are one field.
func TestAnalyze_ArrayMarker(t *testing.T) {
	t.Parallel()

	acc := mustAccumulator(t, testConfig())
	acc.Analyze(map[string]any{
		"lines": []any{
			map[string]any{"sku": "A", "qty": 2},
			map[string]any{"sku": "B", "qty": 1},
		},
	})

	st := acc.fields["lines.[].sku"]
	if st == nil {
		t.Fatalf("lines.[].sku not tracked; fields=%v", fieldKeys(acc))
	}
	if st.total != 2 {
		t.Fatalf("lines.[].sku total=%d, want 2 (both elements fold into one field)", st.total)
	}
	if _, ok := acc.fields["lines.0.sku"]; ok {
		t.Fatalf("per-index segment tracked; arrays must use the shared marker")
	}
}

// TestAnalyze_DepthGuard verifies containers at the depth limit fold into a
// single opaque string leaf rather than recursing further.
func TestAnalyze_DepthGuard(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxDepth = 2
	acc := mustAccumulator(t, cfg)
	acc.Analyze(map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": map[string]any{"d": 1},
			},
		},
	})

	st := acc.fields["a.b"]
	if st == nil {
		t.Fatalf("truncated container not observed; fields=%v", fieldKeys(acc))
	}
	if st.hist[record.KindString] != 1 {
		t.Fatalf("truncated remainder hist = %v, want one string sample", st.hist)
	}
	if _, ok := acc.fields["a.b.c"]; ok {
		t.Fatalf("recursion continued past the depth limit")
	}
}

// TestAnalyze_SampleSaturation verifies ingestion stops at the configured
// sample size and reports saturation to the caller.
func TestAnalyze_SampleSaturation(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SampleSize = 2
	acc := mustAccumulator(t, cfg)

	if !acc.Analyze(map[string]any{"n": 1}) {
		t.Fatalf("first record rejected")
	}
	if !acc.Analyze(map[string]any{"n": 2}) {
		t.Fatalf("second record rejected")
	}
	if acc.Analyze(map[string]any{"n": 3}) {
		t.Fatalf("record accepted past sample_size")
	}
	if !acc.Saturated() {
		t.Fatalf("Saturated() = false after limit")
	}
	if acc.Records() != 2 {
		t.Fatalf("Records() = %d, want 2", acc.Records())
	}
}

//
// Merge
//

// statsSnapshot flattens an accumulator into a comparable form.
func statsSnapshot(a *Accumulator) map[string]fieldStats {
	out := make(map[string]fieldStats, len(a.fields))
	for k, st := range a.fields {
		cp := *st
		cp.hist = copyMap(st.hist)
		cp.formats = copyMap(st.formats)
		cp.distinct = copyMap(st.distinct)
		out[k] = cp
	}
	return out
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func fieldKeys(a *Accumulator) []string {
	out := make([]string, 0, len(a.fields))
	for k := range a.fields {
		out = append(out, k)
	}
	return out
}

// TestMerge_Commutative verifies merge(A,B) == merge(B,A) on the resulting
// statistics, which is what makes fan-out/fan-in discovery safe.
func TestMerge_Commutative(t *testing.T) {
	t.Parallel()

	build := func(recs ...map[string]any) *Accumulator {
		acc := mustAccumulator(t, testConfig())
		for _, r := range recs {
			acc.Analyze(r)
		}
		return acc
	}

	recsA := []map[string]any{
		{"id": 1, "status": "active"},
		{"id": 2, "status": nil},
	}
	recsB := []map[string]any{
		{"id": 3, "qty": 5},
	}

	ab := build(recsA...)
	if err := ab.Merge(build(recsB...)); err != nil {
		t.Fatalf("merge A<-B: %v", err)
	}
	ba := build(recsB...)
	if err := ba.Merge(build(recsA...)); err != nil {
		t.Fatalf("merge B<-A: %v", err)
	}

	if ab.records != ba.records {
		t.Fatalf("records differ: %d vs %d", ab.records, ba.records)
	}
	if !reflect.DeepEqual(statsSnapshot(ab), statsSnapshot(ba)) {
		t.Fatalf("merge is not commutative:\nA<-B: %+v\nB<-A: %+v", statsSnapshot(ab), statsSnapshot(ba))
	}
}

// TestMerge_Associative verifies merge(merge(A,B),C) == merge(A,merge(B,C)).
func TestMerge_Associative(t *testing.T) {
	t.Parallel()

	mk := func(recs ...map[string]any) *Accumulator {
		acc := mustAccumulator(t, testConfig())
		for _, r := range recs {
			acc.Analyze(r)
		}
		return acc
	}
	a := func() *Accumulator { return mk(map[string]any{"id": 1, "status": "a"}) }
	b := func() *Accumulator { return mk(map[string]any{"id": 2, "qty": 3.5}) }
	c := func() *Accumulator { return mk(map[string]any{"id": 3, "status": nil}) }

	left := a()
	if err := left.Merge(b()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := left.Merge(c()); err != nil {
		t.Fatalf("merge: %v", err)
	}

	bc := b()
	if err := bc.Merge(c()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	right := a()
	if err := right.Merge(bc); err != nil {
		t.Fatalf("merge: %v", err)
	}

	if !reflect.DeepEqual(statsSnapshot(left), statsSnapshot(right)) {
		t.Fatalf("merge is not associative")
	}
}

// TestMerge_ConfigMismatch verifies merging across configurations is refused.
func TestMerge_ConfigMismatch(t *testing.T) {
	t.Parallel()

	a := mustAccumulator(t, testConfig())
	other := testConfig()
	other.MaxDepth = 3
	b := mustAccumulator(t, other)

	if err := a.Merge(b); err == nil {
		t.Fatalf("merge across differing configs succeeded")
	}
}
