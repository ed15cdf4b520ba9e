// Package discover implements statistical schema discovery over nested
// warehouse records.
//
// The discover package is responsible for:
//   - Walking a bounded sample of records and accumulating per-field stats
//   - Resolving those stats into a confidence-scored entity schema
//   - Inferring primary and replication key candidates
//
// Design constraints:
//   - The accumulator is owned by exactly one discovery invocation. It is
//     never shared across concurrent calls, so no locking happens here.
//   - Merge is pure counter/histogram addition: commutative and associative,
//     so sharded fan-out/fan-in produces the same result as a sequential run.
//   - Discovery is best-effort and total: no per-record failure mode.
package discover

import (
	"fmt"
	"sort"

	"wmsprobe/internal/config"
	"wmsprobe/internal/record"
)

// distinctCapPerField bounds the per-field distinct-value sample used for
// uniqueness estimation. Once the cap is hit the backing set is dropped to
// release memory; the field is then treated as high-cardinality.
const distinctCapPerField = 10000

// fieldStats is the per-path aggregate built during one discovery pass.
// Instances are transient: the schema builder consumes them and they are
// discarded with the accumulator.
type fieldStats struct {
	path record.Path

	// order is the first-encountered index, used for deterministic
	// tie-breaks. Within one record, object keys are visited in sorted
	// order so the index does not depend on map iteration.
	order int

	total int
	nulls int
	hist  map[record.Kind]int

	// formats counts layout-family matches among string samples.
	formats map[record.Format]int

	// distinct is a bounded sample of scalar values for uniqueness
	// estimation; nil once capped.
	distinct map[string]struct{}
	capped   bool
}

// Accumulator aggregates field statistics across a bounded record sample.
//
// Ownership contract: one discovery invocation owns one Accumulator. Passing
// it between goroutines is fine (sharded discovery does exactly that), but
// concurrent mutation is not.
type Accumulator struct {
	cfg       config.Core
	records   int
	nextOrder int
	fields    map[string]*fieldStats
}

// NewAccumulator validates cfg and returns an empty accumulator. Invalid
// parameters fail here, never at per-record call time.
func NewAccumulator(cfg config.Core) (*Accumulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Accumulator{
		cfg:    cfg,
		fields: make(map[string]*fieldStats),
	}, nil
}

// Records reports how many records have been analyzed so far.
func (a *Accumulator) Records() int { return a.records }

// Saturated reports whether the configured sample size has been reached.
func (a *Accumulator) Saturated() bool { return a.records >= a.cfg.SampleSize }

// Analyze walks one record depth-first and folds its leaves into the
// accumulated statistics. It reports false once the sample is saturated, in
// which case the record was not analyzed; callers simply stop feeding.
func (a *Accumulator) Analyze(rec map[string]any) bool {
	if a.Saturated() {
		return false
	}
	a.records++
	a.walkObject(nil, rec, 0)
	return true
}

func (a *Accumulator) walkObject(path record.Path, obj map[string]any, depth int) {
	// Sorted key order keeps first-encountered indexes deterministic.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a.walk(path.Child(k), obj[k], depth+1)
	}
}

func (a *Accumulator) walk(path record.Path, v any, depth int) {
	switch record.Classify(v) {
	case record.KindObject:
		// Depth guard: a container at the limit becomes one opaque
		// leaf. This also defends against malformed or excessively
		// deep input.
		if depth >= a.cfg.MaxDepth {
			a.observeOpaque(path)
			return
		}
		obj := v.(map[string]any)
		if len(obj) == 0 {
			a.observe(path, v)
			return
		}
		a.walkObject(path, obj, depth)

	case record.KindArray:
		if depth >= a.cfg.MaxDepth {
			a.observeOpaque(path)
			return
		}
		elems := asSlice(v)
		if len(elems) == 0 {
			a.observe(path, v)
			return
		}
		// One shared marker segment for all elements: arrays are
		// repeating groups, index counts carry no meaning.
		child := path.Child(record.ArrayMarker)
		for _, el := range elems {
			a.walk(child, el, depth+1)
		}

	default:
		a.observe(path, v)
	}
}

// observe folds one leaf value into the stats for its path.
func (a *Accumulator) observe(path record.Path, v any) {
	st := a.stats(path)
	st.total++

	k := record.Classify(v)
	st.hist[k]++
	if k == record.KindNull {
		st.nulls++
		return
	}

	if k == record.KindString {
		st.formats[record.DetectFormat(v.(string))]++
	}

	switch k {
	case record.KindBool, record.KindInt, record.KindFloat, record.KindString:
		a.addDistinct(st, stringifyScalar(v))
	}
}

// observeOpaque records a depth-truncated remainder as a string leaf. The
// remainder is never inspected, so it contributes neither format hints nor
// uniqueness evidence.
func (a *Accumulator) observeOpaque(path record.Path) {
	st := a.stats(path)
	st.total++
	st.hist[record.KindString]++
}

func (a *Accumulator) stats(path record.Path) *fieldStats {
	key := path.Canonical()
	st, ok := a.fields[key]
	if !ok {
		st = &fieldStats{
			path:     path,
			order:    a.nextOrder,
			hist:     make(map[record.Kind]int),
			formats:  make(map[record.Format]int),
			distinct: make(map[string]struct{}),
		}
		a.nextOrder++
		a.fields[key] = st
	}
	return st
}

func (a *Accumulator) addDistinct(st *fieldStats, s string) {
	if st.capped || s == "" {
		return
	}
	st.distinct[s] = struct{}{}
	if len(st.distinct) >= distinctCapPerField {
		st.capped = true
		st.distinct = nil
	}
}

// Merge folds other into a. Both accumulators must share a configuration;
// the merge itself is commutative and associative (counter and histogram
// sums, bounded set union, min of order indexes), so shard merge order never
// changes the result.
func (a *Accumulator) Merge(other *Accumulator) error {
	if a.cfg != other.cfg {
		return fmt.Errorf("discover: merge across differing configurations")
	}
	a.records += other.records

	for key, os := range other.fields {
		st, ok := a.fields[key]
		if !ok {
			st = &fieldStats{
				path:     os.path,
				order:    os.order,
				hist:     make(map[record.Kind]int),
				formats:  make(map[record.Format]int),
				distinct: make(map[string]struct{}),
			}
			a.fields[key] = st
		}
		if os.order < st.order {
			st.order = os.order
		}
		st.total += os.total
		st.nulls += os.nulls
		for k, n := range os.hist {
			st.hist[k] += n
		}
		for f, n := range os.formats {
			st.formats[f] += n
		}
		if os.capped {
			st.capped = true
			st.distinct = nil
		}
		if !st.capped {
			for v := range os.distinct {
				a.addDistinct(st, v)
			}
		}
	}
	if a.nextOrder < other.nextOrder {
		a.nextOrder = other.nextOrder
	}
	return nil
}

func asSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// stringifyScalar converts a scalar to the canonical string used for
// distinct-value sampling. The exact form only has to be stable, not pretty.
func stringifyScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
