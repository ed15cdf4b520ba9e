package flatten

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"wmsprobe/internal/config"
	"wmsprobe/internal/record"
	"wmsprobe/internal/schema"
)

// CoercionError reports one leaf that could not be cast to its
// schema-declared type. Errors are collected, never raised: a bad field must
// not block the rest of the record.
type CoercionError struct {
	// Path is the canonical dotted path, with index segments mapped back
	// to the "[]" marker used by discovered schemas.
	Path string

	// Target is the schema type tag the value failed to reach.
	Target string

	// Value is the offending leaf, carried through unchanged.
	Value any
}

func (e CoercionError) Error() string {
	return fmt.Sprintf("coerce %q to %s: value %v", e.Path, e.Target, e.Value)
}

// Deflatten rebuilds a nested record from a flat one.
//
// Each flat key is split on cfg.Separator and walked to create nested
// containers. Segment interpretation is decided solely by cfg.PreserveLists:
// when false, numeric segments below the top level are array indices; when
// true, every segment is an object key. Nothing is ever inferred from the
// data itself, so the transform is deterministic. Arrays are sized to the
// maximum observed index plus one, with gaps filled by nil.
//
// When es is non-nil each leaf is coerced to its declared type; failures are
// reported in the returned diagnostics list and the original value is kept.
// Partial success is the normal outcome for dirty batches.
func Deflatten(flat FlatRecord, cfg config.Core, es *schema.Entity) (map[string]any, []CoercionError, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// Sorted key order keeps container creation deterministic.
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := make(map[string]any, len(flat))
	var diags []CoercionError

	for _, key := range keys {
		segs := strings.Split(key, cfg.Separator)
		val := flat[key]

		if es != nil {
			coerced, cerr := coerceLeaf(val, segs, cfg, es)
			if cerr != nil {
				diags = append(diags, *cerr)
			} else {
				val = coerced
			}
		}

		// The top segment is always an object key: records are mappings,
		// so a flat key never starts with an index.
		head := segs[0]
		if len(segs) == 1 {
			root[head] = val
			continue
		}
		root[head] = assign(root[head], segs[1:], val, !cfg.PreserveLists)
	}
	return root, diags, nil
}

// assign walks/creates containers along segs and sets val at the terminal
// segment, returning the possibly replaced node. A scalar in the way of a
// container is overwritten; with well-formed flattener output that never
// happens, and last-write-wins keeps the transform total.
func assign(node any, segs []string, val any, listIndexes bool) any {
	if len(segs) == 0 {
		return val
	}
	seg := segs[0]

	if idx, ok := parseIndex(seg); ok && listIndexes {
		arr, _ := node.([]any)
		for len(arr) <= idx {
			arr = append(arr, nil)
		}
		arr[idx] = assign(arr[idx], segs[1:], val, listIndexes)
		return arr
	}

	m, ok := node.(map[string]any)
	if !ok {
		m = make(map[string]any)
	}
	m[seg] = assign(m[seg], segs[1:], val, listIndexes)
	return m
}

func parseIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// coerceLeaf looks the leaf up in the schema and casts it to the declared
// type. It returns (coerced, nil) on success and (original, *CoercionError)
// on failure; leaves without a schema entry or with container/null targets
// pass through untouched.
func coerceLeaf(val any, segs []string, cfg config.Core, es *schema.Entity) (any, *CoercionError) {
	canonical := schemaPath(segs, cfg)
	f, ok := es.FieldByPath(canonical)
	if !ok || val == nil {
		return val, nil
	}

	switch f.Type {
	case schema.TypeInteger:
		if n, ok := toInt64(val); ok {
			return n, nil
		}
	case schema.TypeNumber:
		if n, ok := toFloat64(val); ok {
			return n, nil
		}
	case schema.TypeBoolean:
		if b, ok := toBool(val); ok {
			return b, nil
		}
	case schema.TypeString:
		if s, ok := toString(val); ok {
			return s, nil
		}
	default:
		// null / array / object targets: nothing to cast.
		return val, nil
	}
	return val, &CoercionError{Path: canonical, Target: f.Type, Value: val}
}

// schemaPath maps flat-key segments onto the canonical dotted form used by
// discovered schemas: index segments collapse to the shared array marker.
func schemaPath(segs []string, cfg config.Core) string {
	if cfg.PreserveLists {
		return strings.Join(segs, ".")
	}
	out := make([]string, len(segs))
	for i, s := range segs {
		// The top segment is an object key by definition.
		if i > 0 {
			if _, ok := parseIndex(s); ok {
				out[i] = record.ArrayMarker
				continue
			}
		}
		out[i] = s
	}
	return strings.Join(out, ".")
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		return 0, false
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
		return 0, false
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f, true
		}
		return 0, false
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toBool accepts the same loose truthy/falsy encodings the sinks accept.
func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "t", "true", "yes", "y":
			return true, true
		case "0", "f", "false", "no", "n":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int:
		return strconv.Itoa(t), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	default:
		return "", false
	}
}
