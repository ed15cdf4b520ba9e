// Package flatten converts between nested warehouse records and flat,
// single-level records.
//
// The package is responsible for:
//   - Flattening one nested record into path-keyed scalars
//   - Rebuilding a nested record from a flat one (deflattening)
//   - Best-effort type coercion against a discovered schema
//
// Design constraints:
//   - Both directions are pure functions of their inputs and configuration;
//     no suspension points, no shared state.
//   - Flattening past the depth limit never drops data: the remainder is
//     emitted as one opaque serialized leaf.
//   - Deflatten(Flatten(R, cfg), cfg) == R for any R within the depth limit
//     whose field names avoid the separator.
package flatten

import (
	"encoding/json"
	"fmt"
	"strconv"

	"wmsprobe/internal/config"
	"wmsprobe/internal/record"
)

// FlatRecord is a single-level mapping from canonical path string to a
// scalar, a preserved array, or an opaque serialized remainder.
type FlatRecord map[string]any

// InputShapeError reports a value that could not be carried through the
// opaque-serialization path (non-finite floats, non-JSON-compatible types).
// It is a defensive guard: well-shaped input never triggers it.
type InputShapeError struct {
	Path string
	Err  error
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("flatten: input shape at %q: %v", e.Path, e.Err)
}

func (e *InputShapeError) Unwrap() error { return e.Err }

// Flatten converts one nested record into a flat record.
//
// Object members join their key onto the parent path with cfg.Separator.
// Array handling follows cfg.PreserveLists: when true the array is emitted
// untouched as one value at its path; when false each element extends the
// path with its index segment. Once recursion depth reaches cfg.MaxDepth,
// whatever remains is serialized to a single JSON-string leaf. That
// truncation is documented, lossy by design, and never an error.
func Flatten(rec map[string]any, cfg config.Core) (FlatRecord, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := make(FlatRecord, len(rec))
	if err := flattenObject("", rec, 0, cfg, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenObject(prefix string, obj map[string]any, depth int, cfg config.Core, out FlatRecord) error {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + cfg.Separator + k
		}
		if err := flattenValue(key, v, depth+1, cfg, out); err != nil {
			return err
		}
	}
	return nil
}

func flattenValue(key string, v any, depth int, cfg config.Core, out FlatRecord) error {
	switch record.Classify(v) {
	case record.KindObject:
		if depth >= cfg.MaxDepth {
			return emitOpaque(key, v, out)
		}
		obj := v.(map[string]any)
		if len(obj) == 0 {
			// Empty containers stay as-is so the round trip is exact.
			out[key] = v
			return nil
		}
		return flattenObject(key, obj, depth, cfg, out)

	case record.KindArray:
		if cfg.PreserveLists {
			// Opaque by policy: the array value passes through whole.
			out[key] = v
			return nil
		}
		if depth >= cfg.MaxDepth {
			return emitOpaque(key, v, out)
		}
		elems := asSlice(v)
		if len(elems) == 0 {
			out[key] = v
			return nil
		}
		for i, el := range elems {
			idxKey := key + cfg.Separator + strconv.Itoa(i)
			if err := flattenValue(idxKey, el, depth+1, cfg, out); err != nil {
				return err
			}
		}
		return nil

	default:
		out[key] = v
		return nil
	}
}

// emitOpaque serializes a depth-truncated remainder into one string leaf.
func emitOpaque(key string, v any, out FlatRecord) error {
	b, err := json.Marshal(v)
	if err != nil {
		return &InputShapeError{Path: key, Err: err}
	}
	out[key] = string(b)
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
