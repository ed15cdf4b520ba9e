// Package record defines the value model shared by discovery and flattening.
//
// The record package is responsible for:
//   - Classifying one JSON-compatible value into a closed type tag (Kind)
//   - Detecting date / date-time format hints on string values
//   - Building canonical field paths into nested records
//
// Design constraints:
//   - Classification is purely structural. String values are never parsed to
//     detect embedded numeric or boolean meaning, so identifier-like strings
//     (zero-padded SKUs, order codes) are never misclassified.
//   - Classify is total: any input maps to exactly one Kind, no error path.
//   - Values decoded with json.Decoder.UseNumber() are first-class citizens;
//     json.Number is split into integer vs number by token shape.
package record

import (
	"encoding/json"
	"strings"
)

// Kind is the closed set of type tags a value can classify into.
//
// The zero value is KindNull so that an unset tag behaves like "no value".
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// Tag returns the wire name of the kind, as it appears in discovered schemas.
func (k Kind) Tag() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "string"
	}
}

// Classify maps one JSON-compatible value to its Kind.
//
// Boolean is checked before the numeric kinds, so booleans are never reported
// as integers. Unknown Go types (which should not appear in JSON-decoded
// input) fall back to KindString; callers that need to reject them use the
// serialization path instead, where encoding errors surface naturally.
func Classify(v any) Kind {
	switch t := v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case json.Number:
		if numberIsIntegral(t) {
			return KindInt
		}
		return KindFloat
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt
	case float32:
		return KindFloat
	case float64:
		return KindFloat
	case string:
		return KindString
	case []any:
		return KindArray
	case []string:
		return KindArray
	case map[string]any:
		return KindObject
	default:
		return KindString
	}
}

// numberIsIntegral reports whether a json.Number token is an integer literal.
// A fraction or exponent marks it as a floating point literal, matching the
// JSON grammar rather than the numeric value (1.0 stays "number").
func numberIsIntegral(n json.Number) bool {
	s := n.String()
	return !strings.ContainsAny(s, ".eE")
}

// ArrayMarker is the shared path segment used by discovery for array
// elements. Arrays are modeled as "one field, repeating": indexes carry no
// semantic meaning for repeating groups such as order lines.
const ArrayMarker = "[]"

// Path is an ordered sequence of segments identifying a location in a record.
type Path []string

// Child returns a new path extended by one segment. The receiver is not
// mutated and the result does not alias its backing array.
func (p Path) Child(seg string) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, seg)
}

// Join renders the canonical string form using the given separator.
//
// The joined form is reversible only when field names never contain the
// separator; guaranteeing that is the caller's responsibility.
func (p Path) Join(sep string) string {
	return strings.Join(p, sep)
}

// Canonical is the dotted form used to key schema fields. Discovery output
// and coercion diagnostics both use this form regardless of the flattening
// separator in effect.
func (p Path) Canonical() string {
	return p.Join(".")
}
