// Package rowhash computes deterministic SHA-256 fingerprints over selected
// record fields.
//
// A fingerprint gives fact rows a stable, always-non-null dedupe key when no
// natural primary key was inferred, avoiding UNIQUE/ON CONFLICT behavior
// issues with nullable natural-key columns (Postgres treats NULLs as
// distinct for UNIQUE constraints).
package rowhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wmsprobe/internal/flatten"
)

// Hasher describes how the canonical form of a record is built.
//
// Canonicalization rules:
//   - Fields are concatenated in the given order using Separator.
//   - Missing or nil values are encoded as a single NUL byte (0x00) so
//     missing differs from empty-string.
//   - Common types are converted without fmt.Sprint for speed.
//   - time.Time values are encoded as RFC3339Nano in UTC.
type Hasher struct {
	// Fields is the ordered list of input fields used to compute the hash.
	Fields []string

	// IncludeFieldNames includes "field=value" in the canonical form.
	// This reduces accidental collisions when many fields are missing/empty.
	IncludeFieldNames bool

	// Separator used between field components in the canonical string.
	// If empty, defaults to ASCII Unit Separator (0x1f).
	Separator string

	// TrimSpace trims leading/trailing whitespace of string values before
	// hashing.
	TrimSpace bool
}

// Sum returns the lowercase hex fingerprint (length 64) of rec.
func (h Hasher) Sum(rec map[string]any) string {
	sep := h.Separator
	if sep == "" {
		sep = "\x1f"
	}

	var b strings.Builder
	b.Grow(len(h.Fields) * 20)

	for i, f := range h.Fields {
		if i > 0 {
			b.WriteString(sep)
		}
		if h.IncludeFieldNames {
			b.WriteString(f)
			b.WriteByte('=')
		}

		v, ok := rec[f]
		if !ok || v == nil {
			b.WriteByte('\x00')
			continue
		}
		appendCanonicalValue(&b, v, h.TrimSpace)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Apply writes the fingerprint of each record into target, in-place.
// Records that already carry target are left unchanged unless overwrite is
// set.
func (h Hasher) Apply(recs []flatten.FlatRecord, target string, overwrite bool) {
	if target == "" || len(h.Fields) == 0 {
		return
	}
	for _, r := range recs {
		if r == nil {
			continue
		}
		if !overwrite {
			if _, exists := r[target]; exists {
				continue
			}
		}
		r[target] = h.Sum(r)
	}
}

// appendCanonicalValue appends a stable, canonical representation of v.
// It avoids fmt.Sprint for common types to reduce allocations.
func appendCanonicalValue(b *strings.Builder, v any, trimSpace bool) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')

	case string:
		if trimSpace {
			t = strings.TrimSpace(t)
		}
		b.WriteString(t)

	case []byte:
		s := string(t)
		if trimSpace {
			s = strings.TrimSpace(s)
		}
		b.WriteString(s)

	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}

	case json.Number:
		b.WriteString(t.String())

	case int:
		b.WriteString(strconv.Itoa(t))
	case int32:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))

	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))

	case float32:
		b.WriteString(strconv.FormatFloat(float64(t), 'g', -1, 32))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))

	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		b.WriteString(tt.Format(time.RFC3339Nano))

	default:
		b.WriteString(fmt.Sprint(t))
	}
}
