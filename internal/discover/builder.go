package discover

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"wmsprobe/internal/record"
	"wmsprobe/internal/schema"
)

// BuildSchema resolves the accumulated statistics into an entity schema.
//
// Resolution rules:
//   - Dominant type = histogram argmax over non-null tags. A field that was
//     only ever null resolves to the "null" tag with zero confidence.
//   - nullable = at least one null sample.
//   - confidence = (dominant/total) * (1 - nulls/total), clamped to [0,1].
//     Matching non-null samples can only raise it; nulls and type variance
//     can only lower it.
//   - Fields below the confidence threshold are kept and flagged
//     low_confidence. Discovery reports every observed path, always.
//   - Entity confidence is the mean of field confidences weighted by each
//     field's observed fraction of the sampled records, which discounts
//     rarely-present optional fields.
//
// The accumulator is considered consumed after this call.
func BuildSchema(entityName string, a *Accumulator) *schema.Entity {
	ordered := make([]*fieldStats, 0, len(a.fields))
	for _, st := range a.fields {
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].order != ordered[j].order {
			return ordered[i].order < ordered[j].order
		}
		return ordered[i].path.Canonical() < ordered[j].path.Canonical()
	})

	es := &schema.Entity{
		Name:         entityName,
		DiscoveryID:  uuid.NewString(),
		Fields:       make([]schema.Field, 0, len(ordered)),
		DiscoveredAt: time.Now().UTC(),
	}

	var confSum, weightSum float64
	for _, st := range ordered {
		f := resolveField(st, a.cfg.ConfidenceThreshold)
		es.Fields = append(es.Fields, f)

		// Presence weight: fraction of sampled records in which the
		// field was observed, clamped for repeating-group fields whose
		// sample count exceeds the record count.
		if a.records > 0 {
			w := float64(st.total) / float64(a.records)
			if w > 1 {
				w = 1
			}
			confSum += f.Confidence * w
			weightSum += w
		}
	}
	if weightSum > 0 {
		es.OverallConfidence = clamp01(confSum / weightSum)
	}

	es.PrimaryKey = inferPrimaryKey(ordered)
	es.ReplicationKey = inferReplicationKey(ordered)
	return es
}

func resolveField(st *fieldStats, threshold float64) schema.Field {
	domKind, domCount := dominantKind(st.hist)

	f := schema.Field{
		Path:     st.path.Canonical(),
		Nullable: st.nulls > 0,
	}
	if domCount == 0 {
		// Only nulls observed.
		f.Type = schema.TypeNull
	} else {
		f.Type = domKind.Tag()
	}

	if st.total > 0 {
		f.Confidence = clamp01(float64(domCount) / float64(st.total) * (1 - float64(st.nulls)/float64(st.total)))
	}
	f.LowConfidence = f.Confidence < threshold

	// Format hint only when every string sample agreed on one family.
	if domCount > 0 && domKind == record.KindString {
		f.Format = formatHint(st)
	}
	return f
}

// dominantKind returns the argmax over non-null histogram entries. Ties are
// broken by the lower Kind value so the result never depends on map order.
func dominantKind(hist map[record.Kind]int) (record.Kind, int) {
	best := record.KindNull
	bestN := 0
	for k := record.KindBool; k <= record.KindObject; k++ {
		if n := hist[k]; n > bestN {
			best, bestN = k, n
		}
	}
	return best, bestN
}

func formatHint(st *fieldStats) string {
	strs := st.hist[record.KindString]
	if strs == 0 {
		return ""
	}
	if st.formats[record.FormatDate] == strs {
		return record.FormatDate.Tag()
	}
	if st.formats[record.FormatDateTime] == strs {
		return record.FormatDateTime.Tag()
	}
	return ""
}

// inferPrimaryKey picks the identity field candidate: fully non-null, string
// or integer typed, identifier-style name, and distinct across the sample.
// The first-encountered candidate wins; the walk order makes that
// deterministic.
func inferPrimaryKey(ordered []*fieldStats) string {
	for _, st := range ordered {
		if st.total == 0 || st.nulls > 0 {
			continue
		}
		k, n := dominantKind(st.hist)
		if n != st.total || (k != record.KindString && k != record.KindInt) {
			continue
		}
		if !identifierName(lastSegment(st.path)) {
			continue
		}
		// Uniqueness check against the bounded distinct sample. A capped
		// field is high-cardinality and counts as unique.
		if !st.capped && len(st.distinct) != st.total {
			continue
		}
		return st.path.Canonical()
	}
	return ""
}

// inferReplicationKey picks the incremental-change field. String fields with
// timestamp-style names are preferred over integer counters; when nothing
// matches, the key is explicitly absent and callers must treat incremental
// extraction as unsupported.
func inferReplicationKey(ordered []*fieldStats) string {
	var counter string
	for _, st := range ordered {
		if st.total == 0 || st.nulls > 0 {
			continue
		}
		k, n := dominantKind(st.hist)
		if n != st.total {
			continue
		}
		name := lastSegment(st.path)
		switch {
		case k == record.KindString && timestampName(name):
			return st.path.Canonical()
		case k == record.KindInt && counterName(name) && counter == "":
			counter = st.path.Canonical()
		}
	}
	return counter
}

func lastSegment(p record.Path) string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// identifierName matches the fixed identifier naming convention. The list is
// deliberately closed; loosening it produces false-positive keys on fields
// like "valid" or "paid".
func identifierName(name string) bool {
	name = strings.ToLower(name)
	switch name {
	case "id", "uuid", "guid", "sku":
		return true
	}
	return strings.HasSuffix(name, "_id")
}

func timestampName(name string) bool {
	name = strings.ToLower(name)
	switch name {
	case "updated_at", "modified_at", "last_updated", "last_modified", "updated_on", "modified_on":
		return true
	}
	return strings.HasSuffix(name, "_updated_at") || strings.HasSuffix(name, "_modified_at")
}

func counterName(name string) bool {
	name = strings.ToLower(name)
	switch name {
	case "version", "revision", "sequence", "row_version", "change_seq":
		return true
	}
	return strings.HasSuffix(name, "_version") || strings.HasSuffix(name, "_seq")
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
