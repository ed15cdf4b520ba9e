// Package schema defines the discovered-schema types exchanged with
// schema-registry and table-definition collaborators. The types here are
// plain data: discovery produces them, sinks and the deflattener consume
// them, and persistence is entirely the caller's concern.
package schema

import "time"

// Type tags carried by discovered fields. The set is closed; see
// internal/record for the classifier that produces them.
const (
	TypeNull    = "null"
	TypeBoolean = "boolean"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeString  = "string"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Field is the resolved per-path schema detail.
type Field struct {
	// Path is the canonical dotted path of the field. Array elements use
	// the "[]" marker segment, e.g. "lines.[].sku".
	Path string `json:"path"`

	// Type is the dominant type tag observed across samples.
	Type string `json:"type"`

	// Nullable is set when at least one null was observed.
	Nullable bool `json:"nullable"`

	// Confidence in [0,1] reflects type and null consistency across the
	// sampled records.
	Confidence float64 `json:"confidence"`

	// LowConfidence marks fields below the configured threshold. Such
	// fields are kept: discovery always reports every observed path.
	LowConfidence bool `json:"low_confidence"`

	// Format is an optional hint ("date" or "date-time") for string fields.
	Format string `json:"format,omitempty"`
}

// Entity is one discovered entity schema.
type Entity struct {
	Name string `json:"entity_name"`

	// DiscoveryID identifies the discovery run that produced this schema.
	DiscoveryID string `json:"discovery_id"`

	// Fields lists every observed path in first-encountered order.
	Fields []Field `json:"fields"`

	// OverallConfidence is the mean of field confidences weighted by each
	// field's observed fraction of total records.
	OverallConfidence float64 `json:"overall_confidence"`

	// PrimaryKey is the canonical path of the inferred identity field, or
	// "" when no candidate qualified.
	PrimaryKey string `json:"primary_key,omitempty"`

	// ReplicationKey is the canonical path of the inferred incremental
	// change field. An empty value means incremental extraction is
	// unsupported for this entity; callers must not silently default it.
	ReplicationKey string `json:"replication_key,omitempty"`

	DiscoveredAt time.Time `json:"discovered_at"`
}

// FieldByPath returns the field with the given canonical path, if present.
func (e *Entity) FieldByPath(path string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Path == path {
			return f, true
		}
	}
	return Field{}, false
}
