// Package config carries the tunable parameters shared by discovery and
// flattening. The core packages consume a Core value as a plain parameter;
// only the cmd/ programs ever read flags or files to populate one.
package config

import "fmt"

// Core bundles the tunables for one discovery or flattening run.
type Core struct {
	// Separator joins path segments into flat keys. Callers must ensure
	// their field names never contain it; the joined form is otherwise not
	// reversible.
	Separator string `json:"separator"`

	// MaxDepth bounds recursion. Anything nested deeper is carried as one
	// opaque serialized leaf rather than recursed into.
	MaxDepth int `json:"max_depth"`

	// PreserveLists controls array flattening: true emits an array as one
	// opaque value at its path, false expands elements with index segments.
	PreserveLists bool `json:"preserve_lists"`

	// ConfidenceThreshold marks discovered fields below it low-confidence.
	// Fields are flagged, never dropped.
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	// SampleSize bounds how many records one discovery pass analyzes.
	SampleSize int `json:"sample_size"`
}

// Default returns the stock configuration.
func Default() Core {
	return Core{
		Separator:           "_",
		MaxDepth:            5,
		PreserveLists:       true,
		ConfidenceThreshold: 0.8,
		SampleSize:          1000,
	}
}

// Error reports an invalid constructor parameter. Validation fails fast at
// construction time so per-record calls never have to re-check.
type Error struct {
	Param  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Param, e.Reason)
}

// Validate checks the invariants every core component relies on.
func (c Core) Validate() error {
	if c.Separator == "" {
		return &Error{Param: "separator", Reason: "must not be empty"}
	}
	if c.MaxDepth <= 0 {
		return &Error{Param: "max_depth", Reason: fmt.Sprintf("must be positive, got %d", c.MaxDepth)}
	}
	if c.SampleSize <= 0 {
		return &Error{Param: "sample_size", Reason: fmt.Sprintf("must be positive, got %d", c.SampleSize)}
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return &Error{Param: "confidence_threshold", Reason: fmt.Sprintf("must be in [0,1], got %g", c.ConfidenceThreshold)}
	}
	return nil
}
