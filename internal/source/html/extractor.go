// Package html extracts nested records from HTML warehouse reports.
//
// Many warehouse systems expose stock and order listings only as rendered
// HTML pages. This package turns such pages into the same record shape the
// JSON source produces, so discovery and flattening run unchanged on top.
package html

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Mapping represents one extraction rule.
type Mapping struct {
	Selector string `json:"selector"`        // evaluated relative to doc OR record (depending on mode)
	Extract  string `json:"extract"`         // "text" or "attr"
	Attr     string `json:"attr,omitempty"`  // used when Extract == "attr"
	Field    string `json:"field"`           // key name in the output record
	Match    string `json:"match,omitempty"` // optional regex filter (applies to extracted value)
	All      bool   `json:"all,omitempty"`   // optional: collect all matches into a list
}

// MappingFile describes the mappings configuration.
type MappingFile struct {
	RecordSelector string    `json:"record_selector,omitempty"` // if set => record mode
	Mappings       []Mapping `json:"mappings"`
}

// ExtractOne parses the given HTML and applies mappings relative to the
// document root, producing a single record.
//
// Missing selectors are not treated as errors; they simply produce no field.
func ExtractOne(html string, mappings []Mapping) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return parseSelection(doc.Selection, mappings)
}

// ExtractRecords parses the given HTML and extracts one record per container
// matched by recordSelector, preserving DOM order.
//
// Extraction is resilient by design: a record whose mappings fail (e.g. an
// invalid regex) is skipped so the rest of the page still yields records.
func ExtractRecords(html, recordSelector string, mappings []Mapping) ([]map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var records []map[string]any
	doc.Find(recordSelector).Each(func(_ int, rec *goquery.Selection) {
		obj, err := parseSelection(rec, mappings)
		if err != nil {
			return
		}
		if len(obj) > 0 {
			records = append(records, obj)
		}
	})
	return records, nil
}

// parseSelection applies all mappings relative to root and returns a record.
//
// Semantics:
//   - If Mapping.All is true, all selector matches are collected into []any.
//   - Otherwise, only the first match is extracted.
//   - If Mapping.Match is set, it is treated as a regular expression; with
//     capturing groups, group 1 is the output, otherwise the full match.
//     A non-matching regex omits the field.
func parseSelection(root *goquery.Selection, mappings []Mapping) (map[string]any, error) {
	output := make(map[string]any)

	for _, mapping := range mappings {
		re, err := compileOptionalRegex(mapping.Match, mapping.Field)
		if err != nil {
			return nil, err
		}

		extractOne := func(sel *goquery.Selection) string {
			switch mapping.Extract {
			case "text":
				return strings.TrimSpace(sel.Text())
			case "attr":
				if mapping.Attr == "" {
					return ""
				}
				if val, ok := sel.Attr(mapping.Attr); ok {
					return strings.TrimSpace(val)
				}
				return ""
			default:
				// Unknown extraction modes intentionally produce no value.
				return ""
			}
		}

		if mapping.All {
			var vals []any
			root.Find(mapping.Selector).Each(func(_ int, sel *goquery.Selection) {
				v := applyRegexFilter(extractOne(sel), re)
				if v == "" {
					return
				}
				vals = append(vals, v)
			})
			if len(vals) > 0 {
				output[mapping.Field] = vals
			}
			continue
		}

		sel := root.Find(mapping.Selector).First()
		if sel.Length() == 0 {
			continue
		}
		v := applyRegexFilter(extractOne(sel), re)
		if v == "" {
			continue
		}
		output[mapping.Field] = v
	}

	return output, nil
}

func compileOptionalRegex(pattern, field string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex for field %q: %w", field, err)
	}
	return re, nil
}

// applyRegexFilter applies an optional regex post-processing step to value.
// A nil regex passes the value through; a non-matching one returns "".
func applyRegexFilter(value string, re *regexp.Regexp) string {
	if value == "" || re == nil {
		return value
	}
	sm := re.FindStringSubmatch(value)
	if len(sm) == 0 {
		return ""
	}
	if len(sm) > 1 {
		return sm[1]
	}
	return sm[0]
}
