package record

import (
	"strings"
	"time"
)

// Format is an optional hint attached to string fields whose sampled values
// all parse under one family of layouts.
type Format int

const (
	FormatNone Format = iota
	FormatDate
	FormatDateTime
)

// Tag returns the wire name of the format hint, or "" for none.
func (f Format) Tag() string {
	switch f {
	case FormatDate:
		return "date"
	case FormatDateTime:
		return "date-time"
	default:
		return ""
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"02.01.2006 15:04:05",
}

// DetectFormat reports the format family a string value belongs to.
//
// Detection is layout-table driven and deliberately strict about family
// boundaries: a date-only string is never reported as date-time and vice
// versa. Values matching neither family return FormatNone.
func DetectFormat(s string) Format {
	s = strings.TrimSpace(s)
	if s == "" {
		return FormatNone
	}
	for _, lay := range dateLayouts {
		if _, err := time.Parse(lay, s); err == nil {
			return FormatDate
		}
	}
	for _, lay := range dateTimeLayouts {
		if _, err := time.Parse(lay, s); err == nil {
			return FormatDateTime
		}
	}
	return FormatNone
}
