package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// eventTimeLayouts covers the timestamp shapes seen across sources: RFC 3339
// with or without fractions, and the space-separated form some stores emit.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseEventTime parses a heterogeneous timestamp value into a canonical UTC
// instant. Returns nil for anything it cannot parse.
func ParseEventTime(value interface{}) *time.Time {
	if value == nil {
		return nil
	}
	if t, ok := value.(time.Time); ok {
		u := t.UTC()
		return &u
	}
	raw := strings.TrimSpace(fmt.Sprint(value))
	if raw == "" {
		return nil
	}
	if strings.HasSuffix(raw, "Z") {
		raw = raw[:len(raw)-1] + "+00:00"
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// CoerceInt32 converts int-like values (including numeric strings) to *int32,
// returning nil for empty or non-numeric input.
func CoerceInt32(value interface{}) *int32 {
	switch v := value.(type) {
	case nil:
		return nil
	case int:
		n := int32(v)
		return &n
	case int32:
		return &v
	case int64:
		n := int32(v)
		return &n
	case float64:
		n := int32(v)
		return &n
	case float32:
		n := int32(v)
		return &n
	}
	s := strings.TrimSpace(fmt.Sprint(value))
	if s == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil
	}
	n := int32(parsed)
	return &n
}

// DocString returns the value under key rendered as a string, or "" when the
// key is absent or nil.
func DocString(doc map[string]interface{}, key string) string {
	v, ok := doc[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
