package collections

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate parses RFC 3339 timestamps, HTML datetime-local values and plain
// dates. Values without a zone are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// FormatDate renders t the way dates are stored in entities.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Coerce converts submitted values to the types of the schema and drops keys
// the collection does not define. Values that cannot be converted are kept
// as-is so Validate can report them.
func Coerce(c Collection, in map[string]any) Entity {
	out := make(Entity, len(c.Properties))
	for _, p := range c.Properties {
		v, ok := in[p.Key]
		if !ok {
			continue
		}
		out[p.Key] = coerceValue(p, v)
	}
	return out
}

func coerceValue(p Property, v any) any {
	if v == nil {
		return nil
	}
	switch p.DataType {
	case String, Reference:
		switch x := v.(type) {
		case string:
			if p.Multiline || p.RichText {
				return x
			}
			return strings.TrimSpace(x)
		case json.Number:
			return x.String()
		}
	case Number:
		switch x := v.(type) {
		case float64:
			return x
		case int:
			return float64(x)
		case int64:
			return float64(x)
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f
			}
		case string:
			s := strings.TrimSpace(x)
			if s == "" {
				return nil
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "on", "1", "yes":
				return true
			case "false", "off", "0", "no", "":
				return false
			}
		}
	case Date:
		switch x := v.(type) {
		case time.Time:
			return FormatDate(x)
		case string:
			if strings.TrimSpace(x) == "" {
				return nil
			}
			if t, err := ParseDate(x); err == nil {
				return FormatDate(t)
			}
		}
	case Array:
		items, ok := v.([]any)
		if !ok {
			if s, isStr := v.([]string); isStr {
				items = make([]any, len(s))
				for i := range s {
					items[i] = s[i]
				}
				ok = true
			}
		}
		if ok && p.Of != nil {
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = coerceValue(*p.Of, item)
			}
			return out
		}
	case Map:
		if m, ok := v.(map[string]any); ok {
			out := make(map[string]any, len(p.Properties))
			for _, sub := range p.Properties {
				if sv, ok := m[sub.Key]; ok {
					out[sub.Key] = coerceValue(sub, sv)
				}
			}
			return out
		}
	}
	return v
}

// ApplyDefaults fills missing top-level values with their defaults.
func ApplyDefaults(c Collection, e Entity, now time.Time) {
	for _, p := range c.Properties {
		if v, ok := e[p.Key]; ok && v != nil {
			continue
		}
		switch {
		case p.DefaultNow:
			e[p.Key] = FormatDate(now)
		case p.Default != nil:
			e[p.Key] = p.Default
		}
	}
}
