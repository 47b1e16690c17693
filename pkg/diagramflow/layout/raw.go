package layout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// getStr returns the first non-empty string (or number rendered as a
// string) under any of keys.
func getStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

// getNum coerces a JSON value to float64. Numeric strings are accepted.
func getNum(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func getMap(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if mm, ok := m[k].(map[string]any); ok {
			return mm
		}
	}
	return nil
}

func getList(m map[string]any, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if l, ok := m[k].([]any); ok {
			return l, true
		}
	}
	return nil, false
}

// getStrList accepts either a JSON array of strings or a comma separated string.
func getStrList(m map[string]any, keys ...string) []string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s := strings.TrimSpace(fmt.Sprint(item)); s != "" && item != nil {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			var out []string
			for _, part := range strings.Split(v, ",") {
				if s := strings.TrimSpace(part); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// uniqueID returns id, or id with a numeric suffix if it is already taken,
// and records the result in seen.
func uniqueID(id string, seen map[string]bool) string {
	out := id
	for n := 2; seen[out]; n++ {
		out = fmt.Sprintf("%s-%d", id, n)
	}
	seen[out] = true
	return out
}
