package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Document is a decoded YAML or JSON config file. Lookups fall back to the
// given default when a key is absent or holds a value of another type.
type Document struct {
	values map[string]any
}

// NewDocument wraps m. A nil map is an empty document.
func NewDocument(m map[string]any) Document {
	if m == nil {
		m = map[string]any{}
	}
	return Document{values: m}
}

// ReadFile loads the document at path. The format follows the extension
// (.yaml, .yml or .json). $NAME and ${NAME} references are replaced with
// environment values before decoding.
func ReadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read config file: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Parse([]byte(os.ExpandEnv(string(data))), format)
}

// Parse decodes data as format, "yaml", "yml" or "json".
func Parse(data []byte, format string) (Document, error) {
	var m map[string]any
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &m)
	case "json":
		err = json.Unmarshal(data, &m)
	default:
		return Document{}, fmt.Errorf("unsupported config format %q", format)
	}
	if err != nil {
		return Document{}, fmt.Errorf("parse %s config: %w", format, err)
	}
	return NewDocument(m), nil
}

func (d Document) String(key, def string) string {
	if s, ok := d.values[key].(string); ok {
		return s
	}
	return def
}

func (d Document) Bool(key string, def bool) bool {
	if b, ok := d.values[key].(bool); ok {
		return b
	}
	return def
}

// Int accepts whole floats, as JSON decodes every number to float64.
func (d Document) Int(key string, def int) int {
	switch v := d.values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

// Duration accepts a Go duration string or a number of seconds.
func (d Document) Duration(key string, def time.Duration) time.Duration {
	switch v := d.values[key].(type) {
	case string:
		if dur, err := time.ParseDuration(v); err == nil {
			return dur
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// Section returns the mapping at key. Anything else is an empty document.
func (d Document) Section(key string) Document {
	m, _ := d.values[key].(map[string]any)
	return NewDocument(m)
}

func (d Document) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Keys returns the top-level keys in sorted order.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
