package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Params wraps the loosely typed parameter mapping of a Job. Values may
// arrive as JSON strings, booleans or numbers depending on the caller.
type Params map[string]any

// String returns the parameter as a string, or fallback when absent or empty.
func (p Params) String(key, fallback string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}

// Bool accepts real booleans and boolean-as-string toggles ("true", "1", "yes").
func (p Params) Bool(key string) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "false", "0", "no", "off":
			return false, nil
		case "true", "1", "yes", "on":
			return true, nil
		}
		return false, fmt.Errorf("parameter %q: invalid boolean %q", key, t)
	default:
		return false, fmt.Errorf("parameter %q: unsupported type %T", key, v)
	}
}
