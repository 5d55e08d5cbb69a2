package engine

import (
	"strconv"
	"strings"
)

// Helpers for plucking fields out of provider payloads. Fields may live at
// the top level or under "data", and numeric fields sometimes arrive as
// strings.

func payloadObject(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

// dataObject returns the nested "data" object when present, otherwise the
// payload itself.
func dataObject(v interface{}) map[string]interface{} {
	m := payloadObject(v)
	if m == nil {
		return nil
	}
	if inner, ok := m["data"].(map[string]interface{}); ok {
		return inner
	}
	return m
}

func stringField(m map[string]interface{}, keys ...string) string {
	if m == nil {
		return ""
	}
	for _, key := range keys {
		switch val := m[key].(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case float64:
			return strconv.FormatInt(int64(val), 10)
		}
	}
	return ""
}

func intField(m map[string]interface{}, keys ...string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	for _, key := range keys {
		switch val := m[key].(type) {
		case float64:
			return int64(val), true
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
