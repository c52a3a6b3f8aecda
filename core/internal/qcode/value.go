package qcode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ToFloat coerces numbers and numeric strings into a float64
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case []byte:
		return ToFloat(string(n))
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case bool:
		return 0, false
	}
	return 0, false
}

// Stringify renders a scalar the way the in-memory executor compares values.
// Whole floats render without a fraction so 1 and 1.0 compare equal.
func Stringify(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case []byte:
		return string(n)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case json.Number:
		return n.String()
	case bool:
		return strconv.FormatBool(n)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", n)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(n)
		if err != nil {
			return fmt.Sprintf("%v", n)
		}
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

// IsNull reports whether v counts as an absent value for key generation
func IsNull(v interface{}) bool {
	switch n := v.(type) {
	case nil:
		return true
	case string:
		return n == ""
	}
	return false
}

// ParseJSONValue returns the decoded value when v is a string holding a JSON
// object or array. Scalars never count as JSON.
func ParseJSONValue(v interface{}) (interface{}, bool) {
	switch n := v.(type) {
	case map[string]interface{}, []interface{}:
		return n, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" || (s[0] != '{' && s[0] != '[') {
			return nil, false
		}
		var out interface{}
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// ListValues expands the value of an 'in' filter into its members. Accepts
// slices, JSON array strings and comma separated strings.
func ListValues(v interface{}) []interface{} {
	switch n := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return n
	case []string:
		out := make([]interface{}, len(n))
		for i := range n {
			out[i] = n[i]
		}
		return out
	case []int:
		out := make([]interface{}, len(n))
		for i := range n {
			out[i] = n[i]
		}
		return out
	case []float64:
		out := make([]interface{}, len(n))
		for i := range n {
			out[i] = n[i]
		}
		return out
	case string:
		s := strings.TrimSpace(n)
		if strings.HasPrefix(s, "[") {
			var out []interface{}
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
		if s == "" {
			return nil
		}
		parts := strings.Split(s, ",")
		out := make([]interface{}, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	}
	return []interface{}{v}
}
