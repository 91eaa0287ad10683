package broker

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PartitionKey walks a dot-separated path into data and returns the value at
// its end as a key. Strings are used as they are and numbers in their shortest
// decimal form. Any other value, a missing segment or an empty path yields no
// key, and the message is published unkeyed.
func PartitionKey(path string, data any) (string, bool) {
	if path == "" {
		return "", false
	}
	current := data
	for _, seg := range strings.Split(path, ".") {
		next, ok := child(current, seg)
		if !ok {
			return "", false
		}
		current = next
	}
	return keyString(current)
}

func child(v any, seg string) (any, bool) {
	switch node := v.(type) {
	case map[string]any:
		out, ok := node[seg]
		return out, ok
	case map[string]string:
		out, ok := node[seg]
		return out, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(node) {
			return nil, false
		}
		return node[i], true
	default:
		return nil, false
	}
}

func keyString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, val != ""
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint32:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	default:
		return "", false
	}
}
