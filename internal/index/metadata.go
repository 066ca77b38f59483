package index

import (
	"encoding/json"
	"fmt"
)

// Flatten converts a free-form metadata map into the scalar string form the
// index stores. Nested lists and maps are serialized to JSON strings; other
// values take their plain string form. The index has no nested-value
// support.
func Flatten(meta map[string]any) map[string]string {
	flat := make(map[string]string, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case nil:
			flat[k] = ""
		case string:
			flat[k] = val
		case []any, []string, map[string]any, map[string]string:
			b, err := json.Marshal(val)
			if err != nil {
				flat[k] = fmt.Sprint(val)
				continue
			}
			flat[k] = string(b)
		default:
			flat[k] = fmt.Sprint(val)
		}
	}
	return flat
}
