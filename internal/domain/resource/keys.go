package resource

import (
	"encoding/json"
	"strings"
)

// HasAllKeys reports whether obj carries every key.
func HasAllKeys(obj map[string]json.RawMessage, keys []string) bool {
	return len(MissingKeys(obj, keys)) == 0
}

// MissingKeys returns the keys absent from obj, in the order given.
func MissingKeys(obj map[string]json.RawMessage, keys []string) []string {
	var missing []string
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// KeyPair maps a dotted source path to a destination key.
type KeyPair struct {
	From string
	To   string
}

// RenameKeys builds a new map from src. From may address nested objects with
// dots, e.g. "gameplay.cashEarned". Paths that do not resolve, or resolve to
// null, are left out.
func RenameKeys(src map[string]any, pairs []KeyPair) map[string]any {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		if v, ok := lookupPath(src, p.From); ok && v != nil {
			out[p.To] = v
		}
	}
	return out
}

func lookupPath(src map[string]any, path string) (any, bool) {
	var cur any = src
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
