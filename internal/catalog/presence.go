package catalog

import "strings"

// HasData reports whether a nested record holds meaningful data at a leaf
// path. Boolean false and numeric zero are meaningful answers ("no, I have
// not had surgery" must not be re-asked); nil, empty strings and empty
// collections are not.
func HasData(record map[string]any, path string) bool {
	if record == nil {
		return false
	}

	current := any(record)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current, ok = m[part]
		if !ok {
			return false
		}
	}

	switch v := current.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case map[string]any:
		// A composite value counts as present when any of its members does.
		return len(v) > 0
	default:
		// bool (including false) and all numeric types are data.
		return true
	}
}
