// Package intake implements the incremental intake-progress engine: the
// nested record model, the deep-merge rules, and the per-section progress
// tracker that decides what still needs to be asked.
package intake

import (
	"sort"
	"strings"
)

// Record is one section's nested intake record: a tree of scalar leaves,
// nested objects, and lists-of-objects, addressed by dotted leaf paths.
type Record map[string]any

// Declined is the sentinel stored at a leaf path when the patient was asked
// and explicitly had no answer. It is distinct from "never asked": presence
// checks treat it as data, so the question loop terminates.
const Declined = "declined"

// Get walks a dotted path and returns the value stored there.
func (r Record) Get(path string) (any, bool) {
	current := any(map[string]any(r))
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set stores a value at a dotted path, creating intermediate objects as
// needed. A non-object intermediate value is overwritten.
func (r Record) Set(path string, value any) {
	parts := strings.Split(path, ".")
	current := map[string]any(r)
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record(cloneValue(map[string]any(r)).(map[string]any))
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Merge deep-merges an incoming partial record into an existing one and
// returns the result; neither input is mutated. For a key present in both:
// nested objects recurse, lists replace wholesale (a corrected medication
// list fully supersedes the old one), and scalars replace.
func Merge(existing, incoming Record) Record {
	merged := existing.Clone()
	mergeInto(map[string]any(merged), map[string]any(incoming))
	return merged
}

func mergeInto(dst, src map[string]any) {
	for key, incoming := range src {
		if incoming == nil {
			continue
		}
		existingObj, existingIsObj := dst[key].(map[string]any)
		incomingObj, incomingIsObj := incoming.(map[string]any)
		if existingIsObj && incomingIsObj {
			mergeInto(existingObj, incomingObj)
			continue
		}
		dst[key] = cloneValue(incoming)
	}
}

// LeafPaths flattens a record into sorted dotted paths. Arrays are treated
// as single leaves; the engine never tracks an array element's interior.
func (r Record) LeafPaths() []string {
	var paths []string
	flattenPaths(map[string]any(r), "", &paths)
	sort.Strings(paths)
	return paths
}

func flattenPaths(m map[string]any, prefix string, out *[]string) {
	for key, value := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if obj, ok := value.(map[string]any); ok {
			flattenPaths(obj, path, out)
			continue
		}
		*out = append(*out, path)
	}
}
