package fpgen

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// typeTag classifies a decoded JSON value the way
// original_source/fpgen/structs.py groups by type(item) before deduping,
// so that incomparable types (e.g. a list next to a string) never end up
// in the same sort group.
func typeTag(v any) string {
	switch v.(type) {
	case nil:
		return "0nil"
	case bool:
		return "1bool"
	case float64:
		return "2float"
	case string:
		return "3str"
	case []any:
		return "4list"
	case map[string]any:
		return "5map"
	default:
		return fmt.Sprintf("6other:%T", v)
	}
}

// dedupeValues groups items by dynamic type (preserving Python's
// group-by-type-then-sort behavior from structs.py's _dedupe), dedupes
// within each group, optionally sorts scalar groups, and always leaves
// list/map groups in insertion order since they aren't sortable.
func dedupeValues(items []any, sortWithin bool) []any {
	groups := make(map[string][]any)
	var order []string
	for _, item := range items {
		tag := typeTag(item)
		if _, seen := groups[tag]; !seen {
			order = append(order, tag)
		}
		if !containsValue(groups[tag], item) {
			groups[tag] = append(groups[tag], item)
		}
	}
	sort.Strings(order)

	var result []any
	for _, tag := range order {
		group := groups[tag]
		if sortWithin && (tag == "2float" || tag == "3str" || tag == "1bool") {
			sort.Slice(group, func(i, j int) bool { return lessScalar(group[i], group[j]) })
		}
		result = append(result, group...)
	}
	return result
}

func containsValue(haystack []any, v any) bool {
	for _, h := range haystack {
		if reflect.DeepEqual(h, v) {
			return true
		}
	}
	return false
}

func lessScalar(a, b any) bool {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return !av && bv
		}
	}
	return false
}

// unflattenDict splits each "a.b.c"-joined key and rebuilds a nested
// map[string]any, mirroring structs.py's _unflatten.
func unflattenDict(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range flat {
		parts := strings.Split(key, ".")
		cur := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[part] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = value
	}
	return out
}

// flattenDict is the inverse of unflattenDict: nested maps are rejoined
// with "." separators.
func flattenDict(nested map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		m, ok := v.(map[string]any)
		if !ok {
			out[prefix] = v
			return
		}
		for k, sub := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			walk(key, sub)
		}
	}
	walk("", nested)
	return out
}

// maybeFlatten returns the flattened form of v when flatten is true and
// v is a nested dict, otherwise returns v unchanged.
func maybeFlatten(flatten bool, v any) any {
	if !flatten {
		return v
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	return flattenDict(m)
}

// mergeDicts merges a list of maps into one map whose leaves are the
// deduped union of the corresponding leaves across inputs, recursing into
// nested maps and flattening list values, ported from utils.py's
// _merge_dicts: the key set is the union across every dict (not just the
// first), a key missing from some dicts is simply skipped for those, and a
// key only recurses into a nested merge when every dict that has it holds
// a map there (not merely the first).
func mergeDicts(dicts []map[string]any, sortWithin bool) map[string]any {
	if len(dicts) == 0 {
		return map[string]any{}
	}

	allKeys := make(map[string]bool)
	for _, d := range dicts {
		for key := range d {
			allKeys[key] = true
		}
	}

	merged := make(map[string]any, len(allKeys))
	for key := range allKeys {
		var values []any
		for _, d := range dicts {
			if v, ok := d[key]; ok {
				values = append(values, v)
			}
		}

		if allMaps(values) {
			subDicts := make([]map[string]any, len(values))
			for i, v := range values {
				subDicts[i] = v.(map[string]any)
			}
			merged[key] = mergeDicts(subDicts, sortWithin)
			continue
		}

		if allLists(values) {
			var flat []any
			for _, v := range values {
				flat = append(flat, v.([]any)...)
			}
			merged[key] = dedupeValues(flat, sortWithin)
			continue
		}

		merged[key] = dedupeValues(values, sortWithin)
	}
	return merged
}

func allMaps(values []any) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func allLists(values []any) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if _, ok := v.([]any); !ok {
			return false
		}
	}
	return true
}
