package fpgen

// missingValueKey is the fallback CPT key used when a parent's sampled
// value has no explicit entry in the table, mirroring
// original_source/fpgen/bayesian_network.py's MISSING_VALUE_STRING.
const missingValueKey = "null"

// ProbabilitiesGiven walks the node's nested CPT by parent-value path
// (component C). A parent value with no entry of its own falls back to the
// missingValueKey entry; if that is absent too, it returns an empty map —
// callers apply the uniform "no data" fallback via withUniformFallback.
func (node *Node) ProbabilitiesGiven(parentValues map[string]string) map[string]float64 {
	var cur any = node.CPT
	for _, pname := range node.ParentNames {
		level, ok := cur.(map[string]any)
		if !ok {
			return map[string]float64{}
		}
		val, have := parentValues[pname]
		var next any
		if have {
			next, ok = level[val]
		}
		if !ok || !have {
			next, ok = level[missingValueKey]
		}
		if !ok {
			return map[string]float64{}
		}
		cur = next
	}

	leaf, ok := cur.(map[string]any)
	if !ok {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(leaf))
	for k, v := range leaf {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	return out
}

// withUniformFallback applies the "no data" rule from spec.md §4.C: an
// empty probability map for a node with non-empty possible_values is
// re-filled with a uniform distribution over those values. A node with
// both an empty CPT result and no possible_values resolves to nothing —
// callers surface this as RestrictiveConstraints (Open Question
// resolution #1 in DESIGN.md).
func withUniformFallback(node *Node, probs map[string]float64) map[string]float64 {
	if len(probs) > 0 {
		return probs
	}
	if len(node.PossibleValues) == 0 {
		return probs
	}
	uniform := make(map[string]float64, len(node.PossibleValues))
	p := 1.0 / float64(len(node.PossibleValues))
	for _, v := range node.PossibleValues {
		uniform[v] = p
	}
	return uniform
}
