package fpgen

import (
	"encoding/json"
	"sort"
	"strings"
)

// Predicate is a user-supplied constraint function evaluated against a
// node's decoded possible values. Predicates are never serialized and
// are treated uniformly with sets: a node's possibilities are enumerated
// and any token whose decoded value satisfies the predicate is admitted
// (spec.md §9 "Predicate-valued constraints").
type Predicate func(decoded any) bool

// evidenceSet is a per-root mapping to a non-empty set of allowed
// value-index tokens, with insertion order preserved so the non-strict
// relaxation loop can drop "the first evidence entry" deterministically
// (spec.md §3 "Evidence", §4.E step 5).
type evidenceSet struct {
	order []string
	sets  map[string]map[string]bool
}

func newEvidenceSet() evidenceSet {
	return evidenceSet{sets: make(map[string]map[string]bool)}
}

func (e evidenceSet) clone() evidenceSet {
	out := evidenceSet{order: append([]string{}, e.order...), sets: make(map[string]map[string]bool, len(e.sets))}
	for k, v := range e.sets {
		out.sets[k] = v
	}
	return out
}

func (e evidenceSet) set(root string, tokens map[string]bool) evidenceSet {
	out := e.clone()
	if _, existed := out.sets[root]; !existed {
		out.order = append(out.order, root)
	}
	out.sets[root] = tokens
	return out
}

func (e evidenceSet) allowed(nodeName string) (map[string]bool, bool) {
	s, ok := e.sets[nodeName]
	return s, ok
}

func (e evidenceSet) names() []string { return e.order }

func (e evidenceSet) isEmpty() bool { return len(e.order) == 0 }

func (e evidenceSet) withoutNode(name string) evidenceSet {
	out := evidenceSet{sets: make(map[string]map[string]bool, len(e.sets))}
	for _, n := range e.order {
		if n == name {
			continue
		}
		out.order = append(out.order, n)
		out.sets[n] = e.sets[n]
	}
	return out
}

// fixedOverride adds (or replaces) a singleton constraint, used by the
// full-sample loop to condition a node's local marginal on every node
// sampled before it (spec.md §4.D.4).
func (e evidenceSet) fixedOverride(name, value string) evidenceSet {
	return e.set(name, map[string]bool{value: true})
}

// popFirst drops the earliest-inserted evidence entry, implementing the
// non-strict relaxation rule of spec.md §4.E step 5 / §7.2.
func (e evidenceSet) popFirst() (evidenceSet, bool) {
	if e.isEmpty() {
		return e, false
	}
	out := evidenceSet{sets: make(map[string]map[string]bool, len(e.sets)-1)}
	for _, n := range e.order[1:] {
		out.order = append(out.order, n)
		out.sets[n] = e.sets[n]
	}
	return out, true
}

// flattenConstraints joins nested constraint keys with "." (spec.md
// §4.E step 1). Leaves may be scalars, []any (disjunctive sets), nested
// maps (descended into), or Predicate values.
func flattenConstraints(input map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		if nested, ok := v.(map[string]any); ok {
			for k, sub := range nested {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				walk(key, sub)
			}
			return
		}
		out[prefix] = v
	}
	for k, v := range input {
		walk(k, v)
	}
	return out
}

// resolveRoot implements spec.md §4.E step 2: match the flat key against
// a node name, stripping trailing segments until one matches.
func (n *Network) resolveRoot(flatKey string) (root string, nestedPath []string, err error) {
	segments := strings.Split(flatKey, ".")
	for end := len(segments); end >= 1; end-- {
		candidate := strings.Join(segments[:end], ".")
		if node, ok := n.NodeByName(candidate); ok {
			return node.Name, segments[end:], nil
		}
	}
	return "", nil, newInvalidConstraints("constraint key %q does not resolve to any node", flatKey)
}

type decodedPossibility struct {
	token string
	value any
}

func (n *Network) decodePossibilities(node *Node) ([]decodedPossibility, error) {
	raws, err := n.Values.LookupMany(node.PossibleValues)
	if err != nil {
		return nil, &NetworkError{Msg: "dereference possible values", Err: err}
	}
	out := make([]decodedPossibility, len(node.PossibleValues))
	for i, tok := range node.PossibleValues {
		var decoded any
		if err := json.Unmarshal([]byte(raws[i]), &decoded); err != nil {
			return nil, &NetworkError{Msg: "decode value for node " + node.Name, Err: err}
		}
		out[i] = decodedPossibility{token: tok, value: decoded}
	}
	return out, nil
}

// matchValues implements spec.md §4.E step 3.
func (n *Network) matchValues(node *Node, nestedPath []string, constraint any) (map[string]bool, error) {
	possibilities, err := n.decodePossibilities(node)
	if err != nil {
		return nil, err
	}

	matched := make(map[string]bool)

	if pred, ok := constraint.(Predicate); ok {
		for _, p := range possibilities {
			v := descend(p.value, nestedPath)
			if pred(v) {
				matched[p.token] = true
			}
		}
		return matched, nil
	}

	candidates := asCandidateList(constraint)

	if len(nestedPath) > 0 {
		for _, p := range possibilities {
			v := descend(p.value, nestedPath)
			for _, c := range candidates {
				if jsonEquivalent(v, c) {
					matched[p.token] = true
					break
				}
			}
		}
		return matched, nil
	}

	// nested_path empty: case-insensitive direct match against the
	// node's possibility set.
	byFold := make(map[string]string, len(possibilities))
	for _, p := range possibilities {
		byFold[strings.ToLower(scalarString(p.value))] = p.token
	}
	for _, c := range candidates {
		tok, ok := byFold[strings.ToLower(scalarString(c))]
		if ok {
			matched[tok] = true
		}
	}
	return matched, nil
}

func asCandidateList(constraint any) []any {
	if list, ok := constraint.([]any); ok {
		return list
	}
	return []any{constraint}
}

func scalarString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// descend walks a decoded JSON value by a case-insensitive nested path.
// A missing segment returns nil (caller treats that as "doesn't match").
func descend(v any, path []string) any {
	cur := v
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		var next any
		var found bool
		for k, val := range m {
			if strings.EqualFold(k, seg) {
				next, found = val, true
				break
			}
		}
		if !found {
			return nil
		}
		cur = next
	}
	return cur
}

// jsonEquivalent compares two decoded-JSON-shaped values structurally,
// normalizing Go's int/float distinction (callers naturally write `1920`
// as an int literal, json.Unmarshal always produces float64).
func jsonEquivalent(a, b any) bool {
	return deepEqual(normalizeJSONNumber(a), normalizeJSONNumber(b))
}

func normalizeJSONNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return v
	}
}

func deepEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}

// CompileEvidence turns a nested user constraint mapping into an
// evidenceSet layered on top of base (component E, spec.md §4.E). Each
// resolved root's token set replaces any prior entry for that root
// (matching original_source/fpgen/generator.py's filtered_values
// assignment semantics) without disturbing its position in insertion
// order.
func (n *Network) CompileEvidence(base evidenceSet, constraints map[string]any) (evidenceSet, error) {
	result := base.clone()
	flat := flattenConstraints(constraints)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic processing order; map iteration is not

	for _, key := range keys {
		value := flat[key]
		root, nestedPath, err := n.resolveRoot(key)
		if err != nil {
			return evidenceSet{}, err
		}
		node, _ := n.NodeByName(root)
		matched, err := n.matchValues(node, nestedPath, value)
		if err != nil {
			return evidenceSet{}, err
		}
		if len(matched) == 0 {
			if len(nestedPath) > 0 {
				return evidenceSet{}, newInvalidConstraints(
					"no possible value of node %q has %q equal to %v", root, strings.Join(nestedPath, "."), value)
			}
			return evidenceSet{}, newInvalidConstraints("value %v is not among the possibilities of node %q", value, root)
		}
		result = result.set(root, matched)
	}
	return result, nil
}

// CheckFeasibility implements spec.md §4.D.5: for every evidence node
// with at least one fixed (singleton) sibling constraint, trace that
// node conditioned on the fixed siblings and ensure the resulting
// distribution gives positive mass to at least one of its own allowed
// values. See DESIGN.md Open Question #3 for why "at least one" (rather
// than the literal "more than one") sibling triggers the check.
func (n *Network) CheckFeasibility(ev evidenceSet, beamWidth int) error {
	for _, name := range ev.order {
		siblings := newEvidenceSet()
		for _, other := range ev.order {
			if other == name {
				continue
			}
			set := ev.sets[other]
			if len(set) == 1 {
				siblings = siblings.set(other, set)
			}
		}
		if siblings.isEmpty() {
			continue
		}
		marginal, err := n.TraceMarginal(name, siblings, beamWidth)
		if err != nil {
			marginal = nil
		}
		allowed := ev.sets[name]
		feasible := false
		for v := range allowed {
			if marginal[v] > 0 {
				feasible = true
				break
			}
		}
		if !feasible {
			return newRestrictiveConstraints(
				"node %q has no feasible value given fixed constraints on %v", name, siblings.order)
		}
	}
	return nil
}
