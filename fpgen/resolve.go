package fpgen

import (
	"encoding/json"
	"strings"
)

// FindRoots implements spec.md §4.F: map each (possibly dotted, possibly
// above or below a node) user target to the set of root node names that
// must be sampled to answer it.
func (n *Network) FindRoots(targets []string) (map[string]bool, error) {
	roots := make(map[string]bool)
	for _, target := range targets {
		if node, ok := n.NodeByName(target); ok {
			roots[node.Name] = true
			continue
		}

		segments := strings.Split(target, ".")
		matched := false
		for end := len(segments) - 1; end >= 1; end-- {
			candidate := strings.Join(segments[:end], ".")
			if node, ok := n.NodeByName(candidate); ok {
				roots[node.Name] = true
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		prefix := strings.ToLower(target)
		found := false
		for _, node := range n.Nodes {
			fold := strings.ToLower(node.Name)
			if fold == prefix || strings.HasPrefix(fold, prefix+".") {
				roots[node.Name] = true
				found = true
			}
		}
		if !found {
			return nil, newInvalidConstraints("target %q does not resolve to any node", target)
		}
	}
	return roots, nil
}

// Reassemble descends into a nested fingerprint for each requested
// target, splitting on "." case-insensitively at every level, and
// returns a map keyed by the literal target strings the caller passed
// in (spec.md §4.F "reassemble").
func Reassemble(targets []string, fingerprint map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(targets))
	for _, target := range targets {
		segments := strings.Split(target, ".")
		var cur any = fingerprint
		for _, seg := range segments {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, newInvalidConstraints("target %q: %q is not a nested value", target, seg)
			}
			var next any
			var found bool
			for k, v := range m {
				if strings.EqualFold(k, seg) {
					next, found = v, true
					break
				}
			}
			if !found {
				return nil, newInvalidConstraints("target %q: segment %q not found", target, seg)
			}
			cur = next
		}
		out[target] = cur
	}
	return out, nil
}

// MakeOutputDict decodes a sampler's {root name: value token} assignment
// into JSON values and shapes it per the caller's flatten flag (spec.md
// §4.F "make_output_dict"). Dotted root names (e.g. "navigator.language")
// are structural, so the default (unflattened) form rebuilds nested
// objects rather than leaving dotted keys at the top level.
func (n *Network) MakeOutputDict(sample map[string]string, flatten bool) (map[string]any, error) {
	flat := make(map[string]any, len(sample))
	for root, token := range sample {
		value, err := n.decodeToken(root, token)
		if err != nil {
			return nil, err
		}
		flat[root] = value
	}
	if flatten {
		return flat, nil
	}
	return unflattenDict(flat), nil
}

func (n *Network) decodeToken(nodeName, token string) (any, error) {
	raw, err := n.Values.Lookup(token)
	if err != nil {
		return nil, &NetworkError{Msg: "dereference value for node " + nodeName, Err: err}
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, &NetworkError{Msg: "decode value for node " + nodeName, Err: err}
	}
	return decoded, nil
}
