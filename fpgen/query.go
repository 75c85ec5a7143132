package fpgen

import "strings"

// Query implements spec.md §4.G: enumerate possible values for a node,
// a nested sub-path inside a node, or every node under a dotted prefix.
func (n *Network) Query(target string, flatten, sortWithin bool) (any, error) {
	if node, ok := n.NodeByName(target); ok {
		return n.queryNode(node, nil, sortWithin)
	}

	segments := strings.Split(target, ".")
	for end := len(segments) - 1; end >= 1; end-- {
		candidate := strings.Join(segments[:end], ".")
		if node, ok := n.NodeByName(candidate); ok {
			return n.queryNode(node, segments[end:], sortWithin)
		}
	}

	return n.queryPrefix(target, flatten, sortWithin)
}

func (n *Network) queryPrefix(target string, flatten, sortWithin bool) (any, error) {
	prefix := strings.ToLower(target)
	flat := make(map[string]any)
	found := false

	for _, node := range n.Nodes {
		fold := strings.ToLower(node.Name)
		if fold != prefix && !strings.HasPrefix(fold, prefix+".") {
			continue
		}
		found = true
		val, err := n.queryNode(node, nil, sortWithin)
		if err != nil {
			return nil, err
		}
		if fold == prefix {
			return maybeFlatten(flatten, val), nil
		}
		rel := node.Name[len(prefix)+1:]
		flat[rel] = val
	}
	if !found {
		return nil, newInvalidNode("target %q does not resolve to any node", target)
	}

	nested := unflattenDict(flat)
	if flatten {
		return flattenDict(nested), nil
	}
	return nested, nil
}

func (n *Network) queryNode(node *Node, nestedPath []string, sortWithin bool) (any, error) {
	possibilities, err := n.decodePossibilities(node)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(possibilities))
	allMaps := len(possibilities) > 0
	for i, p := range possibilities {
		v := p.value
		if len(nestedPath) > 0 {
			v = descend(v, nestedPath)
			if v == nil {
				return nil, newNodePathError("node %q has no sub-path %q", node.Name, strings.Join(nestedPath, "."))
			}
		}
		values[i] = v
		if _, ok := v.(map[string]any); !ok {
			allMaps = false
		}
	}

	if allMaps {
		dicts := make([]map[string]any, len(values))
		for i, v := range values {
			dicts[i] = v.(map[string]any)
		}
		return mergeDicts(dicts, sortWithin), nil
	}
	return dedupeValues(values, sortWithin), nil
}
