package fpgen

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/scrapfly/fpgen-go/fpgen/values"
)

// nodeDef mirrors the on-disk NodeDef schema (see SPEC_FULL.md §External
// Interfaces / spec.md §6).
type nodeDef struct {
	Name                     string          `json:"name"`
	ParentNames              []string        `json:"parentNames"`
	PossibleValues           []string        `json:"possibleValues"`
	ConditionalProbabilities json.RawMessage `json:"conditionalProbabilities"`
}

type networkFile struct {
	Nodes []nodeDef `json:"nodes"`
}

// Node is a discrete random variable in the network. Name comparison is
// case-insensitive; the original case is kept for display and output.
type Node struct {
	Name           string
	ParentNames    []string
	PossibleValues []string // value-index tokens, declaration order
	CPT            any      // nested map[string]any; leaves are map[string]any holding float64 probabilities
	Index          int
}

// Network is the full loaded Bayesian network: a fixed topological
// (sampling) order plus case-insensitive lookup and memoized ancestor
// closures. Immutable after LoadNetwork returns except for the lazily
// filled ancestor cache, which is guarded by a mutex so a Network can be
// shared read-only across goroutines (spec.md §5).
type Network struct {
	Nodes  []*Node
	Values *values.Store

	byName map[string]*Node // original case
	byFold map[string]*Node // case-folded

	ancestorsMu    sync.Mutex
	ancestorsCache map[string]map[string]bool // keyed by case-folded name
}

// LoadNetwork parses a serialized network description (optionally
// zstd-compressed) into a Network, assigning each node its topological
// index in declaration order.
func LoadNetwork(path string, store *values.Store) (*Network, error) {
	raw, err := readMaybeCompressed(path)
	if err != nil {
		return nil, &NetworkError{Msg: fmt.Sprintf("load network %q", path), Err: err}
	}

	var nf networkFile
	if err := json.Unmarshal(raw, &nf); err != nil {
		return nil, &NetworkError{Msg: fmt.Sprintf("parse network %q", path), Err: err}
	}

	nodes := make([]*Node, len(nf.Nodes))
	for i, def := range nf.Nodes {
		var cpt any
		if len(def.ConditionalProbabilities) > 0 {
			if err := json.Unmarshal(def.ConditionalProbabilities, &cpt); err != nil {
				return nil, &NetworkError{Msg: fmt.Sprintf("parse CPT for node %q", def.Name), Err: err}
			}
		}
		nodes[i] = &Node{
			Name:           def.Name,
			ParentNames:    def.ParentNames,
			PossibleValues: def.PossibleValues,
			CPT:            cpt,
			Index:          i,
		}
	}

	return rebuildNetwork(nodes, store)
}

// rebuildNetwork builds the case-insensitive lookup indexes and
// validates topology for an already-constructed node slice. It is
// shared by LoadNetwork (fresh parse) and LoadNetworkCache (gob cache),
// the same way the teacher's LoadCheckpoint re-links indexes gob can't
// carry across unexported fields.
func rebuildNetwork(nodes []*Node, store *values.Store) (*Network, error) {
	net := &Network{
		Values:         store,
		Nodes:          nodes,
		byName:         make(map[string]*Node, len(nodes)),
		byFold:         make(map[string]*Node, len(nodes)),
		ancestorsCache: make(map[string]map[string]bool),
	}

	for _, node := range nodes {
		fold := strings.ToLower(node.Name)
		if _, dup := net.byFold[fold]; dup {
			return nil, &NetworkError{Msg: fmt.Sprintf("duplicate node name %q (case-insensitive)", node.Name)}
		}
		net.byName[node.Name] = node
		net.byFold[fold] = node
	}

	for _, node := range net.Nodes {
		for _, pname := range node.ParentNames {
			parent, ok := net.byFold[strings.ToLower(pname)]
			if !ok {
				return nil, &NetworkError{Msg: fmt.Sprintf("node %q references unknown parent %q", node.Name, pname)}
			}
			if parent.Index >= node.Index {
				return nil, &NetworkError{Msg: fmt.Sprintf("node %q is not topologically after parent %q", node.Name, pname)}
			}
		}
	}

	return net, nil
}

func readMaybeCompressed(path string) ([]byte, error) {
	if strings.HasSuffix(path, ".zst") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	}
	return os.ReadFile(path)
}

// NodeByName performs a case-insensitive lookup, returning the node in
// its original declared case.
func (n *Network) NodeByName(name string) (*Node, bool) {
	node, ok := n.byFold[strings.ToLower(name)]
	return node, ok
}

// Ancestors returns the transitive closure of parents for the named
// node, computed on first use and memoized thereafter.
func (n *Network) Ancestors(name string) (map[string]bool, error) {
	node, ok := n.NodeByName(name)
	if !ok {
		return nil, newInvalidNode("unknown node %q", name)
	}
	fold := strings.ToLower(node.Name)

	n.ancestorsMu.Lock()
	defer n.ancestorsMu.Unlock()
	if cached, ok := n.ancestorsCache[fold]; ok {
		return cached, nil
	}

	set := make(map[string]bool)
	var visit func(nm string) error
	visit = func(nm string) error {
		nd, ok := n.NodeByName(nm)
		if !ok {
			return newInvalidNode("unknown node %q", nm)
		}
		for _, p := range nd.ParentNames {
			pf := strings.ToLower(p)
			if set[pf] {
				continue
			}
			set[pf] = true
			if err := visit(p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(node.Name); err != nil {
		return nil, err
	}
	n.ancestorsCache[fold] = set
	return set, nil
}

// RelevantNodes returns the nodes in ancestors(target) ∪ {target} ∪
// (for every evidence node e) ancestors(e) ∪ {e}, ordered by topological
// index (spec.md §4.D.1).
func (n *Network) RelevantNodes(target string, evidenceNodes []string) ([]*Node, error) {
	include := make(map[string]bool)

	add := func(name string) error {
		node, ok := n.NodeByName(name)
		if !ok {
			return newInvalidNode("unknown node %q", name)
		}
		include[strings.ToLower(node.Name)] = true
		anc, err := n.Ancestors(name)
		if err != nil {
			return err
		}
		for a := range anc {
			include[a] = true
		}
		return nil
	}

	if err := add(target); err != nil {
		return nil, err
	}
	for _, e := range evidenceNodes {
		if err := add(e); err != nil {
			return nil, err
		}
	}

	var out []*Node
	for _, node := range n.Nodes {
		if include[strings.ToLower(node.Name)] {
			out = append(out, node)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
