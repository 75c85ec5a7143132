package fpgen

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// BeamWidth is the default maximum number of partial assignments kept
// between steps of beam-search inference (spec.md §4.D).
const BeamWidth = 1000

// ExactThreshold bounds the configuration-space size the supplemented
// Exact inference mode will enumerate before silently falling back to
// beam search (SPEC_FULL.md §2 item 2; ported from
// original_source/fpgen/trace.py's EXTREME_CASE_THRESHOLD).
const ExactThreshold = 1_000_000

type assignment map[string]string

func (a assignment) clone() assignment {
	out := make(assignment, len(a)+1)
	for k, v := range a {
		out[k] = v
	}
	return out
}

type beamEntry struct {
	values assignment
	prob   float64
}

// cptCache memoizes probabilitiesGiven by (node, parent-value tuple)
// within a single inference call, per spec.md §4.D.2.
type cptCache struct {
	m map[string]map[string]float64
}

func newCPTCache() *cptCache { return &cptCache{m: make(map[string]map[string]float64)} }

func (c *cptCache) get(node *Node, a assignment) map[string]float64 {
	key := cacheKey(node, a)
	if hit, ok := c.m[key]; ok {
		return hit
	}
	parentVals := make(map[string]string, len(node.ParentNames))
	for _, p := range node.ParentNames {
		parentVals[p] = a[p]
	}
	probs := withUniformFallback(node, node.ProbabilitiesGiven(parentVals))
	c.m[key] = probs
	return probs
}

func cacheKey(node *Node, a assignment) string {
	var b strings.Builder
	b.WriteString(node.Name)
	for _, p := range node.ParentNames {
		b.WriteByte('|')
		b.WriteString(a[p])
	}
	return b.String()
}

// runBeamSearch implements spec.md §4.D.2: expand the beam across the
// given ordered relevant nodes, pruning to beamWidth by joint probability
// whenever the expansion overflows it.
func runBeamSearch(nodes []*Node, evidence evidenceSet, beamWidth int) ([]beamEntry, error) {
	cache := newCPTCache()
	beam := []beamEntry{{values: assignment{}, prob: 1.0}}

	for _, node := range nodes {
		allowed, restricted := evidence.allowed(node.Name)
		var next []beamEntry
		for _, be := range beam {
			probs := cache.get(node, be.values)
			for v, q := range probs {
				if q <= 0 {
					continue
				}
				if restricted && !allowed[v] {
					continue
				}
				na := be.values.clone()
				na[node.Name] = v
				next = append(next, beamEntry{values: na, prob: be.prob * q})
			}
		}
		if len(next) == 0 {
			fmt.Printf("Warning: beam collapsed at node %q (evidence left no admissible value)\n", node.Name)
			return nil, newRestrictiveConstraints("beam collapsed at node %q", node.Name)
		}
		if len(next) > beamWidth {
			sort.Slice(next, func(i, j int) bool { return next[i].prob > next[j].prob })
			next = next[:beamWidth]
		}
		beam = next
	}
	return beam, nil
}

// TraceMarginal computes the marginal distribution of target given
// evidence via beam search (spec.md §4.D.3).
func (n *Network) TraceMarginal(target string, evidence evidenceSet, beamWidth int) (map[string]float64, error) {
	node, ok := n.NodeByName(target)
	if !ok {
		return nil, newInvalidNode("unknown node %q", target)
	}
	nodes, err := n.RelevantNodes(target, evidence.names())
	if err != nil {
		return nil, err
	}
	beam, err := runBeamSearch(nodes, evidence, beamWidth)
	if err != nil {
		return nil, err
	}

	sums := make(map[string]float64)
	var total float64
	for _, be := range beam {
		v := be.values[node.Name]
		sums[v] += be.prob
		total += be.prob
	}
	if total <= 0 {
		return nil, newRestrictiveConstraints("marginal for %q has zero total mass", target)
	}
	out := make(map[string]float64, len(sums))
	for v, p := range sums {
		out[v] = p / total
	}
	return out, nil
}

// TraceExact performs full joint enumeration instead of beam pruning,
// used when the supplemented Exact option is requested and the relevant
// configuration space is small enough (SPEC_FULL.md §2 item 2).
func (n *Network) TraceExact(target string, evidence evidenceSet) (map[string]float64, error) {
	nodes, err := n.RelevantNodes(target, evidence.names())
	if err != nil {
		return nil, err
	}

	space := 1
	for _, node := range nodes {
		allowed, restricted := evidence.allowed(node.Name)
		card := len(node.PossibleValues)
		if restricted {
			card = len(allowed)
		}
		if card == 0 {
			card = 1
		}
		space *= card
		if space > ExactThreshold {
			return n.TraceMarginal(target, evidence, BeamWidth)
		}
	}
	return n.TraceMarginal(target, evidence, space+1) // a beam wide enough never prunes
}

// sampleValue draws a value from dist by walking node.PossibleValues in
// declared order, accumulating probability, per spec.md §4.D.4's
// sampling rule (first value whose cumulative mass >= u; last value on
// underflow).
func sampleValue(node *Node, dist map[string]float64, rng *rand.Rand) string {
	u := rng.Float64()
	var cumulative float64
	var last string
	for _, v := range node.PossibleValues {
		p, ok := dist[v]
		if !ok {
			continue
		}
		last = v
		cumulative += p
		if cumulative >= u {
			return v
		}
	}
	if last == "" {
		for v := range dist {
			last = v
			break
		}
	}
	return last
}

// GenerateFull draws a full consistent joint sample across every node in
// topological order (spec.md §4.D.4 "full sample").
func (n *Network) GenerateFull(evidence evidenceSet, beamWidth int, rng *rand.Rand) (assignment, error) {
	return n.generateOver(n.Nodes, evidence, beamWidth, rng)
}

// GenerateTargeted draws a sample restricted to the union of
// ancestors(t) ∪ {t} across the given target roots (spec.md §4.D.4
// "targeted sample").
func (n *Network) GenerateTargeted(targets []string, evidence evidenceSet, beamWidth int, rng *rand.Rand) (assignment, error) {
	nodes, err := n.nodesForTargets(targets)
	if err != nil {
		return nil, err
	}
	return n.generateOver(nodes, evidence, beamWidth, rng)
}

func (n *Network) nodesForTargets(targets []string) ([]*Node, error) {
	include := make(map[string]bool)
	for _, t := range targets {
		node, ok := n.NodeByName(t)
		if !ok {
			return nil, newInvalidNode("unknown node %q", t)
		}
		include[strings.ToLower(node.Name)] = true
		anc, err := n.Ancestors(t)
		if err != nil {
			return nil, err
		}
		for a := range anc {
			include[a] = true
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

func (n *Network) generateOver(nodes []*Node, evidence evidenceSet, beamWidth int, rng *rand.Rand) (assignment, error) {
	result := make(assignment, len(nodes))
	cache := newCPTCache()

	for _, node := range nodes {
		dist := cache.get(node, result)

		if allowed, restricted := evidence.allowed(node.Name); restricted {
			localEvidence := evidence.withoutNode(node.Name)
			for prior, val := range result {
				localEvidence = localEvidence.fixedOverride(prior, val)
			}
			marginal, err := n.TraceMarginal(node.Name, localEvidence, beamWidth)
			filtered := make(map[string]float64)
			if err == nil {
				for v, p := range marginal {
					if allowed[v] {
						filtered[v] = p
					}
				}
			}
			var total float64
			for _, p := range filtered {
				total += p
			}
			if total <= 0 {
				if len(allowed) == 0 {
					return nil, newRestrictiveConstraints("no feasible value for node %q", node.Name)
				}
				filtered = make(map[string]float64, len(allowed))
				u := 1.0 / float64(len(allowed))
				for v := range allowed {
					filtered[v] = u
				}
			} else {
				for v := range filtered {
					filtered[v] /= total
				}
			}
			dist = filtered
		}

		if len(dist) == 0 {
			return nil, newRestrictiveConstraints("no feasible value for node %q", node.Name)
		}

		result[node.Name] = sampleValue(node, dist, rng)
	}
	return result, nil
}
