package fpgen

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// WindowBounds constrains the window size of a generated fingerprint.
// At least one field should be set; an empty WindowBounds is a no-op.
type WindowBounds struct {
	MinWidth  *int
	MaxWidth  *int
	MinHeight *int
	MaxHeight *int
}

// NewWindowBounds validates that min values don't exceed max values
// before returning a WindowBounds (original_source/fpgen/generator.py's
// __post_init__ check).
func NewWindowBounds(minWidth, maxWidth, minHeight, maxHeight *int) (WindowBounds, error) {
	w := WindowBounds{MinWidth: minWidth, MaxWidth: maxWidth, MinHeight: minHeight, MaxHeight: maxHeight}
	if minWidth != nil && maxWidth != nil && *minWidth > *maxWidth {
		return WindowBounds{}, newInvalidWindowBounds("invalid window constraints: min_width cannot be greater than max_width")
	}
	if minHeight != nil && maxHeight != nil && *minHeight > *maxHeight {
		return WindowBounds{}, newInvalidWindowBounds("invalid window constraints: min_height cannot be greater than max_height")
	}
	return w, nil
}

// IsSet reports whether any bound was provided.
func (w WindowBounds) IsSet() bool {
	return w.MinWidth != nil || w.MaxWidth != nil || w.MinHeight != nil || w.MaxHeight != nil
}

func (w WindowBounds) withinBounds(width, height float64) bool {
	minW, maxW, minH, maxH := 0.0, 1e5, 0.0, 1e5
	if w.MinWidth != nil {
		minW = float64(*w.MinWidth)
	}
	if w.MaxWidth != nil {
		maxW = float64(*w.MaxWidth)
	}
	if w.MinHeight != nil {
		minH = float64(*w.MinHeight)
	}
	if w.MaxHeight != nil {
		maxH = float64(*w.MaxHeight)
	}
	return width >= minW && width <= maxW && height >= minH && height <= maxH
}

// GenerateOptions carries the per-call overrides for Generator.Generate.
// A nil pointer field inherits the Generator's stored default, mirroring
// original_source/fpgen/generator.py's _first() null-coalescing helper.
type GenerateOptions struct {
	WindowBounds *WindowBounds
	Strict       *bool
	Flatten      *bool
	Target       []string // nil/empty => full fingerprint
}

// TraceOptions carries the per-call overrides for Generator.Trace.
type TraceOptions struct {
	Exact   bool
	Flatten bool
}

// Generator caches compiled evidence and default options; Generate and
// Trace calls merge call-site constraints and options onto a copy
// (spec.md §4.H).
type Generator struct {
	network      *Network
	evidence     evidenceSet
	windowBounds *WindowBounds
	strict       bool
	flatten      bool

	mu  sync.Mutex // guards rng; math/rand.Rand is not goroutine-safe
	rng *rand.Rand
}

// NewGenerator compiles the constructor-time constraints and returns a
// Generator with the given defaults.
func NewGenerator(network *Network, constraints map[string]any, windowBounds *WindowBounds, strict, flatten bool) (*Generator, error) {
	ev := newEvidenceSet()
	if len(constraints) > 0 {
		var err error
		ev, err = network.CompileEvidence(ev, constraints)
		if err != nil {
			return nil, err
		}
	}
	return &Generator{
		network:      network,
		evidence:     ev,
		windowBounds: windowBounds,
		strict:       strict,
		flatten:      flatten,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func firstBool(override *bool, fallback bool) bool {
	if override != nil {
		return *override
	}
	return fallback
}

// Generate produces a fingerprint (or, when opts.Target is set, just the
// requested values), retrying with relaxed evidence in non-strict mode
// (spec.md §4.D.4, §4.E step 5, §7.2).
func (g *Generator) Generate(constraints map[string]any, opts *GenerateOptions) (any, error) {
	if opts == nil {
		opts = &GenerateOptions{}
	}

	filtered, err := g.network.CompileEvidence(g.evidence, constraints)
	if err != nil {
		return nil, err
	}

	windowBounds := g.windowBounds
	if opts.WindowBounds != nil {
		windowBounds = opts.WindowBounds
	}
	strict := firstBool(opts.Strict, g.strict)
	flatten := firstBool(opts.Flatten, g.flatten)

	if windowBounds != nil && windowBounds.IsSet() {
		filtered, err = g.filterByWindow(strict, *windowBounds, filtered)
		if err != nil {
			return nil, err
		}
	}

	var targetRoots map[string]bool
	if len(opts.Target) > 0 {
		targetRoots, err = g.network.FindRoots(opts.Target)
		if err != nil {
			return nil, err
		}
	}

	sample, err := g.generateWithRelaxation(filtered, targetRoots, strict)
	if err != nil {
		return nil, err
	}

	if len(opts.Target) > 0 {
		nested, err := g.network.MakeOutputDict(sample, false)
		if err != nil {
			return nil, err
		}
		reassembled, err := Reassemble(opts.Target, nested)
		if err != nil {
			return nil, err
		}
		if len(opts.Target) == 1 {
			return maybeFlatten(flatten, reassembled[opts.Target[0]]), nil
		}
		return maybeFlatten(flatten, reassembled), nil
	}

	return g.network.MakeOutputDict(sample, flatten)
}

func (g *Generator) generateWithRelaxation(filtered evidenceSet, targetRoots map[string]bool, strict bool) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rng := g.rng

	for {
		if err := g.network.CheckFeasibility(filtered, BeamWidth); err == nil {
			var sample assignment
			var sampleErr error
			if len(targetRoots) > 0 {
				roots := make([]string, 0, len(targetRoots))
				for r := range targetRoots {
					roots = append(roots, r)
				}
				sample, sampleErr = g.network.GenerateTargeted(roots, filtered, BeamWidth, rng)
			} else {
				sample, sampleErr = g.network.GenerateFull(filtered, BeamWidth, rng)
			}
			if sampleErr == nil {
				return map[string]string(sample), nil
			}
		}

		if strict {
			return nil, newRestrictiveConstraints("cannot generate fingerprint: constraints are too restrictive")
		}
		if filtered.isEmpty() {
			return nil, newRestrictiveConstraints("cannot generate fingerprint: constraints are too restrictive")
		}
		dropped := filtered.names()[0]
		next, _ := filtered.popFirst()
		fmt.Printf("Warning: relaxing constraints, dropping evidence for node %q\n", dropped)
		filtered = next
	}
}

func (g *Generator) filterByWindow(strict bool, window WindowBounds, filtered evidenceSet) (evidenceSet, error) {
	node, ok := g.network.NodeByName("window")
	if !ok {
		return filtered, nil
	}
	possibilities, err := g.network.decodePossibilities(node)
	if err != nil {
		return filtered, err
	}

	allowed := make(map[string]bool)
	for _, p := range possibilities {
		m, ok := p.value.(map[string]any)
		if !ok {
			continue
		}
		width, _ := m["outerwidth"].(float64)
		height, _ := m["outerheight"].(float64)
		if window.withinBounds(width, height) {
			allowed[p.token] = true
		}
	}

	if len(allowed) == 0 {
		if strict {
			return filtered, newInvalidWindowBounds("window bound constraints are too restrictive")
		}
		return filtered, nil
	}
	return filtered.set(node.Name, allowed), nil
}

// Trace computes marginal distribution(s) for target(s), merging
// call-site constraints onto the Generator's stored evidence.
func (g *Generator) Trace(targets []string, constraints map[string]any, opts *TraceOptions) (any, error) {
	if opts == nil {
		opts = &TraceOptions{}
	}
	filtered, err := g.network.CompileEvidence(g.evidence, constraints)
	if err != nil {
		return nil, err
	}

	roots, err := g.network.FindRoots(targets)
	if err != nil {
		return nil, err
	}

	results := make(map[string]map[string]float64, len(roots))
	for root := range roots {
		var marginal map[string]float64
		if opts.Exact {
			marginal, err = g.network.TraceExact(root, filtered)
		} else {
			marginal, err = g.network.TraceMarginal(root, filtered, BeamWidth)
		}
		if err != nil {
			return nil, err
		}
		results[root] = marginal
	}

	if len(targets) == 1 {
		if root, ok := singleRoot(roots); ok {
			return decodedMarginal(g.network, root, results[root])
		}
	}

	out := make(map[string]any, len(results))
	for root, marginal := range results {
		decoded, err := decodedMarginal(g.network, root, marginal)
		if err != nil {
			return nil, err
		}
		out[root] = decoded
	}
	return maybeFlatten(opts.Flatten, out), nil
}

func singleRoot(roots map[string]bool) (string, bool) {
	if len(roots) != 1 {
		return "", false
	}
	for r := range roots {
		return r, true
	}
	return "", false
}

// TraceResult is one (value, probability) pair of a marginal
// distribution, sorted by probability descending.
type TraceResult struct {
	Value       any
	Probability float64
}

func decodedMarginal(n *Network, root string, marginal map[string]float64) ([]TraceResult, error) {
	out := make([]TraceResult, 0, len(marginal))
	for token, p := range marginal {
		value, err := n.decodeToken(root, token)
		if err != nil {
			return nil, err
		}
		out = append(out, TraceResult{Value: value, Probability: p})
	}
	sortTraceResultsDescending(out)
	return out, nil
}

func sortTraceResultsDescending(results []TraceResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Probability > results[j-1].Probability; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// --- package-level default Generator, guarded by a one-shot initializer
// (spec.md §9 "Global mutable state") ---

var (
	defaultGeneratorOnce sync.Once
	defaultGenerator     *Generator
	defaultGeneratorErr  error
	defaultNetworkFn     func() (*Network, error)
)

// SetDefaultNetworkLoader registers how the package-level Generate/Trace/
// Query functions obtain their Network the first time they're called.
// Callers typically set this once at process start.
func SetDefaultNetworkLoader(loader func() (*Network, error)) {
	defaultNetworkFn = loader
}

func getDefaultGenerator() (*Generator, error) {
	defaultGeneratorOnce.Do(func() {
		if defaultNetworkFn == nil {
			defaultGeneratorErr = &NetworkError{Msg: "no default network loader registered"}
			return
		}
		network, err := defaultNetworkFn()
		if err != nil {
			defaultGeneratorErr = err
			return
		}
		defaultGenerator, defaultGeneratorErr = NewGenerator(network, nil, nil, true, false)
	})
	return defaultGenerator, defaultGeneratorErr
}

// Generate delegates to a lazily-constructed default Generator.
func Generate(constraints map[string]any, opts *GenerateOptions) (any, error) {
	g, err := getDefaultGenerator()
	if err != nil {
		return nil, err
	}
	return g.Generate(constraints, opts)
}

// Trace delegates to a lazily-constructed default Generator.
func Trace(targets []string, constraints map[string]any, opts *TraceOptions) (any, error) {
	g, err := getDefaultGenerator()
	if err != nil {
		return nil, err
	}
	return g.Trace(targets, constraints, opts)
}

// Query delegates to a lazily-constructed default Generator's network.
func Query(target string, flatten, sortWithin bool) (any, error) {
	g, err := getDefaultGenerator()
	if err != nil {
		return nil, err
	}
	return g.network.Query(target, flatten, sortWithin)
}
