package fpgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceSet_PopFirstDropsOldestInsertionOrder(t *testing.T) {
	t.Parallel()

	ev := newEvidenceSet().set("a", map[string]bool{"x": true}).set("b", map[string]bool{"y": true})
	next, ok := ev.popFirst()
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, next.names())

	_, ok = next.popFirst()
	require.True(t, ok)
	_, ok = newEvidenceSet().popFirst()
	assert.False(t, ok)
}

func TestEvidenceSet_SetReplacesWithoutMovingPosition(t *testing.T) {
	t.Parallel()

	ev := newEvidenceSet().set("a", map[string]bool{"x": true}).set("b", map[string]bool{"y": true})
	ev = ev.set("a", map[string]bool{"z": true})
	assert.Equal(t, []string{"a", "b"}, ev.names())
	allowed, ok := ev.allowed("a")
	require.True(t, ok)
	assert.True(t, allowed["z"])
}

func TestCompileEvidence_ResolvesNodeByScalarValue(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	ev, err := f.network.CompileEvidence(newEvidenceSet(), map[string]any{"os": "Mac"})
	require.NoError(t, err)
	allowed, ok := ev.allowed("os")
	require.True(t, ok)
	assert.True(t, allowed[f.osTok["Mac"]])
	assert.Len(t, allowed, 1)
}

func TestCompileEvidence_ResolvesDisjunctiveSet(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	ev, err := f.network.CompileEvidence(newEvidenceSet(), map[string]any{
		"browser": []any{"Firefox", "Safari"},
	})
	require.NoError(t, err)
	allowed, _ := ev.allowed("browser")
	assert.True(t, allowed[f.browserTok["Firefox"]])
	assert.True(t, allowed[f.browserTok["Safari"]])
	assert.Len(t, allowed, 2)
}

func TestCompileEvidence_UnmatchedValueIsInvalidConstraints(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	_, err := f.network.CompileEvidence(newEvidenceSet(), map[string]any{"os": "Linux"})
	require.Error(t, err)
	var invalid *InvalidConstraints
	assert.ErrorAs(t, err, &invalid)
}

func TestCompileEvidence_UnresolvableKeyIsInvalidConstraints(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	_, err := f.network.CompileEvidence(newEvidenceSet(), map[string]any{"ghost": "anything"})
	require.Error(t, err)
	var invalid *InvalidConstraints
	assert.ErrorAs(t, err, &invalid)
}

func TestCompileEvidence_PredicateFiltersPossibilities(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	pred := Predicate(func(v any) bool {
		m, ok := v.(map[string]any)
		if !ok {
			return false
		}
		w, _ := m["outerwidth"].(float64)
		return w > 1000
	})
	ev, err := f.network.CompileEvidence(newEvidenceSet(), map[string]any{"window": pred})
	require.NoError(t, err)
	allowed, _ := ev.allowed("window")
	assert.True(t, allowed[f.windowTok["desktop"]])
	assert.False(t, allowed[f.windowTok["mobile"]])
}

func TestCheckFeasibility_DetectsInfeasibleFixedSiblings(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	// os fixed to Mac, browser fixed to Firefox: Mac's CPT never assigns
	// Firefox any probability, so this combination is infeasible.
	ev := newEvidenceSet().
		set("os", map[string]bool{f.osTok["Mac"]: true}).
		set("browser", map[string]bool{f.browserTok["Firefox"]: true})

	err := f.network.CheckFeasibility(ev, BeamWidth)
	require.Error(t, err)
	var restrictive *RestrictiveConstraints
	assert.ErrorAs(t, err, &restrictive)
}

func TestCheckFeasibility_AcceptsConsistentFixedSiblings(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	ev := newEvidenceSet().
		set("os", map[string]bool{f.osTok["Mac"]: true}).
		set("browser", map[string]bool{f.browserTok["Safari"]: true})

	assert.NoError(t, f.network.CheckFeasibility(ev, BeamWidth))
}

func TestResolveRoot_StripsNestedPathSegments(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	root, nested, err := f.network.resolveRoot("window.outerwidth")
	require.NoError(t, err)
	assert.Equal(t, "window", root)
	assert.Equal(t, []string{"outerwidth"}, nested)
}
