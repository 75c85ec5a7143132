package fpgen

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMarginal_NoEvidenceSumsToOne(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	marginal, err := f.network.TraceMarginal("os", newEvidenceSet(), BeamWidth)
	require.NoError(t, err)

	var total float64
	for _, p := range marginal {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.InDelta(t, 0.7, marginal[f.osTok["Windows"]], 1e-9)
}

func TestTraceMarginal_ConditionsOnEvidence(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	ev := newEvidenceSet().set("os", map[string]bool{f.osTok["Mac"]: true})
	marginal, err := f.network.TraceMarginal("browser", ev, BeamWidth)
	require.NoError(t, err)

	assert.InDelta(t, 0.4, marginal[f.browserTok["Chrome"]], 1e-9)
	assert.InDelta(t, 0.6, marginal[f.browserTok["Safari"]], 1e-9)
	_, hasFirefox := marginal[f.browserTok["Firefox"]]
	assert.False(t, hasFirefox)
}

func TestTraceMarginal_UnknownNodeErrors(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	_, err := f.network.TraceMarginal("ghost", newEvidenceSet(), BeamWidth)
	assert.Error(t, err)
}

func TestTraceExact_MatchesBeamSearchOnSmallSpace(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)

	exact, err := f.network.TraceExact("browser", newEvidenceSet())
	require.NoError(t, err)
	beam, err := f.network.TraceMarginal("browser", newEvidenceSet(), BeamWidth)
	require.NoError(t, err)

	require.Len(t, exact, len(beam))
	for v, p := range beam {
		assert.InDelta(t, p, exact[v], 1e-9)
	}
}

func TestGenerateFull_ProducesConsistentSample(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)
	rng := rand.New(rand.NewSource(1))

	sample, err := f.network.GenerateFull(newEvidenceSet(), BeamWidth, rng)
	require.NoError(t, err)

	assert.Contains(t, sample, "os")
	assert.Contains(t, sample, "browser")
	assert.Contains(t, sample, "window")

	if sample["os"] == f.osTok["Windows"] {
		assert.Equal(t, f.windowTok["desktop"], sample["window"])
	}
}

func TestGenerateFull_RespectsEvidence(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)
	rng := rand.New(rand.NewSource(2))

	ev := newEvidenceSet().set("os", map[string]bool{f.osTok["Windows"]: true})
	for i := 0; i < 20; i++ {
		sample, err := f.network.GenerateFull(ev, BeamWidth, rng)
		require.NoError(t, err)
		assert.Equal(t, f.osTok["Windows"], sample["os"])
	}
}

func TestGenerateTargeted_OnlyIncludesAncestorsAndTarget(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)
	rng := rand.New(rand.NewSource(3))

	sample, err := f.network.GenerateTargeted([]string{"browser"}, newEvidenceSet(), BeamWidth, rng)
	require.NoError(t, err)

	assert.Contains(t, sample, "os")
	assert.Contains(t, sample, "browser")
	assert.NotContains(t, sample, "window")
}

func TestSampleValue_Deterministic(t *testing.T) {
	t.Parallel()
	f := buildTestNetwork(t)
	browserNode, _ := f.network.NodeByName("browser")

	dist := map[string]float64{
		f.browserTok["Chrome"]:  0.4,
		f.browserTok["Safari"]:  0.6,
	}
	rng1 := rand.New(rand.NewSource(42))
	rng2 := rand.New(rand.NewSource(42))
	v1 := sampleValue(browserNode, dist, rng1)
	v2 := sampleValue(browserNode, dist, rng2)
	assert.Equal(t, v1, v2)
}
