package fpgen

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrapfly/fpgen-go/fpgen/values"
)

// tokenAlphabet mirrors the alphabet used by the values package; fixture
// tokens just need to decode to the intended sequential index, not match
// any real production token.
const tokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz!#$%&()*+-;<=>?@^_`{|}~"

func tokenFor(i int) string {
	return string([]byte{'0', '0', '0', '0', tokenAlphabet[i]})
}

func hexOffset(n uint64) string {
	const hexDigits = "0123456789abcdef"
	if n == 0 {
		return "0x0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{hexDigits[n%16]}, b...)
		n /= 16
	}
	return "0x" + string(b)
}

// newTestStore writes a values.json/values.dat pair addressing the given
// already-JSON-encoded value strings, in order, and returns the opened
// Store plus the token for each input index.
func newTestStore(t *testing.T, encodedValues []string) (*values.Store, []string) {
	t.Helper()

	dir := t.TempDir()
	datPath := filepath.Join(dir, "values.dat")
	jsonPath := filepath.Join(dir, "values.json")

	dat, err := os.Create(datPath)
	require.NoError(t, err)
	defer dat.Close()

	index := make(map[string][2]any, len(encodedValues))
	tokens := make([]string, len(encodedValues))
	var offset uint64
	for i, v := range encodedValues {
		n, err := dat.WriteString(v)
		require.NoError(t, err)
		tok := tokenFor(i)
		tokens[i] = tok
		index[tok] = [2]any{hexOffset(offset), n}
		offset += uint64(n)
	}

	raw, err := json.Marshal(index)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(jsonPath, raw, 0o644))

	store, err := values.Open(jsonPath, datPath)
	require.NoError(t, err)
	return store, tokens
}

// testFixture is a tiny three-node network: os -> browser, os -> window.
// window's possible values are dicts with outerwidth/outerheight so
// WindowBounds filtering can be exercised.
type testFixture struct {
	network   *Network
	osTok     map[string]string // "Windows" -> token
	browserTok map[string]string
	windowTok map[string]string
}

func buildTestNetwork(t *testing.T) *testFixture {
	t.Helper()

	// Global value sequence: os values, then browser values, then window values.
	encoded := []string{
		`"Windows"`, `"Mac"`, // os: 0, 1
		`"Chrome"`, `"Firefox"`, `"Safari"`, // browser: 2, 3, 4
		`{"outerwidth":1920,"outerheight":1080}`, `{"outerwidth":375,"outerheight":667}`, // window: 5, 6
	}
	store, toks := newTestStore(t, encoded)

	osTok := map[string]string{"Windows": toks[0], "Mac": toks[1]}
	browserTok := map[string]string{"Chrome": toks[2], "Firefox": toks[3], "Safari": toks[4]}
	windowTok := map[string]string{"desktop": toks[5], "mobile": toks[6]}

	osNode := &Node{
		Name:           "os",
		PossibleValues: []string{osTok["Windows"], osTok["Mac"]},
		CPT: map[string]any{
			osTok["Windows"]: 0.7,
			osTok["Mac"]:     0.3,
		},
		Index: 0,
	}
	browserNode := &Node{
		Name:        "browser",
		ParentNames: []string{"os"},
		PossibleValues: []string{
			browserTok["Chrome"], browserTok["Firefox"], browserTok["Safari"],
		},
		CPT: map[string]any{
			osTok["Windows"]: map[string]any{
				browserTok["Chrome"]:  0.8,
				browserTok["Firefox"]: 0.2,
			},
			osTok["Mac"]: map[string]any{
				browserTok["Chrome"]:  0.4,
				browserTok["Safari"]:  0.6,
			},
		},
		Index: 1,
	}
	windowNode := &Node{
		Name:           "window",
		ParentNames:    []string{"os"},
		PossibleValues: []string{windowTok["desktop"], windowTok["mobile"]},
		CPT: map[string]any{
			osTok["Windows"]: map[string]any{
				windowTok["desktop"]: 1.0,
			},
			osTok["Mac"]: map[string]any{
				windowTok["desktop"]: 0.5,
				windowTok["mobile"]:  0.5,
			},
		},
		Index: 2,
	}

	net, err := rebuildNetwork([]*Node{osNode, browserNode, windowNode}, store)
	require.NoError(t, err)

	return &testFixture{network: net, osTok: osTok, browserTok: browserTok, windowTok: windowTok}
}
