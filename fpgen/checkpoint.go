package fpgen

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/scrapfly/fpgen-go/fpgen/values"
)

// networkCacheData holds only the parsed, gob-encodable parts of a
// Network. The case-insensitive lookup maps and ancestor cache are
// unexported and rebuilt after loading, the same way the teacher's
// checkpoint.go re-links Config pointers after decoding.
type networkCacheData struct {
	Nodes []*Node
}

// SaveCache persists the parsed node list to a gzip-compressed gob file,
// so repeated process starts can skip re-parsing and re-validating
// fingerprint-network.json. Grounded on neat/checkpoint.go's
// SaveCheckpoint.
func (n *Network) SaveCache(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create network cache file '%s': %w", path, err)
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	defer gzWriter.Close()

	gob.Register(map[string]any{})
	gob.Register([]any{})

	encoder := gob.NewEncoder(gzWriter)
	if err := encoder.Encode(networkCacheData{Nodes: n.Nodes}); err != nil {
		return fmt.Errorf("failed to encode network cache: %w", err)
	}

	fmt.Printf("Network cache saved to %s\n", path)
	return nil
}

// LoadNetworkCache loads a Network previously saved with SaveCache,
// re-attaching the given value store and rebuilding the case-insensitive
// lookup indexes and ancestor cache from scratch (grounded on
// neat/checkpoint.go's LoadCheckpoint).
func LoadNetworkCache(path string, store *values.Store) (*Network, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open network cache file '%s': %w", path, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for network cache: %w", err)
	}
	defer gzReader.Close()

	gob.Register(map[string]any{})
	gob.Register([]any{})

	var data networkCacheData
	decoder := gob.NewDecoder(gzReader)
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode network cache: %w", err)
	}

	net, err := rebuildNetwork(data.Nodes, store)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild network from cache: %w", err)
	}

	fmt.Printf("Network cache loaded from %s (%d nodes)\n", path, len(net.Nodes))
	return net, nil
}
