// Package fpgen generates and inspects realistic browser fingerprints
// using a Bayesian network learned from real browser traffic.
//
// The network is a DAG of discrete nodes; each node's conditional
// probability table (CPT) is compressed as a nested map keyed by parent
// value, with a "null" fallback key for combinations not seen during
// training. Values themselves are out-of-band: a node's possible values
// are base85 tokens that dereference entries in an accompanying value
// store (see the values subpackage), so the network file stays small
// even though individual field values (user agent strings, canvas
// hashes, font lists) can be large.
//
// Basic usage:
//
//	store, err := values.Open("values.json", "values.dat")
//	if err != nil {
//		log.Fatalf("Error opening value store: %v", err)
//	}
//
//	network, err := fpgen.LoadNetwork("fingerprint-network.json", store)
//	if err != nil {
//		log.Fatalf("Error loading network: %v", err)
//	}
//
//	gen, err := fpgen.NewGenerator(network, map[string]any{"os": "Windows"}, nil, true, false)
//	if err != nil {
//		log.Fatalf("Error creating generator: %v", err)
//	}
//
//	fp, err := gen.Generate(nil, nil)
//	if err != nil {
//		log.Fatalf("Error generating fingerprint: %v", err)
//	}
//
// Generate produces a full, internally consistent sample; Trace computes
// a marginal distribution over a target node's values without sampling;
// Query enumerates a node's possible values directly from the network,
// without touching the CPTs at all.
package fpgen
