// Package values implements the out-of-band value dictionary: possible
// node values are held once in a data file and dereferenced from the
// network by short base-85 index tokens (component A of the design).
package values

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

type entry struct {
	Offset uint64
	Length int
}

// Store is a random-access dictionary from value-index token to the
// UTF-8 JSON-encoded value string it addresses.
type Store struct {
	entries []entry
	datPath string // set when the data file is read per-lookup (plain file)
	data    []byte // set when the data file was fully decompressed into memory
}

// Open builds a Store from a values.json index file and its companion
// values.dat (or values.dat.zst) data file. jsonPath may itself end in
// ".zst".
func Open(jsonPath, datPath string) (*Store, error) {
	entries, err := loadIndex(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("load value index %q: %w", jsonPath, err)
	}

	s := &Store{entries: entries}
	if strings.HasSuffix(datPath, ".zst") {
		data, err := decompressWhole(datPath)
		if err != nil {
			return nil, fmt.Errorf("decompress value data %q: %w", datPath, err)
		}
		s.data = data
	} else {
		if _, err := os.Stat(datPath); err != nil {
			return nil, fmt.Errorf("value data file %q: %w", datPath, err)
		}
		s.datPath = datPath
	}
	return s, nil
}

// loadIndex parses values.json preserving key insertion order: the
// integer index a token decodes to is the position of its entry in the
// file, not anything derivable from the key string itself, so a plain
// map[string]T unmarshal (which loses order) cannot be used here.
func loadIndex(path string) ([]entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}

	dec := json.NewDecoder(r)
	if t, err := dec.Token(); err != nil || t != json.Delim('{') {
		return nil, fmt.Errorf("expected JSON object at %q", path)
	}

	var entries []entry
	for dec.More() {
		// key token (the token string itself isn't needed; order is)
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var pair [2]any
		if err := dec.Decode(&pair); err != nil {
			return nil, fmt.Errorf("decode value index entry: %w", err)
		}
		offsetHex, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("value index entry: offset is not a string")
		}
		length, ok := pair[1].(float64)
		if !ok {
			return nil, fmt.Errorf("value index entry: length is not a number")
		}
		offset, err := parseHexUint(offsetHex)
		if err != nil {
			return nil, fmt.Errorf("value index entry offset %q: %w", offsetHex, err)
		}
		entries = append(entries, entry{Offset: offset, Length: int(length)})
	}
	return entries, nil
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	var n uint64
	if _, err := fmt.Sscanf(s, "%x", &n); err != nil {
		return 0, err
	}
	return n, nil
}

func decompressWhole(path string) ([]byte, error) {
	start := time.Now()

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

	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}

	fmt.Printf("Decompressed %s (%d bytes) in %s\n", path, len(out), time.Since(start))
	return out, nil
}

func (s *Store) resolve(idx uint64) (entry, error) {
	if idx >= uint64(len(s.entries)) {
		return entry{}, fmt.Errorf("value index %d out of range (have %d entries)", idx, len(s.entries))
	}
	return s.entries[idx], nil
}

// Lookup decodes a single value-index token and returns the JSON value
// string it addresses.
func (s *Store) Lookup(token string) (string, error) {
	idx, err := DecodeToken(token)
	if err != nil {
		return "", err
	}
	e, err := s.resolve(idx)
	if err != nil {
		return "", err
	}
	return s.read(e)
}

func (s *Store) read(e entry) (string, error) {
	if s.data != nil {
		if e.Offset+uint64(e.Length) > uint64(len(s.data)) {
			return "", fmt.Errorf("value entry out of bounds of decompressed data")
		}
		return string(s.data[e.Offset : e.Offset+uint64(e.Length)]), nil
	}

	f, err := os.Open(s.datPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, e.Length)
	if _, err := f.ReadAt(buf, int64(e.Offset)); err != nil {
		return "", fmt.Errorf("read value at offset %d: %w", e.Offset, err)
	}
	return string(buf), nil
}

// LookupMany batch-decodes tokens, sorting by the decoded integer so
// on-disk reads proceed in a single forward pass, then returns the
// results in the caller's original order. The file handle (when reading
// from a plain, uncompressed data file) is opened once and released
// before this call returns.
func (s *Store) LookupMany(tokens []string) ([]string, error) {
	type job struct {
		origPos int
		idx     uint64
		e       entry
	}
	jobs := make([]job, len(tokens))
	for i, tok := range tokens {
		idx, err := DecodeToken(tok)
		if err != nil {
			return nil, err
		}
		e, err := s.resolve(idx)
		if err != nil {
			return nil, err
		}
		jobs[i] = job{origPos: i, idx: idx, e: e}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].idx < jobs[j].idx })

	results := make([]string, len(tokens))

	if s.data != nil {
		for _, j := range jobs {
			v, err := s.read(j.e)
			if err != nil {
				return nil, err
			}
			results[j.origPos] = v
		}
		return results, nil
	}

	f, err := os.Open(s.datPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, j := range jobs {
		if _, err := f.Seek(int64(j.e.Offset), io.SeekStart); err != nil {
			return nil, err
		}
		buf := make([]byte, j.e.Length)
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("read value at offset %d: %w", j.e.Offset, err)
		}
		results[j.origPos] = string(buf)
	}
	return results, nil
}

// Len reports how many values the store can address.
func (s *Store) Len() int { return len(s.entries) }
