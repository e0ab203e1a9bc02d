package paths

import (
	"regexp"
	"sort"

	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/modality"
)

// Write pairs a path with its new value; a nil Value removes the path.
type Write struct {
	Path  string
	Value []byte
}

// Store operates one paths collection.
type Store struct {
	Accessor   modality.Accessor
	Collection kv.Handle
}

// Write hashes each path, groups writes by bucket, and splices each
// bucket's entries in one read-modify-write.
func (s *Store) Write(writes []Write) error {
	byBucket := map[kv.Key][]Write{}
	var bucketKeys []kv.Key
	for _, w := range writes {
		h := Hash(w.Path)
		if _, ok := byBucket[h]; !ok {
			bucketKeys = append(bucketKeys, h)
		}
		byBucket[h] = append(byBucket[h], w)
	}

	current, err := s.Accessor.Read(s.Collection, bucketKeys)
	if err != nil {
		return err
	}
	existing := make(map[kv.Key][]byte, len(current))
	for _, ent := range current {
		if ent.Present {
			existing[ent.Key] = ent.Value
		}
	}

	var out []kv.Write
	for _, bucketKey := range bucketKeys {
		entries := decodeBucket(existing[bucketKey])
		for _, w := range byBucket[bucketKey] {
			entries = spliceEntry(entries, w.Path, w.Value)
		}
		if len(entries) == 0 {
			out = append(out, kv.Write{Key: bucketKey, Value: nil})
			continue
		}
		out = append(out, kv.Write{Key: bucketKey, Value: encodeBucket(entries)})
	}
	return s.Accessor.Write(s.Collection, out)
}

func spliceEntry(entries []entry, path string, value []byte) []entry {
	for i, e := range entries {
		if e.path == path {
			if value == nil {
				return append(entries[:i], entries[i+1:]...)
			}
			entries[i].value = value
			return entries
		}
	}
	if value == nil {
		return entries
	}
	return append(entries, entry{path: path, value: value})
}

// Read resolves each path's value via its bucket, or nil if absent.
func (s *Store) Read(paths []string) ([][]byte, error) {
	keys := make([]kv.Key, len(paths))
	for i, p := range paths {
		keys[i] = Hash(p)
	}
	entries, err := s.Accessor.Read(s.Collection, keys)
	if err != nil {
		return nil, err
	}
	byKey := make(map[kv.Key][]byte, len(entries))
	for _, ent := range entries {
		if ent.Present {
			byKey[ent.Key] = ent.Value
		}
	}

	out := make([][]byte, len(paths))
	for i, p := range paths {
		bucket := decodeBucket(byKey[keys[i]])
		for _, e := range bucket {
			if e.path == p {
				out[i] = e.value
				break
			}
		}
	}
	return out, nil
}

// isPrefixPattern reports whether pattern contains no regex metacharacters,
// in which case match treats it as a plain string prefix.
func isPrefixPattern(pattern string) bool {
	const meta = `\.+*?()|[]{}^$`
	for _, r := range pattern {
		for _, m := range meta {
			if r == m {
				return false
			}
		}
	}
	return true
}

// Match scans the collection's buckets (up to 1<<20 of them) from the
// lowest key, collecting every stored path matching any of patterns, sorts
// the matches lexicographically, and returns up to limit of those that sort
// after previous
// (resolving the hash-order-vs-lexicographic open question in favor of
// sorting collected candidates before pagination).
func (s *Store) Match(engine *kv.Engine, collection kv.Handle, patterns []string, previous string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, kv.ErrFullScanRejected
	}

	matchers := make([]func(string) bool, len(patterns))
	for i, p := range patterns {
		if isPrefixPattern(p) {
			prefix := p
			matchers[i] = func(path string) bool { return len(path) >= len(prefix) && path[:len(prefix)] == prefix }
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		matchers[i] = re.MatchString
	}

	start := kv.KeyUnknown + 1
	keys, err := engine.Scan(collection, start, 1<<20, engine.Generation())
	if err != nil {
		return nil, err
	}
	entries, err := s.Accessor.Read(collection, keys)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, ent := range entries {
		if !ent.Present {
			continue
		}
		for _, e := range decodeBucket(ent.Value) {
			for _, m := range matchers {
				if m(e.path) {
					candidates = append(candidates, e.path)
					break
				}
			}
		}
	}
	sort.Strings(candidates)

	startIdx := 0
	if previous != "" {
		startIdx = sort.SearchStrings(candidates, previous)
		if startIdx < len(candidates) && candidates[startIdx] == previous {
			startIdx++
		}
	}
	end := startIdx + limit
	if end > len(candidates) {
		end = len(candidates)
	}
	if startIdx > end {
		return nil, nil
	}
	return candidates[startIdx:end], nil
}
