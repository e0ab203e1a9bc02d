package docs

import (
	"sort"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/unum-cloud/ukvdb/pkg/kv"
)

func fieldAt(doc []byte, path string) gjson.Result {
	return gjson.GetBytes(doc, toGJSONPath(path))
}

// Read performs a whole-document or field read for each key, returning the
// raw canonical-JSON bytes for each present value (nil when absent, or when
// the key exists but Path doesn't resolve to anything).
func (s *Store) Read(keys []kv.Key, path string) ([][]byte, error) {
	entries, err := s.Accessor.Read(s.Collection, keys)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(entries))
	for i, ent := range entries {
		if !ent.Present {
			continue
		}
		if path == "" {
			out[i] = ent.Value
			continue
		}
		field := fieldAt(ent.Value, path)
		if field.Exists() {
			out[i] = []byte(field.Raw)
		}
	}
	return out, nil
}

// Gist enumerates every distinct leaf JSON-Pointer path present across the
// given documents, deduplicated and lexicographically sorted.
func (s *Store) Gist(keys []kv.Key) ([]string, error) {
	entries, err := s.Accessor.Read(s.Collection, keys)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, ent := range entries {
		if !ent.Present {
			continue
		}
		collectLeafPaths(gjson.ParseBytes(ent.Value), "", seen)
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func collectLeafPaths(value gjson.Result, prefix string, out map[string]struct{}) {
	switch {
	case value.IsObject():
		value.ForEach(func(key, val gjson.Result) bool {
			collectLeafPaths(val, prefix+"/"+jsonPointerEscape(key.String()), out)
			return true
		})
	case value.IsArray():
		i := 0
		value.ForEach(func(_, val gjson.Result) bool {
			collectLeafPaths(val, prefix+"/"+strconv.Itoa(i), out)
			i++
			return true
		})
	default:
		out[prefix] = struct{}{}
	}
}

func jsonPointerEscape(segment string) string {
	out := make([]byte, 0, len(segment))
	for i := 0; i < len(segment); i++ {
		switch segment[i] {
		case '~':
			out = append(out, '~', '0')
		case '/':
			out = append(out, '~', '1')
		default:
			out = append(out, segment[i])
		}
	}
	return string(out)
}
