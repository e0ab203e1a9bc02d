package docs

import "strings"

// toGJSONPath converts an RFC 6901 JSON-Pointer ("/user/friends/0/name")
// into the dot-path syntax gjson/sjson expect ("user.friends.0.name"),
// undoing the pointer's "~1"/"~0" escaping along the way.
func toGJSONPath(pointer string) string {
	if pointer == "" {
		return ""
	}
	pointer = strings.TrimPrefix(pointer, "/")
	parts := strings.Split(pointer, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		// sjson/gjson use "." as the path separator and treat a literal "."
		// within a segment as needing escape.
		p = strings.ReplaceAll(p, ".", "\\.")
		parts[i] = p
	}
	return strings.Join(parts, ".")
}
