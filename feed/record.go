package feed

import "strings"

// RawRecord is one listing as decoded from the feed document: an untyped
// tree of maps, slices and strings. It is transient; the normalizer turns
// it into a models.Listing and nothing downstream sees it.
type RawRecord map[string]any

// Value returns the raw value at the given key path, or nil.
func (r RawRecord) Value(path ...string) any {
	var cur any = map[string]any(r)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[key]
		if !ok {
			return nil
		}
	}
	return cur
}

// Map returns the nested record at the given path, or an empty one.
func (r RawRecord) Map(path ...string) RawRecord {
	if m, ok := r.Value(path...).(map[string]any); ok {
		return RawRecord(m)
	}
	return RawRecord{}
}

// Str returns the trimmed string at the given path. Elements that carried
// XML attributes decode as a map with their text under "#text"; Str
// unwraps that shape transparently.
func (r RawRecord) Str(path ...string) string {
	return textOf(r.Value(path...))
}

// ID returns the listing's external identifier. The feed has shipped it
// both capitalized and lowercased.
func (r RawRecord) ID() string {
	if id := r.Str("Id"); id != "" {
		return id
	}
	return r.Str("id")
}

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if s, ok := t["#text"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
