package feed

import (
	"errors"
	"fmt"

	"github.com/clbanning/mxj/v2"
)

func init() {
	// Merge attributes into their element's map, like the upstream feed
	// consumers do, so created_at on <property> reads as a plain key.
	mxj.PrependAttrWithHyphen(false)
}

// Parse converts a raw feed document into its ordered list of listing
// records. The listing container may hold a single record or a list; when
// the expected list/property nesting is absent, nested containers are
// searched for the first slice whose elements look like listing records.
// Any failure here aborts the whole run: a feed we cannot read must never
// feed the reconciliation diff.
func Parse(data []byte) ([]RawRecord, error) {
	m, err := mxj.NewMapXml(data)
	if err != nil {
		return nil, fmt.Errorf("parse feed xml: %w", err)
	}

	root := map[string]any(m)
	if list, ok := root["list"].(map[string]any); ok {
		if v, ok := list["property"]; ok {
			if records := recordsFrom(v); records != nil {
				return records, nil
			}
		}
	}

	if records := findRecords(root); records != nil {
		return records, nil
	}
	return nil, errors.New("no listing records found in feed document")
}

// CollectIDs returns the identifier set of the given records. Duplicates
// collapse; blank ids are dropped.
func CollectIDs(records []RawRecord) map[string]struct{} {
	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		if id := r.ID(); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}

func recordsFrom(v any) []RawRecord {
	switch t := v.(type) {
	case []any:
		out := make([]RawRecord, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, RawRecord(m))
			}
		}
		if len(out) > 0 {
			return out
		}
	case map[string]any:
		return []RawRecord{RawRecord(t)}
	}
	return nil
}

func findRecords(obj map[string]any) []RawRecord {
	for _, v := range obj {
		if slice, ok := v.([]any); ok && len(slice) > 0 {
			if first, ok := slice[0].(map[string]any); ok && looksLikeRecord(first) {
				return recordsFrom(slice)
			}
			continue
		}
		if child, ok := v.(map[string]any); ok {
			if looksLikeRecord(child) {
				return []RawRecord{RawRecord(child)}
			}
			if found := findRecords(child); found != nil {
				return found
			}
		}
	}
	return nil
}

func looksLikeRecord(m map[string]any) bool {
	if _, ok := m["general_listing_information"]; ok {
		return true
	}
	_, ok := m["Id"]
	return ok
}
