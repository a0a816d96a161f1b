package voices

import (
	"slices"
	"strings"
)

// Entry is a voice label detected on a page, as exchanged with clients.
// Page is 1-based.
type Entry struct {
	Page  int    `json:"page"`
	Voice string `json:"voice"`
}

// Marker marks the first page of a voice. Page is 0-based.
type Marker struct {
	Page  int
	Label string
}

// Range is the 0-based inclusive page span of one voice.
type Range struct {
	Start int    `json:"start_page"`
	End   int    `json:"end_page"`
	Label string `json:"label"`
}

// PageCount is the number of pages the range covers.
func (r Range) PageCount() int { return r.End - r.Start + 1 }

// Bounds clamps the range to a document of n pages and returns the
// half-open slice bounds. ok is false when nothing remains.
func (r Range) Bounds(n int) (lo, hi int, ok bool) {
	lo = max(r.Start, 0)
	hi = min(r.End+1, n)
	if lo >= hi {
		return 0, 0, false
	}
	return lo, hi, true
}

// Override forces the page span when exactly one voice is given. 0-based.
type Override struct {
	Start int
	End   int
}

// OverrideFromPages converts 1-based client page numbers. Both must be set.
func OverrideFromPages(start, end *int) *Override {
	if start == nil || end == nil {
		return nil
	}
	return &Override{Start: *start - 1, End: *end - 1}
}

// MarkersFromEntries converts client entries to 0-based markers.
func MarkersFromEntries(entries []Entry) []Marker {
	markers := make([]Marker, len(entries))
	for i, e := range entries {
		markers[i] = Marker{Page: e.Page - 1, Label: e.Voice}
	}
	return markers
}

// Segment turns voice markers into consecutive page ranges of a document
// with numPages pages. Markers with a blank label are ignored. Each voice
// runs until the page before the next one; the last runs to the end. Pages
// before the first marker belong to no voice.
func Segment(markers []Marker, numPages int, override *Override) []Range {
	var kept []Marker
	for _, m := range markers {
		label := strings.TrimSpace(m.Label)
		if label == "" {
			continue
		}
		kept = append(kept, Marker{Page: m.Page, Label: label})
	}
	slices.SortStableFunc(kept, func(a, b Marker) int { return a.Page - b.Page })

	if len(kept) == 1 && override != nil {
		return []Range{{Start: override.Start, End: override.End, Label: kept[0].Label}}
	}

	ranges := make([]Range, 0, len(kept))
	for i, m := range kept {
		end := numPages - 1
		if i+1 < len(kept) {
			end = kept[i+1].Page - 1
		}
		ranges = append(ranges, Range{Start: m.Page, End: end, Label: m.Label})
	}
	return ranges
}
