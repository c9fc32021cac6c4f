// Package booru holds the value types exchanged with the localbooru API.
package booru

import "sort"

// Result is one image row as the service returns it. Identity is ID;
// ordering inside a session is arrival order, not anything in here.
type Result struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	FileURL     string  `json:"file_url"`
	ThumbURL    string  `json:"thumb_url"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Model       string  `json:"model"`
	Description string  `json:"description"`
	Score       float64 `json:"score,omitempty"` // similarity score, probe results only
}

// TagKind classifies where a tag came from in the generation prompt.
type TagKind string

// Known tag kinds.
const (
	KindPrompt    TagKind = "prompt"
	KindNegative  TagKind = "negative"
	KindCharacter TagKind = "character"
)

// Tag is a single prompt tag attached to a result.
type Tag struct {
	Label    string  `json:"tag"`
	Norm     string  `json:"norm"`
	Kind     TagKind `json:"kind"`
	Emphasis string  `json:"emphasis"`
	Weight   float64 `json:"weight"`
}

// TagKey is the dedup identity of a tag: same normalized text under a
// different kind is a different tag.
type TagKey struct {
	Kind TagKind
	Norm string
}

// Key returns the tag's dedup identity.
func (t Tag) Key() TagKey { return TagKey{Kind: t.Kind, Norm: t.Norm} }

// FacetEntry is a tag aggregated with its frequency across a result window.
type FacetEntry struct {
	Label string  `json:"tag"`
	Norm  string  `json:"norm"`
	Kind  TagKind `json:"kind"`
	Freq  int     `json:"freq"`
}

// Key returns the facet's dedup identity.
func (f FacetEntry) Key() TagKey { return TagKey{Kind: f.Kind, Norm: f.Norm} }

// kindRank orders facet groups: prompt first, characters next, the rest after.
func kindRank(k TagKind) int {
	switch k {
	case KindPrompt:
		return 0
	case KindCharacter:
		return 1
	default:
		return 2
	}
}

// SortFacets orders facets by (kind rank, frequency desc, label asc), the
// order the service itself uses for facet summaries.
func SortFacets(facets []FacetEntry) {
	sort.SliceStable(facets, func(i, j int) bool {
		a, b := facets[i], facets[j]
		if ra, rb := kindRank(a.Kind), kindRank(b.Kind); ra != rb {
			return ra < rb
		}
		if a.Freq != b.Freq {
			return a.Freq > b.Freq
		}
		return a.Label < b.Label
	})
}

// Completion is one ranked tag-completion candidate.
type Completion struct {
	Label string  `json:"tag"`
	Kind  TagKind `json:"kind"`
	Freq  int     `json:"freq"`
}

// Page is one page of a tag-filtered listing response.
type Page struct {
	Images   []Result
	Total    int
	TagsByID map[int][]Tag
	Facets   []FacetEntry
}

// ClipQuery is the payload of a semantic probe request. At most one of
// Query, PositiveImages, PositiveVector carries the probe itself; TagQuery
// is an optional tag-filter refinement.
type ClipQuery struct {
	Query          string
	PositiveImages []int
	NegativeImages []int
	PositiveVector []float32
	TagQuery       string
	Limit          int
	Offset         int
	IncludeTags    bool
}

// ClipPage is one page of a semantic probe response.
type ClipPage struct {
	Results  []Result
	Total    int
	Offset   int
	Limit    int
	TagsByID map[int][]Tag
	Facets   []FacetEntry
}

// ClipStatus reports the state of the service's embedding index.
type ClipStatus struct {
	Enabled   bool   `json:"enabled"`
	State     string `json:"state"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}
