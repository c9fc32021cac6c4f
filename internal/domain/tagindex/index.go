// Package tagindex maintains the bidirectional tag-facet/result index used
// for hover cross-highlighting.
package tagindex

import (
	"sort"
	"sync"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
)

// Index maps tag keys to result-id sets and back. It is rebuilt wholesale on
// session reset and extended incrementally as tag batches arrive. Reads may
// come from outside the fetch path, so the index carries its own lock.
type Index struct {
	mu       sync.RWMutex
	byKey    map[booru.TagKey]map[int]struct{}
	keysByID map[int]map[booru.TagKey]struct{}
	labels   map[booru.TagKey]string

	litCards map[int]struct{}
	litKeys  map[booru.TagKey]struct{}
}

// New creates an empty index.
func New() *Index {
	x := &Index{}
	x.resetLocked()
	return x
}

func (x *Index) resetLocked() {
	x.byKey = make(map[booru.TagKey]map[int]struct{})
	x.keysByID = make(map[int]map[booru.TagKey]struct{})
	x.labels = make(map[booru.TagKey]string)
	x.litCards = make(map[int]struct{})
	x.litKeys = make(map[booru.TagKey]struct{})
}

// Rebuild clears both directions and repopulates them from scratch.
func (x *Index) Rebuild(tagsByID map[int][]booru.Tag) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.resetLocked()
	for id, tags := range tagsByID {
		x.extendLocked(id, tags)
	}
}

// Extend replaces the result's key memberships with the given tags. A result
// is never left indexed under a tag it no longer has.
func (x *Index) Extend(id int, tags []booru.Tag) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.extendLocked(id, tags)
}

func (x *Index) extendLocked(id int, tags []booru.Tag) {
	for key := range x.keysByID[id] {
		delete(x.byKey[key], id)
		if len(x.byKey[key]) == 0 {
			delete(x.byKey, key)
			delete(x.labels, key)
		}
	}
	keys := make(map[booru.TagKey]struct{}, len(tags))
	for _, t := range tags {
		key := t.Key()
		if key.Norm == "" {
			continue
		}
		keys[key] = struct{}{}
		ids := x.byKey[key]
		if ids == nil {
			ids = make(map[int]struct{})
			x.byKey[key] = ids
		}
		ids[id] = struct{}{}
		if _, seen := x.labels[key]; !seen {
			label := t.Label
			if label == "" {
				label = t.Norm
			}
			x.labels[key] = label
		}
	}
	x.keysByID[id] = keys
}

// IDsFor returns the sorted ids carrying the given tag key.
func (x *Index) IDsFor(key booru.TagKey) []int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]int, 0, len(x.byKey[key]))
	for id := range x.byKey[key] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// KeysFor returns the tag keys of one result.
func (x *Index) KeysFor(id int) []booru.TagKey {
	x.mu.RLock()
	defer x.mu.RUnlock()
	keys := make([]booru.TagKey, 0, len(x.keysByID[id]))
	for key := range x.keysByID[id] {
		keys = append(keys, key)
	}
	return keys
}

// Facets aggregates frequency per tag key across all indexed results, in the
// service's facet order.
func (x *Index) Facets() []booru.FacetEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	facets := make([]booru.FacetEntry, 0, len(x.byKey))
	for key, ids := range x.byKey {
		facets = append(facets, booru.FacetEntry{
			Label: x.labels[key],
			Norm:  key.Norm,
			Kind:  key.Kind,
			Freq:  len(ids),
		})
	}
	booru.SortFacets(facets)
	return facets
}

// HighlightCard lights up the card and every facet it carries. Previous
// highlight marks are cleared first so stale marks cannot survive rapid
// hover changes.
func (x *Index) HighlightCard(id int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.clearLocked()
	x.litCards[id] = struct{}{}
	for key := range x.keysByID[id] {
		x.litKeys[key] = struct{}{}
	}
}

// HighlightFacet lights up the facet and every card carrying it.
func (x *Index) HighlightFacet(key booru.TagKey) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.clearLocked()
	x.litKeys[key] = struct{}{}
	for id := range x.byKey[key] {
		x.litCards[id] = struct{}{}
	}
}

// ClearHighlight removes every highlight mark from both directions.
func (x *Index) ClearHighlight() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.clearLocked()
}

func (x *Index) clearLocked() {
	x.litCards = make(map[int]struct{})
	x.litKeys = make(map[booru.TagKey]struct{})
}

// CardHighlighted reports whether a card is lit.
func (x *Index) CardHighlighted(id int) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.litCards[id]
	return ok
}

// KeyHighlighted reports whether a facet is lit.
func (x *Index) KeyHighlighted(key booru.TagKey) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.litKeys[key]
	return ok
}

// HighlightedKeys returns the lit facet keys.
func (x *Index) HighlightedKeys() []booru.TagKey {
	x.mu.RLock()
	defer x.mu.RUnlock()
	keys := make([]booru.TagKey, 0, len(x.litKeys))
	for key := range x.litKeys {
		keys = append(keys, key)
	}
	return keys
}

// HighlightedCards returns the lit card ids, sorted.
func (x *Index) HighlightedCards() []int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]int, 0, len(x.litCards))
	for id := range x.litCards {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
