// Package session owns the ordered result window of one search session.
package session

import (
	"errors"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
)

// ErrFetchInFlight is returned by BeginFetch while a page fetch is already
// outstanding. The loading flag is the single admission-control gate for
// network work: at most one page request exists at any time.
var ErrFetchInFlight = errors.New("session: a page fetch is already in flight")

// Session holds the results the service has returned so far for one query,
// in arrival order, together with the id->position map and per-result tags.
// Reset recreates it for a new query; AppendPage extends it in place.
type Session struct {
	query    string
	results  []booru.Result
	position map[int]int
	tags     map[int][]booru.Tag
	total    int
	loading  bool
	done     bool
}

// New creates an empty session.
func New() *Session {
	s := &Session{}
	s.Reset("")
	return s
}

// Reset clears results, tags, and total for a new query and marks the
// session not done.
func (s *Session) Reset(query string) {
	s.query = query
	s.results = nil
	s.position = make(map[int]int)
	s.tags = make(map[int][]booru.Tag)
	s.total = 0
	s.done = false
}

// BeginFetch claims the loading gate.
func (s *Session) BeginFetch() error {
	if s.loading {
		return ErrFetchInFlight
	}
	s.loading = true
	return nil
}

// EndFetch releases the loading gate.
func (s *Session) EndFetch() { s.loading = false }

// AppendPage appends items in arrival order, assigns positions, updates the
// authoritative total, and recomputes done. Items whose id is already present
// are a caller bug; they are dropped so the position map stays well defined.
// Returns the number of items actually appended.
func (s *Session) AppendPage(items []booru.Result, total int) int {
	appended := 0
	for _, r := range items {
		if _, exists := s.position[r.ID]; exists {
			continue
		}
		s.position[r.ID] = len(s.results)
		s.results = append(s.results, r)
		appended++
	}
	s.total = total
	s.done = len(s.results) >= s.total
	return appended
}

// SetTags records the tag list for an already-loaded result. Unknown ids are
// ignored: a tag batch may land after the session was reset under it.
func (s *Session) SetTags(id int, tags []booru.Tag) {
	if _, ok := s.position[id]; !ok {
		return
	}
	s.tags[id] = tags
}

// Query returns the active query text.
func (s *Session) Query() string { return s.query }

// Len returns the number of loaded results.
func (s *Session) Len() int { return len(s.results) }

// Total returns the service-reported total for the active query.
func (s *Session) Total() int { return s.total }

// Loading reports whether a page fetch is outstanding.
func (s *Session) Loading() bool { return s.loading }

// Done reports whether every result the service knows about is loaded.
func (s *Session) Done() bool { return s.done }

// At returns the result at position i.
func (s *Session) At(i int) (booru.Result, bool) {
	if i < 0 || i >= len(s.results) {
		return booru.Result{}, false
	}
	return s.results[i], true
}

// PositionOf returns the position of the result with the given id.
func (s *Session) PositionOf(id int) (int, bool) {
	pos, ok := s.position[id]
	return pos, ok
}

// TagsOf returns the cached tags for a result id.
func (s *Session) TagsOf(id int) []booru.Tag { return s.tags[id] }

// Results returns the loaded window in arrival order. The slice is shared;
// callers must not mutate it.
func (s *Session) Results() []booru.Result { return s.results }

// TagsByID returns the full per-result tag cache. Shared, read-only.
func (s *Session) TagsByID() map[int][]booru.Tag { return s.tags }
