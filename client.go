// Package localbooru is a search-session engine for localbooru image
// galleries. It drives tag-filtered listing and semantic probe pagination
// against a running localbooru server, keeps navigation state (query, open
// detail item, scroll anchor, active probe) in sync with a browser-style
// history, and maintains the tag facet index used for cross-highlighting.
package localbooru

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
	"github.com/null-order/localbooru-sub000/internal/domain/navigation"
	"github.com/null-order/localbooru-sub000/internal/domain/probe"
	"github.com/null-order/localbooru-sub000/internal/domain/session"
	"github.com/null-order/localbooru-sub000/internal/domain/tagindex"
	"github.com/null-order/localbooru-sub000/internal/metrics"
	booruapi "github.com/null-order/localbooru-sub000/internal/repository/booru"
	"github.com/null-order/localbooru-sub000/internal/repository/tagcache"
	"github.com/null-order/localbooru-sub000/internal/usecase/anchor"
	"github.com/null-order/localbooru-sub000/internal/usecase/driver"
	"github.com/null-order/localbooru-sub000/internal/usecase/navigator"
	"github.com/null-order/localbooru-sub000/internal/usecase/suggest"
)

// Re-exported domain types, so callers never import internal packages.
type (
	// Result is one gallery image returned by the search service.
	Result = booru.Result
	// Tag is one structured tag attached to a result.
	Tag = booru.Tag
	// TagKind classifies tags into prompt, negative, and character.
	TagKind = booru.TagKind
	// TagKey identifies a tag across results.
	TagKey = booru.TagKey
	// Completion is one ranked tag-completion candidate.
	Completion = booru.Completion
	// FacetEntry is one aggregated facet row.
	FacetEntry = booru.FacetEntry
	// State is one committed navigation state.
	State = navigation.State
)

// NoDetail marks a navigation state with no open detail item.
const NoDetail = navigation.NoDetail

// ErrSemanticDisabled is returned by probe intents while the service's
// embedding index is unavailable.
var ErrSemanticDisabled = driver.ErrSemanticDisabled

// Engine ties the pagination driver, scroll anchoring, navigation history,
// tag facet index, and suggestion engine behind one facade. All methods are
// safe for concurrent use.
type Engine struct {
	logger  *zap.Logger
	api     *booruapi.Client
	cache   *tagcache.Store
	session *session.Session
	index   *tagindex.Index
	driver  *driver.Service
	anchor  *anchor.Service
	suggest *suggest.Service
	nav     *navigator.Service

	detailFunc func(id int, open bool)

	mu       sync.Mutex
	detailID int
}

// New creates an engine bound to one localbooru server.
func New(opts ...Option) (*Engine, error) {
	cfg := engineConfig{
		logger:    zap.NewNop(),
		viewport:  noopViewport{},
		stickyPad: 16,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.baseURL == "" {
		return nil, fmt.Errorf("localbooru: base URL is required")
	}

	metrics.Register()

	api, err := booruapi.NewClient(booruapi.Config{
		BaseURL:    cfg.baseURL,
		Timeout:    cfg.httpTimeout,
		Logger:     cfg.logger,
		HTTPClient: cfg.httpClient,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger:     cfg.logger,
		api:        api,
		session:    session.New(),
		index:      tagindex.New(),
		detailFunc: cfg.detailFunc,
		detailID:   NoDetail,
	}

	var tags driver.TagSource = api
	if len(cfg.cacheAddrs) > 0 {
		store, err := tagcache.NewStore(tagcache.StoreConfig{
			Addrs:    cfg.cacheAddrs,
			Password: cfg.cachePass,
		})
		if err != nil {
			return nil, err
		}
		ttl := cfg.cacheTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		e.cache = store
		tags = tagcache.New(api, store, ttl, metrics.TagCacheTotal, cfg.logger)
	}

	e.driver = driver.New(api, tags, e.session, e.index, cfg.logger).
		WithPageSize(cfg.pageSize).
		WithDebounce(cfg.debounce)
	if cfg.vectorizer != nil {
		e.driver.WithVectorizer(cfg.vectorizer)
	}

	e.anchor = anchor.New(e.driver, cfg.viewport, cfg.stickyPad, cfg.logger)
	e.suggest = suggest.New(api)
	e.nav = navigator.New(driverResetter{e.driver}, e.anchor, detailSink{e}, cfg.logger)
	e.driver.OnChange(e.syncNavigation)

	return e, nil
}

// Close releases resources held by the engine.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// --- search intents ---

// SetQuery starts a tag-filtered listing, discarding any active probe.
func (e *Engine) SetQuery(ctx context.Context, query string) error {
	return e.driver.SetQuery(ctx, query)
}

// NextPage loads the next page in the current mode. A no-op while a fetch is
// outstanding or the result set is exhausted.
func (e *Engine) NextPage(ctx context.Context) error {
	return e.driver.NextPage(ctx)
}

// ProbeText feeds one keystroke of the free-text probe field. The probe is
// submitted after the debounce interval elapses with no further input;
// clearing the field exits probe mode immediately.
func (e *Engine) ProbeText(ctx context.Context, text string) {
	e.driver.ProbeTextInput(ctx, text)
}

// SubmitProbeText starts a text probe immediately (Enter in the probe field).
func (e *Engine) SubmitProbeText(ctx context.Context, text string) error {
	return e.driver.SubmitProbeText(ctx, text)
}

// ProbeImage starts a similarity probe from a result already in the library.
// The current tag query is kept as a refinement. Optional negative reference
// ids push results away from them.
func (e *Engine) ProbeImage(ctx context.Context, id int, negatives ...int) error {
	p, err := probe.Image(id)
	if err != nil {
		return err
	}
	return e.driver.StartProbe(ctx, p, driver.ProbeOptions{
		TagQuery:       e.driver.Query(),
		NegativeImages: negatives,
	})
}

// ProbeUpload starts a similarity probe from an uploaded image. The probe is
// session-only: it paginates and refines normally but is never written to
// navigation state, so reloads fall back to the tag query.
func (e *Engine) ProbeUpload(ctx context.Context, filename string, file io.Reader) error {
	return e.driver.StartProbeUpload(ctx, filename, file, driver.ProbeOptions{
		TagQuery: e.driver.Query(),
	})
}

// ClearProbe exits probe mode and reverts to the filtered listing.
func (e *Engine) ClearProbe(ctx context.Context) error {
	return e.driver.ClearProbe(ctx)
}

// SemanticAvailable reports whether the service's embedding index is up.
func (e *Engine) SemanticAvailable(ctx context.Context) (bool, error) {
	return e.driver.SemanticAvailable(ctx)
}

// --- detail panel ---

// OpenDetail opens the detail panel on a result and records it in history.
func (e *Engine) OpenDetail(id int) {
	if id < 0 {
		return
	}
	e.applyDetail(id)
	st := e.nav.Current()
	st.DetailID = id
	e.nav.Commit(st, false)
}

// CloseDetail closes the detail panel and records the closure in history, so
// Back reopens the item that was open.
func (e *Engine) CloseDetail() {
	e.applyDetail(NoDetail)
	st := e.nav.Current()
	st.DetailID = NoDetail
	e.nav.Commit(st, false)
}

// DetailID returns the open detail item, NoDetail when the panel is closed.
func (e *Engine) DetailID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detailID
}

// applyDetail moves the panel without touching history. Both user intents and
// history restores land here, so the panel callback fires exactly once per
// actual transition.
func (e *Engine) applyDetail(id int) {
	e.mu.Lock()
	prev := e.detailID
	if prev == id {
		e.mu.Unlock()
		return
	}
	e.detailID = id
	fn := e.detailFunc
	e.mu.Unlock()

	if fn == nil {
		return
	}
	if id == NoDetail {
		fn(prev, false)
	} else {
		fn(id, true)
	}
}

// --- navigation ---

// SaveAnchor recomputes the scroll anchor from the current scroll offset and
// records it by replacing the current history entry. Saves are suppressed
// while a restore is pending so a transient mid-restore position cannot
// overwrite the anchor being restored.
func (e *Engine) SaveAnchor(scrollOffset int) {
	if e.anchor.Restoring() {
		return
	}
	a := e.anchor.ComputeAnchor(scrollOffset)
	st := e.nav.Current()
	if st.Anchor == a {
		return
	}
	st.Anchor = a
	e.nav.Commit(st, true)
}

// Back navigates one history entry back, re-fetching only what changed.
func (e *Engine) Back(ctx context.Context) error { return e.nav.Back(ctx) }

// Forward navigates one history entry forward.
func (e *Engine) Forward(ctx context.Context) error { return e.nav.Forward(ctx) }

// Location renders the current navigation state for the address bar.
func (e *Engine) Location() string { return e.nav.EncodeCurrent() }

// CurrentState returns the current navigation state.
func (e *Engine) CurrentState() State { return e.nav.Current() }

// Restore applies an address-bar query string (reload, shared link) as a
// fresh navigation: full fetch, then detail panel, then scroll anchor.
func (e *Engine) Restore(ctx context.Context, raw string) error {
	return e.nav.RestoreRaw(ctx, raw)
}

// syncNavigation pushes a history entry when the driver's query or probe
// token diverges from the committed state. Restores drive the driver through
// the navigator, which commits first, so only user-initiated searches land
// here with a divergence.
func (e *Engine) syncNavigation() {
	st := e.nav.Current()
	query := e.driver.Query()
	token, _ := e.driver.Token()
	if st.Query == query && st.ProbeToken == token {
		return
	}
	e.applyDetail(NoDetail)
	e.nav.Commit(State{
		Query:      query,
		DetailID:   NoDetail,
		Anchor:     0,
		ProbeToken: token,
	}, false)
}

// --- suggestions ---

// Suggest resolves completion candidates for the tag-query segment under
// edit. A nil, error-free return means lookup was suppressed.
func (e *Engine) Suggest(ctx context.Context, input string) ([]Completion, error) {
	return e.suggest.Suggest(ctx, input)
}

// ApplySuggestion replaces the trailing segment of input with the chosen
// completion, preserving earlier tokens and negation markers.
func (e *Engine) ApplySuggestion(input string, chosen Completion) string {
	return suggest.Apply(input, chosen)
}

// --- facets and highlighting ---

// FacetView is one facet row plus its highlight mark.
type FacetView struct {
	FacetEntry
	Highlighted bool
}

// Facets aggregates tag frequency across the loaded window, ordered the way
// the service orders facets.
func (e *Engine) Facets() []FacetView {
	entries := e.index.Facets()
	out := make([]FacetView, 0, len(entries))
	for _, f := range entries {
		out = append(out, FacetView{
			FacetEntry:  f,
			Highlighted: e.index.KeyHighlighted(TagKey{Kind: f.Kind, Norm: f.Norm}),
		})
	}
	return out
}

// HighlightCard lights up a card and every facet it carries.
func (e *Engine) HighlightCard(id int) { e.index.HighlightCard(id) }

// HighlightFacet lights up a facet and every card carrying it.
func (e *Engine) HighlightFacet(key TagKey) { e.index.HighlightFacet(key) }

// ClearHighlight removes all highlight marks.
func (e *Engine) ClearHighlight() { e.index.ClearHighlight() }

// --- snapshot ---

// Card is one rendered result: the image row, its tags, and its highlight.
type Card struct {
	Result
	Tags        []Tag
	Highlighted bool
}

// Snapshot is a render-ready view of the whole engine state.
type Snapshot struct {
	Mode       string
	Query      string
	ProbeToken string
	Status     string
	Total      int
	Done       bool
	Loading    bool
	DetailID   int
	Location   string
	Results    []Card
	Facets     []FacetView
}

// Snapshot captures the engine state for rendering. The result window and
// facet list are copies; mutating them does not affect the engine.
func (e *Engine) Snapshot() Snapshot {
	token, _ := e.driver.Token()
	results := e.driver.Results()

	cards := make([]Card, 0, len(results))
	for _, r := range results {
		cards = append(cards, Card{
			Result:      r,
			Tags:        e.driver.TagsOf(r.ID),
			Highlighted: e.index.CardHighlighted(r.ID),
		})
	}

	return Snapshot{
		Mode:       string(e.driver.Mode()),
		Query:      e.driver.Query(),
		ProbeToken: token,
		Status:     e.driver.Status(),
		Total:      e.driver.Total(),
		Done:       e.driver.Done(),
		Loading:    e.driver.Loading(),
		DetailID:   e.DetailID(),
		Location:   e.Location(),
		Results:    cards,
		Facets:     e.Facets(),
	}
}

// --- navigator adapters ---

// driverResetter adapts the pagination driver to the navigator's reset
// contract, rebuilding probe options from the restored token and tag query.
type driverResetter struct {
	d *driver.Service
}

func (r driverResetter) SetQuery(ctx context.Context, query string) error {
	return r.d.SetQuery(ctx, query)
}

func (r driverResetter) StartProbe(ctx context.Context, p probe.Probe, tagQuery string) error {
	return r.d.StartProbe(ctx, p, driver.ProbeOptions{TagQuery: tagQuery})
}

// detailSink routes restored detail transitions to the engine's panel state.
type detailSink struct {
	e *Engine
}

func (s detailSink) OpenDetail(id int) { s.e.applyDetail(id) }
func (s detailSink) CloseDetail()      { s.e.applyDetail(NoDetail) }

// noopViewport is the headless default: no geometry, scrolls go nowhere.
type noopViewport struct{}

func (noopViewport) ResultTop(int) (int, bool) { return 0, false }
func (noopViewport) StickyHeight() int         { return 0 }
func (noopViewport) ScrollTo(int)              {}
