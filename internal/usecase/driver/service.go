// Package driver paginates the two search strategies, tag-filtered listing
// and semantic probe, into one SearchSession, guarding against duplicate
// in-flight requests and stale-response corruption.
package driver

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
	"github.com/null-order/localbooru-sub000/internal/domain/probe"
	"github.com/null-order/localbooru-sub000/internal/domain/session"
	"github.com/null-order/localbooru-sub000/internal/domain/tagindex"
	"github.com/null-order/localbooru-sub000/internal/metrics"
)

// ErrSemanticDisabled is returned by probe intents while the service's
// embedding index is unavailable. Filtered listing keeps working.
var ErrSemanticDisabled = errors.New("driver: semantic search is disabled on the service")

// Mode is the active pagination strategy.
type Mode string

// Pagination modes.
const (
	ModeListing Mode = "listing"
	ModeProbe   Mode = "probe"
)

// Defaults, matching the service's clamps.
const (
	DefaultPageSize = 40
	DefaultDebounce = 400 * time.Millisecond
)

// ProbeOptions refine a semantic probe.
type ProbeOptions struct {
	// TagQuery restricts probe results to a tag filter.
	TagQuery string
	// NegativeImages push results away from the given reference ids.
	NegativeImages []int
}

// Service drives pagination for one exclusively-owned session/index pair.
// All mutation goes through its lock; a page response is applied only when
// it is the most recently issued request and the engine is still in the mode
// it was issued under.
type Service struct {
	api       SearchAPI
	tags      TagSource
	vectorize Vectorizer
	logger    *zap.Logger
	pageSize  int
	debounce  time.Duration

	mu             sync.Mutex
	session        *session.Session
	index          *tagindex.Index
	mode           Mode
	activeProbe    probe.Probe
	probeActive    bool
	probeNegatives []int
	probeOffset    int
	seq            uint64
	status         string
	semanticKnown  bool
	semanticOn     bool
	debounceTimer  *time.Timer
	onChange       func()
}

// New creates a pagination driver owning the given session/index pair.
func New(
	api SearchAPI,
	tags TagSource,
	sess *session.Session,
	index *tagindex.Index,
	logger *zap.Logger,
) *Service {
	return &Service{
		api:      api,
		tags:     tags,
		logger:   logger,
		pageSize: DefaultPageSize,
		debounce: DefaultDebounce,
		session:  sess,
		index:    index,
		mode:     ModeListing,
	}
}

// WithPageSize overrides the page size.
func (s *Service) WithPageSize(n int) *Service {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// WithDebounce overrides the text-probe debounce interval.
func (s *Service) WithDebounce(d time.Duration) *Service {
	if d > 0 {
		s.debounce = d
	}
	return s
}

// WithVectorizer routes text probes through a local embedder.
func (s *Service) WithVectorizer(v Vectorizer) *Service {
	s.vectorize = v
	return s
}

// OnChange registers a state-changed notification. Called with the lock
// released after every applied mutation.
func (s *Service) OnChange(fn func()) { s.onChange = fn }

// SetQuery resets the session to a tag-filtered listing and fetches the
// first page. Any active probe or pending debounce is dropped first.
func (s *Service) SetQuery(ctx context.Context, query string) error {
	s.mu.Lock()
	s.resetLocked(ModeListing, query)
	s.mu.Unlock()
	return s.fetchListing(ctx)
}

// StartProbe resets the session to a semantic probe and fetches the first
// page. The prior result set is discarded before the request is issued, so a
// slow response cannot resurrect stale cards.
func (s *Service) StartProbe(ctx context.Context, p probe.Probe, opts ProbeOptions) error {
	if err := s.requireSemantic(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.resetLocked(ModeProbe, opts.TagQuery)
	s.activeProbe = p
	s.probeNegatives = opts.NegativeImages
	s.mu.Unlock()
	return s.fetchProbe(ctx)
}

// StartProbeUpload starts a probe from an uploaded image. The vector the
// service derives is kept so pagination re-submits it instead of the file.
func (s *Service) StartProbeUpload(
	ctx context.Context, filename string, file io.Reader, opts ProbeOptions,
) error {
	if err := s.requireSemantic(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.resetLocked(ModeProbe, opts.TagQuery)
	s.probeNegatives = opts.NegativeImages
	_ = s.session.BeginFetch()
	seq := s.seq
	tagQuery := s.session.Query()
	s.mu.Unlock()

	page, vec, err := s.api.ClipSearchFile(ctx, filename, file, tagQuery, s.pageSize, 0)

	s.mu.Lock()
	if !s.currentLocked(seq, ModeProbe) {
		s.mu.Unlock()
		metrics.StaleResponsesTotal.Inc()
		return nil
	}
	s.session.EndFetch()
	if err != nil {
		s.failLocked("probe upload failed", err)
		s.mu.Unlock()
		return err
	}
	if len(vec) > 0 {
		if p, perr := probe.Upload(vec); perr == nil {
			s.activeProbe = p
		}
	}
	missing := s.applyProbePageLocked(page)
	s.mu.Unlock()

	s.notify()
	s.fillTags(ctx, missing)
	return nil
}

// NextPage fetches the next page in the current mode. A no-op while a fetch
// is outstanding or the session is done.
func (s *Service) NextPage(ctx context.Context) error {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()
	if mode == ModeProbe {
		return s.fetchProbe(ctx)
	}
	return s.fetchListing(ctx)
}

// RequestPage is NextPage under the name the scroll-anchor contract uses.
func (s *Service) RequestPage(ctx context.Context) error { return s.NextPage(ctx) }

// ProbeTextInput feeds one keystroke of the free-text probe field. Each call
// cancels the previous pending timer; clearing the field deactivates probe
// mode immediately without waiting for the debounce.
func (s *Service) ProbeTextInput(ctx context.Context, text string) {
	s.mu.Lock()
	s.cancelDebounceLocked()
	if strings.TrimSpace(text) == "" {
		active := s.probeActive
		s.mu.Unlock()
		if active {
			_ = s.ClearProbe(ctx)
		}
		return
	}
	bg := context.WithoutCancel(ctx)
	s.debounceTimer = time.AfterFunc(s.debounce, func() {
		if err := s.SubmitProbeText(bg, text); err != nil {
			s.logger.Warn("debounced probe failed", zap.Error(err))
		}
	})
	s.mu.Unlock()
}

// SubmitProbeText starts a text probe right away, cancelling any pending
// debounce so a manual submission never doubles a request.
func (s *Service) SubmitProbeText(ctx context.Context, text string) error {
	s.mu.Lock()
	s.cancelDebounceLocked()
	tagQuery := s.probeTagQueryLocked()
	s.mu.Unlock()

	p, err := probe.Text(text)
	if err != nil {
		// Blank submission is a mode exit, not an error.
		return s.ClearProbe(ctx)
	}
	return s.StartProbe(ctx, p, ProbeOptions{TagQuery: tagQuery})
}

// ClearProbe deactivates probe mode and reverts to the filtered listing for
// the session's tag query.
func (s *Service) ClearProbe(ctx context.Context) error {
	s.mu.Lock()
	s.cancelDebounceLocked()
	if !s.probeActive {
		s.mu.Unlock()
		return nil
	}
	query := s.session.Query()
	s.mu.Unlock()
	return s.SetQuery(ctx, query)
}

// SemanticAvailable reports whether the service's embedding index is up.
// The answer is cached for the life of the driver.
func (s *Service) SemanticAvailable(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.semanticKnown {
		on := s.semanticOn
		s.mu.Unlock()
		return on, nil
	}
	s.mu.Unlock()

	st, err := s.api.ClipStatus(ctx)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.semanticKnown = true
	s.semanticOn = st.Enabled
	s.mu.Unlock()
	return st.Enabled, nil
}

// --- snapshot accessors ---

// Mode returns the active pagination strategy.
func (s *Service) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Token returns the active probe's navigation token, if one is derivable. A
// probe with no token (uploads) still runs but is not persisted.
func (s *Service) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probeActive {
		return "", false
	}
	return s.activeProbe.Token()
}

// Query returns the active tag query (the refinement, in probe mode).
func (s *Service) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Query()
}

// Status returns the last transport failure message, empty after a success.
func (s *Service) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ResultCount returns the number of loaded results.
func (s *Service) ResultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Len()
}

// Total returns the service-reported total.
func (s *Service) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Total()
}

// Done reports whether the session window covers the whole result set.
func (s *Service) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Done()
}

// Loading reports whether a page fetch is outstanding.
func (s *Service) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Loading()
}

// ResultAt returns the result at a session position.
func (s *Service) ResultAt(i int) (booru.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.At(i)
}

// PositionOf returns a result's session position.
func (s *Service) PositionOf(id int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.PositionOf(id)
}

// Results returns a copy of the loaded window.
func (s *Service) Results() []booru.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]booru.Result, s.session.Len())
	copy(out, s.session.Results())
	return out
}

// TagsOf returns the cached tags of one result.
func (s *Service) TagsOf(id int) []booru.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.TagsOf(id)
}

// --- internals ---

// resetLocked recreates the session for a new intent. Bumping seq makes any
// in-flight response stale; force-releasing the loading gate lets the new
// intent fetch immediately.
func (s *Service) resetLocked(mode Mode, query string) {
	s.cancelDebounceLocked()
	s.mode = mode
	s.probeActive = mode == ModeProbe
	s.activeProbe = probe.Probe{}
	s.probeNegatives = nil
	s.probeOffset = 0
	s.seq++
	s.session.Reset(query)
	s.session.EndFetch()
	s.index.Rebuild(nil)
}

func (s *Service) cancelDebounceLocked() {
	if s.debounceTimer != nil {
		if s.debounceTimer.Stop() {
			metrics.DebounceCancelledTotal.Inc()
		}
		s.debounceTimer = nil
	}
}

// probeTagQueryLocked is the tag refinement a new probe should carry: the
// current session query in listing mode, the existing refinement in probe mode.
func (s *Service) probeTagQueryLocked() string { return s.session.Query() }

func (s *Service) requireSemantic(ctx context.Context) error {
	on, err := s.SemanticAvailable(ctx)
	if err != nil {
		return err
	}
	if !on {
		return ErrSemanticDisabled
	}
	return nil
}

// currentLocked is the stale-response guard: the response must belong to the
// most recently issued request and the mode it was issued under must still
// be active.
func (s *Service) currentLocked(seq uint64, mode Mode) bool {
	return seq == s.seq && mode == s.mode
}

func (s *Service) failLocked(msg string, err error) {
	s.status = err.Error()
	s.logger.Warn(msg, zap.Error(err))
}

func (s *Service) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Service) fetchListing(ctx context.Context) error {
	s.mu.Lock()
	if s.session.Loading() || s.session.Done() {
		s.mu.Unlock()
		return nil
	}
	_ = s.session.BeginFetch()
	s.seq++
	seq := s.seq
	query := s.session.Query()
	offset := s.session.Len()
	s.mu.Unlock()

	page, err := s.api.ListImages(ctx, query, offset, s.pageSize)

	s.mu.Lock()
	if !s.currentLocked(seq, ModeListing) {
		s.mu.Unlock()
		metrics.StaleResponsesTotal.Inc()
		return nil
	}
	s.session.EndFetch()
	if err != nil {
		s.failLocked("listing page failed", err)
		s.mu.Unlock()
		return err
	}
	s.status = ""
	s.session.AppendPage(page.Images, page.Total)
	for id, tags := range page.TagsByID {
		s.session.SetTags(id, tags)
		s.index.Extend(id, tags)
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Service) fetchProbe(ctx context.Context) error {
	s.mu.Lock()
	if !s.probeActive || s.activeProbe.IsZero() || s.session.Loading() || s.session.Done() {
		s.mu.Unlock()
		return nil
	}
	_ = s.session.BeginFetch()
	s.seq++
	seq := s.seq
	q := s.clipQueryLocked()
	s.mu.Unlock()

	// Text probes go through the local vectorizer when one is configured.
	if q.Query != "" && s.vectorize != nil {
		vec, err := s.vectorize.Embed(ctx, q.Query)
		if err != nil {
			s.mu.Lock()
			if s.currentLocked(seq, ModeProbe) {
				s.session.EndFetch()
				s.failLocked("probe vectorization failed", err)
			}
			s.mu.Unlock()
			return err
		}
		q.Query = ""
		q.PositiveVector = vec
	}

	page, err := s.api.ClipSearch(ctx, q)

	s.mu.Lock()
	if !s.currentLocked(seq, ModeProbe) {
		s.mu.Unlock()
		metrics.StaleResponsesTotal.Inc()
		return nil
	}
	s.session.EndFetch()
	if err != nil {
		s.failLocked("probe page failed", err)
		s.mu.Unlock()
		return err
	}
	missing := s.applyProbePageLocked(page)
	s.mu.Unlock()

	s.notify()
	s.fillTags(ctx, missing)
	return nil
}

func (s *Service) clipQueryLocked() booru.ClipQuery {
	q := booru.ClipQuery{
		TagQuery:       s.session.Query(),
		NegativeImages: s.probeNegatives,
		Limit:          s.pageSize,
		Offset:         s.probeOffset,
		IncludeTags:    false,
	}
	switch s.activeProbe.Kind() {
	case probe.KindText:
		q.Query = s.activeProbe.Text()
	case probe.KindImage:
		q.PositiveImages = []int{s.activeProbe.ImageID()}
	case probe.KindUpload:
		q.PositiveVector = s.activeProbe.Vector()
	}
	return q
}

// applyProbePageLocked appends a probe page and returns the ids still
// missing tag data. The probe offset advances by what actually arrived, not
// by what was requested: total is authoritative only for this probe.
func (s *Service) applyProbePageLocked(page booru.ClipPage) []int {
	s.status = ""
	s.session.AppendPage(page.Results, page.Total)
	s.probeOffset += len(page.Results)

	for id, tags := range page.TagsByID {
		s.session.SetTags(id, tags)
		s.index.Extend(id, tags)
	}

	var missing []int
	for _, r := range page.Results {
		if _, ok := page.TagsByID[r.ID]; ok {
			continue
		}
		if _, ok := s.session.PositionOf(r.ID); ok {
			missing = append(missing, r.ID)
		}
	}
	return missing
}

// fillTags batch-fetches tag data for probe results delivered with
// include_tags=false. Failures are logged, not surfaced: tags are auxiliary
// and the result window is already consistent. A session reset between the
// fetch and the batch landing empties the position map, so stale batches
// fall through the membership check.
func (s *Service) fillTags(ctx context.Context, ids []int) {
	if len(ids) == 0 {
		return
	}
	tags, err := s.tags.ImageTags(ctx, ids)
	if err != nil {
		s.logger.Warn("batch tag lookup failed", zap.Int("ids", len(ids)), zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.mode != ModeProbe {
		s.mu.Unlock()
		metrics.StaleResponsesTotal.Inc()
		return
	}
	for id, list := range tags {
		if _, ok := s.session.PositionOf(id); !ok {
			continue
		}
		s.session.SetTags(id, list)
		s.index.Extend(id, list)
	}
	s.mu.Unlock()

	s.notify()
}
