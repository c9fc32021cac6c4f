package localbooru

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Viewport is the view-layer geometry the engine needs for scroll anchoring.
// ResultTop returns the top pixel offset of the result at an index, ok=false
// when the view has not laid it out yet.
type Viewport interface {
	ResultTop(index int) (int, bool)
	StickyHeight() int
	ScrollTo(px int)
}

// Vectorizer embeds probe text into the service's similarity space so text
// probes can be submitted as raw vectors.
type Vectorizer interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type engineConfig struct {
	baseURL     string
	httpTimeout time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
	pageSize    int
	debounce    time.Duration
	viewport    Viewport
	stickyPad   int
	cacheAddrs  []string
	cachePass   string
	cacheTTL    time.Duration
	vectorizer  Vectorizer
	detailFunc  func(id int, open bool)
}

// Option configures the engine.
type Option func(*engineConfig)

// WithBaseURL points the engine at a localbooru server. Required.
func WithBaseURL(u string) Option {
	return func(c *engineConfig) { c.baseURL = u }
}

// WithHTTPTimeout sets the search-service request timeout.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *engineConfig) { c.httpTimeout = d }
}

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *engineConfig) { c.httpClient = h }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// WithPageSize sets the page size for both strategies. Default 40.
func WithPageSize(n int) Option {
	return func(c *engineConfig) { c.pageSize = n }
}

// WithDebounce sets the text-probe debounce interval. Default 400ms.
func WithDebounce(d time.Duration) Option {
	return func(c *engineConfig) { c.debounce = d }
}

// WithViewport connects the view-layer geometry used for scroll anchoring.
// Without one the engine runs headless and anchor restores land at the top.
func WithViewport(v Viewport) Option {
	return func(c *engineConfig) { c.viewport = v }
}

// WithAnchorPadding sets the fixed padding under the sticky header used when
// computing the anchor index.
func WithAnchorPadding(px int) Option {
	return func(c *engineConfig) { c.stickyPad = px }
}

// WithTagCache caches batch tag lookups in redis.
func WithTagCache(addrs []string, password string, ttl time.Duration) Option {
	return func(c *engineConfig) {
		c.cacheAddrs = addrs
		c.cachePass = password
		c.cacheTTL = ttl
	}
}

// WithVectorizer embeds probe text locally and submits raw vectors to the
// service instead of query text.
func WithVectorizer(v Vectorizer) Option {
	return func(c *engineConfig) { c.vectorizer = v }
}

// WithDetailFunc is called whenever the detail panel should open or close.
func WithDetailFunc(fn func(id int, open bool)) Option {
	return func(c *engineConfig) { c.detailFunc = fn }
}
