package driver

import (
	"context"
	"io"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
)

// SearchAPI is the remote search service boundary.
type SearchAPI interface {
	ListImages(ctx context.Context, query string, offset, limit int) (booru.Page, error)
	ClipSearch(ctx context.Context, q booru.ClipQuery) (booru.ClipPage, error)
	ClipSearchFile(
		ctx context.Context, filename string, file io.Reader,
		tagQuery string, limit, offset int,
	) (booru.ClipPage, []float32, error)
	ClipStatus(ctx context.Context) (booru.ClipStatus, error)
}

// TagSource is the batched tag lookup used to fill in tag data for probe
// results, possibly behind a cache.
type TagSource interface {
	ImageTags(ctx context.Context, ids []int) (map[int][]booru.Tag, error)
}

// Vectorizer turns probe text into a raw embedding locally. Optional.
type Vectorizer interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
