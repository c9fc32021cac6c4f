package navigator

import (
	"context"

	"github.com/null-order/localbooru-sub000/internal/domain/probe"
)

// Resetter is the pagination driver slice a restored navigation state needs.
type Resetter interface {
	SetQuery(ctx context.Context, query string) error
	StartProbe(ctx context.Context, p probe.Probe, tagQuery string) error
}

// Restorer restores the scroll anchor.
type Restorer interface {
	Restore(ctx context.Context, target int) error
}

// DetailOpener opens and closes the detail panel. How the panel renders is
// the view's business; the navigator only says which item should be open.
type DetailOpener interface {
	OpenDetail(id int)
	CloseDetail()
}
