package anchor

import "context"

// Pager is the pagination driver slice the anchor needs to make a target
// index reachable.
type Pager interface {
	// RequestPage fetches one more page in the session's current mode.
	RequestPage(ctx context.Context) error
	ResultCount() int
	Done() bool
}

// Viewport is the view-layer geometry boundary. The engine never renders;
// it only asks where results sit and where to scroll.
type Viewport interface {
	// ResultTop returns the top pixel offset of the result at a session
	// position, ok=false when the view has not laid it out.
	ResultTop(index int) (int, bool)
	// StickyHeight is the height of the sticky header overlaying the top
	// of the viewport.
	StickyHeight() int
	// ScrollTo moves the viewport to an absolute pixel offset.
	ScrollTo(offsetPx int)
}
