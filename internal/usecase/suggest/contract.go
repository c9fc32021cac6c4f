package suggest

import (
	"context"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
)

// Lookup resolves ranked completion candidates for a term.
type Lookup interface {
	CompleteTags(ctx context.Context, prefix string, kind booru.TagKind) ([]booru.Completion, error)
}
