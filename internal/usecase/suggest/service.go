// Package suggest parses partial tag input and resolves candidate
// completions for the segment being edited.
package suggest

import (
	"context"
	"strings"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
)

// Segment is the parsed trailing piece of a comma-separated tag query.
type Segment struct {
	LeadingNeg string // "!", "-", possibly repeated, before the kind prefix
	Prefix     string // canonical kind prefix with colon, "" when none given
	InnerNeg   string // negation marker between prefix and term
	Term       string // the lookup term
	Kind       booru.TagKind
	HasKind    bool
}

// kind prefixes the query language accepts, mapped to their canonical form.
var kindPrefixes = []struct {
	prefix    string
	canonical string
	kind      booru.TagKind
}{
	{"uc:", "uc:", booru.KindNegative},
	{"character:", "char:", booru.KindCharacter},
	{"char:", "char:", booru.KindCharacter},
	{"prompt:", "prompt:", booru.KindPrompt},
}

// Parse splits input into everything before the trailing comma-separated
// segment (returned verbatim, including the comma) and the parsed segment.
func Parse(input string) (head string, seg Segment) {
	head = ""
	active := input
	if i := strings.LastIndex(input, ","); i >= 0 {
		head = input[:i+1]
		active = input[i+1:]
	}
	// Leading whitespace of the active segment belongs to the head so
	// re-assembly preserves "a, b" spacing.
	trimmed := strings.TrimLeft(active, " \t")
	head += active[:len(active)-len(trimmed)]
	active = trimmed

	seg.LeadingNeg, active = splitNegation(active)

	lowered := strings.ToLower(active)
	for _, kp := range kindPrefixes {
		if strings.HasPrefix(lowered, kp.prefix) {
			seg.Prefix = kp.canonical
			seg.Kind = kp.kind
			seg.HasKind = true
			active = active[len(kp.prefix):]
			break
		}
	}

	seg.InnerNeg, active = splitNegation(active)
	seg.Term = strings.TrimSpace(active)
	return head, seg
}

func splitNegation(s string) (marker, rest string) {
	i := 0
	for i < len(s) && (s[i] == '!' || s[i] == '-') {
		i++
	}
	return s[:i], s[i:]
}

// Service resolves completions for the segment under edit.
type Service struct {
	lookup Lookup
}

// New creates a suggestion engine.
func New(lookup Lookup) *Service {
	return &Service{lookup: lookup}
}

// Suggest parses the input and resolves candidates for its trailing segment.
// A nil, error-free return means lookup was suppressed: empty terms, and
// un-prefixed inputs shorter than two characters including negation markers,
// would only produce noise.
func (s *Service) Suggest(ctx context.Context, input string) ([]booru.Completion, error) {
	_, seg := Parse(input)
	if seg.Term == "" {
		return nil, nil
	}
	if !seg.HasKind && len(seg.LeadingNeg)+len(seg.InnerNeg)+len(seg.Term) < 2 {
		return nil, nil
	}

	var kind booru.TagKind
	if seg.HasKind {
		kind = seg.Kind
	}
	candidates, err := s.lookup.CompleteTags(ctx, seg.Term, kind)
	if err != nil {
		return nil, err
	}

	// Server ranking is preserved; duplicates by (kind, norm-ish label)
	// are dropped.
	seen := make(map[booru.TagKey]struct{}, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		key := booru.TagKey{Kind: c.Kind, Norm: strings.ToLower(c.Label)}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// Apply replaces only the trailing segment with the chosen completion,
// preserving earlier comma-separated tokens verbatim and re-assembling the
// negation markers and canonical kind prefix around the chosen tag.
func Apply(input string, chosen booru.Completion) string {
	head, seg := Parse(input)
	return head + seg.LeadingNeg + seg.Prefix + seg.InnerNeg + chosen.Label
}

// Selector tracks keyboard navigation over one candidate list. The cursor
// wraps circularly; with no active selection, Enter commits the raw text.
type Selector struct {
	items []booru.Completion
	idx   int
}

// NewSelector creates a selector with no active selection.
func NewSelector(items []booru.Completion) *Selector {
	return &Selector{items: items, idx: -1}
}

// Next moves the cursor down, wrapping to the first item.
func (sel *Selector) Next() {
	if len(sel.items) == 0 {
		return
	}
	sel.idx = (sel.idx + 1) % len(sel.items)
}

// Prev moves the cursor up, wrapping to the last item.
func (sel *Selector) Prev() {
	if len(sel.items) == 0 {
		return
	}
	if sel.idx <= 0 {
		sel.idx = len(sel.items) - 1
		return
	}
	sel.idx--
}

// Current returns the selected candidate, ok=false with no active selection.
func (sel *Selector) Current() (booru.Completion, bool) {
	if sel.idx < 0 || sel.idx >= len(sel.items) {
		return booru.Completion{}, false
	}
	return sel.items[sel.idx], true
}

// Clear drops the active selection.
func (sel *Selector) Clear() { sel.idx = -1 }
