// Package navigation models the canonical navigation state and its
// round-trippable address-bar encoding. State is the single source of truth
// for the five navigation facts; the query string and history entries are
// projections of it, never independently trusted.
package navigation

import (
	"net/url"
	"strconv"

	"github.com/null-order/localbooru-sub000/internal/domain/probe"
)

// NoDetail marks a state with no open detail item.
const NoDetail = -1

// State is one committed navigation state.
type State struct {
	Query      string
	DetailID   int // NoDetail when the detail panel is closed
	Anchor     int // index of the first visible result, never negative
	ProbeToken string // empty when no semantic probe is active
}

// Equal reports field-by-field equality.
func (s State) Equal(o State) bool {
	return s.Query == o.Query &&
		s.DetailID == o.DetailID &&
		s.Anchor == o.Anchor &&
		s.ProbeToken == o.ProbeToken
}

// Encode renders the state as an address-bar query string. Zero-valued
// fields are omitted so encoded states stay minimal and stable.
func (s State) Encode() string {
	vals := url.Values{}
	if s.Query != "" {
		vals.Set("q", s.Query)
	}
	if s.DetailID >= 0 {
		vals.Set("detail", strconv.Itoa(s.DetailID))
	}
	if s.Anchor > 0 {
		vals.Set("pos", strconv.Itoa(s.Anchor))
	}
	if s.ProbeToken != "" {
		vals.Set("clip", s.ProbeToken)
	}
	return vals.Encode()
}

// Decode parses an address-bar query string into a state. Missing or
// malformed fields decode to safe defaults: bad detail -> NoDetail, bad pos
// -> 0, unparsable clip token -> none. Decode never fails.
func Decode(raw string) State {
	st := State{DetailID: NoDetail}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		// ParseQuery keeps whatever it managed to parse.
		if vals == nil {
			return st
		}
	}

	st.Query = vals.Get("q")

	if v := vals.Get("detail"); v != "" {
		if id, err := strconv.Atoi(v); err == nil && id >= 0 {
			st.DetailID = id
		}
	}
	if v := vals.Get("pos"); v != "" {
		if pos, err := strconv.Atoi(v); err == nil && pos > 0 {
			st.Anchor = pos
		}
	}
	if v := vals.Get("clip"); v != "" {
		if p, ok := probe.ParseToken(v); ok {
			token, _ := p.Token()
			st.ProbeToken = token
		}
	}
	return st
}
