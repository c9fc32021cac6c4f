package navigation

// History is the stack of committed navigation states, mirroring browser
// history semantics: pushing drops any forward entries, replacing swaps the
// current one in place.
type History struct {
	entries []State
	idx     int
}

// NewHistory creates a history with a single initial entry.
func NewHistory(initial State) *History {
	return &History{entries: []State{initial}}
}

// Current returns the entry the cursor points at.
func (h *History) Current() State { return h.entries[h.idx] }

// Len returns the number of entries.
func (h *History) Len() int { return len(h.entries) }

// Push appends a new entry after the cursor, discarding forward entries.
func (h *History) Push(s State) {
	h.entries = append(h.entries[:h.idx+1], s)
	h.idx = len(h.entries) - 1
}

// Replace swaps the current entry. Replacing with an equal state is a no-op,
// so redundant commits never grow the stack.
func (h *History) Replace(s State) {
	h.entries[h.idx] = s
}

// Back moves the cursor one entry back. ok is false at the oldest entry.
func (h *History) Back() (State, bool) {
	if h.idx == 0 {
		return State{}, false
	}
	h.idx--
	return h.entries[h.idx], true
}

// Forward moves the cursor one entry forward. ok is false at the newest entry.
func (h *History) Forward() (State, bool) {
	if h.idx >= len(h.entries)-1 {
		return State{}, false
	}
	h.idx++
	return h.entries[h.idx], true
}
