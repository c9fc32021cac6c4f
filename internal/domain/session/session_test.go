package session

import (
	"testing"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
)

func results(ids ...int) []booru.Result {
	out := make([]booru.Result, len(ids))
	for i, id := range ids {
		out[i] = booru.Result{ID: id}
	}
	return out
}

func TestAppendPageAssignsPositions(t *testing.T) {
	s := New()
	s.Reset("cat")

	if n := s.AppendPage(results(10, 11, 12), 5); n != 3 {
		t.Fatalf("expected 3 appended, got %d", n)
	}
	if s.Len() != 3 || s.Total() != 5 || s.Done() {
		t.Fatalf("len=%d total=%d done=%v", s.Len(), s.Total(), s.Done())
	}

	pos, ok := s.PositionOf(11)
	if !ok || pos != 1 {
		t.Errorf("PositionOf(11) = %d, %v", pos, ok)
	}
	r, ok := s.At(2)
	if !ok || r.ID != 12 {
		t.Errorf("At(2) = %+v, %v", r, ok)
	}
}

func TestAppendPageDropsDuplicates(t *testing.T) {
	s := New()
	s.AppendPage(results(1, 2), 4)

	if n := s.AppendPage(results(2, 3), 4); n != 1 {
		t.Fatalf("expected 1 appended, got %d", n)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 results, got %d", s.Len())
	}
	// Positions stay stable across the duplicate.
	if pos, _ := s.PositionOf(3); pos != 2 {
		t.Errorf("PositionOf(3) = %d", pos)
	}
}

func TestDoneWhenWindowCoversTotal(t *testing.T) {
	s := New()
	s.AppendPage(results(1, 2), 4)
	if s.Done() {
		t.Fatal("2 of 4 must not be done")
	}
	s.AppendPage(results(3, 4), 4)
	if !s.Done() {
		t.Fatal("4 of 4 must be done")
	}
}

func TestDoneOnEmptyResultSet(t *testing.T) {
	s := New()
	s.AppendPage(nil, 0)
	if !s.Done() {
		t.Error("empty result set with total 0 must be done")
	}
}

func TestLoadingGate(t *testing.T) {
	s := New()
	if err := s.BeginFetch(); err != nil {
		t.Fatalf("BeginFetch: %v", err)
	}
	if err := s.BeginFetch(); err != ErrFetchInFlight {
		t.Fatalf("expected ErrFetchInFlight, got %v", err)
	}
	s.EndFetch()
	if err := s.BeginFetch(); err != nil {
		t.Fatalf("BeginFetch after EndFetch: %v", err)
	}
}

func TestResetClearsEverythingButLoading(t *testing.T) {
	s := New()
	s.AppendPage(results(1, 2), 2)
	s.SetTags(1, []booru.Tag{{Label: "cat", Norm: "cat", Kind: booru.KindPrompt}})
	_ = s.BeginFetch()

	s.Reset("dog")

	if s.Len() != 0 || s.Total() != 0 || s.Done() {
		t.Errorf("reset left results: len=%d total=%d done=%v", s.Len(), s.Total(), s.Done())
	}
	if _, ok := s.PositionOf(1); ok {
		t.Error("reset must clear the position map")
	}
	if s.TagsOf(1) != nil {
		t.Error("reset must clear tags")
	}
	if s.Query() != "dog" {
		t.Errorf("query = %q", s.Query())
	}
	// The loading gate is released explicitly by the caller, not by Reset.
	if !s.Loading() {
		t.Error("Reset must not release the loading gate")
	}
}

func TestSetTagsIgnoresUnknownIDs(t *testing.T) {
	s := New()
	s.AppendPage(results(1), 1)
	s.SetTags(99, []booru.Tag{{Label: "x", Norm: "x"}})
	if s.TagsOf(99) != nil {
		t.Error("tags for an unloaded id must be dropped")
	}
}
