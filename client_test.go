package localbooru

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// --- Mocks ---

// fakeBooru is a stub localbooru server good enough to drive the engine
// end to end: 80 listing results, semantic probes over the same ids.
type fakeBooru struct {
	mu        sync.Mutex
	listCalls int
	clipCalls int
}

func (f *fakeBooru) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/images", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.listCalls++
		f.mu.Unlock()
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		writeListing(w, offset, limit, 80)
	})
	mux.HandleFunc("/api/search/clip", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.clipCalls++
		f.mu.Unlock()
		var req struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		results := make([]map[string]any, 0, req.Limit)
		for i := req.Offset; i < req.Offset+req.Limit && i < 30; i++ {
			results = append(results, map[string]any{"id": 5000 + i, "score": 0.9})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": results, "total": 30, "offset": req.Offset, "limit": req.Limit,
		})
	})
	mux.HandleFunc("/api/image-tags", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []int `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		tags := make(map[string]any, len(req.IDs))
		for _, id := range req.IDs {
			tags[strconv.Itoa(id)] = []map[string]any{
				{"tag": "probe-tag", "norm": "probe-tag", "kind": "prompt"},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"tags": tags})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tags": []map[string]any{{"tag": q + "s", "kind": "prompt", "freq": 3}},
		})
	})
	mux.HandleFunc("/api/status/clip", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"enabled": true, "state": "ready"})
	})
	return mux
}

func writeListing(w http.ResponseWriter, offset, limit, total int) {
	images := make([]map[string]any, 0, limit)
	for i := offset; i < offset+limit && i < total; i++ {
		images = append(images, map[string]any{
			"id":   1000 + i,
			"name": fmt.Sprintf("img-%d.png", i),
			"tags": []map[string]any{{"tag": "cat", "norm": "cat", "kind": "prompt"}},
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"images": images, "total": total})
}

// testViewport lays cards out at fixed 100px rows with no sticky header.
type testViewport struct {
	mu      sync.Mutex
	scrolls []int
}

func (v *testViewport) ResultTop(i int) (int, bool) { return i * 100, true }
func (v *testViewport) StickyHeight() int           { return 0 }
func (v *testViewport) ScrollTo(px int) {
	v.mu.Lock()
	v.scrolls = append(v.scrolls, px)
	v.mu.Unlock()
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeBooru) {
	t.Helper()
	fake := &fakeBooru{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	engine, err := New(append([]Option{WithBaseURL(srv.URL)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, fake
}

// --- Tests ---

func TestEngineRequiresBaseURL(t *testing.T) {
	if _, err := New(); err == nil {
		t.Error("expected error without a base URL")
	}
}

func TestQueryListingAndLocation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.SetQuery(ctx, "cat"); err != nil {
		t.Fatalf("SetQuery: %v", err)
	}

	snap := engine.Snapshot()
	if snap.Mode != "listing" || len(snap.Results) != 40 || snap.Total != 80 || snap.Done {
		t.Fatalf("snapshot = mode %q, %d of %d, done=%v",
			snap.Mode, len(snap.Results), snap.Total, snap.Done)
	}
	if snap.Results[0].ID != 1000 || len(snap.Results[0].Tags) != 1 {
		t.Errorf("first card = %+v", snap.Results[0])
	}
	if engine.Location() != "q=cat" {
		t.Errorf("location = %q", engine.Location())
	}

	if err := engine.NextPage(ctx); err != nil {
		t.Fatalf("NextPage: %v", err)
	}
	if snap = engine.Snapshot(); len(snap.Results) != 80 || !snap.Done {
		t.Errorf("after second page: %d done=%v", len(snap.Results), snap.Done)
	}
}

func TestDetailPanelHistory(t *testing.T) {
	var calls []string
	engine, _ := newTestEngine(t, WithDetailFunc(func(id int, open bool) {
		calls = append(calls, fmt.Sprintf("%d:%v", id, open))
	}))
	ctx := context.Background()

	if err := engine.SetQuery(ctx, "cat"); err != nil {
		t.Fatalf("SetQuery: %v", err)
	}

	engine.OpenDetail(1005)
	if engine.DetailID() != 1005 {
		t.Fatalf("detail = %d", engine.DetailID())
	}
	if !strings.Contains(engine.Location(), "detail=1005") {
		t.Errorf("location = %q", engine.Location())
	}

	engine.CloseDetail()
	if engine.DetailID() != NoDetail {
		t.Fatalf("detail after close = %d", engine.DetailID())
	}

	// Back reopens the item that was open; no refetch happens.
	if err := engine.Back(ctx); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if engine.DetailID() != 1005 {
		t.Errorf("detail after back = %d", engine.DetailID())
	}
	want := []string{"1005:true", "1005:false", "1005:true"}
	for i, w := range want {
		if i >= len(calls) || calls[i] != w {
			t.Fatalf("detail calls = %v, want %v", calls, want)
		}
	}
}

func TestSaveAnchorReplacesLocation(t *testing.T) {
	view := &testViewport{}
	engine, _ := newTestEngine(t, WithViewport(view), WithAnchorPadding(16))
	ctx := context.Background()

	if err := engine.SetQuery(ctx, "cat"); err != nil {
		t.Fatalf("SetQuery: %v", err)
	}

	// threshold = 250 + 0 + 16; rows at 0,100,...; row 2 (200) is the anchor.
	engine.SaveAnchor(250)
	if !strings.Contains(engine.Location(), "pos=2") {
		t.Errorf("location = %q", engine.Location())
	}

	// A later save replaces rather than stacking history.
	engine.SaveAnchor(700)
	if !strings.Contains(engine.Location(), "pos=7") {
		t.Errorf("location = %q", engine.Location())
	}
	if err := engine.Back(ctx); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if loc := engine.Location(); strings.Contains(loc, "pos=") {
		t.Errorf("back should land before any anchor, location = %q", loc)
	}
}

func TestProbeImagePushesTokenAndBackReverts(t *testing.T) {
	engine, fake := newTestEngine(t)
	ctx := context.Background()

	if err := engine.SetQuery(ctx, "cat"); err != nil {
		t.Fatalf("SetQuery: %v", err)
	}
	if err := engine.ProbeImage(ctx, 1003); err != nil {
		t.Fatalf("ProbeImage: %v", err)
	}

	snap := engine.Snapshot()
	if snap.Mode != "probe" || snap.ProbeToken != "image:1003" {
		t.Fatalf("snapshot = mode %q token %q", snap.Mode, snap.ProbeToken)
	}
	if len(snap.Results) != 30 || snap.Results[0].ID != 5000 {
		t.Fatalf("probe results = %d", len(snap.Results))
	}
	// Probe tags arrive through the batch endpoint.
	if len(snap.Results[0].Tags) != 1 || snap.Results[0].Tags[0].Label != "probe-tag" {
		t.Errorf("probe tags = %+v", snap.Results[0].Tags)
	}
	if !strings.Contains(engine.Location(), "clip=image%3A1003") {
		t.Errorf("location = %q", engine.Location())
	}

	if err := engine.Back(ctx); err != nil {
		t.Fatalf("Back: %v", err)
	}
	snap = engine.Snapshot()
	if snap.Mode != "listing" || snap.ProbeToken != "" || snap.Query != "cat" {
		t.Errorf("after back: mode %q token %q query %q", snap.Mode, snap.ProbeToken, snap.Query)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.clipCalls != 1 {
		t.Errorf("clip calls = %d", fake.clipCalls)
	}
}

func TestRestoreSharedLink(t *testing.T) {
	view := &testViewport{}
	engine, _ := newTestEngine(t, WithViewport(view))
	ctx := context.Background()

	if err := engine.Restore(ctx, "q=cat&detail=1002&pos=5"); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	snap := engine.Snapshot()
	if snap.Query != "cat" || len(snap.Results) != 40 {
		t.Fatalf("restored %q with %d results", snap.Query, len(snap.Results))
	}
	if snap.DetailID != 1002 {
		t.Errorf("detail = %d", snap.DetailID)
	}
	view.mu.Lock()
	defer view.mu.Unlock()
	if len(view.scrolls) == 0 || view.scrolls[len(view.scrolls)-1] != 500 {
		t.Errorf("scrolls = %v, want final scroll to 500", view.scrolls)
	}
}

func TestSuggestAndApply(t *testing.T) {
	engine, _ := newTestEngine(t)

	items, err := engine.Suggest(context.Background(), "cat, do")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(items) != 1 || items[0].Label != "dos" {
		t.Fatalf("items = %+v", items)
	}
	if got := engine.ApplySuggestion("cat, do", items[0]); got != "cat, dos" {
		t.Errorf("ApplySuggestion = %q", got)
	}
}

func TestFacetsAndHighlight(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.SetQuery(ctx, "cat"); err != nil {
		t.Fatalf("SetQuery: %v", err)
	}

	facets := engine.Facets()
	if len(facets) != 1 || facets[0].Label != "cat" || facets[0].Freq != 40 {
		t.Fatalf("facets = %+v", facets)
	}

	engine.HighlightFacet(TagKey{Kind: "prompt", Norm: "cat"})
	snap := engine.Snapshot()
	if !snap.Results[0].Highlighted {
		t.Error("every card carries the facet, all should be lit")
	}
	if !snap.Facets[0].Highlighted {
		t.Error("the facet itself should be lit")
	}

	engine.ClearHighlight()
	if engine.Snapshot().Results[0].Highlighted {
		t.Error("ClearHighlight left marks")
	}
}

func TestSemanticAvailable(t *testing.T) {
	engine, _ := newTestEngine(t)
	on, err := engine.SemanticAvailable(context.Background())
	if err != nil || !on {
		t.Fatalf("SemanticAvailable = %v, %v", on, err)
	}
}
