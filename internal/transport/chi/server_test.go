package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	localbooru "github.com/null-order/localbooru-sub000"
)

// --- Mocks ---

// newBridge wires a stub search service behind a real engine behind the
// bridge router.
func newBridge(t *testing.T) *httptest.Server {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/images":
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			images := make([]map[string]any, 0, limit)
			for i := offset; i < offset+limit && i < 10; i++ {
				images = append(images, map[string]any{"id": 100 + i, "name": "x.png", "tags": []any{}})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"images": images, "total": 10})
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"tags": []map[string]any{{"tag": "dog", "kind": "prompt", "freq": 4}},
			})
		case "/api/status/clip":
			_ = json.NewEncoder(w).Encode(map[string]any{"enabled": false})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	engine, err := localbooru.New(localbooru.WithBaseURL(upstream.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(engine.Close)

	r := chi.NewRouter()
	NewServer(engine, zap.NewNop()).Routes(r)
	bridge := httptest.NewServer(r)
	t.Cleanup(bridge.Close)
	return bridge
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// --- Tests ---

func TestQueryIntentReturnsSnapshot(t *testing.T) {
	bridge := newBridge(t)

	var snap localbooru.Snapshot
	code := postJSON(t, bridge.URL+"/api/v1/query", `{"query": "cat"}`, &snap)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if snap.Query != "cat" || len(snap.Results) != 10 || !snap.Done {
		t.Errorf("snapshot = query %q, %d results, done=%v", snap.Query, len(snap.Results), snap.Done)
	}
	if snap.Location != "q=cat" {
		t.Errorf("location = %q", snap.Location)
	}
}

func TestStateEndpoint(t *testing.T) {
	bridge := newBridge(t)

	var snap localbooru.Snapshot
	if code := getJSON(t, bridge.URL+"/api/v1/state", &snap); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if snap.Mode != "listing" || snap.DetailID != localbooru.NoDetail {
		t.Errorf("initial snapshot = %+v", snap)
	}
}

func TestSuggestEndpoint(t *testing.T) {
	bridge := newBridge(t)

	var resp struct {
		Suggestions []localbooru.Completion `json:"suggestions"`
	}
	if code := getJSON(t, bridge.URL+"/api/v1/suggest?q=do", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].Label != "dog" {
		t.Errorf("suggestions = %+v", resp.Suggestions)
	}

	// Suppressed input returns an empty list, not null.
	if code := getJSON(t, bridge.URL+"/api/v1/suggest?q=", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Suggestions == nil || len(resp.Suggestions) != 0 {
		t.Errorf("suppressed suggestions = %v", resp.Suggestions)
	}
}

func TestProbeWhileSemanticDisabled(t *testing.T) {
	bridge := newBridge(t)

	code := postJSON(t, bridge.URL+"/api/v1/probe/image", `{"id": 5}`, nil)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestDetailValidation(t *testing.T) {
	bridge := newBridge(t)

	if code := postJSON(t, bridge.URL+"/api/v1/detail/abc", ``, nil); code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
	if code := postJSON(t, bridge.URL+"/api/v1/detail/7", ``, nil); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}

func TestBadBodyRejected(t *testing.T) {
	bridge := newBridge(t)

	if code := postJSON(t, bridge.URL+"/api/v1/query", `{bad json`, nil); code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestMetricsExposed(t *testing.T) {
	bridge := newBridge(t)

	resp, err := http.Get(bridge.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
