// Package chi exposes the browse engine over HTTP so a thin view layer can
// drive it with intents and poll render-ready snapshots.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	localbooru "github.com/null-order/localbooru-sub000"
	booruapi "github.com/null-order/localbooru-sub000/internal/repository/booru"
)

// 8 MiB is generous for a probe image.
const maxUploadBytes = 8 << 20

// Server exposes engine intents as HTTP endpoints.
type Server struct {
	engine *localbooru.Engine
	logger *zap.Logger
}

// NewServer creates the HTTP bridge.
func NewServer(engine *localbooru.Engine, logger *zap.Logger) *Server {
	return &Server{engine: engine, logger: logger}
}

// Routes registers every endpoint on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Get("/location", s.getLocation)
		r.Get("/suggest", s.getSuggest)
		r.Get("/status/semantic", s.getSemanticStatus)

		r.Post("/query", s.postQuery)
		r.Post("/page", s.postPage)
		r.Post("/probe/text", s.postProbeText)
		r.Post("/probe/image", s.postProbeImage)
		r.Post("/probe/upload", s.postProbeUpload)
		r.Post("/probe/clear", s.postProbeClear)

		r.Post("/detail/{id}", s.postDetailOpen)
		r.Delete("/detail", s.deleteDetail)
		r.Post("/anchor", s.postAnchor)

		r.Post("/nav/back", s.postBack)
		r.Post("/nav/forward", s.postForward)
		r.Post("/nav/restore", s.postRestore)

		r.Post("/highlight/card/{id}", s.postHighlightCard)
		r.Post("/highlight/facet", s.postHighlightFacet)
		r.Delete("/highlight", s.deleteHighlight)
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

// getState handles GET /api/v1/state.
func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// getLocation handles GET /api/v1/location.
func (s *Server) getLocation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"location": s.engine.Location()})
}

// getSuggest handles GET /api/v1/suggest?q=<partial tag query>.
func (s *Server) getSuggest(w http.ResponseWriter, r *http.Request) {
	var input string
	if err := runtime.BindQueryParameter(
		"form", true, false, "q", r.URL.Query(), &input,
	); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid q parameter: "+err.Error())
		return
	}

	items, err := s.engine.Suggest(r.Context(), input)
	if err != nil {
		s.handleEngineError(w, err)
		return
	}
	if items == nil {
		items = []localbooru.Completion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": items})
}

// getSemanticStatus handles GET /api/v1/status/semantic.
func (s *Server) getSemanticStatus(w http.ResponseWriter, r *http.Request) {
	on, err := s.engine.SemanticAvailable(r.Context())
	if err != nil {
		s.handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": on})
}

// postQuery handles POST /api/v1/query.
func (s *Server) postQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if err := s.engine.SetQuery(r.Context(), req.Query); err != nil {
		s.handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// postPage handles POST /api/v1/page.
func (s *Server) postPage(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.NextPage(r.Context()); err != nil {
		s.handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// postProbeText handles POST /api/v1/probe/text. submit=true bypasses the
// debounce (Enter); otherwise the text is treated as a keystroke.
func (s *Server) postProbeText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   string `json:"text"`
		Submit bool   `json:"submit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	if req.Submit {
		if err := s.engine.SubmitProbeText(r.Context(), req.Text); err != nil {
			s.handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.engine.Snapshot())
		return
	}

	s.engine.ProbeText(r.Context(), req.Text)
	writeJSON(w, http.StatusAccepted, s.engine.Snapshot())
}

// postProbeImage handles POST /api/v1/probe/image.
func (s *Server) postProbeImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        int   `json:"id"`
		Negatives []int `json:"negatives"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if err := s.engine.ProbeImage(r.Context(), req.ID, req.Negatives...); err != nil {
		s.handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// postProbeUpload handles POST /api/v1/probe/upload (multipart, field "file").
func (s *Server) postProbeUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "file field is required")
		return
	}
	defer file.Close()

	if err := s.engine.ProbeUpload(r.Context(), header.Filename, file); err != nil {
		s.handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// postProbeClear handles POST /api/v1/probe/clear.
func (s *Server) postProbeClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearProbe(r.Context()); err != nil {
		s.handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// postDetailOpen handles POST /api/v1/detail/{id}.
func (s *Server) postDetailOpen(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "id must be a non-negative integer")
		return
	}
	s.engine.OpenDetail(id)
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// deleteDetail handles DELETE /api/v1/detail.
func (s *Server) deleteDetail(w http.ResponseWriter, r *http.Request) {
	s.engine.CloseDetail()
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// postAnchor handles POST /api/v1/anchor.
func (s *Server) postAnchor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScrollOffset int `json:"scroll_offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	s.engine.SaveAnchor(req.ScrollOffset)
	writeJSON(w, http.StatusOK, map[string]string{"location": s.engine.Location()})
}

// postBack handles POST /api/v1/nav/back.
func (s *Server) postBack(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Back(r.Context()); err != nil {
		s.handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// postForward handles POST /api/v1/nav/forward.
func (s *Server) postForward(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Forward(r.Context()); err != nil {
		s.handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// postRestore handles POST /api/v1/nav/restore (reload, shared link).
func (s *Server) postRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if err := s.engine.Restore(r.Context(), req.Location); err != nil {
		s.handleEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// postHighlightCard handles POST /api/v1/highlight/card/{id}.
func (s *Server) postHighlightCard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "id must be a non-negative integer")
		return
	}
	s.engine.HighlightCard(id)
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// postHighlightFacet handles POST /api/v1/highlight/facet.
func (s *Server) postHighlightFacet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
		Norm string `json:"norm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Norm == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "norm is required")
		return
	}
	s.engine.HighlightFacet(localbooru.TagKey{Kind: localbooru.TagKind(req.Kind), Norm: req.Norm})
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// deleteHighlight handles DELETE /api/v1/highlight.
func (s *Server) deleteHighlight(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearHighlight()
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleEngineError(w http.ResponseWriter, err error) {
	s.logger.Warn("engine error", zap.Error(err))

	if errors.Is(err, localbooru.ErrSemanticDisabled) {
		writeError(w, http.StatusServiceUnavailable, "semantic_disabled", err.Error())
		return
	}
	var statusErr *booruapi.StatusError
	if errors.As(err, &statusErr) {
		writeError(w, http.StatusBadGateway, "upstream_error", statusErr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
