package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/thoughtmap/internal/app"
	"github.com/MrWong99/thoughtmap/internal/credential"
	"github.com/MrWong99/thoughtmap/internal/layout"
	"github.com/MrWong99/thoughtmap/internal/observe"
	"github.com/MrWong99/thoughtmap/internal/selection"
	"github.com/MrWong99/thoughtmap/internal/speech"
	"github.com/MrWong99/thoughtmap/internal/tree"
	"github.com/MrWong99/thoughtmap/pkg/concept"
	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
)

// Default viewport for layout requests without width or height.
const (
	defaultWidth  = 1200
	defaultHeight = 800
)

type stateResponse struct {
	Snapshot *tree.Snapshot `json:"snapshot"`
	Status   app.Status     `json:"status"`
}

func (s *Server) state() stateResponse {
	return stateResponse{Snapshot: s.app.Store().Snapshot(), Status: s.app.Status()}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

// ── Transcript and recording ────────────────────────────────────────────────

type transcriptResponse struct {
	Buffer        string `json:"buffer"`
	LastProcessed string `json:"last_processed"`
	Interim       string `json:"interim"`
	Pending       bool   `json:"pending"`
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, _ *http.Request) {
	sched := s.app.Scheduler()
	writeJSON(w, http.StatusOK, transcriptResponse{
		Buffer:        sched.Buffer(),
		LastProcessed: sched.LastProcessed(),
		Interim:       s.app.Recording().Interim(),
		Pending:       sched.Pending(),
	})
}

func (s *Server) handlePostTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.Recording().Push(req.Text, req.Final); err != nil {
		writeRecordingError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.app.Status())
}

// writeRecordingError maps recognizer errors to 409 responses.
func writeRecordingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, speech.ErrUnsupported):
		writeError(w, http.StatusConflict, "recording unavailable")
	case errors.Is(err, speech.ErrNotActive):
		writeError(w, http.StatusConflict, "recording is not active")
	case errors.Is(err, app.ErrRelayOnly):
		writeError(w, http.StatusConflict, "server-side recognition is active, stream audio over /ws instead")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec := s.app.Recording()
	if *req.Recording {
		if err := rec.Start(); err != nil {
			observe.Logger(r.Context()).Warn("api: start recording failed", "err", err)
			writeRecordingError(w, err)
			return
		}
	} else {
		rec.Stop()
	}
	writeJSON(w, http.StatusOK, rec.Info())
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	out, err := s.app.Trigger(r.Context())
	switch {
	case errors.Is(err, llm.ErrUnauthorized):
		writeError(w, http.StatusUnprocessableEntity, "the configured API key was rejected by the provider")
		return
	case errors.Is(err, llm.ErrRateLimited):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ── Concepts and selection ──────────────────────────────────────────────────

type conceptResponse struct {
	Concept  *concept.Node `json:"concept"`
	Path     []string      `json:"path"`
	Depth    int           `json:"depth"`
	Selected bool          `json:"selected"`
}

func (s *Server) handleGetConcept(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := s.app.Store().Snapshot()
	path := selection.Path(snap.Forest, id)
	if path == nil {
		writeError(w, http.StatusNotFound, "concept not found")
		return
	}
	texts := make([]string, len(path))
	for i, n := range path {
		texts[i] = n.Text
	}
	writeJSON(w, http.StatusOK, conceptResponse{
		Concept:  path[len(path)-1],
		Path:     texts,
		Depth:    len(path) - 1,
		Selected: snap.IsSelected(id),
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.Selection().Toggle(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, tree.ErrUnknownConcept) {
		writeError(w, http.StatusNotFound, "concept not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type selectionResponse struct {
	Selected     []*concept.Node `json:"selected"`
	FollowUps    []string        `json:"follow_ups"`
	FollowUpsFor string          `json:"follow_ups_for,omitempty"`
}

func (s *Server) handleSelection(w http.ResponseWriter, _ *http.Request) {
	snap := s.app.Store().Snapshot()
	resp := selectionResponse{
		Selected:     s.app.Selection().Selected(),
		FollowUps:    snap.FollowUps,
		FollowUpsFor: snap.FollowUpsFor,
	}
	if resp.FollowUps == nil {
		resp.FollowUps = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Layout ──────────────────────────────────────────────────────────────────

func (s *Server) settings(width, height float64, dir string) layout.Settings {
	lc := s.app.Config().Layout
	return layout.Settings{
		Width:           width,
		Height:          height,
		InnerRadius:     lc.InnerRadius,
		RadiusIncrement: lc.RadiusIncrement,
		NodeRadius:      lc.NodeRadius,
		Iterations:      lc.Iterations,
		Seed:            lc.Seed,
		Direction:       layout.Direction(dir),
	}
}

func parseDimension(raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	kind, err := layout.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	q := layoutQuery{Direction: strings.ToUpper(r.URL.Query().Get("direction"))}
	if q.Width, err = parseDimension(r.URL.Query().Get("width"), defaultWidth); err != nil {
		writeError(w, http.StatusBadRequest, "width must be a number")
		return
	}
	if q.Height, err = parseDimension(r.URL.Query().Get("height"), defaultHeight); err != nil {
		writeError(w, http.StatusBadRequest, "height must be a number")
		return
	}
	if err := validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, formatValidationError(err).Error())
		return
	}
	res := layout.Compute(kind, s.app.Store().Snapshot().Forest, s.settings(q.Width, q.Height, q.Direction))
	writeJSON(w, http.StatusOK, res)
}

type hitResponse struct {
	Hit      *layout.Placement `json:"hit"`
	Snapshot *tree.Snapshot    `json:"snapshot"`
}

// handleHit toggles the node under the pointer. A miss changes nothing and
// returns 204.
func (s *Server) handleHit(w http.ResponseWriter, r *http.Request) {
	kind, err := layout.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req hitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := layout.Compute(kind, s.app.Store().Snapshot().Forest, s.settings(req.Width, req.Height, r.URL.Query().Get("direction")))
	hit, ok := res.HitTest(*req.X, *req.Y, req.Radius)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	snap, err := s.app.Selection().Toggle(r.Context(), hit.ID)
	if errors.Is(err, tree.ErrUnknownConcept) {
		// The tree was rebuilt between layout and toggle.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, hitResponse{Hit: hit, Snapshot: snap})
}

// ── Credential ──────────────────────────────────────────────────────────────

type credentialResponse struct {
	Configured bool   `json:"configured"`
	Masked     string `json:"masked,omitempty"`
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	ok, err := s.app.HasCredential(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, credentialResponse{Configured: ok})
}

func (s *Server) handlePutCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := strings.TrimSpace(req.Key)
	if err := s.app.SaveCredential(r.Context(), key); err != nil {
		if errors.Is(err, credential.ErrInvalid) {
			writeError(w, http.StatusUnprocessableEntity, "API key is not valid")
			return
		}
		observe.Logger(r.Context()).Error("api: save credential failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to save API key")
		return
	}
	writeJSON(w, http.StatusOK, credentialResponse{Configured: true, Masked: credential.Mask(key)})
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := s.app.RemoveCredential(r.Context()); err != nil && !errors.Is(err, credential.ErrNotFound) {
		observe.Logger(r.Context()).Error("api: remove credential failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to remove API key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Debug ───────────────────────────────────────────────────────────────────

func (s *Server) handleDebugLog(w http.ResponseWriter, _ *http.Request) {
	entries := []app.DebugEntry{}
	if d := s.app.DebugLog(); d != nil {
		entries = d.Entries()
	}
	writeJSON(w, http.StatusOK, entries)
}
