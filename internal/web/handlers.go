package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/justestif/tonal-divider/internal/clustering"
	"github.com/justestif/tonal-divider/internal/divider"
	"github.com/justestif/tonal-divider/internal/engine"
	"github.com/justestif/tonal-divider/internal/features"
)

// maxFramesBody bounds the size of a POST /api/frames body.
const maxFramesBody = 4 << 20

// Engine is the part of *engine.Engine the handlers use.
type Engine interface {
	Snapshot() engine.Snapshot
	Enclose(a, b orb.Point) (divider.Segment, bool)
	StepAll(frames []features.Frame) (int, error)
}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	engine    Engine
	templates *Templates
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(eng Engine, templates *Templates, logger *zap.Logger) *Handlers {
	return &Handlers{
		engine:    eng,
		templates: templates,
		logger:    logger,
	}
}

// Home handles the home page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	data := HomePageData{
		PageData: PageData{
			Title:       "Tonal Divider",
			CurrentPath: r.URL.Path,
		},
		Divider: newDividerData(h.engine.Snapshot()),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, "home", data); err != nil {
		h.logger.Error("rendering home", zap.Error(err))
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// DividerPartial renders the structure drawing alone (GET /partials/divider).
func (h *Handlers) DividerPartial(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.RenderPartial(w, "divider", newDividerData(h.engine.Snapshot())); err != nil {
		h.logger.Error("rendering divider partial", zap.Error(err))
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// State returns the latest snapshot as JSON (GET /api/state).
func (h *Handlers) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// EncloseResponse is the body of a successful enclosure query.
type EncloseResponse struct {
	Start       orb.Point `json:"start"`
	End         orb.Point `json:"end"`
	StartRegion string    `json:"start_region"`
	EndRegion   string    `json:"end_region"`
}

// Enclose answers GET /api/enclose?x1=&y1=&x2=&y2=. It responds 204 when the
// query line does not cross the plane.
func (h *Handlers) Enclose(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var coords [4]float64
	for i, name := range []string{"x1", "y1", "x2", "y2"} {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("parameter %s: expected a number", name))
			return
		}
		coords[i] = v
	}

	seg, ok := h.engine.Enclose(orb.Point{coords[0], coords[1]}, orb.Point{coords[2], coords[3]})
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, EncloseResponse{
		Start:       seg.Start,
		End:         seg.End,
		StartRegion: clustering.RegionName(seg.Start),
		EndRegion:   clustering.RegionName(seg.End),
	})
}

// FramesResponse is the body returned after ingesting frames.
type FramesResponse struct {
	Received int    `json:"received"`
	Changes  int    `json:"changes"`
	Frame    uint64 `json:"frame"`
	Lines    int    `json:"lines"`
}

// Frames steps a JSON array of frames in order (POST /api/frames).
func (h *Handlers) Frames(w http.ResponseWriter, r *http.Request) {
	var frames []features.Frame
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFramesBody))
	if err := dec.Decode(&frames); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected a JSON array of frames")
		return
	}

	changes, err := h.engine.StepAll(frames)
	if err != nil {
		h.logger.Error("stepping posted frames", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "processing frames failed")
		return
	}

	snap := h.engine.Snapshot()
	writeJSON(w, http.StatusOK, FramesResponse{
		Received: len(frames),
		Changes:  changes,
		Frame:    snap.Frame,
		Lines:    len(snap.Lines),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
