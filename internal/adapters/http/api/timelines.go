package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	service "github.com/okian/lakeline/internal/app"
	"github.com/okian/lakeline/internal/domain/orchestrator"
	"github.com/okian/lakeline/internal/domain/scale"
	"github.com/okian/lakeline/internal/domain/timeline"
)

// TimelineDependencies defines the interface for timeline sessions.
type TimelineDependencies interface {
	OpenTimeline(ctx context.Context, req service.OpenRequest) (*service.Session, error)
	Session(id string) (*service.Session, error)
	CloseTimeline(id string) error
	Gesture(id string, g service.Gesture) error
	Jump(id string, day time.Time) (bool, error)
	Resize(id string, width, height float64) error
	AllowedDays(ctx context.Context, id string) (scale.DateWindow, orchestrator.Allowed, error)
	TileURL(id string, day time.Time, colormap string) (string, error)
}

// TimelineHandler handles timeline session requests.
type TimelineHandler struct {
	deps     TimelineDependencies
	validate *validator.Validate
}

// NewTimelineHandler creates a new timeline handler.
func NewTimelineHandler(deps TimelineDependencies, validate *validator.Validate) *TimelineHandler {
	return &TimelineHandler{deps: deps, validate: validate}
}

type openRequest struct {
	LakeID    string  `json:"lake_id" validate:"required"`
	Indicator string  `json:"indicator"`
	Width     float64 `json:"width" validate:"gt=0"`
	Height    float64 `json:"height" validate:"gt=0"`
	Date      string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type gesturesRequest struct {
	Gestures []service.Gesture `json:"gestures" validate:"required,min=1,max=256"`
}

type jumpRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type resizeRequest struct {
	Width  float64 `json:"width" validate:"gt=0"`
	Height float64 `json:"height" validate:"gt=0"`
}

type jumpResponse struct {
	Moved bool           `json:"moved"`
	Frame timeline.Frame `json:"frame"`
}

type allowedDaysResponse struct {
	Window scale.DateWindow `json:"window"`
	orchestrator.Allowed
}

type tilesResponse struct {
	URL string `json:"url"`
}

// HandleOpen handles POST /timelines requests.
func (h *TimelineHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decode(r, &req, h.validate); err != nil {
		writeServiceError(w, err)
		return
	}
	open := service.OpenRequest{
		LakeID:    req.LakeID,
		Indicator: req.Indicator,
		Width:     req.Width,
		Height:    req.Height,
	}
	if req.Date != "" {
		// Format checked by the validator.
		open.Day, _ = scale.ParseISODate(req.Date)
	}

	sess, err := h.deps.OpenTimeline(r.Context(), open)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/timelines/"+sess.ID)
	writeJSON(w, http.StatusCreated, sess.View())
}

// HandleGet handles GET /timelines/{id} requests.
func (h *TimelineHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Session(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

// HandleClose handles DELETE /timelines/{id} requests.
func (h *TimelineHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.CloseTimeline(chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGestures handles POST /timelines/{id}/gestures requests. Gestures
// are applied in order; the first invalid one stops the batch.
func (h *TimelineHandler) HandleGestures(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req gesturesRequest
	if err := decode(r, &req, h.validate); err != nil {
		writeServiceError(w, err)
		return
	}
	for _, g := range req.Gestures {
		if err := h.deps.Gesture(id, g); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	h.writeFrame(w, id, http.StatusOK)
}

// HandleJump handles POST /timelines/{id}/jump requests.
func (h *TimelineHandler) HandleJump(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req jumpRequest
	if err := decode(r, &req, h.validate); err != nil {
		writeServiceError(w, err)
		return
	}
	day, _ := scale.ParseISODate(req.Date)
	moved, err := h.deps.Jump(id, day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sess, err := h.deps.Session(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jumpResponse{Moved: moved, Frame: sess.Timeline().Frame()})
}

// HandleResize handles POST /timelines/{id}/resize requests.
func (h *TimelineHandler) HandleResize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req resizeRequest
	if err := decode(r, &req, h.validate); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.deps.Resize(id, req.Width, req.Height); err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeFrame(w, id, http.StatusOK)
}

// HandleAllowedDays handles GET /timelines/{id}/allowed-days requests.
func (h *TimelineHandler) HandleAllowedDays(w http.ResponseWriter, r *http.Request) {
	window, allowed, err := h.deps.AllowedDays(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allowedDaysResponse{Window: window, Allowed: allowed})
}

// HandleTiles handles GET /timelines/{id}/tiles?date=&colormap= requests.
func (h *TimelineHandler) HandleTiles(w http.ResponseWriter, r *http.Request) {
	day, err := scale.ParseISODate(r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, errors.Join(ErrBadRequest, err))
		return
	}
	u, err := h.deps.TileURL(chi.URLParam(r, "id"), day, r.URL.Query().Get("colormap"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tilesResponse{URL: u})
}

func (h *TimelineHandler) writeFrame(w http.ResponseWriter, id string, status int) {
	sess, err := h.deps.Session(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, status, sess.Timeline().Frame())
}
