package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/lakeline/internal/app"
	"github.com/okian/lakeline/internal/domain/model"
	"github.com/okian/lakeline/internal/domain/scale"
)

// LakesDependencies defines the interface for lake catalogue reads.
type LakesDependencies interface {
	Lakes(ctx context.Context) ([]model.Lake, error)
	Lake(ctx context.Context, id string) (service.LakeDetail, error)
	PointStats(ctx context.Context, lakeID, indicator string, day time.Time, lng, lat float64) (service.PointStats, error)
}

// LakesHandler handles lake requests.
type LakesHandler struct {
	deps LakesDependencies
}

// NewLakesHandler creates a new lakes handler.
func NewLakesHandler(deps LakesDependencies) *LakesHandler {
	return &LakesHandler{deps: deps}
}

// HandleList handles GET /lakes requests.
func (h *LakesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	lakes, err := h.deps.Lakes(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lakes)
}

// HandleGet handles GET /lakes/{lakeID} requests.
func (h *LakesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.deps.Lake(r.Context(), chi.URLParam(r, "lakeID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandlePoint handles GET /lakes/{lakeID}/point?date=&lng=&lat=&indicator=
// requests.
func (h *LakesHandler) HandlePoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := scale.ParseISODate(q.Get("date"))
	if err != nil {
		writeServiceError(w, errors.Join(ErrBadRequest, err))
		return
	}
	lng, err := parseCoordinate(q.Get("lng"), 180)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	lat, err := parseCoordinate(q.Get("lat"), 90)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	stats, err := h.deps.PointStats(r.Context(), chi.URLParam(r, "lakeID"), q.Get("indicator"), day, lng, lat)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseCoordinate(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrBadRequest, s)
	}
	if v < -limit || v > limit {
		return 0, fmt.Errorf("%w: coordinate %v out of range", ErrBadRequest, v)
	}
	return v, nil
}
