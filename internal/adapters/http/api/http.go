// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/okian/lakeline/internal/adapters/http/swagger"
	"github.com/okian/lakeline/internal/adapters/stac"
	service "github.com/okian/lakeline/internal/app"
	"github.com/okian/lakeline/internal/domain/cache"
	"github.com/okian/lakeline/internal/domain/model"
	"github.com/okian/lakeline/internal/domain/orchestrator"
	"github.com/okian/lakeline/internal/domain/scale"
	"github.com/okian/lakeline/internal/domain/timeline"
	"github.com/okian/lakeline/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	StatsProvider

	Lakes(ctx context.Context) ([]model.Lake, error)
	Lake(ctx context.Context, id string) (service.LakeDetail, error)
	PointStats(ctx context.Context, lakeID, indicator string, day time.Time, lng, lat float64) (service.PointStats, error)

	OpenTimeline(ctx context.Context, req service.OpenRequest) (*service.Session, error)
	Session(id string) (*service.Session, error)
	CloseTimeline(id string) error
	Gesture(id string, g service.Gesture) error
	Jump(id string, day time.Time) (bool, error)
	Resize(id string, width, height float64) error
	Subscribe(id string) (<-chan timeline.Frame, func(), error)
	AllowedDays(ctx context.Context, id string) (scale.DateWindow, orchestrator.Allowed, error)
	TileURL(id string, day time.Time, colormap string) (string, error)
}

// Server wires HTTP routes for the timeline API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	lakesHandler    *LakesHandler
	timelineHandler *TimelineHandler
	streamHandler   *StreamHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := settings{log: logger.Get().Named("api")}
	for _, opt := range opts {
		opt(&s)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		lakesHandler:    NewLakesHandler(deps),
		timelineHandler: NewTimelineHandler(deps, v),
		streamHandler:   NewStreamHandler(deps, s.log, s.allowedOrigins),
	}
}

// Router returns the chi router with every route attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/metrics", s.healthHandler.HandleMetrics)
	swagger.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(MetricsMiddleware)

		r.Get("/healthz", s.healthHandler.HandleHealth)
		r.Get("/stats", s.statsHandler.HandleStats)

		r.Route("/lakes", func(r chi.Router) {
			r.Get("/", s.lakesHandler.HandleList)
			r.Get("/{lakeID}", s.lakesHandler.HandleGet)
			r.Get("/{lakeID}/point", s.lakesHandler.HandlePoint)
		})

		r.Route("/timelines", func(r chi.Router) {
			r.Post("/", s.timelineHandler.HandleOpen)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.timelineHandler.HandleGet)
				r.Delete("/", s.timelineHandler.HandleClose)
				r.Post("/gestures", s.timelineHandler.HandleGestures)
				r.Post("/jump", s.timelineHandler.HandleJump)
				r.Post("/resize", s.timelineHandler.HandleResize)
				r.Get("/allowed-days", s.timelineHandler.HandleAllowedDays)
				r.Get("/tiles", s.timelineHandler.HandleTiles)
				r.Get("/stream", s.streamHandler.HandleStream)
			})
		})
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps domain and upstream failures to a status.
func writeServiceError(w http.ResponseWriter, err error) {
	var statusErr *stac.StatusError
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrLakeNotFound),
		errors.Is(err, service.ErrIndicatorNotFound),
		errors.Is(err, cache.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidGesture),
		errors.Is(err, scale.ErrInvalidDomain),
		errors.Is(err, scale.ErrDegenerateScale):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrSubscriberCapacity):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadGateway, "upstream_error", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decode reads a JSON body into v and validates its struct tags.
func decode(r *http.Request, v any, validate *validator.Validate) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}
