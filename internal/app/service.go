// Package service wires the timeline domain to the upstream catalogue and
// exposes the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/lakeline/internal/adapters/mq/queue"
	"github.com/okian/lakeline/internal/adapters/mq/worker"
	"github.com/okian/lakeline/internal/adapters/stac"
	"github.com/okian/lakeline/internal/domain/cache"
	"github.com/okian/lakeline/internal/domain/model"
	"github.com/okian/lakeline/internal/domain/orchestrator"
	"github.com/okian/lakeline/internal/domain/panzoom"
	"github.com/okian/lakeline/internal/domain/scale"
	"github.com/okian/lakeline/internal/domain/timeline"
	"github.com/okian/lakeline/pkg/logger"
	"github.com/okian/lakeline/pkg/metrics"
)

// Upstream is the catalogue and tiler. *stac.Client satisfies it.
type Upstream interface {
	cache.Getter
	Lakes(ctx context.Context) ([]model.Lake, error)
	Lake(ctx context.Context, id string) (model.Lake, error)
	Series(ctx context.Context, lake model.Lake) ([]model.SeriesPoint, error)
	SceneLocator(lakeID string) orchestrator.Locator
	PointValue(ctx context.Context, lakeID, indicator string, day time.Time, lng, lat float64) (*float64, error)
	PreviousMeasurement(ctx context.Context, lakeID, indicator string, day time.Time, lng, lat float64) *stac.Measurement
	TileURL(itemID, indicator string, vd scale.ValueDomain, colormap string) string
}

type lakeInfo struct {
	Lake       model.Lake
	Series     []model.SeriesPoint
	Indicators []model.Indicator
}

// LakeDetail is a lake with its selectable indicators.
type LakeDetail struct {
	Lake       model.Lake        `json:"lake"`
	Indicators []model.Indicator `json:"indicators"`
}

// OpenRequest opens a timeline. Indicator defaults to chlorophyll and a
// zero Day opens on the indicator's last observed day.
type OpenRequest struct {
	LakeID    string
	Indicator string
	Width     float64
	Height    float64
	Day       time.Time
}

// Gesture is one pointer or wheel input.
type Gesture struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	DX   float64 `json:"dx"`
	DY   float64 `json:"dy"`
}

// Gesture kinds.
const (
	GestureDown  = "down"
	GestureMove  = "move"
	GestureUp    = "up"
	GestureWheel = "wheel"
)

// PointStats is an indicator value at a point plus the latest earlier one.
type PointStats struct {
	Date     time.Time         `json:"date"`
	Value    *float64          `json:"value"`
	Previous *stac.Measurement `json:"previous,omitempty"`
}

// Service owns the shared scene cache, the fetch workers and the open
// timeline sessions.
type Service struct {
	mu sync.RWMutex

	upstream Upstream

	fetchQueue *queue.InMemoryQueue
	pool       *worker.Pool
	scenes     *cache.Cache[stac.SceneItem]
	sessions   *lru.Cache[string, *Session]
	lakes      *lru.Cache[string, *lakeInfo]
	cancel     context.CancelFunc

	workerCount   int
	queueSize     int
	debounce      time.Duration
	settleDelay   time.Duration
	maxSessions   int
	lakeCacheSize int
	filterDays    bool

	started bool

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(upstream Upstream, opts ...Option) *Service {
	s := &Service{
		upstream:      upstream,
		workerCount:   runtime.NumCPU() * 4,
		queueSize:     4_096,
		debounce:      orchestrator.DefaultDebounce,
		settleDelay:   panzoom.DefaultSettleDelay,
		maxSessions:   256,
		lakeCacheSize: 512,
		filterDays:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting timeline service...")

	sessions, err := lru.NewWithEvict(s.maxSessions, func(_ string, sess *Session) {
		if sess.close() {
			metrics.RecordSessionEvicted()
			s.logger.Info(context.Background(), "timeline session evicted", logger.String("session", sess.ID))
		}
	})
	if err != nil {
		return fmt.Errorf("session registry: %w", err)
	}
	lakes, err := lru.New[string, *lakeInfo](s.lakeCacheSize)
	if err != nil {
		return fmt.Errorf("lake cache: %w", err)
	}

	// Workers outlive the Start caller's context; Stop ends them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.fetchQueue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)
	s.pool = worker.NewPool(s.workerCount, s.fetchQueue)
	s.pool.Start(runCtx)
	s.scenes = cache.New[stac.SceneItem](s.upstream,
		cache.WithDispatcher(worker.NewDispatcher(s.fetchQueue)),
		cache.WithLogger(s.logger.Named("cache")),
	)
	s.sessions = sessions
	s.lakes = lakes
	s.cancel = cancel
	s.started = true

	s.logger.Info(ctx, "timeline service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("maxSessions", s.maxSessions),
	)
	return nil
}

// Stop closes every session and drains the fetch workers.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping timeline service...")

	for _, sess := range s.sessions.Values() {
		sess.close()
	}
	s.sessions.Purge()
	s.scenes.Close()
	// The pool drains before runCtx ends so no queued fetch is dropped.
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	s.cancel()

	s.started = false
	metrics.UpdateSessionsActive(0)
	s.logger.Info(ctx, "timeline service stopped")
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Lakes lists every lake.
func (s *Service) Lakes(ctx context.Context) ([]model.Lake, error) {
	return s.upstream.Lakes(ctx)
}

// Lake returns a lake and its indicators.
func (s *Service) Lake(ctx context.Context, id string) (LakeDetail, error) {
	info, err := s.lookupLake(ctx, id)
	if err != nil {
		return LakeDetail{}, err
	}
	return LakeDetail{Lake: info.Lake, Indicators: info.Indicators}, nil
}

func (s *Service) lookupLake(ctx context.Context, id string) (*lakeInfo, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if info, ok := s.lakes.Get(id); ok {
		return info, nil
	}

	lake, err := s.upstream.Lake(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrLakeNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	series, err := s.upstream.Series(ctx, lake)
	if err != nil {
		return nil, err
	}
	indicators, err := model.Indicators(series)
	if err != nil {
		return nil, fmt.Errorf("indicators of %s: %w", id, err)
	}

	info := &lakeInfo{Lake: lake, Series: series, Indicators: indicators}
	s.lakes.Add(id, info)
	return info, nil
}

// OpenTimeline creates a session and fetches its first window.
func (s *Service) OpenTimeline(ctx context.Context, req OpenRequest) (*Session, error) {
	info, err := s.lookupLake(ctx, req.LakeID)
	if err != nil {
		return nil, err
	}
	indicatorID := req.Indicator
	if indicatorID == "" {
		indicatorID = model.Chlorophyll
	}
	ind, ok := model.FindIndicator(info.Indicators, indicatorID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndicatorNotFound, indicatorID)
	}

	sess := newSession(uuid.NewString(), info, ind)
	opts := []timeline.Option{
		timeline.WithSize(req.Width, req.Height),
		timeline.WithSettleDelay(s.settleDelay),
		timeline.WithDebounce(s.debounce),
		timeline.WithRender(sess.broadcast),
		timeline.WithLogger(s.logger.Named("timeline").Named(sess.ID)),
	}
	if s.filterDays {
		opts = append(opts, timeline.WithDayFilter(stac.SeriesDayFilter(info.Series)))
	}
	initial := req.Day
	if initial.IsZero() {
		initial = ind.DateDomain.End
	}
	opts = append(opts, timeline.WithInitialDay(initial))

	tl, err := timeline.New(ind.DateDomain, s.scenes, stac.LakeKey(info.Lake.ID),
		s.upstream.SceneLocator(info.Lake.ID), stac.IndicatorExtractor(ind.ID), opts...)
	if err != nil {
		return nil, fmt.Errorf("timeline of %s: %w", info.Lake.ID, err)
	}
	sess.tl = tl
	if err := tl.Start(); err != nil {
		tl.Close()
		return nil, fmt.Errorf("timeline of %s: %w", info.Lake.ID, err)
	}

	s.sessions.Add(sess.ID, sess)
	metrics.RecordSessionOpened()
	metrics.UpdateSessionsActive(s.sessions.Len())
	s.logger.Info(ctx, "timeline session opened",
		logger.String("session", sess.ID),
		logger.String("lake", info.Lake.ID),
		logger.String("indicator", ind.ID),
	)
	return sess, nil
}

// Session returns an open session.
func (s *Service) Session(id string) (*Session, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// CloseTimeline closes a session.
func (s *Service) CloseTimeline(id string) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	sess.close()
	s.sessions.Remove(id)
	metrics.UpdateSessionsActive(s.sessions.Len())
	return nil
}

// Gesture feeds one input to a session's controller.
func (s *Service) Gesture(id string, g Gesture) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	ctrl := sess.tl.Controller()
	switch g.Kind {
	case GestureDown:
		ctrl.PointerDown(g.X, g.Y)
	case GestureMove:
		ctrl.PointerMove(g.X, g.Y)
	case GestureUp:
		ctrl.PointerUp()
	case GestureWheel:
		ctrl.Wheel(g.DX, g.DY)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidGesture, g.Kind)
	}
	return nil
}

// Jump centres day in a session's viewport unless it is visible.
func (s *Service) Jump(id string, day time.Time) (bool, error) {
	sess, err := s.Session(id)
	if err != nil {
		return false, err
	}
	return sess.tl.JumpTo(day)
}

// Resize declares a session's new canvas size.
func (s *Service) Resize(id string, width, height float64) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	return sess.tl.Resize(width, height)
}

// Subscribe streams a session's rendered frames.
func (s *Service) Subscribe(id string) (<-chan timeline.Frame, func(), error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, nil, err
	}
	return sess.Subscribe()
}

// AllowedDays reports which days of the session's visible window have
// observations.
func (s *Service) AllowedDays(ctx context.Context, id string) (scale.DateWindow, orchestrator.Allowed, error) {
	sess, err := s.Session(id)
	if err != nil {
		return scale.DateWindow{}, orchestrator.Allowed{}, err
	}
	w, err := sess.tl.Window()
	if err != nil {
		return scale.DateWindow{}, orchestrator.Allowed{}, err
	}
	allowed, err := stac.SeriesDayFilter(sess.series).AllowedDays(ctx, w)
	return w, allowed, err
}

// TileURL is the raster layer of a session's indicator on day.
func (s *Service) TileURL(id string, day time.Time, colormap string) (string, error) {
	sess, err := s.Session(id)
	if err != nil {
		return "", err
	}
	return s.upstream.TileURL(stac.SceneID(sess.Lake.ID, day), sess.Indicator.ID, sess.Indicator.ValueDomain, colormap), nil
}

// PointStats samples an indicator at lng, lat on day and looks up the
// latest earlier measurement.
func (s *Service) PointStats(ctx context.Context, lakeID, indicator string, day time.Time, lng, lat float64) (PointStats, error) {
	if err := s.running(); err != nil {
		return PointStats{}, err
	}
	if indicator == "" {
		indicator = model.Chlorophyll
	}
	day = scale.StartOfDay(day)
	v, err := s.upstream.PointValue(ctx, lakeID, indicator, day, lng, lat)
	if err != nil {
		return PointStats{}, fmt.Errorf("point value: %w", err)
	}
	return PointStats{
		Date:     day,
		Value:    v,
		Previous: s.upstream.PreviousMeasurement(ctx, lakeID, indicator, day, lng, lat),
	}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"maxSessions": s.maxSessions,
	}
	if b, ok := s.upstream.(interface{ BreakerState() string }); ok {
		stats["breaker"] = b.BreakerState()
	}
	if s.started {
		queueLen := s.fetchQueue.Len(context.Background())
		stats["queueLength"] = queueLen
		stats["sessions"] = s.sessions.Len()
		stats["cachedLakes"] = s.lakes.Len()
		stats["cacheEntries"] = s.scenes.Len()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateSessionsActive(s.sessions.Len())
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}
