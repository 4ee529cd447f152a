package timeline

import (
	"time"

	"github.com/okian/lakeline/internal/domain/orchestrator"
	"github.com/okian/lakeline/internal/domain/panzoom"
	"github.com/okian/lakeline/pkg/logger"
)

// Default canvas size when none is declared.
const (
	DefaultWidth  = 800.0
	DefaultHeight = 200.0
)

type settings struct {
	width       float64
	height      float64
	settleDelay time.Duration
	debounce    time.Duration
	filter      orchestrator.DayFilter
	render      func(Frame)
	initialDay  time.Time
	log         logger.Logger
}

func defaults() settings {
	return settings{
		width:       DefaultWidth,
		height:      DefaultHeight,
		settleDelay: panzoom.DefaultSettleDelay,
		debounce:    orchestrator.DefaultDebounce,
		render:      func(Frame) {},
		log:         logger.Get().Named("timeline"),
	}
}

// Option configures a Timeline.
type Option func(*settings)

// WithSize declares the canvas size in pixels.
func WithSize(width, height float64) Option {
	return func(s *settings) {
		if width > 0 {
			s.width = width
		}
		if height > 0 {
			s.height = height
		}
	}
}

// WithSettleDelay sets the pan/zoom settle delay.
func WithSettleDelay(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.settleDelay = d
		}
	}
}

// WithDebounce sets the visible-range fetch debounce.
func WithDebounce(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithDayFilter restricts fetched days.
func WithDayFilter(f orchestrator.DayFilter) Option {
	return func(s *settings) { s.filter = f }
}

// WithRender receives a frame after every committed pan change and every
// cache transition under the timeline's key prefix. It may be called from
// several goroutines.
func WithRender(fn func(Frame)) Option {
	return func(s *settings) {
		if fn != nil {
			s.render = fn
		}
	}
}

// WithInitialDay centres the initial view on day.
func WithInitialDay(day time.Time) Option {
	return func(s *settings) { s.initialDay = day }
}

// WithLogger sets the timeline logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}
