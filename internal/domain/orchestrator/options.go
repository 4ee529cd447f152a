package orchestrator

import (
	"time"

	"github.com/okian/lakeline/pkg/logger"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDebounce sets the coalescing delay. Zero still defers delivery to a
// timer goroutine.
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithDayFilter restricts fetched days to the filter's answer.
func WithDayFilter(f DayFilter) Option {
	return func(o *Orchestrator) {
		o.filter = f
	}
}

// WithOnBatch observes every delivered batch.
func WithOnBatch(fn func(Batch)) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.onBatch = fn
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}
