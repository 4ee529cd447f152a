package service

import (
	"time"

	"github.com/okian/lakeline/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of fetch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of waiting fetch jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDebounce sets the visible-range fetch debounce of new timelines.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithSettleDelay sets the pan/zoom settle delay of new timelines.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.settleDelay = d
		}
	}
}

// WithMaxSessions caps open timelines. The least recently used one is
// closed when the cap is exceeded.
func WithMaxSessions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithLakeCacheSize caps cached lake metadata.
func WithLakeCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.lakeCacheSize = n
		}
	}
}

// WithDayFiltering restricts timeline fetches to days present in the
// lake's statistics series.
func WithDayFiltering(enabled bool) Option {
	return func(s *Service) { s.filterDays = enabled }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
