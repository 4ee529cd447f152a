package cache

import (
	"net/http"

	"github.com/okian/lakeline/pkg/logger"
)

type settings struct {
	log        logger.Logger
	dispatcher Dispatcher
}

// Option configures a Cache.
type Option func(*settings)

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDispatcher routes fetch work through d instead of bare goroutines.
func WithDispatcher(d Dispatcher) Option {
	return func(s *settings) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

type fetchOptions struct {
	force  bool
	header http.Header
}

// FetchOption tunes a single Fetch call.
type FetchOption func(*fetchOptions)

// Force re-issues the request even when the entry is loading or succeeded.
func Force() FetchOption {
	return func(o *fetchOptions) { o.force = true }
}

// WithHeader adds a request header.
func WithHeader(key, value string) FetchOption {
	return func(o *fetchOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Add(key, value)
	}
}
