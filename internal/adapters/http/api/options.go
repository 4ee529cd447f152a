package api

import "github.com/okian/lakeline/pkg/logger"

type settings struct {
	log            logger.Logger
	allowedOrigins []string
}

// Option configures the API server.
type Option func(*settings)

// WithLogger sets the logger of the API handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAllowedOrigins lists the browser origins allowed to open a stream.
// "*" allows any origin. Requests without an Origin header are always
// allowed.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *settings) { s.allowedOrigins = origins }
}
