package stac

import (
	"net/http"
	"time"

	"github.com/okian/lakeline/pkg/logger"
)

// Defaults used when no option overrides them.
const (
	DefaultFeaturesCollection = "whis-lakes-labelec-features-c2rcc"
	DefaultScenesCollection   = "whis-lakes-labelec-scenes-c2rcc"
	DefaultIndicatorBucket    = "s3://whis-processed/whis_lakes_labelec"
	DefaultRequestTimeout     = 10 * time.Second
	DefaultRateLimit          = 50
	DefaultRateBurst          = 100
	DefaultBreakerThreshold   = 5
	DefaultBreakerTimeout     = 30 * time.Second
	DefaultPointConcurrency   = 4

	maxBodyBytes = 32 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCollections names the lake features and daily scenes collections.
func WithCollections(features, scenes string) Option {
	return func(c *Client) {
		if features != "" {
			c.features = features
		}
		if scenes != "" {
			c.scenes = scenes
		}
	}
}

// WithIndicatorBucket sets the object-store prefix of indicator rasters.
func WithIndicatorBucket(bucket string) Option {
	return func(c *Client) {
		if bucket != "" {
			c.bucket = bucket
		}
	}
}

// WithRequestTimeout bounds each upstream round trip.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit throttles upstream requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.rps = rps
		}
		if burst > 0 {
			c.burst = burst
		}
	}
}

// WithBreaker opens the breaker after threshold consecutive failures and
// keeps it open for timeout.
func WithBreaker(threshold int, timeout time.Duration) Option {
	return func(c *Client) {
		if threshold > 0 {
			c.threshold = uint32(threshold)
		}
		if timeout > 0 {
			c.breakerTimeout = timeout
		}
	}
}

// WithPointConcurrency caps parallel tiler lookups per call.
func WithPointConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pointConcurrency = n
		}
	}
}
