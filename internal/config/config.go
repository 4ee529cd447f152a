// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Durations are carried as integer milliseconds (`*_ms`) and exposed
//     through typed accessors.
//   - Provide New() to build a Config with defaults; Load layers file and env on top.
//   - External errors are wrapped with this package's sentinels.
package config

import (
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects text or json log records.
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// StreamOrigins is a comma-separated list of browser origins allowed to
	// open render streams; "*" allows any.
	StreamOrigins string `koanf:"stream_origins"`

	// StacAPI is the base URL of the STAC catalogue.
	StacAPI string `koanf:"stac_api" validate:"required,url"`

	// TilerAPI is the base URL of the COG tiler used for point statistics.
	TilerAPI string `koanf:"tiler_api" validate:"required,url"`

	// FeaturesCollection holds one feature per lake.
	FeaturesCollection string `koanf:"features_collection" validate:"required"`

	// ScenesCollection holds one item per lake and acquisition day.
	ScenesCollection string `koanf:"scenes_collection" validate:"required"`

	// IndicatorBucket is the object-store prefix for indicator rasters.
	IndicatorBucket string `koanf:"indicator_bucket" validate:"required"`

	// WorkerCount sets the number of fetch workers.
	WorkerCount int `koanf:"worker_count" validate:"min=1"`

	// QueueSize bounds the in-memory fetch job queue.
	QueueSize int `koanf:"queue_size" validate:"min=1"`

	// DebounceMS is the visible-range fetch debounce.
	DebounceMS int `koanf:"debounce_ms" validate:"min=0"`

	// SettleDelayMS is the pan/zoom settle delay after the last movement.
	SettleDelayMS int `koanf:"settle_delay_ms" validate:"min=0"`

	// MaxSessions caps concurrently open timelines; the least recently used is evicted.
	MaxSessions int `koanf:"max_sessions" validate:"min=1"`

	// FilterDays restricts timeline fetches to days present in the lake's
	// statistics series.
	FilterDays bool `koanf:"filter_days"`

	// LakeCacheSize caps cached lake metadata entries.
	LakeCacheSize int `koanf:"lake_cache_size" validate:"min=1"`

	// RequestTimeoutMS bounds each upstream request.
	RequestTimeoutMS int `koanf:"request_timeout_ms" validate:"min=1"`

	// RateLimitRPS and RateLimitBurst throttle upstream requests.
	RateLimitRPS   float64 `koanf:"rate_limit_rps" validate:"gt=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"min=1"`

	// BreakerFailureThreshold is the consecutive failure count that opens the breaker.
	BreakerFailureThreshold int `koanf:"breaker_failure_threshold" validate:"min=1"`

	// BreakerTimeoutMS is how long the breaker stays open before probing.
	BreakerTimeoutMS int `koanf:"breaker_timeout_ms" validate:"min=1"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		StreamOrigins:           "*",
		StacAPI:                 "https://stac.whis.example.com",
		TilerAPI:                "https://tiler.whis.example.com",
		FeaturesCollection:      "whis-lakes-labelec-features-c2rcc",
		ScenesCollection:        "whis-lakes-labelec-scenes-c2rcc",
		IndicatorBucket:         "s3://whis-processed/whis_lakes_labelec",
		WorkerCount:             runtime.NumCPU() * 4,
		QueueSize:               4_096,
		DebounceMS:              500,
		SettleDelayMS:           150,
		MaxSessions:             256,
		LakeCacheSize:           512,
		FilterDays:              true,
		RequestTimeoutMS:        10_000,
		RateLimitRPS:            50,
		RateLimitBurst:          100,
		BreakerFailureThreshold: 5,
		BreakerTimeoutMS:        30_000,
	}
}

// Debounce returns the visible-range fetch debounce.
func (c *Config) Debounce() time.Duration { return ms(c.DebounceMS) }

// SettleDelay returns the pan/zoom settle delay.
func (c *Config) SettleDelay() time.Duration { return ms(c.SettleDelayMS) }

// RequestTimeout returns the per-request upstream timeout.
func (c *Config) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }

// BreakerTimeout returns the open-state duration of the upstream breaker.
func (c *Config) BreakerTimeout() time.Duration { return ms(c.BreakerTimeoutMS) }

// AllowedOrigins splits StreamOrigins.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.StreamOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
