// Package stac talks to the STAC catalogue and the COG tiler that serve
// lake features, daily scenes and indicator rasters.
//
// Every request goes through a token bucket and a circuit breaker. A 404
// is an answer, not a failure: it maps to cache.ErrNotFound and does not
// count against the breaker.
package stac

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/okian/lakeline/internal/domain/cache"
	"github.com/okian/lakeline/pkg/logger"
	"github.com/okian/lakeline/pkg/metrics"
)

const breakerName = "stac"

// Client is safe for concurrent use.
type Client struct {
	stacAPI  string
	tilerAPI string
	features string
	scenes   string
	bucket   string

	http             *http.Client
	timeout          time.Duration
	rps              float64
	burst            int
	threshold        uint32
	breakerTimeout   time.Duration
	pointConcurrency int
	log              logger.Logger

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// New creates a client for the given catalogue and tiler base URLs.
func New(stacAPI, tilerAPI string, opts ...Option) (*Client, error) {
	for _, raw := range []string{stacAPI, tilerAPI} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, raw)
		}
	}

	c := &Client{
		stacAPI:          strings.TrimRight(stacAPI, "/"),
		tilerAPI:         strings.TrimRight(tilerAPI, "/"),
		features:         DefaultFeaturesCollection,
		scenes:           DefaultScenesCollection,
		bucket:           DefaultIndicatorBucket,
		http:             &http.Client{},
		timeout:          DefaultRequestTimeout,
		rps:              DefaultRateLimit,
		burst:            DefaultRateBurst,
		threshold:        DefaultBreakerThreshold,
		breakerTimeout:   DefaultBreakerTimeout,
		pointConcurrency: DefaultPointConcurrency,
		log:              logger.Get().Named("stac"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.bucket = strings.TrimRight(c.bucket, "/")

	c.limiter = rate.NewLimiter(rate.Limit(c.rps), c.burst)
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, cache.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			c.log.Warn(context.Background(), "breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	metrics.UpdateBreakerState(breakerName, int(gobreaker.StateClosed))
	return c, nil
}

// GetJSON fetches url and decodes the body into out. It satisfies
// cache.Getter.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	body, err := c.do(ctx, http.MethodGet, url, header, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// PostJSON sends in as a JSON body and decodes the answer into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", url, err)
	}
	body, err := c.do(ctx, http.MethodPost, url, nil, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// BreakerState reports the breaker state: closed, half-open or open.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

func (c *Client) do(ctx context.Context, method, url string, header http.Header, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", url, err)
	}
	return c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, url, header, payload)
	})
}

func (c *Client) roundTrip(ctx context.Context, method, url string, header http.Header, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest("error", msSince(start))
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordUpstreamRequest(strconv.Itoa(resp.StatusCode), msSince(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s %s: %w", method, url, cache.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Method: method, URL: url, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
