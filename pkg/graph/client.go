// Package graph implements the Meta Graph API client used by every sync:
// authenticated GETs, cursor pagination, retry with backoff, and typed
// classification of Graph error payloads.
package graph

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/adsync/pkg/errors"
	"github.com/ajitpratap0/adsync/pkg/metrics"
)

// Params holds request query parameters. Values are pre-rendered strings;
// numeric parameters go through SetInt.
type Params map[string]string

// SetInt renders an integer parameter.
func (p Params) SetInt(key string, v int) {
	p[key] = strconv.Itoa(v)
}

// Config holds Graph API client configuration. BaseURL is explicit so tests
// can point the client at a mock endpoint.
type Config struct {
	BaseURL         string
	Version         string
	AccessToken     string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	RateLimitPerSec int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.Version == "" {
		c.Version = "v21.0"
	}
	return c
}

// Client is a Meta Graph API client. It holds no mutable cross-call state;
// retry counters are local to each call, so a client instance is safe to use
// from the single worker that owns it without locking.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rateLimiter
	logger     *zap.Logger

	// sleep is injectable so backoff tests do not block
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Graph API client.
func NewClient(cfg Config, log *zap.Logger) *Client {
	cfg = cfg.withDefaults()

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	// HTTP/2 where the server supports it; falls back to HTTP/1.1
	_ = http2.ConfigureTransport(transport)

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: log,
		sleep:  sleepCtx,
	}

	if cfg.RateLimitPerSec > 0 {
		c.limiter = newRateLimiter(float64(cfg.RateLimitPerSec), cfg.RateLimitPerSec)
	}

	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// buildURL joins base, version and path, and injects the access token.
func (c *Client) buildURL(path string, params Params) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + c.cfg.Version + "/" + strings.TrimLeft(path, "/")

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("access_token", c.cfg.AccessToken)

	return base + "?" + q.Encode()
}

// Get issues a single GET to path, retried per policy, and returns the
// decoded JSON object. Retry exhaustion always surfaces the last error;
// a failed call is never reported as an empty result.
func (c *Client) Get(ctx context.Context, path string, params Params) (map[string]interface{}, error) {
	body, err := c.getWithRetry(ctx, c.buildURL(path, params), path)
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformed, "failed to decode response object")
	}
	return out, nil
}

// getWithRetry applies the retry policy to a single URL fetch:
//   - rate limit: sleep RetryDelay * (attempt+1), linear backoff
//   - timeout: sleep a fixed RetryDelay
//   - object access / permission: surfaced immediately, never retried
//   - anything else (network, malformed body): fixed-delay retry up to
//     MaxRetries, then the last error is returned
func (c *Client) getWithRetry(ctx context.Context, rawURL, endpoint string) ([]byte, error) {
	var lastErr error

	attempt := 0
	for attempt < c.cfg.MaxRetries {
		body, err := c.fetchOnce(ctx, rawURL, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return nil, err
		}

		// Exhaustion check before the sleep: the terminal failure surfaces
		// immediately instead of backing off with no attempt left to spend.
		attempt++
		if attempt >= c.cfg.MaxRetries {
			metrics.APIRequests.WithLabelValues(endpoint, "retry_exhausted").Inc()
			return nil, lastErr
		}

		switch errors.TypeOf(err) {
		case errors.ErrorTypeRateLimit:
			delay := c.cfg.RetryDelay * time.Duration(attempt)
			c.logger.Warn("rate limited, backing off",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Duration("sleep", delay))
			metrics.APIRetries.WithLabelValues("rate_limit").Inc()
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, errors.Wrap(serr, errors.ErrorTypeConnection, "backoff interrupted")
			}

		case errors.ErrorTypeTimeout:
			c.logger.Warn("request timed out, retrying",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt))
			metrics.APIRetries.WithLabelValues("timeout").Inc()
			if serr := c.sleep(ctx, c.cfg.RetryDelay); serr != nil {
				return nil, errors.Wrap(serr, errors.ErrorTypeConnection, "backoff interrupted")
			}

		default:
			c.logger.Error("request failed",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Error(err))
			metrics.APIRetries.WithLabelValues("generic").Inc()
			if serr := c.sleep(ctx, c.cfg.RetryDelay); serr != nil {
				return nil, errors.Wrap(serr, errors.ErrorTypeConnection, "backoff interrupted")
			}
		}
	}

	metrics.APIRequests.WithLabelValues(endpoint, "retry_exhausted").Inc()
	return nil, lastErr
}

// fetchOnce performs one HTTP GET and classifies the result.
func (c *Client) fetchOnce(ctx context.Context, rawURL, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "rate limiter wait interrupted")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "adsync/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if isTimeout(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "request timed out")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env errorEnvelope
		if jerr := json.Unmarshal(body, &env); jerr != nil || env.Error == nil {
			// Graph sometimes answers through a proxy with HTML or an empty
			// body; treat it as a transient failure, never as data.
			return nil, errors.Newf(errors.ErrorTypeMalformed,
				"status %d with unparseable error body", resp.StatusCode)
		}
		metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, Classify(env.Error)
	}

	if !json.Valid(body) {
		return nil, errors.New(errors.ErrorTypeMalformed, "non-JSON response body")
	}

	metrics.APIRequests.WithLabelValues(endpoint, "success").Inc()
	return body, nil
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
