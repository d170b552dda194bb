// Package httpclient provides the shared outbound HTTP transport: bounded
// retries on transient server errors with an increasing backoff, and an
// optional fixed delay before every request to stay under upstream rate
// limits proactively. 429 responses are never retried here; call sites handle
// them explicitly via Retry-After.
package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"fireflies-dealcloud-sync/internal/common/logger"
)

type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	maxRetries int
	retryDelay time.Duration
	callDelay  time.Duration
	sleep      func(time.Duration)
}

type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration // backoff base, doubled per attempt
	CallDelay  time.Duration // fixed pre-request delay; zero disables
	Logger     logger.Logger
	Sleep      func(time.Duration) // overridable in tests
}

func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     opts.Logger,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		callDelay:  opts.CallDelay,
		sleep:      opts.Sleep,
	}
}

// Do executes the request, applying the fixed pre-call delay and retrying
// transport errors and 5xx responses up to the configured bound. Requests
// built with a bytes/strings reader carry GetBody, which lets non-idempotent
// verbs be replayed safely. 429 and 4xx responses are returned as-is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.callDelay > 0 {
		c.sleep(c.callDelay)
	}

	var resp *http.Response
	var err error
	delay := c.retryDelay

	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}

		resp, err = c.httpClient.Do(req)
		if err == nil && !isTransientStatus(resp.StatusCode) {
			return resp, nil
		}

		if attempt >= c.maxRetries {
			break
		}

		fields := map[string]interface{}{
			"url":     req.URL.String(),
			"attempt": attempt + 1,
		}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["status"] = resp.StatusCode
			resp.Body.Close()
		}
		c.logger.Warn("Transient request failure, retrying", fields)

		c.sleep(delay)
		delay *= 2
	}

	return resp, err
}

// MaxRetries exposes the retry bound so call sites can cap their own 429
// replay loops at the same limit.
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

func isTransientStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// RetryAfter parses the Retry-After header of a 429 response, falling back
// to the supplied default when the header is absent or malformed.
func RetryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if resp == nil {
		return fallback
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
