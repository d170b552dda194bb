package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRetriesTransientStatusWithDoublingDelay(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	var delays []time.Duration
	client := New(Options{
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		Sleep:      func(d time.Duration) { delays = append(delays, d) },
	})

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := New(Options{MaxRetries: 2, RetryDelay: time.Millisecond, Sleep: func(time.Duration) {}})

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The final failing response is returned for the caller to inspect.
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetry429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client := New(Options{MaxRetries: 3, Sleep: func(time.Duration) {}})

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestDoRewindsBodyOnRetry(t *testing.T) {
	var calls int
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := New(Options{MaxRetries: 2, RetryDelay: time.Millisecond, Sleep: func(time.Duration) {}})

	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"key":"value"}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 2, calls)
	assert.Equal(t, `{"key":"value"}`, bodies[0])
	assert.Equal(t, `{"key":"value"}`, bodies[1])
}

func TestDoAppliesCallDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	var delays []time.Duration
	client := New(Options{
		CallDelay: 300 * time.Millisecond,
		Sleep:     func(d time.Duration) { delays = append(delays, d) },
	})

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []time.Duration{300 * time.Millisecond}, delays)
}

func TestRetryAfter(t *testing.T) {
	fallback := 3 * time.Second

	assert.Equal(t, fallback, RetryAfter(nil, fallback))

	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, fallback, RetryAfter(resp, fallback))

	resp.Header.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, RetryAfter(resp, fallback))

	resp.Header.Set("Retry-After", "soon")
	assert.Equal(t, fallback, RetryAfter(resp, fallback))

	resp.Header.Set("Retry-After", "-1")
	assert.Equal(t, fallback, RetryAfter(resp, fallback))
}
