package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func testOptions() Options {
	return Options{
		Timeout:          2 * time.Second,
		RetryAttempts:    3,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    5 * time.Millisecond,
		FailureThreshold: 100,
		OpenTimeout:      time.Minute,
	}
}

func TestUpstream_GetJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	defer server.Close()

	u := newUpstream("test_retry", testOptions())
	var out struct {
		Value int `json:"value"`
	}
	if err := u.getJSON(context.Background(), server.URL, url.Values{}, &out); err != nil {
		t.Fatalf("getJSON() error = %v", err)
	}
	if out.Value != 42 {
		t.Errorf("Value = %d, want 42", out.Value)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestUpstream_GetJSON_ClientErrorNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"401 unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey},
		{"404 not found", http.StatusNotFound, ErrLocationNotFound},
		{"400 bad request", http.StatusBadRequest, ErrRequestRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			u := newUpstream("test_client_error", testOptions())
			var out map[string]interface{}
			err := u.getJSON(context.Background(), server.URL, url.Values{}, &out)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("getJSON() error = %v, want %v", err, tt.wantErr)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("calls = %d, want 1", got)
			}
		})
	}
}

func TestUpstream_GetJSON_PropagatesCorrelationID(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	u := newUpstream("test_corr", testOptions())
	ctx := context.WithValue(context.Background(), correlationIDKey, "abc-123")
	var out map[string]interface{}
	if err := u.getJSON(ctx, server.URL, url.Values{}, &out); err != nil {
		t.Fatalf("getJSON() error = %v", err)
	}
	if gotHeader != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", gotHeader)
	}
}

func TestUpstream_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opts := testOptions()
	opts.RetryAttempts = 1
	opts.FailureThreshold = 2
	u := newUpstream("test_breaker", opts)

	var out map[string]interface{}
	for i := 0; i < 2; i++ {
		if err := u.getJSON(context.Background(), server.URL, url.Values{}, &out); !errors.Is(err, ErrUpstreamFailure) {
			t.Fatalf("call %d error = %v, want ErrUpstreamFailure", i, err)
		}
	}
	err := u.getJSON(context.Background(), server.URL, url.Values{}, &out)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("third call error = %v, want ErrCircuitOpen", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (open breaker must not reach upstream)", got)
	}
}

func TestUpstream_GetJSON_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond
	opts.RetryAttempts = 1
	u := newUpstream("test_timeout", opts)

	var out map[string]interface{}
	err := u.getJSON(context.Background(), server.URL, url.Values{}, &out)
	if err == nil {
		t.Fatal("getJSON() expected timeout error, got nil")
	}
	if got := CategorizeError(err); got != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want timeout", got)
	}
}

func TestUpstream_GetJSON_TimeoutNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond
	opts.RetryAttempts = 2
	u := newUpstream("test_timeout_no_retry", opts)

	var out map[string]interface{}
	err := u.getJSON(context.Background(), server.URL, url.Values{}, &out)
	if err == nil {
		t.Fatal("getJSON() expected timeout error, got nil")
	}
	if got := CategorizeError(err); got != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want timeout", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (timeouts fall back, not retry)", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", fmt.Errorf("%w: HTTP 503", ErrUpstreamFailure), true},
		{"rate limited", ErrRateLimited, true},
		{"deadline", fmt.Errorf("request timeout: %w", context.DeadlineExceeded), false},
		{"client error", ErrRequestRejected, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{
		200: "success",
		204: "success",
		429: "rate_limited",
		404: "client_error",
		503: "server_error",
		100: "error",
	}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
