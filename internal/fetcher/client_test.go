package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(maxRetries int, attemptTimeout time.Duration) *Client {
	return NewClient(ClientOptions{
		Retry: RetryOptions{
			MaxRetries:        maxRetries,
			RetryDelay:        time.Millisecond,
			BackoffMultiplier: 2,
			AttemptTimeout:    attemptTimeout,
		},
		UserAgent: "test",
	}, zerolog.Nop())
}

func decodeText(body []byte) (string, error) {
	return string(body), nil
}

func TestBackoffDelay(t *testing.T) {
	opts := RetryOptions{RetryDelay: time.Second, BackoffMultiplier: 2}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := BackoffDelay(opts, i+1); got != w {
			t.Fatalf("attempt %d: want %s, got %s", i+1, w, got)
		}
	}
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := Fetch(context.Background(), testClient(3, time.Second), "test", srv.URL, decodeText)
	if err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}
	if body != "ok" {
		t.Fatalf("unexpected body %q", body)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestFetchReturnsLastErrorAfterExhaustion(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), testClient(3, time.Second), "test", srv.URL, decodeText)
	if err == nil {
		t.Fatal("persistent 503 should fail")
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") || !strings.Contains(err.Error(), "503") {
		t.Fatalf("error should carry attempt count and last status: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestFetchShapeErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), testClient(3, time.Second), "test", srv.URL, func([]byte) (int, error) {
		return 0, errors.New("field missing")
	})
	if !errors.Is(err, ErrShape) {
		t.Fatalf("parse failure should be a shape error: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("shape errors must not retry, got %d attempts", hits.Load())
	}
}

func TestFetchAttemptTimeoutOnlyCancelsThatAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	body, err := Fetch(context.Background(), testClient(3, 100*time.Millisecond), "test", srv.URL, decodeText)
	if err != nil {
		t.Fatalf("second attempt should succeed: %v", err)
	}
	if body != "late" || hits.Load() != 2 {
		t.Fatalf("unexpected result body=%q hits=%d", body, hits.Load())
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := testClient(3, time.Second).Retry(ctx, "test", func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled context should surface: %v", err)
	}
	if calls != 0 {
		t.Fatalf("no attempt should run after cancellation")
	}
}
