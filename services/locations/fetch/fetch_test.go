package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"wastemap-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type countingServer struct {
	mu    sync.Mutex
	times []time.Time
}

func (s *countingServer) record() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times = append(s.times, time.Now())
	return len(s.times)
}

func (s *countingServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.times)
}

func (s *countingServer) gaps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var gaps []time.Duration
	for i := 1; i < len(s.times); i++ {
		gaps = append(gaps, s.times[i].Sub(s.times[i-1]))
	}
	return gaps
}

func fastOptions() Options {
	return Options{
		PolitenessInterval: time.Millisecond,
		MaxAttempts:        3,
		BackoffFloor:       5 * time.Millisecond,
		RequestTimeout:     5 * time.Second,
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/fetch")
	defer cleanup()

	counter := &countingServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if counter.record() < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	page, err := client.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.Status)
	require.Equal(t, []byte("ok"), page.Body)
	require.Equal(t, server.URL, page.URL)
	require.False(t, page.FetchedAt.IsZero())
	require.Equal(t, 3, counter.count())
}

func TestNeverExceedsMaxAttempts(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/fetch")
	defer cleanup()

	counter := &countingServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	_, err := client.Fetch(context.Background(), server.URL)

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, KindHttpStatus, ferr.Kind)
	require.Equal(t, http.StatusInternalServerError, ferr.Status)
	require.Equal(t, 3, ferr.Attempts)
	require.Equal(t, 3, counter.count())
}

func TestNoRetryOnPermanentFailure(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/fetch")
	defer cleanup()

	counter := &countingServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	_, err := client.Fetch(context.Background(), server.URL)

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, http.StatusNotFound, ferr.Status)
	require.Equal(t, 1, ferr.Attempts)
	require.Equal(t, 1, counter.count())
}

func TestBackoffFloorBetweenAttempts(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/fetch")
	defer cleanup()

	counter := &countingServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	floor := 30 * time.Millisecond
	opts := fastOptions()
	opts.BackoffFloor = floor

	client := NewClient(opts)
	_, err := client.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	gaps := counter.gaps()
	require.Len(t, gaps, 2)
	for _, gap := range gaps {
		require.GreaterOrEqual(t, gap, floor)
	}
}

func TestPolitenessIntervalAcrossRequests(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/fetch")
	defer cleanup()

	counter := &countingServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record()
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	interval := 50 * time.Millisecond
	opts := fastOptions()
	opts.PolitenessInterval = interval

	client := NewClient(opts)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := client.Fetch(ctx, server.URL)
		require.NoError(t, err)
	}

	// small epsilon: the gate spaces request starts exactly, but we
	// observe arrival times at the server
	for _, gap := range counter.gaps() {
		require.GreaterOrEqual(t, gap, interval-5*time.Millisecond)
	}
}

func TestHonorsRetryAfterHint(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/fetch")
	defer cleanup()

	counter := &countingServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if counter.record() == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	start := time.Now()
	_, err := client.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), time.Second)
	require.Equal(t, 2, counter.count())
}

func TestCancellationStopsRetrying(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/fetch")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opts := fastOptions()
	opts.BackoffFloor = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	client := NewClient(opts)
	_, err := client.Fetch(ctx, server.URL)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
