package navigate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"wastemap-backend/lib/telemetry"
	"wastemap-backend/services/locations/fetch"

	"github.com/stretchr/testify/require"
)

func fastFetcher() *fetch.Client {
	return fetch.NewClient(fetch.Options{
		PolitenessInterval: time.Millisecond,
		MaxAttempts:        1,
		BackoffFloor:       time.Millisecond,
		RequestTimeout:     5 * time.Second,
	})
}

func listingPage(next string) string {
	if next == "" {
		return "<html><body><div class='white-box'></div></body></html>"
	}
	return fmt.Sprintf(
		"<html><body><ul><li class='location-pagination__next'><a href=%q>Next</a></li></ul></body></html>",
		next,
	)
}

type pageLog struct {
	mu    sync.Mutex
	pages []Page
}

func (l *pageLog) visit(_ context.Context, page Page) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages = append(l.pages, page)
	return 1, nil
}

func TestWalksPaginationChain(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/navigate")
	defer cleanup()

	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprint(w, listingPage("/list?page=2"))
		case "2":
			fmt.Fprint(w, listingPage("/list?page=3"))
		default:
			fmt.Fprint(w, listingPage(""))
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	log := &pageLog{}
	nav := New(fastFetcher(), Options{Seeds: []string{server.URL + "/list"}})
	stats, err := nav.Enumerate(context.Background(), log.visit)
	require.NoError(t, err)

	require.Equal(t, Stats{Fetched: 3}, stats)
	require.Len(t, log.pages, 3)
	for i, page := range log.pages {
		require.Equal(t, i+1, page.Number)
		require.Equal(t, server.URL+"/list", page.Seed)
	}
	require.Equal(t, server.URL+"/list?page=3", log.pages[2].URL)
}

func TestStopsAtPageCap(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/navigate")
	defer cleanup()

	// a pagination loop: every page links to itself
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage("/list"))
	}))
	defer server.Close()

	log := &pageLog{}
	nav := New(fastFetcher(), Options{
		Seeds:           []string{server.URL + "/list"},
		MaxPagesPerSeed: 5,
	})
	stats, err := nav.Enumerate(context.Background(), log.visit)
	require.NoError(t, err)
	require.Equal(t, 5, stats.Fetched)
	require.Len(t, log.pages, 5)
}

func TestFailedSeedEndsItsChainOnly(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/navigate")
	defer cleanup()

	mux := http.NewServeMux()
	mux.HandleFunc("/dead", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, listingPage(""))
			return
		}
		fmt.Fprint(w, listingPage("/list?page=2"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	log := &pageLog{}
	nav := New(fastFetcher(), Options{
		Seeds: []string{server.URL + "/dead", server.URL + "/list"},
	})
	stats, err := nav.Enumerate(context.Background(), log.visit)

	// 1 failed of 3 attempted is under the default 50% threshold
	require.NoError(t, err)
	require.Equal(t, Stats{Fetched: 2, Failed: 1}, stats)
	require.Len(t, log.pages, 2)
}

func TestAbortsWhenTooManyPagesFail(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/navigate")
	defer cleanup()

	mux := http.NewServeMux()
	mux.HandleFunc("/dead", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage(""))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	log := &pageLog{}
	nav := New(fastFetcher(), Options{
		Seeds: []string{
			server.URL + "/dead?seed=1",
			server.URL + "/dead?seed=2",
			server.URL + "/list",
		},
	})
	stats, err := nav.Enumerate(context.Background(), log.visit)

	var cerr *CoverageError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "pages", cerr.Unit)
	require.Equal(t, 2, cerr.Failed)
	require.Equal(t, 3, cerr.Attempted)
	require.Equal(t, Stats{Fetched: 1, Failed: 2}, stats)
}

func TestZeroYieldPagesAreCounted(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/navigate")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage(""))
	}))
	defer server.Close()

	nav := New(fastFetcher(), Options{Seeds: []string{server.URL}})
	stats, err := nav.Enumerate(context.Background(), func(context.Context, Page) (int, error) {
		return 0, nil
	})
	require.NoError(t, err)
	require.Equal(t, Stats{Fetched: 1, ZeroYield: 1}, stats)
}

func TestVisitErrorAbortsEnumeration(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:locations/navigate")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage("/list?page=2"))
	}))
	defer server.Close()

	boom := errors.New("downstream gave up")
	nav := New(fastFetcher(), Options{Seeds: []string{server.URL}})
	_, err := nav.Enumerate(context.Background(), func(context.Context, Page) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
}
