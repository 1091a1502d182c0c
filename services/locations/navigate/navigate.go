package navigate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"wastemap-backend/services/locations/fetch"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/locations/navigate")

// the site marks the next listing page with this anchor; absence of
// the anchor is the end-of-listing signal
const nextPageSelector = "li.location-pagination__next a"

// Page is one visited listing page.
type Page struct {
	Seed   string
	URL    string
	Number int
	Source fetch.SourcePage
}

type Options struct {
	// top-level entry points, one listing chain each
	Seeds []string
	// hard cap per seed, guards against pagination loops on the site
	MaxPagesPerSeed int
	// fraction of failed pages above which the run aborts
	MaxFailedFraction float64
	// how many seed chains are walked at once
	Workers int
}

func (o Options) withDefaults() Options {
	if o.MaxPagesPerSeed <= 0 {
		o.MaxPagesPerSeed = 50
	}
	if o.MaxFailedFraction <= 0 {
		o.MaxFailedFraction = 0.5
	}
	if o.Workers <= 0 {
		o.Workers = 3
	}
	return o
}

// Stats is the page-level coverage tally for one enumeration.
type Stats struct {
	Fetched   int
	Failed    int
	ZeroYield int
}

func (s Stats) attempted() int {
	return s.Fetched + s.Failed
}

// CoverageError means too many pages (or records, in the pipeline's
// hands) failed to produce a trustworthy dataset.
type CoverageError struct {
	Unit      string
	Failed    int
	Attempted int
	Threshold float64
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf(
		"coverage: %d/%d %s failed, above the %.0f%% abort threshold",
		e.Failed, e.Attempted, e.Unit, e.Threshold*100,
	)
}

type Navigator struct {
	fetcher *fetch.Client
	opts    Options

	mu    sync.Mutex
	stats Stats
}

func New(fetcher *fetch.Client, opts Options) *Navigator {
	return &Navigator{fetcher: fetcher, opts: opts.withDefaults()}
}

// Enumerate walks each seed's listing chain, calling visit for every
// page that fetched. visit reports how many records the page yielded
// so zero-yield pages can be tracked as a coverage signal. A failed
// page ends its seed's chain (the next-page link lives in the content
// we didn't get) but not the enumeration; the run only aborts with
// CoverageError when the failed fraction crosses the threshold.
// Enumeration restarts from the seeds every run, it is not resumable.
func (n *Navigator) Enumerate(ctx context.Context, visit func(ctx context.Context, page Page) (int, error)) (Stats, error) {
	ctx, span := tracer.Start(ctx, "Enumerate")
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n.mu.Lock()
	n.stats = Stats{}
	n.mu.Unlock()

	sem := make(chan struct{}, n.opts.Workers)
	var wg sync.WaitGroup
	var visitErrMu sync.Mutex
	var visitErr error

	for _, seed := range n.opts.Seeds {
		wg.Add(1)
		go func(seed string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := n.walkSeed(ctx, seed, visit)
			if err != nil {
				visitErrMu.Lock()
				if visitErr == nil {
					visitErr = err
				}
				visitErrMu.Unlock()
				cancel()
			}
		}(seed)
	}
	wg.Wait()

	n.mu.Lock()
	stats := n.stats
	n.mu.Unlock()

	if visitErr != nil {
		span.SetStatus(codes.Error, "visit aborted enumeration")
		return stats, visitErr
	}

	if stats.attempted() > 0 {
		failedFraction := float64(stats.Failed) / float64(stats.attempted())
		if failedFraction > n.opts.MaxFailedFraction {
			err := &CoverageError{
				Unit:      "pages",
				Failed:    stats.Failed,
				Attempted: stats.attempted(),
				Threshold: n.opts.MaxFailedFraction,
			}
			span.SetStatus(codes.Error, err.Error())
			return stats, err
		}
	}

	span.SetAttributes(
		attribute.Int("fetched", stats.Fetched),
		attribute.Int("failed", stats.Failed),
		attribute.Int("zero_yield", stats.ZeroYield),
	)
	return stats, nil
}

func (n *Navigator) walkSeed(ctx context.Context, seed string, visit func(ctx context.Context, page Page) (int, error)) error {
	pageUrl := seed
	for number := 1; number <= n.opts.MaxPagesPerSeed; number++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		src, err := n.fetcher.Fetch(ctx, pageUrl)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("skipping listing page", "seed", seed, "url", pageUrl, "err", err)
			n.mu.Lock()
			n.stats.Failed++
			n.mu.Unlock()
			return nil
		}

		yield, err := visit(ctx, Page{Seed: seed, URL: pageUrl, Number: number, Source: src})
		if err != nil {
			return err
		}

		n.mu.Lock()
		n.stats.Fetched++
		if yield == 0 {
			n.stats.ZeroYield++
		}
		n.mu.Unlock()

		next := findNextPage(src)
		if next == "" {
			return nil
		}
		pageUrl = next
	}

	slog.Warn("seed hit the page cap, pagination may be looping", "seed", seed, "cap", n.opts.MaxPagesPerSeed)
	return nil
}

func findNextPage(src fetch.SourcePage) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(src.Body))
	if err != nil {
		return ""
	}
	href := doc.Find(nextPageSelector).First().AttrOr("href", "")
	if href == "" {
		return ""
	}
	base, err := url.Parse(src.URL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
