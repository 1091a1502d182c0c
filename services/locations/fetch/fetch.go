package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"
	"wastemap-backend/lib/telemetry"
	"wastemap-backend/lib/timezone"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("services/locations/fetch")

// SourcePage is one fetched unit of content. It is handed to the
// extractor once and then discarded, never persisted as-is.
type SourcePage struct {
	URL       string
	Body      []byte
	Status    int
	FetchedAt time.Time
}

type Options struct {
	// minimum spacing between any two outbound requests, shared by
	// every worker through a single limiter
	PolitenessInterval time.Duration
	// total attempts per URL, including the first
	MaxAttempts int
	// first retry delay, doubled on each further attempt
	BackoffFloor   time.Duration
	RequestTimeout time.Duration
	UserAgent      string
}

func (o Options) withDefaults() Options {
	if o.PolitenessInterval <= 0 {
		o.PolitenessInterval = 500 * time.Millisecond
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffFloor <= 0 {
		o.BackoffFloor = time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	}
	return o
}

type Client struct {
	http *resty.Client
	gate *rate.Limiter
	opts Options
}

func NewClient(opts Options) *Client {
	opts = opts.withDefaults()

	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetHeader("accept-language", "en-AU,en-US")
	client.SetTimeout(opts.RequestTimeout)

	telemetry.InstrumentResty(client, "services/locations/http")

	return &Client{
		http: client,
		gate: rate.NewLimiter(rate.Every(opts.PolitenessInterval), 1),
		opts: opts,
	}
}

// Fetch gets a single page, waiting on the shared politeness gate
// before every attempt and retrying transient failures with
// exponential backoff plus jitter. Permanent failures (4xx other
// than 429) are returned after the first attempt.
func (c *Client) Fetch(ctx context.Context, pageUrl string) (SourcePage, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", pageUrl))

	var lastErr *Error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err := c.gate.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, "cancelled while waiting on rate limit")
			return SourcePage{}, err
		}

		res, err := c.http.R().SetContext(ctx).Get(pageUrl)
		if err != nil {
			lastErr = &Error{
				URL:      pageUrl,
				Attempts: attempt,
				Kind:     classifyTransportError(err),
				cause:    err,
			}
		} else if res.StatusCode() < 400 {
			return SourcePage{
				URL:       pageUrl,
				Body:      res.Body(),
				Status:    res.StatusCode(),
				FetchedAt: timezone.Now(),
			}, nil
		} else {
			lastErr = &Error{
				URL:      pageUrl,
				Attempts: attempt,
				Kind:     KindHttpStatus,
				Status:   res.StatusCode(),
			}
			if isPermanentStatus(res.StatusCode()) {
				span.SetStatus(codes.Error, "permanent http failure")
				return SourcePage{}, lastErr
			}
		}

		if attempt == c.opts.MaxAttempts {
			break
		}
		delay := c.backoff(attempt)
		if lastErr.Status == http.StatusTooManyRequests && res != nil {
			if hint := retryAfter(res.Header().Get("Retry-After")); hint > delay {
				delay = hint
			}
		}
		span.AddEvent("retry", attributeDelay(attempt, delay)...)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return SourcePage{}, ctx.Err()
		}
	}

	span.SetStatus(codes.Error, "retries exhausted")
	return SourcePage{}, lastErr
}

// doubles the floor per attempt and adds up to half a floor of jitter
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.opts.BackoffFloor << (attempt - 1)
	jitterCap := int(c.opts.BackoffFloor / 2)
	if jitterCap > 0 {
		jitter, err := random.IntRange(0, jitterCap)
		if err == nil {
			delay += time.Duration(jitter)
		}
	}
	return delay
}

// 429 is transient (the server is asking us to slow down), every
// other 4xx means the request itself is wrong and a retry won't help
func isPermanentStatus(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func classifyTransportError(err error) ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindConnection
}
