// Package edgar is the only road to the SEC's servers: a rate-limited,
// retrying HTTP client plus parsers for the ticker map and per-company
// submissions index. Nothing else in the process talks to EDGAR directly.
package edgar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// ErrorKind classifies terminal fetch failures.
type ErrorKind string

const (
	// KindExhausted means every retry attempt failed.
	KindExhausted ErrorKind = "exhausted"
	// KindClientRejected means the server returned a non-retryable 4xx.
	KindClientRejected ErrorKind = "client_rejected"
)

// FetchError is the only error type Get surfaces to callers.
type FetchError struct {
	Kind   ErrorKind
	URL    string
	Status int // last HTTP status seen, 0 for transport failures
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s (%s, status %d): %v", e.URL, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s (%s, status %d)", e.URL, e.Kind, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClientConfig carries the externally supplied fetch settings.
type ClientConfig struct {
	// UserAgent is the SEC-required contact header, e.g.
	// "ChangeOnly admin@example.com". Required.
	UserAgent   string
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int
}

// Client fetches EDGAR resources through a shared throttle with exponential
// backoff on transient failures.
type Client struct {
	http        *http.Client
	throttle    Limiter
	userAgent   string
	backoffBase time.Duration
	backoffCap  time.Duration
	maxAttempts int
	logger      *slog.Logger

	// overridable in tests
	wwwBase  string
	dataBase string
	jitter   func() float64
	sleep    func(ctx context.Context, d time.Duration) error

	tickerMu        sync.Mutex
	tickers         map[string]Company
	tickersLoadedAt time.Time
}

// NewClient validates the configuration and builds a client. A missing
// contact header is a startup error, not a request-time surprise.
func NewClient(cfg ClientConfig, throttle Limiter, logger *slog.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("edgar: contact User-Agent is required (set SEC_USER_AGENT)")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Client{
		http:        &http.Client{Timeout: cfg.Timeout},
		throttle:    throttle,
		userAgent:   cfg.UserAgent,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
		wwwBase:     "https://www.sec.gov",
		dataBase:    "https://data.sec.gov",
		jitter:      func() float64 { return 0.5 + rand.Float64() },
		sleep:       sleepCtx,
	}, nil
}

// Get retrieves one resource. It suspends on the throttle, retries 429/403
// and 5xx responses plus transport and body-read errors with jittered
// exponential backoff, and fails fast on any other cleanly read 4xx.
// Exhausting all attempts yields a FetchError{Kind: KindExhausted}.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, &FetchError{Kind: KindExhausted, URL: url, Err: err}
		}

		body, status, err := c.once(ctx, url)
		if err == nil && status == http.StatusOK {
			return body, nil
		}
		lastStatus, lastErr = status, err

		// Transport and body-read failures are always retryable, whatever
		// status came with them; only a cleanly read non-retryable status
		// fails fast.
		if err == nil && !retryable(status) {
			return nil, &FetchError{Kind: KindClientRejected, URL: url, Status: status}
		}

		if attempt < c.maxAttempts {
			delay := c.backoffDelay(attempt)
			c.logger.Warn("edgar fetch retry",
				"url", url, "attempt", attempt, "status", status, "delay", delay, "error", err)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &FetchError{Kind: KindExhausted, URL: url, Status: lastStatus, Err: err}
			}
		}
	}

	return nil, &FetchError{Kind: KindExhausted, URL: url, Status: lastStatus, Err: lastErr}
}

func (c *Client) once(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json,text/html,text/plain,*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// retryable reports whether a status is worth another attempt: server
// errors plus the statuses EDGAR uses as throttling signals.
func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusForbidden
}

// backoffDelay computes base * 2^(attempt-1) * jitter(0.5..1.5), capped.
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := c.backoffBase << (attempt - 1)
	if d > c.backoffCap {
		d = c.backoffCap
	}
	d = time.Duration(float64(d) * c.jitter())
	if d > c.backoffCap {
		d = c.backoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
