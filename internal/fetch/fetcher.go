// Package fetch provides the single HTTP entry point for the pipeline:
// a timeout/retry/redirect-capped GET with per-response size caps and a
// shared per-job byte budget.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/safeurl"
)

// Budget tracks cumulative bytes downloaded across one job's crawl.
// Safe for use from a single crawl goroutine; a mutex guards the counter so
// asset fetches kicked off by helpers cannot race.
type Budget struct {
	mu       sync.Mutex
	maxBytes int64
	used     int64
}

// NewBudget creates a budget capped at maxBytes.
func NewBudget(maxBytes int64) *Budget {
	return &Budget{maxBytes: maxBytes}
}

// Charge records n downloaded bytes, failing once the cap is crossed.
func (b *Budget) Charge(n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used+n > b.maxBytes {
		b.used = b.maxBytes
		return branding.ErrBudgetExceeded
	}
	b.used += n
	return nil
}

// Used returns the bytes consumed so far.
func (b *Budget) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Config tunes the fetcher. Zero values fall back to the defaults below.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxRetries   int
	RetryBackoff time.Duration
	UserAgent    string
}

// Result is the outcome of one fetch, with the final post-redirect URL.
type Result struct {
	URL         string
	Body        []byte
	Bytes       int64
	ContentType string
	StatusCode  int
}

// Options vary per call; the shared Budget is threaded through every fetch
// belonging to the same job.
type Options struct {
	MaxBytes int64
	Budget   *Budget
}

// Fetcher performs validated GETs. Every network call elsewhere in the
// pipeline goes through it.
type Fetcher struct {
	client    *http.Client
	validator *safeurl.Validator
	cfg       Config
	logger    *zap.Logger
}

// New builds a Fetcher. Redirects are handled manually so each hop is
// re-validated against the SSRF policy.
func New(validator *safeurl.Validator, cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "glovebrand-bot/1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		validator: validator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Get fetches rawURL, following up to the configured number of redirects.
// Each redirect target is validated before it is followed.
func (f *Fetcher) Get(ctx context.Context, rawURL string, opts Options) (Result, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}
	current := rawURL
	for hop := 0; hop <= f.cfg.MaxRedirects; hop++ {
		validated, err := f.validator.Validate(ctx, current)
		if err != nil {
			return Result{}, err
		}
		resp, err := f.doWithRetries(ctx, validated)
		if err != nil {
			return Result{}, err
		}
		if location := redirectTarget(resp); location != "" {
			drainAndClose(resp)
			next, err := url.Parse(location)
			if err != nil {
				return Result{}, branding.NewError(branding.KindValidation, "fetch", "malformed redirect target", err)
			}
			base, _ := url.Parse(validated)
			current = base.ResolveReference(next).String()
			continue
		}
		result, err := f.readBody(resp, validated, opts)
		if err != nil {
			return Result{}, err
		}
		return result, nil
	}
	return Result{}, branding.NewError(branding.KindCrawl, "fetch", fmt.Sprintf("too many redirects for %s", rawURL), nil)
}

func (f *Fetcher) doWithRetries(ctx context.Context, fetchURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
			case <-time.After(f.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
		if err != nil {
			return nil, branding.NewError(branding.KindValidation, "fetch", "build request", err)
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		req.Header.Set("Accept", "*/*")

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			if !retryable(err) {
				break
			}
			f.logger.Debug("fetch attempt failed", zap.String("url", fetchURL), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if resp.StatusCode >= 500 {
			drainAndClose(resp)
			lastErr = fmt.Errorf("server returned %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			drainAndClose(resp)
			return nil, branding.NewError(branding.KindCrawl, "fetch", fmt.Sprintf("%s returned %d", fetchURL, resp.StatusCode), nil)
		}
		return resp, nil
	}
	return nil, branding.NewError(branding.KindTransient, "fetch", fmt.Sprintf("fetch %s failed", fetchURL), lastErr)
}

func (f *Fetcher) readBody(resp *http.Response, finalURL string, opts Options) (Result, error) {
	defer drainAndClose(resp)
	limited := io.LimitReader(resp.Body, opts.MaxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return Result{}, branding.NewError(branding.KindTransient, "fetch", "read body", err)
	}
	if int64(len(body)) > opts.MaxBytes {
		return Result{}, branding.NewError(branding.KindCrawl, "fetch",
			fmt.Sprintf("response exceeded %d bytes", opts.MaxBytes), nil)
	}
	if opts.Budget != nil {
		if err := opts.Budget.Charge(int64(len(body))); err != nil {
			return Result{}, branding.NewError(branding.KindCrawl, "fetch", "job byte budget exhausted", err)
		}
	}
	return Result{
		URL:         finalURL,
		Body:        body,
		Bytes:       int64(len(body)),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}

func redirectTarget(resp *http.Response) string {
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return ""
	}
	return resp.Header.Get("Location")
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
