// Package collyfetcher implements pipeline.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Retry     RetryConfig
}

// Fetcher retrieves single pages with retry and backoff. Every call
// returns a classified FetchResult; transport and HTTP failures never
// escape as plain errors.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
	sleep         func(ctx context.Context, d time.Duration) error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Retry = cfg.Retry.withDefaults()
	c := colly.NewCollector(colly.Async(false))
	// Clones share the visited-URL store; without this, every retry and
	// every fetch of the same URL in a later run fails as already
	// visited.
	c.AllowURLRevisit = true
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
		sleep:         sleepCtx,
	}
}

// Fetch retrieves url, retrying transient failures up to the configured
// attempt cap with exponential backoff. The returned result carries the
// attempt count and total elapsed time across all attempts.
func (f *Fetcher) Fetch(ctx context.Context, url string) pipeline.FetchResult {
	start := time.Now()
	cfg := f.cfg.Retry

	var result pipeline.FetchResult
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		code, body, err := f.attempt(ctx, url)
		status := Classify(code, len(body), err)

		result = pipeline.FetchResult{
			URL:        url,
			Status:     status,
			StatusCode: code,
			Attempts:   attempt,
			Elapsed:    time.Since(start),
			Err:        err,
		}
		if status == pipeline.FetchSuccess {
			result.Body = body
			return result
		}
		if status == pipeline.FetchPermanent || attempt == cfg.MaxRetries {
			return result
		}

		delay := BackoffDelay(cfg, attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if serr := f.sleep(ctx, delay); serr != nil {
			result.Elapsed = time.Since(start)
			result.Err = serr
			return result
		}
	}
	return result
}

func (f *Fetcher) attempt(ctx context.Context, url string) (int, []byte, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Retry.Timeout)
	collector.WithTransport(f.transport)

	var (
		code     int
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		code = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			code = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if fetchErr != nil {
			return code, nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		if visitErr != nil {
			return code, nil, fmt.Errorf("visit %s: %w", url, visitErr)
		}
		return code, body, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
