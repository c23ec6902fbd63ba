package collyfetcher

import (
	"errors"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

// RetryConfig controls per-attempt timeout and the backoff schedule.
// MaxRetries caps the total number of attempts, including the first.
type RetryConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffMax    time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 2
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	return c
}

// Classify maps one attempt's HTTP status, body length, and transport
// error to a fetch outcome class. Transport-level failures (timeouts,
// refused connections, DNS) are transient; client errors other than
// 429 are permanent; a 2xx with an empty body counts as malformed and
// therefore permanent.
func Classify(statusCode int, bodyLen int, err error) pipeline.FetchStatus {
	switch {
	case statusCode >= 200 && statusCode < 300:
		if bodyLen == 0 {
			return pipeline.FetchPermanent
		}
		return pipeline.FetchSuccess
	case statusCode == http.StatusTooManyRequests:
		return pipeline.FetchTransient
	case statusCode >= 500:
		return pipeline.FetchTransient
	case statusCode >= 400:
		return pipeline.FetchPermanent
	case statusCode >= 300:
		return pipeline.FetchPermanent
	}
	if err == nil {
		return pipeline.FetchPermanent
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return pipeline.FetchTransient
	}
	return pipeline.FetchTransient
}

// BackoffDelay returns the wait before the attempt following attempt n
// (1-based): base × factor^(n−1), capped at BackoffMax.
func BackoffDelay(cfg RetryConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.BackoffBase) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if delay > float64(cfg.BackoffMax) {
		delay = float64(cfg.BackoffMax)
	}
	return time.Duration(delay)
}
