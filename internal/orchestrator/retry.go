package orchestrator

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/metrics"
)

// RetryPolicy bounds retries by attempt count and total elapsed time, with
// jittered exponential backoff between attempts.
type RetryPolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	MaxElapsed  time.Duration `mapstructure:"max_elapsed" yaml:"max_elapsed"`
}

// NetworkRetryPolicy covers validate/crawl/select-logo/extract-colors.
func NetworkRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		MaxElapsed:  45 * time.Second,
	}
}

// StorageRetryPolicy covers checkpoint and artifact writes. Denser and
// faster than the network policy since store hiccups usually clear quickly.
func StorageRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		MaxElapsed:  15 * time.Second,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, the error is
// permanent, or the context finishes.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, activity string, fn func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			metrics.ObserveActivity(activity, time.Since(start))
			return nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		delay := p.backoff(attempt)
		if p.MaxElapsed > 0 && time.Since(start)+delay > p.MaxElapsed {
			break
		}
		logger.Warn("activity retrying",
			zap.String("activity", activity),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// retryable excludes permanent error kinds and the store sentinels that no
// amount of retrying will change.
func retryable(err error) bool {
	if branding.IsPermanent(err) {
		return false
	}
	if errors.Is(err, branding.ErrTerminalStage) || errors.Is(err, branding.ErrJobNotFound) {
		return false
	}
	return true
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
