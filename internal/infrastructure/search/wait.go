package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobman-auth/internal/observability/metrics"
	"github.com/sethvargo/go-retry"
)

// HealthProber reports cluster health.
type HealthProber interface {
	Health(ctx context.Context) (string, error)
}

// RetryPolicy configures the delay between health probes. There is no
// attempt limit.
type RetryPolicy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Jitter      time.Duration
}

// Backoff returns an exponential backoff capped at MaxInterval with Jitter applied.
func (p RetryPolicy) Backoff() retry.Backoff {
	base := p.Interval
	if base <= 0 {
		base = time.Second
	}
	b := retry.NewExponential(base)
	if p.MaxInterval > 0 {
		b = retry.WithCappedDuration(p.MaxInterval, b)
	}
	if p.Jitter > 0 {
		b = retry.WithJitter(p.Jitter, b)
	}
	return b
}

// WaitForHealthy probes until the cluster answers. It returns nil on the
// first success and ctx.Err() if ctx ends first.
func WaitForHealthy(ctx context.Context, prober HealthProber, backoff retry.Backoff, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		logger.Info("connecting to search cluster", "attempt", attempt)
		status, err := prober.Health(ctx)
		if err != nil {
			metrics.SearchHealthChecksTotal.WithLabelValues("failure").Inc()
			logger.Error("search cluster connection failed, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		metrics.SearchHealthChecksTotal.WithLabelValues("success").Inc()
		logger.Info("search cluster health", "status", status)
		return nil
	})
}
