package dynamic

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/payroute/internal/infra/dynamicrouting"
	"github.com/coachpo/payroute/internal/infra/telemetry"
	"github.com/coachpo/payroute/lib/async"
)

// ReporterConfig sizes the detached reporter.
type ReporterConfig struct {
	Workers         int
	Queue           int
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Reporter runs fire-and-forget calls to the statistical services with retries. Failures are
// logged and never reach the routing call that triggered them.
type Reporter struct {
	pool            *async.Pool
	logger          *log.Logger
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	metrics         *dynamicMetrics
}

// NewReporter starts the reporter's workers.
func NewReporter(cfg ReporterConfig, logger *log.Logger) (*Reporter, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 1024
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	pool, err := async.NewPool(cfg.Workers, cfg.Queue, async.WithErrorHandler(func(err error) {
		logger.Printf("dynamic: report failed: %v", err)
	}))
	if err != nil {
		return nil, fmt.Errorf("reporter pool: %w", err)
	}
	return &Reporter{
		pool:            pool,
		logger:          logger,
		maxAttempts:     cfg.MaxAttempts,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
		metrics:         newDynamicMetrics(),
	}, nil
}

// Submit queues fn detached from ctx's cancellation. A full queue drops the report.
func (r *Reporter) Submit(ctx context.Context, adapter string, fn func(context.Context) error) {
	detached := context.WithoutCancel(ctx)
	err := r.pool.Submit(detached, func(ctx context.Context) error {
		return r.retry(ctx, adapter, fn)
	})
	if err != nil {
		r.metrics.recordSubmission(ctx, adapter, telemetry.ResultDropped)
		r.logger.Printf("dynamic: report dropped: adapter=%s err=%v", adapter, err)
		return
	}
	r.metrics.recordSubmission(ctx, adapter, telemetry.ResultSuccess)
}

// Shutdown drains queued reports until ctx expires.
func (r *Reporter) Shutdown(ctx context.Context) error {
	return r.pool.Shutdown(ctx)
}

func (r *Reporter) retry(ctx context.Context, adapter string, fn func(context.Context) error) error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = r.initialInterval
	backoffCfg.MaxInterval = r.maxInterval
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if permanent(err) || attempt >= r.maxAttempts {
			return fmt.Errorf("%s: attempt %d: %w", adapter, attempt, err)
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			return fmt.Errorf("%s: attempt %d: %w", adapter, attempt, err)
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", adapter, ctx.Err())
		case <-timer.C:
		}
	}
}

// permanent reports client errors the service will keep rejecting.
func permanent(err error) bool {
	status := dynamicrouting.StatusCode(err)
	return status >= 400 && status < 500 && status != 429
}
