package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/platform/logger"
)

const (
	defaultCallTimeout      = 15 * time.Second
	defaultTransientRetries = 2
	initialBackoffInterval  = 500 * time.Millisecond
)

type RetryConfig struct {
	CallTimeout      time.Duration
	TransientRetries int
}

// resilientAdapter decorates a concrete platform adapter with the shared
// failure policy: per-attempt timeout, one-shot retry after AUTH_EXPIRED,
// bounded exponential backoff for TRANSIENT failures, and a per-platform
// circuit breaker. VALIDATION_REJECTED and UNKNOWN are never retried.
type resilientAdapter struct {
	inner   Adapter
	cfg     RetryConfig
	breaker *gobreaker.CircuitBreaker
	log     logger.Logger
}

func WithResilience(inner Adapter, cfg RetryConfig, log logger.Logger) Adapter {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.TransientRetries <= 0 {
		cfg.TransientRetries = defaultTransientRetries
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(inner.Platform()),
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &resilientAdapter{inner: inner, cfg: cfg, breaker: cb, log: log}
}

func (a *resilientAdapter) Platform() entity.Platform {
	return a.inner.Platform()
}

func (a *resilientAdapter) CreateListing(ctx context.Context, item *entity.Item) (*ListingRef, error) {
	var ref *ListingRef
	err := a.execute(ctx, OpCreateListing, func(callCtx context.Context) error {
		var opErr error
		ref, opErr = a.inner.CreateListing(callCtx, item)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (a *resilientAdapter) EndListing(ctx context.Context, listingID string) error {
	return a.execute(ctx, OpEndListing, func(callCtx context.Context) error {
		return a.inner.EndListing(callCtx, listingID)
	})
}

func (a *resilientAdapter) UpdatePrice(ctx context.Context, listingID string, newPrice float64) error {
	return a.execute(ctx, OpUpdatePrice, func(callCtx context.Context) error {
		return a.inner.UpdatePrice(callCtx, listingID, newPrice)
	})
}

func (a *resilientAdapter) GetStatus(ctx context.Context, listingID string) (entity.RemoteStatus, error) {
	status := entity.RemoteUnknown
	err := a.execute(ctx, OpGetStatus, func(callCtx context.Context) error {
		var opErr error
		status, opErr = a.inner.GetStatus(callCtx, listingID)
		return opErr
	})
	if err != nil {
		return entity.RemoteUnknown, err
	}
	return status, nil
}

func (a *resilientAdapter) execute(ctx context.Context, operation string, op func(context.Context) error) error {
	wait := backoff.NewExponentialBackOff()
	wait.InitialInterval = initialBackoffInterval
	wait.Reset()

	transientLeft := a.cfg.TransientRetries
	authRetryUsed := false

	for {
		err := a.attempt(ctx, operation, op)
		if err == nil {
			return nil
		}

		switch ClassOf(err) {
		case ClassAuthExpired:
			if authRetryUsed {
				return err
			}
			authRetryUsed = true
			a.log.Warnf("%s %s: credentials expired, retrying once after refresh", a.Platform(), operation)
		case ClassTransient:
			if transientLeft == 0 {
				return err
			}
			transientLeft--
			d := wait.NextBackOff()
			a.log.Warnf("%s %s: transient failure, retrying in %s: %v", a.Platform(), operation, d, err)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return NewError(a.Platform(), operation, ClassTransient, "cancelled while waiting to retry", ctx.Err())
			}
		default:
			return err
		}
	}
}

func (a *resilientAdapter) attempt(ctx context.Context, operation string, op func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()

	_, err := a.breaker.Execute(func() (interface{}, error) {
		return nil, op(callCtx)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewError(a.Platform(), operation, ClassTransient, "circuit breaker open", err)
	}
	// A timed-out attempt counts as transient for this call only.
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(a.Platform(), operation, ClassTransient, "call timed out", err)
	}
	return err
}
