package marketplace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/platform/logger"
)

// scriptedAdapter returns pre-programmed errors per EndListing call.
type scriptedAdapter struct {
	platform entity.Platform
	errs     []error
	calls    int
}

func (s *scriptedAdapter) Platform() entity.Platform { return s.platform }

func (s *scriptedAdapter) CreateListing(ctx context.Context, item *entity.Item) (*ListingRef, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return &ListingRef{ListingID: "listing-1"}, nil
}

func (s *scriptedAdapter) EndListing(ctx context.Context, listingID string) error {
	return s.next()
}

func (s *scriptedAdapter) UpdatePrice(ctx context.Context, listingID string, newPrice float64) error {
	return s.next()
}

func (s *scriptedAdapter) GetStatus(ctx context.Context, listingID string) (entity.RemoteStatus, error) {
	if err := s.next(); err != nil {
		return entity.RemoteUnknown, err
	}
	return entity.RemoteActive, nil
}

func (s *scriptedAdapter) next() error {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) {
		return s.errs[s.calls]
	}
	return nil
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{CallTimeout: time.Second, TransientRetries: 2}
}

func transientErr(p entity.Platform) error {
	return NewError(p, OpEndListing, ClassTransient, "503", nil)
}

func TestResilience_TransientRetriedThenSucceeds(t *testing.T) {
	inner := &scriptedAdapter{
		platform: entity.PlatformEbay,
		errs:     []error{transientErr(entity.PlatformEbay), transientErr(entity.PlatformEbay)},
	}
	adapter := WithResilience(inner, fastRetryConfig(), logger.NoOp{})

	err := adapter.EndListing(context.Background(), "offer-1")

	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestResilience_TransientRetriesExhausted(t *testing.T) {
	inner := &scriptedAdapter{
		platform: entity.PlatformEbay,
		errs: []error{
			transientErr(entity.PlatformEbay),
			transientErr(entity.PlatformEbay),
			transientErr(entity.PlatformEbay),
		},
	}
	adapter := WithResilience(inner, fastRetryConfig(), logger.NoOp{})

	err := adapter.EndListing(context.Background(), "offer-1")

	require.Error(t, err)
	assert.Equal(t, ClassTransient, ClassOf(err))
	assert.Equal(t, 3, inner.calls)
}

func TestResilience_AuthExpiredRetriedOnce(t *testing.T) {
	authErr := NewError(entity.PlatformAmazon, OpUpdatePrice, ClassAuthExpired, "token rejected", nil)
	inner := &scriptedAdapter{platform: entity.PlatformAmazon, errs: []error{authErr}}
	adapter := WithResilience(inner, fastRetryConfig(), logger.NoOp{})

	err := adapter.UpdatePrice(context.Background(), "sku-1", 50)

	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestResilience_AuthExpiredNotRetriedTwice(t *testing.T) {
	authErr := NewError(entity.PlatformAmazon, OpUpdatePrice, ClassAuthExpired, "token rejected", nil)
	inner := &scriptedAdapter{platform: entity.PlatformAmazon, errs: []error{authErr, authErr}}
	adapter := WithResilience(inner, fastRetryConfig(), logger.NoOp{})

	err := adapter.UpdatePrice(context.Background(), "sku-1", 50)

	require.Error(t, err)
	assert.Equal(t, ClassAuthExpired, ClassOf(err))
	assert.Equal(t, 2, inner.calls)
}

func TestResilience_ValidationNeverRetried(t *testing.T) {
	inner := &scriptedAdapter{
		platform: entity.PlatformEbay,
		errs:     []error{NewError(entity.PlatformEbay, OpCreateListing, ClassValidationRejected, "bad payload", nil)},
	}
	adapter := WithResilience(inner, fastRetryConfig(), logger.NoOp{})

	_, err := adapter.CreateListing(context.Background(), &entity.Item{})

	require.Error(t, err)
	assert.Equal(t, ClassValidationRejected, ClassOf(err))
	assert.Equal(t, 1, inner.calls)
}

func TestResilience_UnknownNeverRetried(t *testing.T) {
	inner := &scriptedAdapter{
		platform: entity.PlatformEbay,
		errs:     []error{NewError(entity.PlatformEbay, OpGetStatus, ClassUnknown, "unexpected body", nil)},
	}
	adapter := WithResilience(inner, fastRetryConfig(), logger.NoOp{})

	_, err := adapter.GetStatus(context.Background(), "offer-1")

	require.Error(t, err)
	assert.Equal(t, ClassUnknown, ClassOf(err))
	assert.Equal(t, 1, inner.calls)
}

type hangingAdapter struct {
	scriptedAdapter
}

func (h *hangingAdapter) EndListing(ctx context.Context, listingID string) error {
	h.calls++
	<-ctx.Done()
	return ctx.Err()
}

// A call that exceeds the per-call timeout classifies as transient and is
// retried like any other transient failure.
func TestResilience_TimeoutClassifiedTransient(t *testing.T) {
	inner := &hangingAdapter{scriptedAdapter{platform: entity.PlatformEbay}}
	adapter := WithResilience(inner, RetryConfig{CallTimeout: 20 * time.Millisecond, TransientRetries: 1}, logger.NoOp{})

	err := adapter.EndListing(context.Background(), "offer-1")

	require.Error(t, err)
	assert.Equal(t, ClassTransient, ClassOf(err))
	assert.Equal(t, 2, inner.calls)
}
