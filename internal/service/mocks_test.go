package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/automarket/consignment-service/internal/adapter/client"
	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/marketplace"
	"github.com/automarket/consignment-service/internal/repository"
)

type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) Create(ctx context.Context, item *entity.Item) (string, error) {
	args := m.Called(ctx, item)
	return args.String(0), args.Error(1)
}

func (m *MockItemRepository) GetByID(ctx context.Context, itemID string) (*entity.Item, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Item), args.Error(1)
}

func (m *MockItemRepository) CommitTransition(ctx context.Context, item *entity.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockItemRepository) List(ctx context.Context, params repository.ListItemsParams) (*repository.ListItemsResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListItemsResult), args.Error(1)
}

func (m *MockItemRepository) FindForReconciliation(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockItemRepository) Delete(ctx context.Context, itemID string) error {
	args := m.Called(ctx, itemID)
	return args.Error(0)
}

type MockStatusCache struct {
	mock.Mock
}

func (m *MockStatusCache) Get(ctx context.Context, itemID string) (*repository.ListingStatusSnapshot, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListingStatusSnapshot), args.Error(1)
}

func (m *MockStatusCache) Set(ctx context.Context, snapshot *repository.ListingStatusSnapshot, ttl time.Duration) error {
	args := m.Called(ctx, snapshot, ttl)
	return args.Error(0)
}

func (m *MockStatusCache) Delete(ctx context.Context, itemID string) error {
	args := m.Called(ctx, itemID)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, message interface{}) error {
	args := m.Called(ctx, subject, message)
	return args.Error(0)
}

func (m *MockPublisher) PublishRaw(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type MockAdapter struct {
	mock.Mock
	platform entity.Platform
}

func NewMockAdapter(platform entity.Platform) *MockAdapter {
	return &MockAdapter{platform: platform}
}

func (m *MockAdapter) Platform() entity.Platform {
	return m.platform
}

func (m *MockAdapter) CreateListing(ctx context.Context, item *entity.Item) (*marketplace.ListingRef, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketplace.ListingRef), args.Error(1)
}

func (m *MockAdapter) EndListing(ctx context.Context, listingID string) error {
	args := m.Called(ctx, listingID)
	return args.Error(0)
}

func (m *MockAdapter) UpdatePrice(ctx context.Context, listingID string, price float64) error {
	args := m.Called(ctx, listingID, price)
	return args.Error(0)
}

func (m *MockAdapter) GetStatus(ctx context.Context, listingID string) (entity.RemoteStatus, error) {
	args := m.Called(ctx, listingID)
	return args.Get(0).(entity.RemoteStatus), args.Error(1)
}

type MockValuationClient struct {
	mock.Mock
}

func (m *MockValuationClient) Estimate(ctx context.Context, title, description string, condition entity.Condition, defects string) (*client.Estimate, error) {
	args := m.Called(ctx, title, description, condition, defects)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.Estimate), args.Error(1)
}
