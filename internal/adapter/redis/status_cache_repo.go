package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/automarket/consignment-service/internal/repository"
)

const listingStatusKeyPrefix = "listing_status:"

// listingStatusCacheRepository serves the cross-platform status snapshot the
// façade renders, so status queries do not hit the item store on every read.
// The orchestrator refreshes the snapshot after every committed transition.
type listingStatusCacheRepository struct {
	client *redis.Client
}

func NewListingStatusCacheRepository(client *redis.Client) repository.ListingStatusCache {
	return &listingStatusCacheRepository{client: client}
}

func (r *listingStatusCacheRepository) key(itemID string) string {
	return listingStatusKeyPrefix + itemID
}

func (r *listingStatusCacheRepository) Get(ctx context.Context, itemID string) (*repository.ListingStatusSnapshot, error) {
	val, err := r.client.Get(ctx, r.key(itemID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing status for item %s from redis: %w", itemID, err)
	}

	var snapshot repository.ListingStatusSnapshot
	if err := json.Unmarshal(val, &snapshot); err != nil {
		_ = r.Delete(ctx, itemID)
		return nil, fmt.Errorf("failed to unmarshal listing status for item %s: %w", itemID, err)
	}
	return &snapshot, nil
}

func (r *listingStatusCacheRepository) Set(ctx context.Context, snapshot *repository.ListingStatusSnapshot, ttl time.Duration) error {
	if snapshot == nil || snapshot.ItemID == "" {
		return errors.New("cannot cache nil snapshot or snapshot with empty item id")
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal listing status for item %s: %w", snapshot.ItemID, err)
	}

	if err := r.client.Set(ctx, r.key(snapshot.ItemID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set listing status for item %s to redis: %w", snapshot.ItemID, err)
	}
	return nil
}

func (r *listingStatusCacheRepository) Delete(ctx context.Context, itemID string) error {
	if err := r.client.Del(ctx, r.key(itemID)).Err(); err != nil {
		return fmt.Errorf("failed to delete listing status for item %s from redis: %w", itemID, err)
	}
	return nil
}
