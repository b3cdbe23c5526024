package repository

import (
	"context"

	"github.com/automarket/consignment-service/internal/domain/entity"
)

type ListItemsParams struct {
	Statuses  []entity.ItemStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

type ListItemsResult struct {
	Items       []entity.Item
	TotalCount  int64
	CurrentPage int
	PageSize    int
	TotalPages  int
}

// ItemRepository is the single source of truth for item lifecycle state.
//
// CommitTransition applies the whole in-memory item as one atomic write guarded
// by item.Version; a concurrent writer surfaces as ErrOptimisticLock and the
// caller must re-read and retry the entire command. On success the in-memory
// Version is advanced so the same loaded item can be committed again.
type ItemRepository interface {
	Create(ctx context.Context, item *entity.Item) (string, error)
	GetByID(ctx context.Context, itemID string) (*entity.Item, error)
	CommitTransition(ctx context.Context, item *entity.Item) error
	List(ctx context.Context, params ListItemsParams) (*ListItemsResult, error)

	// FindForReconciliation returns the ids of items the sweep must visit:
	// non-terminal listed items plus terminal items still flagged for manual
	// unlisting.
	FindForReconciliation(ctx context.Context, limit int) ([]string, error)

	// Delete permanently removes an archived item. Administrative escape
	// hatch; never called by the orchestrator.
	Delete(ctx context.Context, itemID string) error
}
