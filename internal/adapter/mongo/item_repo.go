package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/automarket/consignment-service/internal/app/config"
	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/repository"
)

const itemCollectionName = "items"

type itemRepository struct {
	db         *mongo.Database
	collection *mongo.Collection
}

func NewItemRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.ItemRepository {
	database := client.Database(cfg.Database)
	return &itemRepository{
		db:         database,
		collection: database.Collection(itemCollectionName),
	}
}

// itemDocument mirrors entity.Item with a Mongo ObjectID primary key. The
// entity keeps string ids so the domain stays storage-agnostic.
type itemDocument struct {
	ID primitive.ObjectID `bson:"_id,omitempty"`

	Title       string           `bson:"title"`
	Description string           `bson:"description"`
	Condition   entity.Condition `bson:"condition"`
	Defects     string           `bson:"defects,omitempty"`

	EstimatedPrice float64           `bson:"estimated_price"`
	MinPriceRange  float64           `bson:"min_price_range"`
	MaxPriceRange  float64           `bson:"max_price_range"`
	Confidence     entity.Confidence `bson:"confidence"`

	FinalPrice      *float64          `bson:"final_price,omitempty"`
	Status          entity.ItemStatus `bson:"status"`
	RejectionReason string            `bson:"rejection_reason,omitempty"`

	Listings map[string]*entity.PlatformListing `bson:"listings,omitempty"`

	SoldPlatform *entity.Platform `bson:"sold_platform,omitempty"`
	SoldPrice    *float64         `bson:"sold_price,omitempty"`
	SoldAt       *time.Time       `bson:"sold_at,omitempty"`

	ArchivedAt *time.Time `bson:"archived_at,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
	Version    int        `bson:"version"`
}

func toDocument(item *entity.Item) (*itemDocument, error) {
	doc := &itemDocument{
		Title:           item.Title,
		Description:     item.Description,
		Condition:       item.Condition,
		Defects:         item.Defects,
		EstimatedPrice:  item.EstimatedPrice,
		MinPriceRange:   item.MinPriceRange,
		MaxPriceRange:   item.MaxPriceRange,
		Confidence:      item.Confidence,
		FinalPrice:      item.FinalPrice,
		Status:          item.Status,
		RejectionReason: item.RejectionReason,
		SoldPlatform:    item.SoldPlatform,
		SoldPrice:       item.SoldPrice,
		SoldAt:          item.SoldAt,
		ArchivedAt:      item.ArchivedAt,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
		Version:         item.Version,
	}
	if item.ID != "" {
		objID, err := primitive.ObjectIDFromHex(item.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid item ID format: %w", repository.ErrNotFound)
		}
		doc.ID = objID
	}
	if len(item.Listings) > 0 {
		doc.Listings = make(map[string]*entity.PlatformListing, len(item.Listings))
		for p, l := range item.Listings {
			doc.Listings[string(p)] = l
		}
	}
	return doc, nil
}

func (d *itemDocument) toEntity() *entity.Item {
	item := &entity.Item{
		ID:              d.ID.Hex(),
		Title:           d.Title,
		Description:     d.Description,
		Condition:       d.Condition,
		Defects:         d.Defects,
		EstimatedPrice:  d.EstimatedPrice,
		MinPriceRange:   d.MinPriceRange,
		MaxPriceRange:   d.MaxPriceRange,
		Confidence:      d.Confidence,
		FinalPrice:      d.FinalPrice,
		Status:          d.Status,
		RejectionReason: d.RejectionReason,
		Listings:        make(map[entity.Platform]*entity.PlatformListing, len(d.Listings)),
		SoldPlatform:    d.SoldPlatform,
		SoldPrice:       d.SoldPrice,
		SoldAt:          d.SoldAt,
		ArchivedAt:      d.ArchivedAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		Version:         d.Version,
	}
	for p, l := range d.Listings {
		item.Listings[entity.Platform(p)] = l
	}
	return item
}

func (r *itemRepository) Create(ctx context.Context, item *entity.Item) (string, error) {
	doc, err := toDocument(item)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.Version = 1

	res, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to create item: %w", err)
	}
	objectID, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("failed to convert inserted ID to ObjectID")
	}
	item.ID = objectID.Hex()
	item.CreatedAt = doc.CreatedAt
	item.UpdatedAt = doc.UpdatedAt
	item.Version = doc.Version
	return item.ID, nil
}

func (r *itemRepository) GetByID(ctx context.Context, itemID string) (*entity.Item, error) {
	objID, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return nil, fmt.Errorf("invalid item ID format: %w", repository.ErrNotFound)
	}

	var doc itemDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item by ID %s: %w", itemID, err)
	}
	return doc.toEntity(), nil
}

// CommitTransition replaces the whole item document in a single write guarded
// by the version the command loaded. Partial field-level updates are never
// issued, so readers only ever observe complete transitions.
func (r *itemRepository) CommitTransition(ctx context.Context, item *entity.Item) error {
	doc, err := toDocument(item)
	if err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()
	doc.Version = item.Version + 1

	filter := bson.M{
		"_id":     doc.ID,
		"version": item.Version,
	}
	result, err := r.collection.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("failed to commit transition for item %s: %w", item.ID, err)
	}

	if result.MatchedCount == 0 {
		var existing itemDocument
		errFind := r.collection.FindOne(ctx, bson.M{"_id": doc.ID}).Decode(&existing)
		if errors.Is(errFind, mongo.ErrNoDocuments) {
			return repository.ErrNotFound
		}
		if errFind == nil && existing.Version != item.Version {
			return repository.ErrOptimisticLock
		}
		return repository.ErrUpdateFailed
	}

	item.Version = doc.Version
	item.UpdatedAt = doc.UpdatedAt
	return nil
}

func (r *itemRepository) List(ctx context.Context, params repository.ListItemsParams) (*repository.ListItemsResult, error) {
	filter := bson.M{}
	if len(params.Statuses) > 0 {
		filter["status"] = bson.M{"$in": params.Statuses}
	}

	findOptions := options.Find()
	if params.PageSize > 0 {
		if params.Page <= 0 {
			params.Page = 1
		}
		findOptions.SetSkip(int64((params.Page - 1) * params.PageSize))
		findOptions.SetLimit(int64(params.PageSize))
	}
	if params.SortBy != "" {
		sortOrder := 1
		if params.SortOrder == "desc" {
			sortOrder = -1
		}
		findOptions.SetSort(bson.D{{Key: params.SortBy, Value: sortOrder}})
	} else {
		findOptions.SetSort(bson.D{{Key: "created_at", Value: -1}})
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []itemDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode listed items: %w", err)
	}

	totalCount, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}

	items := make([]entity.Item, 0, len(docs))
	for i := range docs {
		items = append(items, *docs[i].toEntity())
	}

	totalPages := 0
	if params.PageSize > 0 {
		totalPages = (int(totalCount) + params.PageSize - 1) / params.PageSize
	} else if totalCount > 0 {
		totalPages = 1
	}

	return &repository.ListItemsResult{
		Items:       items,
		TotalCount:  totalCount,
		CurrentPage: params.Page,
		PageSize:    params.PageSize,
		TotalPages:  totalPages,
	}, nil
}

func (r *itemRepository) FindForReconciliation(ctx context.Context, limit int) ([]string, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"status": bson.M{"$in": bson.A{entity.StatusListed, entity.StatusListedPartial}}},
			bson.M{"listings": bson.M{"$exists": true, "$ne": bson.M{}}},
		},
	}

	findOptions := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find items for reconciliation: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reconciliation candidates: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID.Hex())
	}
	return ids, nil
}

func (r *itemRepository) Delete(ctx context.Context, itemID string) error {
	objID, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return fmt.Errorf("invalid item ID format: %w", repository.ErrNotFound)
	}
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", itemID, err)
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
