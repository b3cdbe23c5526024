package service

import (
	"context"

	"github.com/automarket/consignment-service/internal/adapter/client"
	natsadapter "github.com/automarket/consignment-service/internal/adapter/nats"
	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/platform/logger"
	"github.com/automarket/consignment-service/internal/repository"
)

// SubmitItemRequest is a seller's intake form for one item.
type SubmitItemRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Condition   entity.Condition `json:"condition"`
	Defects     string           `json:"defects,omitempty"`
}

// SubmissionService handles intake and read access: new items are valued and
// stored as PENDING; lifecycle mutations belong to the Orchestrator.
type SubmissionService struct {
	repo      repository.ItemRepository
	valuation client.ValuationClient
	publisher natsadapter.MessagePublisher
	log       logger.Logger
}

func NewSubmissionService(repo repository.ItemRepository, valuation client.ValuationClient, publisher natsadapter.MessagePublisher, log logger.Logger) *SubmissionService {
	return &SubmissionService{
		repo:      repo,
		valuation: valuation,
		publisher: publisher,
		log:       log,
	}
}

// Submit values the item and stores it awaiting review. A valuation engine
// outage fails the submission: a PENDING item without an estimate would have
// nothing for the reviewer to decide on.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitItemRequest) (*entity.Item, error) {
	item, err := entity.NewItem(req.Title, req.Description, req.Condition, req.Defects)
	if err != nil {
		return nil, NewValidationError("invalid submission: %v", err)
	}

	estimate, err := s.valuation.Estimate(ctx, req.Title, req.Description, req.Condition, req.Defects)
	if err != nil {
		s.log.Errorf("valuation failed for submission %q: %v", req.Title, err)
		return nil, err
	}
	item.EstimatedPrice = estimate.Price
	item.MinPriceRange = estimate.PriceRangeMin
	item.MaxPriceRange = estimate.PriceRangeMax
	item.Confidence = estimate.Confidence

	id, err := s.repo.Create(ctx, item)
	if err != nil {
		return nil, err
	}
	item.ID = id
	s.log.Infof("item %s submitted: %q estimated at %.2f (%s confidence)",
		item.ID, item.Title, item.EstimatedPrice, item.Confidence)

	if err := s.publisher.Publish(ctx, natsadapter.SubjectItemSubmitted, itemEventPayload{
		ItemID: item.ID,
		Status: item.Status,
		Title:  item.Title,
	}); err != nil {
		s.log.Warnf("failed to publish submission event for item %s: %v", item.ID, err)
	}
	return item, nil
}

func (s *SubmissionService) Get(ctx context.Context, itemID string) (*entity.Item, error) {
	return s.repo.GetByID(ctx, itemID)
}

func (s *SubmissionService) List(ctx context.Context, params repository.ListItemsParams) (*repository.ListItemsResult, error) {
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.PageSize <= 0 || params.PageSize > 100 {
		params.PageSize = 20
	}
	return s.repo.List(ctx, params)
}
