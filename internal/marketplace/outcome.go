package marketplace

import (
	"errors"

	"github.com/automarket/consignment-service/internal/domain/entity"
)

// Outcome is the normalized result of one adapter call. The orchestrator
// folds it into the next lifecycle state and the façade renders it; it is
// never persisted beyond logs.
type Outcome struct {
	Platform    entity.Platform `json:"platform"`
	Operation   string          `json:"operation"`
	Success     bool            `json:"success"`
	ListingID   string          `json:"listing_id,omitempty"`
	ListingURL  string          `json:"listing_url,omitempty"`
	ErrorClass  ErrorClass      `json:"error_class,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
}

func SuccessOutcome(platform entity.Platform, operation string) Outcome {
	return Outcome{Platform: platform, Operation: operation, Success: true}
}

func CreatedOutcome(platform entity.Platform, ref *ListingRef) Outcome {
	return Outcome{
		Platform:   platform,
		Operation:  OpCreateListing,
		Success:    true,
		ListingID:  ref.ListingID,
		ListingURL: ref.ListingURL,
	}
}

// FailureOutcome normalizes an adapter error into a caller-visible outcome.
func FailureOutcome(platform entity.Platform, operation string, err error) Outcome {
	out := Outcome{
		Platform:   platform,
		Operation:  operation,
		ErrorClass: ClassUnknown,
	}
	var me *Error
	if errors.As(err, &me) {
		out.ErrorClass = me.Class
		out.ErrorDetail = me.Detail
	} else if err != nil {
		out.ErrorDetail = err.Error()
	}
	return out
}

// Operation names as they appear in outcomes, logs, and events.
const (
	OpCreateListing = "create_listing"
	OpEndListing    = "end_listing"
	OpUpdatePrice   = "update_price"
	OpGetStatus     = "get_status"
)
