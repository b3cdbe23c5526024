package email

import (
	"context"
	"fmt"

	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/platform/logger"
)

// OpsNotifier sends operational alerts to the back-office mailbox. All sends
// are best effort: a mail failure is logged and never fails the lifecycle
// command that triggered it.
type OpsNotifier struct {
	sender  Sender
	opsAddr string
	log     logger.Logger
}

func NewOpsNotifier(sender Sender, opsAddr string, log logger.Logger) *OpsNotifier {
	return &OpsNotifier{sender: sender, opsAddr: opsAddr, log: log}
}

func (n *OpsNotifier) NotifySold(ctx context.Context, item *entity.Item) {
	if n.sender == nil || n.opsAddr == "" {
		return
	}
	price := 0.0
	if item.SoldPrice != nil {
		price = *item.SoldPrice
	}
	platform := ""
	if item.SoldPlatform != nil {
		platform = string(*item.SoldPlatform)
	}
	subject := fmt.Sprintf("Item sold on %s: %s", platform, item.Title)
	body := fmt.Sprintf("Item %s (%q) sold on %s for $%.2f.", item.ID, item.Title, platform, price)
	if err := n.sender.Send(ctx, []string{n.opsAddr}, subject, "", body); err != nil {
		n.log.Warnf("failed to send sold notification for item %s: %v", item.ID, err)
	}
}

func (n *OpsNotifier) NotifyManualUnlistNeeded(ctx context.Context, item *entity.Item, platform entity.Platform) {
	if n.sender == nil || n.opsAddr == "" {
		return
	}
	subject := fmt.Sprintf("Manual unlisting needed on %s: %s", platform, item.Title)
	body := fmt.Sprintf("Item %s (%q) could not be automatically removed from %s. The listing must be ended manually or by the next reconciliation sweep.",
		item.ID, item.Title, platform)
	if err := n.sender.Send(ctx, []string{n.opsAddr}, subject, "", body); err != nil {
		n.log.Warnf("failed to send manual-unlist notification for item %s: %v", item.ID, err)
	}
}
