package service

import (
	"context"
	"sync"
	"time"

	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/platform/logger"
	"github.com/automarket/consignment-service/internal/repository"
)

// Reconciler periodically sweeps items whose remote state can drift: live
// listings that may have sold or ended externally, and terminal items still
// flagged for manual unlisting. Each item is reconciled under the same
// per-item lock the commands use, so a sweep never interleaves with an
// in-flight command on the same item.
type Reconciler struct {
	orchestrator *Orchestrator
	repo         repository.ItemRepository
	log          logger.Logger
	interval     time.Duration
	batchSize    int
}

func NewReconciler(orchestrator *Orchestrator, repo repository.ItemRepository, log logger.Logger, interval time.Duration, batchSize int) *Reconciler {
	return &Reconciler{
		orchestrator: orchestrator,
		repo:         repo,
		log:          log,
		interval:     interval,
		batchSize:    batchSize,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Infof("reconciliation sweep started, interval %s", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciliation sweep stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep reconciles one batch of drift-prone items. Per-item failures are
// logged and skipped; one bad item never stalls the rest of the batch.
func (r *Reconciler) Sweep(ctx context.Context) {
	ids, err := r.repo.FindForReconciliation(ctx, r.batchSize)
	if err != nil {
		r.log.Errorf("reconciliation sweep: failed to load candidates: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	r.log.Debugf("reconciliation sweep: %d candidate items", len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := r.orchestrator.ReconcileItem(ctx, id); err != nil {
			r.log.Errorf("reconciliation sweep: item %s: %v", id, err)
		}
	}
}

// ReconcileItem brings one item's stored state back in line with what the
// marketplaces actually report. An externally detected sale runs the same
// sold protocol as an explicit command; an externally ended listing clears
// the sub-record and downgrades the aggregate state. Status calls that fail
// change nothing: only a definitive remote answer moves the record.
func (o *Orchestrator) ReconcileItem(ctx context.Context, itemID string) error {
	release := o.locks.Acquire(itemID)
	defer release()

	item, err := o.repo.GetByID(ctx, itemID)
	if err != nil {
		return err
	}

	if item.IsTerminal() {
		return o.cleanupTerminalListings(ctx, item)
	}

	live := item.LivePlatforms()
	if len(live) == 0 {
		return nil
	}

	type remoteCheck struct {
		platform entity.Platform
		status   entity.RemoteStatus
		err      error
	}
	checks := make([]remoteCheck, len(live))
	var wg sync.WaitGroup
	for i, p := range live {
		wg.Add(1)
		go func(i int, p entity.Platform) {
			defer wg.Done()
			status, err := o.adapters[p].GetStatus(ctx, item.Listing(p).ListingID)
			checks[i] = remoteCheck{platform: p, status: status, err: err}
		}(i, p)
	}
	wg.Wait()

	now := time.Now().UTC()
	changed := false
	for _, check := range checks {
		if check.err != nil {
			o.log.Warnf("reconcile: status check on %s failed for item %s: %v", check.platform, item.ID, check.err)
			continue
		}
		listing := item.Listing(check.platform)

		switch check.status {
		case entity.RemoteSold:
			// External sale wins over everything else this pass.
			price := item.ListingPrice()
			o.log.Infof("reconcile: item %s sold externally on %s", item.ID, check.platform)
			_, err := o.finalizeSale(ctx, item, check.platform, price)
			return err
		case entity.RemoteEnded:
			o.log.Infof("reconcile: listing on %s ended externally for item %s", check.platform, item.ID)
			item.ClearListing(check.platform)
			changed = true
		case entity.RemoteActive:
			// Already-confirmed listings are left alone so an all-quiet sweep
			// commits nothing.
			if listing.LastKnownRemoteStatus != check.status {
				listing.LastKnownRemoteStatus = check.status
				listing.LastSyncedAt = now
				changed = true
			}
		default:
			// UNKNOWN answers leave the record as-is.
		}
	}

	next := item.AggregateStatusFromListings()
	if next != item.Status {
		if err := item.TransitionTo(next); err != nil {
			return err
		}
		changed = true
	}
	if !changed {
		return nil
	}
	if err := o.commit(ctx, item); err != nil {
		return err
	}
	o.refreshStatusCache(ctx, item)
	return nil
}

// cleanupTerminalListings re-attempts EndListing for every listing a terminal
// item still carries. Any surviving listing id counts, not just flagged ones:
// a crash or failed commit between the sale and the cross-platform cleanup
// leaves an unflagged leftover that would otherwise never be retried.
func (o *Orchestrator) cleanupTerminalListings(ctx context.Context, item *entity.Item) error {
	var pending []entity.Platform
	for _, p := range entity.Platforms {
		if l := item.Listing(p); l != nil && l.ListingID != "" {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	changed := false
	for _, p := range pending {
		if err := o.adapters[p].EndListing(ctx, item.Listing(p).ListingID); err != nil {
			o.log.Warnf("reconcile: retrying unlist on %s for item %s failed: %v", p, item.ID, err)
			continue
		}
		o.log.Infof("reconcile: stale listing on %s ended for item %s", p, item.ID)
		item.ClearListing(p)
		changed = true
	}
	if !changed {
		return nil
	}
	if err := o.commit(ctx, item); err != nil {
		return err
	}
	o.refreshStatusCache(ctx, item)
	return nil
}
