package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/metrics"
	"github.com/offboardpro/offboardpro/api/models"
)

const reconcileBatch = 100

// ReconcilePending re-applies grants for orders that were paid but whose
// entitlement write never landed. It never touches the payment.
func (s serviceImpl) ReconcilePending(ctx context.Context) (ReconcileReport, error) {
	start := time.Now()
	defer func() { metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	orders, err := s.ledger.ListOrdersByStatus(ctx, reconcileBatch, models.OrderPaid, models.OrderSyncFailed)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues(metrics.OutcomeError).Inc()
		return ReconcileReport{}, fmt.Errorf("%w: error listing pending orders: %v", apperrors.ErrDatabase, err)
	}

	var rep ReconcileReport
	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		rep.Scanned++
		if err := checkPrice(o); err != nil {
			slog.Warn("skipping unreconcilable order", "order_id", o.OrderID, "error", err)
			rep.Failed++
			continue
		}
		paidAt := o.PaidAt
		if paidAt.IsZero() {
			paidAt = o.CreatedAt
		}
		if _, err := s.grantOrder(ctx, o, "", paidAt); err != nil {
			rep.Failed++
			continue
		}
		rep.Granted++
	}

	outcome := metrics.OutcomeOK
	if rep.Failed > 0 {
		outcome = metrics.OutcomeError
	}
	metrics.ReconcileRuns.WithLabelValues(outcome).Inc()
	if rep.Scanned > 0 {
		slog.Info("reconciliation sweep", "scanned", rep.Scanned, "granted", rep.Granted, "failed", rep.Failed)
	}
	return rep, nil
}
