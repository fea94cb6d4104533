package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/metrics"
	"github.com/offboardpro/offboardpro/api/models"
	gw "github.com/offboardpro/offboardpro/api/services/billing/gateway"
	"github.com/offboardpro/offboardpro/api/store"
)

// ConfirmPayment grants Pro for a checkout the caller completed, after the
// gateway vouches for the payment.
func (s serviceImpl) ConfirmPayment(ctx context.Context, userID string, req ConfirmRequest) (Confirmed, error) {
	c, err := s.confirm(ctx, userID, req)
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrEntitlementSyncFailed), errors.Is(err, apperrors.ErrUpstream), errors.Is(err, apperrors.ErrDatabase):
		outcome = metrics.OutcomeError
	default:
		outcome = metrics.OutcomeReject
	}
	metrics.ConfirmationsTotal.WithLabelValues(outcome).Inc()
	return c, err
}

func (s serviceImpl) confirm(ctx context.Context, userID string, req ConfirmRequest) (Confirmed, error) {
	if userID == "" {
		return Confirmed{}, apperrors.ErrAuthRequired
	}
	if req.OrderID == "" {
		return Confirmed{}, fmt.Errorf("%w: orderId is required", apperrors.ErrInvalidArgument)
	}

	o, err := s.ledger.GetOrder(ctx, req.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return Confirmed{}, fmt.Errorf("%w: order %s", apperrors.ErrNotFound, req.OrderID)
	}
	if err != nil {
		return Confirmed{}, fmt.Errorf("%w: error reading order: %v", apperrors.ErrDatabase, err)
	}
	if o.UserID != userID {
		slog.Warn("payment confirmation for another user's order", "order_id", o.OrderID, "user_id", userID)
		return Confirmed{}, fmt.Errorf("%w: order %s", apperrors.ErrNotFound, req.OrderID)
	}
	if o.Status == models.OrderGranted {
		return Confirmed{OrderID: o.OrderID, PaymentID: o.PaymentID, Plan: models.PlanProfessional, BillingCycle: o.BillingCycle, UpgradedAt: o.PaidAt}, nil
	}
	if err := checkPrice(o); err != nil {
		return Confirmed{}, err
	}

	p, err := s.gw.VerifyPayment(ctx, gw.Confirmation{OrderID: req.OrderID, PaymentID: req.PaymentID, Signature: req.Signature})
	if errors.Is(err, gw.ErrInvalidSignature) || errors.Is(err, gw.ErrNotPaid) {
		slog.Warn("payment verification rejected", "order_id", o.OrderID, "user_id", userID, "error", err)
		return Confirmed{}, fmt.Errorf("%w: %v", apperrors.ErrPaymentUnverified, err)
	}
	if err != nil {
		return Confirmed{}, fmt.Errorf("%w: error verifying payment: %v", apperrors.ErrUpstream, err)
	}
	if p.Amount != 0 && p.Amount != o.Amount {
		return Confirmed{}, fmt.Errorf("%w: paid %d, order is %d", apperrors.ErrPaymentUnverified, p.Amount, o.Amount)
	}

	return s.grantOrder(ctx, o, p.ID, s.paidTime(o))
}
