package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/models"
	gw "github.com/offboardpro/offboardpro/api/services/billing/gateway"
	"github.com/offboardpro/offboardpro/api/store"
)

// Granter writes entitlements. It is satisfied by the entitlement service.
type Granter interface {
	Grant(ctx context.Context, userID string, g models.Grant) error
}

// Service defines the business operations for the billing domain.
type Service interface {
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
	ConfirmPayment(ctx context.Context, userID string, req ConfirmRequest) (Confirmed, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error)
	ReconcilePending(ctx context.Context) (ReconcileReport, error)
	// SignatureHeader names the header the gateway signs webhooks in.
	SignatureHeader() string
}

type serviceImpl struct {
	gw      gw.PaymentGateway
	ledger  store.OrderLedger
	granter Granter
	now     func() time.Time
}

func NewService(g gw.PaymentGateway, ledger store.OrderLedger, granter Granter) Service {
	return serviceImpl{gw: g, ledger: ledger, granter: granter, now: time.Now}
}

func (s serviceImpl) SignatureHeader() string { return s.gw.SignatureHeader() }

// checkPrice rejects orders whose charge is not the price of their cycle.
func checkPrice(o models.PaymentOrder) error {
	price, err := models.PriceFor(o.BillingCycle)
	if err != nil {
		return fmt.Errorf("%w: order %s has no plan: %v", apperrors.ErrPaymentUnverified, o.OrderID, err)
	}
	if o.Amount != price || o.Currency != models.Currency {
		return fmt.Errorf("%w: order %s charged %d %s, plan price is %d %s",
			apperrors.ErrPaymentUnverified, o.OrderID, o.Amount, o.Currency, price, models.Currency)
	}
	return nil
}

// grantOrder records the payment and writes the entitlement. The grant's
// UpgradedAt is the recorded paid time, so every retry writes the same record.
// The payment itself is never touched.
func (s serviceImpl) grantOrder(ctx context.Context, o models.PaymentOrder, paymentID string, paidAt time.Time) (Confirmed, error) {
	if o.Status == models.OrderCreated {
		if err := s.ledger.UpdateOrderStatus(ctx, o.OrderID, models.OrderPaid, paymentID, paidAt); err != nil {
			slog.Error("payment verified but ledger update failed", "order_id", o.OrderID, "user_id", o.UserID, "error", err)
			return Confirmed{}, fmt.Errorf("%w: error recording payment: %v", apperrors.ErrEntitlementSyncFailed, err)
		}
	}
	if paymentID == "" {
		paymentID = o.PaymentID
	}

	g := models.Grant{Plan: models.PlanProfessional, BillingCycle: o.BillingCycle, UpgradedAt: paidAt.UTC(), OrderID: o.OrderID}
	if err := s.granter.Grant(ctx, o.UserID, g); err != nil {
		slog.Error("payment succeeded but entitlement sync failed", "order_id", o.OrderID, "user_id", o.UserID, "error", err)
		if uerr := s.ledger.UpdateOrderStatus(ctx, o.OrderID, models.OrderSyncFailed, "", time.Time{}); uerr != nil {
			slog.Warn("error marking order sync_failed", "order_id", o.OrderID, "error", uerr)
		}
		return Confirmed{}, fmt.Errorf("%w: %v", apperrors.ErrEntitlementSyncFailed, err)
	}
	if err := s.ledger.UpdateOrderStatus(ctx, o.OrderID, models.OrderGranted, "", time.Time{}); err != nil {
		// the entitlement landed; reconciliation will re-apply the same grant
		slog.Warn("error marking order granted", "order_id", o.OrderID, "error", err)
	}
	return Confirmed{OrderID: o.OrderID, PaymentID: paymentID, Plan: g.Plan, BillingCycle: g.BillingCycle, UpgradedAt: g.UpgradedAt}, nil
}

// paidTime is the time a payment was first recorded, falling back to now.
func (s serviceImpl) paidTime(o models.PaymentOrder) time.Time {
	if !o.PaidAt.IsZero() {
		return o.PaidAt
	}
	return s.now().UTC().Truncate(time.Millisecond)
}
