package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/metrics"
	"github.com/offboardpro/offboardpro/api/models"
	gw "github.com/offboardpro/offboardpro/api/services/billing/gateway"
)

const receiptPrefix = "receipt_offboard_"

// CreateOrder validates the amount and asks the gateway for an order. The
// amount is forwarded exactly as received; 19900 means ₹199.00.
func (s serviceImpl) CreateOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if req.Amount <= 0 {
		metrics.OrdersTotal.WithLabelValues(s.gw.Name(), metrics.OutcomeReject).Inc()
		return OrderResponse{}, fmt.Errorf("%w: amount must be a positive integer in minor units, got %d", apperrors.ErrInvalidArgument, req.Amount)
	}
	if req.BillingCycle != "" && !req.BillingCycle.Valid() {
		metrics.OrdersTotal.WithLabelValues(s.gw.Name(), metrics.OutcomeReject).Inc()
		return OrderResponse{}, fmt.Errorf("%w: unknown billing cycle %q", apperrors.ErrInvalidArgument, req.BillingCycle)
	}

	receipt := receiptPrefix + ulid.Make().String()
	notes := map[string]string{}
	if req.UserID != "" {
		notes["user_id"] = req.UserID
	}
	cycle := req.BillingCycle
	if cycle == "" {
		cycle, _ = models.CycleForAmount(req.Amount)
	}
	if cycle != "" {
		notes["billing_cycle"] = string(cycle)
	}

	order, err := s.gw.CreateOrder(ctx, gw.OrderParams{Amount: req.Amount, Currency: models.Currency, ReceiptID: receipt, Notes: notes})
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(s.gw.Name(), metrics.OutcomeError).Inc()
		slog.Error("gateway order creation failed", "gateway", s.gw.Name(), "receipt", receipt, "error", err)
		return OrderResponse{}, fmt.Errorf("%w: error creating %s order: %v", apperrors.ErrUpstream, s.gw.Name(), err)
	}
	if order.ID == "" {
		metrics.OrdersTotal.WithLabelValues(s.gw.Name(), metrics.OutcomeError).Inc()
		slog.Error("gateway returned an order without id", "gateway", s.gw.Name(), "receipt", receipt)
		return OrderResponse{}, fmt.Errorf("%w: %s returned no order id", apperrors.ErrOrderCreationFailed, s.gw.Name())
	}
	metrics.OrdersTotal.WithLabelValues(s.gw.Name(), metrics.OutcomeOK).Inc()
	slog.Info("order created", "gateway", s.gw.Name(), "order_id", order.ID, "amount", order.Amount, "display", models.FormatMinor(order.Amount), "user_id", req.UserID)

	if req.UserID != "" {
		rec := models.PaymentOrder{
			OrderID:      order.ID,
			UserID:       req.UserID,
			Amount:       order.Amount,
			Currency:     order.Currency,
			ReceiptID:    receipt,
			BillingCycle: cycle,
			Gateway:      s.gw.Name(),
			Status:       models.OrderCreated,
			CreatedAt:    s.now().UTC(),
		}
		if err := s.ledger.RecordOrder(ctx, rec); err != nil {
			return OrderResponse{}, fmt.Errorf("%w: error recording order: %v", apperrors.ErrDatabase, err)
		}
	}

	return OrderResponse{
		ID:           order.ID,
		Amount:       order.Amount,
		Currency:     order.Currency,
		Receipt:      order.Receipt,
		ClientSecret: order.ClientSecret,
		Gateway:      s.gw.Name(),
	}, nil
}
