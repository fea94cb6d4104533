package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/metrics"
	"github.com/offboardpro/offboardpro/api/models"
	gw "github.com/offboardpro/offboardpro/api/services/billing/gateway"
	"github.com/offboardpro/offboardpro/api/store"
)

// HandleWebhook grants Pro from a signed gateway notification. It covers
// checkouts whose browser never came back to confirm.
func (s serviceImpl) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	res, err := s.handleWebhook(ctx, payload, signature)
	metrics.WebhookRequestsTotal.WithLabelValues(eventLabel(res.EventType), strconv.Itoa(apperrors.HTTPStatus(err))).Inc()
	return res, err
}

func eventLabel(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}

func (s serviceImpl) handleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	ev, err := s.gw.ParseWebhook(payload, signature)
	if errors.Is(err, gw.ErrInvalidSignature) {
		return WebhookResult{}, fmt.Errorf("%w: %v", apperrors.ErrPaymentUnverified, err)
	}
	if err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err)
	}
	res := WebhookResult{EventType: ev.Type, OrderID: ev.OrderID}
	if !ev.Paid {
		slog.Info("unhandled webhook event", "event_type", ev.Type)
		return res, nil
	}

	o, err := s.ledger.GetOrder(ctx, ev.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("webhook for unknown order ignored", "event_type", ev.Type, "order_id", ev.OrderID)
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("%w: error reading order: %v", apperrors.ErrDatabase, err)
	}
	if o.Status == models.OrderGranted {
		return res, nil
	}
	if ev.Amount != 0 && ev.Amount != o.Amount {
		slog.Warn("webhook amount does not match order", "order_id", o.OrderID, "paid", ev.Amount, "expected", o.Amount)
		return res, fmt.Errorf("%w: paid %d, order is %d", apperrors.ErrPaymentUnverified, ev.Amount, o.Amount)
	}
	if err := checkPrice(o); err != nil {
		return res, err
	}
	if _, err := s.grantOrder(ctx, o, ev.PaymentID, s.paidTime(o)); err != nil {
		return res, err
	}
	res.Granted = true
	return res, nil
}

// WebhookStatus is the HTTP status a webhook endpoint should answer with.
// Non-2xx makes the gateway redeliver, which is wanted only for transient failures.
func WebhookStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return apperrors.HTTPStatus(err)
}
