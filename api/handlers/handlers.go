package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/auth"
	config "github.com/offboardpro/offboardpro/api/config"
	accountapp "github.com/offboardpro/offboardpro/api/services/account/app"
	billingapp "github.com/offboardpro/offboardpro/api/services/billing/app"
	entapp "github.com/offboardpro/offboardpro/api/services/entitlement/app"
	trackerapp "github.com/offboardpro/offboardpro/api/services/tracker/app"
)

const maxBodyBytes = 64 << 10

// HealthChecker answers gRPC health probes.
type HealthChecker interface {
	Check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error)
}

// Handlers adapts the services to JSON over HTTP. Every method has the
// runtime.HandlerFunc signature so it can be mounted with HandlePath.
type Handlers struct {
	Billing      billingapp.Service
	Entitlements entapp.Service
	Tracker      trackerapp.Service
	Account      accountapp.Service
	Health       HealthChecker
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", apperrors.ErrInvalidArgument, err)
	}
	return nil
}

// CreateOrder serves POST /api/orders (and the legacy /api/razorpay path).
func (h Handlers) CreateOrder(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req billingapp.OrderRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	req.UserID = auth.UserID(r.Context())
	resp, err := h.Billing.CreateOrder(r.Context(), req)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req billingapp.ConfirmRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	resp, err := h.Billing.ConfirmPayment(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Webhook needs the raw body for signature verification.
func (h Handlers) Webhook(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		apperrors.WriteHTTP(w, fmt.Errorf("%w: error reading body: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	res, err := h.Billing.HandleWebhook(r.Context(), payload, r.Header.Get(h.Billing.SignatureHeader()))
	if err != nil {
		slog.Warn("webhook rejected", "error", err, "status", billingapp.WebhookStatus(err))
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, billingapp.WebhookStatus(nil), res)
}

func (h Handlers) GetEntitlement(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	e, err := h.Entitlements.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h Handlers) ListItems(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	ov, err := h.Tracker.List(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h Handlers) CreateItem(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req trackerapp.CreateItemRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	item, err := h.Tracker.Create(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h Handlers) BulkDeleteItems(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	n, err := h.Tracker.BulkDelete(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h Handlers) ToggleItem(w http.ResponseWriter, r *http.Request, params map[string]string) {
	item, err := h.Tracker.ToggleStatus(r.Context(), auth.UserID(r.Context()), params["id"])
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h Handlers) DeleteItem(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := h.Tracker.Delete(r.Context(), auth.UserID(r.Context()), params["id"]); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SharedItem is the public share page; it needs no token.
func (h Handlers) SharedItem(w http.ResponseWriter, r *http.Request, params map[string]string) {
	item, err := h.Tracker.Shared(r.Context(), params["id"])
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	p, _ := auth.FromContext(r.Context())
	res, err := h.Account.DeleteAccount(r.Context(), p)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Healthz renders the gRPC health status of the entitlement service.
func (h Handlers) Healthz(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := h.Health.Check(r.Context(), config.EntitlementService)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	body, err := protojson.Marshal(resp)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	status := http.StatusOK
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
