package app

import (
	"time"

	"github.com/offboardpro/offboardpro/api/models"
)

// OrderRequest asks for a gateway order. Amount is in minor units (paise).
type OrderRequest struct {
	Amount       int64               `json:"amount"`
	BillingCycle models.BillingCycle `json:"billingCycle,omitempty"`
	// UserID is filled from the authenticated principal, never from the body.
	UserID string `json:"-"`
}

// OrderResponse echoes the gateway order.
type OrderResponse struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Receipt      string `json:"receipt,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Gateway      string `json:"gateway"`
}

// ConfirmRequest is the checkout success payload the client forwards.
type ConfirmRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// Confirmed describes the entitlement that a verified payment produced.
type Confirmed struct {
	OrderID      string              `json:"orderId"`
	PaymentID    string              `json:"paymentId,omitempty"`
	Plan         models.Plan         `json:"plan"`
	BillingCycle models.BillingCycle `json:"billingCycle"`
	UpgradedAt   time.Time           `json:"upgradedAt"`
}

// WebhookResult reports what a webhook delivery did.
type WebhookResult struct {
	EventType string `json:"eventType"`
	OrderID   string `json:"orderId,omitempty"`
	Granted   bool   `json:"granted"`
}

// ReconcileReport summarizes one reconciliation sweep.
type ReconcileReport struct {
	Scanned int `json:"scanned"`
	Granted int `json:"granted"`
	Failed  int `json:"failed"`
}
