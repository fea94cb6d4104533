package models

import (
	"encoding/json"
	"time"
)

// Plan is the subscription tier stored on an entitlement.
type Plan string

// BillingCycle is how often a Pro subscription is paid for.
type BillingCycle string

const (
	PlanNone         Plan = "none"
	PlanProfessional Plan = "professional"
)

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Valid reports whether c is one of the two sellable cycles.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// Entitlement is the per-user record of what paid features are available.
// Keep value types to avoid pointer proliferation in the domain.
type Entitlement struct {
	UserID       string       `json:"userId" db:"user_id" firestore:"-"`
	IsPro        bool         `json:"isPro" db:"is_pro" firestore:"isPro"`
	Plan         Plan         `json:"plan" db:"plan" firestore:"plan"`
	BillingCycle BillingCycle `json:"billingCycle,omitempty" db:"billing_cycle" firestore:"billingCycle,omitempty"`
	UpgradedAt   time.Time    `json:"upgradedAt" db:"upgraded_at" firestore:"upgradedAt,omitempty"`
	DowngradedAt time.Time    `json:"downgradedAt" db:"downgraded_at" firestore:"downgradedAt,omitempty"`
	OrderID      string       `json:"orderId,omitempty" db:"order_id" firestore:"orderId,omitempty"`
}

// MarshalJSON leaves out timestamps that were never set, so a free user's
// record carries no upgradedAt.
func (e Entitlement) MarshalJSON() ([]byte, error) {
	type plain Entitlement
	out := struct {
		plain
		UpgradedAt   *time.Time `json:"upgradedAt,omitempty"`
		DowngradedAt *time.Time `json:"downgradedAt,omitempty"`
	}{plain: plain(e)}
	if !e.UpgradedAt.IsZero() {
		out.UpgradedAt = &e.UpgradedAt
	}
	if !e.DowngradedAt.IsZero() {
		out.DowngradedAt = &e.DowngradedAt
	}
	return json.Marshal(out)
}

// FreeEntitlement is what a user without a stored record is entitled to.
func FreeEntitlement(userID string) Entitlement {
	return Entitlement{UserID: userID, Plan: PlanNone}
}

// Valid checks the record invariant: isPro implies the professional plan
// with a sellable billing cycle.
func (e Entitlement) Valid() bool {
	if !e.IsPro {
		return true
	}
	return e.Plan == PlanProfessional && e.BillingCycle.Valid()
}

// Grant is the blind-merge payload written after a verified payment.
// Applying the same Grant twice yields the same stored record.
type Grant struct {
	Plan         Plan
	BillingCycle BillingCycle
	UpgradedAt   time.Time
	OrderID      string
}

// Apply returns e with g merged over it.
func (g Grant) Apply(e Entitlement) Entitlement {
	e.IsPro = true
	e.Plan = g.Plan
	e.BillingCycle = g.BillingCycle
	e.UpgradedAt = g.UpgradedAt
	e.OrderID = g.OrderID
	e.DowngradedAt = time.Time{}
	return e
}
