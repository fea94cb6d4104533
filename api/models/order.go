package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is fixed for this product.
const Currency = "INR"

// Plan prices in minor units (paise).
const (
	MonthlyPriceMinor int64 = 19900
	YearlyPriceMinor  int64 = 199000
)

// PriceFor returns the charge for a billing cycle in minor units.
func PriceFor(cycle BillingCycle) (int64, error) {
	switch cycle {
	case CycleMonthly:
		return MonthlyPriceMinor, nil
	case CycleYearly:
		return YearlyPriceMinor, nil
	default:
		return 0, fmt.Errorf("unknown billing cycle %q", cycle)
	}
}

// CycleForAmount infers the billing cycle a charge pays for.
func CycleForAmount(amount int64) (BillingCycle, bool) {
	switch amount {
	case MonthlyPriceMinor:
		return CycleMonthly, true
	case YearlyPriceMinor:
		return CycleYearly, true
	default:
		return "", false
	}
}

// FormatMinor renders minor units as a major-unit rupee amount, e.g. 19900 -> "₹199.00".
func FormatMinor(amount int64) string {
	return "₹" + decimal.New(amount, -2).StringFixed(2)
}

// OrderStatus tracks a gateway order through payment and entitlement sync.
type OrderStatus string

const (
	OrderCreated    OrderStatus = "created"
	OrderPaid       OrderStatus = "paid"
	OrderGranted    OrderStatus = "granted"
	OrderSyncFailed OrderStatus = "sync_failed"
)

// PaymentOrder is the server-side ledger entry for one checkout attempt,
// keyed by the gateway order id.
type PaymentOrder struct {
	OrderID      string       `json:"orderId" db:"order_id" firestore:"-"`
	UserID       string       `json:"userId" db:"user_id" firestore:"userId"`
	Amount       int64        `json:"amount" db:"amount" firestore:"amount"`
	Currency     string       `json:"currency" db:"currency" firestore:"currency"`
	ReceiptID    string       `json:"receiptId" db:"receipt_id" firestore:"receiptId"`
	BillingCycle BillingCycle `json:"billingCycle" db:"billing_cycle" firestore:"billingCycle"`
	Gateway      string       `json:"gateway" db:"gateway" firestore:"gateway"`
	Status       OrderStatus  `json:"status" db:"status" firestore:"status"`
	PaymentID    string       `json:"paymentId,omitempty" db:"payment_id" firestore:"paymentId,omitempty"`
	CreatedAt    time.Time    `json:"createdAt" db:"created_at" firestore:"createdAt"`
	PaidAt       time.Time    `json:"paidAt,omitempty" db:"paid_at" firestore:"paidAt,omitempty"`
}
