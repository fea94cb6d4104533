package store

import (
	"context"
	"errors"
	"time"

	"github.com/offboardpro/offboardpro/api/models"
)

// ErrNotFound is returned by lookups addressing a record that does not exist.
var ErrNotFound = errors.New("record not found")

// ResyncAll is sent on an entitlement change feed when individual changes may
// have been missed (e.g. after a listener reconnect).
const ResyncAll = ""

// EntitlementStore persists one Entitlement per user.
type EntitlementStore interface {
	// GetEntitlement returns the stored record, or the free default when none exists.
	GetEntitlement(ctx context.Context, userID string) (models.Entitlement, error)
	// MergeEntitlement blind-upserts g onto the user's record.
	MergeEntitlement(ctx context.Context, userID string, g models.Grant) error
	// RevokeEntitlement clears Pro status, recording when it happened.
	RevokeEntitlement(ctx context.Context, userID string, at time.Time) error
	DeleteEntitlement(ctx context.Context, userID string) error
	// EntitlementChanges streams ids of users whose record changed, from any
	// writer, until ctx is done. ResyncAll means "re-read everything".
	EntitlementChanges(ctx context.Context) (<-chan string, error)
}

// OrderLedger records gateway orders so payments can be verified and
// entitlement grants retried against a known order.
type OrderLedger interface {
	RecordOrder(ctx context.Context, o models.PaymentOrder) error
	GetOrder(ctx context.Context, orderID string) (models.PaymentOrder, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, paymentID string, paidAt time.Time) error
	ListOrdersByStatus(ctx context.Context, limit int, statuses ...models.OrderStatus) ([]models.PaymentOrder, error)
}

// ItemStore persists tracked offboarding items.
type ItemStore interface {
	CreateItem(ctx context.Context, item models.TrackedItem) (models.TrackedItem, error)
	GetItem(ctx context.Context, id string) (models.TrackedItem, error)
	ListItems(ctx context.Context, userID string) ([]models.TrackedItem, error)
	CountItems(ctx context.Context, userID string) (int, error)
	UpdateItemStatus(ctx context.Context, id string, status models.ItemStatus) error
	DeleteItem(ctx context.Context, id string) error
	DeleteItemsForUser(ctx context.Context, userID string) (int, error)
}

// Store is the full persistence surface the services are wired against.
type Store interface {
	EntitlementStore
	OrderLedger
	ItemStore
	Close() error
}
