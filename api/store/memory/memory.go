package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/offboardpro/offboardpro/api/models"
	"github.com/offboardpro/offboardpro/api/store"
)

const feedBuffer = 256

type feed struct {
	ch     chan string
	missed bool
}

// Store is an in-process implementation of store.Store. It keeps the same
// semantics as the database-backed stores, including the change feed, and is
// used for local development and tests.
type Store struct {
	mu           sync.RWMutex
	entitlements map[string]models.Entitlement
	orders       map[string]models.PaymentOrder
	items        map[string]models.TrackedItem

	feedMu sync.Mutex
	feeds  map[*feed]struct{}
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		entitlements: make(map[string]models.Entitlement),
		orders:       make(map[string]models.PaymentOrder),
		items:        make(map[string]models.TrackedItem),
		feeds:        make(map[*feed]struct{}),
	}
}

func (s *Store) GetEntitlement(ctx context.Context, userID string) (models.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entitlements[userID]; ok {
		return e, nil
	}
	return models.FreeEntitlement(userID), nil
}

func (s *Store) MergeEntitlement(ctx context.Context, userID string, g models.Grant) error {
	s.mu.Lock()
	e, ok := s.entitlements[userID]
	if !ok {
		e = models.FreeEntitlement(userID)
	}
	s.entitlements[userID] = g.Apply(e)
	s.mu.Unlock()
	s.publish(userID)
	return nil
}

func (s *Store) RevokeEntitlement(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	e, ok := s.entitlements[userID]
	if !ok {
		e = models.FreeEntitlement(userID)
	}
	e.IsPro = false
	e.Plan = models.PlanNone
	e.BillingCycle = ""
	e.DowngradedAt = at
	s.entitlements[userID] = e
	s.mu.Unlock()
	s.publish(userID)
	return nil
}

func (s *Store) DeleteEntitlement(ctx context.Context, userID string) error {
	s.mu.Lock()
	_, existed := s.entitlements[userID]
	delete(s.entitlements, userID)
	s.mu.Unlock()
	if existed {
		s.publish(userID)
	}
	return nil
}

// EntitlementChanges registers a feed that lives until ctx is done.
func (s *Store) EntitlementChanges(ctx context.Context) (<-chan string, error) {
	f := &feed{ch: make(chan string, feedBuffer)}
	s.feedMu.Lock()
	s.feeds[f] = struct{}{}
	s.feedMu.Unlock()

	go func() {
		<-ctx.Done()
		s.feedMu.Lock()
		delete(s.feeds, f)
		close(f.ch)
		s.feedMu.Unlock()
	}()
	return f.ch, nil
}

func (s *Store) publish(userID string) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	for f := range s.feeds {
		if f.missed {
			select {
			case f.ch <- store.ResyncAll:
				f.missed = false
			default:
				continue
			}
		}
		select {
		case f.ch <- userID:
		default:
			f.missed = true
		}
	}
}

func (s *Store) RecordOrder(ctx context.Context, o models.PaymentOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.OrderID] = o
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (models.PaymentOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return models.PaymentOrder{}, store.ErrNotFound
	}
	return o, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, paymentID string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	if paymentID != "" {
		o.PaymentID = paymentID
	}
	if !paidAt.IsZero() {
		o.PaidAt = paidAt
	}
	s.orders[orderID] = o
	return nil
}

func (s *Store) ListOrdersByStatus(ctx context.Context, limit int, statuses ...models.OrderStatus) ([]models.PaymentOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[models.OrderStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []models.PaymentOrder
	for _, o := range s.orders {
		if want[o.Status] {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateItem(ctx context.Context, item models.TrackedItem) (models.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	s.items[item.ID] = item
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (models.TrackedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return models.TrackedItem{}, store.ErrNotFound
	}
	return item, nil
}

func (s *Store) ListItems(ctx context.Context, userID string) ([]models.TrackedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.TrackedItem{}
	for _, item := range s.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountItems(ctx context.Context, userID string) (int, error) {
	items, err := s.ListItems(ctx, userID)
	return len(items), err
}

func (s *Store) UpdateItemStatus(ctx context.Context, id string, status models.ItemStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return store.ErrNotFound
	}
	item.Status = status
	s.items[id] = item
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store) DeleteItemsForUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, item := range s.items {
		if item.UserID == userID {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }
