package firestore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/models"
	"github.com/offboardpro/offboardpro/api/store"
)

const (
	usersCollection   = "users"
	ordersCollection  = "orders"
	clientsCollection = "clients"
)

// Store implements store.Store on Cloud Firestore. Entitlements live on the
// users/{uid} document, so other writers of that document (e.g. the web
// client under security rules) show up on the change feed too.
type Store struct {
	client *firestore.Client
	// retry is how long the change feed waits before reopening a failed listener.
	retry time.Duration
}

var _ store.Store = (*Store)(nil)

func New(client *firestore.Client) *Store {
	return &Store{client: client, retry: 2 * time.Second}
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func dbErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrDatabase, op, err)
}

func (s *Store) GetEntitlement(ctx context.Context, userID string) (models.Entitlement, error) {
	snap, err := s.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if notFound(err) {
		return models.FreeEntitlement(userID), nil
	}
	if err != nil {
		return models.Entitlement{}, dbErr("get entitlement", err)
	}
	e := models.FreeEntitlement(userID)
	if err := snap.DataTo(&e); err != nil {
		return models.Entitlement{}, dbErr("decode entitlement", err)
	}
	e.UserID = userID
	if e.Plan == "" {
		e.Plan = models.PlanNone
	}
	return e, nil
}

func (s *Store) MergeEntitlement(ctx context.Context, userID string, g models.Grant) error {
	_, err := s.client.Collection(usersCollection).Doc(userID).Set(ctx, map[string]interface{}{
		"isPro":        true,
		"plan":         string(g.Plan),
		"billingCycle": string(g.BillingCycle),
		"upgradedAt":   g.UpgradedAt,
		"orderId":      g.OrderID,
		"downgradedAt": firestore.Delete,
	}, firestore.MergeAll)
	if err != nil {
		return dbErr("merge entitlement", err)
	}
	return nil
}

func (s *Store) RevokeEntitlement(ctx context.Context, userID string, at time.Time) error {
	_, err := s.client.Collection(usersCollection).Doc(userID).Set(ctx, map[string]interface{}{
		"isPro":        false,
		"plan":         string(models.PlanNone),
		"billingCycle": firestore.Delete,
		"downgradedAt": at,
	}, firestore.MergeAll)
	if err != nil {
		return dbErr("revoke entitlement", err)
	}
	return nil
}

func (s *Store) DeleteEntitlement(ctx context.Context, userID string) error {
	if _, err := s.client.Collection(usersCollection).Doc(userID).Delete(ctx); err != nil {
		return dbErr("delete entitlement", err)
	}
	return nil
}

// EntitlementChanges listens to the users collection. Every (re)opened
// listener starts with a full snapshot, which is reported as store.ResyncAll
// instead of one change per document.
func (s *Store) EntitlementChanges(ctx context.Context) (<-chan string, error) {
	out := make(chan string, 64)
	go func() {
		defer close(out)
		for {
			s.listen(ctx, out)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retry):
			}
		}
	}()
	return out, nil
}

func (s *Store) listen(ctx context.Context, out chan<- string) {
	it := s.client.Collection(usersCollection).Snapshots(ctx)
	defer it.Stop()
	first := true
	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("firestore users listener stopped", "error", err)
			}
			return
		}
		if first {
			first = false
			if !send(ctx, out, store.ResyncAll) {
				return
			}
			continue
		}
		for _, ch := range snap.Changes {
			if !send(ctx, out, ch.Doc.Ref.ID) {
				return
			}
		}
	}
}

func send(ctx context.Context, out chan<- string, uid string) bool {
	select {
	case out <- uid:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Store) RecordOrder(ctx context.Context, o models.PaymentOrder) error {
	_, err := s.client.Collection(ordersCollection).Doc(o.OrderID).Create(ctx, o)
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	if err != nil {
		return dbErr("record order", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (models.PaymentOrder, error) {
	snap, err := s.client.Collection(ordersCollection).Doc(orderID).Get(ctx)
	if notFound(err) {
		return models.PaymentOrder{}, store.ErrNotFound
	}
	if err != nil {
		return models.PaymentOrder{}, dbErr("get order", err)
	}
	var o models.PaymentOrder
	if err := snap.DataTo(&o); err != nil {
		return models.PaymentOrder{}, dbErr("decode order", err)
	}
	o.OrderID = snap.Ref.ID
	return o, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, st models.OrderStatus, paymentID string, paidAt time.Time) error {
	updates := []firestore.Update{{Path: "status", Value: string(st)}}
	if paymentID != "" {
		updates = append(updates, firestore.Update{Path: "paymentId", Value: paymentID})
	}
	if !paidAt.IsZero() {
		updates = append(updates, firestore.Update{Path: "paidAt", Value: paidAt})
	}
	_, err := s.client.Collection(ordersCollection).Doc(orderID).Update(ctx, updates)
	if notFound(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return dbErr("update order", err)
	}
	return nil
}

func (s *Store) ListOrdersByStatus(ctx context.Context, limit int, statuses ...models.OrderStatus) ([]models.PaymentOrder, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	q := s.client.Collection(ordersCollection).Where("status", "in", names).OrderBy("createdAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, dbErr("list orders", err)
	}
	out := make([]models.PaymentOrder, 0, len(docs))
	for _, d := range docs {
		var o models.PaymentOrder
		if err := d.DataTo(&o); err != nil {
			return nil, dbErr("decode order", err)
		}
		o.OrderID = d.Ref.ID
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) CreateItem(ctx context.Context, item models.TrackedItem) (models.TrackedItem, error) {
	ref := s.client.Collection(clientsCollection).NewDoc()
	if item.ID != "" {
		ref = s.client.Collection(clientsCollection).Doc(item.ID)
	}
	if _, err := ref.Create(ctx, item); err != nil {
		return models.TrackedItem{}, dbErr("create item", err)
	}
	item.ID = ref.ID
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (models.TrackedItem, error) {
	snap, err := s.client.Collection(clientsCollection).Doc(id).Get(ctx)
	if notFound(err) {
		return models.TrackedItem{}, store.ErrNotFound
	}
	if err != nil {
		return models.TrackedItem{}, dbErr("get item", err)
	}
	var item models.TrackedItem
	if err := snap.DataTo(&item); err != nil {
		return models.TrackedItem{}, dbErr("decode item", err)
	}
	item.ID = snap.Ref.ID
	return item, nil
}

func (s *Store) userItems(ctx context.Context, userID string) ([]*firestore.DocumentSnapshot, error) {
	return s.client.Collection(clientsCollection).Where("userId", "==", userID).Documents(ctx).GetAll()
}

func (s *Store) ListItems(ctx context.Context, userID string) ([]models.TrackedItem, error) {
	docs, err := s.userItems(ctx, userID)
	if err != nil {
		return nil, dbErr("list items", err)
	}
	items := make([]models.TrackedItem, 0, len(docs))
	for _, d := range docs {
		var item models.TrackedItem
		if err := d.DataTo(&item); err != nil {
			return nil, dbErr("decode item", err)
		}
		item.ID = d.Ref.ID
		items = append(items, item)
	}
	// ordered here rather than in the query to avoid a composite index
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (s *Store) CountItems(ctx context.Context, userID string) (int, error) {
	docs, err := s.userItems(ctx, userID)
	if err != nil {
		return 0, dbErr("count items", err)
	}
	return len(docs), nil
}

func (s *Store) UpdateItemStatus(ctx context.Context, id string, st models.ItemStatus) error {
	_, err := s.client.Collection(clientsCollection).Doc(id).Update(ctx, []firestore.Update{{Path: "status", Value: string(st)}})
	if notFound(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return dbErr("update item", err)
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	_, err := s.client.Collection(clientsCollection).Doc(id).Delete(ctx, firestore.Exists)
	if notFound(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return dbErr("delete item", err)
	}
	return nil
}

func (s *Store) DeleteItemsForUser(ctx context.Context, userID string) (int, error) {
	docs, err := s.userItems(ctx, userID)
	if err != nil {
		return 0, dbErr("list items", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, d := range docs {
		job, err := bw.Delete(d.Ref)
		if err != nil {
			bw.End()
			return 0, dbErr("delete items", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return 0, dbErr("delete items", err)
		}
	}
	return len(docs), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
