package observer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/offboardpro/offboardpro/api/metrics"
	"github.com/offboardpro/offboardpro/api/models"
	"github.com/offboardpro/offboardpro/api/store"
)

// Observer is the single source of truth for live entitlement views. It
// follows the store's change feed, so writes from any writer reach every
// subscription of the affected user.
type Observer struct {
	store store.EntitlementStore
	retry time.Duration

	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	onFeed func(up bool)

	// refreshMu keeps read-then-publish atomic so a user's views never
	// receive an older value after a newer one.
	refreshMu sync.Mutex
}

// Subscription receives the user's entitlement: the current value right
// away, then every change. Only the latest undelivered value is kept.
type Subscription struct {
	userID string
	ch     chan models.Entitlement
	last   *models.Entitlement
	closed bool
}

func (s *Subscription) C() <-chan models.Entitlement { return s.ch }

func (s *Subscription) UserID() string { return s.userID }

func New(st store.EntitlementStore) *Observer {
	return &Observer{
		store: st,
		retry: 2 * time.Second,
		subs:  make(map[string]map[*Subscription]struct{}),
	}
}

// OnFeedState registers fn to be told when the change feed goes up or down.
func (o *Observer) OnFeedState(fn func(up bool)) {
	o.mu.Lock()
	o.onFeed = fn
	o.mu.Unlock()
}

func (o *Observer) setFeed(up bool) {
	o.mu.Lock()
	fn := o.onFeed
	o.mu.Unlock()
	if fn != nil {
		fn(up)
	}
}

// Run follows the change feed until ctx is done, reopening it after failures.
func (o *Observer) Run(ctx context.Context) error {
	for {
		changes, err := o.store.EntitlementChanges(ctx)
		if err != nil {
			slog.Warn("entitlement change feed unavailable", "error", err)
		} else {
			o.setFeed(true)
			// anything written while the feed was down
			o.resyncAll(ctx)
			for uid := range changes {
				if uid == store.ResyncAll {
					o.resyncAll(ctx)
					continue
				}
				o.refresh(ctx, uid)
			}
		}
		o.setFeed(false)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(o.retry):
		}
	}
}

// Subscribe starts a live view of userID. It ends on Unsubscribe or when ctx is done.
func (o *Observer) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	sub := &Subscription{userID: userID, ch: make(chan models.Entitlement, 1)}
	o.mu.Lock()
	if o.subs[userID] == nil {
		o.subs[userID] = make(map[*Subscription]struct{})
	}
	o.subs[userID][sub] = struct{}{}
	o.mu.Unlock()
	metrics.ObserverSubscriptions.Inc()

	if err := o.refresh(ctx, userID); err != nil {
		o.Unsubscribe(sub)
		return nil, err
	}
	context.AfterFunc(ctx, func() { o.Unsubscribe(sub) })
	return sub, nil
}

// Unsubscribe stops delivery and closes the subscription channel. It is idempotent.
func (o *Observer) Unsubscribe(sub *Subscription) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	if set := o.subs[sub.userID]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(o.subs, sub.userID)
		}
	}
	close(sub.ch)
	metrics.ObserverSubscriptions.Dec()
}

// Subscribers is the number of live subscriptions for userID.
func (o *Observer) Subscribers(userID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs[userID])
}

func (o *Observer) watched() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.subs))
	for uid := range o.subs {
		ids = append(ids, uid)
	}
	return ids
}

func (o *Observer) resyncAll(ctx context.Context) {
	for _, uid := range o.watched() {
		if err := o.refresh(ctx, uid); err != nil {
			slog.Warn("entitlement resync failed", "user_id", uid, "error", err)
		}
	}
}

func (o *Observer) refresh(ctx context.Context, userID string) error {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()
	if o.Subscribers(userID) == 0 {
		return nil
	}
	e, err := o.store.GetEntitlement(ctx, userID)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for sub := range o.subs[userID] {
		sub.push(e)
	}
	return nil
}

// push must be called with Observer.mu held.
func (s *Subscription) push(e models.Entitlement) {
	if s.last != nil && *s.last == e {
		return
	}
	s.last = &e
	select {
	case s.ch <- e:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- e
}
