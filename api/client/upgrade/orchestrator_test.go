package upgrade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/models"
)

type fakeGuard struct {
	mu        sync.Mutex
	installed bool
	installs  int
	removes   int
}

func (g *fakeGuard) Install() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.installed = true
	g.installs++
}

func (g *fakeGuard) Remove() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.installed = false
	g.removes++
}

func (g *fakeGuard) isInstalled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.installed
}

type fakeNav struct{ paths []string }

func (n *fakeNav) Navigate(path string) { n.paths = append(n.paths, path) }

type fakeOrders struct {
	order    Order
	orderErr error
	confirm  func(ctx context.Context, p Payment) (Confirmed, error)

	amounts  []int64
	confirms int
}

func (f *fakeOrders) CreateOrder(_ context.Context, amount int64, _ models.BillingCycle) (Order, error) {
	f.amounts = append(f.amounts, amount)
	if f.orderErr != nil {
		return Order{}, f.orderErr
	}
	o := f.order
	o.Amount = amount
	return o, nil
}

func (f *fakeOrders) ConfirmPayment(ctx context.Context, p Payment) (Confirmed, error) {
	f.confirms++
	return f.confirm(ctx, p)
}

type checkoutFunc func(ctx context.Context, o Order) (Payment, error)

func (f checkoutFunc) Open(ctx context.Context, o Order) (Payment, error) { return f(ctx, o) }

func paid(_ context.Context, o Order) (Payment, error) {
	return Payment{OrderID: o.ID, PaymentID: "pay_1", Signature: "sig"}, nil
}

type rig struct {
	orders *fakeOrders
	guard  *fakeGuard
	nav    *fakeNav
	states []State
}

func newRig(confirm func(ctx context.Context, p Payment) (Confirmed, error)) *rig {
	if confirm == nil {
		confirm = func(_ context.Context, p Payment) (Confirmed, error) {
			return Confirmed{OrderID: p.OrderID, Plan: models.PlanProfessional, BillingCycle: models.CycleMonthly, UpgradedAt: time.Now()}, nil
		}
	}
	return &rig{
		orders: &fakeOrders{order: Order{ID: "order_1", Currency: "INR"}, confirm: confirm},
		guard:  &fakeGuard{},
		nav:    &fakeNav{},
	}
}

func (r *rig) build(c Checkout, opts ...Option) *Orchestrator {
	opts = append([]Option{
		WithGrace(time.Millisecond),
		WithTransitionHook(func(_, to State) { r.states = append(r.states, to) }),
	}, opts...)
	return New(r.orders, c, r.guard, r.nav, opts...)
}

func TestUpgradeHappyPath(t *testing.T) {
	r := newRig(nil)
	o := r.build(checkoutFunc(paid))

	res, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, []int64{19900}, r.orders.amounts)
	assert.Equal(t, []State{OrderRequested, CheckoutOpen, PaymentConfirmed, EntitlementWriting, Done}, r.states)
	assert.Equal(t, []string{SuccessPath}, r.nav.paths)
	assert.Equal(t, 1, r.guard.installs)
	assert.Equal(t, 1, r.guard.removes)
	assert.False(t, r.guard.isInstalled())
}

func TestYearlyAmount(t *testing.T) {
	r := newRig(nil)
	_, err := r.build(checkoutFunc(paid)).Upgrade(context.Background(), "u1", models.CycleYearly)
	require.NoError(t, err)
	assert.Equal(t, []int64{199000}, r.orders.amounts)
}

func TestAbandonedCheckoutReturnsToIdle(t *testing.T) {
	r := newRig(nil)
	o := r.build(checkoutFunc(func(context.Context, Order) (Payment, error) { return Payment{}, ErrAbandoned }))

	res, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Equal(t, Idle, res.State)
	assert.Equal(t, Idle, o.State())
	assert.Zero(t, r.orders.confirms, "no entitlement change")
	assert.Zero(t, r.guard.installs)
	assert.Empty(t, r.nav.paths)
}

func TestSyncFailureKeepsPaymentAndDropsGuard(t *testing.T) {
	var r *rig
	r = newRig(func(context.Context, Payment) (Confirmed, error) {
		assert.True(t, r.guard.isInstalled(), "guard held during the write")
		return Confirmed{}, &RemoteError{Status: 500, Kind: KindEntitlementSyncFailed, Message: "write failed"}
	})
	o := r.build(checkoutFunc(paid))

	res, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	require.Error(t, err)
	assert.Equal(t, Error, res.State)
	var ue *UpgradeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindEntitlementSyncFailed, ue.Kind)
	assert.Equal(t, SyncFailedMessage, ue.Message)
	assert.False(t, ue.Retryable)
	assert.Same(t, ue, o.Err())
	assert.False(t, r.guard.isInstalled())
	assert.Equal(t, 1, r.guard.removes)
	assert.Empty(t, r.nav.paths)
}

func TestUnverifiedPayment(t *testing.T) {
	r := newRig(func(context.Context, Payment) (Confirmed, error) {
		return Confirmed{}, &RemoteError{Status: 403, Kind: KindPaymentUnverified, Message: "bad signature"}
	})
	_, err := r.build(checkoutFunc(paid)).Upgrade(context.Background(), "u1", models.CycleMonthly)
	var ue *UpgradeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindPaymentUnverified, ue.Kind)
	assert.False(t, r.guard.isInstalled())
}

func TestNoIdentityRedirectsToLogin(t *testing.T) {
	r := newRig(nil)
	o := r.build(checkoutFunc(paid))

	res, err := o.Upgrade(context.Background(), "", models.CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, RedirectToLogin, res.State)
	assert.Equal(t, []string{LoginPath}, r.nav.paths)
	assert.Empty(t, r.orders.amounts)
}

func TestOrderWithoutIDIsRetryable(t *testing.T) {
	r := newRig(nil)
	r.orders.order.ID = ""
	o := r.build(checkoutFunc(paid))

	_, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	var ue *UpgradeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindOrderCreationFailed, ue.Kind)
	assert.True(t, ue.Retryable)
	assert.Equal(t, Error, o.State())

	r.orders.order.ID = "order_2"
	res, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
}

func TestOrderErrors(t *testing.T) {
	r := newRig(nil)
	r.orders.orderErr = &RemoteError{Status: 400, Kind: KindInvalidArgument, Message: "amount must be positive"}
	_, err := r.build(checkoutFunc(paid)).Upgrade(context.Background(), "u1", models.CycleMonthly)
	var ue *UpgradeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindInvalidArgument, ue.Kind)

	r = newRig(nil)
	r.orders.orderErr = errors.New("connection refused")
	_, err = r.build(checkoutFunc(paid)).Upgrade(context.Background(), "u1", models.CycleMonthly)
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindUpstream, ue.Kind)

	r = newRig(nil)
	r.orders.orderErr = &RemoteError{Status: 500, Kind: KindOrderCreationFailed, Message: "razorpay returned no order id"}
	_, err = r.build(checkoutFunc(paid)).Upgrade(context.Background(), "u1", models.CycleMonthly)
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindOrderCreationFailed, ue.Kind)
	assert.True(t, ue.Retryable)

	_, err = newRig(nil).build(checkoutFunc(paid)).Upgrade(context.Background(), "u1", "weekly")
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindInvalidArgument, ue.Kind)
}

func TestCheckoutTimeout(t *testing.T) {
	r := newRig(nil)
	o := r.build(checkoutFunc(func(ctx context.Context, _ Order) (Payment, error) {
		<-ctx.Done()
		return Payment{}, ctx.Err()
	}), WithCheckoutTimeout(20*time.Millisecond))

	_, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	var ue *UpgradeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindCheckoutTimeout, ue.Kind)
	assert.Zero(t, r.orders.confirms)
}

func TestWriteTimeoutIsSyncFailure(t *testing.T) {
	r := newRig(func(ctx context.Context, _ Payment) (Confirmed, error) {
		<-ctx.Done()
		return Confirmed{}, ctx.Err()
	})
	o := r.build(checkoutFunc(paid), WithWriteTimeout(20*time.Millisecond))

	_, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	var ue *UpgradeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindEntitlementSyncFailed, ue.Kind)
	assert.False(t, r.guard.isInstalled())
}

func TestConcurrentUpgradeIsRejected(t *testing.T) {
	r := newRig(nil)
	opened := make(chan struct{})
	release := make(chan struct{})
	o := New(r.orders, checkoutFunc(func(ctx context.Context, ord Order) (Payment, error) {
		close(opened)
		<-release
		return Payment{}, ErrAbandoned
	}), r.guard, r.nav, WithGrace(time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
		done <- err
	}()
	<-opened
	_, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	assert.ErrorIs(t, err, ErrBusy)
	close(release)
	assert.ErrorIs(t, <-done, ErrAbandoned)
}

func TestRestartClaimsSessionBeforeHooks(t *testing.T) {
	r := newRig(nil)
	r.orders.orderErr = errors.New("gateway down")

	var o *Orchestrator
	var nested []error
	o = New(r.orders, checkoutFunc(paid), r.guard, r.nav,
		WithGrace(time.Millisecond),
		WithTransitionHook(func(from, to State) {
			if from == Error && to == Idle {
				_, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
				nested = append(nested, err)
			}
		}))

	_, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	require.Error(t, err)
	require.Equal(t, Error, o.State())

	r.orders.orderErr = nil
	res, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	require.Len(t, nested, 1)
	assert.ErrorIs(t, nested[0], ErrBusy)
	assert.Equal(t, 1, r.orders.confirms)

	// the session is free again once the call returns
	_, err = o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	assert.NoError(t, err)
}

func TestKindOfLocalErrors(t *testing.T) {
	assert.Equal(t, KindAuthRequired, kindOf(apperrors.ErrAuthRequired))
	assert.Equal(t, KindPaymentUnverified, kindOf(&RemoteError{Kind: KindPaymentUnverified}))
}
