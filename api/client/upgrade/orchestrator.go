package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/models"
)

const (
	SuccessPath = "/success"
	LoginPath   = "/login?redirect=pricing"
)

// Order is the gateway order the server created.
type Order struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Receipt      string `json:"receipt,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Gateway      string `json:"gateway,omitempty"`
}

// Payment is what the checkout hands back on success.
type Payment struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// Confirmed is the server's acknowledgment of the entitlement write.
type Confirmed struct {
	OrderID      string              `json:"orderId"`
	PaymentID    string              `json:"paymentId,omitempty"`
	Plan         models.Plan         `json:"plan"`
	BillingCycle models.BillingCycle `json:"billingCycle"`
	UpgradedAt   time.Time           `json:"upgradedAt"`
}

// OrderClient talks to the billing API.
type OrderClient interface {
	CreateOrder(ctx context.Context, amount int64, cycle models.BillingCycle) (Order, error)
	// ConfirmPayment has the server verify the payment and write the entitlement.
	ConfirmPayment(ctx context.Context, p Payment) (Confirmed, error)
}

// Checkout runs the gateway's hosted checkout and blocks until the user pays
// or closes it. Closing returns ErrAbandoned.
type Checkout interface {
	Open(ctx context.Context, o Order) (Payment, error)
}

// UnloadGuard keeps the user from leaving while the entitlement is written.
type UnloadGuard interface {
	Install()
	Remove()
}

type Navigator interface {
	Navigate(path string)
}

// Result is the outcome of one Upgrade call.
type Result struct {
	State     State
	Order     Order
	Confirmed Confirmed
}

type Option func(*Orchestrator)

func WithCheckoutTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.checkoutTimeout = d } }
func WithWriteTimeout(d time.Duration) Option    { return func(o *Orchestrator) { o.writeTimeout = d } }
func WithGrace(d time.Duration) Option           { return func(o *Orchestrator) { o.grace = d } }

// WithTransitionHook registers fn to see every state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// Orchestrator drives one session's upgrade: order, checkout, server-side
// entitlement write, then the confirmation view.
type Orchestrator struct {
	orders   OrderClient
	checkout Checkout
	guard    UnloadGuard
	nav      Navigator

	checkoutTimeout time.Duration
	writeTimeout    time.Duration
	grace           time.Duration
	onTransition    func(from, to State)

	mu      sync.Mutex
	state   State
	running bool
	lastErr *UpgradeError
}

func New(orders OrderClient, checkout Checkout, guard UnloadGuard, nav Navigator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		orders:          orders,
		checkout:        checkout,
		guard:           guard,
		nav:             nav,
		checkoutTimeout: 15 * time.Minute,
		writeTimeout:    30 * time.Second,
		grace:           2500 * time.Millisecond,
		state:           Idle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err is the failure behind the last Error state, if any.
func (o *Orchestrator) Err() *UpgradeError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	from := o.state
	if !canTransition(from, to) {
		o.mu.Unlock()
		panic(fmt.Sprintf("upgrade: invalid transition %s -> %s", from, to))
	}
	o.state = to
	hook := o.onTransition
	o.mu.Unlock()
	slog.Debug("upgrade transition", "from", from, "to", to)
	if hook != nil {
		hook(from, to)
	}
}

func (o *Orchestrator) fail(e *UpgradeError) error {
	o.mu.Lock()
	o.lastErr = e
	o.mu.Unlock()
	o.transition(Error)
	return e
}

// begin claims the session for one Upgrade call. Terminal and failed flows
// may start over. The claim is taken under mu before any hook runs, so a
// second caller always sees ErrBusy.
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	st := o.state
	if o.running {
		o.mu.Unlock()
		return ErrBusy
	}
	switch st {
	case Idle, Error, Done, RedirectToLogin:
		o.running = true
	default:
		o.mu.Unlock()
		return ErrBusy
	}
	o.mu.Unlock()
	if st != Idle {
		o.transition(Idle)
	}
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// Upgrade buys Pro on the given cycle for userID. An abandoned checkout
// returns ErrAbandoned with the flow back in Idle.
func (o *Orchestrator) Upgrade(ctx context.Context, userID string, cycle models.BillingCycle) (Result, error) {
	if err := o.begin(); err != nil {
		return Result{State: o.State()}, err
	}
	defer o.release()
	if userID == "" {
		o.transition(RedirectToLogin)
		o.nav.Navigate(LoginPath)
		return Result{State: RedirectToLogin}, nil
	}
	amount, err := models.PriceFor(cycle)
	if err != nil {
		return Result{State: Error}, o.fail(&UpgradeError{Kind: KindInvalidArgument, Message: "choose a monthly or yearly plan", Retryable: true, Err: err})
	}

	o.transition(OrderRequested)
	order, err := o.orders.CreateOrder(ctx, amount, cycle)
	if err != nil {
		switch kind := kindOf(err); kind {
		case KindOrderCreationFailed:
			return Result{State: Error}, o.fail(&UpgradeError{Kind: kind, Message: "Failed to create order. Please try again.", Retryable: true, Err: err})
		case KindInvalidArgument:
			return Result{State: Error}, o.fail(&UpgradeError{Kind: kind, Message: "Could not start payment. Please try again.", Retryable: true, Err: err})
		default:
			return Result{State: Error}, o.fail(&UpgradeError{Kind: KindUpstream, Message: "Could not start payment. Please try again.", Retryable: true, Err: err})
		}
	}
	if order.ID == "" {
		return Result{State: Error, Order: order}, o.fail(&UpgradeError{Kind: KindOrderCreationFailed, Message: "Failed to create order. Please try again.", Retryable: true})
	}
	slog.Info("order created", "order_id", order.ID, "amount", models.FormatMinor(order.Amount))

	o.transition(CheckoutOpen)
	cctx, cancel := context.WithTimeout(ctx, o.checkoutTimeout)
	pay, err := o.checkout.Open(cctx, order)
	timedOut := errors.Is(cctx.Err(), context.DeadlineExceeded)
	cancel()
	switch {
	case errors.Is(err, ErrAbandoned):
		o.transition(Idle)
		return Result{State: Idle, Order: order}, ErrAbandoned
	case err != nil && timedOut:
		return Result{State: Error, Order: order}, o.fail(&UpgradeError{Kind: KindCheckoutTimeout, Message: "Checkout took too long. Please try again.", Retryable: true, Err: err})
	case err != nil:
		return Result{State: Error, Order: order}, o.fail(&UpgradeError{Kind: KindUpstream, Message: "Checkout failed. Please try again.", Retryable: true, Err: err})
	}
	if pay.OrderID == "" {
		pay.OrderID = order.ID
	}
	o.transition(PaymentConfirmed)

	conf, uerr := o.write(ctx, pay)
	if uerr != nil {
		return Result{State: Error, Order: order}, o.fail(uerr)
	}
	o.transition(Done)

	select {
	case <-time.After(o.grace):
	case <-ctx.Done():
	}
	o.nav.Navigate(SuccessPath)
	return Result{State: Done, Order: order, Confirmed: conf}, nil
}

// write holds the unload guard exactly as long as the entitlement write is
// in flight.
func (o *Orchestrator) write(ctx context.Context, pay Payment) (Confirmed, *UpgradeError) {
	o.transition(EntitlementWriting)
	o.guard.Install()
	defer o.guard.Remove()

	wctx, cancel := context.WithTimeout(ctx, o.writeTimeout)
	defer cancel()
	conf, err := o.orders.ConfirmPayment(wctx, pay)
	if err == nil {
		return conf, nil
	}
	slog.Error("payment succeeded but entitlement write failed", "order_id", pay.OrderID, "error", err)
	if kindOf(err) == KindPaymentUnverified {
		return Confirmed{}, &UpgradeError{Kind: KindPaymentUnverified, Message: "We could not verify this payment. Please contact support.", Err: err}
	}
	return Confirmed{}, &UpgradeError{Kind: KindEntitlementSyncFailed, Message: SyncFailedMessage, Err: err}
}

func kindOf(err error) string {
	var re *RemoteError
	if errors.As(err, &re) && re.Kind != "" {
		return re.Kind
	}
	return apperrors.Kind(err)
}
