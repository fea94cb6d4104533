package upgrade

import (
	"errors"
	"fmt"
)

// State is a step of the upgrade flow.
type State string

const (
	Idle               State = "Idle"
	OrderRequested     State = "OrderRequested"
	CheckoutOpen       State = "CheckoutOpen"
	PaymentConfirmed   State = "PaymentConfirmed"
	EntitlementWriting State = "EntitlementWriting"
	Done               State = "Done"
	Error              State = "Error"
	RedirectToLogin    State = "RedirectToLogin"
)

var transitions = map[State][]State{
	Idle:               {OrderRequested, RedirectToLogin, Error},
	OrderRequested:     {CheckoutOpen, Error},
	CheckoutOpen:       {PaymentConfirmed, Idle, Error},
	PaymentConfirmed:   {EntitlementWriting, Error},
	EntitlementWriting: {Done, Error},
	Error:              {Idle},
	RedirectToLogin:    {Idle},
	Done:               {Idle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Error kinds surfaced to the user. They share names with the server's
// error taxonomy so a remote failure keeps its kind.
const (
	KindInvalidArgument       = "InvalidArgument"
	KindUpstream              = "UpstreamError"
	KindOrderCreationFailed   = "OrderCreationFailed"
	KindEntitlementSyncFailed = "EntitlementSyncFailed"
	KindPaymentUnverified     = "PaymentUnverified"
	KindCheckoutTimeout       = "CheckoutTimeout"
	KindAuthRequired          = "AuthRequired"
)

// SyncFailedMessage is shown when money moved but the entitlement did not.
const SyncFailedMessage = "Payment successful, but status update failed. Please refresh manually or contact support."

var (
	// ErrAbandoned is returned by a Checkout the user closed without paying.
	ErrAbandoned = errors.New("checkout abandoned")
	// ErrBusy is returned when an upgrade is already running in the session.
	ErrBusy = errors.New("upgrade already in progress")
)

// UpgradeError is the failure recorded when the flow enters Error.
type UpgradeError struct {
	Kind    string
	Message string
	// Retryable is false once a payment has gone through.
	Retryable bool
	Err       error
}

func (e *UpgradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *UpgradeError) Unwrap() error { return e.Err }
