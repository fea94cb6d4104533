package gateway

//go:generate mockgen -destination=mock/mock_gateway.go -package=mock . PaymentGateway

import (
	"context"
	"errors"
)

var (
	// ErrInvalidSignature means a payment or webhook signature did not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrNotPaid means the gateway does not (yet) consider the payment complete.
	ErrNotPaid = errors.New("payment not completed")
	// ErrMalformed means the gateway returned or sent something unparseable.
	ErrMalformed = errors.New("malformed gateway payload")
)

// OrderParams is what the app layer asks a gateway to charge. Amount is in
// minor units and is passed to the gateway unchanged.
type OrderParams struct {
	Amount    int64
	Currency  string
	ReceiptID string
	Notes     map[string]string
}

// Order is the gateway's view of a created order.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	// ClientSecret is set by gateways whose checkout needs one (Stripe).
	ClientSecret string
}

// Confirmation is what the hosted checkout hands back to the client on success.
type Confirmation struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Payment is a verified payment. Amount is zero when the gateway's
// verification does not report it.
type Payment struct {
	ID      string
	OrderID string
	Amount  int64
}

// WebhookEvent is a verified, gateway-neutral webhook notification.
type WebhookEvent struct {
	Type      string
	Paid      bool
	OrderID   string
	PaymentID string
	Amount    int64
	Currency  string
}

// PaymentGateway abstracts the gateway SDK operations needed by the app layer.
// Methods return values (not pointers) to keep SDK types out of the domain.
type PaymentGateway interface {
	Name() string
	CreateOrder(ctx context.Context, p OrderParams) (Order, error)
	VerifyPayment(ctx context.Context, c Confirmation) (Payment, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string
}
