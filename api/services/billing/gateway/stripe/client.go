package stripegw

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/paymentintent"
	"github.com/stripe/stripe-go/webhook"

	gw "github.com/offboardpro/offboardpro/api/services/billing/gateway"
)

const Name = "stripe"

// SetKey configures the Stripe SDK key once during bootstrap.
func SetKey(key string) { stripe.Key = key }

// client is the Stripe SDK-backed implementation of the gateway. A
// PaymentIntent plays the role of the order; its id is the order id.
type client struct {
	webhookSecret string
	newIntent     func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getIntent     func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// New returns a PaymentGateway backed by the official Stripe SDK.
func New(webhookSecret string) gw.PaymentGateway {
	return client{webhookSecret: webhookSecret, newIntent: paymentintent.New, getIntent: paymentintent.Get}
}

func (client) Name() string { return Name }

func (client) SignatureHeader() string { return "Stripe-Signature" }

func (c client) CreateOrder(ctx context.Context, p gw.OrderParams) (gw.Order, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(strings.ToLower(p.Currency)),
	}
	params.Context = ctx
	params.AddMetadata("receipt", p.ReceiptID)
	for k, v := range p.Notes {
		params.AddMetadata(k, v)
	}
	pi, err := c.newIntent(params)
	if err != nil {
		return gw.Order{}, err
	}
	if pi == nil {
		return gw.Order{}, fmt.Errorf("%w: empty payment intent", gw.ErrMalformed)
	}
	return gw.Order{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Receipt:      p.ReceiptID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// VerifyPayment fetches the PaymentIntent; only a succeeded intent counts.
func (c client) VerifyPayment(ctx context.Context, conf gw.Confirmation) (gw.Payment, error) {
	id := conf.PaymentID
	if id == "" {
		id = conf.OrderID
	}
	if id == "" {
		return gw.Payment{}, fmt.Errorf("%w: missing payment intent id", gw.ErrNotPaid)
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := c.getIntent(id, params)
	if err != nil {
		return gw.Payment{}, err
	}
	if pi == nil || pi.Status != stripe.PaymentIntentStatusSucceeded {
		return gw.Payment{}, gw.ErrNotPaid
	}
	if conf.OrderID != "" && pi.ID != conf.OrderID {
		return gw.Payment{}, fmt.Errorf("%w: intent %s does not match order %s", gw.ErrNotPaid, pi.ID, conf.OrderID)
	}
	return gw.Payment{ID: pi.ID, OrderID: pi.ID, Amount: pi.Amount}, nil
}

func (c client) ParseWebhook(payload []byte, signature string) (gw.WebhookEvent, error) {
	if c.webhookSecret == "" {
		return gw.WebhookEvent{}, gw.ErrInvalidSignature
	}
	event, err := webhook.ConstructEvent(payload, signature, c.webhookSecret)
	if err != nil {
		return gw.WebhookEvent{}, fmt.Errorf("%w: %v", gw.ErrInvalidSignature, err)
	}
	ev := gw.WebhookEvent{Type: event.Type}
	if event.Type != "payment_intent.succeeded" {
		return ev, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return gw.WebhookEvent{}, fmt.Errorf("%w: error unmarshaling into PaymentIntent: %v", gw.ErrMalformed, err)
	}
	ev.Paid = pi.Status == stripe.PaymentIntentStatusSucceeded
	ev.OrderID = pi.ID
	ev.PaymentID = pi.ID
	ev.Amount = pi.Amount
	ev.Currency = strings.ToUpper(string(pi.Currency))
	return ev, nil
}
