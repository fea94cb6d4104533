package razorpaygw

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	gw "github.com/offboardpro/offboardpro/api/services/billing/gateway"
)

const Name = "razorpay"

// orderAPI is the subset of the SDK's order resource used here.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

// client is the razorpay-go backed implementation of the gateway.
type client struct {
	orders        orderAPI
	keySecret     string
	webhookSecret string
}

// New returns a PaymentGateway backed by the official Razorpay SDK.
func New(cfg Config) gw.PaymentGateway {
	rc := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	if cfg.WebhookSecret == "" {
		slog.Warn("razorpay webhook secret not set; webhooks will be rejected")
	}
	return client{orders: rc.Order, keySecret: cfg.KeySecret, webhookSecret: cfg.WebhookSecret}
}

func (client) Name() string { return Name }

func (client) SignatureHeader() string { return "X-Razorpay-Signature" }

func (c client) CreateOrder(ctx context.Context, p gw.OrderParams) (gw.Order, error) {
	data := map[string]interface{}{
		"amount":   p.Amount, // minor units, as given
		"currency": p.Currency,
		"receipt":  p.ReceiptID,
	}
	if len(p.Notes) > 0 {
		data["notes"] = p.Notes
	}
	resp, err := c.orders.Create(data, nil)
	if err != nil {
		return gw.Order{}, err
	}
	return orderFromMap(resp)
}

// orderFromMap reads the SDK's decoded JSON. Numbers arrive as float64.
func orderFromMap(m map[string]interface{}) (gw.Order, error) {
	o := gw.Order{}
	o.ID, _ = m["id"].(string)
	o.Currency, _ = m["currency"].(string)
	o.Receipt, _ = m["receipt"].(string)
	switch v := m["amount"].(type) {
	case float64:
		o.Amount = int64(v)
	case int64:
		o.Amount = v
	case int:
		o.Amount = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return gw.Order{}, fmt.Errorf("%w: amount %q", gw.ErrMalformed, v)
		}
		o.Amount = n
	}
	return o, nil
}

// VerifyPayment checks the checkout signature, HMAC-SHA256("order_id|payment_id")
// keyed with the API secret.
func (c client) VerifyPayment(ctx context.Context, conf gw.Confirmation) (gw.Payment, error) {
	if conf.OrderID == "" || conf.PaymentID == "" || conf.Signature == "" {
		return gw.Payment{}, fmt.Errorf("%w: missing order id, payment id or signature", gw.ErrInvalidSignature)
	}
	attrs := map[string]interface{}{
		"razorpay_order_id":   conf.OrderID,
		"razorpay_payment_id": conf.PaymentID,
	}
	if !utils.VerifyPaymentSignature(attrs, conf.Signature, c.keySecret) {
		return gw.Payment{}, gw.ErrInvalidSignature
	}
	return gw.Payment{ID: conf.PaymentID, OrderID: conf.OrderID}, nil
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				OrderID  string `json:"order_id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Status   string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID         string `json:"id"`
				AmountPaid int64  `json:"amount_paid"`
				Currency   string `json:"currency"`
				Status     string `json:"status"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func (c client) ParseWebhook(payload []byte, signature string) (gw.WebhookEvent, error) {
	if c.webhookSecret == "" || signature == "" {
		return gw.WebhookEvent{}, gw.ErrInvalidSignature
	}
	if !utils.VerifyWebhookSignature(string(payload), signature, c.webhookSecret) {
		return gw.WebhookEvent{}, gw.ErrInvalidSignature
	}
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return gw.WebhookEvent{}, fmt.Errorf("%w: %v", gw.ErrMalformed, err)
	}
	pay := body.Payload.Payment.Entity
	ev := gw.WebhookEvent{
		Type:      body.Event,
		OrderID:   pay.OrderID,
		PaymentID: pay.ID,
		Amount:    pay.Amount,
		Currency:  pay.Currency,
	}
	switch body.Event {
	case "payment.captured":
		ev.Paid = pay.Status == "captured"
	case "order.paid":
		ord := body.Payload.Order.Entity
		ev.Paid = true
		if ev.OrderID == "" {
			ev.OrderID = ord.ID
		}
		if ev.Amount == 0 {
			ev.Amount = ord.AmountPaid
			ev.Currency = ord.Currency
		}
	}
	return ev, nil
}
