package stripegw

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go"

	gw "github.com/offboardpro/offboardpro/api/services/billing/gateway"
)

func TestCreateOrderUsesPaymentIntent(t *testing.T) {
	var got *stripe.PaymentIntentParams
	c := client{newIntent: func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		got = p
		return &stripe.PaymentIntent{ID: "pi_1", Amount: *p.Amount, Currency: *p.Currency, ClientSecret: "pi_1_secret"}, nil
	}}

	o, err := c.CreateOrder(context.Background(), gw.OrderParams{Amount: 19900, Currency: "INR", ReceiptID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, int64(19900), *got.Amount)
	assert.Equal(t, "inr", *got.Currency)
	assert.Equal(t, "r1", got.Metadata["receipt"])
	assert.Equal(t, gw.Order{ID: "pi_1", Amount: 19900, Currency: "INR", Receipt: "r1", ClientSecret: "pi_1_secret"}, o)
}

func TestVerifyPaymentRequiresSucceeded(t *testing.T) {
	status := stripe.PaymentIntentStatusProcessing
	c := client{getIntent: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		return &stripe.PaymentIntent{ID: id, Amount: 19900, Status: status}, nil
	}}

	_, err := c.VerifyPayment(context.Background(), gw.Confirmation{OrderID: "pi_1", PaymentID: "pi_1"})
	assert.ErrorIs(t, err, gw.ErrNotPaid)

	status = stripe.PaymentIntentStatusSucceeded
	p, err := c.VerifyPayment(context.Background(), gw.Confirmation{OrderID: "pi_1", PaymentID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(19900), p.Amount)

	_, err = c.VerifyPayment(context.Background(), gw.Confirmation{OrderID: "pi_other", PaymentID: "pi_1"})
	assert.ErrorIs(t, err, gw.ErrNotPaid)
}

func signedHeader(payload []byte, secret string) string {
	ts := time.Now().Unix()
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(m.Sum(nil)))
}

func TestParseWebhook(t *testing.T) {
	c := client{webhookSecret: "whsec_test"}
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":%q,"type":"payment_intent.succeeded","data":{"object":{"id":"pi_7","object":"payment_intent","amount":199000,"currency":"inr","status":"succeeded"}}}`, stripe.APIVersion))

	ev, err := c.ParseWebhook(payload, signedHeader(payload, "whsec_test"))
	require.NoError(t, err)
	assert.Equal(t, gw.WebhookEvent{Type: "payment_intent.succeeded", Paid: true, OrderID: "pi_7", PaymentID: "pi_7", Amount: 199000, Currency: "INR"}, ev)

	_, err = c.ParseWebhook(payload, signedHeader(payload, "wrong"))
	assert.ErrorIs(t, err, gw.ErrInvalidSignature)
}
