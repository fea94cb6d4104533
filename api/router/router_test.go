package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/auth"
	bootstrap "github.com/offboardpro/offboardpro/api/bootstrap"
	config "github.com/offboardpro/offboardpro/api/config"
	"github.com/offboardpro/offboardpro/api/models"
	gw "github.com/offboardpro/offboardpro/api/services/billing/gateway"
	"github.com/offboardpro/offboardpro/api/services/billing/gateway/mock"
	"github.com/offboardpro/offboardpro/api/store/memory"
)

const testSecret = "router-test-secret"

type harness struct {
	srv   *httptest.Server
	gw    *mock.MockPaymentGateway
	store *memory.Store
	jwt   auth.JWTVerifier
}

func newHarness(t *testing.T) harness {
	t.Helper()
	g := mock.NewMockPaymentGateway(gomock.NewController(t))
	g.EXPECT().Name().Return("razorpay").AnyTimes()
	g.EXPECT().SignatureHeader().Return("X-Razorpay-Signature").AnyTimes()
	st := memory.New()
	v := auth.NewJWTVerifier(testSecret)
	cfg := &config.Config{FrontendOrigin: "https://app.offboardpro.in", ReauthMaxAge: "5m"}
	srv := httptest.NewServer(New(bootstrap.NewApp(cfg, st, g, v, auth.NoopAdmin{})))
	t.Cleanup(srv.Close)
	return harness{srv: srv, gw: g, store: st, jwt: v}
}

func (h harness) token(t *testing.T, uid string, authTime time.Time) string {
	tok, err := h.jwt.IssueToken(uid, uid+"@example.com", authTime, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h harness) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestCreateOrderRejectsZeroAmount(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, http.MethodPost, "/api/razorpay", "", map[string]int{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e apperrors.Body
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "InvalidArgument", e.Kind)
	assert.NotEmpty(t, e.Error)
}

func TestOrdersRejectMissingOrExpiredToken(t *testing.T) {
	h := newHarness(t)
	expired, err := h.jwt.IssueToken("u1", "", time.Now().Add(-2*time.Hour), -time.Hour)
	require.NoError(t, err)
	body := map[string]interface{}{"amount": 19900, "billingCycle": "monthly"}

	// no CreateOrder expectation: any gateway call fails the test
	for _, path := range []string{"/api/orders", "/api/razorpay"} {
		resp, data := h.do(t, http.MethodPost, path, expired, body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		var e apperrors.Body
		require.NoError(t, json.Unmarshal(data, &e))
		assert.Equal(t, "AuthRequired", e.Kind)
	}
	resp, _ := h.do(t, http.MethodPost, "/api/orders", "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	pending, err := h.store.ListOrdersByStatus(context.Background(), 0, models.OrderCreated)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMonthlyUpgradeOverHTTP(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, "u1", time.Now())

	h.gw.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p gw.OrderParams) (gw.Order, error) {
		return gw.Order{ID: "order_http", Amount: p.Amount, Currency: p.Currency, Receipt: p.ReceiptID}, nil
	})
	resp, body := h.do(t, http.MethodPost, "/api/orders", tok, map[string]interface{}{"amount": 19900, "billingCycle": "monthly"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var order struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(body, &order))
	assert.Equal(t, "order_http", order.ID)
	assert.Equal(t, int64(19900), order.Amount)
	assert.Equal(t, "INR", order.Currency)

	confirm := map[string]string{"orderId": "order_http", "paymentId": "pay_http", "signature": "sig"}
	resp, _ = h.do(t, http.MethodPost, "/api/payments/confirm", "", confirm)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.gw.EXPECT().VerifyPayment(gomock.Any(), gw.Confirmation{OrderID: "order_http", PaymentID: "pay_http", Signature: "sig"}).
		Return(gw.Payment{ID: "pay_http", OrderID: "order_http", Amount: 19900}, nil)
	resp, body = h.do(t, http.MethodPost, "/api/payments/confirm", tok, confirm)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodGet, "/api/entitlement", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var e models.Entitlement
	require.NoError(t, json.Unmarshal(body, &e))
	assert.True(t, e.IsPro)
	assert.Equal(t, models.PlanProfessional, e.Plan)
	assert.Equal(t, models.CycleMonthly, e.BillingCycle)
	assert.False(t, e.UpgradedAt.IsZero())
}

func TestItemsAndShareLink(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, "u1", time.Now())

	resp, body := h.do(t, http.MethodPost, "/api/items", tok, map[string]string{"name": "Acme", "tools": "Slack", "date": "2026-12-01"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var item models.TrackedItem
	require.NoError(t, json.Unmarshal(body, &item))

	resp, body = h.do(t, http.MethodGet, "/api/shared/"+item.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"Acme","tools":"Slack","date":"2026-12-01"}`, string(body))

	other := h.token(t, "u2", time.Now())
	resp, _ = h.do(t, http.MethodPost, "/api/items/"+item.ID+"/toggle", other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/api/items/"+item.ID+"/toggle", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &item))
	assert.Equal(t, models.ItemCompleted, item.Status)

	resp, _ = h.do(t, http.MethodDelete, "/api/items", tok, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "bulk delete is Pro only")

	resp, _ = h.do(t, http.MethodDelete, "/api/items/"+item.ID, tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = h.do(t, http.MethodGet, "/api/shared/"+item.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteAccountNeedsFreshLogin(t *testing.T) {
	h := newHarness(t)
	stale := h.token(t, "u1", time.Now().Add(-time.Hour))
	resp, body := h.do(t, http.MethodDelete, "/api/account", stale, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var e apperrors.Body
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "ReauthRequired", e.Kind)

	resp, _ = h.do(t, http.MethodDelete, "/api/account", h.token(t, "u1", time.Now()), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthzAndMetrics(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "feed not running yet")
	assert.Contains(t, string(body), "NOT_SERVING")

	resp, body = h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodOptions, h.srv.URL+"/api/orders", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.offboardpro.in")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://app.offboardpro.in", resp.Header.Get("Access-Control-Allow-Origin"))
}
