package upgrade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offboardpro/offboardpro/api/auth"
	"github.com/offboardpro/offboardpro/api/bootstrap"
	"github.com/offboardpro/offboardpro/api/config"
	"github.com/offboardpro/offboardpro/api/models"
	"github.com/offboardpro/offboardpro/api/router"
	gw "github.com/offboardpro/offboardpro/api/services/billing/gateway"
	"github.com/offboardpro/offboardpro/api/services/billing/gateway/mock"
	"github.com/offboardpro/offboardpro/api/store/memory"
)

func apiServer(t *testing.T) (*httptest.Server, *mock.MockPaymentGateway, *memory.Store, auth.JWTVerifier) {
	t.Helper()
	g := mock.NewMockPaymentGateway(gomock.NewController(t))
	g.EXPECT().Name().Return("razorpay").AnyTimes()
	st := memory.New()
	v := auth.NewJWTVerifier("upgrade-test-secret")
	cfg := &config.Config{FrontendOrigin: "*", ReauthMaxAge: "5m"}
	srv := httptest.NewServer(router.New(bootstrap.NewApp(cfg, st, g, v, auth.NoopAdmin{})))
	t.Cleanup(srv.Close)
	return srv, g, st, v
}

func staticToken(t *testing.T, v auth.JWTVerifier, uid string) TokenSource {
	tok, err := v.IssueToken(uid, "", time.Now(), time.Hour)
	require.NoError(t, err)
	return func(context.Context) (string, error) { return tok, nil }
}

// A monthly upgrade charges 19900 and leaves a Pro monthly entitlement.
func TestMonthlyUpgradeAgainstAPI(t *testing.T) {
	srv, g, st, v := apiServer(t)
	g.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p gw.OrderParams) (gw.Order, error) {
		assert.Equal(t, int64(19900), p.Amount)
		return gw.Order{ID: "order_e2e", Amount: p.Amount, Currency: p.Currency, Receipt: p.ReceiptID}, nil
	})
	g.EXPECT().VerifyPayment(gomock.Any(), gw.Confirmation{OrderID: "order_e2e", PaymentID: "pay_1", Signature: "sig"}).
		Return(gw.Payment{ID: "pay_1", OrderID: "order_e2e", Amount: 19900}, nil)

	guard, nav := &fakeGuard{}, &fakeNav{}
	o := New(NewHTTPClient(srv.URL, staticToken(t, v, "u1"), nil), checkoutFunc(paid), guard, nav, WithGrace(time.Millisecond))

	res, err := o.Upgrade(context.Background(), "u1", models.CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, "order_e2e", res.Order.ID)
	assert.Equal(t, int64(19900), res.Order.Amount)
	assert.Equal(t, []string{SuccessPath}, nav.paths)

	e, err := st.GetEntitlement(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, e.IsPro)
	assert.Equal(t, models.PlanProfessional, e.Plan)
	assert.Equal(t, models.CycleMonthly, e.BillingCycle)
	assert.False(t, e.UpgradedAt.IsZero())
	assert.Equal(t, res.Confirmed.UpgradedAt.UTC(), e.UpgradedAt.UTC())
}

func TestAbandonAgainstAPILeavesFree(t *testing.T) {
	srv, g, st, v := apiServer(t)
	g.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Return(gw.Order{ID: "order_x", Amount: 199000, Currency: "INR"}, nil)

	o := New(NewHTTPClient(srv.URL, staticToken(t, v, "u1"), nil),
		checkoutFunc(func(context.Context, Order) (Payment, error) { return Payment{}, ErrAbandoned }),
		&fakeGuard{}, &fakeNav{})
	_, err := o.Upgrade(context.Background(), "u1", models.CycleYearly)
	assert.ErrorIs(t, err, ErrAbandoned)

	e, err := st.GetEntitlement(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.FreeEntitlement("u1"), e)
}

func TestRemoteErrorKeepsKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"upstream error: razorpay down","kind":"UpstreamError"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, nil, srv.Client()).CreateOrder(context.Background(), 19900, models.CycleMonthly)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusServiceUnavailable, re.Status)
	assert.Equal(t, KindUpstream, re.Kind)
	assert.Equal(t, KindUpstream, kindOf(err))
}
