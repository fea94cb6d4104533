package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offboardpro/offboardpro/api/auth"
	"github.com/offboardpro/offboardpro/api/config"
	"github.com/offboardpro/offboardpro/api/models"
	"github.com/offboardpro/offboardpro/api/services/billing/gateway/mock"
	"github.com/offboardpro/offboardpro/api/store/memory"
)

func TestNewAppSharesOneStore(t *testing.T) {
	cfg := &config.Config{FrontendOrigin: "*", ReauthMaxAge: "5m"}
	st := memory.New()
	g := mock.NewMockPaymentGateway(gomock.NewController(t))
	a := NewApp(cfg, st, g, auth.NewJWTVerifier("secret"), auth.NoopAdmin{})

	ctx := context.Background()
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, a.Entitlements.Grant(ctx, "u1", models.Grant{Plan: models.PlanProfessional, BillingCycle: models.CycleMonthly, UpgradedAt: at}))

	e, err := st.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, e.IsPro)

	ov, err := a.Tracker.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.True(t, ov.IsPro, "tracker reads the plan from the same store")
}

func TestInitKeepsInjectedApp(t *testing.T) {
	prev := Get()
	defer Set(prev)

	injected := &App{}
	Set(injected)
	require.NoError(t, Init())
	assert.Same(t, injected, Get())
}
