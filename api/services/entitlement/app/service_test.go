package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/models"
	"github.com/offboardpro/offboardpro/api/store/memory"
)

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (serviceImpl, *memory.Store) {
	st := memory.New()
	return serviceImpl{store: st, now: func() time.Time { return fixedNow }}, st
}

func monthly(at time.Time) models.Grant {
	return models.Grant{Plan: models.PlanProfessional, BillingCycle: models.CycleMonthly, UpgradedAt: at, OrderID: "order_1"}
}

func TestGrantTwiceEqualsOnce(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	require.NoError(t, s.Grant(ctx, "u1", monthly(fixedNow)))
	once, err := s.Get(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, s.Grant(ctx, "u1", monthly(fixedNow)))
	twice, err := s.Get(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, models.Entitlement{UserID: "u1", IsPro: true, Plan: models.PlanProfessional, BillingCycle: models.CycleMonthly, UpgradedAt: fixedNow, OrderID: "order_1"}, twice)
}

func TestGrantRejectsInvalidPayload(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	err := s.Grant(ctx, "u1", models.Grant{Plan: models.PlanNone, BillingCycle: models.CycleMonthly, UpgradedAt: fixedNow})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
	err = s.Grant(ctx, "u1", models.Grant{Plan: models.PlanProfessional, BillingCycle: "weekly", UpgradedAt: fixedNow})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
	err = s.Grant(ctx, "u1", models.Grant{Plan: models.PlanProfessional, BillingCycle: models.CycleYearly})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
	err = s.Grant(ctx, "", monthly(fixedNow))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	e, _ := s.Get(ctx, "u1")
	assert.False(t, e.IsPro)
}

func TestRevokeIsExplicitDowngrade(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	require.NoError(t, s.Grant(ctx, "u1", monthly(fixedNow.Add(-time.Hour))))

	e, err := s.Revoke(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, e.IsPro)
	assert.Equal(t, models.PlanNone, e.Plan)
	assert.Equal(t, fixedNow, e.DowngradedAt)

	pro, err := s.IsPro(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, pro)
}

func TestDeleteFallsBackToFree(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	require.NoError(t, s.Grant(ctx, "u1", monthly(fixedNow)))
	require.NoError(t, s.Delete(ctx, "u1"))

	e, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.FreeEntitlement("u1"), e)
}

func TestGetRequiresUser(t *testing.T) {
	s, _ := newTestService()
	_, err := s.Get(context.Background(), "")
	assert.True(t, errors.Is(err, apperrors.ErrAuthRequired))
}
