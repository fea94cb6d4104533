package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/metrics"
	"github.com/offboardpro/offboardpro/api/models"
	"github.com/offboardpro/offboardpro/api/store"
)

// Service is the only writer of entitlement records on the server side.
type Service interface {
	Get(ctx context.Context, userID string) (models.Entitlement, error)
	// Grant blind-merges g. Replaying the same Grant leaves the record unchanged.
	Grant(ctx context.Context, userID string, g models.Grant) error
	// Revoke is the explicit downgrade used by support tooling.
	Revoke(ctx context.Context, userID string) (models.Entitlement, error)
	Delete(ctx context.Context, userID string) error
	IsPro(ctx context.Context, userID string) (bool, error)
}

type serviceImpl struct {
	store store.EntitlementStore
	now   func() time.Time
}

func NewService(s store.EntitlementStore) Service {
	return serviceImpl{store: s, now: time.Now}
}

func (s serviceImpl) Get(ctx context.Context, userID string) (models.Entitlement, error) {
	if userID == "" {
		return models.Entitlement{}, fmt.Errorf("%w: user id is required", apperrors.ErrAuthRequired)
	}
	e, err := s.store.GetEntitlement(ctx, userID)
	if err != nil {
		return models.Entitlement{}, fmt.Errorf("%w: error reading entitlement: %v", apperrors.ErrDatabase, err)
	}
	return e, nil
}

func (s serviceImpl) Grant(ctx context.Context, userID string, g models.Grant) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", apperrors.ErrInvalidArgument)
	}
	if !g.Apply(models.FreeEntitlement(userID)).Valid() {
		return fmt.Errorf("%w: grant must be plan %q with a monthly or yearly cycle", apperrors.ErrInvalidArgument, models.PlanProfessional)
	}
	if g.UpgradedAt.IsZero() {
		return fmt.Errorf("%w: grant has no upgrade time", apperrors.ErrInvalidArgument)
	}
	if err := s.store.MergeEntitlement(ctx, userID, g); err != nil {
		metrics.EntitlementWritesTotal.WithLabelValues("grant", metrics.OutcomeError).Inc()
		return fmt.Errorf("%w: error merging entitlement: %v", apperrors.ErrDatabase, err)
	}
	metrics.EntitlementWritesTotal.WithLabelValues("grant", metrics.OutcomeOK).Inc()
	slog.Info("entitlement granted", "user_id", userID, "billing_cycle", g.BillingCycle, "order_id", g.OrderID)
	return nil
}

func (s serviceImpl) Revoke(ctx context.Context, userID string) (models.Entitlement, error) {
	if userID == "" {
		return models.Entitlement{}, fmt.Errorf("%w: user id is required", apperrors.ErrInvalidArgument)
	}
	if err := s.store.RevokeEntitlement(ctx, userID, s.now().UTC()); err != nil {
		metrics.EntitlementWritesTotal.WithLabelValues("revoke", metrics.OutcomeError).Inc()
		return models.Entitlement{}, fmt.Errorf("%w: error revoking entitlement: %v", apperrors.ErrDatabase, err)
	}
	metrics.EntitlementWritesTotal.WithLabelValues("revoke", metrics.OutcomeOK).Inc()
	slog.Info("entitlement revoked", "user_id", userID)
	return s.Get(ctx, userID)
}

func (s serviceImpl) Delete(ctx context.Context, userID string) error {
	if err := s.store.DeleteEntitlement(ctx, userID); err != nil {
		metrics.EntitlementWritesTotal.WithLabelValues("delete", metrics.OutcomeError).Inc()
		return fmt.Errorf("%w: error deleting entitlement: %v", apperrors.ErrDatabase, err)
	}
	metrics.EntitlementWritesTotal.WithLabelValues("delete", metrics.OutcomeOK).Inc()
	return nil
}

func (s serviceImpl) IsPro(ctx context.Context, userID string) (bool, error) {
	e, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return e.IsPro, nil
}
