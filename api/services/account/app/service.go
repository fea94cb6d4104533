package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/auth"
	"github.com/offboardpro/offboardpro/api/store"
)

// EntitlementDeleter removes a user's entitlement record.
type EntitlementDeleter interface {
	Delete(ctx context.Context, userID string) error
}

// Service erases accounts.
type Service interface {
	// DeleteAccount wipes the caller's items, entitlement and identity. It
	// requires a credential presented within the reauth window.
	DeleteAccount(ctx context.Context, p auth.Principal) (Deleted, error)
}

type Deleted struct {
	UserID string `json:"userId"`
	Items  int    `json:"items"`
}

type serviceImpl struct {
	items        store.ItemStore
	entitlements EntitlementDeleter
	users        auth.UserAdmin
	maxAge       time.Duration
	now          func() time.Time
}

func NewService(items store.ItemStore, ents EntitlementDeleter, users auth.UserAdmin, maxAge time.Duration) Service {
	return serviceImpl{items: items, entitlements: ents, users: users, maxAge: maxAge, now: time.Now}
}

func (s serviceImpl) DeleteAccount(ctx context.Context, p auth.Principal) (Deleted, error) {
	if p.UID == "" {
		return Deleted{}, apperrors.ErrAuthRequired
	}
	if !auth.Fresh(p, s.maxAge, s.now()) {
		return Deleted{}, fmt.Errorf("%w: sign in again to delete your account", apperrors.ErrReauthRequired)
	}

	n, err := s.items.DeleteItemsForUser(ctx, p.UID)
	if err != nil {
		return Deleted{}, fmt.Errorf("%w: error deleting items: %v", apperrors.ErrDatabase, err)
	}
	if err := s.entitlements.Delete(ctx, p.UID); err != nil {
		return Deleted{}, err
	}
	if err := s.users.DeleteUser(ctx, p.UID); err != nil {
		return Deleted{}, fmt.Errorf("%w: error deleting identity: %v", apperrors.ErrUpstream, err)
	}
	slog.Info("account deleted", "user_id", p.UID, "items", n)
	return Deleted{UserID: p.UID, Items: n}, nil
}
