package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/offboardpro/offboardpro/api/apperrors"
	config "github.com/offboardpro/offboardpro/api/config"
	"github.com/offboardpro/offboardpro/api/models"
	"github.com/offboardpro/offboardpro/api/store"
)

// ProChecker answers whether a user currently has Pro.
type ProChecker interface {
	IsPro(ctx context.Context, userID string) (bool, error)
}

// CreateItemRequest is the dashboard's "add client" form.
type CreateItemRequest struct {
	Name  string `json:"name"`
	Tools string `json:"tools"`
	Date  string `json:"date"`
	Notes string `json:"notes"`
}

// Overview is the dashboard view of a user's items.
type Overview struct {
	Items  []models.TrackedItem `json:"items"`
	Alerts []models.TrackedItem `json:"alerts"`
	Health Health               `json:"health"`
	IsPro  bool                 `json:"isPro"`
	// Remaining is how many more items the plan allows, or -1 for unlimited.
	Remaining int `json:"remaining"`
}

// Service defines the operations on tracked offboarding items.
type Service interface {
	Create(ctx context.Context, userID string, req CreateItemRequest) (models.TrackedItem, error)
	List(ctx context.Context, userID, search string) (Overview, error)
	ToggleStatus(ctx context.Context, userID, id string) (models.TrackedItem, error)
	Delete(ctx context.Context, userID, id string) error
	BulkDelete(ctx context.Context, userID string) (int, error)
	Shared(ctx context.Context, id string) (models.SharedItem, error)
}

type serviceImpl struct {
	items store.ItemStore
	pro   ProChecker
	now   func() time.Time
}

func NewService(items store.ItemStore, pro ProChecker) Service {
	return serviceImpl{items: items, pro: pro, now: time.Now}
}

func (s serviceImpl) isPro(ctx context.Context, userID string) (bool, error) {
	ok, err := s.pro.IsPro(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: error reading plan: %v", apperrors.ErrDatabase, err)
	}
	return ok, nil
}

func (s serviceImpl) Create(ctx context.Context, userID string, req CreateItemRequest) (models.TrackedItem, error) {
	if userID == "" {
		return models.TrackedItem{}, apperrors.ErrAuthRequired
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || req.Date == "" {
		return models.TrackedItem{}, fmt.Errorf("%w: please provide a client name and offboarding date", apperrors.ErrInvalidArgument)
	}
	if _, err := time.Parse(models.DateLayout, req.Date); err != nil {
		return models.TrackedItem{}, fmt.Errorf("%w: date must be YYYY-MM-DD: %v", apperrors.ErrInvalidArgument, err)
	}

	pro, err := s.isPro(ctx, userID)
	if err != nil {
		return models.TrackedItem{}, err
	}
	notes := req.Notes
	if !pro {
		n, err := s.items.CountItems(ctx, userID)
		if err != nil {
			return models.TrackedItem{}, fmt.Errorf("%w: error counting items: %v", apperrors.ErrDatabase, err)
		}
		if n >= config.FreeItemLimit {
			return models.TrackedItem{}, fmt.Errorf("%w: starter plan is limited to %d clients", apperrors.ErrPlanLimit, config.FreeItemLimit)
		}
		notes = ""
	}

	item, err := s.items.CreateItem(ctx, models.TrackedItem{
		UserID:    userID,
		Name:      name,
		Tools:     strings.TrimSpace(req.Tools),
		Date:      req.Date,
		Notes:     notes,
		Status:    models.ItemPending,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return models.TrackedItem{}, fmt.Errorf("%w: error saving item: %v", apperrors.ErrDatabase, err)
	}
	slog.Info("tracked item created", "user_id", userID, "item_id", item.ID)
	return item, nil
}

func (s serviceImpl) List(ctx context.Context, userID, search string) (Overview, error) {
	if userID == "" {
		return Overview{}, apperrors.ErrAuthRequired
	}
	items, err := s.items.ListItems(ctx, userID)
	if err != nil {
		return Overview{}, fmt.Errorf("%w: error listing items: %v", apperrors.ErrDatabase, err)
	}
	pro, err := s.isPro(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	today := s.now()
	ov := Overview{
		Items:     Filter(items, search),
		Health:    HealthOf(items, today),
		IsPro:     pro,
		Remaining: -1,
	}
	// alerts are a Pro dashboard feature
	ov.Alerts = []models.TrackedItem{}
	if pro {
		ov.Alerts = Alerts(items, today)
	} else if left := config.FreeItemLimit - len(items); left > 0 {
		ov.Remaining = left
	} else {
		ov.Remaining = 0
	}
	return ov, nil
}

// owned loads an item, hiding items of other users behind NotFound.
func (s serviceImpl) owned(ctx context.Context, userID, id string) (models.TrackedItem, error) {
	if userID == "" {
		return models.TrackedItem{}, apperrors.ErrAuthRequired
	}
	item, err := s.items.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && item.UserID != userID) {
		return models.TrackedItem{}, fmt.Errorf("%w: item %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return models.TrackedItem{}, fmt.Errorf("%w: error reading item: %v", apperrors.ErrDatabase, err)
	}
	return item, nil
}

func (s serviceImpl) ToggleStatus(ctx context.Context, userID, id string) (models.TrackedItem, error) {
	item, err := s.owned(ctx, userID, id)
	if err != nil {
		return models.TrackedItem{}, err
	}
	next := models.ItemCompleted
	if item.Status == models.ItemCompleted {
		next = models.ItemPending
	}
	if err := s.items.UpdateItemStatus(ctx, id, next); err != nil {
		return models.TrackedItem{}, fmt.Errorf("%w: error updating item: %v", apperrors.ErrDatabase, err)
	}
	item.Status = next
	return item, nil
}

func (s serviceImpl) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.items.DeleteItem(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: error deleting item: %v", apperrors.ErrDatabase, err)
	}
	return nil
}

// BulkDelete clears every item of a Pro user.
func (s serviceImpl) BulkDelete(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, apperrors.ErrAuthRequired
	}
	pro, err := s.isPro(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !pro {
		return 0, fmt.Errorf("%w: bulk delete", apperrors.ErrProRequired)
	}
	n, err := s.items.DeleteItemsForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: error deleting items: %v", apperrors.ErrDatabase, err)
	}
	slog.Info("tracked items cleared", "user_id", userID, "count", n)
	return n, nil
}

// Shared is the unauthenticated read behind a share link.
func (s serviceImpl) Shared(ctx context.Context, id string) (models.SharedItem, error) {
	if id == "" {
		return models.SharedItem{}, fmt.Errorf("%w: item id is required", apperrors.ErrInvalidArgument)
	}
	item, err := s.items.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.SharedItem{}, fmt.Errorf("%w: item %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return models.SharedItem{}, fmt.Errorf("%w: error reading item: %v", apperrors.ErrDatabase, err)
	}
	return item.Share(), nil
}
