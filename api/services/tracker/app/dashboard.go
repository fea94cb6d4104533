package app

import (
	"math"
	"strings"
	"time"

	"github.com/offboardpro/offboardpro/api/models"
)

// Health grades how many offboardings are overdue.
type Health string

const (
	HealthGood    Health = "A+"
	HealthWarning Health = "B"
	HealthDanger  Health = "DANGER"
)

// alertWindowDays is how close a due date must be to raise an alert.
const alertWindowDays = 2

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysUntil is the whole days from today to the item's date, rounded up.
// ok is false when the date does not parse.
func daysUntil(item models.TrackedItem, today time.Time) (int, bool) {
	due, err := time.Parse(models.DateLayout, item.Date)
	if err != nil {
		return 0, false
	}
	d := due.Sub(midnight(today)).Hours() / 24
	return int(math.Ceil(d)), true
}

// Alerts returns open items that are overdue or due within two days.
func Alerts(items []models.TrackedItem, today time.Time) []models.TrackedItem {
	out := []models.TrackedItem{}
	for _, it := range items {
		if it.Status == models.ItemCompleted {
			continue
		}
		if days, ok := daysUntil(it, today); ok && days <= alertWindowDays {
			out = append(out, it)
		}
	}
	return out
}

// HealthOf grades a user's items by the number of open overdue ones.
func HealthOf(items []models.TrackedItem, today time.Time) Health {
	overdue := 0
	for _, it := range items {
		if it.Status == models.ItemCompleted {
			continue
		}
		if days, ok := daysUntil(it, today); ok && days < 0 {
			overdue++
		}
	}
	switch overdue {
	case 0:
		return HealthGood
	case 1:
		return HealthWarning
	default:
		return HealthDanger
	}
}

// Filter keeps items whose name or tools contain search, case-insensitively.
func Filter(items []models.TrackedItem, search string) []models.TrackedItem {
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return items
	}
	out := []models.TrackedItem{}
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Name), q) || strings.Contains(strings.ToLower(it.Tools), q) {
			out = append(out, it)
		}
	}
	return out
}
