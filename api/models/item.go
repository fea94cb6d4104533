package models

import "time"

// ItemStatus is the offboarding progress of a tracked client.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemCompleted ItemStatus = "completed"
)

// DateLayout is the format of TrackedItem.Date.
const DateLayout = "2006-01-02"

// TrackedItem is one client whose tool access must be revoked by Date.
type TrackedItem struct {
	ID        string     `json:"id" db:"id" firestore:"-"`
	UserID    string     `json:"userId" db:"user_id" firestore:"userId"`
	Name      string     `json:"name" db:"name" firestore:"name"`
	Tools     string     `json:"tools" db:"tools" firestore:"tools"`
	Date      string     `json:"date" db:"due_date" firestore:"date"`
	Notes     string     `json:"notes" db:"notes" firestore:"notes"`
	Status    ItemStatus `json:"status" db:"status" firestore:"status"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at" firestore:"createdAt"`
}

// SharedItem is the unauthenticated, read-only projection behind a share link.
type SharedItem struct {
	Name  string `json:"name"`
	Tools string `json:"tools"`
	Date  string `json:"date"`
	Notes string `json:"notes,omitempty"`
}

// Share projects an item for the share page. It carries no owner or status data.
func (t TrackedItem) Share() SharedItem {
	return SharedItem{Name: t.Name, Tools: t.Tools, Date: t.Date, Notes: t.Notes}
}
