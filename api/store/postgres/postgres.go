package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/models"
	"github.com/offboardpro/offboardpro/api/store"
)

// ChangeChannel is the NOTIFY channel carrying the user id of every changed
// user_entitlement row.
const ChangeChannel = "entitlement_changed"

// Schema creates the tables and the notify trigger. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS user_entitlement (
	user_id       TEXT PRIMARY KEY,
	is_pro        BOOLEAN NOT NULL DEFAULT FALSE,
	plan          TEXT NOT NULL DEFAULT 'none',
	billing_cycle TEXT,
	upgraded_at   TIMESTAMPTZ,
	downgraded_at TIMESTAMPTZ,
	order_id      TEXT,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT pro_has_plan CHECK (NOT is_pro OR (plan = 'professional' AND billing_cycle IN ('monthly', 'yearly')))
);

CREATE TABLE IF NOT EXISTS payment_order (
	order_id      TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	amount        BIGINT NOT NULL CHECK (amount > 0),
	currency      TEXT NOT NULL,
	receipt_id    TEXT NOT NULL,
	billing_cycle TEXT NOT NULL,
	gateway       TEXT NOT NULL,
	status        TEXT NOT NULL,
	payment_id    TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	paid_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS payment_order_status_idx ON payment_order (status, created_at);

CREATE TABLE IF NOT EXISTS tracked_item (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	tools      TEXT NOT NULL DEFAULT '',
	due_date   TEXT NOT NULL,
	notes      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS tracked_item_user_idx ON tracked_item (user_id, created_at);

CREATE OR REPLACE FUNCTION notify_entitlement_changed() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		PERFORM pg_notify('entitlement_changed', OLD.user_id);
		RETURN OLD;
	END IF;
	PERFORM pg_notify('entitlement_changed', NEW.user_id);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS user_entitlement_notify ON user_entitlement;
CREATE TRIGGER user_entitlement_notify
	AFTER INSERT OR UPDATE OR DELETE ON user_entitlement
	FOR EACH ROW EXECUTE FUNCTION notify_entitlement_changed();
`

// Store implements store.Store on Postgres.
type Store struct {
	db  *sqlx.DB
	dsn string
}

var _ store.Store = (*Store)(nil)

// New wraps an open pool. dsn is used for the dedicated LISTEN connection.
func New(db *sqlx.DB, dsn string) *Store {
	return &Store{db: db, dsn: dsn}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: migrate: %v", apperrors.ErrDatabase, err)
	}
	return nil
}

type entitlementRow struct {
	UserID       string         `db:"user_id"`
	IsPro        bool           `db:"is_pro"`
	Plan         string         `db:"plan"`
	BillingCycle sql.NullString `db:"billing_cycle"`
	UpgradedAt   sql.NullTime   `db:"upgraded_at"`
	DowngradedAt sql.NullTime   `db:"downgraded_at"`
	OrderID      sql.NullString `db:"order_id"`
}

func (r entitlementRow) model() models.Entitlement {
	e := models.Entitlement{
		UserID:       r.UserID,
		IsPro:        r.IsPro,
		Plan:         models.Plan(r.Plan),
		BillingCycle: models.BillingCycle(r.BillingCycle.String),
		OrderID:      r.OrderID.String,
	}
	if r.UpgradedAt.Valid {
		e.UpgradedAt = r.UpgradedAt.Time.UTC()
	}
	if r.DowngradedAt.Valid {
		e.DowngradedAt = r.DowngradedAt.Time.UTC()
	}
	return e
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) GetEntitlement(ctx context.Context, userID string) (models.Entitlement, error) {
	var row entitlementRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, is_pro, plan, billing_cycle, upgraded_at, downgraded_at, order_id
		FROM user_entitlement WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FreeEntitlement(userID), nil
	}
	if err != nil {
		return models.Entitlement{}, fmt.Errorf("%w: get entitlement: %v", apperrors.ErrDatabase, err)
	}
	return row.model(), nil
}

func (s *Store) MergeEntitlement(ctx context.Context, userID string, g models.Grant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_entitlement (user_id, is_pro, plan, billing_cycle, upgraded_at, order_id, updated_at)
		VALUES ($1, TRUE, $2, $3, $4, $5, now())
		ON CONFLICT (user_id) DO UPDATE SET
			is_pro = TRUE,
			plan = EXCLUDED.plan,
			billing_cycle = EXCLUDED.billing_cycle,
			upgraded_at = EXCLUDED.upgraded_at,
			order_id = EXCLUDED.order_id,
			downgraded_at = NULL,
			updated_at = now()`,
		userID, string(g.Plan), string(g.BillingCycle), nullTime(g.UpgradedAt), nullString(g.OrderID))
	if err != nil {
		return fmt.Errorf("%w: merge entitlement: %v", apperrors.ErrDatabase, err)
	}
	return nil
}

func (s *Store) RevokeEntitlement(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_entitlement (user_id, is_pro, plan, downgraded_at, updated_at)
		VALUES ($1, FALSE, 'none', $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			is_pro = FALSE,
			plan = 'none',
			billing_cycle = NULL,
			downgraded_at = EXCLUDED.downgraded_at,
			updated_at = now()`,
		userID, at)
	if err != nil {
		return fmt.Errorf("%w: revoke entitlement: %v", apperrors.ErrDatabase, err)
	}
	return nil
}

func (s *Store) DeleteEntitlement(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_entitlement WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("%w: delete entitlement: %v", apperrors.ErrDatabase, err)
	}
	return nil
}

// EntitlementChanges listens on ChangeChannel over a dedicated connection.
// A reconnect may drop notifications, so it is reported as store.ResyncAll.
func (s *Store) EntitlementChanges(ctx context.Context) (<-chan string, error) {
	l := pq.NewListener(s.dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			slog.Warn("entitlement listener disconnected", "error", err)
		case pq.ListenerEventReconnected:
			slog.Info("entitlement listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			slog.Warn("entitlement listener connect failed", "error", err)
		}
	})
	if err := l.Listen(ChangeChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("%w: listen %s: %v", apperrors.ErrDatabase, ChangeChannel, err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer l.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-l.Notify:
				if !ok {
					return
				}
				uid := store.ResyncAll
				if n != nil {
					uid = n.Extra
				}
				select {
				case out <- uid:
				case <-ctx.Done():
					return
				}
			case <-time.After(90 * time.Second):
				go func() {
					if err := l.Ping(); err != nil {
						slog.Warn("entitlement listener ping failed", "error", err)
					}
				}()
			}
		}
	}()
	return out, nil
}

type orderRow struct {
	OrderID      string         `db:"order_id"`
	UserID       string         `db:"user_id"`
	Amount       int64          `db:"amount"`
	Currency     string         `db:"currency"`
	ReceiptID    string         `db:"receipt_id"`
	BillingCycle string         `db:"billing_cycle"`
	Gateway      string         `db:"gateway"`
	Status       string         `db:"status"`
	PaymentID    sql.NullString `db:"payment_id"`
	CreatedAt    time.Time      `db:"created_at"`
	PaidAt       sql.NullTime   `db:"paid_at"`
}

func (r orderRow) model() models.PaymentOrder {
	o := models.PaymentOrder{
		OrderID:      r.OrderID,
		UserID:       r.UserID,
		Amount:       r.Amount,
		Currency:     r.Currency,
		ReceiptID:    r.ReceiptID,
		BillingCycle: models.BillingCycle(r.BillingCycle),
		Gateway:      r.Gateway,
		Status:       models.OrderStatus(r.Status),
		PaymentID:    r.PaymentID.String,
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if r.PaidAt.Valid {
		o.PaidAt = r.PaidAt.Time.UTC()
	}
	return o
}

const orderColumns = `order_id, user_id, amount, currency, receipt_id, billing_cycle, gateway, status, payment_id, created_at, paid_at`

func (s *Store) RecordOrder(ctx context.Context, o models.PaymentOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_order (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (order_id) DO NOTHING`,
		o.OrderID, o.UserID, o.Amount, o.Currency, o.ReceiptID, string(o.BillingCycle), o.Gateway,
		string(o.Status), nullString(o.PaymentID), o.CreatedAt, nullTime(o.PaidAt))
	if err != nil {
		return fmt.Errorf("%w: record order: %v", apperrors.ErrDatabase, err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (models.PaymentOrder, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM payment_order WHERE order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PaymentOrder{}, store.ErrNotFound
	}
	if err != nil {
		return models.PaymentOrder{}, fmt.Errorf("%w: get order: %v", apperrors.ErrDatabase, err)
	}
	return row.model(), nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, paymentID string, paidAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_order SET
			status = $2,
			payment_id = COALESCE($3, payment_id),
			paid_at = COALESCE($4, paid_at)
		WHERE order_id = $1`,
		orderID, string(status), nullString(paymentID), nullTime(paidAt))
	if err != nil {
		return fmt.Errorf("%w: update order: %v", apperrors.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListOrdersByStatus(ctx context.Context, limit int, statuses ...models.OrderStatus) ([]models.PaymentOrder, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+orderColumns+` FROM payment_order
		WHERE status = ANY($1)
		ORDER BY created_at
		LIMIT NULLIF($2, 0)`, pq.Array(names), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", apperrors.ErrDatabase, err)
	}
	out := make([]models.PaymentOrder, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

const itemColumns = `id, user_id, name, tools, due_date, notes, status, created_at`

func (s *Store) CreateItem(ctx context.Context, item models.TrackedItem) (models.TrackedItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tracked_item (`+itemColumns+`)
		VALUES (:id, :user_id, :name, :tools, :due_date, :notes, :status, :created_at)`, item)
	if err != nil {
		return models.TrackedItem{}, fmt.Errorf("%w: create item: %v", apperrors.ErrDatabase, err)
	}
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (models.TrackedItem, error) {
	var item models.TrackedItem
	err := s.db.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM tracked_item WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TrackedItem{}, store.ErrNotFound
	}
	if err != nil {
		return models.TrackedItem{}, fmt.Errorf("%w: get item: %v", apperrors.ErrDatabase, err)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return item, nil
}

func (s *Store) ListItems(ctx context.Context, userID string) ([]models.TrackedItem, error) {
	items := []models.TrackedItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM tracked_item WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list items: %v", apperrors.ErrDatabase, err)
	}
	return items, nil
}

func (s *Store) CountItems(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM tracked_item WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("%w: count items: %v", apperrors.ErrDatabase, err)
	}
	return n, nil
}

func (s *Store) UpdateItemStatus(ctx context.Context, id string, status models.ItemStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tracked_item SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("%w: update item: %v", apperrors.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracked_item WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete item: %v", apperrors.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteItemsForUser(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracked_item WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete items: %v", apperrors.ErrDatabase, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
