package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.openly.dev/pointy"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/models"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrStaleTransition means the order was no longer pending.
	ErrStaleTransition = errors.New("order is not pending")
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const orderColumns = `
	id, user_id, service_id, service_name, link, quantity,
	provider_rate_per_1000, provider_cost_amount, markup_percent,
	final_price_amount, profit_amount, credits_spent,
	status, provider_order_id,
	provider_status, provider_charge, provider_remains, provider_start_count, provider_currency,
	provider_refill_id, provider_refill_status,
	profit_real_amount, error_message,
	created_at, updated_at, last_synced_at, requested_refill_at, cancelled_at`

type Store struct {
	db tx.DBGetter
}

func New(db tx.DBGetter) *Store {
	return &Store{db: db}
}

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO smm_orders (
			id, user_id, service_id, service_name, link, quantity,
			provider_rate_per_1000, provider_cost_amount, markup_percent,
			final_price_amount, profit_amount, credits_spent,
			status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
	`,
		o.ID,
		o.UserID,
		o.ServiceID,
		o.ServiceName,
		o.Link,
		o.Quantity,
		o.ProviderRatePer1000,
		o.ProviderCostAmount,
		o.MarkupPercent,
		o.FinalPriceAmount,
		o.ProfitAmount,
		o.CreditsSpent,
		string(o.Status),
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder only returns orders owned by userID.
func (s *Store) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	row := s.db(ctx).QueryRow(ctx, `SELECT `+orderColumns+` FROM smm_orders WHERE id = $1 AND user_id = $2`, orderID, userID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+orderColumns+`
		FROM smm_orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) MarkSubmitted(ctx context.Context, orderID, providerOrderID string) error {
	return s.transition(ctx, orderID, models.OrderSubmitted, `provider_order_id = $3`, providerOrderID)
}

func (s *Store) MarkFailed(ctx context.Context, orderID, reason string) error {
	return s.transition(ctx, orderID, models.OrderFailed, `error_message = $3`, reason)
}

func (s *Store) MarkRefunded(ctx context.Context, orderID, reason string) error {
	return s.transition(ctx, orderID, models.OrderRefunded, `error_message = $3`, reason)
}

// transition moves a pending order to status; set is an extra assignment
// bound to $3.
func (s *Store) transition(ctx context.Context, orderID string, status models.OrderStatus, set string, arg any) error {
	res, err := s.db(ctx).Exec(ctx, `
		UPDATE smm_orders
		SET status = $2, `+set+`, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, orderID, string(status), arg)
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	if res.RowsAffected() == 0 {
		return ErrStaleTransition
	}
	return nil
}

// UpdateProviderMirror overwrites the provider mirror columns, profit_real
// and last_synced_at. Nothing else on the order changes.
func (s *Store) UpdateProviderMirror(ctx context.Context, orderID string, m models.ProviderMirror) error {
	res, err := s.db(ctx).Exec(ctx, `
		UPDATE smm_orders
		SET provider_status = $2,
			provider_charge = $3,
			provider_remains = $4,
			provider_start_count = $5,
			provider_currency = $6,
			profit_real_amount = $7,
			last_synced_at = $8,
			updated_at = now()
		WHERE id = $1
	`, orderID, m.Status, m.Charge, m.Remains, m.StartCount, m.Currency, m.ProfitReal, m.SyncedAt)
	if err != nil {
		return fmt.Errorf("update provider mirror: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetRefillRequested(ctx context.Context, orderID, refillID string, at time.Time) error {
	res, err := s.db(ctx).Exec(ctx, `
		UPDATE smm_orders
		SET provider_refill_id = $2,
			provider_refill_status = $3,
			requested_refill_at = $4,
			updated_at = now()
		WHERE id = $1
	`, orderID, refillID, models.RefillRequested, at)
	if err != nil {
		return fmt.Errorf("set refill: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRefillStatus applies status to every order of userID that carries
// refillID and reports how many rows changed.
func (s *Store) UpdateRefillStatus(ctx context.Context, userID, refillID, status string, at time.Time) (int64, error) {
	q, args, err := refillStatusQuery(userID, refillID, status, at)
	if err != nil {
		return 0, err
	}
	res, err := s.db(ctx).Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("update refill status: %w", err)
	}
	return res.RowsAffected(), nil
}

// ResolveProviderRefs looks up the given order ids for userID. Ids that do
// not exist or belong to someone else are absent from the result.
func (s *Store) ResolveProviderRefs(ctx context.Context, userID string, orderIDs []string) ([]models.ProviderRef, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	q, args, err := resolveQuery(userID, orderIDs)
	if err != nil {
		return nil, err
	}
	rows, err := s.db(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve provider refs: %w", err)
	}
	defer rows.Close()

	var out []models.ProviderRef
	for rows.Next() {
		var ref models.ProviderRef
		var providerID sql.NullString
		if err := rows.Scan(&ref.OrderID, &providerID); err != nil {
			return nil, err
		}
		if providerID.Valid {
			ref.ProviderOrderID = pointy.String(providerID.String)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// MarkCanceled sets every listed order of userID to canceled, whatever its
// current status.
func (s *Store) MarkCanceled(ctx context.Context, userID string, orderIDs []string, at time.Time) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	q, args, err := cancelQuery(userID, orderIDs, at)
	if err != nil {
		return 0, err
	}
	res, err := s.db(ctx).Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("mark canceled: %w", err)
	}
	return res.RowsAffected(), nil
}

func refillStatusQuery(userID, refillID, status string, at time.Time) (string, []any, error) {
	return psql.Update("smm_orders").
		Set("provider_refill_status", status).
		Set("last_synced_at", at).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"user_id": userID, "provider_refill_id": refillID}).
		ToSql()
}

func resolveQuery(userID string, orderIDs []string) (string, []any, error) {
	return psql.Select("id", "provider_order_id").
		From("smm_orders").
		Where(sq.Eq{"user_id": userID, "id": orderIDs}).
		ToSql()
}

func cancelQuery(userID string, orderIDs []string, at time.Time) (string, []any, error) {
	return psql.Update("smm_orders").
		Set("status", string(models.OrderCanceled)).
		Set("cancelled_at", at).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"user_id": userID, "id": orderIDs}).
		ToSql()
}

func (s *Store) RecordPendingCompensation(ctx context.Context, pc models.PendingCompensation) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO pending_compensations (order_id, user_id, amount, reason)
		VALUES ($1,$2,$3,$4)
	`, pc.OrderID, pc.UserID, pc.Amount, pc.Reason)
	if err != nil {
		return fmt.Errorf("record pending compensation: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var status string
	var providerOrderID, providerStatus, providerCurrency, refillID, refillStatus, errorMessage sql.NullString
	var remains, startCount sql.NullInt64
	var lastSynced, refillAt, cancelledAt sql.NullTime
	var charge, profitReal decimal.NullDecimal

	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.ServiceID,
		&o.ServiceName,
		&o.Link,
		&o.Quantity,
		&o.ProviderRatePer1000,
		&o.ProviderCostAmount,
		&o.MarkupPercent,
		&o.FinalPriceAmount,
		&o.ProfitAmount,
		&o.CreditsSpent,
		&status,
		&providerOrderID,
		&providerStatus,
		&charge,
		&remains,
		&startCount,
		&providerCurrency,
		&refillID,
		&refillStatus,
		&profitReal,
		&errorMessage,
		&o.CreatedAt,
		&o.UpdatedAt,
		&lastSynced,
		&refillAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = models.OrderStatus(status)
	o.ProviderCharge = charge
	o.ProfitRealAmount = profitReal
	o.ProviderOrderID = nullString(providerOrderID)
	o.ProviderStatus = nullString(providerStatus)
	o.ProviderCurrency = nullString(providerCurrency)
	o.ProviderRefillID = nullString(refillID)
	o.ProviderRefillStatus = nullString(refillStatus)
	o.ErrorMessage = nullString(errorMessage)
	if remains.Valid {
		o.ProviderRemains = pointy.Int64(remains.Int64)
	}
	if startCount.Valid {
		o.ProviderStartCount = pointy.Int64(startCount.Int64)
	}
	if lastSynced.Valid {
		o.LastSyncedAt = &lastSynced.Time
	}
	if refillAt.Valid {
		o.RequestedRefillAt = &refillAt.Time
	}
	if cancelledAt.Valid {
		o.CancelledAt = &cancelledAt.Time
	}
	return &o, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return pointy.String(v.String)
}
