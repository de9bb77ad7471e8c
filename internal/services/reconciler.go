package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.openly.dev/pointy"
	"go.uber.org/zap"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/models"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/provider"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/store"
)

const maxMultiStatusIDs = 100

// StatusReconciler mirrors provider-side order state onto local orders.
type StatusReconciler struct {
	Orders         OrderStore
	Provider       Provider
	LedgerCurrency string
	Log            *zap.Logger
	Now            func() time.Time
}

// RefreshOne fetches the provider status of one order and persists the
// mirror fields. Financial snapshot and lifecycle status are untouched.
func (r *StatusReconciler) RefreshOne(ctx context.Context, userID, orderID string) (*models.Order, error) {
	order, err := loadOrder(ctx, r.Orders, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.ProviderOrderID == nil || *order.ProviderOrderID == "" {
		return nil, ErrNotSubmitted
	}

	st, err := r.Provider.Status(ctx, *order.ProviderOrderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now()
	}
	m := buildMirror(order.FinalPriceAmount, st, r.LedgerCurrency, now)
	if err := r.Orders.UpdateProviderMirror(ctx, order.ID, m); err != nil {
		return nil, err
	}
	applyMirror(order, m)

	if r.Log != nil {
		r.Log.Debug("order status refreshed",
			zap.String("order_id", order.ID),
			zap.String("provider_status", st.Status))
	}
	return order, nil
}

// RefreshMany asks the provider for several orders at once and returns
// its payload unchanged. Nothing is persisted.
func (r *StatusReconciler) RefreshMany(ctx context.Context, providerOrderIDs []string) (json.RawMessage, error) {
	ids := cleanIDs(providerOrderIDs)
	if len(ids) == 0 {
		return nil, validationf("providerOrderIDs must not be empty")
	}
	if len(ids) > maxMultiStatusIDs {
		return nil, validationf("at most %d providerOrderIDs per call", maxMultiStatusIDs)
	}
	return r.Provider.MultiStatus(ctx, ids)
}

func buildMirror(finalPrice decimal.Decimal, st provider.StatusResult, ledgerCurrency string, now time.Time) models.ProviderMirror {
	m := models.ProviderMirror{
		Status:   pointy.String(st.Status),
		SyncedAt: now,
	}
	if v, ok := st.Charge.Decimal(); ok {
		m.Charge = decimal.NullDecimal{Decimal: v, Valid: true}
	}
	if v, ok := st.Remains.Int64(); ok {
		m.Remains = pointy.Int64(v)
	}
	if v, ok := st.StartCount.Int64(); ok {
		m.StartCount = pointy.Int64(v)
	}
	currency := strings.TrimSpace(st.Currency)
	if currency != "" {
		m.Currency = pointy.String(currency)
	}
	if m.Charge.Valid && currency != "" && strings.EqualFold(currency, ledgerCurrency) {
		m.ProfitReal = decimal.NullDecimal{Decimal: finalPrice.Sub(m.Charge.Decimal).Round(2), Valid: true}
	}
	return m
}

func applyMirror(o *models.Order, m models.ProviderMirror) {
	o.ProviderStatus = m.Status
	o.ProviderCharge = m.Charge
	o.ProviderRemains = m.Remains
	o.ProviderStartCount = m.StartCount
	o.ProviderCurrency = m.Currency
	o.ProfitRealAmount = m.ProfitReal
	synced := m.SyncedAt
	o.LastSyncedAt = &synced
}

func loadOrder(ctx context.Context, orders OrderStore, userID, orderID string) (*models.Order, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, validationf("id is required")
	}
	orderID, ok := canonicalID(orderID)
	if !ok {
		return nil, ErrNotFound
	}
	order, err := orders.GetOrder(ctx, userID, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// canonicalID returns id in the lower-case hyphenated form the store
// scans back, or false when id is not a uuid.
func canonicalID(id string) (string, bool) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// cleanIDs trims, drops empties and de-duplicates while keeping order.
func cleanIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
