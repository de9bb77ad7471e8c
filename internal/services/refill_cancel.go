package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/events"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/metrics"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/models"
)

type RefillCancelManager struct {
	Orders   OrderStore
	Provider Provider
	Events   events.Publisher
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Now      func() time.Time
}

type RefillResult struct {
	ID               string
	ProviderRefillID string
}

type RefillStatusResult struct {
	RefillID string
	Status   string
	// Updated is the number of local orders carrying RefillID.
	Updated int64
}

// CancelResult carries the provider payload. Skipped lists requested ids
// that had no submitted order behind them.
type CancelResult struct {
	Data     json.RawMessage
	Canceled []string
	Skipped  []string
}

func (m *RefillCancelManager) RequestRefill(ctx context.Context, userID, orderID string) (*RefillResult, error) {
	order, err := loadOrder(ctx, m.Orders, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.ProviderOrderID == nil || *order.ProviderOrderID == "" {
		return nil, ErrNotSubmitted
	}

	refillID, err := m.Provider.Refill(ctx, *order.ProviderOrderID)
	if err != nil {
		return nil, err
	}
	if err := m.Orders.SetRefillRequested(ctx, order.ID, refillID, m.now()); err != nil {
		return nil, err
	}
	publishOrderEvent(ctx, m.Events, m.log(), order, events.OrderRefillRequested, "", m.now())
	m.log().Info("refill requested", zap.String("order_id", order.ID), zap.String("refill_id", refillID))
	return &RefillResult{ID: order.ID, ProviderRefillID: refillID}, nil
}

// RefillStatus fetches the provider status of refillID and stores it on
// every order of userID that carries that refill id.
func (m *RefillCancelManager) RefillStatus(ctx context.Context, userID, refillID string) (*RefillStatusResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	refillID = strings.TrimSpace(refillID)
	if refillID == "" {
		return nil, validationf("refillID is required")
	}

	status, err := m.Provider.RefillStatus(ctx, refillID)
	if err != nil {
		return nil, err
	}
	n, err := m.Orders.UpdateRefillStatus(ctx, userID, refillID, status, m.now())
	if err != nil {
		return nil, err
	}
	return &RefillStatusResult{RefillID: refillID, Status: status, Updated: n}, nil
}

// Cancel forwards every resolvable id to the provider in one call. When
// the provider accepts the batch, all resolved orders are marked canceled;
// the per-order outcome is only available in Data.
func (m *RefillCancelManager) Cancel(ctx context.Context, userID string, ids []string) (*CancelResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	normalized := make([]string, len(ids))
	for i, id := range ids {
		if c, ok := canonicalID(id); ok {
			id = c
		}
		normalized[i] = id
	}
	requested := cleanIDs(normalized)
	if len(requested) == 0 {
		return nil, validationf("ids must not be empty")
	}

	valid := make([]string, 0, len(requested))
	for _, id := range requested {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	refs, err := m.Orders.ResolveProviderRefs(ctx, userID, valid)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[string]string, len(refs))
	for _, ref := range refs {
		if ref.ProviderOrderID != nil && *ref.ProviderOrderID != "" {
			byOrder[ref.OrderID] = *ref.ProviderOrderID
		}
	}

	var orderIDs, providerIDs, skipped []string
	for _, id := range requested {
		pid, ok := byOrder[id]
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		orderIDs = append(orderIDs, id)
		providerIDs = append(providerIDs, pid)
	}
	if len(orderIDs) == 0 {
		return nil, ErrNotFound
	}

	data, err := m.Provider.Cancel(ctx, cleanIDs(providerIDs))
	if err != nil {
		return nil, err
	}

	n, err := m.Orders.MarkCanceled(ctx, userID, orderIDs, m.now())
	if err != nil {
		return nil, err
	}
	m.Metrics.Canceled(int(n))
	for _, id := range orderIDs {
		o := &models.Order{ID: id, UserID: userID, Status: models.OrderCanceled}
		pid := byOrder[id]
		o.ProviderOrderID = &pid
		publishOrderEvent(ctx, m.Events, m.log(), o, events.OrderCanceled, "", m.now())
	}
	if len(skipped) > 0 {
		m.log().Warn("cancel skipped unresolved orders", zap.String("user_id", userID), zap.Strings("skipped", skipped))
	}
	return &CancelResult{Data: data, Canceled: orderIDs, Skipped: skipped}, nil
}

func (m *RefillCancelManager) log() *zap.Logger {
	if m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}

func (m *RefillCancelManager) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now()
}
