package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/catalog"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/events"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/ledger"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/metrics"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/models"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/pricing"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/provider"
)

// OrderSaga creates an order: price it, debit the wallet, submit it to the
// provider and refund the wallet if the provider rejects it.
type OrderSaga struct {
	Orders   OrderStore
	Ledger   Ledger
	Provider Provider
	Catalog  Catalog
	Pricing  pricing.Calculator
	Tx       TxRunner
	Events   events.Publisher
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Now      func() time.Time
}

type CreateOrderInput struct {
	UserID    string
	ServiceID int64
	Link      string
	Quantity  int64
	Comments  string
	Runs      int64
	Interval  int64
}

type CreateOrderResult struct {
	ID              string
	ProviderOrderID string
}

func (s *OrderSaga) Create(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.UserID == "" {
		return nil, ErrUnauthenticated
	}
	in.Link = strings.TrimSpace(in.Link)
	switch {
	case in.ServiceID <= 0:
		return nil, validationf("serviceID must be a positive integer")
	case in.Link == "":
		return nil, validationf("link is required")
	case in.Quantity < 0:
		return nil, validationf("quantity must not be negative")
	case in.Runs < 0 || in.Interval < 0:
		return nil, validationf("runs and interval must not be negative")
	}

	svc, err := s.Catalog.Lookup(ctx, in.ServiceID)
	switch {
	case errors.Is(err, catalog.ErrServiceNotFound):
		return nil, ErrServiceNotFound
	case errors.Is(err, catalog.ErrInvalidRate):
		return nil, ErrInvalidService
	case err != nil:
		return nil, err
	}

	quote, err := s.Pricing.Quote(svc.RatePer1000, in.Quantity)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidRate) {
			return nil, ErrInvalidService
		}
		return nil, fmt.Errorf("price order: %w", err)
	}

	order := &models.Order{
		ID:                  uuid.NewString(),
		UserID:              in.UserID,
		ServiceID:           in.ServiceID,
		ServiceName:         svc.Name,
		Link:                in.Link,
		Quantity:            in.Quantity,
		ProviderRatePer1000: svc.RatePer1000,
		ProviderCostAmount:  quote.ProviderCost.Round(2),
		MarkupPercent:       s.Pricing.MarkupPercent,
		FinalPriceAmount:    quote.FinalPrice,
		ProfitAmount:        quote.Profit,
		CreditsSpent:        quote.FinalPrice,
		Status:              models.OrderPending,
		CreatedAt:           s.now(),
	}
	if err := s.Orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	log := s.log().With(zap.String("order_id", order.ID), zap.String("user_id", order.UserID))
	s.publish(ctx, order, events.OrderCreated, "")

	if err := s.Ledger.Debit(ctx, order.UserID, order.CreditsSpent, ledger.ReferenceSMMOrder, order.ID); err != nil {
		if merr := s.Orders.MarkFailed(ctx, order.ID, err.Error()); merr != nil {
			log.Error("mark order failed", zap.Error(merr))
		}
		order.Status = models.OrderFailed
		s.Metrics.OrderOutcome("debit_failed")
		s.publish(ctx, order, events.OrderFailed, err.Error())
		log.Info("order debit rejected", zap.Error(err))
		return nil, err
	}
	s.Metrics.Debited(order.CreditsSpent.InexactFloat64())

	// Credits are gone from here on; finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	providerOrderID, err := s.Provider.Add(ctx, provider.AddRequest{
		Service:  in.ServiceID,
		Link:     in.Link,
		Quantity: in.Quantity,
		Comments: in.Comments,
		Runs:     in.Runs,
		Interval: in.Interval,
	})
	if err != nil {
		s.compensate(ctx, log, order, err)
		return nil, err
	}

	if err := s.Orders.MarkSubmitted(ctx, order.ID, providerOrderID); err != nil {
		// The provider has the order and the wallet is charged; only the
		// local row lags behind, so report success.
		log.Error("submitted order not recorded",
			zap.String("alert", "submission_not_recorded"),
			zap.String("provider_order_id", providerOrderID),
			zap.Error(err))
	}
	order.Status = models.OrderSubmitted
	order.ProviderOrderID = &providerOrderID
	s.Metrics.OrderOutcome("submitted")
	s.publish(ctx, order, events.OrderSubmitted, "")
	log.Info("order submitted", zap.String("provider_order_id", providerOrderID))

	return &CreateOrderResult{ID: order.ID, ProviderOrderID: providerOrderID}, nil
}

// compensate refunds the debit and marks the order refunded in one
// transaction. When that fails the order is marked failed and a pending
// compensation row is written for operators.
func (s *OrderSaga) compensate(ctx context.Context, log *zap.Logger, order *models.Order, cause error) {
	reason := cause.Error()
	err := s.withinTx(ctx, func(ctx context.Context) error {
		if err := s.Ledger.Credit(ctx, order.UserID, order.CreditsSpent, ledger.ReferenceSMMOrder, order.ID, models.LedgerRefund); err != nil {
			return fmt.Errorf("refund credit: %w", err)
		}
		return s.Orders.MarkRefunded(ctx, order.ID, reason)
	})
	if err == nil {
		order.Status = models.OrderRefunded
		s.Metrics.Refunded(order.CreditsSpent.InexactFloat64())
		s.Metrics.OrderOutcome("refunded")
		s.publish(ctx, order, events.OrderRefunded, reason)
		log.Warn("order refunded after provider failure", zap.Error(cause))
		return
	}

	s.Metrics.CompensationFailed()
	s.Metrics.OrderOutcome("refund_failed")
	log.Error("order refund failed",
		zap.String("alert", "compensation_failed"),
		zap.String("amount", order.CreditsSpent.StringFixed(2)),
		zap.NamedError("provider_error", cause),
		zap.Error(err))

	if merr := s.Orders.MarkFailed(ctx, order.ID, "refund failed: "+err.Error()+"; provider: "+reason); merr != nil {
		log.Error("mark order failed", zap.Error(merr))
	}
	pc := models.PendingCompensation{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Amount:    order.CreditsSpent,
		Reason:    err.Error(),
		CreatedAt: s.now(),
	}
	if rerr := s.Orders.RecordPendingCompensation(ctx, pc); rerr != nil {
		log.Error("record pending compensation", zap.String("alert", "compensation_failed"), zap.Error(rerr))
	}
	order.Status = models.OrderFailed
	s.publish(ctx, order, events.OrderFailed, err.Error())
}

// ListOrders returns the caller's orders, newest first.
func (s *OrderSaga) ListOrders(ctx context.Context, userID string, limit, offset int) ([]*models.Order, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.Orders.ListOrders(ctx, userID, limit, offset)
}

type PricedService struct {
	catalog.Service
	PricePer1000 string `json:"pricePer1000"`
}

// Services lists the provider catalog with the price charged per 1000.
// Entries without a usable rate are left out.
func (s *OrderSaga) Services(ctx context.Context) ([]PricedService, error) {
	items, err := s.Catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PricedService, 0, len(items))
	for _, it := range items {
		price, err := s.Pricing.PricePer1000(it.RatePer1000)
		if err != nil {
			continue
		}
		out = append(out, PricedService{Service: it, PricePer1000: price.StringFixed(2)})
	}
	return out, nil
}

type Balance struct {
	Credits      decimal.Decimal
	Transactions []models.LedgerTransaction
}

func (s *OrderSaga) Balance(ctx context.Context, userID string, limit int) (*Balance, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	credits, err := s.Ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	txs, err := s.Ledger.History(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return &Balance{Credits: credits, Transactions: txs}, nil
}

func (s *OrderSaga) withinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Tx == nil {
		return fn(ctx)
	}
	return s.Tx.WithinTransaction(ctx, fn)
}

func (s *OrderSaga) publish(ctx context.Context, o *models.Order, typ events.Type, reason string) {
	publishOrderEvent(ctx, s.Events, s.log(), o, typ, reason, s.now())
}

func (s *OrderSaga) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *OrderSaga) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func publishOrderEvent(ctx context.Context, p events.Publisher, log *zap.Logger, o *models.Order, typ events.Type, reason string, at time.Time) {
	if p == nil {
		return
	}
	ev := events.OrderEvent{
		Type:       typ,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     string(o.Status),
		Reason:     reason,
		OccurredAt: at,
	}
	if !o.CreditsSpent.IsZero() {
		ev.Amount = o.CreditsSpent.StringFixed(2)
	}
	if o.ProviderOrderID != nil {
		ev.ProviderOrderID = *o.ProviderOrderID
	}
	if err := p.PublishOrder(ctx, ev); err != nil {
		log.Warn("publish order event", zap.String("type", string(typ)), zap.String("order_id", o.ID), zap.Error(err))
	}
}
