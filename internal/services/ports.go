package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/catalog"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/models"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/provider"
)

// OrderStore is implemented by *store.Store.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, userID string, limit, offset int) ([]*models.Order, error)
	MarkSubmitted(ctx context.Context, orderID, providerOrderID string) error
	MarkFailed(ctx context.Context, orderID, reason string) error
	MarkRefunded(ctx context.Context, orderID, reason string) error
	UpdateProviderMirror(ctx context.Context, orderID string, m models.ProviderMirror) error
	SetRefillRequested(ctx context.Context, orderID, refillID string, at time.Time) error
	UpdateRefillStatus(ctx context.Context, userID, refillID, status string, at time.Time) (int64, error)
	ResolveProviderRefs(ctx context.Context, userID string, orderIDs []string) ([]models.ProviderRef, error)
	MarkCanceled(ctx context.Context, userID string, orderIDs []string, at time.Time) (int64, error)
	RecordPendingCompensation(ctx context.Context, pc models.PendingCompensation) error
}

// Ledger is implemented by *ledger.Ledger.
type Ledger interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, referenceType, referenceID string) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal, referenceType, referenceID string, txType models.LedgerTxType) error
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	History(ctx context.Context, userID string, limit int) ([]models.LedgerTransaction, error)
}

// Provider is implemented by *provider.Client.
type Provider interface {
	Add(ctx context.Context, req provider.AddRequest) (string, error)
	Status(ctx context.Context, providerOrderID string) (provider.StatusResult, error)
	MultiStatus(ctx context.Context, providerOrderIDs []string) (json.RawMessage, error)
	Refill(ctx context.Context, providerOrderID string) (string, error)
	RefillStatus(ctx context.Context, refillID string) (string, error)
	Cancel(ctx context.Context, providerOrderIDs []string) (json.RawMessage, error)
}

// Catalog is implemented by *catalog.Catalog.
type Catalog interface {
	List(ctx context.Context) ([]catalog.Service, error)
	Lookup(ctx context.Context, serviceID int64) (catalog.Service, error)
}

// TxRunner runs fn in a transaction bound to the ctx it receives.
type TxRunner interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
