package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderFailed    OrderStatus = "failed"
	OrderRefunded  OrderStatus = "refunded"
	OrderCanceled  OrderStatus = "canceled"
)

// RefillRequested is the local refill status stored until the provider
// reports its own.
const RefillRequested = "requested"

// Order is one paid request to the provider. The pricing fields are a
// snapshot taken at creation and never change afterwards.
type Order struct {
	ID          string
	UserID      string
	ServiceID   int64
	ServiceName string
	Link        string
	Quantity    int64

	ProviderRatePer1000 decimal.Decimal
	ProviderCostAmount  decimal.Decimal
	MarkupPercent       decimal.Decimal
	FinalPriceAmount    decimal.Decimal
	ProfitAmount        decimal.Decimal
	CreditsSpent        decimal.Decimal

	Status          OrderStatus
	ProviderOrderID *string

	ProviderStatus     *string
	ProviderCharge     decimal.NullDecimal
	ProviderRemains    *int64
	ProviderStartCount *int64
	ProviderCurrency   *string

	ProviderRefillID     *string
	ProviderRefillStatus *string

	ProfitRealAmount decimal.NullDecimal
	ErrorMessage     *string

	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastSyncedAt      *time.Time
	RequestedRefillAt *time.Time
	CancelledAt       *time.Time
}

// ProviderMirror is the subset of an order refreshed from a provider status
// call.
type ProviderMirror struct {
	Status     *string
	Charge     decimal.NullDecimal
	Remains    *int64
	StartCount *int64
	Currency   *string
	ProfitReal decimal.NullDecimal
	SyncedAt   time.Time
}

// ProviderRef pairs a local order id with its provider order id, if any.
type ProviderRef struct {
	OrderID         string
	ProviderOrderID *string
}

type LedgerTxType string

const (
	LedgerDebit  LedgerTxType = "debit"
	LedgerCredit LedgerTxType = "credit"
	LedgerRefund LedgerTxType = "refund"
)

type LedgerTransaction struct {
	ID            int64
	UserID        string
	Type          LedgerTxType
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   string
	CreatedAt     time.Time
}

// PendingCompensation records a refund that could not be applied after a
// successful debit.
type PendingCompensation struct {
	OrderID   string
	UserID    string
	Amount    decimal.Decimal
	Reason    string
	CreatedAt time.Time
}
