package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/catalog"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/events"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/ledger"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/models"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/provider"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/store"
)

type memStore struct {
	mu            sync.Mutex
	orders        map[string]*models.Order
	compensations []models.PendingCompensation
	mirrorCalls   int
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]*models.Order{}}
}

func (s *memStore) put(o *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *o
	s.orders[o.ID] = &c
}

func (s *memStore) get(id string) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	c := *o
	return &c
}

func (s *memStore) CreateOrder(_ context.Context, o *models.Order) error {
	s.put(o)
	return nil
}

func (s *memStore) GetOrder(_ context.Context, userID, orderID string) (*models.Order, error) {
	o := s.get(orderID)
	if o == nil || o.UserID != userID {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (s *memStore) ListOrders(_ context.Context, userID string, limit, offset int) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			c := *o
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) transition(id string, to models.OrderStatus, apply func(o *models.Order)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderPending {
		return store.ErrStaleTransition
	}
	o.Status = to
	apply(o)
	return nil
}

func (s *memStore) MarkSubmitted(_ context.Context, id, providerOrderID string) error {
	return s.transition(id, models.OrderSubmitted, func(o *models.Order) { o.ProviderOrderID = &providerOrderID })
}

func (s *memStore) MarkFailed(_ context.Context, id, reason string) error {
	return s.transition(id, models.OrderFailed, func(o *models.Order) { o.ErrorMessage = &reason })
}

func (s *memStore) MarkRefunded(_ context.Context, id, reason string) error {
	return s.transition(id, models.OrderRefunded, func(o *models.Order) { o.ErrorMessage = &reason })
}

func (s *memStore) UpdateProviderMirror(_ context.Context, id string, m models.ProviderMirror) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	s.mirrorCalls++
	applyMirror(o, m)
	return nil
}

func (s *memStore) SetRefillRequested(_ context.Context, id, refillID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	status := models.RefillRequested
	o.ProviderRefillID = &refillID
	o.ProviderRefillStatus = &status
	o.RequestedRefillAt = &at
	return nil
}

func (s *memStore) UpdateRefillStatus(_ context.Context, userID, refillID, status string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, o := range s.orders {
		if o.UserID == userID && o.ProviderRefillID != nil && *o.ProviderRefillID == refillID {
			st := status
			o.ProviderRefillStatus = &st
			t := at
			o.LastSyncedAt = &t
			n++
		}
	}
	return n, nil
}

func (s *memStore) ResolveProviderRefs(_ context.Context, userID string, ids []string) ([]models.ProviderRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProviderRef
	for _, id := range ids {
		if o, ok := s.orders[id]; ok && o.UserID == userID {
			out = append(out, models.ProviderRef{OrderID: o.ID, ProviderOrderID: o.ProviderOrderID})
		}
	}
	return out, nil
}

func (s *memStore) MarkCanceled(_ context.Context, userID string, ids []string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if o, ok := s.orders[id]; ok && o.UserID == userID {
			o.Status = models.OrderCanceled
			t := at
			o.CancelledAt = &t
			n++
		}
	}
	return n, nil
}

func (s *memStore) RecordPendingCompensation(_ context.Context, pc models.PendingCompensation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compensations = append(s.compensations, pc)
	return nil
}

type memLedger struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	txs       []models.LedgerTransaction
	debitErr  error
	creditErr error
}

func newMemLedger() *memLedger {
	return &memLedger{balances: map[string]decimal.Decimal{}}
}

func (l *memLedger) fund(userID, amount string) {
	l.balances[userID] = decimal.RequireFromString(amount)
}

func (l *memLedger) balance(userID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *memLedger) Debit(_ context.Context, userID string, amount decimal.Decimal, refType, refID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debitErr != nil {
		return l.debitErr
	}
	if l.balances[userID].LessThan(amount) {
		return ledger.ErrInsufficientFunds
	}
	l.balances[userID] = l.balances[userID].Sub(amount)
	l.txs = append(l.txs, models.LedgerTransaction{UserID: userID, Type: models.LedgerDebit, Amount: amount, ReferenceType: refType, ReferenceID: refID})
	return nil
}

func (l *memLedger) Credit(_ context.Context, userID string, amount decimal.Decimal, refType, refID string, txType models.LedgerTxType) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.creditErr != nil {
		return l.creditErr
	}
	l.balances[userID] = l.balances[userID].Add(amount)
	l.txs = append(l.txs, models.LedgerTransaction{UserID: userID, Type: txType, Amount: amount, ReferenceType: refType, ReferenceID: refID})
	return nil
}

func (l *memLedger) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	return l.balance(userID), nil
}

func (l *memLedger) History(_ context.Context, userID string, _ int) ([]models.LedgerTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.LedgerTransaction
	for _, t := range l.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeProvider struct {
	mu sync.Mutex

	addCalls  int
	lastAdd   provider.AddRequest
	addID     string
	addErr    error
	status    provider.StatusResult
	statusErr error
	multi     json.RawMessage
	multiIDs  []string
	refillID  string
	refillSt  string
	cancelIDs []string
	cancelRaw json.RawMessage
	cancelErr error
}

func (p *fakeProvider) Add(_ context.Context, req provider.AddRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addCalls++
	p.lastAdd = req
	return p.addID, p.addErr
}

func (p *fakeProvider) Status(context.Context, string) (provider.StatusResult, error) {
	return p.status, p.statusErr
}

func (p *fakeProvider) MultiStatus(_ context.Context, ids []string) (json.RawMessage, error) {
	p.multiIDs = ids
	return p.multi, nil
}

func (p *fakeProvider) Refill(context.Context, string) (string, error) {
	return p.refillID, nil
}

func (p *fakeProvider) RefillStatus(context.Context, string) (string, error) {
	return p.refillSt, nil
}

func (p *fakeProvider) Cancel(_ context.Context, ids []string) (json.RawMessage, error) {
	p.cancelIDs = ids
	return p.cancelRaw, p.cancelErr
}

type fakeCatalog struct {
	services map[int64]catalog.Service
}

func (c fakeCatalog) List(context.Context) ([]catalog.Service, error) {
	out := make([]catalog.Service, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c fakeCatalog) Lookup(_ context.Context, id int64) (catalog.Service, error) {
	s, ok := c.services[id]
	if !ok {
		return catalog.Service{}, catalog.ErrServiceNotFound
	}
	if !s.RatePer1000.IsPositive() {
		return s, catalog.ErrInvalidRate
	}
	return s, nil
}

type passTx struct{ calls int }

func (t *passTx) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (p *recordingPublisher) PublishOrder(_ context.Context, ev events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
