package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/auth"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/models"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/provider"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/services"
)

const maxBodyBytes = 1 << 20

type OrderService interface {
	Create(ctx context.Context, in services.CreateOrderInput) (*services.CreateOrderResult, error)
	ListOrders(ctx context.Context, userID string, limit, offset int) ([]*models.Order, error)
	Services(ctx context.Context) ([]services.PricedService, error)
	Balance(ctx context.Context, userID string, limit int) (*services.Balance, error)
}

type StatusService interface {
	RefreshOne(ctx context.Context, userID, orderID string) (*models.Order, error)
	RefreshMany(ctx context.Context, providerOrderIDs []string) (json.RawMessage, error)
}

type RefillCancelService interface {
	RequestRefill(ctx context.Context, userID, orderID string) (*services.RefillResult, error)
	RefillStatus(ctx context.Context, userID, refillID string) (*services.RefillStatusResult, error)
	Cancel(ctx context.Context, userID string, ids []string) (*services.CancelResult, error)
}

type Handler struct {
	Orders  OrderService
	Status  StatusService
	Refills RefillCancelService
	Log     *zap.Logger
}

func NewHandler(orders OrderService, status StatusService, refills RefillCancelService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Orders: orders, Status: status, Refills: refills, Log: log}
}

// actionRequest is the union of every action's parameters.
type actionRequest struct {
	Action           string      `json:"action"`
	ServiceID        json.Number `json:"serviceID"`
	Link             string      `json:"link"`
	Quantity         json.Number `json:"quantity"`
	Comments         string      `json:"comments"`
	Runs             json.Number `json:"runs"`
	Interval         json.Number `json:"interval"`
	ID               string      `json:"id"`
	IDs              []string    `json:"ids"`
	ProviderOrderIDs []string    `json:"providerOrderIDs"`
	RefillID         string      `json:"refillID"`
	Limit            int         `json:"limit"`
	Offset           int         `json:"offset"`
}

type createOrderResponse struct {
	ID              string `json:"id"`
	ProviderOrderID string `json:"providerOrderID"`
}

type statusResponse struct {
	ID                 string  `json:"id"`
	ProviderOrderID    string  `json:"providerOrderID"`
	ProviderStatus     *string `json:"providerStatus"`
	ProviderCharge     *string `json:"providerCharge"`
	ProviderCurrency   *string `json:"providerCurrency"`
	ProviderRemains    *int64  `json:"providerRemains"`
	ProviderStartCount *int64  `json:"providerStartCount"`
}

type refillResponse struct {
	ID               string `json:"id"`
	ProviderRefillID string `json:"providerRefillID"`
}

type refillStatusResponse struct {
	RefillID             string `json:"refillID"`
	ProviderRefillStatus string `json:"providerRefillStatus"`
}

type cancelResponse struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data"`
	Skipped []string        `json:"skipped,omitempty"`
}

type orderResponse struct {
	ID                   string  `json:"id"`
	ServiceID            int64   `json:"serviceID"`
	ServiceName          string  `json:"serviceName"`
	Link                 string  `json:"link"`
	Quantity             int64   `json:"quantity"`
	FinalPrice           string  `json:"finalPrice"`
	CreditsSpent         string  `json:"creditsSpent"`
	Status               string  `json:"status"`
	ProviderOrderID      *string `json:"providerOrderID"`
	ProviderStatus       *string `json:"providerStatus"`
	ProviderRemains      *int64  `json:"providerRemains"`
	ProviderRefillStatus *string `json:"providerRefillStatus"`
	ErrorMessage         *string `json:"errorMessage,omitempty"`
	CreatedAt            string  `json:"createdAt"`
	LastSyncedAt         string  `json:"lastSyncedAt,omitempty"`
}

type balanceResponse struct {
	Credits      string                `json:"credits"`
	Transactions []transactionResponse `json:"transactions"`
}

type transactionResponse struct {
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	ReferenceID string `json:"referenceID"`
	CreatedAt   string `json:"createdAt"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// Dispatch serves every order action from a single JSON endpoint.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	var req actionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	switch req.Action {
	case "create":
		h.create(w, r, userID, req)
	case "status":
		h.status(w, r, userID, req)
	case "status_multi":
		h.statusMulti(w, r, req)
	case "refill":
		h.refill(w, r, userID, req)
	case "refill_status":
		h.refillStatus(w, r, userID, req)
	case "cancel":
		h.cancel(w, r, userID, req)
	case "services":
		h.services(w, r)
	case "balance":
		h.balance(w, r, userID, req)
	case "list":
		h.list(w, r, userID, req)
	case "":
		writeError(w, http.StatusBadRequest, "missing action")
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, userID string, req actionRequest) {
	in := services.CreateOrderInput{UserID: userID, Link: req.Link, Comments: req.Comments}
	var err error
	if in.ServiceID, err = intParam("serviceID", req.ServiceID, true); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if in.Quantity, err = intParam("quantity", req.Quantity, false); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if in.Runs, err = intParam("runs", req.Runs, false); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if in.Interval, err = intParam("interval", req.Interval, false); err != nil {
		h.writeServiceError(w, err)
		return
	}

	res, err := h.Orders.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createOrderResponse{ID: res.ID, ProviderOrderID: res.ProviderOrderID})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request, userID string, req actionRequest) {
	o, err := h.Status.RefreshOne(r.Context(), userID, req.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := statusResponse{
		ID:                 o.ID,
		ProviderStatus:     o.ProviderStatus,
		ProviderCurrency:   o.ProviderCurrency,
		ProviderRemains:    o.ProviderRemains,
		ProviderStartCount: o.ProviderStartCount,
	}
	if o.ProviderOrderID != nil {
		resp.ProviderOrderID = *o.ProviderOrderID
	}
	if o.ProviderCharge.Valid {
		v := o.ProviderCharge.Decimal.String()
		resp.ProviderCharge = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) statusMulti(w http.ResponseWriter, r *http.Request, req actionRequest) {
	raw, err := h.Status.RefreshMany(r.Context(), req.ProviderOrderIDs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (h *Handler) refill(w http.ResponseWriter, r *http.Request, userID string, req actionRequest) {
	res, err := h.Refills.RequestRefill(r.Context(), userID, req.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refillResponse{ID: res.ID, ProviderRefillID: res.ProviderRefillID})
}

func (h *Handler) refillStatus(w http.ResponseWriter, r *http.Request, userID string, req actionRequest) {
	res, err := h.Refills.RefillStatus(r.Context(), userID, req.RefillID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refillStatusResponse{RefillID: res.RefillID, ProviderRefillStatus: res.Status})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, userID string, req actionRequest) {
	res, err := h.Refills.Cancel(r.Context(), userID, req.IDs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{OK: true, Data: res.Data, Skipped: res.Skipped})
}

func (h *Handler) services(w http.ResponseWriter, r *http.Request) {
	out, err := h.Orders.Services(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request, userID string, req actionRequest) {
	b, err := h.Orders.Balance(r.Context(), userID, req.Limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := balanceResponse{Credits: b.Credits.StringFixed(2), Transactions: make([]transactionResponse, 0, len(b.Transactions))}
	for _, t := range b.Transactions {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			Type:        string(t.Type),
			Amount:      t.Amount.StringFixed(2),
			ReferenceID: t.ReferenceID,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, userID string, req actionRequest) {
	orders, err := h.Orders.ListOrders(r.Context(), userID, req.Limit, req.Offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp := orderResponse{
			ID:                   o.ID,
			ServiceID:            o.ServiceID,
			ServiceName:          o.ServiceName,
			Link:                 o.Link,
			Quantity:             o.Quantity,
			FinalPrice:           o.FinalPriceAmount.StringFixed(2),
			CreditsSpent:         o.CreditsSpent.StringFixed(2),
			Status:               string(o.Status),
			ProviderOrderID:      o.ProviderOrderID,
			ProviderStatus:       o.ProviderStatus,
			ProviderRemains:      o.ProviderRemains,
			ProviderRefillStatus: o.ProviderRefillStatus,
			ErrorMessage:         o.ErrorMessage,
			CreatedAt:            o.CreatedAt.Format(time.RFC3339),
		}
		if o.LastSyncedAt != nil {
			resp.LastSyncedAt = o.LastSyncedAt.Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var perr *provider.Error
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "missing user id")
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrServiceNotFound):
		writeError(w, http.StatusBadRequest, "service not found")
	case errors.Is(err, services.ErrInvalidService):
		writeError(w, http.StatusBadRequest, "invalid service")
	case errors.Is(err, services.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "insufficient credits")
	case errors.Is(err, services.ErrNotSubmitted):
		writeError(w, http.StatusBadRequest, "order was not submitted to the provider")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.As(err, &perr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: perr.Message, Kind: string(perr.Kind), Details: perr.Details})
	default:
		h.Log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func intParam(name string, v json.Number, required bool) (int64, error) {
	if v == "" {
		if required {
			return 0, fmt.Errorf("%w: %s is required", services.ErrValidation, name)
		}
		return 0, nil
	}
	n, err := v.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", services.ErrValidation, name)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
