package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/collection-factory/api"
	"github.com/ruteri/collection-factory/factory"
	"github.com/ruteri/collection-factory/interfaces"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Handler serves the factory API.
type Handler struct {
	factory     api.ChildFactory
	balances    api.BalanceProvider
	auth        Authenticator
	waitTimeout time.Duration
	log         *slog.Logger
}

// NewHandler creates a handler. balances may be nil, in which case the balance endpoint answers 404.
// Creation requests must pass auth; with a nil auth every creation request is refused.
func NewHandler(f api.ChildFactory, balances api.BalanceProvider, auth Authenticator, waitTimeout time.Duration, log *slog.Logger) *Handler {
	if waitTimeout <= 0 {
		waitTimeout = 20 * time.Second
	}
	return &Handler{
		factory:     f,
		balances:    balances,
		auth:        auth,
		waitTimeout: waitTimeout,
		log:         log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/children", h.HandleCreateChild)
	r.Get("/api/v1/children/{child_id}/exists", h.HandleChildExists)
	r.Get("/api/v1/accounts/{account_id}/balance", h.HandleBalance)
}

// HandleCreateChild validates a creation request and dispatches it.
//
// URL format: POST /api/v1/children[?wait=true]
// Required headers: Authorization (bearer token of the predecessor), X-Predecessor-Account-Id, X-Attached-Deposit
// Request body: api.CreateChildRequest
func (h *Handler) HandleCreateChild(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseCreateRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dispatch, err := h.factory.RequestCreation(r.Context(), req)
	if err != nil {
		h.writeError(w, classify(err))
		return
	}

	resp := api.CreateChildResponse{
		ReceiptID: dispatch.ReceiptID,
		ChildID:   dispatch.ChildID,
		State:     factory.StateDispatched.String(),
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	resolution, err := dispatch.Wait(ctx)
	if err != nil {
		// still in flight, the callback will resolve it later
		h.log.Warn("Creation not resolved before timeout", slog.String("receipt", string(dispatch.ReceiptID)), "err", err)
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	resp.State = resolution.State.String()
	if resolution.State == factory.StateRefunded {
		refund := resolution.Refund
		resp.Refund = &refund
		if resolution.Cause != nil {
			resp.Error = resolution.Cause.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleChildExists reports whether a child id is committed in the registry.
//
// URL format: GET /api/v1/children/{child_id}/exists
func (h *Handler) HandleChildExists(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.NewAccountID(chi.URLParam(r, "child_id"))
	if err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}

	exists, err := h.factory.CheckExists(r.Context(), id)
	if err != nil {
		h.writeError(w, classify(err))
		return
	}
	writeJSON(w, http.StatusOK, api.ExistsResponse{Exists: exists})
}

// HandleBalance reports the runtime balance of an account.
//
// URL format: GET /api/v1/accounts/{account_id}/balance
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	if h.balances == nil {
		http.NotFound(w, r)
		return
	}

	id, err := interfaces.NewAccountID(chi.URLParam(r, "account_id"))
	if err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}

	balance, err := h.balances.Balance(r.Context(), id)
	if err != nil {
		h.writeError(w, classify(err))
		return
	}
	writeJSON(w, http.StatusOK, api.BalanceResponse{AccountID: id, Balance: balance})
}

func (h *Handler) parseCreateRequest(w http.ResponseWriter, r *http.Request) (interfaces.ProvisioningRequest, error) {
	predecessor, err := interfaces.NewAccountID(r.Header.Get(api.PredecessorHeader))
	if err != nil {
		return interfaces.ProvisioningRequest{}, &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	if h.auth == nil {
		return interfaces.ProvisioningRequest{}, &RequestError{StatusCode: http.StatusUnauthorized, Err: fmt.Errorf("%w: no principals configured", ErrUnauthenticated)}
	}
	if err := h.auth.Authenticate(r, predecessor); err != nil {
		return interfaces.ProvisioningRequest{}, &RequestError{StatusCode: http.StatusUnauthorized, Err: err}
	}

	rawDeposit := r.Header.Get(api.AttachedDepositHeader)
	if rawDeposit == "" {
		rawDeposit = "0"
	}
	deposit, err := interfaces.ParseBalance(rawDeposit)
	if err != nil {
		return interfaces.ProvisioningRequest{}, &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}

	var body api.CreateChildRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return interfaces.ProvisioningRequest{}, &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}

	return interfaces.ProvisioningRequest{
		Name:            body.Name,
		Metadata:        interfaces.MetadataBlob(body.Metadata),
		Supply:          body.Size,
		Sale:            body.Sale,
		Predecessor:     predecessor,
		AttachedDeposit: deposit,
		SignerPublicKey: body.SignerPublicKey,
	}, nil
}

// classify maps factory and runtime errors to HTTP status codes.
func classify(err error) *RequestError {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrInvalidRequest), errors.Is(err, interfaces.ErrInvalidAccountID):
		status = http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, factory.ErrInsufficientDeposit), errors.Is(err, factory.ErrDepositCollection):
		status = http.StatusPaymentRequired
	case errors.Is(err, factory.ErrDuplicateChild):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, factory.ErrDispatchFailed):
		status = http.StatusBadGateway
	case errors.Is(err, factory.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	return &RequestError{StatusCode: status, Err: err}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		reqErr = classify(err)
	}
	if reqErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", reqErr.Err)
	} else {
		h.log.Debug("Request rejected", slog.Int("status", reqErr.StatusCode), "err", reqErr.Err)
	}
	writeJSON(w, reqErr.StatusCode, api.ErrorResponse{Error: reqErr.Err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
