package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/selfpromise/backend/internal/escrow"
	"github.com/selfpromise/backend/internal/registry"
)

// ErrPromiseClosed rejects collateral against a promise that already left
// Created. The escrow itself stays state-blind; this is a service-layer
// guard, since funds bound after evaluation could never be released.
var ErrPromiseClosed = errors.New("PROMISE_CLOSED: promise no longer accepts collateral")

// HandleDeposit binds collateral to a promise. The promise must exist and
// still be awaiting evaluation before collateral is accepted against it.
func HandleDeposit(esc *escrow.Escrow, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Principal string `json:"principal"`
			PromiseID string `json:"promise_id"`
			Amount    int64  `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		p, err := reg.GetDetails(req.PromiseID)
		if err != nil {
			writeError(w, err)
			return
		}
		if p.State != registry.StateCreated {
			writeError(w, fmt.Errorf("%w: %s is %s", ErrPromiseClosed, p.ID, p.State))
			return
		}

		if err := esc.Deposit(r.Context(), req.Principal, req.PromiseID, req.Amount); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"principal":  req.Principal,
			"promise_id": req.PromiseID,
			"amount":     req.Amount,
			"status":     "HELD",
		})
	}
}

// HandleGetDeposit returns a principal's active deposit.
func HandleGetDeposit(esc *escrow.Escrow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := mux.Vars(r)["principal"]

		d, err := esc.GetDeposit(principal)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}
