package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/selfpromise/backend/internal/coordinator"
)

// HandleResolve settles a promise: reads the verdict and moves the
// collateral. Safe to call repeatedly; only the first call pays out.
func HandleResolve(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		outcome, err := coord.Resolve(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

// HandleQuarantineList shows promises held for manual reconciliation.
func HandleQuarantineList(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := coord.Quarantined()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"quarantined": q,
			"count":       len(q),
		})
	}
}

// HandleQuarantineClear releases a quarantined promise after an operator has
// reconciled state by hand.
func HandleQuarantineClear(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		coord.ClearQuarantine(id)
		writeJSON(w, http.StatusOK, map[string]string{"promise_id": id, "status": "CLEARED"})
	}
}
